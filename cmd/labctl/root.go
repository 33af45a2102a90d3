package main

import (
	"errors"
	"io/fs"
	"log"

	"github.com/spf13/cobra"

	"github.com/qs3c/ailab_server/config"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "labctl",
		Short:        "AI Lab 命令行工具",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "配置文件路径")

	loadConfig := func(required bool) (*config.Config, error) {
		cfg, err := config.Load(configPath)
		if err == nil {
			return cfg, nil
		}
		if required {
			return nil, err
		}
		// quickrun 不依赖数据库，没有配置文件时使用默认值
		var notFound *fs.PathError
		if errors.As(err, &notFound) {
			log.Printf("Config %s not found, using defaults", configPath)
			return config.Default(), nil
		}
		return nil, err
	}

	root.AddCommand(newQuickRunCmd(loadConfig))
	root.AddCommand(newPruneCmd(loadConfig))
	return root
}
