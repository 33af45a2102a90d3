package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/qs3c/ailab_server/config"
	"github.com/qs3c/ailab_server/internal/database"
	"github.com/qs3c/ailab_server/internal/pkg/oss"
	"github.com/qs3c/ailab_server/internal/pkg/provider"
	"github.com/qs3c/ailab_server/internal/repository"
	"github.com/qs3c/ailab_server/internal/service"
)

func newPruneCmd(loadConfig func(required bool) (*config.Config, error)) *cobra.Command {
	var (
		olderThanDays int
		dryRun        bool
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "删除早于指定天数结束的实验及其结果和归档报告",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThanDays < 1 {
				return fmt.Errorf("--older-than-days must be at least 1")
			}

			cfg, err := loadConfig(true)
			if err != nil {
				return err
			}

			db, err := database.NewMySQL(&cfg.Database)
			if err != nil {
				return err
			}
			archiver, err := oss.Open(&cfg.OSS, cfg.Archive.LocalDir)
			if err != nil {
				return err
			}

			experimentRepo := repository.NewExperimentRepository(db)
			settings := service.NewSettingsService(repository.NewSettingsRepository(db), cfg)
			labService := service.NewLabService(
				experimentRepo,
				repository.NewResultRepository(db),
				service.NewAccessService(repository.NewUserRepository(db), experimentRepo),
				service.NewTargetRunner(provider.NewClient(nil), settings, cfg),
				nil, nil, archiver, cfg,
			)

			before := time.Now().AddDate(0, 0, -olderThanDays)
			ids, err := labService.Prune(before, dryRun)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, id := range ids {
				fmt.Fprintln(out, id)
			}
			if dryRun {
				fmt.Fprintf(out, "%d experiments would be deleted (dry run)\n", len(ids))
			} else {
				fmt.Fprintf(out, "%d experiments deleted\n", len(ids))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&olderThanDays, "older-than-days", 30, "结束时间早于多少天")
	cmd.Flags().BoolVar(&dryRun, "dry-run", true, "只列出不删除")

	return cmd
}
