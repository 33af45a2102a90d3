package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/qs3c/ailab_server/config"
	"github.com/qs3c/ailab_server/internal/model/dto"
	"github.com/qs3c/ailab_server/internal/pkg/presetfile"
	"github.com/qs3c/ailab_server/internal/pkg/provider"
	"github.com/qs3c/ailab_server/internal/service"
)

type quickRunOptions struct {
	presetsPath string
	prompt      string
	only        []string
	jsonOutput  bool
}

func newQuickRunCmd(loadConfig func(required bool) (*config.Config, error)) *cobra.Command {
	opts := &quickRunOptions{}

	cmd := &cobra.Command{
		Use:   "quickrun",
		Short: "用 YAML 预设文件中的 target 快速对比一个 prompt，不落库",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			resp, err := runQuick(ctx, cfg, opts)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			printQuickRun(cmd.OutOrStdout(), resp)
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.presetsPath, "presets", "f", "presets.yaml", "预设文件")
	cmd.Flags().StringVarP(&opts.prompt, "prompt", "p", "", "发送给所有 target 的 prompt")
	cmd.Flags().StringSliceVar(&opts.only, "only", nil, "只运行指定名称的预设")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "输出完整 JSON")
	_ = cmd.MarkFlagRequired("prompt")

	return cmd
}

func runQuick(ctx context.Context, cfg *config.Config, opts *quickRunOptions) (*dto.QuickRunResponse, error) {
	store := presetfile.NewStore(opts.presetsPath)
	presets, err := store.Load(ctx, 0)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(opts.only))
	for _, name := range opts.only {
		wanted[name] = true
	}

	ids := make([]string, 0, len(presets))
	for _, p := range presets {
		if len(wanted) == 0 || wanted[p.Name] {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no presets selected from %s", opts.presetsPath)
	}

	// 命令行没有数据库，全局 provider 设置直接取配置文件
	settings := service.NewSettingsService(nil, cfg)
	runner := service.NewTargetRunner(provider.NewClient(nil), settings, cfg)
	quickRun := service.NewQuickRunService(runner, store, nil, cfg)

	return quickRun.Run(ctx, 0, &dto.QuickRunRequest{
		Prompt:    opts.prompt,
		PresetIDs: ids,
	})
}

func printQuickRun(out io.Writer, resp *dto.QuickRunResponse) {
	maxTarget := len("Target")
	for _, r := range resp.Results {
		if len(r.Target) > maxTarget {
			maxTarget = len(r.Target)
		}
	}

	header := fmt.Sprintf("%-*s  %-6s  %8s  %6s  %9s  %s", maxTarget, "Target", "Status", "Latency", "Tokens", "Cost", "Answer")
	fmt.Fprintln(out, header)
	fmt.Fprintln(out, strings.Repeat("-", len(header)))

	for _, r := range resp.Results {
		if !r.Success {
			fmt.Fprintf(out, "%-*s  %-6s  %8s  %6s  %9s  %s\n", maxTarget, r.Target, "FAILED", "-", "-", "-", r.Error)
			continue
		}
		fmt.Fprintf(out, "%-*s  %-6s  %6dms  %6s  %9s  %s\n", maxTarget, r.Target, "OK",
			r.Data.LatencyMs, intOrDash(r.Data.TotalTokens), costOrDash(r.Data.CostEstimate), truncate(r.Data.Answer, 60))
	}
	fmt.Fprintf(out, "\n%d/%d succeeded in %dms\n", resp.Successful, resp.TotalTargets, resp.DurationMs)
}

func intOrDash(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}

func costOrDash(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("$%.4f", *v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
