package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/qs3c/ailab_server/config"
	"github.com/qs3c/ailab_server/internal/model"
	"github.com/qs3c/ailab_server/internal/model/dto"
	"github.com/qs3c/ailab_server/internal/pkg/dispatch"
)

// QuickRunService 无持久化的快速对比：同样的调度和调用，结果直接返回
type QuickRunService struct {
	runner  *TargetRunner
	presets SavedPresetStore
	access  *AccessService
	cfg     *config.Config
}

// NewQuickRunService presets、access 可为 nil（命令行场景不做权限判断）
func NewQuickRunService(runner *TargetRunner, presets SavedPresetStore, access *AccessService, cfg *config.Config) *QuickRunService {
	return &QuickRunService{
		runner:  runner,
		presets: presets,
		access:  access,
		cfg:     cfg,
	}
}

// Run 校验请求、展开预设并并发执行全部 target
func (s *QuickRunService) Run(ctx context.Context, userID int64, req *dto.QuickRunRequest) (*dto.QuickRunResponse, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if s.access != nil {
		if err := s.access.RequireAdmin(userID); err != nil {
			return nil, err
		}
	}

	targets := append([]dto.LabTarget(nil), req.Targets...)
	if len(req.PresetIDs) > 0 {
		expanded, err := s.expandPresets(ctx, userID, req.PresetIDs)
		if err != nil {
			return nil, err
		}
		targets = append(targets, expanded...)
	}

	if len(targets) > s.cfg.Lab.MaxTargets {
		return nil, tooManyTargets(s.cfg.Lab.MaxTargets)
	}
	if err := validateTargets(targets); err != nil {
		return nil, err
	}

	return s.Dispatch(ctx, req.Prompt, targets)
}

// Dispatch 执行已校验的 target 列表，结果顺序与输入一致
func (s *QuickRunService) Dispatch(ctx context.Context, prompt string, targets []dto.LabTarget) (*dto.QuickRunResponse, error) {
	start := time.Now()
	limit := clampConcurrency(s.cfg.Lab.MaxConcurrency, len(targets), s.cfg.Lab.MaxConcurrency)

	outcomes, err := dispatch.RunBounded(ctx, limit, targets,
		func(ctx context.Context, t dto.LabTarget, _ int) *TargetOutcome {
			return s.runner.Run(ctx, prompt, t)
		},
		func(i int, err error) *TargetOutcome {
			return failedOutcome(targets[i].Label, err)
		})
	if err != nil && outcomes == nil {
		return nil, err
	}

	resp := &dto.QuickRunResponse{
		TotalTargets: len(targets),
		Results:      make([]dto.QuickRunResult, len(outcomes)),
	}
	for i, out := range outcomes {
		resp.Results[i] = quickRunResult(out)
		if out.Completed {
			resp.Successful++
		} else {
			resp.Failed++
		}
	}
	resp.Success = resp.Failed == 0
	resp.DurationMs = time.Since(start).Milliseconds()

	log.Printf("Quick run: %d/%d targets succeeded in %dms", resp.Successful, resp.TotalTargets, resp.DurationMs)
	return resp, nil
}

// expandPresets 按 ID 取预设并按 request_count 展开
func (s *QuickRunService) expandPresets(ctx context.Context, userID int64, ids []string) ([]dto.LabTarget, error) {
	if s.presets == nil {
		return nil, ErrPresetNotFound
	}
	all, err := s.presets.Load(ctx, userID)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*model.SavedPreset, len(all))
	for _, p := range all {
		byID[p.ID] = p
	}

	selected := make([]*model.SavedPreset, 0, len(ids))
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrPresetNotFound, id)
		}
		selected = append(selected, p)
	}
	return ExpandPresets(selected), nil
}

// ExpandPresets request_count > 1 的预设展开为 "<name> (1)"、"<name> (2)"...
func ExpandPresets(presets []*model.SavedPreset) []dto.LabTarget {
	var targets []dto.LabTarget
	for _, p := range presets {
		base := p.Target.Data()
		count := p.RequestCount
		if count < 1 {
			count = 1
		}
		for i := 1; i <= count; i++ {
			t := base
			t.Label = p.Name
			if count > 1 {
				t.Label = fmt.Sprintf("%s (%d)", p.Name, i)
			}
			targets = append(targets, t)
		}
	}
	return targets
}

// validateTargets 逐个校验展开后的 target，字段路径带上下标
func validateTargets(targets []dto.LabTarget) error {
	var fields []FieldViolation
	for i := range targets {
		err := validateStruct(&targets[i])
		if err == nil {
			continue
		}
		verr, ok := err.(*ValidationError)
		if !ok {
			return err
		}
		for _, f := range verr.Fields {
			f.Field = fmt.Sprintf("targets[%d].%s", i, f.Field)
			fields = append(fields, f)
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func quickRunResult(out *TargetOutcome) dto.QuickRunResult {
	if !out.Completed {
		return dto.QuickRunResult{Target: out.Label, Error: out.Error}
	}

	var latency int64
	if out.LatencyMs != nil {
		latency = *out.LatencyMs
	}
	return dto.QuickRunResult{
		Target:  out.Label,
		Success: true,
		Data: &dto.QuickRunData{
			Label:            out.Label,
			ModelName:        out.ModelName,
			LatencyMs:        latency,
			PromptTokens:     out.PromptTokens,
			CompletionTokens: out.CompletionTokens,
			TotalTokens:      out.TotalTokens,
			CostEstimate:     out.CostEstimate,
			SpeedScore:       out.SpeedScore,
			Answer:           out.AnswerText,
			ResponsePayload:  out.Payload,
		},
	}
}
