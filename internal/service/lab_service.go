package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/qs3c/ailab_server/config"
	"github.com/qs3c/ailab_server/internal/model"
	"github.com/qs3c/ailab_server/internal/model/dto"
	"github.com/qs3c/ailab_server/internal/pkg/dispatch"
	"github.com/qs3c/ailab_server/internal/pkg/oss"
	"github.com/qs3c/ailab_server/internal/pkg/pubsub"
	"github.com/qs3c/ailab_server/internal/pkg/queue"
	"github.com/qs3c/ailab_server/internal/repository"
)

var (
	ErrExperimentNotFound   = errors.New("实验不存在")
	ErrExperimentPermission = errors.New("无权操作此实验")
	ErrExperimentNotRunning = errors.New("实验已结束")
	ErrResultNotFound       = errors.New("结果不存在")
	ErrNoFeedbackFields     = errors.New("至少需要提供一个反馈字段")
	ErrQueueUnavailable     = errors.New("异步队列未配置")
)

const (
	cancelledMessage   = "Experiment cancelled"
	interruptedMessage = "Run interrupted"
	redactedSecret     = "********"
	accuracyWindow     = 10
)

// LabService 实验编排：持久化实验和占位结果、有界并发调度全部 target、汇总实验级指标
type LabService struct {
	experimentRepo *repository.ExperimentRepository
	resultRepo     *repository.ResultRepository
	access         *AccessService
	runner         *TargetRunner
	jobQueue       *queue.Queue
	publisher      *pubsub.Publisher
	archiver       oss.ReportArchiver
	cfg            *config.Config

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// NewLabService jobQueue、publisher、archiver 均可为 nil
func NewLabService(
	experimentRepo *repository.ExperimentRepository,
	resultRepo *repository.ResultRepository,
	access *AccessService,
	runner *TargetRunner,
	jobQueue *queue.Queue,
	publisher *pubsub.Publisher,
	archiver oss.ReportArchiver,
	cfg *config.Config,
) *LabService {
	return &LabService{
		experimentRepo: experimentRepo,
		resultRepo:     resultRepo,
		access:         access,
		runner:         runner,
		jobQueue:       jobQueue,
		publisher:      publisher,
		archiver:       archiver,
		cfg:            cfg,
		running:        make(map[string]context.CancelFunc),
	}
}

// Create 创建实验。同步模式下运行结束后返回终态实验；异步模式下入队后立即返回
func (s *LabService) Create(ctx context.Context, userID int64, req *dto.CreateExperimentRequest) (*model.Experiment, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if len(req.Targets) > s.cfg.Lab.MaxTargets {
		return nil, tooManyTargets(s.cfg.Lab.MaxTargets)
	}
	if err := s.access.RequireAdmin(userID); err != nil {
		return nil, err
	}
	if req.Async && s.jobQueue == nil {
		return nil, ErrQueueUnavailable
	}

	snapshot, err := json.Marshal(MaskTargets(req.Targets))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal targets snapshot: %w", err)
	}

	concurrency := s.cfg.Lab.MaxConcurrency
	if req.MaxConcurrency != nil {
		concurrency = *req.MaxConcurrency
	}

	experiment := &model.Experiment{
		UserID:          userID,
		Label:           strings.TrimSpace(req.Label),
		Prompt:          req.Prompt,
		ExpectedAnswer:  req.ExpectedAnswer,
		Notes:           req.Notes,
		MaxConcurrency:  concurrency,
		TotalTargets:    len(req.Targets),
		Status:          model.ExperimentRunning,
		StartedAt:       time.Now(),
		TargetsSnapshot: datatypes.JSON(snapshot),
	}

	results := make([]*model.ExperimentResult, len(req.Targets))
	for i, t := range req.Targets {
		results[i] = &model.ExperimentResult{
			SlotIndex: i,
			Label:     t.Label,
			Color:     nonEmpty(t.Color),
			ModelName: nonEmpty(t.ModelName),
			Status:    model.ResultQueued,
		}
	}

	if err := s.experimentRepo.CreateWithResults(experiment, results); err != nil {
		return nil, err
	}
	experiment.Results = results
	log.Printf("Experiment %s: created by user %d with %d targets", experiment.ID, userID, len(results))

	job := &queue.LabJobMessage{
		ExperimentID:   experiment.ID,
		UserID:         userID,
		Prompt:         req.Prompt,
		MaxConcurrency: concurrency,
		Targets:        req.Targets,
	}

	if req.Async {
		if err := s.jobQueue.Push(ctx, job); err != nil {
			log.Printf("Experiment %s: failed to enqueue: %v", experiment.ID, err)
			s.abort(experiment.ID, "Failed to enqueue experiment")
			return nil, err
		}
		log.Printf("Experiment %s: queued", experiment.ID)
		return experiment, nil
	}

	if err := s.Execute(ctx, job); err != nil {
		return nil, err
	}
	return s.experimentRepo.GetByIDWithResults(experiment.ID)
}

// Execute 调度实验的全部 target 并完成收尾。实验已结束（被取消或被回收）时直接返回
func (s *LabService) Execute(ctx context.Context, job *queue.LabJobMessage) error {
	experiment, err := s.experimentRepo.GetByID(job.ExperimentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrExperimentNotFound
		}
		return err
	}
	if experiment.Status != model.ExperimentRunning {
		log.Printf("Experiment %s: already %s, skip", experiment.ID, experiment.Status)
		return nil
	}

	results, err := s.resultRepo.ListByExperimentID(experiment.ID)
	if err != nil {
		return err
	}
	if len(results) != len(job.Targets) {
		s.abort(experiment.ID, "Target configuration mismatch")
		return fmt.Errorf("experiment %s: %d results but %d targets", experiment.ID, len(results), len(job.Targets))
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.track(experiment.ID, cancel)
	defer func() {
		s.untrack(experiment.ID)
		cancel()
	}()

	limit := clampConcurrency(job.MaxConcurrency, len(results), s.cfg.Lab.MaxConcurrency)
	log.Printf("Experiment %s: dispatching %d targets, concurrency %d", experiment.ID, len(results), limit)

	_, err = dispatch.RunBounded(runCtx, limit, results,
		func(ctx context.Context, res *model.ExperimentResult, i int) *TargetOutcome {
			return s.runSlot(ctx, experiment, res, job.Prompt, job.Targets[i])
		},
		func(i int, err error) *TargetOutcome {
			out := failedOutcome(results[i].Label, err)
			s.saveOutcome(experiment, results[i], out)
			return out
		})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("Experiment %s: dispatch stopped: %v", experiment.ID, err)
	}

	_, err = s.finalize(experiment.ID)
	return err
}

// runSlot 执行一个 target。结果已被取消时不再调用 provider
func (s *LabService) runSlot(ctx context.Context, experiment *model.Experiment, res *model.ExperimentResult, prompt string, target dto.LabTarget) *TargetOutcome {
	claimed, err := s.resultRepo.MarkRunning(res.ID, time.Now())
	if err != nil {
		out := failedOutcome(res.Label, fmt.Errorf("failed to start target: %w", err))
		s.saveOutcome(experiment, res, out)
		return out
	}
	if !claimed {
		return failedOutcome(res.Label, context.Canceled)
	}
	s.publishResult(experiment, res, model.ResultRunning, "")

	out := s.runner.Run(ctx, prompt, target)
	if !out.Completed && errors.Is(ctx.Err(), context.Canceled) {
		out.Error = cancelledMessage
	}

	s.saveOutcome(experiment, res, out)
	return out
}

func (s *LabService) saveOutcome(experiment *model.Experiment, res *model.ExperimentResult, out *TargetOutcome) {
	fields := map[string]interface{}{
		"latency_ms":   out.LatencyMs,
		"completed_at": out.CompletedAt,
	}
	if len(out.Payload) > 0 {
		fields["response_payload"] = datatypes.JSON(out.Payload)
	}

	status := model.ResultFailed
	if out.Completed {
		status = model.ResultCompleted
		fields["error_message"] = nil
		fields["answer_text"] = out.AnswerText
		fields["prompt_tokens"] = out.PromptTokens
		fields["completion_tokens"] = out.CompletionTokens
		fields["total_tokens"] = out.TotalTokens
		fields["speed_score"] = out.SpeedScore
		fields["cost_estimate"] = out.CostEstimate
		if out.ModelName != nil {
			fields["model_name"] = *out.ModelName
		}
	} else {
		fields["error_message"] = out.Error
	}
	fields["status"] = status

	if err := s.resultRepo.UpdateFields(res.ID, fields); err != nil {
		log.Printf("Experiment %s: failed to save result %d: %v", experiment.ID, res.SlotIndex, err)
	}
	s.publishResult(experiment, res, status, out.Error)
}

// finalize 写入实验终态，只会生效一次
func (s *LabService) finalize(experimentID string) (bool, error) {
	now := time.Now()
	if _, err := s.resultRepo.FailByStatus(experimentID,
		[]string{model.ResultQueued, model.ResultRunning}, interruptedMessage, now); err != nil {
		return false, err
	}

	experiment, err := s.experimentRepo.GetByID(experimentID)
	if err != nil {
		return false, err
	}
	completed, err := s.resultRepo.CountByStatus(experimentID, model.ResultCompleted)
	if err != nil {
		return false, err
	}

	status := model.ExperimentFailed
	if int(completed) == experiment.TotalTargets {
		status = model.ExperimentCompleted
	}
	duration := now.Sub(experiment.StartedAt).Milliseconds()

	ok, err := s.experimentRepo.FinalizeIfRunning(experimentID, map[string]interface{}{
		"status":          status,
		"total_completed": int(completed),
		"completed_at":    now,
		"duration_ms":     duration,
	})
	if err != nil || !ok {
		return ok, err
	}
	log.Printf("Experiment %s: %s (%d/%d) in %dms", experimentID, status, completed, experiment.TotalTargets, duration)

	if err := s.RecomputeAccuracy(experimentID); err != nil {
		log.Printf("Experiment %s: failed to recompute accuracy: %v", experimentID, err)
	}
	s.archiveReport(experimentID)
	s.publish(&pubsub.ProgressMessage{
		Type:           pubsub.TypeExperimentFinished,
		UserID:         experiment.UserID,
		ExperimentID:   experimentID,
		Status:         status,
		TotalCompleted: int(completed),
		TotalTargets:   experiment.TotalTargets,
	})
	return true, nil
}

// abort 把所有未结束的结果标记失败并收尾
func (s *LabService) abort(experimentID, reason string) {
	if _, err := s.resultRepo.FailByStatus(experimentID,
		[]string{model.ResultQueued, model.ResultRunning}, reason, time.Now()); err != nil {
		log.Printf("Experiment %s: failed to abort: %v", experimentID, err)
		return
	}
	if _, err := s.finalize(experimentID); err != nil {
		log.Printf("Experiment %s: failed to finalize: %v", experimentID, err)
	}
}

// RecomputeAccuracy 最近完成的至多 10 个已评分结果的平均准确率，没有则置空
func (s *LabService) RecomputeAccuracy(experimentID string) error {
	scored, err := s.resultRepo.ListRecentScored(experimentID, accuracyWindow)
	if err != nil {
		return err
	}

	var avg *float64
	if len(scored) > 0 {
		var sum float64
		for _, r := range scored {
			sum += *r.AccuracyScore
		}
		v := sum / float64(len(scored))
		avg = &v
	}

	return s.experimentRepo.UpdateFields(experimentID, map[string]interface{}{
		"calculated_accuracy_last10": avg,
	})
}

// Get 获取实验详情（含按 slot 排序的结果）
func (s *LabService) Get(userID int64, experimentID string) (*model.Experiment, error) {
	experiment, err := s.experimentRepo.GetByIDWithResults(experimentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrExperimentNotFound
		}
		return nil, err
	}
	if experiment.UserID != userID {
		return nil, ErrExperimentPermission
	}
	return experiment, nil
}

// List 获取实验列表
func (s *LabService) List(userID int64, page, pageSize int, status string) ([]*dto.ExperimentListItem, int64, error) {
	experiments, total, err := s.experimentRepo.ListByUserID(userID, page, pageSize, status)
	if err != nil {
		return nil, 0, err
	}

	items := make([]*dto.ExperimentListItem, len(experiments))
	for i, e := range experiments {
		items[i] = &dto.ExperimentListItem{
			ID:                       e.ID,
			Label:                    e.Label,
			Status:                   e.Status,
			TotalTargets:             e.TotalTargets,
			TotalCompleted:           e.TotalCompleted,
			DurationMs:               e.DurationMs,
			CalculatedAccuracyLast10: e.CalculatedAccuracyLast10,
			StartedAt:                e.StartedAt.Format(time.RFC3339),
		}
		if e.CompletedAt != nil {
			items[i].CompletedAt = e.CompletedAt.Format(time.RFC3339)
		}
	}

	return items, total, nil
}

// Delete 删除实验及其结果，只有创建者可以删除
func (s *LabService) Delete(userID int64, experimentID string) error {
	owns, err := s.access.OwnsExperiment(userID, experimentID)
	if err != nil {
		return err
	}
	if !owns {
		return ErrExperimentPermission
	}

	s.CancelLocal(experimentID)
	if err := s.experimentRepo.DeleteWithResults(experimentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrExperimentNotFound
		}
		return err
	}
	log.Printf("Experiment %s: deleted by user %d", experimentID, userID)
	return nil
}

// Cancel 停止领取新的 target：排队中的结果直接失败，进行中的调用通过 context 中断
func (s *LabService) Cancel(ctx context.Context, userID int64, experimentID string) error {
	experiment, err := s.experimentRepo.GetByID(experimentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrExperimentNotFound
		}
		return err
	}
	if experiment.UserID != userID {
		return ErrExperimentPermission
	}
	if experiment.Status != model.ExperimentRunning {
		return ErrExperimentNotRunning
	}

	n, err := s.resultRepo.FailByStatus(experimentID, []string{model.ResultQueued}, cancelledMessage, time.Now())
	if err != nil {
		return err
	}
	log.Printf("Experiment %s: cancel requested, %d queued targets dropped", experimentID, n)

	if s.CancelLocal(experimentID) {
		return nil
	}
	if s.publisher != nil {
		if err := s.publisher.PublishCancel(ctx, experimentID); err != nil {
			log.Printf("Experiment %s: failed to publish cancel: %v", experimentID, err)
		}
	}

	// 没有进程在执行（例如仍在队列中），直接收尾
	running, err := s.resultRepo.CountByStatus(experimentID, model.ResultRunning)
	if err != nil {
		return err
	}
	if running == 0 {
		_, err = s.finalize(experimentID)
	}
	return err
}

// CancelLocal 取消本进程中正在执行的实验，返回是否找到
func (s *LabService) CancelLocal(experimentID string) bool {
	s.mu.Lock()
	cancel, ok := s.running[experimentID]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// SubmitFeedback 人工评审。实验创建者或任意管理员可以提交
func (s *LabService) SubmitFeedback(userID int64, resultID string, req *dto.FeedbackRequest) (*model.ExperimentResult, error) {
	if req.Empty() {
		return nil, ErrNoFeedbackFields
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	result, err := s.resultRepo.GetByID(resultID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrResultNotFound
		}
		return nil, err
	}

	owns, err := s.access.OwnsExperiment(userID, result.ExperimentID)
	if err != nil {
		return nil, err
	}
	if !owns {
		isAdmin, err := s.access.IsAdmin(userID)
		if err != nil {
			return nil, err
		}
		if !isAdmin {
			return nil, ErrExperimentPermission
		}
	}

	fields := map[string]interface{}{}
	if req.ReviewScore.Set {
		fields["review_score"] = req.ReviewScore.Value
	}
	if req.FeedbackNotes.Set {
		var notes *string
		if req.FeedbackNotes.Value != nil {
			notes = blankToNil(*req.FeedbackNotes.Value)
		}
		fields["feedback_notes"] = notes
	}
	if req.AccuracyPercent.Set {
		var score *float64
		if req.AccuracyPercent.Value != nil {
			v := *req.AccuracyPercent.Value / 100
			score = &v
		}
		fields["accuracy_score"] = score
	}

	if err := s.resultRepo.UpdateFields(resultID, fields); err != nil {
		return nil, err
	}

	if err := s.RecomputeAccuracy(result.ExperimentID); err != nil {
		log.Printf("Experiment %s: failed to recompute accuracy after feedback: %v", result.ExperimentID, err)
	}

	return s.resultRepo.GetByID(resultID)
}

// ReapStale 回收超时仍在运行且不属于本进程的实验（进程崩溃残留）
func (s *LabService) ReapStale(now time.Time) (int, error) {
	threshold := now.Add(-time.Duration(s.cfg.Lab.StaleAfterMinutes) * time.Minute)
	experiments, err := s.experimentRepo.ListStaleRunning(threshold)
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, e := range experiments {
		if s.isTracked(e.ID) {
			continue
		}
		if _, err := s.resultRepo.FailByStatus(e.ID,
			[]string{model.ResultQueued, model.ResultRunning}, interruptedMessage, now); err != nil {
			log.Printf("Experiment %s: failed to reap: %v", e.ID, err)
			continue
		}
		ok, err := s.finalize(e.ID)
		if err != nil {
			log.Printf("Experiment %s: failed to finalize stale run: %v", e.ID, err)
			continue
		}
		if ok {
			reaped++
		}
	}
	return reaped, nil
}

// Prune 删除完成时间早于 before 的实验，dryRun 时只返回待删除的 ID
func (s *LabService) Prune(before time.Time, dryRun bool) ([]string, error) {
	experiments, err := s.experimentRepo.ListFinishedBefore(before)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(experiments))
	for _, e := range experiments {
		if !dryRun {
			if err := s.experimentRepo.DeleteWithResults(e.ID); err != nil {
				return ids, fmt.Errorf("failed to delete experiment %s: %w", e.ID, err)
			}
			if s.archiver != nil && e.ArchiveURL != "" {
				if err := s.archiver.DeleteReport(e.ArchiveURL); err != nil {
					log.Printf("Experiment %s: failed to delete report: %v", e.ID, err)
				}
			}
		}
		ids = append(ids, e.ID)
	}
	return ids, nil
}

func (s *LabService) track(experimentID string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[experimentID] = cancel
}

func (s *LabService) untrack(experimentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, experimentID)
}

func (s *LabService) isTracked(experimentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[experimentID]
	return ok
}

func (s *LabService) publishResult(experiment *model.Experiment, res *model.ExperimentResult, status, errMsg string) {
	s.publish(&pubsub.ProgressMessage{
		Type:         pubsub.TypeResultProgress,
		UserID:       experiment.UserID,
		ExperimentID: experiment.ID,
		ResultID:     res.ID,
		SlotIndex:    res.SlotIndex,
		Label:        res.Label,
		Status:       status,
		TotalTargets: experiment.TotalTargets,
		Error:        errMsg,
	})
}

func (s *LabService) publish(msg *pubsub.ProgressMessage) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishProgress(context.Background(), msg); err != nil {
		log.Printf("Experiment %s: failed to publish progress: %v", msg.ExperimentID, err)
	}
}

// archiveReport 归档实验报告，失败只记录日志
func (s *LabService) archiveReport(experimentID string) {
	if s.archiver == nil {
		return
	}
	experiment, err := s.experimentRepo.GetByIDWithResults(experimentID)
	if err != nil {
		log.Printf("Experiment %s: failed to load report: %v", experimentID, err)
		return
	}
	data, err := json.MarshalIndent(experiment, "", "  ")
	if err != nil {
		log.Printf("Experiment %s: failed to marshal report: %v", experimentID, err)
		return
	}
	url, err := s.archiver.ArchiveReport(experimentID, data)
	if err != nil {
		log.Printf("Experiment %s: failed to archive report: %v", experimentID, err)
		return
	}
	if err := s.experimentRepo.UpdateFields(experimentID, map[string]interface{}{"archive_url": url}); err != nil {
		log.Printf("Experiment %s: failed to save archive url: %v", experimentID, err)
	}
}

// MaskTargets 返回副本，API Key 替换为固定掩码
func MaskTargets(targets []dto.LabTarget) []dto.LabTarget {
	masked := make([]dto.LabTarget, len(targets))
	for i, t := range targets {
		if t.APIKey != "" {
			t.APIKey = redactedSecret
		}
		masked[i] = t
	}
	return masked
}

// clampConcurrency 限制在 [1, min(n, max)]
func clampConcurrency(requested, n, max int) int {
	limit := requested
	if max > 0 && limit > max {
		limit = max
	}
	if limit > n {
		limit = n
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}
