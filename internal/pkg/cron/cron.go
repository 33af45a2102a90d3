package cron

import (
	"log"
	"sync"
	"time"
)

// Janitor 实验的周期性维护
type Janitor interface {
	ReapStale(now time.Time) (int, error)
	Prune(before time.Time, dryRun bool) ([]string, error)
}

type Service struct {
	janitor       Janitor
	reapInterval  time.Duration
	retentionDays int
	stopChan      chan struct{}
	stopOnce      sync.Once
}

// NewService retentionDays <= 0 时不清理历史实验
func NewService(janitor Janitor, reapInterval time.Duration, retentionDays int) *Service {
	if reapInterval <= 0 {
		reapInterval = time.Minute
	}
	return &Service{
		janitor:       janitor,
		reapInterval:  reapInterval,
		retentionDays: retentionDays,
		stopChan:      make(chan struct{}),
	}
}

// Start 启动定时任务
func (s *Service) Start() {
	go s.runReaper()
	if s.retentionDays > 0 {
		go s.runDailyPrune()
	}
	log.Printf("Cron service started (reap every %s, retention %d days)", s.reapInterval, s.retentionDays)
}

// Stop 停止定时任务，可重复调用
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		log.Println("Cron service stopped")
	})
}

// runReaper 定期回收残留的运行中实验
func (s *Service) runReaper() {
	ticker := time.NewTicker(s.reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			if _, err := s.RunNow(); err != nil {
				log.Printf("Failed to reap stale experiments: %v", err)
			}
		}
	}
}

// runDailyPrune 每天 UTC 零点清理过期实验
func (s *Service) runDailyPrune() {
	now := time.Now().UTC()
	nextMidnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	timer := time.NewTimer(nextMidnight.Sub(now))

	for {
		select {
		case <-s.stopChan:
			timer.Stop()
			return
		case <-timer.C:
			s.prune()
			timer.Reset(24 * time.Hour)
		}
	}
}

func (s *Service) prune() {
	before := time.Now().AddDate(0, 0, -s.retentionDays)
	ids, err := s.janitor.Prune(before, false)
	if err != nil {
		log.Printf("Failed to prune experiments: %v", err)
	}
	if len(ids) > 0 {
		log.Printf("Pruned %d experiments finished before %s", len(ids), before.Format(time.RFC3339))
	}
}

// RunNow 立即执行一次回收（用于测试或手动触发）
func (s *Service) RunNow() (int, error) {
	n, err := s.janitor.ReapStale(time.Now())
	if n > 0 {
		log.Printf("Reaped %d stale experiments", n)
	}
	return n, err
}
