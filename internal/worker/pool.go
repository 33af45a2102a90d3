package worker

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/qs3c/ailab_server/internal/pkg/pubsub"
	"github.com/qs3c/ailab_server/internal/pkg/queue"
)

const defaultPopTimeout = 5 * time.Second

// Executor 执行一条异步实验任务
type Executor interface {
	Execute(ctx context.Context, job *queue.LabJobMessage) error
}

// Canceller 中断本进程内正在执行的实验
type Canceller interface {
	CancelLocal(experimentID string) bool
}

// Pool 从 Redis 队列领取实验任务的 worker 组
type Pool struct {
	queue      *queue.Queue
	executor   Executor
	workers    int
	popTimeout time.Duration
}

func NewPool(jobQueue *queue.Queue, executor Executor, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		queue:      jobQueue,
		executor:   executor,
		workers:    workers,
		popTimeout: defaultPopTimeout,
	}
}

// Run 启动全部 worker，阻塞到 ctx 结束且进行中的任务全部完成
func (p *Pool) Run(ctx context.Context) error {
	log.Printf("Worker pool started, workers: %d", p.workers)

	g := new(errgroup.Group)
	for i := 0; i < p.workers; i++ {
		workerID := i
		g.Go(func() error {
			p.loop(ctx, workerID)
			return nil
		})
	}
	err := g.Wait()

	log.Println("Worker pool stopped")
	return err
}

func (p *Pool) loop(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			log.Printf("Worker %d shutting down", workerID)
			return
		default:
		}

		msg, err := p.queue.Pop(ctx, p.popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Worker %d: failed to pop job: %v", workerID, err)
			continue
		}
		if msg == nil {
			continue // 超时，继续等待
		}

		// 退出信号不打断已领取的实验，只能通过取消通知中断
		log.Printf("Worker %d: processing experiment %s", workerID, msg.ExperimentID)
		if err := p.executor.Execute(context.WithoutCancel(ctx), msg); err != nil {
			log.Printf("Worker %d: experiment %s failed: %v", workerID, msg.ExperimentID, err)
		}
	}
}

// ListenCancel 把 Redis 上的取消通知转给本进程，阻塞直到 ctx 结束
func ListenCancel(ctx context.Context, sub *pubsub.Subscriber, canceller Canceller) error {
	return sub.SubscribeCancel(ctx, func(experimentID string) {
		if canceller.CancelLocal(experimentID) {
			log.Printf("Experiment %s: cancelled by remote request", experimentID)
		}
	})
}
