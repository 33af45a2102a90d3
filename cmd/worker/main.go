package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/qs3c/ailab_server/config"
	"github.com/qs3c/ailab_server/internal/database"
	"github.com/qs3c/ailab_server/internal/pkg/oss"
	"github.com/qs3c/ailab_server/internal/pkg/provider"
	"github.com/qs3c/ailab_server/internal/pkg/pubsub"
	"github.com/qs3c/ailab_server/internal/pkg/queue"
	"github.com/qs3c/ailab_server/internal/repository"
	"github.com/qs3c/ailab_server/internal/service"
	"github.com/qs3c/ailab_server/internal/worker"
)

func main() {
	// 加载配置
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化数据库
	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}
	log.Println("Database connected")

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect redis: %v", err)
	}
	log.Println("Redis connected")

	archiver, err := oss.Open(&cfg.OSS, cfg.Archive.LocalDir)
	if err != nil {
		log.Fatalf("Failed to init report archiver: %v", err)
	}

	// 初始化 Queue 和 Pub/Sub
	jobQueue := queue.NewQueue(rdb, cfg.Lab.Queue)
	publisher := pubsub.NewPublisher(rdb)

	// 初始化 Repository 和 Service
	userRepo := repository.NewUserRepository(db)
	experimentRepo := repository.NewExperimentRepository(db)
	resultRepo := repository.NewResultRepository(db)
	settingsService := service.NewSettingsService(repository.NewSettingsRepository(db), cfg)
	runner := service.NewTargetRunner(provider.NewClient(nil), settingsService, cfg)
	labService := service.NewLabService(
		experimentRepo,
		resultRepo,
		service.NewAccessService(userRepo, experimentRepo),
		runner,
		jobQueue,
		publisher,
		archiver,
		cfg,
	)

	// 创建 context 用于优雅关闭
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Received shutdown signal")
		cancel()
	}()

	go func() {
		if err := worker.ListenCancel(ctx, pubsub.NewSubscriber(rdb), labService); err != nil && ctx.Err() == nil {
			log.Printf("Cancel listener stopped: %v", err)
		}
	}()

	// 阻塞到收到信号且进行中的实验全部结束
	if err := worker.NewPool(jobQueue, labService, cfg.Lab.Workers).Run(ctx); err != nil {
		log.Printf("Worker pool error: %v", err)
	}
	log.Println("Worker shutdown complete")
}
