package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/qs3c/ailab_server/config"
	"github.com/qs3c/ailab_server/internal/api"
	"github.com/qs3c/ailab_server/internal/api/handler"
	"github.com/qs3c/ailab_server/internal/database"
	"github.com/qs3c/ailab_server/internal/pkg/cron"
	"github.com/qs3c/ailab_server/internal/pkg/oss"
	"github.com/qs3c/ailab_server/internal/pkg/provider"
	"github.com/qs3c/ailab_server/internal/pkg/pubsub"
	"github.com/qs3c/ailab_server/internal/pkg/queue"
	"github.com/qs3c/ailab_server/internal/pkg/ws"
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

	// 报告归档：OSS 或本地目录
	archiver, err := oss.Open(&cfg.OSS, cfg.Archive.LocalDir)
	if err != nil {
		log.Fatalf("Failed to init report archiver: %v", err)
	}

	// 初始化 Queue 和 Pub/Sub
	jobQueue := queue.NewQueue(rdb, cfg.Lab.Queue)
	publisher := pubsub.NewPublisher(rdb)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 初始化 WebSocket Hub，转发 worker 和本进程发布的进度
	wsHub := ws.NewHub()
	go func() {
		if err := wsHub.Relay(ctx, pubsub.NewSubscriber(rdb)); err != nil && ctx.Err() == nil {
			log.Printf("Progress relay stopped: %v", err)
		}
	}()
	log.Println("WebSocket hub started")

	// 初始化 Repository
	userRepo := repository.NewUserRepository(db)
	experimentRepo := repository.NewExperimentRepository(db)
	resultRepo := repository.NewResultRepository(db)
	presetRepo := repository.NewPresetRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)

	// 初始化 Service
	authService := service.NewAuthService(userRepo, cfg)
	accessService := service.NewAccessService(userRepo, experimentRepo)
	settingsService := service.NewSettingsService(settingsRepo, cfg)
	runner := service.NewTargetRunner(provider.NewClient(nil), settingsService, cfg)
	labService := service.NewLabService(experimentRepo, resultRepo, accessService, runner, jobQueue, publisher, archiver, cfg)
	quickRunService := service.NewQuickRunService(runner, presetRepo, accessService, cfg)
	presetService := service.NewPresetService(presetRepo, accessService)

	// 其他进程发起的取消
	go func() {
		if err := worker.ListenCancel(ctx, pubsub.NewSubscriber(rdb), labService); err != nil && ctx.Err() == nil {
			log.Printf("Cancel listener stopped: %v", err)
		}
	}()

	// 定时任务：回收残留实验、清理过期实验
	cronService := cron.NewService(labService, time.Duration(cfg.Lab.StaleAfterMinutes)*time.Minute, cfg.Lab.RetentionDays)
	cronService.Start()
	defer cronService.Stop()

	// 初始化 Handler
	authHandler := handler.NewAuthHandler(authService)
	labHandler := handler.NewLabHandler(labService)
	quickRunHandler := handler.NewQuickRunHandler(quickRunService)
	presetHandler := handler.NewPresetHandler(presetService)
	modelsHandler := handler.NewModelsHandler(cfg, settingsService)
	settingsHandler := handler.NewSettingsHandler(settingsService)
	websocketHandler := handler.NewWebSocketHandler(wsHub, cfg.JWT.Secret, cfg.CORS)

	// 初始化 Router
	router := api.NewRouter(
		authHandler,
		labHandler,
		quickRunHandler,
		presetHandler,
		modelsHandler,
		settingsHandler,
		websocketHandler,
		accessService,
		cfg,
	)
	engine := router.Setup()

	// 启动服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Server starting on %s", addr)
	if err := engine.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
