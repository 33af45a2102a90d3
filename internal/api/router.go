package api

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/ailab_server/config"
	"github.com/qs3c/ailab_server/internal/api/handler"
	"github.com/qs3c/ailab_server/internal/api/middleware"
)

type Router struct {
	authHandler      *handler.AuthHandler
	labHandler       *handler.LabHandler
	quickRunHandler  *handler.QuickRunHandler
	presetHandler    *handler.PresetHandler
	modelsHandler    *handler.ModelsHandler
	settingsHandler  *handler.SettingsHandler
	websocketHandler *handler.WebSocketHandler
	admins           middleware.AdminChecker
	cfg              *config.Config
}

func NewRouter(
	authHandler *handler.AuthHandler,
	labHandler *handler.LabHandler,
	quickRunHandler *handler.QuickRunHandler,
	presetHandler *handler.PresetHandler,
	modelsHandler *handler.ModelsHandler,
	settingsHandler *handler.SettingsHandler,
	websocketHandler *handler.WebSocketHandler,
	admins middleware.AdminChecker,
	cfg *config.Config,
) *Router {
	return &Router{
		authHandler:      authHandler,
		labHandler:       labHandler,
		quickRunHandler:  quickRunHandler,
		presetHandler:    presetHandler,
		modelsHandler:    modelsHandler,
		settingsHandler:  settingsHandler,
		websocketHandler: websocketHandler,
		admins:           admins,
		cfg:              cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	handler.ConfigureBinding()

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(r.cfg.CORS))

	api := engine.Group("/api/v1")
	{
		// WebSocket
		api.GET("/ws", r.websocketHandler.Handle)

		// 公开接口 - 认证
		auth := api.Group("/auth")
		{
			auth.POST("/register", r.authHandler.Register)
			auth.POST("/login", r.authHandler.Login)
			auth.GET("/me", middleware.Auth(r.cfg.JWT.Secret), r.authHandler.Me)
		}

		// AI Lab，仅管理员
		lab := api.Group("/lab")
		lab.Use(middleware.Auth(r.cfg.JWT.Secret), middleware.AdminOnly(r.admins))
		{
			experiments := lab.Group("/experiments")
			{
				experiments.POST("", r.labHandler.Create)
				experiments.GET("", r.labHandler.List)
				experiments.GET("/:id", r.labHandler.Get)
				experiments.DELETE("/:id", r.labHandler.Delete)
				experiments.POST("/:id/cancel", r.labHandler.Cancel)
			}

			lab.POST("/results/:id/feedback", r.labHandler.Feedback)
			lab.POST("/quick-run", r.quickRunHandler.Run)

			presets := lab.Group("/presets")
			{
				presets.GET("", r.presetHandler.List)
				presets.POST("", r.presetHandler.Save)
				presets.DELETE("/:id", r.presetHandler.Delete)
			}

			lab.GET("/models", r.modelsHandler.List)
			lab.GET("/settings", r.settingsHandler.Get)
			lab.PUT("/settings", r.settingsHandler.Update)
		}
	}

	return engine
}
