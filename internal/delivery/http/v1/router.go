package v1

import (
	"net/http"
	"time"

	"shramsaathi-backend/config"
	"shramsaathi-backend/internal/delivery/http/middleware"
	"shramsaathi-backend/internal/delivery/http/response"
	"shramsaathi-backend/internal/domain"
	"shramsaathi-backend/internal/usecase"
	"shramsaathi-backend/pkg/audit"
	"shramsaathi-backend/pkg/metrics"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

type RouterDeps struct {
	AuthUC        domain.AuthUsecase
	JobUC         domain.JobUsecase
	ApplicationUC domain.ApplicationUsecase
	ProfileUC     domain.ProfileUsecase
	ChatUC        domain.ChatUsecase
	AnalyticsUC   domain.AnalyticsUsecase
	HealthUC      usecase.HealthUsecase
	Tokens        domain.TokenIssuer
	Audit         *audit.Logger
	Metrics       *metrics.Collector
	Realtime      gin.HandlerFunc // websocket upgrade, nil disables /api/ws
	Config        *config.Config
}

func NewRouter(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	r := gin.New()

	// Global Middlewares
	r.Use(middleware.CORSMiddleware(cfg.Origins(), cfg.IsProduction())) // CORS must be first!
	r.Use(gin.Recovery())
	r.Use(gin.Logger())
	r.Use(middleware.RequestID())
	r.Use(middleware.SecurityHeadersMiddleware())
	if deps.Metrics != nil {
		r.Use(middleware.Metrics(deps.Metrics))
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
	r.Use(middleware.ErrorHandler())

	window := time.Duration(cfg.RateLimitWindowSeconds) * time.Second
	globalLimit := middleware.RateLimitMiddleware(middleware.DefaultRateLimitConfig().WithThreshold(cfg.RateLimitGlobalThreshold, window), deps.Audit)
	loginLimit := middleware.RateLimitMiddleware(middleware.LoginRateLimitConfig().WithThreshold(cfg.RateLimitLoginThreshold, window), deps.Audit)
	applyLimit := middleware.RateLimitMiddleware(middleware.ApplyRateLimitConfig().WithThreshold(cfg.RateLimitApplyThreshold, window), deps.Audit)

	api := r.Group("/api")
	api.Use(globalLimit)

	// Health Check
	api.GET("/health", func(c *gin.Context) {
		status := map[string]string{"status": "ok"}
		healthy := true
		if deps.HealthUC != nil {
			status, healthy = deps.HealthUC.Check(c.Request.Context())
		}
		if !healthy {
			response.Error(c, http.StatusServiceUnavailable, "System degraded", status)
			return
		}
		response.Success(c, http.StatusOK, "System operational", status)
	})

	// Swagger
	api.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Registration works with or without a session
	optional := api.Group("")
	optional.Use(middleware.OptionalAuth(deps.Tokens, deps.AuthUC))

	// Protected routes
	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(deps.Tokens, deps.AuthUC))
	{
		NewAuthHandler(api, protected, deps.AuthUC, loginLimit)
		NewJobHandler(api, protected, deps.JobUC)
		NewUserHandler(optional, protected, deps.ProfileUC)
		NewApplicationHandler(protected, deps.ApplicationUC, applyLimit)
		NewChatHandler(protected, deps.ChatUC)
		NewAnalyticsHandler(protected, deps.AnalyticsUC)
		if deps.Realtime != nil {
			protected.GET("/ws", deps.Realtime)
		}
	}

	return r
}
