package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shramsaathi-backend/config"
	_ "shramsaathi-backend/docs" // Important for Swagger
	v1 "shramsaathi-backend/internal/delivery/http/v1"
	"shramsaathi-backend/internal/delivery/ws"
	"shramsaathi-backend/internal/domain"
	"shramsaathi-backend/internal/filter"
	"shramsaathi-backend/internal/repository/memory"
	"shramsaathi-backend/internal/repository/postgres"
	"shramsaathi-backend/internal/usecase"
	"shramsaathi-backend/pkg/audit"
	"shramsaathi-backend/pkg/auth"
	"shramsaathi-backend/pkg/database"
	"shramsaathi-backend/pkg/logger"
	"shramsaathi-backend/pkg/metrics"
	"shramsaathi-backend/pkg/redis"
	"shramsaathi-backend/pkg/validation"
)

type repositories struct {
	jobs     domain.JobRepository
	apps     domain.ApplicationRepository
	profiles domain.ProfileRepository
	chats    domain.ChatRepository
	store    usecase.Pinger
	close    func()
}

// @title           ShramSaathi API
// @version         1.0
// @description     Jobs, applications, profiles and chat for the ShramSaathi labour marketplace.
// @host            localhost:8083
// @BasePath        /api
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		logger.Log.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

// run owns every resource of the server, so its deferred cleanup (audit sync,
// store and Redis close) happens before main exits.
func run(cfg *config.Config) error {
	// 2. Setup Logger
	logger.Init(cfg.LogLevel)
	logger.Log.Info("Starting ShramSaathi backend", "port", cfg.Port, "store", cfg.StoreDriver)

	auditLog := audit.New("shramsaathi-backend", cfg.Environment)
	defer auditLog.Sync()

	var collector *metrics.Collector
	if cfg.MetricsEnabled {
		collector = metrics.NewCollector()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Setup Storage
	repos, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer repos.close()

	// 4. Setup Redis (optional: rate limiting falls back to memory, realtime stays local)
	var redisHealth usecase.Pinger
	if err := redis.Initialize(redis.Config{URL: cfg.UpstashRedisURL, Password: cfg.UpstashRedisPassword}); err != nil {
		if !errors.Is(err, redis.ErrNotConfigured) {
			logger.Log.Warn("Redis unavailable", "error", err)
		}
	} else {
		redisHealth = redis.Pinger{}
		defer redis.Close()
	}

	// 5. Setup UseCases
	validate := validation.New()
	tokens := auth.NewHMACIssuer(cfg.JWTSecret, cfg.TokenTTL)

	lockout := auth.NewLockout(auth.LockoutConfig{
		MaxAttempts:   cfg.LoginMaxAttempts,
		AttemptWindow: cfg.LoginAttemptWindow,
		BlockDuration: cfg.LoginBlockDuration,
	})
	authUC := usecase.NewAuthUsecase(repos.profiles, tokens, validate, auditLog, lockout)
	jobUC := usecase.NewJobUsecase(repos.jobs, validate)
	applicationUC := usecase.NewApplicationUsecase(repos.apps, repos.jobs, repos.profiles, validate, auditLog, collector)
	profileUC := usecase.NewProfileUsecase(repos.profiles, tokens, filter.NewEvaluator(), validate)
	chatUC := usecase.NewChatUsecase(repos.chats, repos.apps, repos.jobs, validate, collector)
	analyticsUC := usecase.NewAnalyticsUsecase(repos.apps, repos.jobs)

	health := map[string]usecase.Pinger{"store": repos.store}
	if redisHealth != nil {
		health["redis"] = redisHealth
	}
	healthUC := usecase.NewHealthUsecase(health)

	// 6. Setup Realtime Hub
	hubOpts := []ws.Option{ws.WithMetrics(collector)}
	if cfg.RealtimeBackplane {
		if c := redis.Client(); c != nil {
			hubOpts = append(hubOpts, ws.WithBackplane(ws.NewRedisBackplane(c, cfg.RealtimeChannel)))
			logger.Log.Info("Realtime backplane enabled", "channel", cfg.RealtimeChannel)
		} else {
			logger.Log.Warn("REALTIME_BACKPLANE set but Redis is unavailable; realtime stays instance-local")
		}
	}
	hub := ws.NewHub(chatUC, hubOpts...)
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		hub.Run(ctx)
	}()

	// 7. Setup Router
	router := v1.NewRouter(v1.RouterDeps{
		AuthUC:        authUC,
		JobUC:         jobUC,
		ApplicationUC: applicationUC,
		ProfileUC:     profileUC,
		ChatUC:        chatUC,
		AnalyticsUC:   analyticsUC,
		HealthUC:      healthUC,
		Tokens:        tokens,
		Audit:         auditLog,
		Metrics:       collector,
		Realtime:      ws.Handler(hub, cfg.Origins(), cfg.IsProduction()),
		Config:        cfg,
	})

	// 8. Start Server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("Listen failed", "error", err)
			stop()
		}
	}()

	// Graceful Shutdown
	<-ctx.Done()
	logger.Log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server forced to shutdown", "error", err)
	}
	<-hubDone

	logger.Log.Info("Server exiting")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (*repositories, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		logger.Log.Warn("Using the in-memory store; data is lost on restart")
		store := memory.NewStore()
		return &repositories{
			jobs:     store.Jobs(),
			apps:     store.Applications(),
			profiles: store.Profiles(),
			chats:    store.Chats(),
			store:    store,
			close:    func() {},
		}, nil
	}

	pool, err := database.NewPostgresConnection(ctx, cfg.DBUrl, postgres.Migrate)
	if err != nil {
		return nil, err
	}
	return &repositories{
		jobs:     postgres.NewJobRepository(pool),
		apps:     postgres.NewApplicationRepository(pool),
		profiles: postgres.NewProfileRepository(pool),
		chats:    postgres.NewChatRepository(pool),
		store:    database.Pinger{Pool: pool},
		close:    pool.Close,
	}, nil
}
