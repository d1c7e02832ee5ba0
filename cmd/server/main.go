package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hugh/go-accounts/internal/api"
	"github.com/hugh/go-accounts/internal/auth"
	"github.com/hugh/go-accounts/internal/authz"
	"github.com/hugh/go-accounts/internal/database"
	"github.com/hugh/go-accounts/internal/tasks"
	"github.com/hugh/go-accounts/internal/users"
	"github.com/hugh/go-accounts/pkg/config"
	"github.com/hugh/go-accounts/pkg/queue"
	"github.com/hugh/go-accounts/pkg/util"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := util.NewLogger(cfg.Server.Env, cfg.Server.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting accounts server",
		"env", cfg.Server.Env,
		"addr", cfg.Server.Addr(),
	)

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := database.AutoMigrate(db); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	// Redis is optional for the API: without it permissions are read from
	// the database on every request.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Warn("failed to connect to Redis", "error", err)
		redisClient.Close()
		redisClient = nil
	}

	// Verification emails are enqueued even when the ping failed; asynq
	// reports enqueue errors per call and the user service only logs them.
	asynqClient := queue.NewClient(&cfg.Redis)

	uows := database.NewFactory(db)
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry())
	authService := auth.NewService(uows, jwtService)

	permissions := authz.NewCachedResolver(authz.NewDBResolver(uows), redisClient, cfg.Authz.CacheTTL(), logger)
	checker := authz.NewChecker(permissions)

	userService := users.NewService(uows, tasks.NewDispatcher(asynqClient), permissions, logger, users.Options{
		DispatchTimeout:     cfg.Mail.DispatchTimeout(),
		DispatchConcurrency: cfg.Mail.DispatchConcurrency,
	})

	router := api.NewRouter(api.RouterConfig{
		DB:             db,
		Redis:          redisClient,
		Logger:         logger,
		JWTService:     jwtService,
		AuthService:    authService,
		UserService:    userService,
		Checker:        checker,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		RateLimitReqs:  cfg.RateLimit.Requests,
		RateLimitSecs:  cfg.RateLimit.WindowSeconds,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	router.Close()

	// Let in-flight verification dispatches finish before the queue closes.
	userService.Wait()
	asynqClient.Close()

	if redisClient != nil {
		redisClient.Close()
	}

	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("server stopped")
}
