package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/go-accounts/internal/database"
	"github.com/hugh/go-accounts/internal/mail"
	"github.com/hugh/go-accounts/internal/tasks"
	"github.com/hugh/go-accounts/pkg/config"
	"github.com/hugh/go-accounts/pkg/queue"
	"github.com/hugh/go-accounts/pkg/util"
	"github.com/joho/godotenv"
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

	logger.Info("starting accounts worker")

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	var sender mail.Sender
	if cfg.Mail.SMTPHost != "" {
		sender = mail.NewSMTPSender(mail.SMTPConfig{
			Addr:     cfg.Mail.SMTPAddr(),
			Username: cfg.Mail.SMTPUsername,
			Password: cfg.Mail.SMTPPassword,
			From:     cfg.Mail.From,
		})
	} else {
		logger.Warn("MAIL_SMTP_HOST not set, verification emails will only be logged")
		sender = mail.NewLogSender(logger)
	}

	handler := tasks.NewHandler(database.NewFactory(db), sender, tasks.VerificationSettings{
		SiteName: cfg.Mail.SiteName,
		BaseURL:  cfg.Mail.BaseURL,
		Expiry:   cfg.Mail.VerificationExpiry(),
	}, logger)

	mux := asynq.NewServeMux()
	handler.RegisterHandlers(mux)

	srv := queue.NewServer(&cfg.Redis, cfg.Worker.Concurrency)

	// Periodic sweep of expired verification tokens
	sweepCron := cfg.Worker.VerificationSweep
	if err := util.ValidateCronExpr(sweepCron); err != nil {
		logger.Error("invalid verification sweep schedule", "cron", sweepCron, "error", err)
		os.Exit(1)
	}
	scheduler := queue.NewScheduler(&cfg.Redis)
	if _, err := scheduler.Register(sweepCron, tasks.NewVerificationSweepTask(), asynq.Queue(queue.QueueLow)); err != nil {
		logger.Error("failed to register verification sweep", "error", err)
		os.Exit(1)
	}
	if next, err := util.NextCronTime(sweepCron, time.Now()); err == nil {
		logger.Info("verification sweep scheduled", "cron", sweepCron, "next_run", next)
	}
	if err := scheduler.Start(); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("shutting down worker...")
		scheduler.Shutdown()
		srv.Shutdown()
		cancel()
	}()

	logger.Info("worker started, waiting for tasks...")

	if err := srv.Run(mux); err != nil {
		logger.Error("worker error", "error", err)
	}

	<-ctx.Done()

	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("worker stopped")
}
