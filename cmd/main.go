package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"

	"smartreply/internal/config"
	"smartreply/internal/infrastructure"
	"smartreply/internal/interfaces"
	httpapi "smartreply/internal/interfaces/http"
	"smartreply/internal/repository"
	"smartreply/internal/usecases"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting smartreply")

	pgClient, err := infrastructure.NewPostgresClient(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pgClient.Close()

	userRepo := repository.NewUserRepository(pgClient.Pool)
	messageRepo := repository.NewMessageRepository(pgClient.Pool)
	replyRepo := repository.NewReplyRepository(pgClient.Pool)
	metricsRepo := repository.NewMetricsRepository(pgClient.Pool)

	authUsecase := usecases.NewAuthUsecase(userRepo, cfg.JWTSecret)
	if err := authUsecase.EnsureAdmin(context.Background(), cfg.AdminUsername, cfg.AdminPassword); err != nil {
		logger.Warn("failed to ensure admin user", "error", err)
	}

	geminiClient := infrastructure.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel)

	var whatsapp interfaces.Messenger
	if cfg.WhatsAppEnabled() {
		whatsapp = infrastructure.NewTwilioClient(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppNumber)
		logger.Info("whatsapp channel enabled")
	}

	var mail interfaces.MailClient
	if cfg.GmailEnabled() {
		mail = infrastructure.NewGmailClient(cfg.GmailClientID, cfg.GmailClientSecret, cfg.GmailRefreshToken)
		logger.Info("email channel enabled")
	}

	replyService := usecases.NewReplyService(geminiClient, whatsapp, mail, messageRepo, replyRepo, metricsRepo, logger)

	middleware := httpapi.NewMiddleware(cfg.JWTSecret)
	r := gin.Default()
	httpapi.SetupRoutes(r, replyService, authUsecase, metricsRepo, cfg, middleware, logger)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}

func setupLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = tint.NewHandler(os.Stdout, &tint.Options{Level: lvl})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
