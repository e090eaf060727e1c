// Package main запускает HTTP-сервер сервиса приёма заявок.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nfsuisse/intake/internal/config"
	"github.com/nfsuisse/intake/internal/handler"
	"github.com/nfsuisse/intake/internal/mail"
	"github.com/nfsuisse/intake/internal/middleware"
	"github.com/nfsuisse/intake/internal/payment"
	"github.com/nfsuisse/intake/internal/repository"
	"github.com/nfsuisse/intake/internal/service"
	"github.com/nfsuisse/intake/internal/spam"
	"github.com/nfsuisse/intake/internal/storage"
	"github.com/nfsuisse/intake/internal/verification"
)

const (
	redisPingTimeout = 5 * time.Second
	shutdownTimeout  = 5 * time.Second
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := newRepository(cfg, logger)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	windows, codes, closeRedis, err := newStores(cfg, logger)
	if err != nil {
		sugar.Fatalw("redis initialization error", "error", err.Error())
	}
	defer closeRedis()

	checker, err := spam.NewChecker(spam.NewRateLimiter(windows, logger), prometheus.DefaultRegisterer)
	if err != nil {
		sugar.Fatalw("spam checker initialization error", "error", err.Error())
	}

	files, err := newFileHost(cfg, logger)
	if err != nil {
		sugar.Fatalw("file host initialization error", "error", err.Error())
	}

	svc := service.NewService(service.Deps{
		Repo:          repo,
		Spam:          checker,
		Verifier:      verification.NewManager(codes, logger),
		Payments:      newPaymentProvider(cfg, logger),
		Files:         files,
		Mailer:        newMailer(cfg, logger),
		Logger:        logger,
		OfficeEmail:   cfg.MailTo,
		PublicBaseURL: cfg.PublicBaseURL,
	})
	defer svc.Close()

	metrics, err := middleware.NewHTTPMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		sugar.Fatalw("metrics initialization error", "error", err.Error())
	}

	session := middleware.NewSessionAuth(cfg.SitePassword, cfg.SessionSecret)
	if cfg.SitePassword != "" && cfg.SessionSecret == "" {
		sugar.Warn("SESSION_SECRET is not set, sessions will not survive a restart")
	}
	if cfg.AdminPassword == "" {
		sugar.Warn("ADMIN_PASSWORD is not set, admin routes are closed")
	}

	h := handler.NewHandler(svc, logger, session, middleware.NewAdminAuth(cfg.AdminPassword)).
		WithMetrics(metrics, prometheus.DefaultGatherer)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Периодическая очистка окон ограничителя частоты и кодов подтверждения
	svc.StartCleanup(ctx, cfg.CleanupInterval)

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting intake server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

func newRepository(cfg *config.Config, logger *zap.Logger) (service.Repository, error) {
	if cfg.DatabaseURI == "" {
		logger.Warn("DATABASE_URI is not set, requests are kept in memory")
		return repository.NewMemoryRepository(), nil
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		return nil, err
	}
	logger.Info("using postgres repository")
	return repo, nil
}

func newStores(cfg *config.Config, logger *zap.Logger) (spam.WindowStore, verification.Store, func(), error) {
	if cfg.RedisAddr == "" {
		logger.Info("REDIS_ADDR is not set, rate limits and verification codes are kept in memory")
		return spam.NewMemoryWindowStore(), verification.NewMemoryStore(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("ping redis: %w", err)
	}

	logger.Info("using redis stores", zap.String("addr", cfg.RedisAddr))
	closeFn := func() {
		if err := client.Close(); err != nil {
			logger.Warn("close redis client error", zap.Error(err))
		}
	}
	return spam.NewRedisWindowStore(client, ""), verification.NewRedisStore(client, ""), closeFn, nil
}

func newPaymentProvider(cfg *config.Config, logger *zap.Logger) payment.Provider {
	if cfg.StripeSecretKey == "" {
		logger.Warn("STRIPE_SECRET_KEY is not set, payments run in demo mode")
		return payment.NewDemoProvider()
	}
	return payment.NewStripeProvider(cfg.StripeSecretKey, nil, logger)
}

func newFileHost(cfg *config.Config, logger *zap.Logger) (storage.FileHost, error) {
	if !cfg.CloudinaryEnabled() {
		logger.Warn("cloudinary is not configured, uploads are simulated")
		return storage.NewSimulatedHost(logger), nil
	}
	return storage.NewCloudinaryHost(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, logger)
}

func newMailer(cfg *config.Config, logger *zap.Logger) mail.Mailer {
	if cfg.ResendAPIKey == "" {
		logger.Warn("RESEND_API_KEY is not set, emails are logged and verification codes are returned to clients")
		return mail.NewLogMailer(logger)
	}
	return mail.NewResendMailer(cfg.ResendAPIKey, cfg.MailFrom, logger)
}
