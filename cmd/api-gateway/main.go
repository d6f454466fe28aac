package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-admission-api/api/swagger"
	"github.com/noah-isme/sma-admission-api/internal/handler"
	"github.com/noah-isme/sma-admission-api/internal/repository"
	"github.com/noah-isme/sma-admission-api/internal/server"
	"github.com/noah-isme/sma-admission-api/internal/service"
	"github.com/noah-isme/sma-admission-api/pkg/cache"
	"github.com/noah-isme/sma-admission-api/pkg/config"
	"github.com/noah-isme/sma-admission-api/pkg/database"
	"github.com/noah-isme/sma-admission-api/pkg/jobs"
	"github.com/noah-isme/sma-admission-api/pkg/logger"
)

// @title SMA Admission API
// @version 1.0.0
// @description Academic calendar, e-voucher ledger and admission workflow.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect redis", zap.Error(err))
	}
	defer redisClient.Close() //nolint:errcheck

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	calendarRepo := repository.NewCalendarRepository(db)
	voucherRepo := repository.NewVoucherRepository(db)
	admissionRepo := repository.NewAdmissionRepository(db)
	classRepo := repository.NewClassRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Calendar.CacheTTL, logr, cfg.Calendar.CacheEnabled)
	authSvc := service.NewAuthService(logr, service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})

	sessions := service.NewSessionBroker(voucherRepo, service.SessionBrokerConfig{
		Secret: cfg.Vouchers.SessionSecret,
		TTL:    cfg.Vouchers.SessionTTL,
	}, logr)

	voucherSvc := service.NewVoucherService(voucherRepo, calendarRepo, sessions, cacheSvc, metricsSvc, validate, logr, service.VoucherServiceConfig{
		NumberLength:      cfg.Vouchers.NumberLength,
		PINLength:         cfg.Vouchers.PINLength,
		PINHashCost:       cfg.Vouchers.PINHashCost,
		MaxBatch:          cfg.Vouchers.MaxBatch,
		VerifyMaxAttempts: cfg.Vouchers.VerifyMaxAttempts,
		VerifyWindow:      cfg.Vouchers.VerifyWindow,
	})

	calendarSvc := service.NewCalendarService(calendarRepo, cacheSvc, cfg.Calendar.CacheTTL, validate, logr)

	notifyQueue := jobs.NewQueue("admission-notifications", service.NotificationJobHandler(service.NewLogNotifier(logr)), jobs.QueueConfig{
		Workers:    cfg.Admissions.NotifyWorkers,
		MaxRetries: cfg.Admissions.NotifyRetries,
		JobTimeout: cfg.Admissions.ExternalTimeout,
		Logger:     logr,
	})
	notifyQueue.Start(ctx)
	defer notifyQueue.Stop()

	admissionSvc := service.NewAdmissionService(service.AdmissionServiceParams{
		Store:     admissionRepo,
		Calendar:  calendarRepo,
		Classes:   classRepo,
		Sessions:  sessions,
		Vouchers:  voucherSvc,
		Allocator: service.SequenceIndexAllocator{Prefix: cfg.Admissions.IndexPrefix},
		Notifier:  service.NewNotificationService(notifyQueue, logr),
		Metrics:   metricsSvc,
		Logger:    logr,
		Config: service.AdmissionServiceConfig{
			ExternalTimeout: cfg.Admissions.ExternalTimeout,
		},
	})

	service.NewReservationReaper(voucherSvc, cfg.Vouchers.CleanupInterval, logr).Start(ctx)

	router := server.NewRouter(server.RouterDeps{
		Config:  cfg,
		Logger:  logr,
		Tokens:  authSvc,
		Audit:   auditRepo,
		Metrics: metricsSvc,
	}, server.Handlers{
		Calendar:  handler.NewCalendarHandler(calendarSvc),
		Vouchers:  handler.NewVoucherHandler(voucherSvc, sessions),
		Admission: handler.NewAdmissionHandler(admissionSvc),
		Metrics: handler.NewMetricsHandler(metricsSvc, map[string]handler.Pinger{
			"postgres": handler.PingFunc(db.PingContext),
			"redis": handler.PingFunc(func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			}),
		}),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logr.Error("server failed", zap.Error(err))
		}
	case <-ctx.Done():
		logr.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
