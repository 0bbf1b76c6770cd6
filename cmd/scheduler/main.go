package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ErlanBelekov/birthday-campaign/config"
	"github.com/ErlanBelekov/birthday-campaign/internal/email"
	"github.com/ErlanBelekov/birthday-campaign/internal/health"
	"github.com/ErlanBelekov/birthday-campaign/internal/infrastructure/postgres"
	"github.com/ErlanBelekov/birthday-campaign/internal/lock"
	ctxlog "github.com/ErlanBelekov/birthday-campaign/internal/log"
	"github.com/ErlanBelekov/birthday-campaign/internal/metrics"
	"github.com/ErlanBelekov/birthday-campaign/internal/scheduler"
	"github.com/ErlanBelekov/birthday-campaign/internal/usecase"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := ctxlog.New(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MigrateOnStart {
		if err := postgres.Migrate(cfg.DatabaseURL, postgres.Up, logger); err != nil {
			log.Fatalf("migrate: %v", err)
		}
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, max(cfg.DBMaxConns, int32(cfg.WorkerCount)+2))
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	logger.Info("db connected")

	deps := map[string]health.Pinger{"postgres": pool}

	var locker lock.Locker = lock.NoopLocker{}
	if cfg.RedisURL != "" {
		rdb, err := lock.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer rdb.Close()
		redisLocker := lock.NewRedisLocker(rdb)
		locker = redisLocker
		deps["redis"] = redisLocker
		logger.Info("redis connected, run lock enabled")
	} else {
		logger.Warn("REDIS_URL not set, run lock disabled; run a single scheduler instance")
	}

	metrics.Register()
	checker := health.NewChecker(deps, logger, prometheus.DefaultRegisterer)

	sender, err := email.NewSender(email.Options{
		Env:           cfg.Env,
		Provider:      cfg.EmailProvider,
		From:          cfg.EmailFrom,
		ResendAPIKey:  cfg.ResendAPIKey,
		MailgunDomain: cfg.MailgunDomain,
		MailgunAPIKey: cfg.MailgunAPIKey,
	}, logger)
	if err != nil {
		log.Fatalf("email: %v", err)
	}

	userRepo := postgres.NewUserRepository(pool)
	discountRepo := postgres.NewDiscountRepository(pool)
	productRepo := postgres.NewProductRepository(pool)

	ledger := usecase.NewDiscountLedger(discountRepo, logger)
	gate := usecase.NewNotificationGate(userRepo, ledger, cfg.WindowDays, logger)

	campaign := scheduler.NewCampaign(userRepo, productRepo, ledger, gate, sender, locker,
		scheduler.Config{
			WindowDays:   cfg.WindowDays,
			Workers:      cfg.WorkerCount,
			SendTimeout:  cfg.SendTimeout(),
			StoreTimeout: cfg.StoreTimeout(),
			LockTTL:      cfg.RunLockTTL,
			Brand:        cfg.BrandName,
		}, logger)

	trigger := scheduler.NewTrigger(campaign, cfg.CampaignSchedule, cfg.Location(), cfg.RunOnStart, logger)

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	triggerErr := make(chan error, 1)
	go func() { triggerErr <- trigger.Start(ctx) }()

	select {
	case <-ctx.Done():
		<-triggerErr
	case err := <-triggerErr:
		logger.Error("trigger", "error", err)
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	logger.Info("scheduler shut down")
}
