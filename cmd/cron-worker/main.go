package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/megahubhq/megahub-backend/internal/billing"
	"github.com/megahubhq/megahub-backend/internal/companies"
	"github.com/megahubhq/megahub-backend/internal/cron"
	"github.com/megahubhq/megahub-backend/internal/slots"
	stripewebhooks "github.com/megahubhq/megahub-backend/internal/webhooks/stripe"
	"github.com/megahubhq/megahub-backend/pkg/config"
	"github.com/megahubhq/megahub-backend/pkg/db"
	"github.com/megahubhq/megahub-backend/pkg/logger"
	"github.com/megahubhq/megahub-backend/pkg/metrics"
	"github.com/megahubhq/megahub-backend/pkg/migrate"
	"github.com/megahubhq/megahub-backend/pkg/outbox"
	"github.com/megahubhq/megahub-backend/pkg/redis"
	"github.com/megahubhq/megahub-backend/pkg/stripe"
)

const lockKeyFormat = "mh:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	ledger := slots.NewLedger(outboxSvc)

	slotService, err := slots.NewService(dbClient, ledger)
	if err != nil {
		logg.Error(context.Background(), "failed to create slot service", err)
		os.Exit(1)
	}

	billingLocks, err := billing.NewRedisLocks(redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create billing locks", err)
		os.Exit(1)
	}
	billingService, err := billing.NewService(billing.ServiceParams{
		DB:      dbClient,
		Locks:   billingLocks,
		Billing: cfg.Billing,
		Events:  outboxSvc,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create billing service", err)
		os.Exit(1)
	}

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe client", err)
		os.Exit(1)
	}
	webhookService, err := stripewebhooks.NewService(stripewebhooks.ServiceParams{
		DB:       dbClient,
		Verifier: stripeClient,
		Billing:  billingService,
		Metrics:  metrics.NewWebhookMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	billingJob, err := cron.NewBillingCycleJob(cron.BillingCycleJobParams{
		Logger:  logg,
		Billing: billingService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create billing cycle job", err)
		os.Exit(1)
	}
	webhookJob, err := cron.NewWebhookRetryJob(cron.WebhookRetryJobParams{
		Logger:   logg,
		Webhooks: webhookService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook retry job", err)
		os.Exit(1)
	}
	slotJob, err := cron.NewSlotReconcileJob(cron.SlotReconcileJobParams{
		Logger:    logg,
		Companies: companies.NewRepository(dbClient.DB()),
		Slots:     slotService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create slot reconcile job", err)
		os.Exit(1)
	}
	outboxJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outbox.NewRepository(dbClient.DB()),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(billingJob, webhookJob, slotJob, outboxJob)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Worker.CronInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
