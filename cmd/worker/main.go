package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/megahubhq/megahub-backend/internal/billing"
	"github.com/megahubhq/megahub-backend/internal/slots"
	"github.com/megahubhq/megahub-backend/internal/tasks"
	"github.com/megahubhq/megahub-backend/pkg/config"
	"github.com/megahubhq/megahub-backend/pkg/db"
	pkgerrors "github.com/megahubhq/megahub-backend/pkg/errors"
	"github.com/megahubhq/megahub-backend/pkg/logger"
	"github.com/megahubhq/megahub-backend/pkg/migrate"
	"github.com/megahubhq/megahub-backend/pkg/outbox"
	"github.com/megahubhq/megahub-backend/pkg/redis"
)

// Task types the worker knows how to execute.
const (
	taskSlotReconcile     = "company.slot_reconcile"
	taskSubscriptionRenew = "billing.subscription_renew"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
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

	worker, err := tasks.NewWorker(tasks.WorkerParams{
		Logger:       logg,
		DB:           dbClient,
		WorkerID:     os.Getenv("WORKER_ID"),
		PollInterval: cfg.Worker.TaskPollInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create task worker", err)
		os.Exit(1)
	}

	worker.Register(taskSlotReconcile, slotReconcileHandler(slotService))
	worker.Register(taskSubscriptionRenew, subscriptionRenewHandler(billingService))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting task worker")

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "task worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "task worker shutting down gracefully")
}

func slotReconcileHandler(svc slots.Service) tasks.Handler {
	return func(ctx context.Context, task *tasks.Execution) error {
		companyID, err := companyFromTask(task)
		if err != nil {
			return err
		}
		_, err = svc.RefreshCounts(ctx, companyID)
		return err
	}
}

func subscriptionRenewHandler(svc billing.Service) tasks.Handler {
	return func(ctx context.Context, task *tasks.Execution) error {
		var payload struct {
			SubscriptionID uuid.UUID `json:"subscription_id"`
		}
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode task payload")
		}
		if payload.SubscriptionID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "subscription_id is required")
		}
		_, err := svc.Renew(ctx, payload.SubscriptionID, time.Now().UTC())
		return err
	}
}

func companyFromTask(task *tasks.Execution) (uuid.UUID, error) {
	if task.CompanyID != nil {
		return *task.CompanyID, nil
	}
	var payload struct {
		CompanyID uuid.UUID `json:"company_id"`
	}
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode task payload")
	}
	if payload.CompanyID == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "company_id is required")
	}
	return payload.CompanyID, nil
}
