package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/megahubhq/megahub-backend/pkg/logger"
)

const defaultBillingBatch = 100

// billingLifecycle is the slice of the billing service the cycle job drives.
type billingLifecycle interface {
	RenewDue(ctx context.Context, now time.Time, limit int) (int, error)
	ExpireTrials(ctx context.Context, now time.Time, limit int) (int, error)
	SweepOverdue(ctx context.Context, now time.Time, limit int) (int, error)
}

// BillingCycleJobParams configures the scheduled billing work.
type BillingCycleJobParams struct {
	Logger  *logger.Logger
	Billing billingLifecycle
	Batch   int
	Now     func() time.Time
}

// NewBillingCycleJob constructs the subscription lifecycle cron job. Each run
// renews lapsed periods, activates lapsed trials and sweeps overdue invoices.
func NewBillingCycleJob(params BillingCycleJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Billing == nil {
		return nil, fmt.Errorf("billing service required")
	}
	batch := params.Batch
	if batch <= 0 {
		batch = defaultBillingBatch
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &billingCycleJob{
		logg:    params.Logger,
		billing: params.Billing,
		batch:   batch,
		now:     now,
	}, nil
}

type billingCycleJob struct {
	logg    *logger.Logger
	billing billingLifecycle
	batch   int
	now     func() time.Time
}

func (j *billingCycleJob) Name() string { return "billing-cycle" }

func (j *billingCycleJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	var errs []error

	renewed, err := j.billing.RenewDue(ctx, now, j.batch)
	if err != nil {
		errs = append(errs, fmt.Errorf("renew due subscriptions: %w", err))
	}

	activated, err := j.billing.ExpireTrials(ctx, now, j.batch)
	if err != nil {
		errs = append(errs, fmt.Errorf("expire trials: %w", err))
	}

	swept, err := j.billing.SweepOverdue(ctx, now, j.batch)
	if err != nil {
		errs = append(errs, fmt.Errorf("sweep overdue invoices: %w", err))
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"renewed":          renewed,
		"trials_activated": activated,
		"invoices_swept":   swept,
	})
	j.logg.Info(logCtx, "billing cycle complete")
	return multierr.Combine(errs...)
}
