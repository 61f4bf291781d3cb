package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/megahubhq/megahub-backend/internal/slots"
	"github.com/megahubhq/megahub-backend/pkg/logger"
)

type companyLister interface {
	ActiveIDs(ctx context.Context) ([]uuid.UUID, error)
}

type slotRefresher interface {
	RefreshCounts(ctx context.Context, companyID uuid.UUID) (*slots.UsageDTO, error)
}

// SlotReconcileJobParams configures the allocation drift sweep.
type SlotReconcileJobParams struct {
	Logger    *logger.Logger
	Companies companyLister
	Slots     slotRefresher
	Now       func() time.Time
}

// NewSlotReconcileJob builds the job that recounts live brands and active
// users per company and realigns the cached slot counters.
func NewSlotReconcileJob(params SlotReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Companies == nil {
		return nil, fmt.Errorf("company repository required")
	}
	if params.Slots == nil {
		return nil, fmt.Errorf("slots service required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &slotReconcileJob{
		logg:      params.Logger,
		companies: params.Companies,
		slots:     params.Slots,
		now:       now,
	}, nil
}

type slotReconcileJob struct {
	logg      *logger.Logger
	companies companyLister
	slots     slotRefresher
	now       func() time.Time
}

func (j *slotReconcileJob) Name() string { return "slot-reconcile" }

func (j *slotReconcileJob) Run(ctx context.Context) error {
	ids, err := j.companies.ActiveIDs(ctx)
	if err != nil {
		return fmt.Errorf("list active companies: %w", err)
	}

	var errs error
	reconciled := 0
	for _, id := range ids {
		if _, err := j.slots.RefreshCounts(ctx, id); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("reconcile company %s: %w", id, err))
			continue
		}
		reconciled++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"companies":  len(ids),
		"reconciled": reconciled,
	})
	j.logg.Info(logCtx, "slot reconcile loop complete")
	return errs
}
