package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/megahubhq/megahub-backend/pkg/logger"
)

const defaultWebhookRetryBatch = 50

type webhookRetrier interface {
	Retry(ctx context.Context, now time.Time, limit int) (int, error)
}

// WebhookRetryJobParams configures the failed-delivery replay job.
type WebhookRetryJobParams struct {
	Logger   *logger.Logger
	Webhooks webhookRetrier
	Batch    int
	Now      func() time.Time
}

// NewWebhookRetryJob builds the job that reprocesses failed Stripe
// deliveries once their backoff has elapsed.
func NewWebhookRetryJob(params WebhookRetryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Webhooks == nil {
		return nil, fmt.Errorf("webhook service required")
	}
	batch := params.Batch
	if batch <= 0 {
		batch = defaultWebhookRetryBatch
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &webhookRetryJob{
		logg:     params.Logger,
		webhooks: params.Webhooks,
		batch:    batch,
		now:      now,
	}, nil
}

type webhookRetryJob struct {
	logg     *logger.Logger
	webhooks webhookRetrier
	batch    int
	now      func() time.Time
}

func (j *webhookRetryJob) Name() string { return "webhook-retry" }

func (j *webhookRetryJob) Run(ctx context.Context) error {
	processed, err := j.webhooks.Retry(ctx, j.now().UTC(), j.batch)
	if err != nil {
		return fmt.Errorf("retry webhook events: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"processed": processed})
	j.logg.Info(logCtx, "webhook retry loop complete")
	return nil
}
