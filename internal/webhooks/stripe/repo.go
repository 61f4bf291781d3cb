package stripewebhook

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/megahubhq/megahub-backend/pkg/db"
	"github.com/megahubhq/megahub-backend/pkg/db/models"
	"github.com/megahubhq/megahub-backend/pkg/enums"
	pkgerrors "github.com/megahubhq/megahub-backend/pkg/errors"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) FindByEventID(ctx context.Context, eventID string) (*models.StripeWebhookEvent, error) {
	var row models.StripeWebhookEvent
	err := r.db.WithContext(ctx).First(&row, "event_id = ?", eventID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find webhook event")
	}
	return &row, nil
}

// InsertPending records a fresh delivery. A concurrent duplicate loses the
// race on the event_id unique index and is reported as a replay.
func (r *Repository) InsertPending(ctx context.Context, row *models.StripeWebhookEvent) error {
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		if db.IsUniqueViolation(err, "event_id") {
			return pkgerrors.Wrap(pkgerrors.CodeEventReplay, err, "event already recorded")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record webhook event")
	}
	return nil
}

// ClaimProcessing flips a pending or failed event to processing. The
// guarded update keeps two workers from processing the same row.
func (r *Repository) ClaimProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.StripeWebhookEvent{}).
		Where("id = ? AND status IN ?", id, []enums.WebhookEventStatus{
			enums.WebhookEventStatusPending,
			enums.WebhookEventStatusFailed,
		}).
		Update("status", enums.WebhookEventStatusProcessing)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "claim webhook event")
	}
	return res.RowsAffected == 1, nil
}

func (r *Repository) MarkProcessed(ctx context.Context, row *models.StripeWebhookEvent, at time.Time) error {
	row.Status = enums.WebhookEventStatusProcessed
	row.ProcessedAt = &at
	row.LastError = nil
	row.NextRetryAt = nil
	if err := r.db.WithContext(ctx).Save(row).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark webhook processed")
	}
	return nil
}

func (r *Repository) MarkIgnored(ctx context.Context, row *models.StripeWebhookEvent, at time.Time) error {
	row.Status = enums.WebhookEventStatusIgnored
	row.ProcessedAt = &at
	if err := r.db.WithContext(ctx).Save(row).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark webhook ignored")
	}
	return nil
}

func (r *Repository) MarkFailed(ctx context.Context, row *models.StripeWebhookEvent, handlerErr error, nextRetry *time.Time) error {
	msg := handlerErr.Error()
	row.Status = enums.WebhookEventStatusFailed
	row.RetryCount++
	row.LastError = &msg
	row.NextRetryAt = nextRetry
	if err := r.db.WithContext(ctx).Save(row).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark webhook failed")
	}
	return nil
}

// Retryable returns failed events that still have retry budget and whose
// backoff window has passed.
func (r *Repository) Retryable(ctx context.Context, now time.Time, limit int) ([]models.StripeWebhookEvent, error) {
	var rows []models.StripeWebhookEvent
	err := r.db.WithContext(ctx).
		Where("status = ? AND retry_count < ? AND (next_retry_at IS NULL OR next_retry_at <= ?)",
			enums.WebhookEventStatusFailed, maxRetries, now).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list retryable webhooks")
	}
	return rows, nil
}
