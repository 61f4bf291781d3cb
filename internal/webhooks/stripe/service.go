package stripewebhook

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/megahubhq/megahub-backend/pkg/db"
	"github.com/megahubhq/megahub-backend/pkg/db/models"
	"github.com/megahubhq/megahub-backend/pkg/enums"
	pkgerrors "github.com/megahubhq/megahub-backend/pkg/errors"
	"github.com/megahubhq/megahub-backend/pkg/metrics"
)

const maxRetries = 3

// EventVerifier checks the Stripe-Signature header and parses the payload.
// Satisfied by pkg/stripe.Client.
type EventVerifier interface {
	VerifyEvent(payload []byte, signatureHeader string) (stripe.Event, error)
}

// billingTransitions is the slice of the billing service the handlers
// mutate canonical entities through.
type billingTransitions interface {
	ApplyStatus(ctx context.Context, id uuid.UUID, status enums.SubscriptionStatus, now time.Time) error
	MarkInvoicePaid(ctx context.Context, invoiceID uuid.UUID, paidAt time.Time) error
}

// IngestResult is what the webhook endpoint reports back to Stripe. The
// endpoint answers 200 for everything except a bad signature, so handler
// failures surface here rather than in the HTTP status.
type IngestResult struct {
	EventID   string                   `json:"event_id"`
	EventType string                   `json:"event_type"`
	Status    enums.WebhookEventStatus `json:"status"`
	Replayed  bool                     `json:"replayed"`
}

type Service interface {
	Ingest(ctx context.Context, payload []byte, signatureHeader string) (*IngestResult, error)
	Retry(ctx context.Context, now time.Time, limit int) (int, error)
}

type ServiceParams struct {
	DB       *db.Client
	Verifier EventVerifier
	Billing  billingTransitions
	Guard    *IdempotencyGuard
	Metrics  *metrics.WebhookMetrics
}

type service struct {
	db       *db.Client
	verifier EventVerifier
	billing  billingTransitions
	guard    *IdempotencyGuard
	metrics  *metrics.WebhookMetrics
}

func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "database client required")
	}
	if params.Verifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "event verifier required")
	}
	if params.Billing == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "billing service required")
	}
	return &service{
		db:       params.DB,
		verifier: params.Verifier,
		billing:  params.Billing,
		guard:    params.Guard,
		metrics:  params.Metrics,
	}, nil
}

// Ingest verifies, records and processes one delivery. A delivery whose
// event id was already processed is acknowledged without touching anything.
func (s *service) Ingest(ctx context.Context, payload []byte, signatureHeader string) (*IngestResult, error) {
	event, err := s.verifier.VerifyEvent(payload, signatureHeader)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStripeSignature, err, "webhook signature verification failed")
	}
	s.metrics.IncReceived(string(event.Type))

	// redis fast path; the DB unique index below stays authoritative
	if s.guard != nil {
		if seen, guardErr := s.guard.CheckAndMark(ctx, event.ID); guardErr == nil && seen {
			if replay := s.replayResult(ctx, &event); replay != nil {
				return replay, nil
			}
		}
	}

	repo := NewRepository(s.db.DB())
	row, err := repo.FindByEventID(ctx, event.ID)
	if err != nil {
		return nil, err
	}
	if row != nil {
		switch row.Status {
		case enums.WebhookEventStatusProcessed, enums.WebhookEventStatusIgnored:
			s.metrics.IncReplayed()
			return &IngestResult{EventID: event.ID, EventType: string(event.Type), Status: row.Status, Replayed: true}, nil
		case enums.WebhookEventStatusProcessing:
			// another worker owns it; acknowledge
			return &IngestResult{EventID: event.ID, EventType: string(event.Type), Status: row.Status, Replayed: true}, nil
		}
	} else {
		row = &models.StripeWebhookEvent{
			ID:        uuid.New(),
			EventID:   event.ID,
			EventType: string(event.Type),
			Status:    enums.WebhookEventStatusPending,
			Payload:   json.RawMessage(payload),
		}
		if err := repo.InsertPending(ctx, row); err != nil {
			if appErr := pkgerrors.As(err); appErr != nil && appErr.Code() == pkgerrors.CodeEventReplay {
				// lost the insert race to a concurrent delivery
				s.metrics.IncReplayed()
				return &IngestResult{EventID: event.ID, EventType: string(event.Type), Status: enums.WebhookEventStatusPending, Replayed: true}, nil
			}
			return nil, err
		}
	}

	status := s.process(ctx, repo, row, &event)
	return &IngestResult{EventID: event.ID, EventType: string(event.Type), Status: status}, nil
}

// Retry reprocesses failed events whose backoff has elapsed.
func (s *service) Retry(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 50
	}
	repo := NewRepository(s.db.DB())
	rows, err := repo.Retryable(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	processed := 0
	for i := range rows {
		row := &rows[i]
		var event stripe.Event
		if err := json.Unmarshal(row.Payload, &event); err != nil {
			if markErr := repo.MarkFailed(ctx, row, err, nil); markErr != nil {
				return processed, markErr
			}
			continue
		}
		if s.process(ctx, repo, row, &event) == enums.WebhookEventStatusProcessed {
			processed++
		}
	}
	return processed, nil
}

// process claims the row, dispatches its handler and records the outcome.
func (s *service) process(ctx context.Context, repo *Repository, row *models.StripeWebhookEvent, event *stripe.Event) enums.WebhookEventStatus {
	claimed, err := repo.ClaimProcessing(ctx, row.ID)
	if err != nil || !claimed {
		return row.Status
	}
	row.Status = enums.WebhookEventStatusProcessing
	started := time.Now()

	handler, ok := s.handlers()[event.Type]
	if !ok {
		if err := repo.MarkIgnored(ctx, row, time.Now().UTC()); err != nil {
			return row.Status
		}
		s.metrics.IncProcessed(string(event.Type), "ignored")
		return enums.WebhookEventStatusIgnored
	}

	if handlerErr := handler(ctx, s.db.DB(), event); handlerErr != nil {
		next := time.Now().UTC().Add(retryBackoff(row.RetryCount))
		_ = repo.MarkFailed(ctx, row, handlerErr, &next)
		s.metrics.IncProcessed(string(event.Type), "failed")
		s.metrics.ObserveDuration(string(event.Type), time.Since(started))
		return enums.WebhookEventStatusFailed
	}

	if err := repo.MarkProcessed(ctx, row, time.Now().UTC()); err != nil {
		return row.Status
	}
	s.metrics.IncProcessed(string(event.Type), "processed")
	s.metrics.ObserveDuration(string(event.Type), time.Since(started))
	return enums.WebhookEventStatusProcessed
}

func (s *service) replayResult(ctx context.Context, event *stripe.Event) *IngestResult {
	row, err := NewRepository(s.db.DB()).FindByEventID(ctx, event.ID)
	if err != nil || row == nil {
		return nil
	}
	if row.Status != enums.WebhookEventStatusProcessed && row.Status != enums.WebhookEventStatusIgnored {
		return nil
	}
	s.metrics.IncReplayed()
	return &IngestResult{EventID: event.ID, EventType: string(event.Type), Status: row.Status, Replayed: true}
}

// retryBackoff doubles per attempt: 1m, 2m, 4m.
func retryBackoff(retryCount int) time.Duration {
	return time.Minute << retryCount
}
