package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/megahubhq/megahub-backend/pkg/enums"
)

// StripeCustomer mirrors the Stripe customer object for a company. Mirror
// rows are written only by the webhook ingestor and the billing service;
// Stripe remains the source of truth for payment state.
type StripeCustomer struct {
	ID               uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	CompanyID        uuid.UUID `gorm:"column:company_id;type:uuid;not null;uniqueIndex"`
	StripeCustomerID string    `gorm:"column:stripe_customer_id;not null;uniqueIndex"`
	Email            string    `gorm:"column:email"`
	Name             string    `gorm:"column:name"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// StripeSubscription mirrors the remote subscription state, keyed by the
// Stripe subscription id.
type StripeSubscription struct {
	ID                   uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	CompanyID            uuid.UUID  `gorm:"column:company_id;type:uuid;not null;index"`
	StripeSubscriptionID string     `gorm:"column:stripe_subscription_id;not null;uniqueIndex"`
	StripePriceID        string     `gorm:"column:stripe_price_id"`
	Status               string     `gorm:"column:status;not null"`
	CurrentPeriodStart   *time.Time `gorm:"column:current_period_start"`
	CurrentPeriodEnd     *time.Time `gorm:"column:current_period_end"`
	CancelAtPeriodEnd    bool       `gorm:"column:cancel_at_period_end;not null;default:false"`
	CreatedAt            time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// StripePaymentMethod mirrors an attached payment method.
type StripePaymentMethod struct {
	ID                    uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	CompanyID             uuid.UUID `gorm:"column:company_id;type:uuid;not null;index"`
	StripePaymentMethodID string    `gorm:"column:stripe_payment_method_id;not null;uniqueIndex"`
	Type                  string    `gorm:"column:type;not null"`
	CardBrand             string    `gorm:"column:card_brand"`
	CardLast4             string    `gorm:"column:card_last4"`
	CardExpMonth          int       `gorm:"column:card_exp_month"`
	CardExpYear           int       `gorm:"column:card_exp_year"`
	IsDefault             bool      `gorm:"column:is_default;not null;default:false"`
	CreatedAt             time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// StripeWebhookEvent records every webhook delivery. The unique index on
// EventID is the replay guard: a second insert for the same Stripe event id
// fails and the delivery is acknowledged without reprocessing.
type StripeWebhookEvent struct {
	ID          uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	EventID     string                   `gorm:"column:event_id;not null;uniqueIndex"`
	EventType   string                   `gorm:"column:event_type;not null;index"`
	Status      enums.WebhookEventStatus `gorm:"column:status;type:webhook_event_status;not null;default:'pending'"`
	Payload     json.RawMessage          `gorm:"column:payload;type:jsonb;not null"`
	RetryCount  int                      `gorm:"column:retry_count;not null;default:0"`
	LastError   *string                  `gorm:"column:last_error"`
	ProcessedAt *time.Time               `gorm:"column:processed_at"`
	NextRetryAt *time.Time               `gorm:"column:next_retry_at"`
	CreatedAt   time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
