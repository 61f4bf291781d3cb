package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/megahubhq/megahub-backend/pkg/enums"
)

// UsageAlertEvent is emitted when a slot usage alert is raised or resolved.
type UsageAlertEvent struct {
	CompanyID uuid.UUID            `json:"company_id"`
	Kind      enums.UsageAlertKind `json:"kind"`
	Message   string               `json:"message"`
}

// SubscriptionEvent carries a subscription lifecycle transition.
type SubscriptionEvent struct {
	SubscriptionID uuid.UUID                `json:"subscription_id"`
	CompanyID      uuid.UUID                `json:"company_id"`
	PlanID         uuid.UUID                `json:"plan_id"`
	Status         enums.SubscriptionStatus `json:"status"`
	PeriodEnd      time.Time                `json:"period_end"`
}

// InvoiceEvent covers invoice issuance and settlement.
type InvoiceEvent struct {
	InvoiceID      uuid.UUID           `json:"invoice_id"`
	SubscriptionID *uuid.UUID          `json:"subscription_id,omitempty"`
	CompanyID      uuid.UUID           `json:"company_id"`
	Number         string              `json:"number"`
	Status         enums.InvoiceStatus `json:"status"`
	Total          decimal.Decimal     `json:"total"`
	Currency       string              `json:"currency"`
}
