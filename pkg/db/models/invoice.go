package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/megahubhq/megahub-backend/pkg/enums"
)

// Invoice is a billing document issued against a company. Number carries the
// human-readable identifier (<PREFIX>-<YYYY>-<MM>-<NNNN>).
type Invoice struct {
	ID              uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	CompanyID       uuid.UUID           `gorm:"column:company_id;type:uuid;not null;index"`
	SubscriptionID  *uuid.UUID          `gorm:"column:subscription_id;type:uuid"`
	Number          string              `gorm:"column:number;not null;uniqueIndex"`
	Status          enums.InvoiceStatus `gorm:"column:status;type:invoice_status;not null"`
	Subtotal        decimal.Decimal     `gorm:"column:subtotal;type:numeric(12,2);not null;default:0"`
	Total           decimal.Decimal     `gorm:"column:total;type:numeric(12,2);not null;default:0"`
	Currency        string              `gorm:"column:currency;not null;default:'eur'"`
	PeriodStart     time.Time           `gorm:"column:period_start;not null"`
	PeriodEnd       time.Time           `gorm:"column:period_end;not null"`
	DueAt           *time.Time          `gorm:"column:due_at"`
	PaidAt          *time.Time          `gorm:"column:paid_at"`
	VoidedAt        *time.Time          `gorm:"column:voided_at"`
	StripeInvoiceID *string             `gorm:"column:stripe_invoice_id;uniqueIndex"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`

	Items []InvoiceItem `gorm:"foreignKey:InvoiceID"`
}

// InvoiceItem is a single line on an invoice, either the plan base charge or
// an overage line for slots beyond the plan's included amount.
type InvoiceItem struct {
	ID          uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	InvoiceID   uuid.UUID       `gorm:"column:invoice_id;type:uuid;not null;index"`
	Description string          `gorm:"column:description;not null"`
	Quantity    int             `gorm:"column:quantity;not null;default:1"`
	UnitPrice   decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Amount      decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
}
