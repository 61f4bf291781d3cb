package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/megahubhq/megahub-backend/pkg/db/models"
	"github.com/megahubhq/megahub-backend/pkg/enums"
)

type PlanDTO struct {
	ID                   uuid.UUID             `json:"id"`
	Name                 string                `json:"name"`
	Interval             enums.BillingInterval `json:"interval"`
	Price                decimal.Decimal       `json:"price"`
	IncludedBrandSlots   int                   `json:"included_brand_slots"`
	IncludedUserSlots    int                   `json:"included_user_slots"`
	AdditionalBrandPrice decimal.Decimal       `json:"additional_brand_price"`
	AdditionalUserPrice  decimal.Decimal       `json:"additional_user_price"`
	IsFeatured           bool                  `json:"is_featured"`
	IsActive             bool                  `json:"is_active"`
	DisplayOrder         int                   `json:"display_order"`
}

type CreatePlanRequest struct {
	Name                 string                `json:"name" validate:"required,max=150"`
	Interval             enums.BillingInterval `json:"interval" validate:"required"`
	Price                decimal.Decimal       `json:"price" validate:"required"`
	IncludedBrandSlots   int                   `json:"included_brand_slots" validate:"gte=0"`
	IncludedUserSlots    int                   `json:"included_user_slots" validate:"gte=0"`
	AdditionalBrandPrice decimal.Decimal       `json:"additional_brand_price"`
	AdditionalUserPrice  decimal.Decimal       `json:"additional_user_price"`
	IsFeatured           bool                  `json:"is_featured"`
	DisplayOrder         int                   `json:"display_order"`
}

type SubscriptionDTO struct {
	ID                 uuid.UUID                `json:"id"`
	CompanyID          uuid.UUID                `json:"company_id"`
	PlanID             uuid.UUID                `json:"plan_id"`
	PlanName           string                   `json:"plan_name,omitempty"`
	Status             enums.SubscriptionStatus `json:"status"`
	CurrentPeriodStart time.Time                `json:"current_period_start"`
	CurrentPeriodEnd   time.Time                `json:"current_period_end"`
	TrialEnd           *time.Time               `json:"trial_end,omitempty"`
	CancelAtPeriodEnd  bool                     `json:"cancel_at_period_end"`
	CanceledAt         *time.Time               `json:"canceled_at,omitempty"`
}

type CreateSubscriptionRequest struct {
	CompanyID uuid.UUID `json:"company_id" validate:"required"`
	PlanID    uuid.UUID `json:"plan_id" validate:"required"`
	TrialDays int       `json:"trial_days" validate:"gte=0"`
}

type CancelSubscriptionRequest struct {
	AtPeriodEnd bool `json:"at_period_end"`
}

type ChangePlanRequest struct {
	PlanID uuid.UUID `json:"plan_id" validate:"required"`
}

// ChangePlanResult reports the subscription after a plan change and, when
// the new plan is more expensive, the prorata invoice issued for the
// remainder of the period.
type ChangePlanResult struct {
	Subscription   SubscriptionDTO `json:"subscription"`
	ProrataInvoice *InvoiceDTO     `json:"prorata_invoice,omitempty"`
}

type InvoiceItemDTO struct {
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Amount      decimal.Decimal `json:"amount"`
}

type InvoiceDTO struct {
	ID          uuid.UUID           `json:"id"`
	CompanyID   uuid.UUID           `json:"company_id"`
	Number      string              `json:"number"`
	Status      enums.InvoiceStatus `json:"status"`
	Subtotal    decimal.Decimal     `json:"subtotal"`
	Total       decimal.Decimal     `json:"total"`
	Currency    string              `json:"currency"`
	PeriodStart time.Time           `json:"period_start"`
	PeriodEnd   time.Time           `json:"period_end"`
	DueAt       *time.Time          `json:"due_at,omitempty"`
	PaidAt      *time.Time          `json:"paid_at,omitempty"`
	Items       []InvoiceItemDTO    `json:"items"`
	CreatedAt   time.Time           `json:"created_at"`
}

type AlertDTO struct {
	ID        uuid.UUID              `json:"id"`
	CompanyID uuid.UUID              `json:"company_id"`
	Kind      enums.UsageAlertKind   `json:"kind"`
	Status    enums.UsageAlertStatus `json:"status"`
	Message   string                 `json:"message"`
	CreatedAt time.Time              `json:"created_at"`
}

func planFromModel(p *models.Plan) *PlanDTO {
	return &PlanDTO{
		ID:                   p.ID,
		Name:                 p.Name,
		Interval:             p.Interval,
		Price:                p.Price,
		IncludedBrandSlots:   p.IncludedBrandSlots,
		IncludedUserSlots:    p.IncludedUserSlots,
		AdditionalBrandPrice: p.AdditionalBrandPrice,
		AdditionalUserPrice:  p.AdditionalUserPrice,
		IsFeatured:           p.IsFeatured,
		IsActive:             p.IsActive,
		DisplayOrder:         p.DisplayOrder,
	}
}

func subscriptionFromModel(s *models.Subscription) *SubscriptionDTO {
	dto := &SubscriptionDTO{
		ID:                 s.ID,
		CompanyID:          s.CompanyID,
		PlanID:             s.PlanID,
		Status:             s.Status,
		CurrentPeriodStart: s.CurrentPeriodStart,
		CurrentPeriodEnd:   s.CurrentPeriodEnd,
		TrialEnd:           s.TrialEnd,
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
		CanceledAt:         s.CanceledAt,
	}
	if s.Plan != nil {
		dto.PlanName = s.Plan.Name
	}
	return dto
}

func invoiceFromModel(inv *models.Invoice) *InvoiceDTO {
	dto := &InvoiceDTO{
		ID:          inv.ID,
		CompanyID:   inv.CompanyID,
		Number:      inv.Number,
		Status:      inv.Status,
		Subtotal:    inv.Subtotal,
		Total:       inv.Total,
		Currency:    inv.Currency,
		PeriodStart: inv.PeriodStart,
		PeriodEnd:   inv.PeriodEnd,
		DueAt:       inv.DueAt,
		PaidAt:      inv.PaidAt,
		Items:       make([]InvoiceItemDTO, 0, len(inv.Items)),
		CreatedAt:   inv.CreatedAt,
	}
	for _, item := range inv.Items {
		dto.Items = append(dto.Items, InvoiceItemDTO{
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Amount:      item.Amount,
		})
	}
	return dto
}

func alertFromModel(a *models.UsageAlert) AlertDTO {
	return AlertDTO{
		ID:        a.ID,
		CompanyID: a.CompanyID,
		Kind:      a.Kind,
		Status:    a.Status,
		Message:   a.Message,
		CreatedAt: a.CreatedAt,
	}
}
