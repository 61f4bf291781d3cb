package billing

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/megahubhq/megahub-backend/internal/rbac"
	"github.com/megahubhq/megahub-backend/pkg/config"
	"github.com/megahubhq/megahub-backend/pkg/db"
	"github.com/megahubhq/megahub-backend/pkg/db/models"
	"github.com/megahubhq/megahub-backend/pkg/enums"
	pkgerrors "github.com/megahubhq/megahub-backend/pkg/errors"
	"github.com/megahubhq/megahub-backend/pkg/outbox"
	"github.com/megahubhq/megahub-backend/pkg/pagination"
)

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// SubscriptionEvent is the outbox payload for subscription lifecycle changes.
type SubscriptionEvent struct {
	SubscriptionID uuid.UUID                `json:"subscription_id"`
	CompanyID      uuid.UUID                `json:"company_id"`
	PlanID         uuid.UUID                `json:"plan_id"`
	Status         enums.SubscriptionStatus `json:"status"`
	PeriodEnd      time.Time                `json:"period_end"`
}

// InvoiceEvent is the outbox payload for invoice issuance and settlement.
type InvoiceEvent struct {
	InvoiceID      uuid.UUID           `json:"invoice_id"`
	SubscriptionID *uuid.UUID          `json:"subscription_id,omitempty"`
	CompanyID      uuid.UUID           `json:"company_id"`
	Number         string              `json:"number"`
	Status         enums.InvoiceStatus `json:"status"`
	Total          decimal.Decimal     `json:"total"`
	Currency       string              `json:"currency"`
}

// Service drives the subscription lifecycle and invoice issuance. Webhook
// handlers and cron jobs call the transition methods; the REST surface calls
// the actor-scoped methods.
type Service interface {
	ListPlans(ctx context.Context, actor rbac.Actor, p pagination.Params) (pagination.Page[PlanDTO], error)
	CreatePlan(ctx context.Context, actor rbac.Actor, req CreatePlanRequest) (*PlanDTO, error)

	CreateSubscription(ctx context.Context, actor rbac.Actor, req CreateSubscriptionRequest) (*SubscriptionDTO, error)
	ListSubscriptions(ctx context.Context, actor rbac.Actor, companyID *uuid.UUID, p pagination.Params) (pagination.Page[SubscriptionDTO], error)
	GetSubscription(ctx context.Context, actor rbac.Actor, id uuid.UUID) (*SubscriptionDTO, error)
	Cancel(ctx context.Context, actor rbac.Actor, id uuid.UUID, req CancelSubscriptionRequest) (*SubscriptionDTO, error)
	ChangePlan(ctx context.Context, actor rbac.Actor, id uuid.UUID, req ChangePlanRequest) (*ChangePlanResult, error)

	Renew(ctx context.Context, id uuid.UUID, now time.Time) (*InvoiceDTO, error)
	RenewDue(ctx context.Context, now time.Time, limit int) (int, error)
	ActivateTrial(ctx context.Context, id uuid.UUID, now time.Time) (*InvoiceDTO, error)
	ExpireTrials(ctx context.Context, now time.Time, limit int) (int, error)
	ApplyStatus(ctx context.Context, id uuid.UUID, status enums.SubscriptionStatus, now time.Time) error
	MarkInvoicePaid(ctx context.Context, invoiceID uuid.UUID, paidAt time.Time) error
	SweepOverdue(ctx context.Context, now time.Time, limit int) (int, error)

	ListInvoices(ctx context.Context, actor rbac.Actor, companyID *uuid.UUID, p pagination.Params) (pagination.Page[InvoiceDTO], error)
	GetInvoice(ctx context.Context, actor rbac.Actor, id uuid.UUID) (*InvoiceDTO, error)
	ListUsageAlerts(ctx context.Context, actor rbac.Actor, companyID *uuid.UUID, p pagination.Params) (pagination.Page[AlertDTO], error)
}

type ServiceParams struct {
	DB      *db.Client
	Locks   Locks
	Billing config.BillingConfig
	Events  eventEmitter
}

type service struct {
	db     *db.Client
	locks  Locks
	cfg    config.BillingConfig
	events eventEmitter
}

func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "database client required")
	}
	locks := params.Locks
	if locks == nil {
		locks = NewNoopLocks()
	}
	if params.Billing.InvoiceDueDays <= 0 {
		params.Billing.InvoiceDueDays = 30
	}
	return &service{db: params.DB, locks: locks, cfg: params.Billing, events: params.Events}, nil
}

// allowedTransitions is the subscription state machine. Re-applying the
// current status is always a no-op; anything else not listed is a conflict.
var allowedTransitions = map[enums.SubscriptionStatus][]enums.SubscriptionStatus{
	enums.SubscriptionStatusTrialing: {enums.SubscriptionStatusActive, enums.SubscriptionStatusCanceled},
	enums.SubscriptionStatusActive:   {enums.SubscriptionStatusPastDue, enums.SubscriptionStatusCanceled},
	enums.SubscriptionStatusPastDue:  {enums.SubscriptionStatusActive, enums.SubscriptionStatusCanceled, enums.SubscriptionStatusUnpaid},
	enums.SubscriptionStatusCanceled: {enums.SubscriptionStatusActive},
	enums.SubscriptionStatusUnpaid:   {enums.SubscriptionStatusCanceled},
}

func transitionAllowed(from, to enums.SubscriptionStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s *service) ListPlans(ctx context.Context, actor rbac.Actor, p pagination.Params) (pagination.Page[PlanDTO], error) {
	p = pagination.Normalize(p)
	plans, total, err := NewRepository(s.db.DB()).ListPlans(ctx, !actor.IsSuperuser, p)
	if err != nil {
		return pagination.Page[PlanDTO]{}, err
	}
	items := make([]PlanDTO, 0, len(plans))
	for i := range plans {
		items = append(items, *planFromModel(&plans[i]))
	}
	return pagination.NewPage(items, int(total), p), nil
}

func (s *service) CreatePlan(ctx context.Context, actor rbac.Actor, req CreatePlanRequest) (*PlanDTO, error) {
	if !actor.IsSuperuser {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "plan catalog is managed by platform operators")
	}
	if !req.Interval.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown billing interval")
	}
	if req.Price.IsNegative() || req.AdditionalBrandPrice.IsNegative() || req.AdditionalUserPrice.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "prices must not be negative")
	}

	var dto *PlanDTO
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		exists, err := repo.PlanNameExists(ctx, strings.TrimSpace(req.Name))
		if err != nil {
			return err
		}
		if exists {
			return pkgerrors.New(pkgerrors.CodeConflict, "plan name already in use")
		}
		plan := &models.Plan{
			ID:                   uuid.New(),
			Name:                 strings.TrimSpace(req.Name),
			Interval:             req.Interval,
			Price:                req.Price,
			IncludedBrandSlots:   req.IncludedBrandSlots,
			IncludedUserSlots:    req.IncludedUserSlots,
			AdditionalBrandPrice: req.AdditionalBrandPrice,
			AdditionalUserPrice:  req.AdditionalUserPrice,
			IsFeatured:           req.IsFeatured,
			IsActive:             true,
			DisplayOrder:         req.DisplayOrder,
		}
		if err := repo.CreatePlan(ctx, plan); err != nil {
			return err
		}
		dto = planFromModel(plan)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dto, nil
}

func (s *service) CreateSubscription(ctx context.Context, actor rbac.Actor, req CreateSubscriptionRequest) (*SubscriptionDTO, error) {
	if err := requireBillingAdmin(actor, req.CompanyID); err != nil {
		return nil, err
	}

	var dto *SubscriptionDTO
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		if _, err := repo.FindCompany(ctx, req.CompanyID); err != nil {
			return err
		}
		open, err := repo.OpenSubscription(ctx, req.CompanyID)
		if err != nil {
			return err
		}
		if open != nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "company already has an open subscription")
		}
		plan, err := repo.FindPlan(ctx, req.PlanID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		sub := &models.Subscription{
			ID:                 uuid.New(),
			CompanyID:          req.CompanyID,
			PlanID:             plan.ID,
			Status:             enums.SubscriptionStatusActive,
			CurrentPeriodStart: now,
			CurrentPeriodEnd:   advancePeriod(now, plan.Interval),
		}
		if req.TrialDays > 0 {
			trialEnd := now.AddDate(0, 0, req.TrialDays)
			sub.Status = enums.SubscriptionStatusTrialing
			sub.TrialEnd = &trialEnd
			sub.CurrentPeriodEnd = trialEnd
		}
		if err := repo.CreateSubscription(ctx, sub); err != nil {
			return err
		}
		if err := s.emitSubscription(ctx, tx, sub); err != nil {
			return err
		}
		sub.Plan = plan
		dto = subscriptionFromModel(sub)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dto, nil
}

func (s *service) ListSubscriptions(ctx context.Context, actor rbac.Actor, companyID *uuid.UUID, p pagination.Params) (pagination.Page[SubscriptionDTO], error) {
	scoped, err := resolveCompanyScope(actor, companyID)
	if err != nil {
		return pagination.Page[SubscriptionDTO]{}, err
	}
	p = pagination.Normalize(p)

	subs, total, err := NewRepository(s.db.DB()).ListSubscriptionsByCompany(ctx, scoped, p)
	if err != nil {
		return pagination.Page[SubscriptionDTO]{}, err
	}
	items := make([]SubscriptionDTO, 0, len(subs))
	for i := range subs {
		items = append(items, *subscriptionFromModel(&subs[i]))
	}
	return pagination.NewPage(items, int(total), p), nil
}

func (s *service) GetSubscription(ctx context.Context, actor rbac.Actor, id uuid.UUID) (*SubscriptionDTO, error) {
	sub, err := s.loadScopedSubscription(ctx, NewRepository(s.db.DB()), actor, id)
	if err != nil {
		return nil, err
	}
	return subscriptionFromModel(sub), nil
}

// Cancel ends a subscription now or at the period boundary. Canceling an
// already-canceled subscription is a no-op.
func (s *service) Cancel(ctx context.Context, actor rbac.Actor, id uuid.UUID, req CancelSubscriptionRequest) (*SubscriptionDTO, error) {
	release, err := s.locks.Acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	var dto *SubscriptionDTO
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		sub, err := s.loadScopedSubscription(ctx, repo, actor, id)
		if err != nil {
			return err
		}
		if sub.Status == enums.SubscriptionStatusCanceled {
			dto = subscriptionFromModel(sub)
			return nil
		}

		if req.AtPeriodEnd {
			if !sub.CancelAtPeriodEnd {
				periodEnd := sub.CurrentPeriodEnd
				sub.CancelAtPeriodEnd = true
				sub.CanceledAt = &periodEnd
				if err := repo.SaveSubscription(ctx, sub); err != nil {
					return err
				}
			}
		} else {
			now := time.Now().UTC()
			sub.Status = enums.SubscriptionStatusCanceled
			sub.CanceledAt = &now
			sub.CancelAtPeriodEnd = false
			if err := repo.SaveSubscription(ctx, sub); err != nil {
				return err
			}
			if err := s.emitSubscription(ctx, tx, sub); err != nil {
				return err
			}
		}
		dto = subscriptionFromModel(sub)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dto, nil
}

// ChangePlan swaps the subscription's plan. A price increase issues a
// prorata invoice for the remainder of the current period; decreases take
// effect at the next renewal with no credit.
func (s *service) ChangePlan(ctx context.Context, actor rbac.Actor, id uuid.UUID, req ChangePlanRequest) (*ChangePlanResult, error) {
	release, err := s.locks.Acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	var result *ChangePlanResult
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		sub, err := s.loadScopedSubscription(ctx, repo, actor, id)
		if err != nil {
			return err
		}
		if sub.Status == enums.SubscriptionStatusCanceled || sub.Status == enums.SubscriptionStatusUnpaid {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "subscription is not changeable")
		}
		if sub.PlanID == req.PlanID {
			result = &ChangePlanResult{Subscription: *subscriptionFromModel(sub)}
			return nil
		}
		oldPlan := sub.Plan
		if oldPlan == nil {
			loaded, err := repo.FindPlan(ctx, sub.PlanID)
			if err != nil {
				return err
			}
			oldPlan = loaded
		}
		newPlan, err := repo.FindPlan(ctx, req.PlanID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		prorata := prorataAmount(oldPlan.Price, newPlan.Price, sub.CurrentPeriodStart, sub.CurrentPeriodEnd, now)

		sub.PlanID = newPlan.ID
		sub.Plan = newPlan
		if err := repo.SaveSubscription(ctx, sub); err != nil {
			return err
		}

		result = &ChangePlanResult{Subscription: *subscriptionFromModel(sub)}
		if prorata.IsPositive() {
			inv, err := s.issueInvoice(ctx, repo, sub, now, sub.CurrentPeriodStart, sub.CurrentPeriodEnd, []models.InvoiceItem{{
				Description: fmt.Sprintf("Plan change to %s (prorata)", newPlan.Name),
				Quantity:    1,
				UnitPrice:   prorata,
				Amount:      prorata,
			}})
			if err != nil {
				return err
			}
			if err := s.emitInvoice(ctx, tx, enums.OutboxEventTypeInvoiceIssued, inv); err != nil {
				return err
			}
			result.ProrataInvoice = invoiceFromModel(inv)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Renew rolls an active subscription into its next period and issues the
// period invoice. Calling it before the period lapses is a no-op, so the
// renewal job can run as often as it likes.
func (s *service) Renew(ctx context.Context, id uuid.UUID, now time.Time) (*InvoiceDTO, error) {
	release, err := s.locks.Acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	var dto *InvoiceDTO
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		sub, err := repo.FindSubscription(ctx, id)
		if err != nil {
			return err
		}
		if sub.Status != enums.SubscriptionStatusActive || now.Before(sub.CurrentPeriodEnd) {
			return nil
		}

		if sub.CancelAtPeriodEnd {
			periodEnd := sub.CurrentPeriodEnd
			sub.Status = enums.SubscriptionStatusCanceled
			sub.CanceledAt = &periodEnd
			if err := repo.SaveSubscription(ctx, sub); err != nil {
				return err
			}
			return s.emitSubscription(ctx, tx, sub)
		}

		plan := sub.Plan
		if plan == nil {
			loaded, err := repo.FindPlan(ctx, sub.PlanID)
			if err != nil {
				return err
			}
			plan = loaded
		}

		periodStart := sub.CurrentPeriodEnd
		periodEnd := advancePeriod(periodStart, plan.Interval)
		sub.CurrentPeriodStart = periodStart
		sub.CurrentPeriodEnd = periodEnd
		if err := repo.SaveSubscription(ctx, sub); err != nil {
			return err
		}

		items, err := s.periodItems(ctx, repo, sub.CompanyID, plan)
		if err != nil {
			return err
		}
		inv, err := s.issueInvoice(ctx, repo, sub, now, periodStart, periodEnd, items)
		if err != nil {
			return err
		}
		if err := s.emitInvoice(ctx, tx, enums.OutboxEventTypeInvoiceIssued, inv); err != nil {
			return err
		}
		dto = invoiceFromModel(inv)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dto, nil
}

// ActivateTrial moves a lapsed trial into its first paid period.
func (s *service) ActivateTrial(ctx context.Context, id uuid.UUID, now time.Time) (*InvoiceDTO, error) {
	release, err := s.locks.Acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	var dto *InvoiceDTO
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		sub, err := repo.FindSubscription(ctx, id)
		if err != nil {
			return err
		}
		if sub.Status != enums.SubscriptionStatusTrialing {
			return nil
		}
		if sub.TrialEnd == nil || now.Before(*sub.TrialEnd) {
			return nil
		}

		plan := sub.Plan
		if plan == nil {
			loaded, err := repo.FindPlan(ctx, sub.PlanID)
			if err != nil {
				return err
			}
			plan = loaded
		}

		periodStart := *sub.TrialEnd
		periodEnd := advancePeriod(periodStart, plan.Interval)
		sub.Status = enums.SubscriptionStatusActive
		sub.CurrentPeriodStart = periodStart
		sub.CurrentPeriodEnd = periodEnd
		if err := repo.SaveSubscription(ctx, sub); err != nil {
			return err
		}
		if err := s.emitSubscription(ctx, tx, sub); err != nil {
			return err
		}

		items, err := s.periodItems(ctx, repo, sub.CompanyID, plan)
		if err != nil {
			return err
		}
		inv, err := s.issueInvoice(ctx, repo, sub, now, periodStart, periodEnd, items)
		if err != nil {
			return err
		}
		if err := s.emitInvoice(ctx, tx, enums.OutboxEventTypeInvoiceIssued, inv); err != nil {
			return err
		}
		dto = invoiceFromModel(inv)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dto, nil
}

// RenewDue renews every active subscription whose period has lapsed. Each
// renewal runs under its own lock and transaction so one stuck subscription
// does not block the batch.
func (s *service) RenewDue(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	due, err := NewRepository(s.db.DB()).DueForRenewal(ctx, now, limit)
	if err != nil {
		return 0, err
	}
	renewed := 0
	var errs error
	for i := range due {
		if _, err := s.Renew(ctx, due[i].ID, now); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		renewed++
	}
	return renewed, errs
}

// ExpireTrials activates every trial whose trial window has lapsed.
func (s *service) ExpireTrials(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	lapsed, err := NewRepository(s.db.DB()).ExpiredTrials(ctx, now, limit)
	if err != nil {
		return 0, err
	}
	activated := 0
	var errs error
	for i := range lapsed {
		if _, err := s.ActivateTrial(ctx, lapsed[i].ID, now); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		activated++
	}
	return activated, errs
}

// ApplyStatus applies an externally-triggered transition, typically from a
// Stripe webhook. Re-applying the current status is a no-op.
func (s *service) ApplyStatus(ctx context.Context, id uuid.UUID, status enums.SubscriptionStatus, now time.Time) error {
	release, err := s.locks.Acquire(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		sub, err := repo.FindSubscription(ctx, id)
		if err != nil {
			return err
		}
		if sub.Status == status {
			return nil
		}
		if !transitionAllowed(sub.Status, status) {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot move subscription from %s to %s", sub.Status, status))
		}
		sub.Status = status
		switch status {
		case enums.SubscriptionStatusCanceled:
			at := now
			sub.CanceledAt = &at
		case enums.SubscriptionStatusActive:
			sub.CanceledAt = nil
			sub.CancelAtPeriodEnd = false
		}
		if err := repo.SaveSubscription(ctx, sub); err != nil {
			return err
		}
		return s.emitSubscription(ctx, tx, sub)
	})
}

// MarkInvoicePaid settles an invoice and recovers a past-due subscription.
func (s *service) MarkInvoicePaid(ctx context.Context, invoiceID uuid.UUID, paidAt time.Time) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		inv, err := repo.FindInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status == enums.InvoiceStatusPaid {
			return nil
		}
		inv.Status = enums.InvoiceStatusPaid
		inv.PaidAt = &paidAt
		if err := repo.SaveInvoice(ctx, inv); err != nil {
			return err
		}
		if err := s.emitInvoice(ctx, tx, enums.OutboxEventTypeInvoicePaid, inv); err != nil {
			return err
		}

		if inv.SubscriptionID == nil {
			return nil
		}
		sub, err := repo.FindSubscription(ctx, *inv.SubscriptionID)
		if err != nil {
			return err
		}
		if sub.Status == enums.SubscriptionStatusPastDue {
			sub.Status = enums.SubscriptionStatusActive
			if err := repo.SaveSubscription(ctx, sub); err != nil {
				return err
			}
			return s.emitSubscription(ctx, tx, sub)
		}
		return nil
	})
}

// SweepOverdue marks lapsed open invoices and pushes their subscriptions to
// past_due, raising a payment alert per company.
func (s *service) SweepOverdue(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	overdue, err := NewRepository(s.db.DB()).OverdueInvoices(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	swept := 0
	for i := range overdue {
		inv := overdue[i]
		err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
			repo := NewRepository(tx)
			inv.Status = enums.InvoiceStatusUncollectible
			if err := repo.SaveInvoice(ctx, &inv); err != nil {
				return err
			}
			if inv.SubscriptionID != nil {
				sub, err := repo.FindSubscription(ctx, *inv.SubscriptionID)
				if err != nil {
					return err
				}
				if sub.Status == enums.SubscriptionStatusActive {
					sub.Status = enums.SubscriptionStatusPastDue
					if err := repo.SaveSubscription(ctx, sub); err != nil {
						return err
					}
					if err := s.emitSubscription(ctx, tx, sub); err != nil {
						return err
					}
				}
			}
			alert := &models.UsageAlert{
				ID:        uuid.New(),
				CompanyID: inv.CompanyID,
				Kind:      enums.UsageAlertKindPaymentFailed,
				Status:    enums.UsageAlertStatusActive,
				Message:   fmt.Sprintf("invoice %s is overdue", inv.Number),
			}
			if err := tx.WithContext(ctx).Create(alert).Error; err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "raise payment alert")
			}
			return nil
		})
		if err != nil {
			return swept, err
		}
		swept++
	}
	return swept, nil
}

func (s *service) ListInvoices(ctx context.Context, actor rbac.Actor, companyID *uuid.UUID, p pagination.Params) (pagination.Page[InvoiceDTO], error) {
	scoped, err := resolveCompanyScope(actor, companyID)
	if err != nil {
		return pagination.Page[InvoiceDTO]{}, err
	}
	p = pagination.Normalize(p)

	invoices, total, err := NewRepository(s.db.DB()).ListInvoicesByCompany(ctx, scoped, p)
	if err != nil {
		return pagination.Page[InvoiceDTO]{}, err
	}
	items := make([]InvoiceDTO, 0, len(invoices))
	for i := range invoices {
		items = append(items, *invoiceFromModel(&invoices[i]))
	}
	return pagination.NewPage(items, int(total), p), nil
}

func (s *service) GetInvoice(ctx context.Context, actor rbac.Actor, id uuid.UUID) (*InvoiceDTO, error) {
	inv, err := NewRepository(s.db.DB()).FindInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsSuperuser {
		if actor.CompanyID == nil || *actor.CompanyID != inv.CompanyID {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
		}
	}
	return invoiceFromModel(inv), nil
}

func (s *service) ListUsageAlerts(ctx context.Context, actor rbac.Actor, companyID *uuid.UUID, p pagination.Params) (pagination.Page[AlertDTO], error) {
	scoped, err := resolveCompanyScope(actor, companyID)
	if err != nil {
		return pagination.Page[AlertDTO]{}, err
	}
	p = pagination.Normalize(p)

	alerts, total, err := NewRepository(s.db.DB()).ListAlertsByCompany(ctx, scoped, p)
	if err != nil {
		return pagination.Page[AlertDTO]{}, err
	}
	items := make([]AlertDTO, 0, len(alerts))
	for i := range alerts {
		items = append(items, alertFromModel(&alerts[i]))
	}
	return pagination.NewPage(items, int(total), p), nil
}

// periodItems builds the base line plus an overage line per dimension that
// exceeds the plan's included slots.
func (s *service) periodItems(ctx context.Context, repo *Repository, companyID uuid.UUID, plan *models.Plan) ([]models.InvoiceItem, error) {
	items := []models.InvoiceItem{{
		Description: fmt.Sprintf("%s plan (%s)", plan.Name, plan.Interval),
		Quantity:    1,
		UnitPrice:   plan.Price,
		Amount:      plan.Price,
	}}

	allocation, err := repo.FindAllocation(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if allocation == nil {
		return items, nil
	}

	if over := allocation.CurrentBrandsCount - plan.IncludedBrandSlots; over > 0 && plan.AdditionalBrandPrice.IsPositive() {
		amount := plan.AdditionalBrandPrice.Mul(decimal.NewFromInt(int64(over)))
		items = append(items, models.InvoiceItem{
			Description: fmt.Sprintf("Additional brands (%d over %d included)", over, plan.IncludedBrandSlots),
			Quantity:    over,
			UnitPrice:   plan.AdditionalBrandPrice,
			Amount:      amount,
		})
	}
	if over := allocation.CurrentUsersCount - plan.IncludedUserSlots; over > 0 && plan.AdditionalUserPrice.IsPositive() {
		amount := plan.AdditionalUserPrice.Mul(decimal.NewFromInt(int64(over)))
		items = append(items, models.InvoiceItem{
			Description: fmt.Sprintf("Additional users (%d over %d included)", over, plan.IncludedUserSlots),
			Quantity:    over,
			UnitPrice:   plan.AdditionalUserPrice,
			Amount:      amount,
		})
	}
	return items, nil
}

func (s *service) issueInvoice(ctx context.Context, repo *Repository, sub *models.Subscription, issuedAt, periodStart, periodEnd time.Time, items []models.InvoiceItem) (*models.Invoice, error) {
	company, err := repo.FindCompany(ctx, sub.CompanyID)
	if err != nil {
		return nil, err
	}
	prefix := invoicePrefix(company.Name, issuedAt)
	highest, err := repo.HighestInvoiceNumber(ctx, prefix)
	if err != nil {
		return nil, err
	}

	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.Amount)
	}
	dueAt := issuedAt.AddDate(0, 0, s.cfg.InvoiceDueDays)

	inv := &models.Invoice{
		ID:             uuid.New(),
		CompanyID:      sub.CompanyID,
		SubscriptionID: &sub.ID,
		Number:         nextInvoiceNumber(prefix, highest),
		Status:         enums.InvoiceStatusOpen,
		Subtotal:       subtotal,
		Total:          subtotal,
		Currency:       "eur",
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
		DueAt:          &dueAt,
	}
	for i := range items {
		items[i].ID = uuid.New()
		items[i].InvoiceID = inv.ID
	}
	inv.Items = items
	if err := repo.CreateInvoice(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// subscriptionEventType maps a status to its lifecycle event. Unpaid has no
// downstream consumer, so it publishes nothing.
func subscriptionEventType(status enums.SubscriptionStatus) (enums.OutboxEventType, bool) {
	switch status {
	case enums.SubscriptionStatusActive:
		return enums.OutboxEventTypeSubscriptionActivated, true
	case enums.SubscriptionStatusCanceled:
		return enums.OutboxEventTypeSubscriptionCanceled, true
	case enums.SubscriptionStatusPastDue:
		return enums.OutboxEventTypeSubscriptionPastDue, true
	default:
		return "", false
	}
}

func (s *service) emitSubscription(ctx context.Context, tx *gorm.DB, sub *models.Subscription) error {
	if s.events == nil {
		return nil
	}
	eventType, ok := subscriptionEventType(sub.Status)
	if !ok {
		return nil
	}
	err := s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.OutboxAggregateTypeSubscription,
		AggregateID:   sub.ID,
		Version:       1,
		Data: SubscriptionEvent{
			SubscriptionID: sub.ID,
			CompanyID:      sub.CompanyID,
			PlanID:         sub.PlanID,
			Status:         sub.Status,
			PeriodEnd:      sub.CurrentPeriodEnd,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit subscription event")
	}
	return nil
}

func (s *service) emitInvoice(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, inv *models.Invoice) error {
	if s.events == nil {
		return nil
	}
	err := s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.OutboxAggregateTypeInvoice,
		AggregateID:   inv.ID,
		Version:       1,
		Data: InvoiceEvent{
			InvoiceID:      inv.ID,
			SubscriptionID: inv.SubscriptionID,
			CompanyID:      inv.CompanyID,
			Number:         inv.Number,
			Status:         inv.Status,
			Total:          inv.Total,
			Currency:       inv.Currency,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit invoice event")
	}
	return nil
}

func (s *service) loadScopedSubscription(ctx context.Context, repo *Repository, actor rbac.Actor, id uuid.UUID) (*models.Subscription, error) {
	sub, err := repo.FindSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsSuperuser {
		if !actor.IsCompanyAdminOf(sub.CompanyID) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
		}
	}
	return sub, nil
}

// prorataAmount charges the price difference for the days left in the
// period; downgrades never produce a credit.
func prorataAmount(oldPrice, newPrice decimal.Decimal, periodStart, periodEnd, now time.Time) decimal.Decimal {
	diff := newPrice.Sub(oldPrice)
	if !diff.IsPositive() {
		return decimal.Zero
	}
	daysInPeriod := int(math.Round(periodEnd.Sub(periodStart).Hours() / 24))
	if daysInPeriod <= 0 {
		return decimal.Zero
	}
	daysRemaining := int(math.Ceil(periodEnd.Sub(now).Hours() / 24))
	if daysRemaining <= 0 {
		return decimal.Zero
	}
	if daysRemaining > daysInPeriod {
		daysRemaining = daysInPeriod
	}
	return diff.
		Mul(decimal.NewFromInt(int64(daysRemaining))).
		Div(decimal.NewFromInt(int64(daysInPeriod))).
		Round(2)
}

func advancePeriod(from time.Time, interval enums.BillingInterval) time.Time {
	switch interval {
	case enums.BillingIntervalYearly:
		return from.AddDate(1, 0, 0)
	case enums.BillingIntervalOneTime:
		// one-time plans never renew; park the boundary far out
		return from.AddDate(100, 0, 0)
	default:
		return from.AddDate(0, 1, 0)
	}
}

func requireBillingAdmin(actor rbac.Actor, companyID uuid.UUID) error {
	if actor.IsSuperuser {
		return nil
	}
	if actor.IsCompanyAdminOf(companyID) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "billing requires a company admin")
}

// resolveCompanyScope picks the company a list call is scoped to: the
// explicit filter for superusers, the actor's own company otherwise.
func resolveCompanyScope(actor rbac.Actor, companyID *uuid.UUID) (uuid.UUID, error) {
	if actor.IsSuperuser {
		if companyID != nil {
			return *companyID, nil
		}
		if actor.CompanyID != nil {
			return *actor.CompanyID, nil
		}
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "company filter required")
	}
	if actor.CompanyID == nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "no company in scope")
	}
	if companyID != nil && *companyID != *actor.CompanyID {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "cannot view another company's billing")
	}
	return *actor.CompanyID, nil
}
