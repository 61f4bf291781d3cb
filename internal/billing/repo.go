package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/megahubhq/megahub-backend/pkg/db/models"
	"github.com/megahubhq/megahub-backend/pkg/enums"
	pkgerrors "github.com/megahubhq/megahub-backend/pkg/errors"
	"github.com/megahubhq/megahub-backend/pkg/pagination"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) FindPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	var plan models.Plan
	if err := r.db.WithContext(ctx).First(&plan, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find plan")
	}
	return &plan, nil
}

func (r *Repository) FindPlanByName(ctx context.Context, name string) (*models.Plan, error) {
	var plan models.Plan
	err := r.db.WithContext(ctx).First(&plan, "name = ? AND is_active = ?", name, true).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find plan")
	}
	return &plan, nil
}

func (r *Repository) ListPlans(ctx context.Context, activeOnly bool, p pagination.Params) ([]models.Plan, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Plan{})
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	if p.Search != "" {
		q = q.Where("name LIKE ?", "%"+p.Search+"%")
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count plans")
	}
	var plans []models.Plan
	err := q.Order("display_order ASC, name ASC").Offset(p.Offset()).Limit(p.Limit()).Find(&plans).Error
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list plans")
	}
	return plans, total, nil
}

func (r *Repository) CreatePlan(ctx context.Context, plan *models.Plan) error {
	if err := r.db.WithContext(ctx).Create(plan).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create plan")
	}
	return nil
}

func (r *Repository) PlanNameExists(ctx context.Context, name string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Plan{}).Where("name = ?", name).Count(&count).Error
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check plan name")
	}
	return count > 0, nil
}

func (r *Repository) FindSubscription(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).Preload("Plan").First(&sub, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find subscription")
	}
	return &sub, nil
}

func (r *Repository) FindSubscriptionByStripeID(ctx context.Context, stripeID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).Preload("Plan").First(&sub, "stripe_subscription_id = ?", stripeID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find subscription")
	}
	return &sub, nil
}

// OpenSubscription returns the company's non-canceled subscription, if any.
func (r *Repository) OpenSubscription(ctx context.Context, companyID uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).Preload("Plan").
		Where("company_id = ? AND status <> ?", companyID, enums.SubscriptionStatusCanceled).
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find open subscription")
	}
	return &sub, nil
}

func (r *Repository) ListSubscriptionsByCompany(ctx context.Context, companyID uuid.UUID, p pagination.Params) ([]models.Subscription, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Subscription{}).Where("company_id = ?", companyID)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count subscriptions")
	}
	var subs []models.Subscription
	err := q.Preload("Plan").Order("created_at DESC").Offset(p.Offset()).Limit(p.Limit()).Find(&subs).Error
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list subscriptions")
	}
	return subs, total, nil
}

// DueForRenewal returns active subscriptions whose period has lapsed.
func (r *Repository) DueForRenewal(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.WithContext(ctx).Preload("Plan").
		Where("status = ? AND current_period_end <= ?", enums.SubscriptionStatusActive, now).
		Order("current_period_end ASC").
		Limit(limit).
		Find(&subs).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list renewals")
	}
	return subs, nil
}

// ExpiredTrials returns trialing subscriptions whose trial has ended.
func (r *Repository) ExpiredTrials(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.WithContext(ctx).Preload("Plan").
		Where("status = ? AND trial_end IS NOT NULL AND trial_end <= ?", enums.SubscriptionStatusTrialing, now).
		Order("trial_end ASC").
		Limit(limit).
		Find(&subs).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list expired trials")
	}
	return subs, nil
}

// OverdueInvoices returns open invoices that have passed their due date.
func (r *Repository) OverdueInvoices(ctx context.Context, now time.Time, limit int) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := r.db.WithContext(ctx).
		Where("status = ? AND due_at IS NOT NULL AND due_at <= ?", enums.InvoiceStatusOpen, now).
		Order("due_at ASC").
		Limit(limit).
		Find(&invoices).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list overdue invoices")
	}
	return invoices, nil
}

func (r *Repository) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	if err := r.db.WithContext(ctx).Create(sub).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create subscription")
	}
	return nil
}

func (r *Repository) SaveSubscription(ctx context.Context, sub *models.Subscription) error {
	if err := r.db.WithContext(ctx).Save(sub).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save subscription")
	}
	return nil
}

func (r *Repository) FindCompany(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	var company models.Company
	if err := r.db.WithContext(ctx).First(&company, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "company not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find company")
	}
	return &company, nil
}

func (r *Repository) FindAllocation(ctx context.Context, companyID uuid.UUID) (*models.CompanySlots, error) {
	var allocation models.CompanySlots
	err := r.db.WithContext(ctx).First(&allocation, "company_id = ?", companyID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find slot allocation")
	}
	return &allocation, nil
}

// HighestInvoiceNumber returns the largest number issued under a prefix, or
// empty when the prefix is fresh. Callers run inside the invoice-creating
// transaction so two issuers cannot read the same high-water mark.
func (r *Repository) HighestInvoiceNumber(ctx context.Context, prefix string) (string, error) {
	var number string
	err := r.db.WithContext(ctx).Model(&models.Invoice{}).
		Where("number LIKE ?", prefix+"%").
		Order("number DESC").
		Limit(1).
		Pluck("number", &number).Error
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read invoice sequence")
	}
	return number, nil
}

func (r *Repository) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	if err := r.db.WithContext(ctx).Create(inv).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create invoice")
	}
	return nil
}

func (r *Repository) FindInvoice(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	var inv models.Invoice
	err := r.db.WithContext(ctx).Preload("Items").First(&inv, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find invoice")
	}
	return &inv, nil
}

func (r *Repository) ListInvoicesByCompany(ctx context.Context, companyID uuid.UUID, p pagination.Params) ([]models.Invoice, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Invoice{}).Where("company_id = ?", companyID)
	if p.Search != "" {
		q = q.Where("number LIKE ?", "%"+p.Search+"%")
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count invoices")
	}
	var invoices []models.Invoice
	err := q.Preload("Items").Order("created_at DESC").Offset(p.Offset()).Limit(p.Limit()).Find(&invoices).Error
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list invoices")
	}
	return invoices, total, nil
}

func (r *Repository) SaveInvoice(ctx context.Context, inv *models.Invoice) error {
	if err := r.db.WithContext(ctx).Save(inv).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save invoice")
	}
	return nil
}

func (r *Repository) ListAlertsByCompany(ctx context.Context, companyID uuid.UUID, p pagination.Params) ([]models.UsageAlert, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.UsageAlert{}).Where("company_id = ?", companyID)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count usage alerts")
	}
	var alerts []models.UsageAlert
	err := q.Order("created_at DESC").Offset(p.Offset()).Limit(p.Limit()).Find(&alerts).Error
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list usage alerts")
	}
	return alerts, total, nil
}
