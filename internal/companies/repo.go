package companies

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/megahubhq/megahub-backend/pkg/db/models"
	"github.com/megahubhq/megahub-backend/pkg/enums"
	"github.com/megahubhq/megahub-backend/pkg/pagination"
)

// Repository exposes company persistence plus the rows the bootstrap and
// cascade transactions touch.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

var listOrderings = map[string]string{
	"name":       "name",
	"created_at": "created_at",
}

func (r *Repository) Create(ctx context.Context, company *models.Company) (*models.Company, error) {
	if err := r.db.WithContext(ctx).Create(company).Error; err != nil {
		return nil, err
	}
	return company, nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	var company models.Company
	if err := r.db.WithContext(ctx).First(&company, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &company, nil
}

func (r *Repository) FindByName(ctx context.Context, name string) (*models.Company, error) {
	var company models.Company
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&company).Error; err != nil {
		return nil, err
	}
	return &company, nil
}

func (r *Repository) List(ctx context.Context, p pagination.Params) ([]models.Company, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Company{})
	if p.Search != "" {
		like := "%" + p.Search + "%"
		q = q.Where("name LIKE ? OR billing_email LIKE ?", like, like)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []models.Company
	err := q.
		Order(pagination.OrderClause(p.Ordering, listOrderings, "created_at DESC")).
		Offset(p.Offset()).
		Limit(p.Limit()).
		Find(&out).Error
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *Repository) Save(ctx context.Context, company *models.Company) error {
	return r.db.WithContext(ctx).Save(company).Error
}

// FindPlanByName loads an active plan from the catalog.
func (r *Repository) FindPlanByName(ctx context.Context, name string) (*models.Plan, error) {
	var plan models.Plan
	err := r.db.WithContext(ctx).
		Where("name = ? AND is_active = ?", name, true).
		First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *Repository) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *Repository) CreateRole(ctx context.Context, role *models.Role) error {
	return r.db.WithContext(ctx).Create(role).Error
}

func (r *Repository) CreateUserRole(ctx context.Context, userRole *models.UserRole) error {
	return r.db.WithContext(ctx).Create(userRole).Error
}

// ActiveIDs returns the ids of every active company, for sweep jobs.
func (r *Repository) ActiveIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Company{}).
		Where("is_active = ?", true).
		Order("created_at").
		Pluck("id", &ids).Error
	return ids, err
}

// DeactivateCompany flips is_active off on the company row.
func (r *Repository) DeactivateCompany(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Company{}).
		Where("id = ?", id).
		UpdateColumn("is_active", false).Error
}

// SoftDeleteBrands marks all of a company's brands deleted.
func (r *Repository) SoftDeleteBrands(ctx context.Context, companyID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Brand{}).
		Where("company_id = ? AND soft_deleted = ?", companyID, false).
		UpdateColumns(map[string]any{"soft_deleted": true, "is_active": false}).Error
}

// DeactivateMembers deactivates every company user except the admin, who
// keeps access for billing wrap-up.
func (r *Repository) DeactivateMembers(ctx context.Context, companyID uuid.UUID, keep *uuid.UUID) error {
	q := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("company_id = ? AND is_active = ?", companyID, true)
	if keep != nil {
		q = q.Where("id <> ?", *keep)
	}
	return q.UpdateColumn("is_active", false).Error
}

// OpenSubscription returns the company's non-canceled subscription, if any.
func (r *Repository) OpenSubscription(ctx context.Context, companyID uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Where("company_id = ? AND status <> ?", companyID, enums.SubscriptionStatusCanceled).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// MarkSubscriptionCanceled ends the subscription immediately.
func (r *Repository) MarkSubscriptionCanceled(ctx context.Context, id uuid.UUID, canceledAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"status":      enums.SubscriptionStatusCanceled,
			"canceled_at": canceledAt,
		}).Error
}
