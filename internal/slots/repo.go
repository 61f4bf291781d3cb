package slots

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/megahubhq/megahub-backend/pkg/db/models"
	"github.com/megahubhq/megahub-backend/pkg/enums"
)

// Repository handles slot allocation persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB (or transaction) to slot operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create persists the slot allocation row for a new company.
func (r *Repository) Create(ctx context.Context, allocation *models.CompanySlots) error {
	if allocation == nil {
		return fmt.Errorf("allocation is required")
	}
	return r.db.WithContext(ctx).Create(allocation).Error
}

// GetByCompany loads the slot allocation for a company.
func (r *Repository) GetByCompany(ctx context.Context, companyID uuid.UUID) (*models.CompanySlots, error) {
	var allocation models.CompanySlots
	if err := r.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		First(&allocation).Error; err != nil {
		return nil, err
	}
	return &allocation, nil
}

// GetForUpdate loads the allocation with a row lock held for the transaction.
func (r *Repository) GetForUpdate(tx *gorm.DB, companyID uuid.UUID) (*models.CompanySlots, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	q := tx
	// sqlite has no row locks; writes serialize on the database itself
	if tx.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var allocation models.CompanySlots
	if err := q.
		Where("company_id = ?", companyID).
		First(&allocation).Error; err != nil {
		return nil, err
	}
	return &allocation, nil
}

// Save persists the allocation using the provided transaction.
func (r *Repository) Save(tx *gorm.DB, allocation *models.CompanySlots) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	if allocation == nil {
		return fmt.Errorf("allocation is required")
	}
	return tx.Save(allocation).Error
}

// CountActiveBrands counts the company's brands that are active and not
// logically deleted.
func (r *Repository) CountActiveBrands(tx *gorm.DB, companyID uuid.UUID) (int64, error) {
	if tx == nil {
		return 0, gorm.ErrInvalidTransaction
	}
	var count int64
	err := tx.Model(&models.Brand{}).
		Where("company_id = ? AND is_active = ? AND soft_deleted = ?", companyID, true, false).
		Count(&count).Error
	return count, err
}

// CountActiveUsers counts the company's active users.
func (r *Repository) CountActiveUsers(tx *gorm.DB, companyID uuid.UUID) (int64, error) {
	if tx == nil {
		return 0, gorm.ErrInvalidTransaction
	}
	var count int64
	err := tx.Model(&models.User{}).
		Where("company_id = ? AND is_active = ?", companyID, true).
		Count(&count).Error
	return count, err
}

// ActiveAlert returns the active alert of the given kind, if any.
func (r *Repository) ActiveAlert(tx *gorm.DB, companyID uuid.UUID, kind enums.UsageAlertKind) (*models.UsageAlert, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	var alert models.UsageAlert
	err := tx.
		Where("company_id = ? AND kind = ? AND status = ?", companyID, kind, enums.UsageAlertStatusActive).
		First(&alert).Error
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

// InsertAlert persists a new alert row.
func (r *Repository) InsertAlert(tx *gorm.DB, alert *models.UsageAlert) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	if alert == nil {
		return fmt.Errorf("alert is required")
	}
	return tx.Create(alert).Error
}

// ResolveAlert marks the alert resolved.
func (r *Repository) ResolveAlert(tx *gorm.DB, alert *models.UsageAlert) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	if alert == nil {
		return fmt.Errorf("alert is required")
	}
	return tx.Model(alert).
		Updates(map[string]any{
			"status":      enums.UsageAlertStatusResolved,
			"resolved_at": time.Now().UTC(),
		}).Error
}

// ListAlerts returns the company's alerts, newest first.
func (r *Repository) ListAlerts(ctx context.Context, companyID uuid.UUID) ([]models.UsageAlert, error) {
	var alerts []models.UsageAlert
	err := r.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("created_at DESC").
		Find(&alerts).Error
	return alerts, err
}
