package features

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/megahubhq/megahub-backend/pkg/db/models"
)

// Repository handles feature catalog and grant persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to feature operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByCode loads a catalog feature by its code.
func (r *Repository) FindByCode(ctx context.Context, code string) (*models.Feature, error) {
	var feature models.Feature
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&feature).Error; err != nil {
		return nil, err
	}
	return &feature, nil
}

// ListCatalog returns all active catalog features.
func (r *Repository) ListCatalog(ctx context.Context) ([]models.Feature, error) {
	var features []models.Feature
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("code ASC").
		Find(&features).Error
	return features, err
}

// GetGrant loads the company's grant for a feature, with the catalog row
// preloaded.
func (r *Repository) GetGrant(ctx context.Context, companyID, featureID uuid.UUID) (*models.CompanyFeature, error) {
	var grant models.CompanyFeature
	err := r.db.WithContext(ctx).
		Preload("Feature").
		Where("company_id = ? AND feature_id = ?", companyID, featureID).
		First(&grant).Error
	if err != nil {
		return nil, err
	}
	return &grant, nil
}

// ListGrants returns all grants for a company.
func (r *Repository) ListGrants(ctx context.Context, companyID uuid.UUID) ([]models.CompanyFeature, error) {
	var grants []models.CompanyFeature
	err := r.db.WithContext(ctx).
		Preload("Feature").
		Where("company_id = ?", companyID).
		Find(&grants).Error
	return grants, err
}

// Upsert creates or updates a grant.
func (r *Repository) Upsert(ctx context.Context, grant *models.CompanyFeature) error {
	if grant == nil {
		return fmt.Errorf("grant is required")
	}
	return r.db.WithContext(ctx).Save(grant).Error
}

// ConsumeAtomic increments used_value by n only when the grant is enabled,
// unexpired, and the result stays within the limit. Returns true when the
// guarded update took effect.
func (r *Repository) ConsumeAtomic(ctx context.Context, companyID, featureID uuid.UUID, n int) (bool, error) {
	if n <= 0 {
		return false, fmt.Errorf("consume amount must be positive")
	}
	res := r.db.WithContext(ctx).
		Model(&models.CompanyFeature{}).
		Where("company_id = ? AND feature_id = ?", companyID, featureID).
		Where("is_enabled = ?", true).
		Where("expires_at IS NULL OR expires_at > ?", time.Now().UTC()).
		Where("limit_value IS NULL OR used_value + ? <= limit_value", n).
		Update("used_value", gorm.Expr("used_value + ?", n))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
