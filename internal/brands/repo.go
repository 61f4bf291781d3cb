package brands

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/megahubhq/megahub-backend/pkg/db/models"
	"github.com/megahubhq/megahub-backend/pkg/pagination"
)

// Repository exposes brand persistence operations. Soft-deleted brands are
// excluded everywhere except FindByID, which callers use for restore.
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

func (r *Repository) Create(ctx context.Context, brand *models.Brand) (*models.Brand, error) {
	if err := r.db.WithContext(ctx).Create(brand).Error; err != nil {
		return nil, err
	}
	return brand, nil
}

// FindByID loads a brand row, soft-deleted ones included.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Brand, error) {
	var brand models.Brand
	if err := r.db.WithContext(ctx).First(&brand, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &brand, nil
}

// FindByName loads a live brand by (company, name).
func (r *Repository) FindByName(ctx context.Context, companyID uuid.UUID, name string) (*models.Brand, error) {
	var brand models.Brand
	err := r.db.WithContext(ctx).
		Where("company_id = ? AND name = ? AND soft_deleted = ?", companyID, name, false).
		First(&brand).Error
	if err != nil {
		return nil, err
	}
	return &brand, nil
}

// ListByCompany pages through a company's live brands.
func (r *Repository) ListByCompany(ctx context.Context, companyID uuid.UUID, p pagination.Params) ([]models.Brand, int64, error) {
	q := r.db.WithContext(ctx).
		Model(&models.Brand{}).
		Where("company_id = ? AND soft_deleted = ?", companyID, false)
	return r.page(q, p)
}

// ListByIDs pages through the given live brands, used for member listings.
func (r *Repository) ListByIDs(ctx context.Context, ids []uuid.UUID, p pagination.Params) ([]models.Brand, int64, error) {
	if len(ids) == 0 {
		return []models.Brand{}, 0, nil
	}
	q := r.db.WithContext(ctx).
		Model(&models.Brand{}).
		Where("id IN ? AND soft_deleted = ?", ids, false)
	return r.page(q, p)
}

func (r *Repository) page(q *gorm.DB, p pagination.Params) ([]models.Brand, int64, error) {
	if p.Search != "" {
		q = q.Where("name LIKE ?", "%"+p.Search+"%")
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []models.Brand
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

func (r *Repository) Save(ctx context.Context, brand *models.Brand) error {
	return r.db.WithContext(ctx).Save(brand).Error
}

// MarkDeleted flips soft_deleted and detaches the admin reference.
func (r *Repository) MarkDeleted(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Brand{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"soft_deleted": true,
			"is_active":    false,
			"updated_at":   time.Now().UTC(),
		}).Error
}

// MarkRestored clears soft_deleted, leaving is_active for a separate toggle.
func (r *Repository) MarkRestored(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Brand{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"soft_deleted": false,
			"is_active":    true,
			"updated_at":   time.Now().UTC(),
		}).Error
}

func (r *Repository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return r.db.WithContext(ctx).
		Model(&models.Brand{}).
		Where("id = ?", id).
		UpdateColumn("is_active", active).Error
}

// AddMembers inserts missing membership rows for the given users.
func (r *Repository) AddMembers(ctx context.Context, brandID uuid.UUID, userIDs []uuid.UUID) error {
	for _, userID := range userIDs {
		var count int64
		err := r.db.WithContext(ctx).
			Model(&models.BrandUser{}).
			Where("brand_id = ? AND user_id = ?", brandID, userID).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		link := models.BrandUser{ID: uuid.New(), BrandID: brandID, UserID: userID}
		if err := r.db.WithContext(ctx).Create(&link).Error; err != nil {
			return err
		}
	}
	return nil
}

// RemoveMembers deletes membership rows for the given users.
func (r *Repository) RemoveMembers(ctx context.Context, brandID uuid.UUID, userIDs []uuid.UUID) error {
	if len(userIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Where("brand_id = ? AND user_id IN ?", brandID, userIDs).
		Delete(&models.BrandUser{}).Error
}

// Members returns the users with access to the brand.
func (r *Repository) Members(ctx context.Context, brandID uuid.UUID) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).
		Joins("JOIN brand_users ON brand_users.user_id = users.id").
		Where("brand_users.brand_id = ?", brandID).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

// AccessibleBrandIDs lists the live brands in a user's accessible set.
func (r *Repository) AccessibleBrandIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.BrandUser{}).
		Joins("JOIN brands ON brands.id = brand_users.brand_id").
		Where("brand_users.user_id = ? AND brands.soft_deleted = ?", userID, false).
		Pluck("brand_users.brand_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// CompanyUserIDs lists the ids of a company's users, used to validate
// membership changes against the same-company invariant.
func (r *Repository) CompanyUserIDs(ctx context.Context, companyID uuid.UUID, userIDs []uuid.UUID) ([]uuid.UUID, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("company_id = ? AND id IN ?", companyID, userIDs).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// FindUser loads a user row.
func (r *Repository) FindUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
