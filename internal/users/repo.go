package users

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/megahubhq/megahub-backend/pkg/db/models"
	"github.com/megahubhq/megahub-backend/pkg/pagination"
)

// Repository exposes user persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a users repo bound to the provided GORM handle.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

var listOrderings = map[string]string{
	"username":   "username",
	"email":      "email",
	"created_at": "created_at",
	"last_name":  "last_name",
}

// Create inserts a new user and returns the persisted model.
func (r *Repository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// FindByID loads a user by their UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByEmail retrieves the user matching the provided email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByUsername retrieves the user matching the provided username.
func (r *Repository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// ListByCompany pages through a company's users with optional search on
// name, username and email.
func (r *Repository) ListByCompany(ctx context.Context, companyID uuid.UUID, p pagination.Params) ([]models.User, int64, error) {
	q := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("company_id = ?", companyID)

	if p.Search != "" {
		like := "%" + p.Search + "%"
		q = q.Where(
			"username LIKE ? OR email LIKE ? OR first_name LIKE ? OR last_name LIKE ?",
			like, like, like, like,
		)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var out []models.User
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

// Save persists the full user row.
func (r *Repository) Save(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Save(user).Error
}

// SetActive flips the is_active flag.
func (r *Repository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("is_active", active).Error
}

// UpdatePassword replaces the stored password hash.
func (r *Repository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("password_hash", passwordHash).Error
}

// UpdateLastLogin refreshes the user's last_login_at timestamp.
func (r *Repository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("last_login_at", at).Error
}

// BrandIDs returns the brand memberships of a user.
func (r *Repository) BrandIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.BrandUser{}).
		Where("user_id = ?", userID).
		Pluck("brand_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ReplaceBrands swaps the user's brand memberships for the given set.
func (r *Repository) ReplaceBrands(ctx context.Context, userID uuid.UUID, brandIDs []uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.BrandUser{}).Error
	if err != nil {
		return err
	}
	for _, brandID := range brandIDs {
		link := models.BrandUser{ID: uuid.New(), BrandID: brandID, UserID: userID}
		if err := r.db.WithContext(ctx).Create(&link).Error; err != nil {
			return err
		}
	}
	return nil
}

// CompanyBrandIDs lists the ids of a company's live brands.
func (r *Repository) CompanyBrandIDs(ctx context.Context, companyID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Brand{}).
		Where("company_id = ? AND soft_deleted = ?", companyID, false).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// FindBrand loads a brand row, soft-deleted ones included.
func (r *Repository) FindBrand(ctx context.Context, brandID uuid.UUID) (*models.Brand, error) {
	var brand models.Brand
	if err := r.db.WithContext(ctx).First(&brand, "id = ?", brandID).Error; err != nil {
		return nil, err
	}
	return &brand, nil
}

// SetBrandAdmin points the brand's admin reference at the user.
func (r *Repository) SetBrandAdmin(ctx context.Context, brandID, userID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Brand{}).
		Where("id = ?", brandID).
		UpdateColumn("brand_admin_id", userID).Error
}

// EnsureBrandMembership adds the membership row if it is not present.
func (r *Repository) EnsureBrandMembership(ctx context.Context, brandID, userID uuid.UUID) error {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.BrandUser{}).
		Where("brand_id = ? AND user_id = ?", brandID, userID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	link := models.BrandUser{ID: uuid.New(), BrandID: brandID, UserID: userID}
	return r.db.WithContext(ctx).Create(&link).Error
}
