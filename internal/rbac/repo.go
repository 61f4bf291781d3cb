package rbac

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/megahubhq/megahub-backend/pkg/db/models"
	"github.com/megahubhq/megahub-backend/pkg/enums"
	pkgerrors "github.com/megahubhq/megahub-backend/pkg/errors"
)

// Repository loads the role and membership rows the resolver evaluates.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Assignments returns the user's role assignments with each role's grants
// and explicit denies hydrated.
func (r *Repository) Assignments(ctx context.Context, userID uuid.UUID) ([]Assignment, error) {
	var userRoles []models.UserRole
	err := r.db.WithContext(ctx).
		Preload("Role").
		Where("user_id = ?", userID).
		Find(&userRoles).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user roles")
	}
	if len(userRoles) == 0 {
		return nil, nil
	}

	roleIDs := make([]uuid.UUID, 0, len(userRoles))
	for _, ur := range userRoles {
		roleIDs = append(roleIDs, ur.RoleID)
	}

	var links []models.RolePermission
	err = r.db.WithContext(ctx).
		Where("role_id IN ?", roleIDs).
		Find(&links).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load role permissions")
	}

	permIDs := make([]uuid.UUID, 0, len(links))
	for _, link := range links {
		permIDs = append(permIDs, link.PermissionID)
	}
	permsByID := make(map[uuid.UUID]models.Permission, len(permIDs))
	if len(permIDs) > 0 {
		var perms []models.Permission
		err = r.db.WithContext(ctx).
			Where("id IN ?", permIDs).
			Find(&perms).Error
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load permissions")
		}
		for _, p := range perms {
			permsByID[p.ID] = p
		}
	}

	grantsByRole := make(map[uuid.UUID][]models.Permission)
	deniesByRole := make(map[uuid.UUID][]models.Permission)
	for _, link := range links {
		perm, ok := permsByID[link.PermissionID]
		if !ok {
			continue
		}
		if link.IsDenied {
			deniesByRole[link.RoleID] = append(deniesByRole[link.RoleID], perm)
		} else {
			grantsByRole[link.RoleID] = append(grantsByRole[link.RoleID], perm)
		}
	}

	assignments := make([]Assignment, 0, len(userRoles))
	for _, ur := range userRoles {
		if ur.Role == nil {
			continue
		}
		assignments = append(assignments, Assignment{
			Role:      *ur.Role,
			BrandID:   ur.BrandID,
			ExpiresAt: ur.ExpiresAt,
			Grants:    grantsByRole[ur.RoleID],
			Denies:    deniesByRole[ur.RoleID],
		})
	}
	return assignments, nil
}

// IsBrandAdmin reports whether the user administers the brand, either as the
// brand's designated admin or as a brand_admin member of it.
func (r *Repository) IsBrandAdmin(ctx context.Context, userID, brandID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Brand{}).
		Where("id = ? AND brand_admin_id = ? AND soft_deleted = ?", brandID, userID, false).
		Count(&count).Error
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check brand admin")
	}
	if count > 0 {
		return true, nil
	}

	err = r.db.WithContext(ctx).
		Model(&models.BrandUser{}).
		Joins("JOIN users ON users.id = brand_users.user_id").
		Where("brand_users.brand_id = ? AND brand_users.user_id = ? AND users.user_type = ?",
			brandID, userID, enums.UserTypeBrandAdmin).
		Count(&count).Error
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check brand admin membership")
	}
	return count > 0, nil
}

// HasBrandAccess reports whether the brand is in the user's accessible set.
func (r *Repository) HasBrandAccess(ctx context.Context, userID, brandID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.BrandUser{}).
		Where("brand_id = ? AND user_id = ?", brandID, userID).
		Count(&count).Error
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check brand access")
	}
	if count > 0 {
		return true, nil
	}
	return r.IsBrandAdmin(ctx, userID, brandID)
}
