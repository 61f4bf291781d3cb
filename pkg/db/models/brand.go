package models

import (
	"time"

	"github.com/google/uuid"
)

// Brand is a sub-tenant owned by a company and the scoping unit for
// almost all domain data. Soft-deleted brands stay invisible to
// brand-scoped queries but are retained for audit.
type Brand struct {
	ID           uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	CompanyID    uuid.UUID  `gorm:"column:company_id;type:uuid;not null;uniqueIndex:ux_brands_company_name"`
	Name         string     `gorm:"column:name;not null;uniqueIndex:ux_brands_company_name"`
	Description  *string    `gorm:"column:description"`
	URL          *string    `gorm:"column:url"`
	BrandAdminID *uuid.UUID `gorm:"column:brand_admin_id;type:uuid"`
	IsActive     bool       `gorm:"column:is_active;not null;default:true"`
	SoftDeleted  bool       `gorm:"column:soft_deleted;not null;default:false"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// BrandUser links a company member into a brand's accessible-user set.
type BrandUser struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	BrandID   uuid.UUID `gorm:"column:brand_id;type:uuid;not null;uniqueIndex:ux_brand_users_brand_user"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_brand_users_brand_user"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
