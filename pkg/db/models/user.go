package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/megahubhq/megahub-backend/pkg/enums"
)

// User represents the canonical identity entity. A user belongs to at
// most one company; brand access is tracked through BrandUser rows.
type User struct {
	ID               uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Username         string         `gorm:"column:username;not null;uniqueIndex"`
	Email            string         `gorm:"column:email;not null;uniqueIndex"`
	PasswordHash     string         `gorm:"column:password_hash;not null"`
	FirstName        string         `gorm:"column:first_name;not null"`
	LastName         string         `gorm:"column:last_name;not null"`
	CompanyID        *uuid.UUID     `gorm:"column:company_id;type:uuid;index"`
	UserType         enums.UserType `gorm:"column:user_type;type:user_type;not null;default:'member'"`
	IsActive         bool           `gorm:"column:is_active;not null;default:true"`
	IsSuperuser      bool           `gorm:"column:is_superuser;not null;default:false"`
	CanViewAnalytics bool           `gorm:"column:can_view_analytics;not null;default:false"`
	CanViewReports   bool           `gorm:"column:can_view_reports;not null;default:false"`
	LastLoginAt      *time.Time     `gorm:"column:last_login_at"`
	CreatedAt        time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
