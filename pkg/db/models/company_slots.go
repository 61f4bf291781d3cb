package models

import (
	"time"

	"github.com/google/uuid"
)

// CompanySlots holds the allowed and materialized brand/user counts for a
// company. Current counters gate creation fast-path; RefreshCounts
// reconciles them from the source of truth.
type CompanySlots struct {
	ID                 uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	CompanyID          uuid.UUID `gorm:"column:company_id;type:uuid;not null;uniqueIndex"`
	BrandsSlots        int       `gorm:"column:brands_slots;not null;default:0"`
	UsersSlots         int       `gorm:"column:users_slots;not null;default:0"`
	CurrentBrandsCount int       `gorm:"column:current_brands_count;not null;default:0"`
	CurrentUsersCount  int       `gorm:"column:current_users_count;not null;default:0"`
	CreatedAt          time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
