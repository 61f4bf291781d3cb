package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/megahubhq/megahub-backend/pkg/enums"
)

// Feature is a platform capability that can be granted to companies, either
// as a simple toggle, a gated module, or a consumable quota.
type Feature struct {
	ID           uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Code         string            `gorm:"column:code;not null;uniqueIndex"`
	Name         string            `gorm:"column:name;not null"`
	Description  string            `gorm:"column:description"`
	FeatureType  enums.FeatureType `gorm:"column:feature_type;type:feature_type;not null"`
	DefaultLimit *int              `gorm:"column:default_limit"`
	IsActive     bool              `gorm:"column:is_active;not null;default:true"`
	CreatedAt    time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// CompanyFeature grants a feature to a company, optionally overriding the
// quota limit and tracking consumption against it.
type CompanyFeature struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	CompanyID  uuid.UUID  `gorm:"column:company_id;type:uuid;not null;uniqueIndex:ux_company_features_company_feature"`
	FeatureID  uuid.UUID  `gorm:"column:feature_id;type:uuid;not null;uniqueIndex:ux_company_features_company_feature"`
	IsEnabled  bool       `gorm:"column:is_enabled;not null;default:true"`
	LimitValue *int       `gorm:"column:limit_value"`
	UsedValue  int        `gorm:"column:used_value;not null;default:0"`
	ExpiresAt  *time.Time `gorm:"column:expires_at"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime"`

	Feature *Feature `gorm:"foreignKey:FeatureID"`
}
