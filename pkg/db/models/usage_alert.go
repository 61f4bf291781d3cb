package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/megahubhq/megahub-backend/pkg/enums"
)

// UsageAlert records a raised quota or billing condition for a company. At
// most one active alert exists per (company, kind); the partial unique index
// is created by migrations.
type UsageAlert struct {
	ID         uuid.UUID              `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	CompanyID  uuid.UUID              `gorm:"column:company_id;type:uuid;not null;index"`
	Kind       enums.UsageAlertKind   `gorm:"column:kind;type:usage_alert_kind;not null"`
	Status     enums.UsageAlertStatus `gorm:"column:status;type:usage_alert_status;not null;default:'active'"`
	Message    string                 `gorm:"column:message;not null"`
	ResolvedAt *time.Time             `gorm:"column:resolved_at"`
	CreatedAt  time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
