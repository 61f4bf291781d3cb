package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/megahubhq/megahub-backend/pkg/enums"
)

// Subscription tracks a company's position in the billing lifecycle. There is
// at most one non-canceled subscription per company at a time.
type Subscription struct {
	ID                   uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	CompanyID            uuid.UUID                `gorm:"column:company_id;type:uuid;not null;index"`
	PlanID               uuid.UUID                `gorm:"column:plan_id;type:uuid;not null"`
	Status               enums.SubscriptionStatus `gorm:"column:status;type:subscription_status;not null"`
	CurrentPeriodStart   time.Time                `gorm:"column:current_period_start;not null"`
	CurrentPeriodEnd     time.Time                `gorm:"column:current_period_end;not null"`
	TrialEnd             *time.Time               `gorm:"column:trial_end"`
	CancelAtPeriodEnd    bool                     `gorm:"column:cancel_at_period_end;not null;default:false"`
	CanceledAt           *time.Time               `gorm:"column:canceled_at"`
	StripeSubscriptionID *string                  `gorm:"column:stripe_subscription_id;uniqueIndex"`
	CreatedAt            time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time                `gorm:"column:updated_at;autoUpdateTime"`

	Plan *Plan `gorm:"foreignKey:PlanID"`
}
