package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/megahubhq/megahub-backend/pkg/enums"
)

// Plan is a catalog entry describing the price and included slots of a
// subscription tier.
type Plan struct {
	ID                   uuid.UUID             `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name                 string                `gorm:"column:name;not null;uniqueIndex"`
	Interval             enums.BillingInterval `gorm:"column:interval;type:billing_interval;not null"`
	Price                decimal.Decimal       `gorm:"column:price;type:numeric(12,2);not null"`
	IncludedBrandSlots   int                   `gorm:"column:included_brand_slots;not null;default:0"`
	IncludedUserSlots    int                   `gorm:"column:included_user_slots;not null;default:0"`
	AdditionalBrandPrice decimal.Decimal       `gorm:"column:additional_brand_price;type:numeric(12,2);not null;default:0"`
	AdditionalUserPrice  decimal.Decimal       `gorm:"column:additional_user_price;type:numeric(12,2);not null;default:0"`
	StripePriceID        *string               `gorm:"column:stripe_price_id"`
	IsFeatured           bool                  `gorm:"column:is_featured;not null;default:false"`
	IsActive             bool                  `gorm:"column:is_active;not null;default:true"`
	DisplayOrder         int                   `gorm:"column:display_order;not null;default:0"`
	CreatedAt            time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
