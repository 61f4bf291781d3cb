package models

import (
	"time"

	"github.com/google/uuid"
)

// Company is the tenant root and the billed entity.
//
// AdminUserID is nullable at the storage level so the company and its
// administrator can be created inside one transaction despite the cyclic
// reference; the tenant service enforces it non-null after bootstrap.
type Company struct {
	ID               uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name             string     `gorm:"column:name;not null;uniqueIndex"`
	BillingEmail     string     `gorm:"column:billing_email;not null"`
	AdminUserID      *uuid.UUID `gorm:"column:admin_user_id;type:uuid"`
	StripeCustomerID *string    `gorm:"column:stripe_customer_id"`
	IsActive         bool       `gorm:"column:is_active;not null;default:true"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
