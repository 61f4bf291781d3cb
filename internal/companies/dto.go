package companies

import (
	"time"

	"github.com/google/uuid"

	"github.com/megahubhq/megahub-backend/internal/slots"
	"github.com/megahubhq/megahub-backend/pkg/db/models"
)

// CompanyDTO is the transport shape for a company.
type CompanyDTO struct {
	ID               uuid.UUID  `json:"id"`
	Name             string     `json:"name"`
	BillingEmail     string     `json:"billing_email"`
	AdminUserID      *uuid.UUID `json:"admin_user_id,omitempty"`
	StripeCustomerID *string    `json:"stripe_customer_id,omitempty"`
	IsActive         bool       `json:"is_active"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// CreateCompanyRequest bootstraps a tenant: the company, its admin user,
// slot allocation and trial subscription are created together.
type CreateCompanyRequest struct {
	Name           string `json:"name" validate:"required"`
	BillingEmail   string `json:"billing_email" validate:"required,email"`
	Plan           string `json:"plan" validate:"required"`
	AdminUsername  string `json:"admin_username" validate:"required"`
	AdminEmail     string `json:"admin_email" validate:"required,email"`
	AdminPassword  string `json:"admin_password" validate:"required,min=8"`
	AdminFirstName string `json:"admin_first_name" validate:"required"`
	AdminLastName  string `json:"admin_last_name" validate:"required"`
}

// UpdateCompanyRequest carries a partial update; nil fields are untouched.
type UpdateCompanyRequest struct {
	Name         *string `json:"name,omitempty"`
	BillingEmail *string `json:"billing_email,omitempty" validate:"omitempty,email"`
}

// BootstrapResult is returned from company creation.
type BootstrapResult struct {
	Company      CompanyDTO     `json:"company"`
	AdminUserID  uuid.UUID      `json:"admin_user_id"`
	Subscription uuid.UUID      `json:"subscription_id"`
	TrialEnd     time.Time      `json:"trial_end"`
	Usage        slots.UsageDTO `json:"usage"`
}

// LimitsDTO answers the check_limits operation.
type LimitsDTO struct {
	Usage       slots.UsageDTO `json:"usage"`
	CanAddBrand bool           `json:"can_add_brand"`
	CanAddUser  bool           `json:"can_add_user"`
}

func FromModel(c *models.Company) *CompanyDTO {
	if c == nil {
		return nil
	}
	return &CompanyDTO{
		ID:               c.ID,
		Name:             c.Name,
		BillingEmail:     c.BillingEmail,
		AdminUserID:      c.AdminUserID,
		StripeCustomerID: c.StripeCustomerID,
		IsActive:         c.IsActive,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}
