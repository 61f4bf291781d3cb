package brands

import (
	"time"

	"github.com/google/uuid"

	"github.com/megahubhq/megahub-backend/pkg/db/models"
)

// BrandDTO is the transport shape for a brand.
type BrandDTO struct {
	ID           uuid.UUID  `json:"id"`
	CompanyID    uuid.UUID  `json:"company_id"`
	Name         string     `json:"name"`
	Description  *string    `json:"description,omitempty"`
	URL          *string    `json:"url,omitempty"`
	BrandAdminID *uuid.UUID `json:"brand_admin_id,omitempty"`
	IsActive     bool       `json:"is_active"`
	SoftDeleted  bool       `json:"soft_deleted"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// CreateBrandRequest is the payload for creating a brand.
type CreateBrandRequest struct {
	Name        string  `json:"name" validate:"required"`
	Description *string `json:"description,omitempty"`
	URL         *string `json:"url,omitempty" validate:"omitempty,url"`
}

// UpdateBrandRequest carries a partial update; nil fields are untouched.
type UpdateBrandRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	URL         *string `json:"url,omitempty" validate:"omitempty,url"`
}

// MemberDTO is a row in a brand's accessible-user listing.
type MemberDTO struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	UserType  string    `json:"user_type"`
	IsActive  bool      `json:"is_active"`
}

func FromModel(b *models.Brand) *BrandDTO {
	if b == nil {
		return nil
	}
	return &BrandDTO{
		ID:           b.ID,
		CompanyID:    b.CompanyID,
		Name:         b.Name,
		Description:  b.Description,
		URL:          b.URL,
		BrandAdminID: b.BrandAdminID,
		IsActive:     b.IsActive,
		SoftDeleted:  b.SoftDeleted,
		CreatedAt:    b.CreatedAt,
		UpdatedAt:    b.UpdatedAt,
	}
}

func memberFromModel(u *models.User) MemberDTO {
	return MemberDTO{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		UserType:  u.UserType.String(),
		IsActive:  u.IsActive,
	}
}
