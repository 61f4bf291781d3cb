package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/megahubhq/megahub-backend/pkg/db/models"
	"github.com/megahubhq/megahub-backend/pkg/enums"
)

// UserDTO is the transport shape that omits credentials.
type UserDTO struct {
	ID               uuid.UUID      `json:"id"`
	Username         string         `json:"username"`
	Email            string         `json:"email"`
	FirstName        string         `json:"first_name"`
	LastName         string         `json:"last_name"`
	CompanyID        *uuid.UUID     `json:"company_id,omitempty"`
	UserType         enums.UserType `json:"user_type"`
	IsActive         bool           `json:"is_active"`
	IsSuperuser      bool           `json:"is_superuser"`
	CanViewAnalytics bool           `json:"can_view_analytics"`
	CanViewReports   bool           `json:"can_view_reports"`
	BrandIDs         []uuid.UUID    `json:"brand_ids"`
	LastLoginAt      *time.Time     `json:"last_login_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// CreateUserRequest is the payload for adding a user to a company.
type CreateUserRequest struct {
	Username         string         `json:"username" validate:"required"`
	Email            string         `json:"email" validate:"required,email"`
	Password         string         `json:"password" validate:"required,min=8"`
	FirstName        string         `json:"first_name" validate:"required"`
	LastName         string         `json:"last_name" validate:"required"`
	UserType         enums.UserType `json:"user_type"`
	CanViewAnalytics bool           `json:"can_view_analytics"`
	CanViewReports   bool           `json:"can_view_reports"`
	BrandIDs         []uuid.UUID    `json:"brand_ids"`
}

// UpdateUserRequest carries a partial update; nil fields are untouched.
type UpdateUserRequest struct {
	FirstName        *string         `json:"first_name,omitempty"`
	LastName         *string         `json:"last_name,omitempty"`
	Email            *string         `json:"email,omitempty" validate:"omitempty,email"`
	UserType         *enums.UserType `json:"user_type,omitempty"`
	CanViewAnalytics *bool           `json:"can_view_analytics,omitempty"`
	CanViewReports   *bool           `json:"can_view_reports,omitempty"`
}

// ChangePasswordRequest rotates a user's password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

func FromModel(u *models.User, brandIDs []uuid.UUID) *UserDTO {
	if u == nil {
		return nil
	}
	if brandIDs == nil {
		brandIDs = []uuid.UUID{}
	}
	return &UserDTO{
		ID:               u.ID,
		Username:         u.Username,
		Email:            u.Email,
		FirstName:        u.FirstName,
		LastName:         u.LastName,
		CompanyID:        u.CompanyID,
		UserType:         u.UserType,
		IsActive:         u.IsActive,
		IsSuperuser:      u.IsSuperuser,
		CanViewAnalytics: u.CanViewAnalytics,
		CanViewReports:   u.CanViewReports,
		BrandIDs:         brandIDs,
		LastLoginAt:      u.LastLoginAt,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
}
