package auth

import (
	"github.com/google/uuid"

	"github.com/megahubhq/megahub-backend/pkg/enums"
)

// LoginRequest is the credential payload for /auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UserSummary is the identity block returned alongside a fresh token.
type UserSummary struct {
	ID          uuid.UUID      `json:"id"`
	Username    string         `json:"username"`
	Email       string         `json:"email"`
	FirstName   string         `json:"first_name"`
	LastName    string         `json:"last_name"`
	CompanyID   *uuid.UUID     `json:"company_id,omitempty"`
	UserType    enums.UserType `json:"user_type"`
	IsSuperuser bool           `json:"is_superuser,omitempty"`
}

// LoginResponse carries the bearer token and its lifetime in seconds.
type LoginResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresIn   int         `json:"expires_in"`
	User        UserSummary `json:"user"`
}
