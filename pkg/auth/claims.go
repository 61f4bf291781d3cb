package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/megahubhq/megahub-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID      uuid.UUID
	CompanyID   *uuid.UUID
	UserType    enums.UserType
	IsSuperuser bool
	JTI         string
}

// AccessTokenClaims represents the typed JWT issued to clients. Superusers
// may carry no company id; every other user belongs to exactly one company.
type AccessTokenClaims struct {
	UserID      uuid.UUID      `json:"user_id"`
	CompanyID   *uuid.UUID     `json:"company_id,omitempty"`
	UserType    enums.UserType `json:"user_type"`
	IsSuperuser bool           `json:"is_superuser,omitempty"`
	jwt.RegisteredClaims
}
