package credentials

import (
	"time"

	"github.com/google/uuid"

	"github.com/megahubhq/megahub-backend/pkg/db/models"
)

// CredentialDTO is the transport shape for a stored provider credential.
// The key itself is never included; KeyHint carries the trailing characters
// for display.
type CredentialDTO struct {
	ID         uuid.UUID  `json:"id"`
	BrandID    uuid.UUID  `json:"brand_id"`
	Provider   string     `json:"provider"`
	KeyHint    string     `json:"key_hint"`
	IsActive   bool       `json:"is_active"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// CreateCredentialRequest stores a provider key for a brand. BrandID is
// optional when the request carries a current brand.
type CreateCredentialRequest struct {
	Provider string     `json:"provider" validate:"required"`
	Key      string     `json:"key" validate:"required"`
	BrandID  *uuid.UUID `json:"brand_id,omitempty"`
}

// RotateCredentialRequest replaces the stored key in place.
type RotateCredentialRequest struct {
	Key string `json:"key" validate:"required"`
}

func credentialFromModel(c *models.AICredential) *CredentialDTO {
	if c == nil {
		return nil
	}
	return &CredentialDTO{
		ID:         c.ID,
		BrandID:    c.BrandID,
		Provider:   c.Provider,
		KeyHint:    c.KeyHint,
		IsActive:   c.IsActive,
		LastUsedAt: c.LastUsedAt,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}
