package models

import (
	"time"

	"github.com/google/uuid"
)

// AICredential stores a brand's third-party AI provider key. EncryptedKey
// holds the AES-GCM sealed secret; plaintext never reaches the database.
type AICredential struct {
	ID           uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	BrandID      uuid.UUID  `gorm:"column:brand_id;type:uuid;not null;uniqueIndex:ux_ai_credentials_brand_provider"`
	Provider     string     `gorm:"column:provider;not null;uniqueIndex:ux_ai_credentials_brand_provider"`
	EncryptedKey []byte     `gorm:"column:encrypted_key;type:bytea;not null"`
	KeyHint      string     `gorm:"column:key_hint"`
	IsActive     bool       `gorm:"column:is_active;not null;default:true"`
	LastUsedAt   *time.Time `gorm:"column:last_used_at"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
