package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/megahubhq/megahub-backend/pkg/enums"
)

// Role is a named bundle of permissions. System roles have a nil CompanyID
// and are shared across tenants; company roles are tenant-local.
type Role struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	CompanyID   *uuid.UUID     `gorm:"column:company_id;type:uuid;index;uniqueIndex:ux_roles_company_name"`
	Name        string         `gorm:"column:name;not null;uniqueIndex:ux_roles_company_name"`
	Description string         `gorm:"column:description"`
	RoleType    enums.RoleType `gorm:"column:role_type;type:role_type;not null"`
	IsActive    bool           `gorm:"column:is_active;not null;default:true"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;autoUpdateTime"`

	Permissions []Permission `gorm:"many2many:role_permissions;joinForeignKey:RoleID;joinReferences:PermissionID"`
}

// Permission names a single action on a resource, e.g. ("sites", edit).
type Permission struct {
	ID             uuid.UUID            `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Code           string               `gorm:"column:code;not null;uniqueIndex"`
	Name           string               `gorm:"column:name;not null"`
	Resource       string               `gorm:"column:resource;not null;index"`
	PermissionType enums.PermissionType `gorm:"column:permission_type;type:permission_type;not null"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
}

// RolePermission links a permission into a role. IsDenied entries subtract
// the permission from the role's effective set instead of adding it.
type RolePermission struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	RoleID       uuid.UUID `gorm:"column:role_id;type:uuid;not null;uniqueIndex:ux_role_permissions_role_perm"`
	PermissionID uuid.UUID `gorm:"column:permission_id;type:uuid;not null;uniqueIndex:ux_role_permissions_role_perm"`
	IsDenied     bool      `gorm:"column:is_denied;not null;default:false"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

// UserRole assigns a role to a user, optionally scoped to a single brand and
// optionally expiring. A nil BrandID applies the role company-wide.
type UserRole struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID  `gorm:"column:user_id;type:uuid;not null;index"`
	RoleID    uuid.UUID  `gorm:"column:role_id;type:uuid;not null"`
	BrandID   *uuid.UUID `gorm:"column:brand_id;type:uuid"`
	ExpiresAt *time.Time `gorm:"column:expires_at"`
	GrantedBy *uuid.UUID `gorm:"column:granted_by;type:uuid"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`

	Role *Role `gorm:"foreignKey:RoleID"`
}
