package enums

import "fmt"

// PermissionType classifies the action a permission grants.
type PermissionType string

const (
	PermissionTypeView   PermissionType = "view"
	PermissionTypeCreate PermissionType = "create"
	PermissionTypeEdit   PermissionType = "edit"
	PermissionTypeAdmin  PermissionType = "admin"
	PermissionTypeCustom PermissionType = "custom"
)

var validPermissionTypes = []PermissionType{
	PermissionTypeView,
	PermissionTypeCreate,
	PermissionTypeEdit,
	PermissionTypeAdmin,
	PermissionTypeCustom,
}

// String implements fmt.Stringer.
func (v PermissionType) String() string {
	return string(v)
}

// IsValid reports whether the value is known.
func (v PermissionType) IsValid() bool {
	for _, candidate := range validPermissionTypes {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParsePermissionType converts raw input into a PermissionType.
func ParsePermissionType(value string) (PermissionType, error) {
	for _, candidate := range validPermissionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid permission type %q", value)
}
