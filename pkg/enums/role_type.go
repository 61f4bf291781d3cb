package enums

import "fmt"

// RoleType scopes a role to the context it requires.
type RoleType string

const (
	RoleTypeCompany RoleType = "company"
	RoleTypeBrand   RoleType = "brand"
	RoleTypeFeature RoleType = "feature"
	RoleTypeSystem  RoleType = "system"
)

var validRoleTypes = []RoleType{
	RoleTypeCompany,
	RoleTypeBrand,
	RoleTypeFeature,
	RoleTypeSystem,
}

// String implements fmt.Stringer.
func (v RoleType) String() string {
	return string(v)
}

// IsValid reports whether the value is known.
func (v RoleType) IsValid() bool {
	for _, candidate := range validRoleTypes {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseRoleType converts raw input into a RoleType.
func ParseRoleType(value string) (RoleType, error) {
	for _, candidate := range validRoleTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid role type %q", value)
}
