package enums

import "fmt"

// UserType classifies a user's tenancy role within its company.
type UserType string

const (
	UserTypeCompanyAdmin UserType = "company_admin"
	UserTypeBrandAdmin   UserType = "brand_admin"
	UserTypeMember       UserType = "member"
	UserTypeReadOnly     UserType = "readonly"
	UserTypeExternal     UserType = "external"
)

var validUserTypes = []UserType{
	UserTypeCompanyAdmin,
	UserTypeBrandAdmin,
	UserTypeMember,
	UserTypeReadOnly,
	UserTypeExternal,
}

// String implements fmt.Stringer.
func (v UserType) String() string {
	return string(v)
}

// IsValid reports whether the value is known.
func (v UserType) IsValid() bool {
	for _, candidate := range validUserTypes {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseUserType converts raw input into a UserType.
func ParseUserType(value string) (UserType, error) {
	for _, candidate := range validUserTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid user type %q", value)
}
