package rbac

import (
	"github.com/google/uuid"

	"github.com/megahubhq/megahub-backend/pkg/enums"
)

// Actor is the authenticated identity a request acts as. It is built once by
// the auth middleware from token claims and passed down to services.
type Actor struct {
	UserID      uuid.UUID
	CompanyID   *uuid.UUID
	UserType    enums.UserType
	IsSuperuser bool
}

// IsCompanyAdminOf reports whether the actor administers the given company.
func (a Actor) IsCompanyAdminOf(companyID uuid.UUID) bool {
	if a.UserType != enums.UserTypeCompanyAdmin {
		return false
	}
	return a.CompanyID != nil && *a.CompanyID == companyID
}

// SameCompany reports whether the actor belongs to the given company.
func (a Actor) SameCompany(companyID uuid.UUID) bool {
	return a.CompanyID != nil && *a.CompanyID == companyID
}
