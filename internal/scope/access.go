package scope

import (
	"github.com/google/uuid"

	"github.com/megahubhq/megahub-backend/internal/rbac"
	pkgerrors "github.com/megahubhq/megahub-backend/pkg/errors"
)

// Access is the caller's brand visibility, computed once per request from
// the actor and their accessible brand set.
type Access struct {
	// AllBrands short-circuits every filter (superusers).
	AllBrands bool
	// CompanyID restricts to every brand of one company (company admins).
	CompanyID *uuid.UUID
	// BrandIDs is the accessible set for everyone else. Empty means the
	// caller sees only global resources.
	BrandIDs []uuid.UUID
}

// NewAccess derives the visibility tier from the actor.
func NewAccess(actor rbac.Actor, accessibleBrandIDs []uuid.UUID) Access {
	if actor.IsSuperuser {
		return Access{AllBrands: true}
	}
	if actor.CompanyID != nil && actor.IsCompanyAdminOf(*actor.CompanyID) {
		return Access{CompanyID: actor.CompanyID}
	}
	return Access{BrandIDs: accessibleBrandIDs}
}

// CanUseBrand reports whether the caller may write into the given brand.
func (a Access) CanUseBrand(brandID uuid.UUID, brandCompanyID uuid.UUID) bool {
	if a.AllBrands {
		return true
	}
	if a.CompanyID != nil {
		return *a.CompanyID == brandCompanyID
	}
	for _, id := range a.BrandIDs {
		if id == brandID {
			return true
		}
	}
	return false
}

// RequireBrand is CanUseBrand with the cross-brand error attached.
func (a Access) RequireBrand(brandID uuid.UUID, brandCompanyID uuid.UUID) error {
	if a.CanUseBrand(brandID, brandCompanyID) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeCrossBrand, "write crosses brand boundaries").
		WithDetails(map[string]any{"brand_id": brandID})
}
