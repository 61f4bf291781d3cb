package scope

import (
	"fmt"

	"gorm.io/gorm"

	pkgerrors "github.com/megahubhq/megahub-backend/pkg/errors"
)

// Apply rewrites a queryset down to the rows the caller may see. Global
// resources pass through untouched; scoped resources are joined to brands,
// soft-deleted brands are always filtered out, and the remaining rows are
// restricted by the caller's visibility tier. A caller with no accessible
// brands gets an empty result, not an error.
func (r *Registry) Apply(q *gorm.DB, resource string, access Access) (*gorm.DB, error) {
	rule, ok := r.Rule(resource)
	if !ok {
		// Unmapped resources never fall through to "visible to all";
		// Verify catches this at boot, this guards direct callers.
		return nil, pkgerrors.New(pkgerrors.CodeInternal,
			fmt.Sprintf("resource %q is not in the routing table", resource))
	}
	if rule.Global {
		return q, nil
	}

	for _, join := range rule.Joins {
		q = q.Joins(join)
	}
	q = q.
		Joins(fmt.Sprintf("JOIN brands ON brands.id = %s", rule.BrandColumn)).
		Where("brands.soft_deleted = ?", false)

	switch {
	case access.AllBrands:
		return q, nil
	case access.CompanyID != nil:
		return q.Where("brands.company_id = ?", *access.CompanyID), nil
	case len(access.BrandIDs) > 0:
		return q.Where("brands.id IN ?", access.BrandIDs), nil
	default:
		return q.Where("1 = 0"), nil
	}
}
