package rbac

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/megahubhq/megahub-backend/pkg/db/models"
	"github.com/megahubhq/megahub-backend/pkg/enums"
)

// Resource identifies the object a permission check is about.
type Resource struct {
	// Name is the resource type, e.g. "websites". It must match the
	// Resource column of the permissions being checked.
	Name      string
	CompanyID uuid.UUID
	BrandID   *uuid.UUID
}

// Assignment is one UserRole row fully hydrated for the resolver: the role,
// its granted permissions, and its explicit denies.
type Assignment struct {
	Role      models.Role
	BrandID   *uuid.UUID
	ExpiresAt *time.Time
	Grants    []models.Permission
	Denies    []models.Permission
}

// ResolveInput carries everything the resolver needs. All I/O happens before
// the call; Resolve itself is a pure function.
type ResolveInput struct {
	Actor    Actor
	Resource Resource
	Action   enums.PermissionType
	Now      time.Time

	// IsBrandAdmin reports whether the actor administers the resource's
	// brand. Ignored when the resource has no brand.
	IsBrandAdmin bool
	// HasBrandAccess reports whether the resource's brand is in the
	// actor's accessible brand set.
	HasBrandAccess bool
	Assignments    []Assignment

	// FeatureActive is nil when the resource is not feature gated.
	FeatureActive *bool
	FeatureCode   string
}

// Decision is the resolver verdict plus a human-readable trace of the rules
// that fired, in evaluation order.
type Decision struct {
	Allowed bool
	Rule    string
	Trace   []string
}

// Brand-admin grants cover every action class except custom permissions.
var brandAdminActions = map[enums.PermissionType]bool{
	enums.PermissionTypeView:   true,
	enums.PermissionTypeCreate: true,
	enums.PermissionTypeEdit:   true,
	enums.PermissionTypeAdmin:  true,
}

var userTypeDefaults = map[enums.UserType]map[enums.PermissionType]bool{
	enums.UserTypeMember: {
		enums.PermissionTypeView:   true,
		enums.PermissionTypeCreate: true,
		enums.PermissionTypeEdit:   true,
	},
	enums.UserTypeReadOnly: {
		enums.PermissionTypeView: true,
	},
}

// Resolve computes the effective permission for (actor, resource, action).
// Precedence, higher wins: superuser, company admin, brand admin, explicit
// role assignments with denies subtracting, user-type defaults. A feature
// gate on the resource drops the result for everyone but superusers.
func Resolve(in ResolveInput) Decision {
	d := Decision{}

	if in.Actor.IsSuperuser {
		d.allow("superuser", "superuser override grants %s on %s", in.Action, in.Resource.Name)
		return d
	}

	if in.FeatureActive != nil && !*in.FeatureActive {
		d.deny("feature_gate", "feature %q inactive for company %s", in.FeatureCode, in.Resource.CompanyID)
		return d
	}

	if in.Actor.IsCompanyAdminOf(in.Resource.CompanyID) {
		d.allow("company_admin", "company admin of %s", in.Resource.CompanyID)
		return d
	}
	d.tracef("not company admin of %s", in.Resource.CompanyID)

	if in.Resource.BrandID != nil && in.IsBrandAdmin {
		if brandAdminActions[in.Action] {
			d.allow("brand_admin", "brand admin of %s grants %s", *in.Resource.BrandID, in.Action)
			return d
		}
		d.tracef("brand admin of %s does not cover action %s", *in.Resource.BrandID, in.Action)
	}

	granted, denied := false, false
	for _, assignment := range in.Assignments {
		if !assignmentMatches(assignment, in.Resource, in.Now, &d) {
			continue
		}
		for _, perm := range assignment.Denies {
			if perm.Resource == in.Resource.Name && perm.PermissionType == in.Action {
				denied = true
				d.tracef("role %q explicitly denies %s on %s", assignment.Role.Name, in.Action, in.Resource.Name)
			}
		}
		for _, perm := range assignment.Grants {
			if perm.Resource == in.Resource.Name && perm.PermissionType == in.Action {
				granted = true
				d.tracef("role %q grants %s on %s", assignment.Role.Name, in.Action, in.Resource.Name)
			}
		}
	}
	if denied {
		d.deny("role_deny", "explicit deny wins over role grants")
		return d
	}
	if granted {
		d.Allowed = true
		d.Rule = "role_grant"
		return d
	}

	if defaults, ok := userTypeDefaults[in.Actor.UserType]; ok && defaults[in.Action] {
		if in.Resource.BrandID == nil || in.HasBrandAccess {
			d.allow("user_type_default", "user type %s defaults include %s", in.Actor.UserType, in.Action)
			return d
		}
		d.tracef("user type default skipped, brand %s not accessible", *in.Resource.BrandID)
	}

	d.deny("no_match", "no rule grants %s on %s", in.Action, in.Resource.Name)
	return d
}

// assignmentMatches applies the UserRole context-matching rules: company
// roles match the resource's company, brand roles match the resource's
// brand, and expired assignments never match.
func assignmentMatches(a Assignment, res Resource, now time.Time, d *Decision) bool {
	if a.ExpiresAt != nil && a.ExpiresAt.Before(now) {
		d.tracef("role %q expired at %s, skipped", a.Role.Name, a.ExpiresAt.Format(time.RFC3339))
		return false
	}
	if !a.Role.IsActive {
		return false
	}
	switch a.Role.RoleType {
	case enums.RoleTypeSystem:
		return true
	case enums.RoleTypeCompany:
		if a.Role.CompanyID != nil && *a.Role.CompanyID != res.CompanyID {
			return false
		}
	case enums.RoleTypeBrand:
		if res.BrandID == nil {
			return false
		}
		if a.BrandID != nil && *a.BrandID != *res.BrandID {
			return false
		}
	case enums.RoleTypeFeature:
		// Feature roles are bound to a resource type by name.
		if a.Role.Name != res.Name {
			return false
		}
	}
	// Brand-scoped assignments of company roles restrict the role to that
	// brand.
	if a.BrandID != nil && a.Role.RoleType != enums.RoleTypeBrand {
		if res.BrandID == nil || *a.BrandID != *res.BrandID {
			return false
		}
	}
	return true
}

func (d *Decision) allow(rule, format string, args ...any) {
	d.Allowed = true
	d.Rule = rule
	d.tracef(format, args...)
}

func (d *Decision) deny(rule, format string, args ...any) {
	d.Allowed = false
	d.Rule = rule
	d.tracef(format, args...)
}

func (d *Decision) tracef(format string, args ...any) {
	d.Trace = append(d.Trace, fmt.Sprintf(format, args...))
}
