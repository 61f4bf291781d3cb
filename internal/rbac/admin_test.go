package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/megahubhq/megahub-backend/pkg/db"
	"github.com/megahubhq/megahub-backend/pkg/db/models"
	"github.com/megahubhq/megahub-backend/pkg/enums"
	pkgerrors "github.com/megahubhq/megahub-backend/pkg/errors"
	"github.com/megahubhq/megahub-backend/pkg/pagination"
)

func newAdmin(t *testing.T, conn *gorm.DB) Admin {
	t.Helper()
	a, err := NewAdmin(db.NewWithConn(conn))
	if err != nil {
		t.Fatalf("new admin: %v", err)
	}
	return a
}

func companyAdminActor(companyID uuid.UUID) Actor {
	return Actor{
		UserID:    uuid.New(),
		CompanyID: &companyID,
		UserType:  enums.UserTypeCompanyAdmin,
	}
}

func seedPermission(t *testing.T, conn *gorm.DB, code, resource string, pt enums.PermissionType) *models.Permission {
	t.Helper()
	p := models.Permission{ID: uuid.New(), Code: code, Name: code, Resource: resource, PermissionType: pt}
	if err := conn.Create(&p).Error; err != nil {
		t.Fatalf("seed permission: %v", err)
	}
	return &p
}

func TestCreateRoleScopedToCompany(t *testing.T) {
	conn := newRBACTestDB(t)
	adm := newAdmin(t, conn)
	ctx := context.Background()
	actor := companyAdminActor(uuid.New())

	role, err := adm.CreateRole(ctx, actor, CreateRoleRequest{
		Name:     "editors",
		RoleType: enums.RoleTypeCompany,
	})
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	if role.CompanyID == nil || *role.CompanyID != *actor.CompanyID {
		t.Fatalf("expected role scoped to the admin's company, got %+v", role.CompanyID)
	}

	_, err = adm.CreateRole(ctx, actor, CreateRoleRequest{Name: "editors", RoleType: enums.RoleTypeCompany})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected duplicate name conflict, got %v", err)
	}
}

func TestCreateSystemRoleRequiresSuperuser(t *testing.T) {
	conn := newRBACTestDB(t)
	adm := newAdmin(t, conn)
	ctx := context.Background()

	_, err := adm.CreateRole(ctx, companyAdminActor(uuid.New()), CreateRoleRequest{
		Name:     "platform-ops",
		RoleType: enums.RoleTypeSystem,
	})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}

	root := Actor{UserID: uuid.New(), IsSuperuser: true}
	role, err := adm.CreateRole(ctx, root, CreateRoleRequest{Name: "platform-ops", RoleType: enums.RoleTypeSystem})
	if err != nil {
		t.Fatalf("superuser create: %v", err)
	}
	if role.CompanyID != nil {
		t.Fatalf("system roles must not carry a company, got %v", role.CompanyID)
	}
}

func TestAssignPermissionsRewritesEntries(t *testing.T) {
	conn := newRBACTestDB(t)
	adm := newAdmin(t, conn)
	ctx := context.Background()
	actor := companyAdminActor(uuid.New())

	view := seedPermission(t, conn, "websites.view", "websites", enums.PermissionTypeView)
	edit := seedPermission(t, conn, "websites.edit", "websites", enums.PermissionTypeEdit)

	role, err := adm.CreateRole(ctx, actor, CreateRoleRequest{Name: "editors", RoleType: enums.RoleTypeCompany})
	if err != nil {
		t.Fatalf("create role: %v", err)
	}

	role, err = adm.AssignPermissions(ctx, actor, role.ID, AssignPermissionsRequest{
		Grants: []uuid.UUID{view.ID, edit.ID},
	})
	if err != nil {
		t.Fatalf("assign permissions: %v", err)
	}
	if len(role.Grants) != 2 || len(role.Denies) != 0 {
		t.Fatalf("expected two grants, got %+v", role)
	}

	// flip edit into an explicit deny; view is untouched
	role, err = adm.AssignPermissions(ctx, actor, role.ID, AssignPermissionsRequest{
		Denies: []uuid.UUID{edit.ID},
	})
	if err != nil {
		t.Fatalf("reassign permissions: %v", err)
	}
	if len(role.Grants) != 1 || role.Grants[0].Code != "websites.view" {
		t.Fatalf("expected view to survive, got %+v", role.Grants)
	}
	if len(role.Denies) != 1 || role.Denies[0].Code != "websites.edit" {
		t.Fatalf("expected edit denied, got %+v", role.Denies)
	}

	_, err = adm.AssignPermissions(ctx, actor, role.ID, AssignPermissionsRequest{
		Grants: []uuid.UUID{view.ID},
		Denies: []uuid.UUID{view.ID},
	})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected grant/deny overlap rejected, got %v", err)
	}
}

func TestAssignPermissionsForeignRoleReadsNotFound(t *testing.T) {
	conn := newRBACTestDB(t)
	adm := newAdmin(t, conn)
	ctx := context.Background()

	owner := companyAdminActor(uuid.New())
	role, err := adm.CreateRole(ctx, owner, CreateRoleRequest{Name: "editors", RoleType: enums.RoleTypeCompany})
	if err != nil {
		t.Fatalf("create role: %v", err)
	}

	intruder := companyAdminActor(uuid.New())
	_, err = adm.AssignPermissions(ctx, intruder, role.ID, AssignPermissionsRequest{})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found for foreign role, got %v", err)
	}
}

func TestAssignRoleBrandMustMatchRoleCompany(t *testing.T) {
	conn := newRBACTestDB(t)
	adm := newAdmin(t, conn)
	ctx := context.Background()

	companyID := uuid.New()
	actor := companyAdminActor(companyID)

	user := models.User{ID: uuid.New(), CompanyID: &companyID, Username: "u1", Email: "u1@example.com", UserType: enums.UserTypeMember, IsActive: true}
	if err := conn.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	ownBrand := models.Brand{ID: uuid.New(), CompanyID: companyID, Name: "own", IsActive: true}
	foreignBrand := models.Brand{ID: uuid.New(), CompanyID: uuid.New(), Name: "foreign", IsActive: true}
	if err := conn.Create(&ownBrand).Error; err != nil {
		t.Fatalf("seed brand: %v", err)
	}
	if err := conn.Create(&foreignBrand).Error; err != nil {
		t.Fatalf("seed brand: %v", err)
	}

	role, err := adm.CreateRole(ctx, actor, CreateRoleRequest{Name: "editors", RoleType: enums.RoleTypeBrand})
	if err != nil {
		t.Fatalf("create role: %v", err)
	}

	_, err = adm.AssignRole(ctx, actor, AssignRoleRequest{
		UserID:  user.ID,
		RoleID:  role.ID,
		BrandID: &foreignBrand.ID,
	})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected foreign brand rejected, got %v", err)
	}

	assigned, err := adm.AssignRole(ctx, actor, AssignRoleRequest{
		UserID:  user.ID,
		RoleID:  role.ID,
		BrandID: &ownBrand.ID,
	})
	if err != nil {
		t.Fatalf("assign role: %v", err)
	}
	if assigned.GrantedBy == nil || *assigned.GrantedBy != actor.UserID {
		t.Fatalf("expected granted_by recorded, got %+v", assigned.GrantedBy)
	}

	_, err = adm.AssignRole(ctx, actor, AssignRoleRequest{
		UserID:  user.ID,
		RoleID:  role.ID,
		BrandID: &ownBrand.ID,
	})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected duplicate assignment conflict, got %v", err)
	}
}

func TestAssignRoleExpiredExpiryRejected(t *testing.T) {
	conn := newRBACTestDB(t)
	adm := newAdmin(t, conn)

	past := time.Now().Add(-time.Hour)
	_, err := adm.AssignRole(context.Background(), companyAdminActor(uuid.New()), AssignRoleRequest{
		UserID:    uuid.New(),
		RoleID:    uuid.New(),
		ExpiresAt: &past,
	})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected past expiry rejected, got %v", err)
	}
}

func TestListAndRevokeUserRoles(t *testing.T) {
	conn := newRBACTestDB(t)
	adm := newAdmin(t, conn)
	ctx := context.Background()

	companyID := uuid.New()
	actor := companyAdminActor(companyID)
	user := models.User{ID: uuid.New(), CompanyID: &companyID, Username: "u1", Email: "u1@example.com", UserType: enums.UserTypeMember, IsActive: true}
	if err := conn.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	role, err := adm.CreateRole(ctx, actor, CreateRoleRequest{Name: "editors", RoleType: enums.RoleTypeCompany})
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	assigned, err := adm.AssignRole(ctx, actor, AssignRoleRequest{UserID: user.ID, RoleID: role.ID})
	if err != nil {
		t.Fatalf("assign role: %v", err)
	}

	page, err := adm.ListUserRoles(ctx, actor, &user.ID, pagination.Params{})
	if err != nil {
		t.Fatalf("list user roles: %v", err)
	}
	if page.Total != 1 || page.Items[0].RoleName != "editors" {
		t.Fatalf("expected one assignment with role name, got %+v", page)
	}

	// admins of other companies see nothing and cannot revoke
	stranger := companyAdminActor(uuid.New())
	page, err = adm.ListUserRoles(ctx, stranger, &user.ID, pagination.Params{})
	if err != nil {
		t.Fatalf("list as stranger: %v", err)
	}
	if page.Total != 0 {
		t.Fatalf("expected empty list for stranger, got %d", page.Total)
	}
	err = adm.RevokeRole(ctx, stranger, assigned.ID)
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected stranger revoke hidden, got %v", err)
	}

	if err := adm.RevokeRole(ctx, actor, assigned.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	page, err = adm.ListUserRoles(ctx, actor, &user.ID, pagination.Params{})
	if err != nil {
		t.Fatalf("list after revoke: %v", err)
	}
	if page.Total != 0 {
		t.Fatalf("expected assignment gone, got %d", page.Total)
	}
}
