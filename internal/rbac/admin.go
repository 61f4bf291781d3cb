package rbac

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/megahubhq/megahub-backend/pkg/db"
	"github.com/megahubhq/megahub-backend/pkg/db/models"
	"github.com/megahubhq/megahub-backend/pkg/enums"
	pkgerrors "github.com/megahubhq/megahub-backend/pkg/errors"
	"github.com/megahubhq/megahub-backend/pkg/pagination"
)

// PermissionDTO is a single (resource, action) grantable unit.
type PermissionDTO struct {
	ID             uuid.UUID            `json:"id"`
	Code           string               `json:"code"`
	Name           string               `json:"name"`
	Resource       string               `json:"resource"`
	PermissionType enums.PermissionType `json:"permission_type"`
}

// RoleDTO is a role with its effective permission entries.
type RoleDTO struct {
	ID          uuid.UUID       `json:"id"`
	CompanyID   *uuid.UUID      `json:"company_id,omitempty"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	RoleType    enums.RoleType  `json:"role_type"`
	IsActive    bool            `json:"is_active"`
	Grants      []PermissionDTO `json:"grants"`
	Denies      []PermissionDTO `json:"denies"`
	CreatedAt   time.Time       `json:"created_at"`
}

type CreateRoleRequest struct {
	Name        string         `json:"name" validate:"required,max=150"`
	Description string         `json:"description" validate:"max=500"`
	RoleType    enums.RoleType `json:"role_type" validate:"required"`
}

// AssignPermissionsRequest replaces the named permissions' entries on a
// role. A permission listed in both sets is a validation error.
type AssignPermissionsRequest struct {
	Grants []uuid.UUID `json:"grants" validate:"dive,required"`
	Denies []uuid.UUID `json:"denies" validate:"dive,required"`
}

type UserRoleDTO struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	RoleID    uuid.UUID  `json:"role_id"`
	RoleName  string     `json:"role_name"`
	BrandID   *uuid.UUID `json:"brand_id,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	GrantedBy *uuid.UUID `json:"granted_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type AssignRoleRequest struct {
	UserID    uuid.UUID  `json:"user_id" validate:"required"`
	RoleID    uuid.UUID  `json:"role_id" validate:"required"`
	BrandID   *uuid.UUID `json:"brand_id"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// Admin is the role management surface. Company admins manage roles inside
// their own company; only superusers touch system roles.
type Admin interface {
	ListRoles(ctx context.Context, actor Actor, p pagination.Params) (pagination.Page[RoleDTO], error)
	CreateRole(ctx context.Context, actor Actor, req CreateRoleRequest) (*RoleDTO, error)
	ListPermissions(ctx context.Context, actor Actor, p pagination.Params) (pagination.Page[PermissionDTO], error)
	AssignPermissions(ctx context.Context, actor Actor, roleID uuid.UUID, req AssignPermissionsRequest) (*RoleDTO, error)
	ListUserRoles(ctx context.Context, actor Actor, userID *uuid.UUID, p pagination.Params) (pagination.Page[UserRoleDTO], error)
	AssignRole(ctx context.Context, actor Actor, req AssignRoleRequest) (*UserRoleDTO, error)
	RevokeRole(ctx context.Context, actor Actor, id uuid.UUID) error
}

type admin struct {
	db *db.Client
}

func NewAdmin(client *db.Client) (Admin, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "database client required")
	}
	return &admin{db: client}, nil
}

var roleOrderings = map[string]string{
	"name":       "roles.name",
	"role_type":  "roles.role_type",
	"created_at": "roles.created_at",
}

var permissionOrderings = map[string]string{
	"code":     "permissions.code",
	"resource": "permissions.resource",
}

func (a *admin) ListRoles(ctx context.Context, actor Actor, p pagination.Params) (pagination.Page[RoleDTO], error) {
	if err := requireRoleManager(actor); err != nil {
		return pagination.Page[RoleDTO]{}, err
	}
	p = pagination.Normalize(p)

	q := a.db.DB().WithContext(ctx).Model(&models.Role{})
	if !actor.IsSuperuser {
		// company admins see their own roles plus the shared system set
		q = q.Where("roles.company_id = ? OR roles.role_type = ?", *actor.CompanyID, enums.RoleTypeSystem)
	}
	if p.Search != "" {
		q = q.Where("roles.name LIKE ?", "%"+p.Search+"%")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return pagination.Page[RoleDTO]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count roles")
	}
	var rows []models.Role
	err := q.
		Order(pagination.OrderClause(p.Ordering, roleOrderings, "roles.name ASC")).
		Offset(p.Offset()).
		Limit(p.Limit()).
		Find(&rows).Error
	if err != nil {
		return pagination.Page[RoleDTO]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list roles")
	}

	items := make([]RoleDTO, 0, len(rows))
	for i := range rows {
		dto, err := a.roleDTO(ctx, a.db.DB(), &rows[i])
		if err != nil {
			return pagination.Page[RoleDTO]{}, err
		}
		items = append(items, *dto)
	}
	return pagination.NewPage(items, int(total), p), nil
}

func (a *admin) CreateRole(ctx context.Context, actor Actor, req CreateRoleRequest) (*RoleDTO, error) {
	if err := requireRoleManager(actor); err != nil {
		return nil, err
	}
	if req.RoleType == enums.RoleTypeSystem && !actor.IsSuperuser {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "system roles are managed by platform operators")
	}

	role := &models.Role{
		ID:          uuid.New(),
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		RoleType:    req.RoleType,
		IsActive:    true,
	}
	if req.RoleType != enums.RoleTypeSystem {
		if actor.CompanyID == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "company-scoped roles need a company")
		}
		role.CompanyID = actor.CompanyID
	}

	var dto *RoleDTO
	err := a.db.WithTx(ctx, func(tx *gorm.DB) error {
		var existing models.Role
		q := tx.WithContext(ctx).Where("name = ?", role.Name)
		if role.CompanyID != nil {
			q = q.Where("company_id = ?", *role.CompanyID)
		} else {
			q = q.Where("company_id IS NULL")
		}
		if err := q.First(&existing).Error; err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "role name already in use")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check role name")
		}
		if err := tx.WithContext(ctx).Create(role).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create role")
		}
		var err error
		dto, err = a.roleDTO(ctx, tx, role)
		return err
	})
	if err != nil {
		return nil, err
	}
	return dto, nil
}

func (a *admin) ListPermissions(ctx context.Context, actor Actor, p pagination.Params) (pagination.Page[PermissionDTO], error) {
	if err := requireRoleManager(actor); err != nil {
		return pagination.Page[PermissionDTO]{}, err
	}
	p = pagination.Normalize(p)

	q := a.db.DB().WithContext(ctx).Model(&models.Permission{})
	if p.Search != "" {
		like := "%" + p.Search + "%"
		q = q.Where("permissions.code LIKE ? OR permissions.resource LIKE ?", like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return pagination.Page[PermissionDTO]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count permissions")
	}
	var rows []models.Permission
	err := q.
		Order(pagination.OrderClause(p.Ordering, permissionOrderings, "permissions.code ASC")).
		Offset(p.Offset()).
		Limit(p.Limit()).
		Find(&rows).Error
	if err != nil {
		return pagination.Page[PermissionDTO]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list permissions")
	}

	items := make([]PermissionDTO, 0, len(rows))
	for i := range rows {
		items = append(items, permissionDTO(&rows[i]))
	}
	return pagination.NewPage(items, int(total), p), nil
}

// AssignPermissions rewrites the role's entries for every permission named
// in the request, leaving entries for unnamed permissions alone.
func (a *admin) AssignPermissions(ctx context.Context, actor Actor, roleID uuid.UUID, req AssignPermissionsRequest) (*RoleDTO, error) {
	if err := requireRoleManager(actor); err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]bool, len(req.Grants))
	for _, id := range req.Grants {
		seen[id] = true
	}
	for _, id := range req.Denies {
		if seen[id] {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "permission listed as both grant and deny")
		}
	}

	var dto *RoleDTO
	err := a.db.WithTx(ctx, func(tx *gorm.DB) error {
		role, err := a.loadManagedRole(ctx, tx, actor, roleID)
		if err != nil {
			return err
		}

		touched := append(append([]uuid.UUID{}, req.Grants...), req.Denies...)
		if len(touched) > 0 {
			var count int64
			if err := tx.WithContext(ctx).Model(&models.Permission{}).Where("id IN ?", touched).Count(&count).Error; err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check permissions")
			}
			if int(count) != len(touched) {
				return pkgerrors.New(pkgerrors.CodeValidation, "unknown permission in request")
			}
			if err := tx.WithContext(ctx).
				Where("role_id = ? AND permission_id IN ?", role.ID, touched).
				Delete(&models.RolePermission{}).Error; err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear role permissions")
			}
		}

		entries := make([]models.RolePermission, 0, len(touched))
		for _, id := range req.Grants {
			entries = append(entries, models.RolePermission{ID: uuid.New(), RoleID: role.ID, PermissionID: id})
		}
		for _, id := range req.Denies {
			entries = append(entries, models.RolePermission{ID: uuid.New(), RoleID: role.ID, PermissionID: id, IsDenied: true})
		}
		if len(entries) > 0 {
			if err := tx.WithContext(ctx).Create(&entries).Error; err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "assign permissions")
			}
		}
		dto, err = a.roleDTO(ctx, tx, role)
		return err
	})
	if err != nil {
		return nil, err
	}
	return dto, nil
}

func (a *admin) ListUserRoles(ctx context.Context, actor Actor, userID *uuid.UUID, p pagination.Params) (pagination.Page[UserRoleDTO], error) {
	if err := requireRoleManager(actor); err != nil {
		return pagination.Page[UserRoleDTO]{}, err
	}
	p = pagination.Normalize(p)

	q := a.db.DB().WithContext(ctx).Model(&models.UserRole{}).
		Joins("JOIN users ON users.id = user_roles.user_id")
	if !actor.IsSuperuser {
		q = q.Where("users.company_id = ?", *actor.CompanyID)
	}
	if userID != nil {
		q = q.Where("user_roles.user_id = ?", *userID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return pagination.Page[UserRoleDTO]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count user roles")
	}
	var rows []models.UserRole
	err := q.Preload("Role").
		Order("user_roles.created_at DESC").
		Offset(p.Offset()).
		Limit(p.Limit()).
		Find(&rows).Error
	if err != nil {
		return pagination.Page[UserRoleDTO]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list user roles")
	}

	items := make([]UserRoleDTO, 0, len(rows))
	for i := range rows {
		items = append(items, userRoleDTO(&rows[i]))
	}
	return pagination.NewPage(items, int(total), p), nil
}

// AssignRole attaches a role to a user. When a brand scope is given, the
// brand must belong to the same company as the role and the user.
func (a *admin) AssignRole(ctx context.Context, actor Actor, req AssignRoleRequest) (*UserRoleDTO, error) {
	if err := requireRoleManager(actor); err != nil {
		return nil, err
	}
	if req.ExpiresAt != nil && req.ExpiresAt.Before(time.Now()) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "expiry is in the past")
	}

	var dto *UserRoleDTO
	err := a.db.WithTx(ctx, func(tx *gorm.DB) error {
		var user models.User
		if err := tx.WithContext(ctx).First(&user, "id = ?", req.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
		}
		if !actor.IsSuperuser {
			if user.CompanyID == nil || *user.CompanyID != *actor.CompanyID {
				return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
			}
		}

		role, err := a.loadManagedRole(ctx, tx, actor, req.RoleID)
		if err != nil {
			return err
		}
		if role.CompanyID != nil && (user.CompanyID == nil || *user.CompanyID != *role.CompanyID) {
			return pkgerrors.New(pkgerrors.CodeValidation, "role belongs to another company")
		}

		if req.BrandID != nil {
			var brand models.Brand
			if err := tx.WithContext(ctx).First(&brand, "id = ? AND soft_deleted = ?", *req.BrandID, false).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.New(pkgerrors.CodeNotFound, "brand not found")
				}
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load brand")
			}
			if role.CompanyID != nil && brand.CompanyID != *role.CompanyID {
				return pkgerrors.New(pkgerrors.CodeValidation, "brand belongs to another company")
			}
			if user.CompanyID == nil || brand.CompanyID != *user.CompanyID {
				return pkgerrors.New(pkgerrors.CodeValidation, "brand belongs to another company")
			}
		}

		dup := tx.WithContext(ctx).Model(&models.UserRole{}).
			Where("user_id = ? AND role_id = ?", req.UserID, req.RoleID)
		if req.BrandID != nil {
			dup = dup.Where("brand_id = ?", *req.BrandID)
		} else {
			dup = dup.Where("brand_id IS NULL")
		}
		var count int64
		if err := dup.Count(&count).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check assignment")
		}
		if count > 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "role already assigned")
		}

		row := &models.UserRole{
			ID:        uuid.New(),
			UserID:    req.UserID,
			RoleID:    req.RoleID,
			BrandID:   req.BrandID,
			ExpiresAt: req.ExpiresAt,
			GrantedBy: &actor.UserID,
		}
		if err := tx.WithContext(ctx).Create(row).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "assign role")
		}
		row.Role = role
		d := userRoleDTO(row)
		dto = &d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dto, nil
}

func (a *admin) RevokeRole(ctx context.Context, actor Actor, id uuid.UUID) error {
	if err := requireRoleManager(actor); err != nil {
		return err
	}
	return a.db.WithTx(ctx, func(tx *gorm.DB) error {
		var row models.UserRole
		if err := tx.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "assignment not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load assignment")
		}
		if !actor.IsSuperuser {
			var user models.User
			if err := tx.WithContext(ctx).First(&user, "id = ?", row.UserID).Error; err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
			}
			if user.CompanyID == nil || *user.CompanyID != *actor.CompanyID {
				return pkgerrors.New(pkgerrors.CodeNotFound, "assignment not found")
			}
		}
		if err := tx.WithContext(ctx).Delete(&row).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "revoke role")
		}
		return nil
	})
}

// loadManagedRole fetches a role the actor is allowed to manage. For
// company admins that is their own company's roles only; system roles read
// as not-found so their existence leaks nothing.
func (a *admin) loadManagedRole(ctx context.Context, tx *gorm.DB, actor Actor, id uuid.UUID) (*models.Role, error) {
	var role models.Role
	if err := tx.WithContext(ctx).First(&role, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "role not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load role")
	}
	if !actor.IsSuperuser {
		if role.CompanyID == nil || *role.CompanyID != *actor.CompanyID {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "role not found")
		}
	}
	return &role, nil
}

func (a *admin) roleDTO(ctx context.Context, tx *gorm.DB, role *models.Role) (*RoleDTO, error) {
	var entries []models.RolePermission
	if err := tx.WithContext(ctx).Where("role_id = ?", role.ID).Find(&entries).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load role permissions")
	}
	dto := &RoleDTO{
		ID:          role.ID,
		CompanyID:   role.CompanyID,
		Name:        role.Name,
		Description: role.Description,
		RoleType:    role.RoleType,
		IsActive:    role.IsActive,
		Grants:      []PermissionDTO{},
		Denies:      []PermissionDTO{},
		CreatedAt:   role.CreatedAt,
	}
	if len(entries) == 0 {
		return dto, nil
	}

	ids := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.PermissionID)
	}
	var perms []models.Permission
	if err := tx.WithContext(ctx).Where("id IN ?", ids).Find(&perms).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load permissions")
	}
	byID := make(map[uuid.UUID]*models.Permission, len(perms))
	for i := range perms {
		byID[perms[i].ID] = &perms[i]
	}
	for _, e := range entries {
		p, ok := byID[e.PermissionID]
		if !ok {
			continue
		}
		if e.IsDenied {
			dto.Denies = append(dto.Denies, permissionDTO(p))
		} else {
			dto.Grants = append(dto.Grants, permissionDTO(p))
		}
	}
	return dto, nil
}

func permissionDTO(p *models.Permission) PermissionDTO {
	return PermissionDTO{
		ID:             p.ID,
		Code:           p.Code,
		Name:           p.Name,
		Resource:       p.Resource,
		PermissionType: p.PermissionType,
	}
}

func userRoleDTO(r *models.UserRole) UserRoleDTO {
	dto := UserRoleDTO{
		ID:        r.ID,
		UserID:    r.UserID,
		RoleID:    r.RoleID,
		BrandID:   r.BrandID,
		ExpiresAt: r.ExpiresAt,
		GrantedBy: r.GrantedBy,
		CreatedAt: r.CreatedAt,
	}
	if r.Role != nil {
		dto.RoleName = r.Role.Name
	}
	return dto
}

func requireRoleManager(actor Actor) error {
	if actor.IsSuperuser {
		return nil
	}
	if actor.UserType == enums.UserTypeCompanyAdmin && actor.CompanyID != nil {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "role management requires a company admin")
}
