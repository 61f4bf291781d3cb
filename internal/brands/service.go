package brands

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/megahubhq/megahub-backend/internal/rbac"
	"github.com/megahubhq/megahub-backend/internal/slots"
	"github.com/megahubhq/megahub-backend/pkg/db"
	"github.com/megahubhq/megahub-backend/pkg/db/models"
	pkgerrors "github.com/megahubhq/megahub-backend/pkg/errors"
	"github.com/megahubhq/megahub-backend/pkg/pagination"
)

// Service manages brands. Creating a brand claims a brand slot against the
// company's allocation; soft-deleting releases it, restoring claims again.
type Service interface {
	Create(ctx context.Context, actor rbac.Actor, companyID uuid.UUID, req CreateBrandRequest) (*BrandDTO, error)
	List(ctx context.Context, actor rbac.Actor, companyID uuid.UUID, p pagination.Params) (pagination.Page[BrandDTO], error)
	Get(ctx context.Context, actor rbac.Actor, id uuid.UUID) (*BrandDTO, error)
	Update(ctx context.Context, actor rbac.Actor, id uuid.UUID, req UpdateBrandRequest) (*BrandDTO, error)
	Delete(ctx context.Context, actor rbac.Actor, id uuid.UUID) error
	Restore(ctx context.Context, actor rbac.Actor, id uuid.UUID) (*BrandDTO, error)
	ToggleActive(ctx context.Context, actor rbac.Actor, id uuid.UUID) (*BrandDTO, error)
	AssignUsers(ctx context.Context, actor rbac.Actor, id uuid.UUID, userIDs []uuid.UUID) error
	RemoveUsers(ctx context.Context, actor rbac.Actor, id uuid.UUID, userIDs []uuid.UUID) error
	AccessibleUsers(ctx context.Context, actor rbac.Actor, id uuid.UUID) ([]MemberDTO, error)
	SetAdmin(ctx context.Context, actor rbac.Actor, id, userID uuid.UUID) (*BrandDTO, error)
	AccessibleBrandIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

// ServiceParams packages the service dependencies.
type ServiceParams struct {
	DB     *db.Client
	Ledger *slots.Ledger
}

type service struct {
	db     *db.Client
	ledger *slots.Ledger
}

func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "database client required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "slot ledger required")
	}
	return &service{db: params.DB, ledger: params.Ledger}, nil
}

func (s *service) Create(ctx context.Context, actor rbac.Actor, companyID uuid.UUID, req CreateBrandRequest) (*BrandDTO, error) {
	if err := requireCompanyAdmin(actor, companyID); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "brand name is required")
	}

	var dto *BrandDTO
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)

		if _, err := repo.FindByName(ctx, companyID, name); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "brand name already in use")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check brand name")
		}

		if err := s.ledger.ClaimBrandSlot(ctx, tx, companyID); err != nil {
			return err
		}

		brand := &models.Brand{
			ID:          uuid.New(),
			CompanyID:   companyID,
			Name:        name,
			Description: req.Description,
			URL:         req.URL,
			IsActive:    true,
		}
		if _, err := repo.Create(ctx, brand); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create brand")
		}
		dto = FromModel(brand)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dto, nil
}

// List returns the brands the actor can see: the whole company for admins
// and superusers, the accessible set for everyone else. Zero accessible
// brands is an empty page, not an error.
func (s *service) List(ctx context.Context, actor rbac.Actor, companyID uuid.UUID, p pagination.Params) (pagination.Page[BrandDTO], error) {
	if !actor.IsSuperuser && !actor.SameCompany(companyID) {
		return pagination.Page[BrandDTO]{}, pkgerrors.New(pkgerrors.CodeForbidden, "not a member of this company")
	}
	p = pagination.Normalize(p)
	repo := NewRepository(s.db.DB())

	var (
		rows  []models.Brand
		total int64
		err   error
	)
	if actor.IsSuperuser || actor.IsCompanyAdminOf(companyID) {
		rows, total, err = repo.ListByCompany(ctx, companyID, p)
	} else {
		var ids []uuid.UUID
		ids, err = repo.AccessibleBrandIDs(ctx, actor.UserID)
		if err == nil {
			rows, total, err = repo.ListByIDs(ctx, ids, p)
		}
	}
	if err != nil {
		return pagination.Page[BrandDTO]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list brands")
	}

	items := make([]BrandDTO, 0, len(rows))
	for i := range rows {
		items = append(items, *FromModel(&rows[i]))
	}
	return pagination.NewPage(items, int(total), p), nil
}

func (s *service) Get(ctx context.Context, actor rbac.Actor, id uuid.UUID) (*BrandDTO, error) {
	repo := NewRepository(s.db.DB())
	brand, err := s.loadScoped(ctx, repo, actor, id)
	if err != nil {
		return nil, err
	}
	return FromModel(brand), nil
}

func (s *service) Update(ctx context.Context, actor rbac.Actor, id uuid.UUID, req UpdateBrandRequest) (*BrandDTO, error) {
	var dto *BrandDTO
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		brand, err := s.loadScoped(ctx, repo, actor, id)
		if err != nil {
			return err
		}
		if err := requireBrandManager(actor, brand); err != nil {
			return err
		}
		if brand.SoftDeleted {
			return pkgerrors.New(pkgerrors.CodeValidation, "brand is deleted")
		}

		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return pkgerrors.New(pkgerrors.CodeValidation, "brand name is required")
			}
			if name != brand.Name {
				if _, err := repo.FindByName(ctx, brand.CompanyID, name); err == nil {
					return pkgerrors.New(pkgerrors.CodeConflict, "brand name already in use")
				} else if !errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check brand name")
				}
			}
			brand.Name = name
		}
		if req.Description != nil {
			brand.Description = req.Description
		}
		if req.URL != nil {
			brand.URL = req.URL
		}

		if err := repo.Save(ctx, brand); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save brand")
		}
		dto = FromModel(brand)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dto, nil
}

// Delete soft-deletes the brand and releases its slot. Deleting an already
// deleted brand is a no-op.
func (s *service) Delete(ctx context.Context, actor rbac.Actor, id uuid.UUID) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		brand, err := s.loadScoped(ctx, repo, actor, id)
		if err != nil {
			return err
		}
		if err := requireCompanyAdmin(actor, brand.CompanyID); err != nil {
			return err
		}
		if brand.SoftDeleted {
			return nil
		}
		if err := repo.MarkDeleted(ctx, brand.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "soft delete brand")
		}
		return s.ledger.ReleaseBrandSlot(ctx, tx, brand.CompanyID)
	})
}

// Restore brings a soft-deleted brand back, passing the quota gate again.
func (s *service) Restore(ctx context.Context, actor rbac.Actor, id uuid.UUID) (*BrandDTO, error) {
	var dto *BrandDTO
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		brand, err := s.loadScoped(ctx, repo, actor, id)
		if err != nil {
			return err
		}
		if err := requireCompanyAdmin(actor, brand.CompanyID); err != nil {
			return err
		}
		if !brand.SoftDeleted {
			dto = FromModel(brand)
			return nil
		}
		if _, err := repo.FindByName(ctx, brand.CompanyID, brand.Name); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "a live brand already uses this name")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check brand name")
		}
		if err := s.ledger.ClaimBrandSlot(ctx, tx, brand.CompanyID); err != nil {
			return err
		}
		if err := repo.MarkRestored(ctx, brand.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "restore brand")
		}
		brand.SoftDeleted = false
		brand.IsActive = true
		dto = FromModel(brand)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dto, nil
}

func (s *service) ToggleActive(ctx context.Context, actor rbac.Actor, id uuid.UUID) (*BrandDTO, error) {
	var dto *BrandDTO
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		brand, err := s.loadScoped(ctx, repo, actor, id)
		if err != nil {
			return err
		}
		if err := requireCompanyAdmin(actor, brand.CompanyID); err != nil {
			return err
		}
		if brand.SoftDeleted {
			return pkgerrors.New(pkgerrors.CodeValidation, "brand is deleted")
		}
		brand.IsActive = !brand.IsActive
		if err := repo.SetActive(ctx, brand.ID, brand.IsActive); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "toggle brand")
		}
		dto = FromModel(brand)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dto, nil
}

func (s *service) AssignUsers(ctx context.Context, actor rbac.Actor, id uuid.UUID, userIDs []uuid.UUID) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		brand, err := s.loadScoped(ctx, repo, actor, id)
		if err != nil {
			return err
		}
		if err := requireBrandManager(actor, brand); err != nil {
			return err
		}
		if brand.SoftDeleted {
			return pkgerrors.New(pkgerrors.CodeValidation, "brand is deleted")
		}
		if err := requireSameCompanyUsers(ctx, repo, brand.CompanyID, userIDs); err != nil {
			return err
		}
		if err := repo.AddMembers(ctx, brand.ID, userIDs); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "assign users")
		}
		return nil
	})
}

func (s *service) RemoveUsers(ctx context.Context, actor rbac.Actor, id uuid.UUID, userIDs []uuid.UUID) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		brand, err := s.loadScoped(ctx, repo, actor, id)
		if err != nil {
			return err
		}
		if err := requireBrandManager(actor, brand); err != nil {
			return err
		}
		if err := repo.RemoveMembers(ctx, brand.ID, userIDs); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "remove users")
		}
		return nil
	})
}

func (s *service) AccessibleUsers(ctx context.Context, actor rbac.Actor, id uuid.UUID) ([]MemberDTO, error) {
	repo := NewRepository(s.db.DB())
	brand, err := s.loadScoped(ctx, repo, actor, id)
	if err != nil {
		return nil, err
	}
	users, err := repo.Members(ctx, brand.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list members")
	}
	out := make([]MemberDTO, 0, len(users))
	for i := range users {
		out = append(out, memberFromModel(&users[i]))
	}
	return out, nil
}

// SetAdmin designates the brand's admin. The user must belong to the
// brand's company and ends up in the accessible set.
func (s *service) SetAdmin(ctx context.Context, actor rbac.Actor, id, userID uuid.UUID) (*BrandDTO, error) {
	var dto *BrandDTO
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		brand, err := s.loadScoped(ctx, repo, actor, id)
		if err != nil {
			return err
		}
		if err := requireCompanyAdmin(actor, brand.CompanyID); err != nil {
			return err
		}
		if brand.SoftDeleted {
			return pkgerrors.New(pkgerrors.CodeValidation, "brand is deleted")
		}

		user, err := repo.FindUser(ctx, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
		}
		if user.CompanyID == nil || *user.CompanyID != brand.CompanyID {
			return pkgerrors.New(pkgerrors.CodeValidation, "brand admin must belong to the brand's company")
		}

		brand.BrandAdminID = &user.ID
		if err := repo.Save(ctx, brand); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save brand")
		}
		if err := repo.AddMembers(ctx, brand.ID, []uuid.UUID{user.ID}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "ensure membership")
		}
		dto = FromModel(brand)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dto, nil
}

// AccessibleBrandIDs is the brand set other layers scope queries by.
func (s *service) AccessibleBrandIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	repo := NewRepository(s.db.DB())
	ids, err := repo.AccessibleBrandIDs(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load accessible brands")
	}
	return ids, nil
}

func (s *service) loadScoped(ctx context.Context, repo *Repository, actor rbac.Actor, id uuid.UUID) (*models.Brand, error) {
	brand, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "brand not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load brand")
	}
	if actor.IsSuperuser {
		return brand, nil
	}
	if !actor.SameCompany(brand.CompanyID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "brand not found")
	}
	return brand, nil
}

func requireSameCompanyUsers(ctx context.Context, repo *Repository, companyID uuid.UUID, userIDs []uuid.UUID) error {
	valid, err := repo.CompanyUserIDs(ctx, companyID, userIDs)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load company users")
	}
	validSet := make(map[uuid.UUID]bool, len(valid))
	for _, id := range valid {
		validSet[id] = true
	}
	for _, id := range userIDs {
		if !validSet[id] {
			return pkgerrors.New(pkgerrors.CodeValidation, "user does not belong to the brand's company").
				WithDetails(map[string]any{"user_id": id})
		}
	}
	return nil
}

func requireCompanyAdmin(actor rbac.Actor, companyID uuid.UUID) error {
	if actor.IsSuperuser || actor.IsCompanyAdminOf(companyID) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "company admin required")
}

func requireBrandManager(actor rbac.Actor, brand *models.Brand) error {
	if actor.IsSuperuser || actor.IsCompanyAdminOf(brand.CompanyID) {
		return nil
	}
	if brand.BrandAdminID != nil && *brand.BrandAdminID == actor.UserID {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "brand admin required")
}
