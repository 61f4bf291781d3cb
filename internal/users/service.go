package users

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/megahubhq/megahub-backend/internal/rbac"
	"github.com/megahubhq/megahub-backend/internal/slots"
	"github.com/megahubhq/megahub-backend/pkg/config"
	"github.com/megahubhq/megahub-backend/pkg/db"
	"github.com/megahubhq/megahub-backend/pkg/db/models"
	"github.com/megahubhq/megahub-backend/pkg/enums"
	pkgerrors "github.com/megahubhq/megahub-backend/pkg/errors"
	"github.com/megahubhq/megahub-backend/pkg/pagination"
	"github.com/megahubhq/megahub-backend/pkg/security"
)

// Service manages a company's user roster. Creating a user claims a user
// slot; deactivating releases it.
type Service interface {
	Create(ctx context.Context, actor rbac.Actor, companyID uuid.UUID, req CreateUserRequest) (*UserDTO, error)
	List(ctx context.Context, actor rbac.Actor, companyID uuid.UUID, p pagination.Params) (pagination.Page[UserDTO], error)
	Get(ctx context.Context, actor rbac.Actor, id uuid.UUID) (*UserDTO, error)
	Update(ctx context.Context, actor rbac.Actor, id uuid.UUID, req UpdateUserRequest) (*UserDTO, error)
	Deactivate(ctx context.Context, actor rbac.Actor, id uuid.UUID) error
	ToggleActive(ctx context.Context, actor rbac.Actor, id uuid.UUID) (*UserDTO, error)
	ChangePassword(ctx context.Context, actor rbac.Actor, id uuid.UUID, req ChangePasswordRequest) error
	AssignBrands(ctx context.Context, actor rbac.Actor, id uuid.UUID, brandIDs []uuid.UUID) (*UserDTO, error)
	PromoteToBrandAdmin(ctx context.Context, actor rbac.Actor, userID, brandID uuid.UUID) (*UserDTO, error)
}

// ServiceParams packages the service dependencies.
type ServiceParams struct {
	DB             *db.Client
	Ledger         *slots.Ledger
	PasswordConfig config.PasswordConfig
}

type service struct {
	db          *db.Client
	ledger      *slots.Ledger
	passwordCfg config.PasswordConfig
}

func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "database client required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "slot ledger required")
	}
	return &service{
		db:          params.DB,
		ledger:      params.Ledger,
		passwordCfg: params.PasswordConfig,
	}, nil
}

func (s *service) Create(ctx context.Context, actor rbac.Actor, companyID uuid.UUID, req CreateUserRequest) (*UserDTO, error) {
	if err := requireCompanyAdmin(actor, companyID); err != nil {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	username := strings.TrimSpace(req.Username)
	if email == "" || username == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "username and email are required")
	}
	userType := req.UserType
	if userType == "" {
		userType = enums.UserTypeMember
	}
	if !userType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid user type")
	}

	passwordHash, err := security.HashPassword(req.Password, s.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	var dto *UserDTO
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)

		if _, err := repo.FindByEmail(ctx, email); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check user email")
		}
		if _, err := repo.FindByUsername(ctx, username); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "username already taken")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check username")
		}

		if err := s.ledger.ClaimUserSlot(ctx, tx, companyID); err != nil {
			return err
		}

		user := &models.User{}
		user.ID = uuid.New()
		user.Username = username
		user.Email = email
		user.PasswordHash = passwordHash
		user.FirstName = req.FirstName
		user.LastName = req.LastName
		user.CompanyID = &companyID
		user.UserType = userType
		user.IsActive = true
		user.CanViewAnalytics = req.CanViewAnalytics
		user.CanViewReports = req.CanViewReports

		if _, err := repo.Create(ctx, user); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create user")
		}

		brandIDs := req.BrandIDs
		if len(brandIDs) > 0 {
			if err := validateBrandSubset(ctx, repo, companyID, brandIDs); err != nil {
				return err
			}
			if err := repo.ReplaceBrands(ctx, user.ID, brandIDs); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "assign brands")
			}
		}

		dto = FromModel(user, brandIDs)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dto, nil
}

func (s *service) List(ctx context.Context, actor rbac.Actor, companyID uuid.UUID, p pagination.Params) (pagination.Page[UserDTO], error) {
	if err := requireCompanyMember(actor, companyID); err != nil {
		return pagination.Page[UserDTO]{}, err
	}
	p = pagination.Normalize(p)

	repo := NewRepository(s.db.DB())
	rows, total, err := repo.ListByCompany(ctx, companyID, p)
	if err != nil {
		return pagination.Page[UserDTO]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list users")
	}

	items := make([]UserDTO, 0, len(rows))
	for i := range rows {
		brandIDs, err := repo.BrandIDs(ctx, rows[i].ID)
		if err != nil {
			return pagination.Page[UserDTO]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load brand memberships")
		}
		items = append(items, *FromModel(&rows[i], brandIDs))
	}
	return pagination.NewPage(items, int(total), p), nil
}

func (s *service) Get(ctx context.Context, actor rbac.Actor, id uuid.UUID) (*UserDTO, error) {
	repo := NewRepository(s.db.DB())
	user, err := s.loadScoped(ctx, repo, actor, id)
	if err != nil {
		return nil, err
	}
	brandIDs, err := repo.BrandIDs(ctx, user.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load brand memberships")
	}
	return FromModel(user, brandIDs), nil
}

func (s *service) Update(ctx context.Context, actor rbac.Actor, id uuid.UUID, req UpdateUserRequest) (*UserDTO, error) {
	var dto *UserDTO
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		user, err := s.loadScoped(ctx, repo, actor, id)
		if err != nil {
			return err
		}
		if err := requireCompanyAdminOrSelf(actor, user); err != nil {
			return err
		}

		if req.FirstName != nil {
			user.FirstName = *req.FirstName
		}
		if req.LastName != nil {
			user.LastName = *req.LastName
		}
		if req.Email != nil {
			user.Email = strings.ToLower(strings.TrimSpace(*req.Email))
		}
		if req.UserType != nil {
			if err := requireCompanyAdminForUser(actor, user); err != nil {
				return err
			}
			if !req.UserType.IsValid() {
				return pkgerrors.New(pkgerrors.CodeValidation, "invalid user type")
			}
			user.UserType = *req.UserType
		}
		if req.CanViewAnalytics != nil {
			user.CanViewAnalytics = *req.CanViewAnalytics
		}
		if req.CanViewReports != nil {
			user.CanViewReports = *req.CanViewReports
		}

		if err := repo.Save(ctx, user); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save user")
		}
		brandIDs, err := repo.BrandIDs(ctx, user.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load brand memberships")
		}
		dto = FromModel(user, brandIDs)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dto, nil
}

// Deactivate is the delete operation. The row stays, the slot is released.
func (s *service) Deactivate(ctx context.Context, actor rbac.Actor, id uuid.UUID) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		user, err := s.loadScoped(ctx, repo, actor, id)
		if err != nil {
			return err
		}
		if err := requireCompanyAdminForUser(actor, user); err != nil {
			return err
		}
		if !user.IsActive {
			return nil
		}
		if err := repo.SetActive(ctx, user.ID, false); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deactivate user")
		}
		if user.CompanyID != nil {
			return s.ledger.ReleaseUserSlot(ctx, tx, *user.CompanyID)
		}
		return nil
	})
}

func (s *service) ToggleActive(ctx context.Context, actor rbac.Actor, id uuid.UUID) (*UserDTO, error) {
	var dto *UserDTO
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		user, err := s.loadScoped(ctx, repo, actor, id)
		if err != nil {
			return err
		}
		if err := requireCompanyAdminForUser(actor, user); err != nil {
			return err
		}

		if user.IsActive {
			if err := repo.SetActive(ctx, user.ID, false); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deactivate user")
			}
			user.IsActive = false
			if user.CompanyID != nil {
				if err := s.ledger.ReleaseUserSlot(ctx, tx, *user.CompanyID); err != nil {
					return err
				}
			}
		} else {
			if user.CompanyID != nil {
				if err := s.ledger.ClaimUserSlot(ctx, tx, *user.CompanyID); err != nil {
					return err
				}
			}
			if err := repo.SetActive(ctx, user.ID, true); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "activate user")
			}
			user.IsActive = true
		}

		brandIDs, err := repo.BrandIDs(ctx, user.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load brand memberships")
		}
		dto = FromModel(user, brandIDs)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dto, nil
}

func (s *service) ChangePassword(ctx context.Context, actor rbac.Actor, id uuid.UUID, req ChangePasswordRequest) error {
	repo := NewRepository(s.db.DB())
	user, err := s.loadScoped(ctx, repo, actor, id)
	if err != nil {
		return err
	}

	self := actor.UserID == user.ID
	if !self {
		if err := requireCompanyAdminForUser(actor, user); err != nil {
			return err
		}
	}
	if self {
		ok, err := security.VerifyPassword(req.CurrentPassword, user.PasswordHash)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeValidation, "current password is incorrect")
		}
	}

	hash, err := security.HashPassword(req.NewPassword, s.passwordCfg)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}
	if err := repo.UpdatePassword(ctx, user.ID, hash); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update password")
	}
	return nil
}

func (s *service) AssignBrands(ctx context.Context, actor rbac.Actor, id uuid.UUID, brandIDs []uuid.UUID) (*UserDTO, error) {
	var dto *UserDTO
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		user, err := s.loadScoped(ctx, repo, actor, id)
		if err != nil {
			return err
		}
		if err := requireCompanyAdminForUser(actor, user); err != nil {
			return err
		}
		if user.CompanyID == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "user has no company")
		}
		if err := validateBrandSubset(ctx, repo, *user.CompanyID, brandIDs); err != nil {
			return err
		}
		if err := repo.ReplaceBrands(ctx, user.ID, brandIDs); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "assign brands")
		}
		dto = FromModel(user, brandIDs)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dto, nil
}

// PromoteToBrandAdmin flips the user type, points the brand at the user and
// guarantees the membership row, all in one transaction.
func (s *service) PromoteToBrandAdmin(ctx context.Context, actor rbac.Actor, userID, brandID uuid.UUID) (*UserDTO, error) {
	var dto *UserDTO
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		user, err := s.loadScoped(ctx, repo, actor, userID)
		if err != nil {
			return err
		}
		if err := requireCompanyAdminForUser(actor, user); err != nil {
			return err
		}

		brand, err := repo.FindBrand(ctx, brandID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "brand not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load brand")
		}
		if brand.SoftDeleted {
			return pkgerrors.New(pkgerrors.CodeValidation, "cannot administer a deleted brand")
		}
		if user.CompanyID == nil || *user.CompanyID != brand.CompanyID {
			return pkgerrors.New(pkgerrors.CodeValidation, "brand admin must belong to the brand's company")
		}

		user.UserType = enums.UserTypeBrandAdmin
		if err := repo.Save(ctx, user); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save user")
		}
		if err := repo.SetBrandAdmin(ctx, brandID, user.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "set brand admin")
		}
		if err := repo.EnsureBrandMembership(ctx, brandID, user.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "ensure membership")
		}

		brandIDs, err := repo.BrandIDs(ctx, user.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load brand memberships")
		}
		dto = FromModel(user, brandIDs)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dto, nil
}

// loadScoped loads the user and enforces company visibility for the actor.
func (s *service) loadScoped(ctx context.Context, repo *Repository, actor rbac.Actor, id uuid.UUID) (*models.User, error) {
	user, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	if actor.IsSuperuser {
		return user, nil
	}
	if user.CompanyID == nil || !actor.SameCompany(*user.CompanyID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	return user, nil
}

func validateBrandSubset(ctx context.Context, repo *Repository, companyID uuid.UUID, brandIDs []uuid.UUID) error {
	companyBrands, err := repo.CompanyBrandIDs(ctx, companyID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load company brands")
	}
	allowed := make(map[uuid.UUID]bool, len(companyBrands))
	for _, id := range companyBrands {
		allowed[id] = true
	}
	for _, id := range brandIDs {
		if !allowed[id] {
			return pkgerrors.New(pkgerrors.CodeValidation, "brand does not belong to the user's company").
				WithDetails(map[string]any{"brand_id": id})
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

func requireCompanyMember(actor rbac.Actor, companyID uuid.UUID) error {
	if actor.IsSuperuser || actor.SameCompany(companyID) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "not a member of this company")
}

func requireCompanyAdminForUser(actor rbac.Actor, user *models.User) error {
	if actor.IsSuperuser {
		return nil
	}
	if user.CompanyID != nil && actor.IsCompanyAdminOf(*user.CompanyID) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "company admin required")
}

func requireCompanyAdminOrSelf(actor rbac.Actor, user *models.User) error {
	if actor.UserID == user.ID {
		return nil
	}
	return requireCompanyAdminForUser(actor, user)
}
