package companies

import (
	"context"
	"errors"
	"strings"
	"time"

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

// Service owns tenant lifecycle: bootstrap, listing, logical deletion and
// the slot-usage views delegated to the slots package.
type Service interface {
	Create(ctx context.Context, req CreateCompanyRequest) (*BootstrapResult, error)
	List(ctx context.Context, actor rbac.Actor, p pagination.Params) (pagination.Page[CompanyDTO], error)
	Get(ctx context.Context, actor rbac.Actor, id uuid.UUID) (*CompanyDTO, error)
	Update(ctx context.Context, actor rbac.Actor, id uuid.UUID, req UpdateCompanyRequest) (*CompanyDTO, error)
	Delete(ctx context.Context, actor rbac.Actor, id uuid.UUID) error
	CheckLimits(ctx context.Context, actor rbac.Actor, id uuid.UUID) (*LimitsDTO, error)
	UsageStats(ctx context.Context, actor rbac.Actor, id uuid.UUID) (*slots.UsageDTO, error)
	UpgradeSlots(ctx context.Context, actor rbac.Actor, id uuid.UUID, input slots.IncreaseSlotsInput) (*slots.UsageDTO, error)
}

// ServiceParams packages the service dependencies.
type ServiceParams struct {
	DB             *db.Client
	Ledger         *slots.Ledger
	Slots          slots.Service
	PasswordConfig config.PasswordConfig
	TenancyConfig  config.TenancyConfig
}

type service struct {
	db          *db.Client
	ledger      *slots.Ledger
	slots       slots.Service
	passwordCfg config.PasswordConfig
	tenancyCfg  config.TenancyConfig
}

func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "database client required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "slot ledger required")
	}
	if params.Slots == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "slots service required")
	}
	return &service{
		db:          params.DB,
		ledger:      params.Ledger,
		slots:       params.Slots,
		passwordCfg: params.PasswordConfig,
		tenancyCfg:  params.TenancyConfig,
	}, nil
}

// Create bootstraps a tenant in one transaction: admin user, company with
// the back-reference, slot allocation, trial subscription and the default
// company_admin role.
func (s *service) Create(ctx context.Context, req CreateCompanyRequest) (*BootstrapResult, error) {
	name := strings.TrimSpace(req.Name)
	adminEmail := strings.ToLower(strings.TrimSpace(req.AdminEmail))
	if name == "" || adminEmail == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "company name and admin email are required")
	}

	passwordHash, err := security.HashPassword(req.AdminPassword, s.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	var result *BootstrapResult
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)

		if _, err := repo.FindByName(ctx, name); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "company name already in use")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check company name")
		}

		plan, err := repo.FindPlanByName(ctx, req.Plan)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeValidation, "unknown plan").
					WithDetails(map[string]any{"plan": req.Plan})
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load plan")
		}

		admin := &models.User{
			ID:           uuid.New(),
			Username:     strings.TrimSpace(req.AdminUsername),
			Email:        adminEmail,
			PasswordHash: passwordHash,
			FirstName:    req.AdminFirstName,
			LastName:     req.AdminLastName,
			UserType:     enums.UserTypeCompanyAdmin,
			IsActive:     true,
		}
		if err := repo.CreateUser(ctx, admin); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create admin user")
		}

		company := &models.Company{
			ID:           uuid.New(),
			Name:         name,
			BillingEmail: req.BillingEmail,
			AdminUserID:  &admin.ID,
			IsActive:     true,
		}
		if _, err := repo.Create(ctx, company); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create company")
		}

		admin.CompanyID = &company.ID
		if err := tx.WithContext(ctx).Model(&models.User{}).
			Where("id = ?", admin.ID).
			UpdateColumn("company_id", company.ID).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "attach admin to company")
		}

		allocation, err := s.ledger.InitAllocation(ctx, tx, company.ID,
			s.tenancyCfg.DefaultBrandSlots, s.tenancyCfg.DefaultUserSlots)
		if err != nil {
			return err
		}
		// The admin occupies the first user slot.
		if err := s.ledger.ClaimUserSlot(ctx, tx, company.ID); err != nil {
			return err
		}
		allocation.CurrentUsersCount = 1

		now := time.Now().UTC()
		trialEnd := now.AddDate(0, 0, s.tenancyCfg.TrialDays)
		sub := &models.Subscription{
			ID:                 uuid.New(),
			CompanyID:          company.ID,
			PlanID:             plan.ID,
			Status:             enums.SubscriptionStatusTrialing,
			CurrentPeriodStart: now,
			CurrentPeriodEnd:   trialEnd,
			TrialEnd:           &trialEnd,
		}
		if err := repo.CreateSubscription(ctx, sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create trial subscription")
		}

		role := &models.Role{
			ID:          uuid.New(),
			CompanyID:   &company.ID,
			Name:        "company_admin",
			Description: "Default administrator role",
			RoleType:    enums.RoleTypeCompany,
			IsActive:    true,
		}
		if err := repo.CreateRole(ctx, role); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create default role")
		}
		if err := repo.CreateUserRole(ctx, &models.UserRole{
			ID:     uuid.New(),
			UserID: admin.ID,
			RoleID: role.ID,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "assign default role")
		}

		result = &BootstrapResult{
			Company:      *FromModel(company),
			AdminUserID:  admin.ID,
			Subscription: sub.ID,
			TrialEnd:     trialEnd,
			Usage:        *slots.UsageFromModel(allocation),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) List(ctx context.Context, actor rbac.Actor, p pagination.Params) (pagination.Page[CompanyDTO], error) {
	if !actor.IsSuperuser {
		return pagination.Page[CompanyDTO]{}, pkgerrors.New(pkgerrors.CodeForbidden, "superuser required")
	}
	p = pagination.Normalize(p)

	rows, total, err := NewRepository(s.db.DB()).List(ctx, p)
	if err != nil {
		return pagination.Page[CompanyDTO]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list companies")
	}
	items := make([]CompanyDTO, 0, len(rows))
	for i := range rows {
		items = append(items, *FromModel(&rows[i]))
	}
	return pagination.NewPage(items, int(total), p), nil
}

func (s *service) Get(ctx context.Context, actor rbac.Actor, id uuid.UUID) (*CompanyDTO, error) {
	company, err := s.loadScoped(ctx, NewRepository(s.db.DB()), actor, id)
	if err != nil {
		return nil, err
	}
	return FromModel(company), nil
}

func (s *service) Update(ctx context.Context, actor rbac.Actor, id uuid.UUID, req UpdateCompanyRequest) (*CompanyDTO, error) {
	if err := requireCompanyAdmin(actor, id); err != nil {
		return nil, err
	}

	var dto *CompanyDTO
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		company, err := s.loadScoped(ctx, repo, actor, id)
		if err != nil {
			return err
		}

		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return pkgerrors.New(pkgerrors.CodeValidation, "company name is required")
			}
			if name != company.Name {
				if _, err := repo.FindByName(ctx, name); err == nil {
					return pkgerrors.New(pkgerrors.CodeConflict, "company name already in use")
				} else if !errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check company name")
				}
			}
			company.Name = name
		}
		if req.BillingEmail != nil {
			company.BillingEmail = strings.ToLower(strings.TrimSpace(*req.BillingEmail))
		}

		if err := repo.Save(ctx, company); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save company")
		}
		dto = FromModel(company)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dto, nil
}

// Delete is the logical cascade: the company goes inactive, its brands are
// soft-deleted, non-admin users are deactivated and any open subscription
// is canceled immediately. Slot counters are reconciled afterwards.
func (s *service) Delete(ctx context.Context, actor rbac.Actor, id uuid.UUID) error {
	if err := requireCompanyAdmin(actor, id); err != nil {
		return err
	}

	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		company, err := s.loadScoped(ctx, repo, actor, id)
		if err != nil {
			return err
		}
		if !company.IsActive {
			return nil
		}

		if err := repo.DeactivateCompany(ctx, company.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deactivate company")
		}
		if err := repo.SoftDeleteBrands(ctx, company.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "soft delete brands")
		}
		if err := repo.DeactivateMembers(ctx, company.ID, company.AdminUserID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deactivate users")
		}

		if sub, err := repo.OpenSubscription(ctx, company.ID); err == nil {
			if err := repo.MarkSubscriptionCanceled(ctx, sub.ID, time.Now().UTC()); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel subscription")
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
		}

		if _, err := s.ledger.Reconcile(ctx, tx, company.ID); err != nil {
			return err
		}
		return nil
	})
}

func (s *service) CheckLimits(ctx context.Context, actor rbac.Actor, id uuid.UUID) (*LimitsDTO, error) {
	if err := requireCompanyMember(actor, id); err != nil {
		return nil, err
	}
	usage, err := s.slots.Usage(ctx, id)
	if err != nil {
		return nil, err
	}
	return &LimitsDTO{
		Usage:       *usage,
		CanAddBrand: usage.CurrentBrandsCount < usage.BrandsSlots,
		CanAddUser:  usage.CurrentUsersCount < usage.UsersSlots,
	}, nil
}

func (s *service) UsageStats(ctx context.Context, actor rbac.Actor, id uuid.UUID) (*slots.UsageDTO, error) {
	if err := requireCompanyMember(actor, id); err != nil {
		return nil, err
	}
	return s.slots.Usage(ctx, id)
}

func (s *service) UpgradeSlots(ctx context.Context, actor rbac.Actor, id uuid.UUID, input slots.IncreaseSlotsInput) (*slots.UsageDTO, error) {
	if err := requireCompanyAdmin(actor, id); err != nil {
		return nil, err
	}
	return s.slots.IncreaseSlots(ctx, id, input)
}

func (s *service) loadScoped(ctx context.Context, repo *Repository, actor rbac.Actor, id uuid.UUID) (*models.Company, error) {
	company, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "company not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load company")
	}
	if actor.IsSuperuser || actor.SameCompany(company.ID) {
		return company, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "company not found")
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
