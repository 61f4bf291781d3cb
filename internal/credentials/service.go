package credentials

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/megahubhq/megahub-backend/internal/scope"
	"github.com/megahubhq/megahub-backend/pkg/db"
	"github.com/megahubhq/megahub-backend/pkg/db/models"
	pkgerrors "github.com/megahubhq/megahub-backend/pkg/errors"
	"github.com/megahubhq/megahub-backend/pkg/pagination"
	"github.com/megahubhq/megahub-backend/pkg/security"
)

// ResourceCredentials is the routing-table key for stored provider keys.
const ResourceCredentials = "ai_credentials"

// RegisterResources adds this package's resources to the routing table.
func RegisterResources(reg *scope.Registry) error {
	return reg.Register(ResourceCredentials, scope.Rule{
		BrandColumn: "ai_credentials.brand_id",
	})
}

// Service stores and serves brand-owned third-party provider keys. Keys are
// sealed before they touch the database; Reveal is the only path back to
// plaintext.
type Service interface {
	List(ctx context.Context, access scope.Access, p pagination.Params) (pagination.Page[CredentialDTO], error)
	Create(ctx context.Context, access scope.Access, currentBrand *uuid.UUID, req CreateCredentialRequest) (*CredentialDTO, error)
	Get(ctx context.Context, access scope.Access, id uuid.UUID) (*CredentialDTO, error)
	Rotate(ctx context.Context, access scope.Access, id uuid.UUID, req RotateCredentialRequest) (*CredentialDTO, error)
	Reveal(ctx context.Context, access scope.Access, id uuid.UUID) (string, error)
	Delete(ctx context.Context, access scope.Access, id uuid.UUID) error
}

// ServiceParams packages the service dependencies.
type ServiceParams struct {
	DB       *db.Client
	Registry *scope.Registry
	Sealer   *security.Sealer
}

type service struct {
	db     *db.Client
	reg    *scope.Registry
	sealer *security.Sealer
}

func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "database client required")
	}
	if params.Registry == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "scope registry required")
	}
	if params.Sealer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "credential sealer required")
	}
	return &service{db: params.DB, reg: params.Registry, sealer: params.Sealer}, nil
}

var credentialOrderings = map[string]string{
	"provider":   "ai_credentials.provider",
	"created_at": "ai_credentials.created_at",
}

func (s *service) List(ctx context.Context, access scope.Access, p pagination.Params) (pagination.Page[CredentialDTO], error) {
	p = pagination.Normalize(p)

	q, err := s.reg.Apply(s.db.DB().WithContext(ctx).Model(&models.AICredential{}), ResourceCredentials, access)
	if err != nil {
		return pagination.Page[CredentialDTO]{}, err
	}
	if p.Search != "" {
		q = q.Where("ai_credentials.provider LIKE ?", "%"+p.Search+"%")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return pagination.Page[CredentialDTO]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count credentials")
	}
	var rows []models.AICredential
	err = q.
		Order(pagination.OrderClause(p.Ordering, credentialOrderings, "ai_credentials.created_at DESC")).
		Offset(p.Offset()).
		Limit(p.Limit()).
		Find(&rows).Error
	if err != nil {
		return pagination.Page[CredentialDTO]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list credentials")
	}

	items := make([]CredentialDTO, 0, len(rows))
	for i := range rows {
		items = append(items, *credentialFromModel(&rows[i]))
	}
	return pagination.NewPage(items, int(total), p), nil
}

// Create seals the key and stores it under the target brand. One credential
// per provider per brand; a second write for the same pair is a conflict.
func (s *service) Create(ctx context.Context, access scope.Access, currentBrand *uuid.UUID, req CreateCredentialRequest) (*CredentialDTO, error) {
	brandID := req.BrandID
	if brandID == nil {
		brandID = currentBrand
	}
	if brandID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no brand selected")
	}

	var dto *CredentialDTO
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var brand models.Brand
		if err := tx.WithContext(ctx).First(&brand, "id = ? AND soft_deleted = ?", *brandID, false).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "brand not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load brand")
		}
		if err := access.RequireBrand(brand.ID, brand.CompanyID); err != nil {
			return err
		}

		sealed, err := s.sealer.Seal([]byte(req.Key))
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "seal credential")
		}
		cred := &models.AICredential{
			ID:           uuid.New(),
			BrandID:      brand.ID,
			Provider:     strings.ToLower(strings.TrimSpace(req.Provider)),
			EncryptedKey: sealed,
			KeyHint:      security.Hint(req.Key),
			IsActive:     true,
		}
		if err := tx.WithContext(ctx).Create(cred).Error; err != nil {
			if db.IsUniqueViolation(err, "provider") {
				return pkgerrors.New(pkgerrors.CodeConflict, "credential for provider already exists")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create credential")
		}
		dto = credentialFromModel(cred)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dto, nil
}

func (s *service) Get(ctx context.Context, access scope.Access, id uuid.UUID) (*CredentialDTO, error) {
	cred, err := s.loadCredential(ctx, s.db.DB(), access, id)
	if err != nil {
		return nil, err
	}
	return credentialFromModel(cred), nil
}

// Rotate swaps the sealed key without touching the credential's identity.
func (s *service) Rotate(ctx context.Context, access scope.Access, id uuid.UUID, req RotateCredentialRequest) (*CredentialDTO, error) {
	var dto *CredentialDTO
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		cred, err := s.loadCredential(ctx, tx, access, id)
		if err != nil {
			return err
		}
		sealed, err := s.sealer.Seal([]byte(req.Key))
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "seal credential")
		}
		cred.EncryptedKey = sealed
		cred.KeyHint = security.Hint(req.Key)
		cred.IsActive = true
		if err := tx.WithContext(ctx).Save(cred).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save credential")
		}
		dto = credentialFromModel(cred)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dto, nil
}

// Reveal decrypts the stored key and records the use.
func (s *service) Reveal(ctx context.Context, access scope.Access, id uuid.UUID) (string, error) {
	var plaintext string
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		cred, err := s.loadCredential(ctx, tx, access, id)
		if err != nil {
			return err
		}
		if !cred.IsActive {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "credential is disabled")
		}
		opened, err := s.sealer.Open(cred.EncryptedKey)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "open credential")
		}
		now := time.Now().UTC()
		cred.LastUsedAt = &now
		if err := tx.WithContext(ctx).Save(cred).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record credential use")
		}
		plaintext = string(opened)
		return nil
	})
	if err != nil {
		return "", err
	}
	return plaintext, nil
}

func (s *service) Delete(ctx context.Context, access scope.Access, id uuid.UUID) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		cred, err := s.loadCredential(ctx, tx, access, id)
		if err != nil {
			return err
		}
		if err := tx.WithContext(ctx).Delete(cred).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete credential")
		}
		return nil
	})
}

// loadCredential fetches one credential through the scoped queryset, so a
// row outside the caller's brands reads as not-found.
func (s *service) loadCredential(ctx context.Context, tx *gorm.DB, access scope.Access, id uuid.UUID) (*models.AICredential, error) {
	q, err := s.reg.Apply(tx.WithContext(ctx).Model(&models.AICredential{}), ResourceCredentials, access)
	if err != nil {
		return nil, err
	}
	var cred models.AICredential
	if err := q.Where("ai_credentials.id = ?", id).First(&cred).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "credential not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load credential")
	}
	return &cred, nil
}
