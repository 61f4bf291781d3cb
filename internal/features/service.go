package features

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/megahubhq/megahub-backend/pkg/db/models"
	pkgerrors "github.com/megahubhq/megahub-backend/pkg/errors"
)

type featureRepository interface {
	FindByCode(ctx context.Context, code string) (*models.Feature, error)
	ListCatalog(ctx context.Context) ([]models.Feature, error)
	GetGrant(ctx context.Context, companyID, featureID uuid.UUID) (*models.CompanyFeature, error)
	ListGrants(ctx context.Context, companyID uuid.UUID) ([]models.CompanyFeature, error)
	Upsert(ctx context.Context, grant *models.CompanyFeature) error
	ConsumeAtomic(ctx context.Context, companyID, featureID uuid.UUID, n int) (bool, error)
}

// Service exposes the feature gate.
type Service interface {
	IsFeatureActive(ctx context.Context, companyID uuid.UUID, code string) (bool, error)
	ConsumeFeature(ctx context.Context, companyID uuid.UUID, code string, n int) (bool, error)
	ListForCompany(ctx context.Context, companyID uuid.UUID) ([]GrantDTO, error)
	Grant(ctx context.Context, companyID uuid.UUID, input GrantInput) (*GrantDTO, error)
}

// GrantInput describes a feature grant or update for a company.
type GrantInput struct {
	Code       string
	IsEnabled  *bool
	LimitValue *int
	ExpiresAt  *time.Time
}

// GrantDTO exposes a company's feature grant.
type GrantDTO struct {
	FeatureCode string     `json:"feature_code"`
	FeatureName string     `json:"feature_name"`
	IsEnabled   bool       `json:"is_enabled"`
	LimitValue  *int       `json:"limit_value,omitempty"`
	UsedValue   int        `json:"used_value"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Active      bool       `json:"active"`
}

type service struct {
	repo featureRepository
}

// NewService builds the feature gate service.
func NewService(repo featureRepository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("feature repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) IsFeatureActive(ctx context.Context, companyID uuid.UUID, code string) (bool, error) {
	feature, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load feature")
	}
	if !feature.IsActive {
		return false, nil
	}

	grant, err := s.repo.GetGrant(ctx, companyID, feature.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load feature grant")
	}
	return grantActive(grant, time.Now().UTC()), nil
}

func (s *service) ConsumeFeature(ctx context.Context, companyID uuid.UUID, code string, n int) (bool, error) {
	if n <= 0 {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "consume amount must be positive")
	}
	feature, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load feature")
	}
	ok, err := s.repo.ConsumeAtomic(ctx, companyID, feature.ID, n)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "consume feature")
	}
	return ok, nil
}

func (s *service) ListForCompany(ctx context.Context, companyID uuid.UUID) ([]GrantDTO, error) {
	grants, err := s.repo.ListGrants(ctx, companyID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list feature grants")
	}
	now := time.Now().UTC()
	out := make([]GrantDTO, 0, len(grants))
	for i := range grants {
		out = append(out, grantDTO(&grants[i], now))
	}
	return out, nil
}

func (s *service) Grant(ctx context.Context, companyID uuid.UUID, input GrantInput) (*GrantDTO, error) {
	feature, err := s.repo.FindByCode(ctx, input.Code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "feature not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load feature")
	}

	grant, err := s.repo.GetGrant(ctx, companyID, feature.ID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load feature grant")
		}
		grant = &models.CompanyFeature{
			CompanyID: companyID,
			FeatureID: feature.ID,
			IsEnabled: true,
		}
	}

	if input.IsEnabled != nil {
		grant.IsEnabled = *input.IsEnabled
	}
	if input.LimitValue != nil {
		grant.LimitValue = input.LimitValue
	}
	if input.ExpiresAt != nil {
		grant.ExpiresAt = input.ExpiresAt
	}
	if grant.LimitValue == nil && feature.DefaultLimit != nil {
		limit := *feature.DefaultLimit
		grant.LimitValue = &limit
	}

	if err := s.repo.Upsert(ctx, grant); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save feature grant")
	}
	grant.Feature = feature
	dto := grantDTO(grant, time.Now().UTC())
	return &dto, nil
}

func grantActive(grant *models.CompanyFeature, now time.Time) bool {
	if grant == nil || !grant.IsEnabled {
		return false
	}
	if grant.ExpiresAt != nil && !grant.ExpiresAt.After(now) {
		return false
	}
	if grant.LimitValue != nil && grant.UsedValue >= *grant.LimitValue {
		return false
	}
	return true
}

func grantDTO(grant *models.CompanyFeature, now time.Time) GrantDTO {
	dto := GrantDTO{
		IsEnabled:  grant.IsEnabled,
		LimitValue: grant.LimitValue,
		UsedValue:  grant.UsedValue,
		ExpiresAt:  grant.ExpiresAt,
		Active:     grantActive(grant, now),
	}
	if grant.Feature != nil {
		dto.FeatureCode = grant.Feature.Code
		dto.FeatureName = grant.Feature.Name
	}
	return dto
}
