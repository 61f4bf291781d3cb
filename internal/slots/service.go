package slots

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/megahubhq/megahub-backend/pkg/db"
	pkgerrors "github.com/megahubhq/megahub-backend/pkg/errors"
)

// Service exposes slot allocation operations.
type Service interface {
	Usage(ctx context.Context, companyID uuid.UUID) (*UsageDTO, error)
	Alerts(ctx context.Context, companyID uuid.UUID) ([]AlertDTO, error)
	IncreaseSlots(ctx context.Context, companyID uuid.UUID, input IncreaseSlotsInput) (*UsageDTO, error)
	RefreshCounts(ctx context.Context, companyID uuid.UUID) (*UsageDTO, error)
}

// IncreaseSlotsInput carries the new totals for a slot upgrade. Nil fields
// leave the corresponding allocation untouched.
type IncreaseSlotsInput struct {
	BrandsSlots *int
	UsersSlots  *int
}

type service struct {
	db     *db.Client
	ledger *Ledger
}

// NewService builds a slot service over the database client.
func NewService(client *db.Client, ledger *Ledger) (Service, error) {
	if client == nil {
		return nil, fmt.Errorf("database client required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	return &service{db: client, ledger: ledger}, nil
}

func (s *service) Usage(ctx context.Context, companyID uuid.UUID) (*UsageDTO, error) {
	allocation, err := NewRepository(s.db.DB()).GetByCompany(ctx, companyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "slot allocation not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load slot allocation")
	}
	return UsageFromModel(allocation), nil
}

func (s *service) Alerts(ctx context.Context, companyID uuid.UUID) ([]AlertDTO, error) {
	alerts, err := NewRepository(s.db.DB()).ListAlerts(ctx, companyID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list alerts")
	}
	out := make([]AlertDTO, 0, len(alerts))
	for i := range alerts {
		out = append(out, *AlertFromModel(&alerts[i]))
	}
	return out, nil
}

func (s *service) IncreaseSlots(ctx context.Context, companyID uuid.UUID, input IncreaseSlotsInput) (*UsageDTO, error) {
	if input.BrandsSlots == nil && input.UsersSlots == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no slot changes requested")
	}

	var result *UsageDTO
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		allocation, err := repo.GetForUpdate(tx, companyID)
		if err != nil {
			return wrapAllocationErr(err)
		}

		if input.BrandsSlots != nil {
			if *input.BrandsSlots < allocation.CurrentBrandsCount {
				return pkgerrors.New(pkgerrors.CodeValidation, "brands_slots cannot drop below current usage").
					WithDetails(map[string]any{"current_brands_count": allocation.CurrentBrandsCount})
			}
			allocation.BrandsSlots = *input.BrandsSlots
		}
		if input.UsersSlots != nil {
			if *input.UsersSlots < allocation.CurrentUsersCount {
				return pkgerrors.New(pkgerrors.CodeValidation, "users_slots cannot drop below current usage").
					WithDetails(map[string]any{"current_users_count": allocation.CurrentUsersCount})
			}
			allocation.UsersSlots = *input.UsersSlots
		}

		if err := repo.Save(tx, allocation); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save slot allocation")
		}
		if err := s.ledger.evaluateAlerts(ctx, tx, repo, allocation); err != nil {
			return err
		}
		result = UsageFromModel(allocation)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) RefreshCounts(ctx context.Context, companyID uuid.UUID) (*UsageDTO, error) {
	var result *UsageDTO
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		allocation, err := s.ledger.Reconcile(ctx, tx, companyID)
		if err != nil {
			return err
		}
		result = UsageFromModel(allocation)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
