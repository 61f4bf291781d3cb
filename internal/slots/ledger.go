package slots

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/megahubhq/megahub-backend/pkg/db/models"
	"github.com/megahubhq/megahub-backend/pkg/enums"
	pkgerrors "github.com/megahubhq/megahub-backend/pkg/errors"
	"github.com/megahubhq/megahub-backend/pkg/outbox"
)

// warningThreshold is the usage ratio at which a warning alert is raised.
const warningThreshold = 0.8

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Ledger performs slot claims and releases inside a caller-held transaction.
// Every mutation locks the allocation row first, so concurrent claims against
// the same company serialize on the database.
type Ledger struct {
	events eventEmitter
}

// NewLedger builds a Ledger. The emitter may be nil, in which case alert
// transitions are persisted without outbox events.
func NewLedger(events eventEmitter) *Ledger {
	return &Ledger{events: events}
}

// AlertPayload is the outbox payload for usage alert transitions.
type AlertPayload struct {
	CompanyID uuid.UUID            `json:"company_id"`
	Kind      enums.UsageAlertKind `json:"kind"`
	Message   string               `json:"message"`
}

// InitAllocation creates the slot allocation row for a new company.
func (l *Ledger) InitAllocation(ctx context.Context, tx *gorm.DB, companyID uuid.UUID, brandsSlots, usersSlots int) (*models.CompanySlots, error) {
	if brandsSlots < 0 || usersSlots < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "slot counts cannot be negative")
	}
	allocation := &models.CompanySlots{
		CompanyID:   companyID,
		BrandsSlots: brandsSlots,
		UsersSlots:  usersSlots,
	}
	if err := NewRepository(tx).Create(ctx, allocation); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create slot allocation")
	}
	return allocation, nil
}

// ClaimBrandSlot reserves one brand slot or fails with a quota error.
func (l *Ledger) ClaimBrandSlot(ctx context.Context, tx *gorm.DB, companyID uuid.UUID) error {
	repo := NewRepository(tx)
	allocation, err := repo.GetForUpdate(tx, companyID)
	if err != nil {
		return wrapAllocationErr(err)
	}
	if allocation.CurrentBrandsCount >= allocation.BrandsSlots {
		return pkgerrors.New(pkgerrors.CodeQuotaExceeded, "brand slot limit reached").
			WithDetails(map[string]any{
				"brands_slots":         allocation.BrandsSlots,
				"current_brands_count": allocation.CurrentBrandsCount,
			})
	}
	allocation.CurrentBrandsCount++
	if err := repo.Save(tx, allocation); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save slot allocation")
	}
	return l.evaluateAlerts(ctx, tx, repo, allocation)
}

// ReleaseBrandSlot returns one brand slot to the pool.
func (l *Ledger) ReleaseBrandSlot(ctx context.Context, tx *gorm.DB, companyID uuid.UUID) error {
	repo := NewRepository(tx)
	allocation, err := repo.GetForUpdate(tx, companyID)
	if err != nil {
		return wrapAllocationErr(err)
	}
	if allocation.CurrentBrandsCount <= 0 {
		return pkgerrors.New(pkgerrors.CodeSlotUnderflow, "brand slot count is already zero")
	}
	allocation.CurrentBrandsCount--
	if err := repo.Save(tx, allocation); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save slot allocation")
	}
	return l.evaluateAlerts(ctx, tx, repo, allocation)
}

// ClaimUserSlot reserves one user slot or fails with a quota error.
func (l *Ledger) ClaimUserSlot(ctx context.Context, tx *gorm.DB, companyID uuid.UUID) error {
	repo := NewRepository(tx)
	allocation, err := repo.GetForUpdate(tx, companyID)
	if err != nil {
		return wrapAllocationErr(err)
	}
	if allocation.CurrentUsersCount >= allocation.UsersSlots {
		return pkgerrors.New(pkgerrors.CodeQuotaExceeded, "user slot limit reached").
			WithDetails(map[string]any{
				"users_slots":         allocation.UsersSlots,
				"current_users_count": allocation.CurrentUsersCount,
			})
	}
	allocation.CurrentUsersCount++
	if err := repo.Save(tx, allocation); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save slot allocation")
	}
	return l.evaluateAlerts(ctx, tx, repo, allocation)
}

// ReleaseUserSlot returns one user slot to the pool.
func (l *Ledger) ReleaseUserSlot(ctx context.Context, tx *gorm.DB, companyID uuid.UUID) error {
	repo := NewRepository(tx)
	allocation, err := repo.GetForUpdate(tx, companyID)
	if err != nil {
		return wrapAllocationErr(err)
	}
	if allocation.CurrentUsersCount <= 0 {
		return pkgerrors.New(pkgerrors.CodeSlotUnderflow, "user slot count is already zero")
	}
	allocation.CurrentUsersCount--
	if err := repo.Save(tx, allocation); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save slot allocation")
	}
	return l.evaluateAlerts(ctx, tx, repo, allocation)
}

// Reconcile recounts brands and users from their tables and overwrites the
// stored counters, then re-evaluates alerts.
func (l *Ledger) Reconcile(ctx context.Context, tx *gorm.DB, companyID uuid.UUID) (*models.CompanySlots, error) {
	repo := NewRepository(tx)
	allocation, err := repo.GetForUpdate(tx, companyID)
	if err != nil {
		return nil, wrapAllocationErr(err)
	}

	brands, err := repo.CountActiveBrands(tx, companyID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count brands")
	}
	users, err := repo.CountActiveUsers(tx, companyID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count users")
	}

	allocation.CurrentBrandsCount = int(brands)
	allocation.CurrentUsersCount = int(users)
	if err := repo.Save(tx, allocation); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save slot allocation")
	}
	if err := l.evaluateAlerts(ctx, tx, repo, allocation); err != nil {
		return nil, err
	}
	return allocation, nil
}

func (l *Ledger) evaluateAlerts(ctx context.Context, tx *gorm.DB, repo *Repository, allocation *models.CompanySlots) error {
	brandsPct := ratio(allocation.CurrentBrandsCount, allocation.BrandsSlots)
	usersPct := ratio(allocation.CurrentUsersCount, allocation.UsersSlots)

	transitions := []struct {
		kind    enums.UsageAlertKind
		active  bool
		message string
	}{
		{
			kind:    enums.UsageAlertKindBrandsLimit,
			active:  brandsPct >= 1,
			message: fmt.Sprintf("brand slots exhausted (%d of %d used)", allocation.CurrentBrandsCount, allocation.BrandsSlots),
		},
		{
			kind:    enums.UsageAlertKindBrandsWarning,
			active:  brandsPct >= warningThreshold && brandsPct < 1,
			message: fmt.Sprintf("brand slot usage at %d of %d", allocation.CurrentBrandsCount, allocation.BrandsSlots),
		},
		{
			kind:    enums.UsageAlertKindUsersLimit,
			active:  usersPct >= 1,
			message: fmt.Sprintf("user slots exhausted (%d of %d used)", allocation.CurrentUsersCount, allocation.UsersSlots),
		},
		{
			kind:    enums.UsageAlertKindUsersWarning,
			active:  usersPct >= warningThreshold && usersPct < 1,
			message: fmt.Sprintf("user slot usage at %d of %d", allocation.CurrentUsersCount, allocation.UsersSlots),
		},
	}

	for _, tr := range transitions {
		if err := l.applyTransition(ctx, tx, repo, allocation.CompanyID, tr.kind, tr.active, tr.message); err != nil {
			return err
		}
	}
	return nil
}

func (l *Ledger) applyTransition(ctx context.Context, tx *gorm.DB, repo *Repository, companyID uuid.UUID, kind enums.UsageAlertKind, shouldBeActive bool, message string) error {
	existing, err := repo.ActiveAlert(tx, companyID, kind)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load active alert")
	}

	switch {
	case shouldBeActive && existing == nil:
		alert := &models.UsageAlert{
			CompanyID: companyID,
			Kind:      kind,
			Status:    enums.UsageAlertStatusActive,
			Message:   message,
		}
		if err := repo.InsertAlert(tx, alert); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "insert alert")
		}
		return l.emit(ctx, tx, enums.OutboxEventTypeUsageAlertRaised, alert.ID, AlertPayload{
			CompanyID: companyID,
			Kind:      kind,
			Message:   message,
		})
	case !shouldBeActive && existing != nil:
		if err := repo.ResolveAlert(tx, existing); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve alert")
		}
		return l.emit(ctx, tx, enums.OutboxEventTypeUsageAlertResolved, existing.ID, AlertPayload{
			CompanyID: companyID,
			Kind:      kind,
			Message:   existing.Message,
		})
	default:
		return nil
	}
}

func (l *Ledger) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, alertID uuid.UUID, payload AlertPayload) error {
	if l.events == nil {
		return nil
	}
	err := l.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.OutboxAggregateTypeUsageAlert,
		AggregateID:   alertID,
		Data:          payload,
		Version:       1,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit alert event")
	}
	return nil
}

func wrapAllocationErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "slot allocation not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load slot allocation")
}

func ratio(current, limit int) float64 {
	if limit <= 0 {
		return 0
	}
	return float64(current) / float64(limit)
}
