package slots

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/megahubhq/megahub-backend/pkg/db/models"
	"github.com/megahubhq/megahub-backend/pkg/enums"
	pkgerrors "github.com/megahubhq/megahub-backend/pkg/errors"
	"github.com/megahubhq/megahub-backend/pkg/outbox"
)

type recordingEmitter struct {
	events []outbox.DomainEvent
}

func (r *recordingEmitter) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	r.events = append(r.events, event)
	return nil
}

func newSlotsTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:slots_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.CompanySlots{}, &models.Brand{}, &models.User{}, &models.UsageAlert{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedAllocation(t *testing.T, db *gorm.DB, brandsSlots, usersSlots, brandsUsed, usersUsed int) uuid.UUID {
	t.Helper()
	companyID := uuid.New()
	allocation := models.CompanySlots{
		ID:                 uuid.New(),
		CompanyID:          companyID,
		BrandsSlots:        brandsSlots,
		UsersSlots:         usersSlots,
		CurrentBrandsCount: brandsUsed,
		CurrentUsersCount:  usersUsed,
	}
	if err := db.Create(&allocation).Error; err != nil {
		t.Fatalf("seed allocation: %v", err)
	}
	return companyID
}

func TestClaimBrandSlotIncrements(t *testing.T) {
	db := newSlotsTestDB(t)
	ctx := context.Background()
	companyID := seedAllocation(t, db, 5, 10, 0, 0)
	ledger := NewLedger(nil)

	err := db.Transaction(func(tx *gorm.DB) error {
		return ledger.ClaimBrandSlot(ctx, tx, companyID)
	})
	if err != nil {
		t.Fatalf("claim brand slot: %v", err)
	}

	allocation, err := NewRepository(db).GetByCompany(ctx, companyID)
	if err != nil {
		t.Fatalf("load allocation: %v", err)
	}
	if allocation.CurrentBrandsCount != 1 {
		t.Fatalf("expected 1 brand used, got %d", allocation.CurrentBrandsCount)
	}
}

func TestClaimBrandSlotAtLimitFails(t *testing.T) {
	db := newSlotsTestDB(t)
	ctx := context.Background()
	companyID := seedAllocation(t, db, 2, 10, 2, 0)
	ledger := NewLedger(nil)

	err := db.Transaction(func(tx *gorm.DB) error {
		return ledger.ClaimBrandSlot(ctx, tx, companyID)
	})
	if err == nil {
		t.Fatal("expected quota error")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeQuotaExceeded {
		t.Fatalf("expected quota exceeded, got %v", err)
	}

	allocation, _ := NewRepository(db).GetByCompany(ctx, companyID)
	if allocation.CurrentBrandsCount != 2 {
		t.Fatalf("count should be unchanged, got %d", allocation.CurrentBrandsCount)
	}
}

func TestClaimUserSlotAtLimitFails(t *testing.T) {
	db := newSlotsTestDB(t)
	ctx := context.Background()
	companyID := seedAllocation(t, db, 5, 3, 0, 3)
	ledger := NewLedger(nil)

	err := db.Transaction(func(tx *gorm.DB) error {
		return ledger.ClaimUserSlot(ctx, tx, companyID)
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeQuotaExceeded {
		t.Fatalf("expected quota exceeded, got %v", err)
	}
}

func TestReleaseBrandSlotUnderflow(t *testing.T) {
	db := newSlotsTestDB(t)
	ctx := context.Background()
	companyID := seedAllocation(t, db, 5, 10, 0, 0)
	ledger := NewLedger(nil)

	err := db.Transaction(func(tx *gorm.DB) error {
		return ledger.ReleaseBrandSlot(ctx, tx, companyID)
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeSlotUnderflow {
		t.Fatalf("expected slot underflow, got %v", err)
	}
}

func TestClaimRaisesLimitAlertAndEmitsEvent(t *testing.T) {
	db := newSlotsTestDB(t)
	ctx := context.Background()
	companyID := seedAllocation(t, db, 2, 10, 1, 0)
	emitter := &recordingEmitter{}
	ledger := NewLedger(emitter)

	err := db.Transaction(func(tx *gorm.DB) error {
		return ledger.ClaimBrandSlot(ctx, tx, companyID)
	})
	if err != nil {
		t.Fatalf("claim brand slot: %v", err)
	}

	var alert models.UsageAlert
	if err := db.First(&alert, "company_id = ? AND kind = ?", companyID, enums.UsageAlertKindBrandsLimit).Error; err != nil {
		t.Fatalf("expected brands_limit alert: %v", err)
	}
	if alert.Status != enums.UsageAlertStatusActive {
		t.Fatalf("expected active alert, got %s", alert.Status)
	}
	if len(emitter.events) != 1 || emitter.events[0].EventType != enums.OutboxEventTypeUsageAlertRaised {
		t.Fatalf("expected one raised event, got %+v", emitter.events)
	}
}

func TestWarningRaisedAtEightyPercent(t *testing.T) {
	db := newSlotsTestDB(t)
	ctx := context.Background()
	companyID := seedAllocation(t, db, 5, 10, 3, 0)
	ledger := NewLedger(nil)

	err := db.Transaction(func(tx *gorm.DB) error {
		return ledger.ClaimBrandSlot(ctx, tx, companyID)
	})
	if err != nil {
		t.Fatalf("claim brand slot: %v", err)
	}

	var alert models.UsageAlert
	if err := db.First(&alert, "company_id = ? AND kind = ? AND status = ?", companyID, enums.UsageAlertKindBrandsWarning, enums.UsageAlertStatusActive).Error; err != nil {
		t.Fatalf("expected active brands_warning alert: %v", err)
	}
}

func TestLimitAlertSupersedesWarning(t *testing.T) {
	db := newSlotsTestDB(t)
	ctx := context.Background()
	companyID := seedAllocation(t, db, 5, 10, 4, 0)
	ledger := NewLedger(nil)

	// 4/5 raises the warning first
	if err := db.Transaction(func(tx *gorm.DB) error {
		allocation, err := NewRepository(tx).GetForUpdate(tx, companyID)
		if err != nil {
			return err
		}
		return ledger.evaluateAlerts(ctx, tx, NewRepository(tx), allocation)
	}); err != nil {
		t.Fatalf("evaluate alerts: %v", err)
	}

	if err := db.Transaction(func(tx *gorm.DB) error {
		return ledger.ClaimBrandSlot(ctx, tx, companyID)
	}); err != nil {
		t.Fatalf("claim brand slot: %v", err)
	}

	var warning models.UsageAlert
	if err := db.First(&warning, "company_id = ? AND kind = ?", companyID, enums.UsageAlertKindBrandsWarning).Error; err != nil {
		t.Fatalf("load warning: %v", err)
	}
	if warning.Status != enums.UsageAlertStatusResolved {
		t.Fatalf("expected warning resolved at limit, got %s", warning.Status)
	}

	var limit models.UsageAlert
	if err := db.First(&limit, "company_id = ? AND kind = ? AND status = ?", companyID, enums.UsageAlertKindBrandsLimit, enums.UsageAlertStatusActive).Error; err != nil {
		t.Fatalf("expected active limit alert: %v", err)
	}
}

func TestReleaseResolvesLimitAlert(t *testing.T) {
	db := newSlotsTestDB(t)
	ctx := context.Background()
	companyID := seedAllocation(t, db, 2, 10, 1, 0)
	emitter := &recordingEmitter{}
	ledger := NewLedger(emitter)

	if err := db.Transaction(func(tx *gorm.DB) error {
		return ledger.ClaimBrandSlot(ctx, tx, companyID)
	}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := db.Transaction(func(tx *gorm.DB) error {
		return ledger.ReleaseBrandSlot(ctx, tx, companyID)
	}); err != nil {
		t.Fatalf("release: %v", err)
	}

	var alert models.UsageAlert
	if err := db.First(&alert, "company_id = ? AND kind = ?", companyID, enums.UsageAlertKindBrandsLimit).Error; err != nil {
		t.Fatalf("load alert: %v", err)
	}
	if alert.Status != enums.UsageAlertStatusResolved {
		t.Fatalf("expected resolved alert, got %s", alert.Status)
	}
	if len(emitter.events) != 2 || emitter.events[1].EventType != enums.OutboxEventTypeUsageAlertResolved {
		t.Fatalf("expected raised then resolved events, got %+v", emitter.events)
	}
}

func TestReconcileOverwritesDriftedCounters(t *testing.T) {
	db := newSlotsTestDB(t)
	ctx := context.Background()
	companyID := seedAllocation(t, db, 5, 10, 4, 7)
	ledger := NewLedger(nil)

	for i := 0; i < 2; i++ {
		brand := models.Brand{ID: uuid.New(), CompanyID: companyID, Name: "brand", IsActive: true}
		brand.Name = brand.Name + uuid.NewString()
		if err := db.Create(&brand).Error; err != nil {
			t.Fatalf("seed brand: %v", err)
		}
	}
	user := models.User{ID: uuid.New(), Username: uuid.NewString(), Email: uuid.NewString() + "@test.io", PasswordHash: "x", CompanyID: &companyID, UserType: enums.UserTypeMember, IsActive: true}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		_, rerr := ledger.Reconcile(ctx, tx, companyID)
		return rerr
	})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	allocation, _ := NewRepository(db).GetByCompany(ctx, companyID)
	if allocation.CurrentBrandsCount != 2 {
		t.Fatalf("expected 2 brands after reconcile, got %d", allocation.CurrentBrandsCount)
	}
	if allocation.CurrentUsersCount != 1 {
		t.Fatalf("expected 1 user after reconcile, got %d", allocation.CurrentUsersCount)
	}
}

func TestInitAllocationRejectsNegative(t *testing.T) {
	db := newSlotsTestDB(t)
	ledger := NewLedger(nil)

	err := db.Transaction(func(tx *gorm.DB) error {
		_, ierr := ledger.InitAllocation(context.Background(), tx, uuid.New(), -1, 10)
		return ierr
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUsagePercentages(t *testing.T) {
	dto := UsageFromModel(&models.CompanySlots{
		BrandsSlots:        5,
		UsersSlots:         10,
		CurrentBrandsCount: 4,
		CurrentUsersCount:  5,
	})
	if dto.BrandsUsagePct != 80 {
		t.Fatalf("expected 80%% brands usage, got %f", dto.BrandsUsagePct)
	}
	if dto.UsersUsagePct != 50 {
		t.Fatalf("expected 50%% users usage, got %f", dto.UsersUsagePct)
	}
}
