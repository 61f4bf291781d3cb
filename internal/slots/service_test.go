package slots

import (
	"context"
	"testing"

	"gorm.io/gorm"

	"github.com/megahubhq/megahub-backend/pkg/db"
	pkgerrors "github.com/megahubhq/megahub-backend/pkg/errors"
)

func TestNewServiceRequiresClient(t *testing.T) {
	if _, err := NewService(nil, NewLedger(nil)); err == nil {
		t.Fatal("expected error without client")
	}
}

func TestNewServiceRequiresLedger(t *testing.T) {
	client := db.NewWithConn(newSlotsTestDB(t))
	if _, err := NewService(client, nil); err == nil {
		t.Fatal("expected error without ledger")
	}
}

func TestServiceUsageReturnsPercentages(t *testing.T) {
	conn := newSlotsTestDB(t)
	companyID := seedAllocation(t, conn, 5, 10, 4, 5)
	svc, err := NewService(db.NewWithConn(conn), NewLedger(nil))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	usage, err := svc.Usage(context.Background(), companyID)
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if usage.BrandsUsagePct != 80 || usage.UsersUsagePct != 50 {
		t.Fatalf("unexpected percentages: %+v", usage)
	}
}

func TestServiceIncreaseSlotsRejectsShrinkBelowUsage(t *testing.T) {
	conn := newSlotsTestDB(t)
	companyID := seedAllocation(t, conn, 5, 10, 4, 0)
	svc, err := NewService(db.NewWithConn(conn), NewLedger(nil))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	three := 3
	_, gotErr := svc.IncreaseSlots(context.Background(), companyID, IncreaseSlotsInput{BrandsSlots: &three})
	if typed := pkgerrors.As(gotErr); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", gotErr)
	}
}

func TestServiceIncreaseSlotsResolvesLimitAlert(t *testing.T) {
	conn := newSlotsTestDB(t)
	ctx := context.Background()
	companyID := seedAllocation(t, conn, 2, 10, 1, 0)
	ledger := NewLedger(nil)
	svc, err := NewService(db.NewWithConn(conn), ledger)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	// hit the limit so the alert is raised
	if err := conn.Transaction(func(tx *gorm.DB) error {
		return ledger.ClaimBrandSlot(ctx, tx, companyID)
	}); err != nil {
		t.Fatalf("claim: %v", err)
	}

	five := 5
	usage, err := svc.IncreaseSlots(ctx, companyID, IncreaseSlotsInput{BrandsSlots: &five})
	if err != nil {
		t.Fatalf("increase slots: %v", err)
	}
	if usage.BrandsSlots != 5 {
		t.Fatalf("expected 5 brand slots, got %d", usage.BrandsSlots)
	}
}

func TestServiceRefreshCountsReconciles(t *testing.T) {
	conn := newSlotsTestDB(t)
	companyID := seedAllocation(t, conn, 5, 10, 4, 7)
	svc, err := NewService(db.NewWithConn(conn), NewLedger(nil))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	usage, err := svc.RefreshCounts(context.Background(), companyID)
	if err != nil {
		t.Fatalf("refresh counts: %v", err)
	}
	if usage.CurrentBrandsCount != 0 || usage.CurrentUsersCount != 0 {
		t.Fatalf("expected zero counts after reconcile, got %+v", usage)
	}
}
