package brands

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/megahubhq/megahub-backend/internal/rbac"
	"github.com/megahubhq/megahub-backend/internal/slots"
	"github.com/megahubhq/megahub-backend/pkg/db"
	"github.com/megahubhq/megahub-backend/pkg/db/models"
	"github.com/megahubhq/megahub-backend/pkg/enums"
	pkgerrors "github.com/megahubhq/megahub-backend/pkg/errors"
	"github.com/megahubhq/megahub-backend/pkg/pagination"
)

func newBrandsTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:brands_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = conn.AutoMigrate(
		&models.Brand{},
		&models.BrandUser{},
		&models.User{},
		&models.CompanySlots{},
		&models.UsageAlert{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func newBrandsService(t *testing.T, conn *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		DB:     db.NewWithConn(conn),
		Ledger: slots.NewLedger(nil),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func seedAllocation(t *testing.T, conn *gorm.DB, companyID uuid.UUID, brandSlots, usedBrands int) {
	t.Helper()
	allocation := models.CompanySlots{
		ID:                 uuid.New(),
		CompanyID:          companyID,
		BrandsSlots:        brandSlots,
		UsersSlots:         10,
		CurrentBrandsCount: usedBrands,
	}
	if err := conn.Create(&allocation).Error; err != nil {
		t.Fatalf("seed allocation: %v", err)
	}
}

func seedUser(t *testing.T, conn *gorm.DB, companyID uuid.UUID, username string) *models.User {
	t.Helper()
	user := models.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
		FirstName:    "Test",
		LastName:     "User",
		CompanyID:    &companyID,
		UserType:     enums.UserTypeMember,
		IsActive:     true,
	}
	if err := conn.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return &user
}

func adminActor(companyID uuid.UUID) rbac.Actor {
	return rbac.Actor{
		UserID:    uuid.New(),
		CompanyID: &companyID,
		UserType:  enums.UserTypeCompanyAdmin,
	}
}

func TestCreateClaimsBrandSlot(t *testing.T) {
	conn := newBrandsTestDB(t)
	ctx := context.Background()
	companyID := uuid.New()
	seedAllocation(t, conn, companyID, 2, 0)

	svc := newBrandsService(t, conn)
	dto, err := svc.Create(ctx, adminActor(companyID), companyID, CreateBrandRequest{Name: "acme"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !dto.IsActive || dto.SoftDeleted {
		t.Fatalf("unexpected brand state: %+v", dto)
	}

	var allocation models.CompanySlots
	if err := conn.First(&allocation, "company_id = ?", companyID).Error; err != nil {
		t.Fatalf("load allocation: %v", err)
	}
	if allocation.CurrentBrandsCount != 1 {
		t.Fatalf("expected current_brands_count 1, got %d", allocation.CurrentBrandsCount)
	}
}

func TestCreateQuotaExceededThenIncrease(t *testing.T) {
	conn := newBrandsTestDB(t)
	ctx := context.Background()
	companyID := uuid.New()
	seedAllocation(t, conn, companyID, 2, 2)

	svc := newBrandsService(t, conn)
	_, err := svc.Create(ctx, adminActor(companyID), companyID, CreateBrandRequest{Name: "third"})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeQuotaExceeded {
		t.Fatalf("expected quota exceeded, got %v", err)
	}

	if err := conn.Model(&models.CompanySlots{}).
		Where("company_id = ?", companyID).
		UpdateColumn("brands_slots", 3).Error; err != nil {
		t.Fatalf("raise slots: %v", err)
	}

	if _, err := svc.Create(ctx, adminActor(companyID), companyID, CreateBrandRequest{Name: "third"}); err != nil {
		t.Fatalf("create after increase: %v", err)
	}

	var allocation models.CompanySlots
	if err := conn.First(&allocation, "company_id = ?", companyID).Error; err != nil {
		t.Fatalf("load allocation: %v", err)
	}
	if allocation.CurrentBrandsCount != 3 {
		t.Fatalf("expected current_brands_count 3, got %d", allocation.CurrentBrandsCount)
	}
}

func TestDeleteReleasesSlotAndRestoreReclaims(t *testing.T) {
	conn := newBrandsTestDB(t)
	ctx := context.Background()
	companyID := uuid.New()
	seedAllocation(t, conn, companyID, 2, 0)

	svc := newBrandsService(t, conn)
	dto, err := svc.Create(ctx, adminActor(companyID), companyID, CreateBrandRequest{Name: "acme"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.Delete(ctx, adminActor(companyID), dto.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	var allocation models.CompanySlots
	if err := conn.First(&allocation, "company_id = ?", companyID).Error; err != nil {
		t.Fatalf("load allocation: %v", err)
	}
	if allocation.CurrentBrandsCount != 0 {
		t.Fatalf("expected slot released, got %d", allocation.CurrentBrandsCount)
	}

	restored, err := svc.Restore(ctx, adminActor(companyID), dto.ID)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.SoftDeleted || !restored.IsActive {
		t.Fatalf("unexpected restored state: %+v", restored)
	}
	if err := conn.First(&allocation, "company_id = ?", companyID).Error; err != nil {
		t.Fatalf("load allocation: %v", err)
	}
	if allocation.CurrentBrandsCount != 1 {
		t.Fatalf("expected slot reclaimed, got %d", allocation.CurrentBrandsCount)
	}
}

func TestRestoreFailsWhenSlotsFull(t *testing.T) {
	conn := newBrandsTestDB(t)
	ctx := context.Background()
	companyID := uuid.New()
	seedAllocation(t, conn, companyID, 1, 0)

	svc := newBrandsService(t, conn)
	dto, err := svc.Create(ctx, adminActor(companyID), companyID, CreateBrandRequest{Name: "first"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Delete(ctx, adminActor(companyID), dto.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Create(ctx, adminActor(companyID), companyID, CreateBrandRequest{Name: "second"}); err != nil {
		t.Fatalf("create second: %v", err)
	}

	_, err = svc.Restore(ctx, adminActor(companyID), dto.ID)
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeQuotaExceeded {
		t.Fatalf("expected quota exceeded on restore, got %v", err)
	}
}

func TestAssignUsersRejectsOtherCompany(t *testing.T) {
	conn := newBrandsTestDB(t)
	ctx := context.Background()
	companyID := uuid.New()
	seedAllocation(t, conn, companyID, 2, 0)

	svc := newBrandsService(t, conn)
	dto, err := svc.Create(ctx, adminActor(companyID), companyID, CreateBrandRequest{Name: "acme"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	insider := seedUser(t, conn, companyID, "insider")
	outsider := seedUser(t, conn, uuid.New(), "outsider")

	if err := svc.AssignUsers(ctx, adminActor(companyID), dto.ID, []uuid.UUID{insider.ID}); err != nil {
		t.Fatalf("assign insider: %v", err)
	}
	err = svc.AssignUsers(ctx, adminActor(companyID), dto.ID, []uuid.UUID{outsider.ID})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	members, err := svc.AccessibleUsers(ctx, adminActor(companyID), dto.ID)
	if err != nil {
		t.Fatalf("accessible users: %v", err)
	}
	if len(members) != 1 || members[0].ID != insider.ID {
		t.Fatalf("expected only the insider, got %+v", members)
	}
}

func TestListMemberSeesOnlyAccessibleBrands(t *testing.T) {
	conn := newBrandsTestDB(t)
	ctx := context.Background()
	companyID := uuid.New()
	seedAllocation(t, conn, companyID, 5, 0)

	svc := newBrandsService(t, conn)
	admin := adminActor(companyID)
	b1, err := svc.Create(ctx, admin, companyID, CreateBrandRequest{Name: "one"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(ctx, admin, companyID, CreateBrandRequest{Name: "two"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	member := seedUser(t, conn, companyID, "member")
	if err := svc.AssignUsers(ctx, admin, b1.ID, []uuid.UUID{member.ID}); err != nil {
		t.Fatalf("assign: %v", err)
	}

	actor := rbac.Actor{UserID: member.ID, CompanyID: &companyID, UserType: enums.UserTypeMember}
	page, err := svc.List(ctx, actor, companyID, pagination.Params{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 1 || len(page.Items) != 1 || page.Items[0].ID != b1.ID {
		t.Fatalf("expected only the accessible brand, got %+v", page)
	}
}

func TestSetAdminEnforcesSameCompany(t *testing.T) {
	conn := newBrandsTestDB(t)
	ctx := context.Background()
	companyID := uuid.New()
	seedAllocation(t, conn, companyID, 2, 0)

	svc := newBrandsService(t, conn)
	dto, err := svc.Create(ctx, adminActor(companyID), companyID, CreateBrandRequest{Name: "acme"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	outsider := seedUser(t, conn, uuid.New(), "outsider2")
	_, err = svc.SetAdmin(ctx, adminActor(companyID), dto.ID, outsider.ID)
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	insider := seedUser(t, conn, companyID, "insider2")
	updated, err := svc.SetAdmin(ctx, adminActor(companyID), dto.ID, insider.ID)
	if err != nil {
		t.Fatalf("set admin: %v", err)
	}
	if updated.BrandAdminID == nil || *updated.BrandAdminID != insider.ID {
		t.Fatal("expected brand admin set")
	}
}
