package users

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/megahubhq/megahub-backend/internal/rbac"
	"github.com/megahubhq/megahub-backend/internal/slots"
	"github.com/megahubhq/megahub-backend/pkg/config"
	"github.com/megahubhq/megahub-backend/pkg/db"
	"github.com/megahubhq/megahub-backend/pkg/db/models"
	"github.com/megahubhq/megahub-backend/pkg/enums"
	pkgerrors "github.com/megahubhq/megahub-backend/pkg/errors"
)

func newUsersTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:users_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = conn.AutoMigrate(
		&models.User{},
		&models.Brand{},
		&models.BrandUser{},
		&models.CompanySlots{},
		&models.UsageAlert{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func newUsersService(t *testing.T, conn *gorm.DB) Service {
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

func seedAllocation(t *testing.T, conn *gorm.DB, companyID uuid.UUID, userSlots, usedUsers int) {
	t.Helper()
	allocation := models.CompanySlots{
		ID:                uuid.New(),
		CompanyID:         companyID,
		BrandsSlots:       5,
		UsersSlots:        userSlots,
		CurrentUsersCount: usedUsers,
	}
	if err := conn.Create(&allocation).Error; err != nil {
		t.Fatalf("seed allocation: %v", err)
	}
}

func seedBrand(t *testing.T, conn *gorm.DB, companyID uuid.UUID, name string) *models.Brand {
	t.Helper()
	brand := models.Brand{ID: uuid.New(), CompanyID: companyID, Name: name, IsActive: true}
	if err := conn.Create(&brand).Error; err != nil {
		t.Fatalf("seed brand: %v", err)
	}
	return &brand
}

func adminActor(companyID uuid.UUID) rbac.Actor {
	return rbac.Actor{
		UserID:    uuid.New(),
		CompanyID: &companyID,
		UserType:  enums.UserTypeCompanyAdmin,
	}
}

func createRequest(name string) CreateUserRequest {
	return CreateUserRequest{
		Username:  name,
		Email:     name + "@example.com",
		Password:  "s3cret-pass",
		FirstName: "Test",
		LastName:  "User",
	}
}

func TestCreateClaimsUserSlot(t *testing.T) {
	conn := newUsersTestDB(t)
	ctx := context.Background()
	companyID := uuid.New()
	seedAllocation(t, conn, companyID, 10, 0)
	brand := seedBrand(t, conn, companyID, "acme")

	svc := newUsersService(t, conn)
	req := createRequest("alice")
	req.BrandIDs = []uuid.UUID{brand.ID}

	dto, err := svc.Create(ctx, adminActor(companyID), companyID, req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if dto.UserType != enums.UserTypeMember {
		t.Fatalf("expected member default, got %s", dto.UserType)
	}
	if len(dto.BrandIDs) != 1 || dto.BrandIDs[0] != brand.ID {
		t.Fatalf("expected brand assignment, got %v", dto.BrandIDs)
	}

	var allocation models.CompanySlots
	if err := conn.First(&allocation, "company_id = ?", companyID).Error; err != nil {
		t.Fatalf("load allocation: %v", err)
	}
	if allocation.CurrentUsersCount != 1 {
		t.Fatalf("expected current_users_count 1, got %d", allocation.CurrentUsersCount)
	}
}

func TestCreateQuotaExceeded(t *testing.T) {
	conn := newUsersTestDB(t)
	ctx := context.Background()
	companyID := uuid.New()
	seedAllocation(t, conn, companyID, 1, 1)

	svc := newUsersService(t, conn)
	_, err := svc.Create(ctx, adminActor(companyID), companyID, createRequest("bob"))
	if err == nil {
		t.Fatal("expected quota error")
	}
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeQuotaExceeded {
		t.Fatalf("expected quota exceeded, got %v", err)
	}

	var count int64
	if err := conn.Model(&models.User{}).Count(&count).Error; err != nil {
		t.Fatalf("count users: %v", err)
	}
	if count != 0 {
		t.Fatalf("quota failure must roll back the user, found %d rows", count)
	}
}

func TestCreateRejectsForeignBrand(t *testing.T) {
	conn := newUsersTestDB(t)
	ctx := context.Background()
	companyID := uuid.New()
	seedAllocation(t, conn, companyID, 10, 0)
	other := seedBrand(t, conn, uuid.New(), "other")

	svc := newUsersService(t, conn)
	req := createRequest("carol")
	req.BrandIDs = []uuid.UUID{other.ID}

	_, err := svc.Create(ctx, adminActor(companyID), companyID, req)
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDeactivateReleasesSlotOnce(t *testing.T) {
	conn := newUsersTestDB(t)
	ctx := context.Background()
	companyID := uuid.New()
	seedAllocation(t, conn, companyID, 10, 0)

	svc := newUsersService(t, conn)
	dto, err := svc.Create(ctx, adminActor(companyID), companyID, createRequest("dave"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.Deactivate(ctx, adminActor(companyID), dto.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	// Second deactivate is a no-op, not a second release.
	if err := svc.Deactivate(ctx, adminActor(companyID), dto.ID); err != nil {
		t.Fatalf("second deactivate: %v", err)
	}

	var allocation models.CompanySlots
	if err := conn.First(&allocation, "company_id = ?", companyID).Error; err != nil {
		t.Fatalf("load allocation: %v", err)
	}
	if allocation.CurrentUsersCount != 0 {
		t.Fatalf("expected current_users_count 0, got %d", allocation.CurrentUsersCount)
	}
}

func TestToggleActiveReclaimsSlot(t *testing.T) {
	conn := newUsersTestDB(t)
	ctx := context.Background()
	companyID := uuid.New()
	seedAllocation(t, conn, companyID, 10, 0)

	svc := newUsersService(t, conn)
	dto, err := svc.Create(ctx, adminActor(companyID), companyID, createRequest("erin"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	off, err := svc.ToggleActive(ctx, adminActor(companyID), dto.ID)
	if err != nil {
		t.Fatalf("toggle off: %v", err)
	}
	if off.IsActive {
		t.Fatal("expected user inactive")
	}
	on, err := svc.ToggleActive(ctx, adminActor(companyID), dto.ID)
	if err != nil {
		t.Fatalf("toggle on: %v", err)
	}
	if !on.IsActive {
		t.Fatal("expected user active")
	}

	var allocation models.CompanySlots
	if err := conn.First(&allocation, "company_id = ?", companyID).Error; err != nil {
		t.Fatalf("load allocation: %v", err)
	}
	if allocation.CurrentUsersCount != 1 {
		t.Fatalf("expected current_users_count 1, got %d", allocation.CurrentUsersCount)
	}
}

func TestGetHidesOtherCompanies(t *testing.T) {
	conn := newUsersTestDB(t)
	ctx := context.Background()
	companyID := uuid.New()
	seedAllocation(t, conn, companyID, 10, 0)

	svc := newUsersService(t, conn)
	dto, err := svc.Create(ctx, adminActor(companyID), companyID, createRequest("frank"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	stranger := adminActor(uuid.New())
	_, err = svc.Get(ctx, stranger, dto.ID)
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found across companies, got %v", err)
	}
}

func TestPromoteToBrandAdmin(t *testing.T) {
	conn := newUsersTestDB(t)
	ctx := context.Background()
	companyID := uuid.New()
	seedAllocation(t, conn, companyID, 10, 0)
	brand := seedBrand(t, conn, companyID, "acme")

	svc := newUsersService(t, conn)
	dto, err := svc.Create(ctx, adminActor(companyID), companyID, createRequest("grace"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	promoted, err := svc.PromoteToBrandAdmin(ctx, adminActor(companyID), dto.ID, brand.ID)
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if promoted.UserType != enums.UserTypeBrandAdmin {
		t.Fatalf("expected brand_admin, got %s", promoted.UserType)
	}

	var updated models.Brand
	if err := conn.First(&updated, "id = ?", brand.ID).Error; err != nil {
		t.Fatalf("load brand: %v", err)
	}
	if updated.BrandAdminID == nil || *updated.BrandAdminID != dto.ID {
		t.Fatal("expected brand_admin_id set")
	}

	var memberships int64
	if err := conn.Model(&models.BrandUser{}).
		Where("brand_id = ? AND user_id = ?", brand.ID, dto.ID).
		Count(&memberships).Error; err != nil {
		t.Fatalf("count memberships: %v", err)
	}
	if memberships != 1 {
		t.Fatalf("expected one membership row, got %d", memberships)
	}
}

func TestChangePasswordSelfRequiresCurrent(t *testing.T) {
	conn := newUsersTestDB(t)
	ctx := context.Background()
	companyID := uuid.New()
	seedAllocation(t, conn, companyID, 10, 0)

	svc := newUsersService(t, conn)
	dto, err := svc.Create(ctx, adminActor(companyID), companyID, createRequest("heidi"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	self := rbac.Actor{UserID: dto.ID, CompanyID: &companyID, UserType: enums.UserTypeMember}
	err = svc.ChangePassword(ctx, self, dto.ID, ChangePasswordRequest{
		CurrentPassword: "wrong",
		NewPassword:     "another-pass",
	})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	err = svc.ChangePassword(ctx, self, dto.ID, ChangePasswordRequest{
		CurrentPassword: "s3cret-pass",
		NewPassword:     "another-pass",
	})
	if err != nil {
		t.Fatalf("change password: %v", err)
	}
}
