package credentials

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/megahubhq/megahub-backend/internal/scope"
	"github.com/megahubhq/megahub-backend/pkg/config"
	"github.com/megahubhq/megahub-backend/pkg/db"
	"github.com/megahubhq/megahub-backend/pkg/db/models"
	pkgerrors "github.com/megahubhq/megahub-backend/pkg/errors"
	"github.com/megahubhq/megahub-backend/pkg/pagination"
	"github.com/megahubhq/megahub-backend/pkg/security"
)

func newCredentialsTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:credentials_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&models.Brand{}, &models.AICredential{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func newCredentialsService(t *testing.T, conn *gorm.DB) Service {
	t.Helper()
	reg := scope.NewRegistry()
	if err := RegisterResources(reg); err != nil {
		t.Fatalf("register resources: %v", err)
	}
	sealer, err := security.NewSealer(config.CredentialsConfig{EncryptionKey: "test-key"})
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}
	svc, err := NewService(ServiceParams{DB: db.NewWithConn(conn), Registry: reg, Sealer: sealer})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func seedCredentialBrand(t *testing.T, conn *gorm.DB, name string) *models.Brand {
	t.Helper()
	brand := models.Brand{ID: uuid.New(), CompanyID: uuid.New(), Name: name, IsActive: true}
	if err := conn.Create(&brand).Error; err != nil {
		t.Fatalf("seed brand: %v", err)
	}
	return &brand
}

func TestCreateCredentialSealsKey(t *testing.T) {
	conn := newCredentialsTestDB(t)
	ctx := context.Background()
	brand := seedCredentialBrand(t, conn, "acme")

	svc := newCredentialsService(t, conn)
	access := scope.Access{BrandIDs: []uuid.UUID{brand.ID}}

	cred, err := svc.Create(ctx, access, &brand.ID, CreateCredentialRequest{
		Provider: "OpenAI",
		Key:      "sk-test-1234abcd",
	})
	if err != nil {
		t.Fatalf("create credential: %v", err)
	}
	if cred.Provider != "openai" {
		t.Fatalf("expected lowered provider, got %s", cred.Provider)
	}
	if cred.KeyHint != "abcd" {
		t.Fatalf("expected trailing hint, got %q", cred.KeyHint)
	}

	var row models.AICredential
	if err := conn.First(&row, "id = ?", cred.ID).Error; err != nil {
		t.Fatalf("load row: %v", err)
	}
	if string(row.EncryptedKey) == "sk-test-1234abcd" {
		t.Fatalf("key stored in plaintext")
	}
}

func TestCreateCredentialDuplicateProviderConflicts(t *testing.T) {
	conn := newCredentialsTestDB(t)
	ctx := context.Background()
	brand := seedCredentialBrand(t, conn, "acme")

	svc := newCredentialsService(t, conn)
	access := scope.Access{BrandIDs: []uuid.UUID{brand.ID}}

	if _, err := svc.Create(ctx, access, &brand.ID, CreateCredentialRequest{Provider: "openai", Key: "sk-one"}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := svc.Create(ctx, access, &brand.ID, CreateCredentialRequest{Provider: "openai", Key: "sk-two"})
	if err == nil {
		t.Fatalf("expected conflict")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict code, got %v", err)
	}
}

func TestCreateCredentialCrossBrand(t *testing.T) {
	conn := newCredentialsTestDB(t)
	ctx := context.Background()
	mine := seedCredentialBrand(t, conn, "mine")
	other := seedCredentialBrand(t, conn, "other")

	svc := newCredentialsService(t, conn)
	access := scope.Access{BrandIDs: []uuid.UUID{mine.ID}}

	_, err := svc.Create(ctx, access, &mine.ID, CreateCredentialRequest{
		Provider: "openai",
		Key:      "sk-test",
		BrandID:  &other.ID,
	})
	if err == nil {
		t.Fatalf("expected cross-brand error")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeCrossBrand {
		t.Fatalf("expected cross-brand code, got %v", err)
	}
}

func TestRevealRoundTripsAndRecordsUse(t *testing.T) {
	conn := newCredentialsTestDB(t)
	ctx := context.Background()
	brand := seedCredentialBrand(t, conn, "acme")

	svc := newCredentialsService(t, conn)
	access := scope.Access{BrandIDs: []uuid.UUID{brand.ID}}

	cred, err := svc.Create(ctx, access, &brand.ID, CreateCredentialRequest{Provider: "openai", Key: "sk-secret"})
	if err != nil {
		t.Fatalf("create credential: %v", err)
	}

	plaintext, err := svc.Reveal(ctx, access, cred.ID)
	if err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if plaintext != "sk-secret" {
		t.Fatalf("reveal mismatch: %q", plaintext)
	}

	var row models.AICredential
	if err := conn.First(&row, "id = ?", cred.ID).Error; err != nil {
		t.Fatalf("load row: %v", err)
	}
	if row.LastUsedAt == nil {
		t.Fatalf("expected last_used_at recorded")
	}
}

func TestRotateReplacesKey(t *testing.T) {
	conn := newCredentialsTestDB(t)
	ctx := context.Background()
	brand := seedCredentialBrand(t, conn, "acme")

	svc := newCredentialsService(t, conn)
	access := scope.Access{BrandIDs: []uuid.UUID{brand.ID}}

	cred, err := svc.Create(ctx, access, &brand.ID, CreateCredentialRequest{Provider: "openai", Key: "sk-old-key1"})
	if err != nil {
		t.Fatalf("create credential: %v", err)
	}
	rotated, err := svc.Rotate(ctx, access, cred.ID, RotateCredentialRequest{Key: "sk-new-key2"})
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if rotated.KeyHint != "key2" {
		t.Fatalf("expected new hint, got %q", rotated.KeyHint)
	}
	plaintext, err := svc.Reveal(ctx, access, cred.ID)
	if err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if plaintext != "sk-new-key2" {
		t.Fatalf("expected rotated key, got %q", plaintext)
	}
}

func TestGetCredentialOutsideAccessReadsNotFound(t *testing.T) {
	conn := newCredentialsTestDB(t)
	ctx := context.Background()
	mine := seedCredentialBrand(t, conn, "mine")
	other := seedCredentialBrand(t, conn, "other")

	svc := newCredentialsService(t, conn)

	ownerAccess := scope.Access{BrandIDs: []uuid.UUID{other.ID}}
	cred, err := svc.Create(ctx, ownerAccess, &other.ID, CreateCredentialRequest{Provider: "openai", Key: "sk-test"})
	if err != nil {
		t.Fatalf("create credential: %v", err)
	}

	access := scope.Access{BrandIDs: []uuid.UUID{mine.ID}}
	if _, err := svc.Get(ctx, access, cred.ID); err == nil {
		t.Fatalf("expected not found")
	} else if pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not-found code, got %v", err)
	}

	page, err := svc.List(ctx, access, pagination.Params{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 0 || len(page.Items) != 0 {
		t.Fatalf("expected empty page, got %d", page.Total)
	}
}
