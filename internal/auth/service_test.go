package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/megahubhq/megahub-backend/internal/users"
	pkgAuth "github.com/megahubhq/megahub-backend/pkg/auth"
	"github.com/megahubhq/megahub-backend/pkg/config"
	"github.com/megahubhq/megahub-backend/pkg/db/models"
	"github.com/megahubhq/megahub-backend/pkg/enums"
	pkgerrors "github.com/megahubhq/megahub-backend/pkg/errors"
	"github.com/megahubhq/megahub-backend/pkg/security"
)

func newAuthTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:auth_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&models.User{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func authJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "test-secret", Issuer: "megahub-test", ExpirationMinutes: 15}
}

func seedUser(t *testing.T, conn *gorm.DB, email, password string, active bool) *models.User {
	t.Helper()
	hash, err := security.HashPassword(password, config.PasswordConfig{})
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	companyID := uuid.New()
	user := models.User{
		ID: uuid.New(), Username: email, Email: email, PasswordHash: hash,
		FirstName: "Ada", LastName: "Lovelace",
		CompanyID: &companyID, UserType: enums.UserTypeCompanyAdmin, IsActive: active,
	}
	if err := conn.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return &user
}

func newAuthService(t *testing.T, conn *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		UserRepo:  users.NewRepository(conn),
		JWTConfig: authJWTConfig(),
	})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return svc
}

func TestLoginIssuesToken(t *testing.T) {
	conn := newAuthTestDB(t)
	svc := newAuthService(t, conn)
	user := seedUser(t, conn, "ada@example.com", "correct horse", true)

	resp, err := svc.Login(context.Background(), LoginRequest{Email: "Ada@Example.com ", Password: "correct horse"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.TokenType != "Bearer" || resp.ExpiresIn != 15*60 {
		t.Fatalf("unexpected token envelope %+v", resp)
	}

	claims, err := pkgAuth.ParseAccessToken(authJWTConfig(), resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.UserID != user.ID || claims.UserType != enums.UserTypeCompanyAdmin {
		t.Fatalf("unexpected claims %+v", claims)
	}

	var reloaded models.User
	if err := conn.First(&reloaded, "id = ?", user.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.LastLoginAt == nil || time.Since(*reloaded.LastLoginAt) > time.Minute {
		t.Fatalf("expected last_login_at to move, got %v", reloaded.LastLoginAt)
	}
}

func TestLoginRejectsBadPasswordAndInactive(t *testing.T) {
	conn := newAuthTestDB(t)
	svc := newAuthService(t, conn)
	seedUser(t, conn, "ada@example.com", "correct horse", true)
	seedUser(t, conn, "off@example.com", "correct horse", false)

	cases := []LoginRequest{
		{Email: "ada@example.com", Password: "wrong"},
		{Email: "missing@example.com", Password: "correct horse"},
		{Email: "off@example.com", Password: "correct horse"},
	}
	for _, req := range cases {
		_, err := svc.Login(context.Background(), req)
		appErr := pkgerrors.As(err)
		if appErr == nil || appErr.Code() != pkgerrors.CodeUnauthorized {
			t.Fatalf("%s: expected unauthorized, got %v", req.Email, err)
		}
		if appErr.Message() != invalidCredentialsMessage {
			t.Fatalf("%s: login errors must not differentiate, got %q", req.Email, appErr.Message())
		}
	}
}
