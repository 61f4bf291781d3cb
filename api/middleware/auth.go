package middleware

import (
	"net/http"
	"strings"

	"github.com/megahubhq/megahub-backend/api/responses"
	"github.com/megahubhq/megahub-backend/internal/rbac"
	pkgAuth "github.com/megahubhq/megahub-backend/pkg/auth"
	"github.com/megahubhq/megahub-backend/pkg/config"
	pkgerrors "github.com/megahubhq/megahub-backend/pkg/errors"
	"github.com/megahubhq/megahub-backend/pkg/logger"
)

// Auth validates a bearer token and seeds the request context with the
// calling actor.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			actor := rbac.Actor{
				UserID:      claims.UserID,
				CompanyID:   claims.CompanyID,
				UserType:    claims.UserType,
				IsSuperuser: claims.IsSuperuser,
			}
			ctx := WithActor(r.Context(), actor)
			ctx = logg.WithField(ctx, "user_id", actor.UserID.String())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
