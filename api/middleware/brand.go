package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/megahubhq/megahub-backend/api/responses"
	"github.com/megahubhq/megahub-backend/internal/brands"
	"github.com/megahubhq/megahub-backend/internal/rbac"
	"github.com/megahubhq/megahub-backend/internal/scope"
	pkgerrors "github.com/megahubhq/megahub-backend/pkg/errors"
	"github.com/megahubhq/megahub-backend/pkg/logger"
)

// BrandHeader selects the brand a request operates on.
const BrandHeader = "X-Brand-Id"

type brandDirectory interface {
	Get(ctx context.Context, actor rbac.Actor, id uuid.UUID) (*brands.BrandDTO, error)
	AccessibleBrandIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

// BrandContext resolves the current brand for the request: the X-Brand-Id
// header when the caller can access that brand, otherwise the caller's
// single accessible brand, otherwise none. A header naming an inaccessible
// brand is rejected; an absent brand is not an error here, write paths
// that need one fail later with a validation error.
func BrandContext(directory brandDirectory, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			actor, ok := ActorFromContext(ctx)
			if !ok {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			var accessible []uuid.UUID
			if !actor.IsSuperuser && (actor.CompanyID == nil || !actor.IsCompanyAdminOf(*actor.CompanyID)) {
				ids, err := directory.AccessibleBrandIDs(ctx, actor.UserID)
				if err != nil {
					responses.WriteError(ctx, logg, w, err)
					return
				}
				accessible = ids
			}
			access := scope.NewAccess(actor, accessible)
			ctx = WithAccess(ctx, access)

			if header := strings.TrimSpace(r.Header.Get(BrandHeader)); header != "" {
				brandID, err := uuid.Parse(header)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid brand id header"))
					return
				}
				brand, err := directory.Get(ctx, actor, brandID)
				if err != nil {
					if pkgerrors.As(err).Code() == pkgerrors.CodeNotFound {
						err = pkgerrors.New(pkgerrors.CodeBrandAccess, "brand not in accessible set").
							WithDetails(map[string]any{"brand_id": brandID})
					}
					responses.WriteError(ctx, logg, w, err)
					return
				}
				if !access.CanUseBrand(brand.ID, brand.CompanyID) {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeBrandAccess, "brand not in accessible set").
						WithDetails(map[string]any{"brand_id": brandID}))
					return
				}
				ctx = WithBrand(ctx, brandID)
				ctx = logg.WithBrandID(ctx, brandID.String())
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			// no header: fall back to the single accessible brand
			if len(accessible) == 1 {
				ctx = WithBrand(ctx, accessible[0])
				ctx = logg.WithBrandID(ctx, accessible[0].String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
