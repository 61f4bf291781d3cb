package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/megahubhq/megahub-backend/api/responses"
	"github.com/megahubhq/megahub-backend/api/validators"
	"github.com/megahubhq/megahub-backend/internal/features"
	"github.com/megahubhq/megahub-backend/internal/rbac"
	pkgerrors "github.com/megahubhq/megahub-backend/pkg/errors"
	"github.com/megahubhq/megahub-backend/pkg/logger"
)

func requireCompanyMember(actor rbac.Actor, companyID uuid.UUID) error {
	if actor.IsSuperuser || actor.SameCompany(companyID) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "company access denied")
}

// FeatureList returns the feature grants for a company.
func FeatureList(svc features.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		companyID, err := uuidParam(r, "companyId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := requireCompanyMember(actor, companyID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		grants, err := svc.ListForCompany(r.Context(), companyID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, grants)
	}
}

// FeatureCheck answers whether a feature code is active for the company.
func FeatureCheck(svc features.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		companyID, err := uuidParam(r, "companyId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := requireCompanyMember(actor, companyID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		code := strings.TrimSpace(chi.URLParam(r, "code"))
		if code == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "feature code is required"))
			return
		}

		active, err := svc.IsFeatureActive(r.Context(), companyID, code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{"code": code, "active": active})
	}
}

type consumeFeatureRequest struct {
	Amount int `json:"amount" validate:"omitempty,min=1"`
}

// FeatureConsume atomically spends usage against a metered feature.
func FeatureConsume(svc features.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		companyID, err := uuidParam(r, "companyId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := requireCompanyMember(actor, companyID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		code := strings.TrimSpace(chi.URLParam(r, "code"))
		if code == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "feature code is required"))
			return
		}

		var payload consumeFeatureRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount := payload.Amount
		if amount == 0 {
			amount = 1
		}

		consumed, err := svc.ConsumeFeature(r.Context(), companyID, code, amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{"code": code, "consumed": consumed})
	}
}

type grantFeatureRequest struct {
	Code       string     `json:"code" validate:"required"`
	IsEnabled  *bool      `json:"is_enabled,omitempty"`
	LimitValue *int       `json:"limit_value,omitempty" validate:"omitempty,min=0"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// FeatureGrant creates or updates a company's feature grant. Superuser only.
func FeatureGrant(svc features.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !actor.IsSuperuser {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "superuser required"))
			return
		}

		companyID, err := uuidParam(r, "companyId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload grantFeatureRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		grant, err := svc.Grant(r.Context(), companyID, features.GrantInput{
			Code:       payload.Code,
			IsEnabled:  payload.IsEnabled,
			LimitValue: payload.LimitValue,
			ExpiresAt:  payload.ExpiresAt,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, grant)
	}
}
