package controllers

import (
	"net/http"

	"github.com/megahubhq/megahub-backend/api/responses"
	"github.com/megahubhq/megahub-backend/api/validators"
	"github.com/megahubhq/megahub-backend/internal/auth"
	pkgerrors "github.com/megahubhq/megahub-backend/pkg/errors"
	"github.com/megahubhq/megahub-backend/pkg/logger"
)

// Login exchanges email and password for an access token.
func Login(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		var payload auth.LoginRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Login(r.Context(), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}
