package controllers

import (
	"net/http"

	"github.com/megahubhq/megahub-backend/api/middleware"
	"github.com/megahubhq/megahub-backend/api/responses"
	"github.com/megahubhq/megahub-backend/api/validators"
	"github.com/megahubhq/megahub-backend/internal/credentials"
	"github.com/megahubhq/megahub-backend/pkg/logger"
	"github.com/megahubhq/megahub-backend/pkg/pagination"
)

// Credential handlers never return the stored key. Reveal is the one
// exception and records the access on the credential row.

func CredentialList(svc credentials.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		access := middleware.AccessFromContext(r.Context())

		page, err := svc.List(r.Context(), access, pagination.FromRequest(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, page)
	}
}

func CredentialCreate(svc credentials.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		access := middleware.AccessFromContext(r.Context())
		currentBrand := middleware.CurrentBrand(r.Context())

		var payload credentials.CreateCredentialRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cred, err := svc.Create(r.Context(), access, currentBrand, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, cred)
	}
}

func CredentialGet(svc credentials.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		access := middleware.AccessFromContext(r.Context())

		id, err := uuidParam(r, "credentialId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cred, err := svc.Get(r.Context(), access, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, cred)
	}
}

func CredentialRotate(svc credentials.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		access := middleware.AccessFromContext(r.Context())

		id, err := uuidParam(r, "credentialId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload credentials.RotateCredentialRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cred, err := svc.Rotate(r.Context(), access, id, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, cred)
	}
}

func CredentialReveal(svc credentials.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		access := middleware.AccessFromContext(r.Context())

		id, err := uuidParam(r, "credentialId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		key, err := svc.Reveal(r.Context(), access, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"key": key})
	}
}

func CredentialDelete(svc credentials.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		access := middleware.AccessFromContext(r.Context())

		id, err := uuidParam(r, "credentialId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Delete(r.Context(), access, id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, nil)
	}
}
