package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/megahubhq/megahub-backend/api/middleware"
	"github.com/megahubhq/megahub-backend/internal/rbac"
	pkgerrors "github.com/megahubhq/megahub-backend/pkg/errors"
)

func requireActor(r *http.Request) (rbac.Actor, error) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		return rbac.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	return actor, nil
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, name+" is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+name)
	}
	return id, nil
}

// companyFilter reads the optional company_id query parameter used by
// superuser list endpoints.
func companyFilter(r *http.Request) (*uuid.UUID, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("company_id"))
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid company_id")
	}
	return &id, nil
}
