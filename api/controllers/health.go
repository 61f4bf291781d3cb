package controllers

import (
	"context"
	"net/http"

	"github.com/megahubhq/megahub-backend/api/responses"
	"github.com/megahubhq/megahub-backend/pkg/config"
	pkgerrors "github.com/megahubhq/megahub-backend/pkg/errors"
	"github.com/megahubhq/megahub-backend/pkg/logger"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-MegaHub-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports readiness only when both the database and the
// cache answer a ping.
func HealthReady(cfg *config.Config, database, cache pinger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		w.Header().Set("X-MegaHub-Env", cfg.App.Env)

		checks := map[string]string{"database": "ok", "cache": "ok"}
		if database != nil {
			if err := database.Ping(ctx); err != nil {
				checks["database"] = "down"
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "database ping").
					WithDetails(checks))
				return
			}
		}
		if cache != nil {
			if err := cache.Ping(ctx); err != nil {
				checks["cache"] = "down"
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "cache ping").
					WithDetails(checks))
				return
			}
		}

		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
