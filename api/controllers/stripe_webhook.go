package controllers

import (
	"io"
	"net/http"

	"github.com/megahubhq/megahub-backend/api/responses"
	stripewebhooks "github.com/megahubhq/megahub-backend/internal/webhooks/stripe"
	pkgerrors "github.com/megahubhq/megahub-backend/pkg/errors"
	"github.com/megahubhq/megahub-backend/pkg/logger"
)

// StripeWebhook receives Stripe event deliveries. A bad signature is the
// only client error; processing failures are recorded and retried by the
// worker, so Stripe always sees an acknowledgement for a verified event.
func StripeWebhook(svc stripewebhooks.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		result, err := svc.Ingest(ctx, payload, r.Header.Get("Stripe-Signature"))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"event_id":   result.EventID,
				"event_type": result.EventType,
				"status":     result.Status,
				"replayed":   result.Replayed,
			})
			logg.Info(ctx, "stripe.webhook.ingested")
		}

		responses.WriteSuccess(w, result)
	}
}
