package handlers

import (
	"fmt"
	"io"
	"net/http"

	"server/internal/payments"
)

// webhookBodyLimit bounds Stripe event payloads.
const webhookBodyLimit = 1 << 20

// StripeWebhook verifies and applies Stripe events. Completed checkouts
// grant the purchased credits; everything else is acknowledged and ignored.
// Non-2xx responses make Stripe retry, so only grant failures return 500.
func (a *App) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, webhookBodyLimit))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "unreadable payload")
		return
	}

	event, err := a.Payments.VerifyWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		a.Logger.Warn().Err(err).Msg("webhook: signature verification failed")
		a.error(w, http.StatusBadRequest, "invalid_signature", "webhook verification failed")
		return
	}

	purchase, ok, err := payments.ExtractCompletedPurchase(event)
	if err != nil {
		a.Logger.Warn().Err(err).Str("event_id", event.ID).Msg("webhook: malformed event")
		a.error(w, http.StatusBadRequest, "bad_request", "malformed event")
		return
	}
	if !ok {
		a.json(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	description := fmt.Sprintf("purchase %s (session %s)", purchase.PackageID, purchase.SessionID)
	if err := a.Users.GrantCredits(r.Context(), purchase.UserID, purchase.Credits, description); err != nil {
		a.Logger.Error().Err(err).
			Str("user_id", purchase.UserID).
			Str("session_id", purchase.SessionID).
			Msg("webhook: credit grant failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to grant credits")
		return
	}

	a.Logger.Info().
		Str("user_id", purchase.UserID).
		Str("package_id", purchase.PackageID).
		Int("credits", purchase.Credits).
		Msg("webhook: credits granted")
	a.json(w, http.StatusOK, map[string]bool{"received": true})
}
