package handlers

import (
	"encoding/json"
	"net/http"

	"server/internal/middleware"
	"server/internal/payments"
)

func (a *App) CreditPackages(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{"packages": payments.Packages()})
}

type checkoutRequest struct {
	PackageID string `json:"package_id"`
}

type checkoutResponse struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}

func (a *App) CreditsCheckout(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if _, ok := payments.PackageByID(req.PackageID); !ok {
		a.error(w, http.StatusBadRequest, "bad_request", "unknown package")
		return
	}
	if !a.Payments.Configured() {
		a.error(w, http.StatusServiceUnavailable, "unavailable", "payments are not configured")
		return
	}

	email := middleware.UserEmailFromContext(r.Context())
	if email == "" {
		if user, err := a.Users.GetByID(r.Context(), userID); err == nil {
			email = user.Email
		}
	}

	session, err := a.Payments.CreateCheckoutSession(r.Context(), req.PackageID, userID, email)
	if err != nil {
		a.Logger.Error().Err(err).
			Str("user_id", userID).
			Str("package_id", req.PackageID).
			Msg("credits: checkout session failed")
		a.error(w, http.StatusBadGateway, "upstream", "failed to create checkout session")
		return
	}
	a.json(w, http.StatusOK, checkoutResponse{SessionID: session.SessionID, CheckoutURL: session.URL})
}
