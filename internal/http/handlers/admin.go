package handlers

import (
	"encoding/json"
	"net/http"
)

// CacheClear drops every cached asset bundle. Subsequent uploads regenerate
// from scratch.
func (a *App) CacheClear(w http.ResponseWriter, r *http.Request) {
	removed, err := a.Cache.Clear()
	if err != nil {
		a.Logger.Error().Err(err).Msg("admin: cache clear failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to clear cache")
		return
	}
	a.json(w, http.StatusOK, map[string]int{"removed": removed})
}

type credentialRequest struct {
	Provider string `json:"provider"`
	Token    string `json:"token"`
}

// CredentialsSet stores or replaces a provider API token. The worker prefers
// stored tokens over environment fallbacks on its next run.
func (a *App) CredentialsSet(w http.ResponseWriter, r *http.Request) {
	var req credentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.Provider == "" || req.Token == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "provider and token are required")
		return
	}
	if err := a.Credentials.SetToken(r.Context(), req.Provider, req.Token); err != nil {
		a.Logger.Error().Err(err).Str("provider", req.Provider).Msg("admin: credential store failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to store credential")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}
