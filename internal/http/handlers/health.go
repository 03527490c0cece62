package handlers

import (
	"net/http"
)

// Health answers liveness probes. It deliberately touches no dependency:
// the API should report alive even while Postgres or the generation
// provider is down, since queued jobs survive both.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "listify-api",
	})
}
