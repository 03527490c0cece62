package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
)

type listingJobResponse struct {
	ID          string          `json:"id"`
	Status      string          `json:"status"`
	CountryCode string          `json:"country_code,omitempty"`
	Error       string          `json:"error,omitempty"`
	Bundle      json.RawMessage `json:"bundle,omitempty"`
	Listing     json.RawMessage `json:"listing,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ListingGet returns one job with its asset bundle and listing record once
// the worker has finished it.
func (a *App) ListingGet(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobID := chi.URLParam(r, "id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "id required")
		return
	}

	job, err := a.Jobs.GetByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "listing not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("listing: load failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load listing")
		return
	}
	// Jobs are private to their owner.
	if job.UserID != userID {
		a.error(w, http.StatusNotFound, "not_found", "listing not found")
		return
	}

	a.json(w, http.StatusOK, listingJobResponse{
		ID:          job.ID,
		Status:      string(job.Status),
		CountryCode: job.CountryCode,
		Error:       job.ErrorMessage,
		Bundle:      json.RawMessage(job.BundleJSON),
		Listing:     json.RawMessage(job.ListingJSON),
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
	})
}
