package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"server/internal/domain"
	"server/internal/listing"
)

type feedbackRequest struct {
	JobID            string `json:"job_id"`
	Feedback         string `json:"feedback"`
	CorrectedNicheID *int   `json:"corrected_niche_id"`
}

// FeedbackSubmit records a correction against a finished job. When the user
// names the right niche, the job's detected labels are learned as keywords
// for it so the classifier improves over time.
func (a *App) FeedbackSubmit(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.JobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}

	job, err := a.Jobs.GetByID(r.Context(), req.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", req.JobID).Msg("feedback: load job failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}
	if job.UserID != userID {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}

	learned := false
	if req.CorrectedNicheID != nil && len(job.ListingJSON) > 0 {
		var record listing.Record
		if err := json.Unmarshal(job.ListingJSON, &record); err == nil && record.Listing != nil {
			if err := a.Classifier.Learn(r.Context(), *req.CorrectedNicheID, record.Listing.Analysis.Labels); err != nil {
				a.Logger.Warn().Err(err).
					Str("job_id", job.ID).
					Int("niche_id", *req.CorrectedNicheID).
					Msg("feedback: keyword learning failed")
			} else {
				learned = true
			}
		}
	}

	a.Logger.Info().
		Str("job_id", job.ID).
		Str("user_id", userID).
		Bool("learned", learned).
		Msg("feedback: received")
	a.json(w, http.StatusOK, map[string]any{"status": "ok", "learned": learned})
}
