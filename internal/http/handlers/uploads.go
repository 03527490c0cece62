package handlers

import (
	"errors"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"server/internal/domain"
)

// maxUploadBytes bounds product photo size; Trellis rejects larger inputs
// anyway.
const maxUploadBytes = 32 << 20

var allowedImageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

type uploadResponse struct {
	JobID       string `json:"job_id"`
	Status      string `json:"status"`
	ImageKey    string `json:"image_key"`
	CountryCode string `json:"country_code,omitempty"`
}

// UploadCreate accepts a product photo, charges one credit and queues a
// listing generation job for the worker. The credit is refunded by the worker
// if the pipeline errors; skipped and completed runs consume it.
func (a *App) UploadCreate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart payload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "file field required")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedImageExts[ext] {
		a.error(w, http.StatusBadRequest, "unsupported_media", "only jpg, png and webp images are accepted")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil || len(data) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "unreadable file")
		return
	}

	key, err := a.Store.Write(r.Context(), "uploads/"+uuid.NewString()+ext, data)
	if err != nil {
		a.Logger.Error().Err(err).Msg("upload: persist failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to store image")
		return
	}

	country := a.resolveCountry(r)

	if err := a.Users.DeductCredits(r.Context(), userID, domain.ListingCreditCost, "listing generation"); err != nil {
		if errors.Is(err, domain.ErrInsufficientCredits) {
			a.error(w, http.StatusPaymentRequired, "insufficient_credits", "not enough credits")
			return
		}
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("upload: credit deduction failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to charge credit")
		return
	}

	job := &domain.ListingJob{
		ID:          uuid.NewString(),
		UserID:      userID,
		Status:      domain.ListingJobStatusQueued,
		ImagePath:   key,
		CountryCode: country,
	}
	if err := a.Jobs.Create(r.Context(), job); err != nil {
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("upload: enqueue failed")
		if refundErr := a.Users.RefundCredits(r.Context(), userID, domain.ListingCreditCost, "enqueue failed"); refundErr != nil {
			a.Logger.Error().Err(refundErr).Str("user_id", userID).Msg("upload: refund failed")
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to queue job")
		return
	}

	a.json(w, http.StatusAccepted, uploadResponse{
		JobID:       job.ID,
		Status:      string(job.Status),
		ImageKey:    key,
		CountryCode: country,
	})
}

func (a *App) resolveCountry(r *http.Request) string {
	if a.Geo == nil {
		return ""
	}
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	code, err := a.Geo.CountryCode(ip)
	if err != nil {
		a.Logger.Debug().Err(err).Str("ip", ip).Msg("upload: country lookup failed")
		return ""
	}
	return code
}
