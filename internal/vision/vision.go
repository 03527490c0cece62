// Package vision wraps the label-detection service used to describe a
// product photo. Without a credential it falls back to fixed development
// labels so the rest of the listing pipeline stays exercisable locally.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Labels returned when no credential is configured.
var devLabels = []string{"yoga", "mat", "exercise", "purple", "fitness"}

// Options configures a Detector.
type Options struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Detector calls the annotation API for label detection.
type Detector struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

type annotateImage struct {
	Content string `json:"content"`
}

type annotateFeature struct {
	Type string `json:"type"`
}

type annotateItem struct {
	Image    annotateImage     `json:"image"`
	Features []annotateFeature `json:"features"`
}

type annotateRequest struct {
	Requests []annotateItem `json:"requests"`
}

type annotateResponse struct {
	Responses []struct {
		LabelAnnotations []struct {
			Description string  `json:"description"`
			Score       float64 `json:"score"`
		} `json:"labelAnnotations"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	} `json:"responses"`
}

// New builds a Detector from opts.
func New(opts Options) *Detector {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://vision.googleapis.com/v1"
	}
	return &Detector{
		apiKey:  strings.TrimSpace(opts.APIKey),
		baseURL: baseURL,
		client:  client,
		logger:  opts.Logger,
	}
}

// DetectLabels returns lowercase labels describing the image. When no API
// key is set it returns the development labels and logs a warning.
func (d *Detector) DetectLabels(ctx context.Context, imagePath string) ([]string, error) {
	if d.apiKey == "" {
		d.logger.Warn().Msg("vision: api key not set, returning development labels")
		return append([]string{}, devLabels...), nil
	}

	data, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("vision: read image: %w", err)
	}

	req := annotateRequest{Requests: []annotateItem{{
		Image:    annotateImage{Content: base64.StdEncoding.EncodeToString(data)},
		Features: []annotateFeature{{Type: "LABEL_DETECTION"}},
	}}}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("vision: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/images:annotate?key="+d.apiKey, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("vision: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("vision: annotate: %w", err)
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vision: annotate status %d", httpResp.StatusCode)
	}

	var resp annotateResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("vision: decode response: %w", err)
	}
	if len(resp.Responses) == 0 {
		return nil, fmt.Errorf("vision: empty response")
	}
	if e := resp.Responses[0].Error; e != nil {
		return nil, fmt.Errorf("vision: annotate error: %s", e.Message)
	}

	labels := make([]string, 0, len(resp.Responses[0].LabelAnnotations))
	for _, ann := range resp.Responses[0].LabelAnnotations {
		labels = append(labels, strings.ToLower(ann.Description))
	}
	return labels, nil
}
