// Package trellis talks to the hosted Trellis image-to-3D model. One submit
// call sends a base64 product photo with fixed generation-quality parameters
// and returns the generated model URL plus any preview renders.
package trellis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
)

// tokenPlaceholder is what the sample .env ships with; treat it as absent.
const tokenPlaceholder = "your_replicate_api_token_here"

// Options controls how the Trellis client is configured.
type Options struct {
	APIToken   string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client submits generation requests to the Replicate-hosted Trellis model.
type Client struct {
	apiToken string
	baseURL  string
	model    string
	client   *http.Client
	logger   zerolog.Logger
}

// Result is the parsed generative-service response.
type Result struct {
	ModelURL    string
	PreviewURLs []string
}

type predictionRequest struct {
	Version string         `json:"version"`
	Input   map[string]any `json:"input"`
}

type predictionResponse struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error,omitempty"`
}

type apiError struct {
	Detail string `json:"detail"`
}

// NewClient constructs a Trellis client with sane defaults.
func NewClient(opts Options) *Client {
	client := opts.HTTPClient
	if client == nil {
		// Generation regularly takes minutes.
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.replicate.com/v1"
	}
	return &Client{
		apiToken: strings.TrimSpace(opts.APIToken),
		baseURL:  baseURL,
		model:    opts.Model,
		client:   client,
		logger:   opts.Logger,
	}
}

// Configured reports whether a usable credential is present. When false the
// pipeline skips generation rather than failing.
func (c *Client) Configured() bool {
	return c.apiToken != "" && c.apiToken != tokenPlaceholder
}

// Submit sends the preprocessed image and blocks until the service responds.
// Callers wrap this in their own retry policy; the call itself is a single
// attempt.
func (c *Client) Submit(ctx context.Context, imagePath string) (*Result, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("trellis: %w", domain.ErrGenerationUnavailable)
	}

	data, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("trellis: read image: %w", err)
	}

	payload := predictionRequest{
		Version: modelVersion(c.model),
		Input: map[string]any{
			"image":                  "data:image/png;base64," + base64.StdEncoding.EncodeToString(data),
			"seed":                   0,
			"texture_size":           1024,
			"mesh_simplify":          0.95,
			"generate_model":         true,
			"generate_color":         true,
			"generate_normal":        true,
			"ss_sampling_steps":      12,
			"slat_sampling_steps":    12,
			"ss_guidance_strength":   7.5,
			"slat_guidance_strength": 3,
		},
	}

	var resp predictionResponse
	if err := c.invoke(ctx, "/predictions", payload, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("trellis: prediction failed: %s", resp.Error)
	}

	result, err := parseOutput(resp.Output)
	if err != nil {
		return nil, err
	}

	c.logger.Info().
		Str("prediction_id", resp.ID).
		Int("previews", len(result.PreviewURLs)).
		Msg("trellis: generation complete")
	return result, nil
}

func (c *Client) invoke(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("trellis: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("trellis: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	// Hold the connection until the prediction resolves.
	req.Header.Set("Prefer", "wait")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("trellis: invoke: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Detail != "" {
			return fmt.Errorf("trellis: status %d: %s", resp.StatusCode, apiErr.Detail)
		}
		data, _ := io.ReadAll(resp.Body)
		if len(data) > 0 {
			return fmt.Errorf("trellis: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}
		return fmt.Errorf("trellis: status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("trellis: decode response: %w", err)
	}
	return nil
}

// parseOutput accepts the two shapes the service produces: a bare model URL
// string, or an object with a "model" key and any number of "render_*"
// preview keys.
func parseOutput(raw json.RawMessage) (*Result, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("trellis: empty output")
	}

	var direct string
	if err := json.Unmarshal(raw, &direct); err == nil {
		if direct == "" {
			return nil, fmt.Errorf("trellis: no model URL in output")
		}
		return &Result{ModelURL: direct}, nil
	}

	var structured map[string]any
	if err := json.Unmarshal(raw, &structured); err != nil {
		return nil, fmt.Errorf("trellis: unexpected output shape: %w", err)
	}

	result := &Result{}
	if v, ok := structured["model"].(string); ok {
		result.ModelURL = v
	}
	var renderKeys []string
	for k, v := range structured {
		if s, ok := v.(string); ok && s != "" && strings.HasPrefix(k, "render_") {
			renderKeys = append(renderKeys, k)
		}
	}
	sort.Strings(renderKeys)
	for _, k := range renderKeys {
		result.PreviewURLs = append(result.PreviewURLs, structured[k].(string))
	}

	if result.ModelURL == "" {
		return nil, fmt.Errorf("trellis: no model URL in output")
	}
	return result, nil
}

func modelVersion(model string) string {
	if i := strings.LastIndex(model, ":"); i >= 0 {
		return model[i+1:]
	}
	return model
}
