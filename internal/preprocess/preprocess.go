// Package preprocess prepares product photos for 3D generation: the
// background is removed by an external service and the foreground is
// composited over an opaque white canvas.
package preprocess

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "image/jpeg"

	"github.com/rs/zerolog"
)

// Options controls how the Preprocessor is configured.
type Options struct {
	// RembgURL is the background-removal service endpoint (bytes in, PNG with
	// alpha out). When empty the removal step is skipped and the photo is
	// composited as-is.
	RembgURL   string
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Preprocessor runs the synchronous bytes-in/bytes-out removal transform and
// persists the white-backed result next to the input image.
type Preprocessor struct {
	rembgURL string
	client   *http.Client
	logger   zerolog.Logger
}

// New constructs a Preprocessor.
func New(opts Options) *Preprocessor {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Preprocessor{
		rembgURL: strings.TrimSpace(opts.RembgURL),
		client:   client,
		logger:   opts.Logger,
	}
}

// Process removes the background of the image at imagePath, composites the
// foreground over opaque white, and writes `<name>_processed.png` alongside
// the input. Failure here is fatal to a pipeline run.
func (p *Preprocessor) Process(ctx context.Context, imagePath string) (string, error) {
	input, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("preprocess: read input: %w", err)
	}

	cutout := input
	if p.rembgURL != "" {
		cutout, err = p.removeBackground(ctx, input)
		if err != nil {
			return "", err
		}
	} else {
		p.logger.Warn().Msg("preprocess: background removal not configured, compositing original image")
	}

	img, _, err := image.Decode(bytes.NewReader(cutout))
	if err != nil {
		return "", fmt.Errorf("preprocess: decode image: %w", err)
	}

	// Opaque white base; the cutout's alpha channel masks the paste.
	bounds := img.Bounds()
	canvas := image.NewRGBA(bounds)
	draw.Draw(canvas, bounds, image.White, image.Point{}, draw.Src)
	draw.Draw(canvas, bounds, img, bounds.Min, draw.Over)

	outPath := processedPath(imagePath)
	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return "", fmt.Errorf("preprocess: encode png: %w", err)
	}
	if err := os.WriteFile(outPath, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("preprocess: write %s: %w", outPath, err)
	}

	p.logger.Info().Str("path", outPath).Msg("preprocess: background removed")
	return outPath, nil
}

func (p *Preprocessor) removeBackground(ctx context.Context, input []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.rembgURL, bytes.NewReader(input))
	if err != nil {
		return nil, fmt.Errorf("preprocess: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("preprocess: removal service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("preprocess: removal service status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("preprocess: read removal response: %w", err)
	}
	return out, nil
}

func processedPath(imagePath string) string {
	ext := filepath.Ext(imagePath)
	return strings.TrimSuffix(imagePath, ext) + "_processed.png"
}
