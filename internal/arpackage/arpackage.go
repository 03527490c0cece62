// Package arpackage converts a GLB model into a USDZ variant for AR
// viewers. Conversion is strictly best-effort: strategies are probed in
// order and when none applies the bundle simply ships without AR.
package arpackage

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Strategy attempts one conversion approach. ok=false means the strategy is
// unavailable or failed; the packager moves on to the next one.
type Strategy interface {
	Name() string
	Convert(ctx context.Context, modelPath, outPath string) (ok bool)
}

// Options configures a Packager.
type Options struct {
	USDZTool      string
	ARConvertURL  string
	HTTPClient    *http.Client
	Logger        zerolog.Logger
	ExtraStrategy []Strategy
}

// Packager runs the strategy chain.
type Packager struct {
	strategies []Strategy
	logger     zerolog.Logger
}

// New builds the default chain: local converter binary first, remote
// conversion service second. Strategies that are not configured drop out at
// probe time.
func New(opts Options) *Packager {
	logger := opts.Logger
	var chain []Strategy

	tool := opts.USDZTool
	if tool == "" {
		tool = "usdzconvert"
	}
	chain = append(chain, &localTool{bin: tool, logger: logger})

	if opts.ARConvertURL != "" {
		client := opts.HTTPClient
		if client == nil {
			client = &http.Client{Timeout: 2 * time.Minute}
		}
		chain = append(chain, &remoteConverter{
			baseURL: strings.TrimRight(opts.ARConvertURL, "/"),
			client:  client,
			logger:  logger,
		})
	}
	chain = append(chain, opts.ExtraStrategy...)

	return &Packager{strategies: chain, logger: logger}
}

// Package tries each strategy until one produces a usable file. It never
// returns an error; ok=false means the bundle has no AR variant.
func (p *Packager) Package(ctx context.Context, modelPath, outPath string) (string, bool) {
	for _, s := range p.strategies {
		if ctx.Err() != nil {
			return "", false
		}
		if s.Convert(ctx, modelPath, outPath) {
			p.logger.Info().
				Str("strategy", s.Name()).
				Str("output", outPath).
				Msg("arpackage: usdz conversion succeeded")
			return outPath, true
		}
		p.logger.Debug().
			Str("strategy", s.Name()).
			Msg("arpackage: strategy unavailable or failed")
	}
	p.logger.Info().Str("model", modelPath).Msg("arpackage: no conversion strategy available, skipping ar variant")
	return "", false
}

// localTool shells out to Apple's usdzconvert (or a compatible binary).
type localTool struct {
	bin    string
	logger zerolog.Logger
}

func (l *localTool) Name() string { return "local:" + l.bin }

func (l *localTool) Convert(ctx context.Context, modelPath, outPath string) bool {
	bin, err := exec.LookPath(l.bin)
	if err != nil {
		return false
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		l.logger.Warn().Err(err).Msg("arpackage: create output dir")
		return false
	}

	cmd := exec.CommandContext(ctx, bin, modelPath, outPath)
	out, runErr := cmd.CombinedOutput()
	if runErr != nil {
		l.logger.Warn().
			Err(runErr).
			Str("output", strings.TrimSpace(string(out))).
			Msg("arpackage: local converter failed")
		return false
	}
	return fileNonEmpty(outPath)
}

// remoteConverter posts the model to a hosted conversion endpoint and saves
// the returned USDZ bytes.
type remoteConverter struct {
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

func (r *remoteConverter) Name() string { return "remote" }

func (r *remoteConverter) Convert(ctx context.Context, modelPath, outPath string) bool {
	f, err := os.Open(modelPath)
	if err != nil {
		r.logger.Warn().Err(err).Msg("arpackage: open model")
		return false
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/convert", f)
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "model/gltf-binary")

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Warn().Err(err).Msg("arpackage: remote conversion request failed")
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		r.logger.Warn().Int("status", resp.StatusCode).Msg("arpackage: remote conversion rejected")
		return false
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return false
	}
	dst, err := os.Create(outPath)
	if err != nil {
		return false
	}
	if _, err := io.Copy(dst, resp.Body); err != nil {
		dst.Close()
		os.Remove(outPath)
		r.logger.Warn().Err(err).Msg("arpackage: save converted file")
		return false
	}
	if err := dst.Close(); err != nil {
		os.Remove(outPath)
		return false
	}
	return fileNonEmpty(outPath)
}

func fileNonEmpty(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

// FuncStrategy adapts a plain function into a Strategy, mostly for tests.
type FuncStrategy struct {
	ID string
	Fn func(ctx context.Context, modelPath, outPath string) bool
}

func (f FuncStrategy) Name() string { return f.ID }

func (f FuncStrategy) Convert(ctx context.Context, modelPath, outPath string) bool {
	return f.Fn(ctx, modelPath, outPath)
}
