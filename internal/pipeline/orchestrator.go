// Package pipeline orchestrates the full photo-to-asset flow: background
// removal, hosted 3D generation, model transfer, then turntable video and AR
// conversion fanned out in parallel. The result is always a bundle; failures
// downgrade it rather than discarding the work already done.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/obs"
	"server/internal/providers/trellis"
	"server/internal/retry"
)

// Preprocessor normalizes the input photo for generation.
type Preprocessor interface {
	Process(ctx context.Context, imagePath string) (string, error)
}

// Generator submits one image to the hosted 3D model.
type Generator interface {
	Configured() bool
	Submit(ctx context.Context, imagePath string) (*trellis.Result, error)
}

// Fetcher downloads a generated artifact to local storage.
type Fetcher interface {
	Fetch(ctx context.Context, url, destPath string) (string, error)
}

// VideoEncoder renders the turntable clip for a model file.
type VideoEncoder interface {
	Encode(ctx context.Context, modelPath, outPath string) error
}

// ARPackager converts the model for AR viewers. Best-effort only.
type ARPackager interface {
	Package(ctx context.Context, modelPath, outPath string) (string, bool)
}

// Options wires an Orchestrator.
type Options struct {
	Preprocessor Preprocessor
	Generator    Generator
	Fetcher      Fetcher
	Video        VideoEncoder
	AR           ARPackager
	Retry        *retry.Invoker
	OutputDir    string
	Logger       zerolog.Logger
}

// Orchestrator runs the asset pipeline end to end for one image.
type Orchestrator struct {
	pre       Preprocessor
	gen       Generator
	fetch     Fetcher
	video     VideoEncoder
	ar        ARPackager
	retry     *retry.Invoker
	outputDir string
	logger    zerolog.Logger
}

// New builds an Orchestrator from opts. All stage dependencies are required
// except AR, which may be nil when no converter is deployed.
func New(opts Options) *Orchestrator {
	return &Orchestrator{
		pre:       opts.Preprocessor,
		gen:       opts.Generator,
		fetch:     opts.Fetcher,
		video:     opts.Video,
		ar:        opts.AR,
		retry:     opts.Retry,
		outputDir: opts.OutputDir,
		logger:    opts.Logger,
	}
}

// Run executes the pipeline for imagePath. The returned bundle is never nil:
// on error it carries whatever stages completed, with Status set to error and
// the same error returned alongside.
func (o *Orchestrator) Run(ctx context.Context, imagePath string) (*domain.AssetBundle, error) {
	start := time.Now()
	b := newBundleBuilder()

	stageStart := time.Now()
	processed, err := o.pre.Process(ctx, imagePath)
	obs.ObserveStage("preprocess", stageStart)
	if err != nil {
		return o.finish(b.fail("preprocess image", err), start), fmt.Errorf("pipeline: preprocess: %w", err)
	}
	b.setPreprocessed(processed)

	if !o.gen.Configured() {
		o.logger.Info().Str("image", imagePath).Msg("pipeline: generation credential missing, skipping 3d stage")
		return o.finish(b.skip("3D generation skipped: no API credential configured"), start), nil
	}

	stageStart = time.Now()
	result, err := retry.Do(ctx, o.retry, func() (*trellis.Result, error) {
		return o.gen.Submit(ctx, processed)
	})
	obs.ObserveStage("generate", stageStart)
	if err != nil {
		return o.finish(b.fail("generate 3d model", err), start), fmt.Errorf("pipeline: generate: %w", err)
	}
	b.setPreviews(result.PreviewURLs)

	runDir := filepath.Join(o.outputDir, uuid.NewString())
	stageStart = time.Now()
	modelPath, err := o.fetch.Fetch(ctx, result.ModelURL, filepath.Join(runDir, "model.glb"))
	obs.ObserveStage("transfer", stageStart)
	if err != nil {
		return o.finish(b.fail("transfer model", err), start), fmt.Errorf("pipeline: transfer: %w", err)
	}
	b.setModel(modelPath)

	// Video and AR run concurrently and independently; one failing never
	// cancels the other.
	outcomes := make([]domain.ConversionOutcome, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		stageStart := time.Now()
		videoPath := filepath.Join(runDir, "turntable.mp4")
		err := o.video.Encode(ctx, modelPath, videoPath)
		obs.ObserveStage("video", stageStart)
		if err != nil {
			outcomes[0] = domain.ConversionOutcome{Format: domain.FormatVideo, Err: err}
			return
		}
		outcomes[0] = domain.ConversionOutcome{Format: domain.FormatVideo, Path: videoPath}
	}()
	go func() {
		defer wg.Done()
		if o.ar == nil {
			outcomes[1] = domain.ConversionOutcome{Format: domain.FormatAR}
			return
		}
		stageStart := time.Now()
		path, ok := o.ar.Package(ctx, modelPath, filepath.Join(runDir, "model.usdz"))
		obs.ObserveStage("ar", stageStart)
		if !ok {
			outcomes[1] = domain.ConversionOutcome{Format: domain.FormatAR}
			return
		}
		outcomes[1] = domain.ConversionOutcome{Format: domain.FormatAR, Path: path}
	}()
	wg.Wait()

	for _, oc := range outcomes {
		if oc.Err != nil {
			o.logger.Warn().
				Str("format", oc.Format).
				Err(oc.Err).
				Msg("pipeline: format conversion failed, bundle degrades")
		}
		b.addOutcome(oc)
	}

	return o.finish(b.complete(), start), nil
}

func (o *Orchestrator) finish(b *bundleBuilder, start time.Time) *domain.AssetBundle {
	bundle := b.build(time.Since(start))
	obs.RecordPipelineRun(string(bundle.Status))
	o.logger.Info().
		Str("status", string(bundle.Status)).
		Strs("formats", bundle.FormatsGenerated).
		Float64("seconds", bundle.ProcessingTimeSeconds).
		Msg("pipeline: run finished")
	return bundle
}
