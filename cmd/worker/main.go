package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"server/internal/adapter/repo"
	"server/internal/arpackage"
	"server/internal/assetcache"
	"server/internal/classifier"
	"server/internal/domain"
	"server/internal/infra"
	"server/internal/infra/credentials"
	"server/internal/listing"
	"server/internal/obs"
	"server/internal/pipeline"
	"server/internal/preprocess"
	"server/internal/pricing"
	"server/internal/providers/prompt"
	"server/internal/providers/trellis"
	"server/internal/retry"
	"server/internal/storage"
	"server/internal/transfer"
	"server/internal/turntable"
	"server/internal/vision"
)

const jobPollInterval = 2 * time.Second

type jobWorker struct {
	logger   infra.Logger
	jobs     domain.ListingJobRepository
	users    domain.UserRepository
	store    *storage.FileStore
	runner   pipeline.Runner
	vision   *vision.Detector
	classify *classifier.Classifier
	prompt   *prompt.Client
	exporter *listing.Exporter
	inflight chan struct{}
}

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)

	fileStore, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	cache, err := assetcache.New(cfg.CacheDir, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure asset cache")
	}

	// Stored tokens win over the environment so credentials rotated through
	// the admin API apply without a redeploy.
	credStore := credentials.NewStore(runner)

	trellisClient := trellis.NewClient(trellis.Options{
		APIToken: credStore.TokenOr(ctx, credentials.ProviderReplicate, cfg.ReplicateAPIToken),
		BaseURL:  cfg.ReplicateBaseURL,
		Model:    cfg.TrellisModel,
		Logger:   logger,
	})
	if !trellisClient.Configured() {
		logger.Warn().Msg("worker: replicate token missing, runs will produce skipped bundles")
	}

	orchestrator := pipeline.New(pipeline.Options{
		Preprocessor: preprocess.New(preprocess.Options{RembgURL: cfg.RembgURL, Logger: logger}),
		Generator:    trellisClient,
		Fetcher:      transfer.New(cfg.TransferTimeout, logger, transfer.WithChunkSize(cfg.TransferChunk)),
		Video: turntable.NewEncoder(turntable.Options{
			FFmpegPath: cfg.FFmpegPath,
			Renderer:   turntable.NewSoftwareRenderer(),
			Logger:     logger,
		}),
		AR: arpackage.New(arpackage.Options{
			USDZTool:     cfg.USDZTool,
			ARConvertURL: cfg.ARConvertURL,
			Logger:       logger,
		}),
		Retry:     retry.New(logger),
		OutputDir: filepath.Join(fileStore.BasePath(), "generated"),
		Logger:    logger,
	})

	nicheRepo := repo.NewNicheRepository(runner)

	worker := &jobWorker{
		logger: logger,
		jobs:   repo.NewListingJobRepository(pool),
		users:  repo.NewUserRepository(pool),
		store:  fileStore,
		runner: pipeline.NewCachedRunner(orchestrator, cache, logger),
		vision: vision.New(vision.Options{
			APIKey:  credStore.TokenOr(ctx, credentials.ProviderVision, cfg.VisionAPIKey),
			BaseURL: cfg.VisionBaseURL,
			Logger:  logger,
		}),
		classify: classifier.New(nicheRepo, logger),
		prompt: prompt.New(prompt.Options{
			APIKey:  credStore.TokenOr(ctx, credentials.ProviderDashScope, cfg.DashScopeAPIKey),
			BaseURL: cfg.DashScopeBaseURL,
			Model:   cfg.DashScopeModel,
			Logger:  logger,
		}),
		exporter: listing.New(fileStore, logger),
		inflight: make(chan struct{}, cfg.PipelineMaxInflight),
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

// Run poll-claims queued jobs until ctx is cancelled. The inflight channel
// bounds concurrent pipeline runs; a slot is taken before claiming so a
// claimed job is always processed.
func (w *jobWorker) Run(ctx context.Context) error {
	w.logger.Info().Int("max_inflight", cap(w.inflight)).Msg("worker: started")
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case w.inflight <- struct{}{}:
		}

		job, err := w.jobs.Claim(ctx)
		if err != nil {
			<-w.inflight
			if !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, context.Canceled) {
				w.logger.Error().Err(err).Msg("worker: failed to claim job")
			}
			sleepCtx(ctx, jobPollInterval)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-w.inflight }()
			w.handleJob(ctx, job)
		}()
	}
}

func (w *jobWorker) handleJob(ctx context.Context, job *domain.ListingJob) {
	start := time.Now()
	w.logger.Info().Str("job_id", job.ID).Str("user_id", job.UserID).Msg("worker: picked job")

	err := w.process(ctx, job)
	obs.RecordWorkerJob(start, err)
	if err != nil {
		w.logger.Error().Err(err).Str("job_id", job.ID).Msg("worker: job failed")
		return
	}
	w.logger.Info().
		Str("job_id", job.ID).
		Dur("elapsed", time.Since(start)).
		Msg("worker: job finished")
}

func (w *jobWorker) process(ctx context.Context, job *domain.ListingJob) error {
	imagePath, err := w.store.FullPath(job.ImagePath)
	if err != nil {
		return w.fail(ctx, job, nil, fmt.Errorf("resolve image: %w", err))
	}

	bundle, runErr := w.runner.Run(ctx, imagePath)
	if runErr != nil || bundle.Refundable() {
		return w.fail(ctx, job, bundle, runErr)
	}

	record, err := w.buildListing(ctx, imagePath, bundle)
	if err != nil {
		return w.fail(ctx, job, bundle, err)
	}

	bundleJSON, err := json.Marshal(bundle)
	if err != nil {
		return w.fail(ctx, job, nil, fmt.Errorf("encode bundle: %w", err))
	}
	listingJSON, err := json.Marshal(record)
	if err != nil {
		return w.fail(ctx, job, bundle, fmt.Errorf("encode listing: %w", err))
	}

	if err := w.jobs.Complete(ctx, job.ID, domain.ListingJobStatusSucceeded, "", bundleJSON, listingJSON); err != nil {
		return fmt.Errorf("persist result: %w", err)
	}
	return nil
}

// buildListing turns a finished bundle into the marketplace listing record.
// Copy generation never fails; label detection, classification and the export
// write can.
func (w *jobWorker) buildListing(ctx context.Context, imagePath string, bundle *domain.AssetBundle) (*listing.Record, error) {
	labelSource := bundle.PreprocessedImagePath
	if labelSource == "" {
		labelSource = imagePath
	}
	labels, err := w.vision.DetectLabels(ctx, labelSource)
	if err != nil {
		return nil, fmt.Errorf("detect labels: %w", err)
	}
	analysis, err := w.classify.Classify(ctx, labels)
	if err != nil {
		return nil, fmt.Errorf("classify product: %w", err)
	}
	price := pricing.Estimate(analysis.Niche.Name)
	copyOut := w.prompt.Generate(ctx, analysis, price)

	l := listing.Assemble(analysis, price, copyOut, bundle)
	exportKey, exports, err := w.exporter.Export(ctx, l)
	if err != nil {
		return nil, fmt.Errorf("export listing: %w", err)
	}
	return &listing.Record{Listing: l, Exports: exports, ExportKey: exportKey}, nil
}

// fail marks the job failed and refunds the charged credit. Skipped and
// completed bundles never reach here, so the user only pays for runs that
// produced something.
func (w *jobWorker) fail(ctx context.Context, job *domain.ListingJob, bundle *domain.AssetBundle, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	} else if bundle != nil && bundle.ErrorDetail != "" {
		msg = bundle.ErrorDetail
	}

	var bundleJSON []byte
	if bundle != nil {
		bundleJSON, _ = json.Marshal(bundle)
	}
	if err := w.jobs.Complete(ctx, job.ID, domain.ListingJobStatusFailed, msg, bundleJSON, nil); err != nil {
		w.logger.Error().Err(err).Str("job_id", job.ID).Msg("worker: persist failure state failed")
	}
	if err := w.users.RefundCredits(ctx, job.UserID, domain.ListingCreditCost, "generation failed"); err != nil {
		w.logger.Error().Err(err).Str("user_id", job.UserID).Msg("worker: refund failed")
	}

	if cause != nil {
		return cause
	}
	return errors.New(msg)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
