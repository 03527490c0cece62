package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"server/internal/adapter/repo"
	"server/internal/assetcache"
	"server/internal/classifier"
	"server/internal/http/handlers"
	httpapi "server/internal/http/httpapi"
	"server/internal/infra"
	"server/internal/infra/credentials"
	"server/internal/infra/geoip"
	"server/internal/payments"
	"server/internal/storage"
)

func main() {
	// .env is optional in all environments.
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)

	fileStore, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure storage")
	}

	cache, err := assetcache.New(cfg.CacheDir, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure asset cache")
	}

	geo, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("api: geoip database unavailable, country detection disabled")
	}

	credStore := credentials.NewStore(runner)
	nicheRepo := repo.NewNicheRepository(runner)

	stripeClient := payments.New(payments.Options{
		SecretKey:     credStore.TokenOr(ctx, credentials.ProviderStripe, cfg.StripeSecretKey),
		WebhookSecret: cfg.StripeWebhookSecret,
		FrontendURL:   cfg.FrontendURL,
		Logger:        logger,
	})

	app := &handlers.App{
		Logger:      logger,
		Users:       repo.NewUserRepository(pool),
		Jobs:        repo.NewListingJobRepository(pool),
		Niches:      nicheRepo,
		Classifier:  classifier.New(nicheRepo, logger),
		Store:       fileStore,
		Cache:       cache,
		Payments:    stripeClient,
		Credentials: credStore,
		Geo:         geo,
	}

	router := httpapi.NewRouter(app, cfg)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
