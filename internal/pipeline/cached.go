package pipeline

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"server/internal/assetcache"
	"server/internal/domain"
	"server/internal/obs"
)

// Runner is the minimal pipeline surface the service layers depend on.
type Runner interface {
	Run(ctx context.Context, imagePath string) (*domain.AssetBundle, error)
}

// CachedRunner wraps a Runner with content-addressed caching. Concurrent
// requests for the same image content share one underlying run, so identical
// uploads never pay for generation twice.
type CachedRunner struct {
	runner Runner
	cache  *assetcache.Cache
	group  singleflight.Group
	logger zerolog.Logger
}

// NewCachedRunner wraps runner with cache.
func NewCachedRunner(runner Runner, cache *assetcache.Cache, logger zerolog.Logger) *CachedRunner {
	return &CachedRunner{runner: runner, cache: cache, logger: logger}
}

// Run checks the cache before delegating. Only completed bundles are stored:
// skipped and errored runs should retry once the underlying cause clears.
func (c *CachedRunner) Run(ctx context.Context, imagePath string) (*domain.AssetBundle, error) {
	fingerprint, err := assetcache.Fingerprint(imagePath)
	if err != nil {
		// Unreadable input will fail downstream with a better error.
		c.logger.Warn().Err(err).Str("image", imagePath).Msg("cache: fingerprint failed, running uncached")
		return c.runner.Run(ctx, imagePath)
	}

	v, runErr, shared := c.group.Do(fingerprint, func() (any, error) {
		if bundle, ok := c.cache.Lookup(ctx, imagePath); ok {
			obs.RecordCacheLookup(true)
			return bundle, nil
		}
		obs.RecordCacheLookup(false)

		bundle, err := c.runner.Run(ctx, imagePath)
		if err != nil {
			return bundle, err
		}
		if bundle.Status == domain.BundleStatusCompleted {
			c.cache.Store(ctx, imagePath, bundle)
		}
		return bundle, nil
	})
	if shared {
		c.logger.Debug().Str("fingerprint", fingerprint[:12]).Msg("cache: run shared with concurrent request")
	}

	bundle, _ := v.(*domain.AssetBundle)
	return bundle, runErr
}
