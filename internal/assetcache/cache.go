// Package assetcache avoids redundant 3D generation by mapping a content
// fingerprint of the input image to a previously computed asset bundle.
package assetcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"server/internal/domain"
)

const (
	// fingerprintChunk keeps hashing memory bounded regardless of file size.
	fingerprintChunk = 8 * 1024

	entryPrefix = "3d_assets_"
	entrySuffix = ".json"
)

// Fingerprint returns the hex SHA-256 digest of the file's bytes, computed in
// fixed-size chunks. Identical bytes always yield the same fingerprint; it is
// the sole identity used for deduplication.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("assetcache: open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, fingerprintChunk)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("assetcache: read %s: %w", path, err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Cache stores one JSON file per fingerprint under a flat directory. Entries
// never expire and capacity is unbounded; Clear is the only reclamation path.
type Cache struct {
	dir    string
	logger zerolog.Logger
}

// New creates a Cache rooted at dir. The directory is created lazily on the
// first store.
func New(dir string, logger zerolog.Logger) (*Cache, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("assetcache: dir is required")
	}
	return &Cache{dir: dir, logger: logger}, nil
}

// Lookup re-hashes the file at filePath and returns the cached bundle for its
// fingerprint. Any failure (unreadable input, missing entry, corrupt JSON)
// is a miss, never an error: caching is an optimization only.
func (c *Cache) Lookup(ctx context.Context, filePath string) (*domain.AssetBundle, bool) {
	if err := ctx.Err(); err != nil {
		return nil, false
	}
	fp, err := Fingerprint(filePath)
	if err != nil {
		c.logger.Warn().Err(err).Msg("assetcache: fingerprint failed on lookup")
		return nil, false
	}
	raw, err := os.ReadFile(c.entryPath(fp))
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn().Err(err).Str("fingerprint", short(fp)).Msg("assetcache: read failed")
		}
		return nil, false
	}
	var bundle domain.AssetBundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		c.logger.Warn().Err(err).Str("fingerprint", short(fp)).Msg("assetcache: corrupt entry")
		return nil, false
	}
	c.logger.Info().Str("fingerprint", short(fp)).Msg("assetcache: hit")
	return &bundle, true
}

// Store persists the bundle under the file's fingerprint. Best-effort:
// failures are logged and swallowed.
func (c *Cache) Store(ctx context.Context, filePath string, bundle *domain.AssetBundle) {
	if bundle == nil || ctx.Err() != nil {
		return
	}
	fp, err := Fingerprint(filePath)
	if err != nil {
		c.logger.Warn().Err(err).Msg("assetcache: fingerprint failed on store")
		return
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		c.logger.Warn().Err(err).Msg("assetcache: ensure dir failed")
		return
	}
	raw, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		c.logger.Warn().Err(err).Msg("assetcache: marshal failed")
		return
	}
	if err := os.WriteFile(c.entryPath(fp), raw, 0o644); err != nil {
		c.logger.Warn().Err(err).Str("fingerprint", short(fp)).Msg("assetcache: write failed")
		return
	}
	c.logger.Info().Str("fingerprint", short(fp)).Msg("assetcache: saved")
}

// Clear removes every cache entry and returns how many were deleted. Files in
// the directory that do not follow the entry naming convention are untouched.
// A missing directory clears zero entries without error.
func (c *Cache) Clear() (int, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("assetcache: read dir: %w", err)
	}
	count := 0
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, entryPrefix) || !strings.HasSuffix(name, entrySuffix) {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, name)); err != nil {
			return count, fmt.Errorf("assetcache: remove %s: %w", name, err)
		}
		count++
	}
	c.logger.Info().Int("count", count).Msg("assetcache: cleared")
	return count, nil
}

func (c *Cache) entryPath(fingerprint string) string {
	return filepath.Join(c.dir, entryPrefix+fingerprint+entrySuffix)
}

func short(fingerprint string) string {
	if len(fingerprint) > 8 {
		return fingerprint[:8]
	}
	return fingerprint
}
