package assetcache

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"server/internal/domain"
)

func testCache(t *testing.T) (*Cache, string) {
	t.Helper()
	dir := t.TempDir()
	c, err := New(filepath.Join(dir, "cache"), zerolog.New(io.Discard))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, dir
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestFingerprintDeterministic(t *testing.T) {
	dir := t.TempDir()
	data := []byte("identical product photo bytes")
	a := writeFile(t, dir, "a.jpg", data)
	b := writeFile(t, dir, "b.jpg", data)

	fpA1, err := Fingerprint(a)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	fpA2, err := Fingerprint(a)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	fpB, err := Fingerprint(b)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if fpA1 != fpA2 {
		t.Fatalf("same file hashed twice: %s != %s", fpA1, fpA2)
	}
	if fpA1 != fpB {
		t.Fatalf("identical bytes via different paths: %s != %s", fpA1, fpB)
	}
	if len(fpA1) != 64 {
		t.Fatalf("fingerprint length = %d, want 64 hex chars", len(fpA1))
	}
}

func TestFingerprintDivergesOnOneByte(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.bin", []byte("payload-0"))
	b := writeFile(t, dir, "b.bin", []byte("payload-1"))

	fpA, _ := Fingerprint(a)
	fpB, _ := Fingerprint(b)
	if fpA == fpB {
		t.Fatalf("one-byte-different inputs collided: %s", fpA)
	}
}

func TestFingerprintLargerThanChunk(t *testing.T) {
	dir := t.TempDir()
	big := make([]byte, fingerprintChunk*3+17)
	for i := range big {
		big[i] = byte(i % 251)
	}
	path := writeFile(t, dir, "big.bin", big)
	fp1, err := Fingerprint(path)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	fp2, _ := Fingerprint(path)
	if fp1 != fp2 {
		t.Fatalf("multi-chunk hash not deterministic")
	}
}

func TestCacheRoundTrip(t *testing.T) {
	c, dir := testCache(t)
	ctx := context.Background()
	img := writeFile(t, dir, "product.png", []byte("png bytes"))

	if _, ok := c.Lookup(ctx, img); ok {
		t.Fatalf("lookup before store should miss")
	}

	bundle := &domain.AssetBundle{
		ModelPath:             "data/models/abc.glb",
		VideoPath:             "data/models/abc.mp4",
		PreviewRenders:        []string{"https://cdn.example.com/r0.png", "https://cdn.example.com/r1.png"},
		PreprocessedImagePath: "data/uploads/product_processed.png",
		Status:                domain.BundleStatusCompleted,
		ProcessingTimeSeconds: 42.5,
		FormatsGenerated:      []string{domain.FormatModel, domain.FormatVideo},
	}
	c.Store(ctx, img, bundle)

	got, ok := c.Lookup(ctx, img)
	if !ok {
		t.Fatalf("lookup after store missed")
	}
	if got.ModelPath != bundle.ModelPath || got.VideoPath != bundle.VideoPath {
		t.Fatalf("paths mismatch: %+v", got)
	}
	if got.Status != domain.BundleStatusCompleted {
		t.Fatalf("status = %s", got.Status)
	}
	if len(got.PreviewRenders) != 2 {
		t.Fatalf("preview renders = %d, want 2", len(got.PreviewRenders))
	}
	if got.ProcessingTimeSeconds != 42.5 {
		t.Fatalf("processing time = %v", got.ProcessingTimeSeconds)
	}
	if !got.HasFormat(domain.FormatModel) || !got.HasFormat(domain.FormatVideo) || got.HasFormat(domain.FormatAR) {
		t.Fatalf("formats = %v", got.FormatsGenerated)
	}
}

func TestLookupMissingInputIsMiss(t *testing.T) {
	c, dir := testCache(t)
	if _, ok := c.Lookup(context.Background(), filepath.Join(dir, "no-such-file.jpg")); ok {
		t.Fatalf("unreadable input must be a miss, not a failure")
	}
}

func TestLookupCorruptEntryIsMiss(t *testing.T) {
	c, dir := testCache(t)
	ctx := context.Background()
	img := writeFile(t, dir, "p.png", []byte("bytes"))
	c.Store(ctx, img, &domain.AssetBundle{Status: domain.BundleStatusCompleted})

	fp, _ := Fingerprint(img)
	if err := os.WriteFile(c.entryPath(fp), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("corrupt entry: %v", err)
	}
	if _, ok := c.Lookup(ctx, img); ok {
		t.Fatalf("corrupt entry must read as a miss")
	}
}

func TestClearScopedToOwnFiles(t *testing.T) {
	c, dir := testCache(t)
	ctx := context.Background()

	one := writeFile(t, dir, "one.png", []byte("one"))
	two := writeFile(t, dir, "two.png", []byte("two"))
	c.Store(ctx, one, &domain.AssetBundle{Status: domain.BundleStatusCompleted})
	c.Store(ctx, two, &domain.AssetBundle{Status: domain.BundleStatusSkipped})

	unrelated := filepath.Join(c.dir, "keep-me.txt")
	if err := os.WriteFile(unrelated, []byte("not a cache entry"), 0o644); err != nil {
		t.Fatalf("write unrelated: %v", err)
	}

	n, err := c.Clear()
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if n != 2 {
		t.Fatalf("cleared %d entries, want 2", n)
	}
	if _, err := os.Stat(unrelated); err != nil {
		t.Fatalf("unrelated file was removed: %v", err)
	}
	if _, ok := c.Lookup(ctx, one); ok {
		t.Fatalf("entry survived clear")
	}
}

func TestClearMissingDir(t *testing.T) {
	c, _ := testCache(t)
	n, err := c.Clear()
	if err != nil {
		t.Fatalf("Clear on missing dir: %v", err)
	}
	if n != 0 {
		t.Fatalf("cleared %d, want 0", n)
	}
}
