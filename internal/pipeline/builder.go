package pipeline

import (
	"time"

	"server/internal/domain"
)

// bundleBuilder accumulates stage results so partial progress survives a
// failure downstream.
type bundleBuilder struct {
	bundle domain.AssetBundle
}

func newBundleBuilder() *bundleBuilder {
	return &bundleBuilder{
		bundle: domain.AssetBundle{
			PreviewRenders:   []string{},
			FormatsGenerated: []string{},
		},
	}
}

func (b *bundleBuilder) setPreprocessed(path string) {
	b.bundle.PreprocessedImagePath = path
}

func (b *bundleBuilder) setPreviews(urls []string) {
	if len(urls) > 0 {
		b.bundle.PreviewRenders = append([]string{}, urls...)
	}
}

func (b *bundleBuilder) setModel(path string) {
	b.bundle.ModelPath = path
}

func (b *bundleBuilder) addOutcome(oc domain.ConversionOutcome) {
	if !oc.OK() {
		return
	}
	switch oc.Format {
	case domain.FormatVideo:
		b.bundle.VideoPath = oc.Path
	case domain.FormatAR:
		b.bundle.ARModelPath = oc.Path
	}
	b.bundle.FormatsGenerated = append(b.bundle.FormatsGenerated, oc.Format)
}

func (b *bundleBuilder) skip(message string) *bundleBuilder {
	b.bundle.Status = domain.BundleStatusSkipped
	b.bundle.Message = message
	return b
}

// fail marks the bundle as errored. Formats stay empty: a run that died
// mid-way advertises no deliverables even if files exist on disk.
func (b *bundleBuilder) fail(stage string, err error) *bundleBuilder {
	b.bundle.Status = domain.BundleStatusError
	b.bundle.Message = "failed to " + stage
	b.bundle.ErrorDetail = err.Error()
	b.bundle.FormatsGenerated = []string{}
	return b
}

func (b *bundleBuilder) complete() *bundleBuilder {
	b.bundle.Status = domain.BundleStatusCompleted
	if b.bundle.ModelPath != "" {
		b.bundle.FormatsGenerated = append([]string{domain.FormatModel}, b.bundle.FormatsGenerated...)
	}
	return b
}

func (b *bundleBuilder) build(elapsed time.Duration) *domain.AssetBundle {
	out := b.bundle
	out.ProcessingTimeSeconds = elapsed.Seconds()
	return &out
}
