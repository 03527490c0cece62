package domain

// BundleStatus enumerates terminal states of one asset-generation run.
type BundleStatus string

const (
	// BundleStatusCompleted means the model was generated and transferred;
	// video and AR presence is best-effort on top of that.
	BundleStatusCompleted BundleStatus = "completed"
	// BundleStatusSkipped means the generative service had no usable
	// credential. Not an error: the preprocessed image is still produced.
	BundleStatusSkipped BundleStatus = "skipped"
	// BundleStatusError means a mandatory stage failed; partial fields are
	// preserved on the bundle.
	BundleStatusError BundleStatus = "error"
)

// Asset format identifiers recorded in FormatsGenerated.
const (
	FormatModel = "model"
	FormatVideo = "video"
	FormatAR    = "ar"
)

// AssetBundle is the aggregated result of one pipeline invocation. It is
// created once per run and never mutated after being returned; ownership
// passes entirely to the caller.
type AssetBundle struct {
	ModelPath             string       `json:"glb_path,omitempty"`
	VideoPath             string       `json:"mp4_path,omitempty"`
	ARModelPath           string       `json:"usdz_path,omitempty"`
	PreviewRenders        []string     `json:"preview_renders"`
	PreprocessedImagePath string       `json:"preprocessed_image_path,omitempty"`
	Status                BundleStatus `json:"status"`
	Message               string       `json:"message,omitempty"`
	ErrorDetail           string       `json:"error,omitempty"`
	ProcessingTimeSeconds float64      `json:"processing_time"`
	FormatsGenerated      []string     `json:"formats_generated"`
}

// HasFormat reports whether the given format succeeded this run.
func (b *AssetBundle) HasFormat(format string) bool {
	for _, f := range b.FormatsGenerated {
		if f == format {
			return true
		}
	}
	return false
}

// Refundable reports whether the run should trigger a credit refund. Skipped
// and completed runs consume the credit; errors do not.
func (b *AssetBundle) Refundable() bool {
	return b != nil && b.Status == BundleStatusError
}

// ConversionOutcome captures the independent result of one of the two
// parallel format conversions. A failure in one never invalidates the other.
type ConversionOutcome struct {
	Format string
	Path   string
	Err    error
}

// OK reports whether the conversion produced a usable file.
func (o ConversionOutcome) OK() bool {
	return o.Err == nil && o.Path != ""
}
