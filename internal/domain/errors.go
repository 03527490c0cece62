package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrGenerationUnavailable marks the generative service as unconfigured.
	// Pipeline runs short-circuit to a skipped bundle instead of failing.
	ErrGenerationUnavailable = errors.New("generation service unavailable")

	// ErrPartialRender is returned when too few turntable frames rendered to
	// produce a representative video.
	ErrPartialRender = errors.New("too many frame render failures")
)
