// Package turntable renders a generated 3D model into a rotating product
// video. Frames come from a pluggable renderer; a missing frame falls back
// to a white placeholder so a flaky model never blocks the whole clip, and
// ffmpeg stitches the sequence into browser-safe H.264.
package turntable

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"server/internal/domain"
)

const (
	defaultFrames = 60
	defaultFPS    = 10
	defaultWidth  = 800
	defaultHeight = 600
)

// Options configures an Encoder. Zero values pick the defaults above.
type Options struct {
	Frames     int
	FPS        int
	Width      int
	Height     int
	FFmpegPath string
	Renderer   FrameRenderer
	Logger     zerolog.Logger
}

// Encoder turns a model file into a turntable MP4.
type Encoder struct {
	frames     int
	fps        int
	width      int
	height     int
	ffmpegPath string
	renderer   FrameRenderer
	logger     zerolog.Logger
}

// NewEncoder builds an encoder from opts.
func NewEncoder(opts Options) *Encoder {
	e := &Encoder{
		frames:     opts.Frames,
		fps:        opts.FPS,
		width:      opts.Width,
		height:     opts.Height,
		ffmpegPath: opts.FFmpegPath,
		renderer:   opts.Renderer,
		logger:     opts.Logger,
	}
	if e.frames <= 0 {
		e.frames = defaultFrames
	}
	if e.fps <= 0 {
		e.fps = defaultFPS
	}
	if e.width <= 0 {
		e.width = defaultWidth
	}
	if e.height <= 0 {
		e.height = defaultHeight
	}
	if e.ffmpegPath == "" {
		e.ffmpegPath = "ffmpeg"
	}
	if e.renderer == nil {
		e.renderer = NewSoftwareRenderer()
	}
	return e
}

// Encode renders the full rotation and writes the video to outPath. When
// fewer than half the frames render, the result would be mostly blank and
// the error wraps domain.ErrPartialRender.
func (e *Encoder) Encode(ctx context.Context, modelPath, outPath string) error {
	frameDir, err := os.MkdirTemp("", "turntable-*")
	if err != nil {
		return fmt.Errorf("turntable: create frame dir: %w", err)
	}
	defer os.RemoveAll(frameDir)

	rendered := 0
	for i := 0; i < e.frames; i++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("turntable: render interrupted: %w", err)
		}
		yaw := 360 * float64(i) / float64(e.frames)
		img, renderErr := e.renderer.RenderFrame(modelPath, yaw, e.width, e.height)
		if renderErr != nil {
			e.logger.Warn().
				Int("frame", i).
				Float64("yaw", yaw).
				Err(renderErr).
				Msg("turntable: frame render failed, using placeholder")
			img = placeholderFrame(e.width, e.height)
		} else {
			rendered++
		}
		if err := writeFrame(frameDir, i, img); err != nil {
			return err
		}
	}

	// Ceiling of half the frame count.
	threshold := (e.frames + 1) / 2
	if rendered < threshold {
		return fmt.Errorf("turntable: only %d of %d frames rendered: %w", rendered, e.frames, domain.ErrPartialRender)
	}

	if err := e.encodeVideo(ctx, frameDir, outPath); err != nil {
		return err
	}

	e.logger.Info().
		Str("output", outPath).
		Int("frames", e.frames).
		Int("rendered", rendered).
		Msg("turntable: video encoded")
	return nil
}

func (e *Encoder) encodeVideo(ctx context.Context, frameDir, outPath string) error {
	bin, err := exec.LookPath(e.ffmpegPath)
	if err != nil {
		return fmt.Errorf("turntable: ffmpeg not found (%q): %w", e.ffmpegPath, err)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("turntable: create output dir: %w", err)
	}

	cmd := exec.CommandContext(
		ctx,
		bin,
		"-y",
		"-framerate", strconv.Itoa(e.fps),
		"-i", filepath.Join(frameDir, "frame_%04d.png"),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-crf", "23",
		"-preset", "medium",
		outPath,
	)
	out, runErr := cmd.CombinedOutput()
	if runErr != nil {
		msg := strings.TrimSpace(string(out))
		if len(msg) > 400 {
			msg = msg[len(msg)-400:]
		}
		return fmt.Errorf("turntable: ffmpeg failed: %w: %s", runErr, msg)
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return fmt.Errorf("turntable: ffmpeg produced no output: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("turntable: ffmpeg produced empty output")
	}
	return nil
}

func writeFrame(dir string, index int, img image.Image) error {
	path := filepath.Join(dir, fmt.Sprintf("frame_%04d.png", index))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("turntable: create frame file: %w", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("turntable: encode frame %d: %w", index, err)
	}
	return nil
}

func placeholderFrame(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	return img
}
