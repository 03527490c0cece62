package turntable

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"
)

// FrameRenderer produces one frame of the turntable at the given yaw angle.
// Implementations report per-frame failures through the error return; the
// encoder substitutes a placeholder and keeps going.
type FrameRenderer interface {
	RenderFrame(modelPath string, yawDegrees float64, width, height int) (image.Image, error)
}

// softwareRenderer projects the model's vertices orthographically onto the
// frame, shading by depth. It needs no GPU and no external process, which is
// what lets the worker run in a plain container.
type softwareRenderer struct {
	mu     sync.Mutex
	meshes map[string]*Mesh
}

// NewSoftwareRenderer returns the built-in CPU renderer.
func NewSoftwareRenderer() FrameRenderer {
	return &softwareRenderer{meshes: make(map[string]*Mesh)}
}

func (r *softwareRenderer) RenderFrame(modelPath string, yawDegrees float64, width, height int) (image.Image, error) {
	mesh, err := r.mesh(modelPath)
	if err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("turntable: invalid frame size %dx%d", width, height)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	cx, cy, cz, radius := meshBounds(mesh)
	if radius == 0 {
		radius = 1
	}
	// Leave a margin so the model never touches the frame edge.
	scale := 0.4 * float64(minInt(width, height)) / radius

	yaw := yawDegrees * math.Pi / 180
	sin, cos := math.Sin(yaw), math.Cos(yaw)
	for _, v := range mesh.Vertices {
		x := v[0] - cx
		y := v[1] - cy
		z := v[2] - cz

		// Rotate around the vertical axis.
		rx := x*cos + z*sin
		rz := -x*sin + z*cos

		px := width/2 + int(rx*scale)
		py := height/2 - int(y*scale)
		if px < 0 || px >= width || py < 0 || py >= height {
			continue
		}

		// Nearer vertices draw darker.
		depth := (rz + radius) / (2 * radius)
		shade := uint8(40 + 160*clamp01(depth))
		img.SetRGBA(px, py, color.RGBA{R: shade, G: shade, B: shade, A: 255})
	}
	return img, nil
}

func (r *softwareRenderer) mesh(modelPath string) (*Mesh, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.meshes[modelPath]; ok {
		return m, nil
	}
	m, err := LoadMesh(modelPath)
	if err != nil {
		return nil, err
	}
	r.meshes[modelPath] = m
	return m, nil
}

func meshBounds(m *Mesh) (cx, cy, cz, radius float64) {
	minV := [3]float64{math.Inf(1), math.Inf(1), math.Inf(1)}
	maxV := [3]float64{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	for _, v := range m.Vertices {
		for i := 0; i < 3; i++ {
			minV[i] = math.Min(minV[i], v[i])
			maxV[i] = math.Max(maxV[i], v[i])
		}
	}
	cx = (minV[0] + maxV[0]) / 2
	cy = (minV[1] + maxV[1]) / 2
	cz = (minV[2] + maxV[2]) / 2
	for i := 0; i < 3; i++ {
		radius = math.Max(radius, (maxV[i]-minV[i])/2)
	}
	return cx, cy, cz, radius
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
