// Package patch turns frame locations into normalized patch vectors.
//
// A patch of size S centered at (x, y) covers the window [x-d, x+d) x [y-d, y+d)
// with d = S/2. It is flattened row by row and scaled to unit L2 norm.
package patch

import (
	"errors"

	"github.com/cyclopcam/hypertrack/pkg/frame"
	"gonum.org/v1/gonum/floats"
)

// DefaultStride is the step between neighbouring candidate windows
const DefaultStride = 4

var ErrNoCandidates = errors.New("No candidate patches lie inside the frame")

// Candidates are parallel slices of patch centers and their vectors
type Candidates struct {
	Positions []frame.Point
	Vectors   [][]float64
}

func (c *Candidates) Len() int {
	return len(c.Positions)
}

func (c *Candidates) add(p frame.Point, v []float64) {
	c.Positions = append(c.Positions, p)
	c.Vectors = append(c.Vectors, v)
}

// InBounds reports whether all four corners of the patch centered at p lie inside the frame.
// Corners on the far edge (x == Width or y == Height) are allowed, since the window is half-open.
func InBounds(f *frame.Frame, p frame.Point, patchSize int) bool {
	d := patchSize / 2
	return p.X-d >= 0 && p.Y-d >= 0 && p.X+d <= f.Width && p.Y+d <= f.Height
}

// Vector extracts the patch centered at p. The caller must check InBounds first.
func Vector(f *frame.Frame, p frame.Point, patchSize int) []float64 {
	d := patchSize / 2
	side := 2 * d
	v := make([]float64, 0, side*side)
	for y := p.Y - d; y < p.Y+d; y++ {
		row := f.Pix[y*f.Width+p.X-d : y*f.Width+p.X+d]
		v = append(v, row...)
	}
	Normalize(v)
	return v
}

// Normalize scales v to unit L2 norm in place. A zero vector is left unchanged.
func Normalize(v []float64) {
	norm := floats.Norm(v, 2)
	if norm == 0 {
		norm = 1
	}
	floats.Scale(1/norm, v)
}

// Extract runs a sliding window over the square neighbourhood [c-radius, c+radius) of center,
// and returns every patch that lies fully inside the frame, in row major scan order.
// The result is empty when every window falls outside the frame.
func Extract(f *frame.Frame, center frame.Point, patchSize, radius, stride int) Candidates {
	if stride <= 0 {
		stride = DefaultStride
	}
	c := Candidates{}
	for y := center.Y - radius; y < center.Y+radius; y += stride {
		for x := center.X - radius; x < center.X+radius; x += stride {
			p := frame.Point{X: x, Y: y}
			if !InBounds(f, p, patchSize) {
				continue
			}
			c.add(p, Vector(f, p, patchSize))
		}
	}
	return c
}
