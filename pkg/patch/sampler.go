package patch

import (
	"math"
	"sort"

	flatbush "github.com/bmharper/flatbush-go"
	"github.com/cyclopcam/hypertrack/pkg/frame"
	"github.com/cyclopcam/hypertrack/pkg/stats"
)

// Sampler builds positive and negative training patches around a target.
//
// Candidate points lie on a stride-spaced grid that covers the whole frame.
// The grid is kept in a spatial index, so that only points near the target are visited.
// The index is rebuilt whenever the frame size changes.
// A Sampler is not safe for concurrent use.
type Sampler struct {
	PatchSize int
	Stride    int

	width  int
	height int
	grid   []frame.Point // grid points, in row major order
	index  *flatbush.Flatbush[int32]
	found  []int
}

func NewSampler(patchSize, stride int) *Sampler {
	if stride <= 0 {
		stride = DefaultStride
	}
	return &Sampler{
		PatchSize: patchSize,
		Stride:    stride,
	}
}

func (s *Sampler) buildGrid(width, height int) {
	if s.index != nil && s.width == width && s.height == height {
		return
	}
	s.grid = s.grid[:0]
	for y := 0; y < height; y += s.Stride {
		for x := 0; x < width; x += s.Stride {
			s.grid = append(s.grid, frame.Point{X: x, Y: y})
		}
	}
	fb := flatbush.NewFlatbush[int32]()
	fb.Reserve(len(s.grid))
	for _, p := range s.grid {
		fb.Add(int32(p.X), int32(p.Y), int32(p.X), int32(p.Y))
	}
	fb.Finish()
	s.index = fb
	s.width = width
	s.height = height
}

// Near returns the grid points whose distance d from center satisfies minDist <= d < maxDist,
// in row major order.
func (s *Sampler) Near(width, height int, center frame.Point, minDist, maxDist float64) []frame.Point {
	if maxDist <= 0 || maxDist <= minDist {
		return nil
	}
	s.buildGrid(width, height)
	// Grid points never lie outside the frame, so the search box is clamped to it.
	// This also keeps a very wide maxDist inside int32.
	w, h := float64(width), float64(height)
	minX := int32(stats.Clamp(math.Floor(float64(center.X)-maxDist), 0, w))
	minY := int32(stats.Clamp(math.Floor(float64(center.Y)-maxDist), 0, h))
	maxX := int32(stats.Clamp(math.Ceil(float64(center.X)+maxDist), 0, w))
	maxY := int32(stats.Clamp(math.Ceil(float64(center.Y)+maxDist), 0, h))
	s.found = s.index.SearchFast(minX, minY, maxX, maxY, s.found)
	// The index does not preserve insertion order
	sort.Ints(s.found)

	points := []frame.Point{}
	for _, i := range s.found {
		p := s.grid[i]
		d := float64(p.Distance(center))
		if d >= minDist && d < maxDist {
			points = append(points, p)
		}
	}
	return points
}

func (s *Sampler) vectors(f *frame.Frame, points []frame.Point) [][]float64 {
	vectors := [][]float64{}
	for _, p := range points {
		if !InBounds(f, p, s.PatchSize) {
			continue
		}
		vectors = append(vectors, Vector(f, p, s.PatchSize))
	}
	return vectors
}

// PosNeg returns the patches whose centers lie within alpha of center (positives),
// and the patches whose centers lie in [alpha, beta) from center (negatives).
// Proximity to the current target is the only supervision signal.
func (s *Sampler) PosNeg(f *frame.Frame, center frame.Point, alpha, beta float64) (pos, neg [][]float64) {
	pos = s.vectors(f, s.Near(f.Width, f.Height, center, 0, alpha))
	neg = s.vectors(f, s.Near(f.Width, f.Height, center, alpha, beta))
	return
}
