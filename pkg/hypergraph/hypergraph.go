// Package hypergraph refines per-candidate confidence by diffusing it over a hypergraph.
//
// Candidates are vertices and hash dimensions are hyperedges. A candidate belongs to a
// hyperedge with weight max(code, 0). The random walk operator
//
//	P = Dv^-1 H De^-1 H^T
//
// moves mass between candidates that respond to the same hash dimensions, and the
// scores are propagated with restart toward the original classifier scores:
//
//	curr = alpha P curr + (1 - alpha) scores
package hypergraph

import (
	"errors"
	"fmt"
	"math"

	"github.com/cyclopcam/hypertrack/pkg/frame"
	"github.com/cyclopcam/hypertrack/pkg/stats"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrEmpty     = errors.New("No candidates to propagate")
	ErrShape     = errors.New("Positions, codes and scores disagree in length")
	ErrAlpha     = errors.New("Alpha must lie in [0, 1)")
	ErrNonFinite = errors.New("Propagated scores are not finite")
)

type Options struct {
	Iterations int     // tau
	Alpha      float64 // 1 - restart probability
}

func DefaultOptions() Options {
	return Options{
		Iterations: 50,
		Alpha:      0.99,
	}
}

type Result struct {
	Scores   []float64   // Propagated scores, one per candidate
	Best     int         // Index of the highest propagated score (first on ties)
	Center   frame.Point // positions[Best]
	Residual float64     // Max absolute change made by the final iteration
}

// Incidence builds H from the hash codes, clipping negative responses to zero
func Incidence(codes [][]float64) *mat.Dense {
	n, l := len(codes), len(codes[0])
	H := mat.NewDense(n, l, nil)
	for i, code := range codes {
		for j, v := range code {
			if v > 0 {
				H.Set(i, j, v)
			}
		}
	}
	return H
}

// Degrees returns the vertex (row) and hyperedge (column) degrees of H.
// Zero degrees are replaced by 1, so that their inverses exist.
func Degrees(H *mat.Dense) (dv, de []float64) {
	n, l := H.Dims()
	dv = make([]float64, n)
	de = make([]float64, l)
	for i := 0; i < n; i++ {
		for j := 0; j < l; j++ {
			v := H.At(i, j)
			dv[i] += v
			de[j] += v
		}
	}
	for i := range dv {
		if dv[i] == 0 {
			dv[i] = 1
		}
	}
	for j := range de {
		if de[j] == 0 {
			de[j] = 1
		}
	}
	return
}

// Transition builds P = Dv^-1 H De^-1 H^T.
// Dv and De are diagonal, so their inverses are applied as reciprocal scaling.
// Rows of vertices with at least one positive response sum to 1.
func Transition(codes [][]float64) *mat.Dense {
	H := Incidence(codes)
	dv, de := Degrees(H)
	n, _ := H.Dims()
	scaled := mat.DenseCopyOf(H)
	scaled.Apply(func(i, j int, v float64) float64 {
		return v / (dv[i] * de[j])
	}, scaled)
	P := mat.NewDense(n, n, nil)
	P.Mul(scaled, H.T())
	return P
}

func validate(positions []frame.Point, codes [][]float64, scores []float64, opts Options) error {
	if len(scores) == 0 {
		return ErrEmpty
	}
	if len(positions) != len(scores) || len(codes) != len(scores) {
		return fmt.Errorf("%w (%v positions, %v codes, %v scores)", ErrShape, len(positions), len(codes), len(scores))
	}
	l := len(codes[0])
	if l == 0 {
		return fmt.Errorf("%w (empty hash code)", ErrShape)
	}
	for _, c := range codes {
		if len(c) != l {
			return fmt.Errorf("%w (hash codes of different lengths)", ErrShape)
		}
	}
	if opts.Alpha < 0 || opts.Alpha >= 1 || math.IsNaN(opts.Alpha) {
		return fmt.Errorf("%w (got %v)", ErrAlpha, opts.Alpha)
	}
	return nil
}

// Propagate diffuses scores over the hypergraph defined by codes, and picks the best candidate.
// It has no hidden state or randomness: the same inputs always give the same Result.
func Propagate(positions []frame.Point, codes [][]float64, scores []float64, opts Options) (*Result, error) {
	if err := validate(positions, codes, scores, opts); err != nil {
		return nil, err
	}
	P := Transition(codes)
	n := len(scores)
	s := mat.NewVecDense(n, append([]float64(nil), scores...))
	curr := mat.VecDenseCopyOf(s)
	next := mat.NewVecDense(n, nil)
	residual := 0.0
	for it := 0; it < opts.Iterations; it++ {
		next.MulVec(P, curr)
		next.ScaleVec(opts.Alpha, next)
		next.AddScaledVec(next, 1-opts.Alpha, s)
		residual = 0
		for i := 0; i < n; i++ {
			residual = max(residual, math.Abs(next.AtVec(i)-curr.AtVec(i)))
		}
		curr, next = next, curr
	}

	out := make([]float64, n)
	for i := range out {
		out[i] = curr.AtVec(i)
		if math.IsNaN(out[i]) || math.IsInf(out[i], 0) {
			return nil, ErrNonFinite
		}
	}
	best := stats.ArgMax(out)
	return &Result{
		Scores:   out,
		Best:     best,
		Center:   positions[best],
		Residual: residual,
	}, nil
}

// FixedPoint solves (I - alpha P) x = (1 - alpha) scores directly.
// This is the limit of Propagate as the number of iterations grows.
// It fails if the system is singular or too ill-conditioned to trust.
func FixedPoint(codes [][]float64, scores []float64, alpha float64) ([]float64, error) {
	n := len(scores)
	if n == 0 {
		return nil, ErrEmpty
	}
	if len(codes) != n {
		return nil, ErrShape
	}
	if alpha < 0 || alpha >= 1 {
		return nil, ErrAlpha
	}
	P := Transition(codes)
	A := mat.NewDense(n, n, nil)
	A.Scale(-alpha, P)
	for i := 0; i < n; i++ {
		A.Set(i, i, A.At(i, i)+1)
	}
	b := mat.NewVecDense(n, nil)
	b.ScaleVec(1-alpha, mat.NewVecDense(n, append([]float64(nil), scores...)))
	var x mat.VecDense
	if err := x.SolveVec(A, b); err != nil {
		return nil, fmt.Errorf("Failed to solve for fixed point: %w", err)
	}
	return x.RawVector().Data, nil
}
