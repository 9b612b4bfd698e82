// Package classify scores hash codes with an ensemble of five binary classifiers.
//
// Every member is fitted independently on the same (code, +1/-1) dataset. Scores from
// each member are divided by that member's maximum absolute score, and then averaged.
package classify

import (
	"context"
	"errors"
	"fmt"

	"github.com/cyclopcam/hypertrack/pkg/foresthash"
	"github.com/cyclopcam/hypertrack/pkg/frame"
	"github.com/cyclopcam/hypertrack/pkg/patch"
	"github.com/cyclopcam/hypertrack/pkg/stats"
	"golang.org/x/sync/errgroup"
)

var ErrSingleClass = errors.New("Classifier training data must contain both classes")
var ErrNoCandidates = patch.ErrNoCandidates

// Model is a binary classifier with labels +1 and -1.
// Decision is positive for the +1 class.
type Model interface {
	Name() string
	Fit(X [][]float64, y []float64) error
	Decision(x []float64) float64
}

// Ensemble is the fixed set of five fitted models.
// It is never updated in place: Train always returns a new Ensemble.
type Ensemble struct {
	Models []Model
}

// NewModels returns fresh, unfitted instances of the five ensemble members
func NewModels(seed uint64) []Model {
	return []Model{
		NewPassiveAggressive(seed),
		NewLogistic(),
		NewPerceptron(seed),
		NewSGD(seed),
		NewSVC(seed),
	}
}

// Train fits all five models on the given samples. Labels must be +1 or -1.
func Train(ctx context.Context, samples []foresthash.Sample, seed uint64) (*Ensemble, error) {
	X := make([][]float64, len(samples))
	y := make([]float64, len(samples))
	nPos, nNeg := 0, 0
	for i, s := range samples {
		X[i] = s.X
		switch s.Label {
		case 1:
			y[i] = 1
			nPos++
		case -1:
			y[i] = -1
			nNeg++
		default:
			return nil, fmt.Errorf("Invalid classifier label %v. Must be +1 or -1", s.Label)
		}
	}
	if nPos == 0 || nNeg == 0 {
		return nil, fmt.Errorf("%w (%v positive, %v negative)", ErrSingleClass, nPos, nNeg)
	}

	models := NewModels(seed)
	g, ctx := errgroup.WithContext(ctx)
	for _, model := range models {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := model.Fit(X, y); err != nil {
				return fmt.Errorf("Failed to fit %v: %w", model.Name(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &Ensemble{Models: models}, nil
}

// Decisions returns the raw decision values of one model over all codes
func Decisions(m Model, codes [][]float64) []float64 {
	d := make([]float64, len(codes))
	for i, c := range codes {
		d[i] = m.Decision(c)
	}
	return d
}

// Score returns the fused confidence of every code.
// An all-zero result means that no member produced any signal.
func (e *Ensemble) Score(codes [][]float64) []float64 {
	scores := make([]float64, len(codes))
	if len(codes) == 0 || len(e.Models) == 0 {
		return scores
	}
	for _, m := range e.Models {
		d := Decisions(m, codes)
		stats.NormalizeMaxAbs(d)
		for i := range scores {
			scores[i] += d[i]
		}
	}
	for i := range scores {
		scores[i] /= float64(len(e.Models))
	}
	return scores
}

// Scored holds candidate positions, their hash codes, and their fused scores
type Scored struct {
	Positions []frame.Point
	Codes     [][]float64
	Scores    []float64
}

// Region describes where candidates are sampled
type Region struct {
	Center    frame.Point
	PatchSize int
	Radius    int
	Stride    int
}

// ConfidenceScores extracts candidates around the region center, hash-codes them, and scores them.
// Returns ErrNoCandidates if every candidate window falls outside the frame.
func ConfidenceScores(e *Ensemble, hash *foresthash.Ensemble, f *frame.Frame, r Region) (*Scored, error) {
	candidates := patch.Extract(f, r.Center, r.PatchSize, r.Radius, r.Stride)
	if candidates.Len() == 0 {
		return nil, ErrNoCandidates
	}
	codes := hash.Encode(candidates.Vectors)
	return &Scored{
		Positions: candidates.Positions,
		Codes:     codes,
		Scores:    e.Score(codes),
	}, nil
}
