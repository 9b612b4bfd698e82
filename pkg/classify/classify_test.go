package classify

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/cyclopcam/hypertrack/pkg/dtree"
	"github.com/cyclopcam/hypertrack/pkg/foresthash"
	"github.com/cyclopcam/hypertrack/pkg/frame"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

// Linearly separable codes: positives around +1, negatives around -1
func separable(rng *rand.Rand, nPos, nNeg, dim int) []foresthash.Sample {
	samples := []foresthash.Sample{}
	for i := 0; i < nPos+nNeg; i++ {
		label := -1
		if i < nPos {
			label = 1
		}
		x := make([]float64, dim)
		for j := range x {
			x[j] = float64(label) + 0.6*(rng.Float64()-0.5)
		}
		samples = append(samples, foresthash.Sample{X: x, Label: label})
	}
	return samples
}

func split(samples []foresthash.Sample) ([][]float64, []float64) {
	X := [][]float64{}
	y := []float64{}
	for _, s := range samples {
		X = append(X, s.X)
		y = append(y, float64(s.Label))
	}
	return X, y
}

func TestModelsSeparate(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	X, y := split(separable(rng, 30, 60, 5))
	for _, m := range NewModels(7) {
		require.NoError(t, m.Fit(X, y), m.Name())
		for i := range X {
			require.Equal(t, y[i] > 0, m.Decision(X[i]) > 0, "%v sample %v", m.Name(), i)
		}
	}
}

func TestLogisticOptimum(t *testing.T) {
	rng := rand.New(rand.NewPCG(4, 4))
	// Overlapping classes, so the regularized optimum is finite
	X := [][]float64{}
	y := []float64{}
	for i := 0; i < 200; i++ {
		label := 1.0
		if i%2 == 0 {
			label = -1
		}
		X = append(X, []float64{0.5*label + rng.NormFloat64(), rng.NormFloat64(), 0.25*label + rng.NormFloat64()})
		y = append(y, label)
	}
	m := NewLogistic()
	require.Equal(t, 1.0, m.C)
	require.Equal(t, 100, m.MaxIter)
	require.Equal(t, 1e-4, m.Tol)
	require.NoError(t, m.Fit(X, y))

	// Gradient of 0.5/(C n)*|w|^2 + mean(logloss) at the fitted parameters
	n := float64(len(X))
	grad := make([]float64, 4)
	for k := 0; k < 3; k++ {
		grad[k] = m.W[k] / (m.C * n)
	}
	for i, x := range X {
		z := m.B
		for k := range x {
			z += m.W[k] * x[k]
		}
		g := -y[i] * sigmoid(-y[i]*z) / n
		for k := range x {
			grad[k] += g * x[k]
		}
		grad[3] += g
	}
	for k, g := range grad {
		require.Less(t, math.Abs(g), 1e-3, "gradient %v", k)
	}
	require.Positive(t, m.W[0])
}

func TestModelsDeterministic(t *testing.T) {
	rng := rand.New(rand.NewPCG(2, 2))
	X, y := split(separable(rng, 20, 20, 3))
	a := NewModels(3)
	b := NewModels(3)
	for i := range a {
		require.NoError(t, a[i].Fit(X, y))
		require.NoError(t, b[i].Fit(X, y))
		require.Equal(t, Decisions(a[i], X), Decisions(b[i], X), a[i].Name())
	}
}

func TestSVCKernelSeparates(t *testing.T) {
	// XOR is not linearly separable, but the RBF kernel handles it
	X := [][]float64{{0, 0}, {1, 1}, {0, 1}, {1, 0}}
	y := []float64{-1, -1, 1, 1}
	svc := NewSVC(1)
	svc.Gamma = 5
	svc.C = 100
	require.NoError(t, svc.Fit(X, y))
	for i := range X {
		require.Equal(t, y[i] > 0, svc.Decision(X[i]) > 0, "sample %v", i)
	}
	require.NotEmpty(t, svc.Support)
}

func TestTrainEnsemble(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 3))
	samples := separable(rng, 20, 40, 4)
	ens, err := Train(context.Background(), samples, 1)
	require.NoError(t, err)
	require.Len(t, ens.Models, 5)

	names := map[string]bool{}
	for _, m := range ens.Models {
		names[m.Name()] = true
	}
	require.Len(t, names, 5)

	X, y := split(samples)
	scores := ens.Score(X)
	require.Len(t, scores, len(X))
	for i, s := range scores {
		require.GreaterOrEqual(t, s, -1.0)
		require.LessOrEqual(t, s, 1.0)
		require.Equal(t, y[i] > 0, s > 0)
	}

	// Full replacement: a new Train never touches the old ensemble
	again, err := Train(context.Background(), samples, 1)
	require.NoError(t, err)
	require.NotSame(t, ens.Models[0], again.Models[0])
}

func TestTrainErrors(t *testing.T) {
	rng := rand.New(rand.NewPCG(4, 4))
	_, err := Train(context.Background(), separable(rng, 10, 0, 2), 1)
	require.ErrorIs(t, err, ErrSingleClass)

	bad := separable(rng, 2, 2, 2)
	bad[0].Label = 0
	_, err = Train(context.Background(), bad, 1)
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Train(ctx, separable(rng, 5, 5, 2), 1)
	require.ErrorIs(t, err, context.Canceled)
}

// fixedModel returns x[0] * scale
type fixedModel struct {
	scale float64
}

func (f fixedModel) Name() string                         { return "fixed" }
func (f fixedModel) Fit(X [][]float64, y []float64) error { return nil }
func (f fixedModel) Decision(x []float64) float64         { return x[0] * f.scale }

func TestScoreNormalization(t *testing.T) {
	ens := &Ensemble{Models: []Model{fixedModel{1}, fixedModel{100}, fixedModel{0}}}
	codes := [][]float64{{1}, {-2}, {4}}
	scores := ens.Score(codes)
	// Each member normalized by its own max abs (4 and 400), the zero member contributes 0
	require.InDeltaSlice(t, []float64{0.5 / 3, -1.0 / 3, 2.0 / 3}, scores, 1e-12)
	require.Empty(t, ens.Score(nil))
}

func TestConfidenceScores(t *testing.T) {
	pix := make([]float64, 64*64)
	for i := range pix {
		pix[i] = float64(1 + i%17)
	}
	f, err := frame.New(64, 64, pix)
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(5, 5))
	samples := []foresthash.Sample{}
	for i := 0; i < 40; i++ {
		x := make([]float64, 64)
		for j := range x {
			x[j] = rng.Float64()
		}
		samples = append(samples, foresthash.Sample{X: x, Label: i % 2})
	}
	hash, err := foresthash.Train(context.Background(), logs.NewTestingLog(t), dtree.NewRandomizedBuilder(), samples, foresthash.Options{Forests: 4, Trees: 3, Seed: 1})
	require.NoError(t, err)
	ens := &Ensemble{Models: []Model{fixedModel{1}}}

	scored, err := ConfidenceScores(ens, hash, f, Region{Center: frame.Point{X: 32, Y: 32}, PatchSize: 8, Radius: 8, Stride: 4})
	require.NoError(t, err)
	require.Len(t, scored.Positions, 16)
	require.Len(t, scored.Codes, 16)
	require.Len(t, scored.Scores, 16)
	require.Len(t, scored.Codes[0], 4)

	_, err = ConfidenceScores(ens, hash, f, Region{Center: frame.Point{X: 1000, Y: 1000}, PatchSize: 8, Radius: 8, Stride: 4})
	require.ErrorIs(t, err, ErrNoCandidates)
}
