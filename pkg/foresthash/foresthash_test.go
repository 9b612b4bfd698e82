package foresthash

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/cyclopcam/hypertrack/pkg/dtree"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func makeSamples(rng *rand.Rand, nPos, nNeg, dim int) []Sample {
	samples := []Sample{}
	for i := 0; i < nPos+nNeg; i++ {
		label := 0
		offset := 0.0
		if i < nPos {
			label = 1
			offset = 1
		}
		x := make([]float64, dim)
		for j := range x {
			x[j] = rng.Float64() + offset
		}
		samples = append(samples, Sample{X: x, Label: label})
	}
	return samples
}

func TestRandomSampleBalanced(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	cases := []struct {
		nPos, nNeg, f int
	}{
		{10, 50, 100},
		{60, 100, 100},
		{0, 20, 100},
		{30, 30, 7},
		{5, 5, 0},
	}
	for _, c := range cases {
		samples := makeSamples(rng, c.nPos, c.nNeg, 3)
		picked, err := RandomSample(rng, samples, c.f)
		require.NoError(t, err)
		pos, neg := CountLabels(picked)
		require.Equal(t, pos, neg)
		require.LessOrEqual(t, len(picked), c.f)
		require.Equal(t, min(c.f/2, c.nPos), pos)
	}
}

func TestRandomSampleRequiresNegatives(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	samples := makeSamples(rng, 10, 9, 3)
	_, err := RandomSample(rng, samples, 100)
	require.ErrorIs(t, err, ErrInsufficientNegatives)
}

func TestRandomSampleDoesNotModifyInput(t *testing.T) {
	rng := rand.New(rand.NewPCG(2, 2))
	samples := makeSamples(rng, 10, 10, 2)
	orig := append([]Sample(nil), samples...)
	_, err := RandomSample(rng, samples, 10)
	require.NoError(t, err)
	require.Equal(t, orig, samples)
}

// constTree always lands in the same leaf
type constTree struct {
	leaf dtree.Leaf
}

func (c constTree) Classify(x []float64) dtree.Leaf {
	return c.leaf
}

func TestHashCodeArithmetic(t *testing.T) {
	f := &Forest{Trees: []dtree.Tree{
		constTree{dtree.Leaf{Label: 1, Positive: 3, Total: 4}}, // +0.75
		constTree{dtree.Leaf{Label: 0, Positive: 1, Total: 4}}, // -0.75
		constTree{dtree.Leaf{Label: 1, Positive: 2, Total: 2}}, // +1
		constTree{dtree.Leaf{Label: 0, Positive: 0, Total: 0}}, // empty leaf, ignored
	}}
	require.InDelta(t, 1.0, f.HashCode(nil), 1e-12)

	allNeg := &Forest{Trees: []dtree.Tree{
		constTree{dtree.Leaf{Label: 0, Positive: 0, Total: 5}},
		constTree{dtree.Leaf{Label: 0, Positive: 0, Total: 1}},
	}}
	require.Equal(t, -2.0, allNeg.HashCode(nil))
}

func TestTrainAndEncode(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 3))
	samples := makeSamples(rng, 40, 80, 8)
	opts := Options{Forests: 6, Trees: 5, TreeSample: 60, Workers: 3, Seed: 9}
	log := logs.NewTestingLog(t)

	ens, err := Train(context.Background(), log, dtree.NewRandomizedBuilder(), samples, opts)
	require.NoError(t, err)
	require.Equal(t, 6, ens.Dim())

	vectors := [][]float64{samples[0].X, samples[1].X, samples[2].X}
	codes := ens.Encode(vectors)
	require.Len(t, codes, 3)
	for _, code := range codes {
		require.Len(t, code, 6)
		for _, v := range code {
			require.GreaterOrEqual(t, v, -float64(opts.Trees))
			require.LessOrEqual(t, v, float64(opts.Trees))
		}
	}

	// Positives should mostly hash above negatives
	posMean, negMean := 0.0, 0.0
	for _, s := range samples {
		sum := 0.0
		for _, v := range ens.Code(s.X) {
			sum += v
		}
		if s.Label == 1 {
			posMean += sum / 40
		} else {
			negMean += sum / 80
		}
	}
	require.Greater(t, posMean, negMean)

	// Scheduling does not change the result
	opts.Workers = 1
	serial, err := Train(context.Background(), log, dtree.NewRandomizedBuilder(), samples, opts)
	require.NoError(t, err)
	require.Equal(t, codes, serial.Encode(vectors))
}

func TestEncodeSamples(t *testing.T) {
	rng := rand.New(rand.NewPCG(4, 4))
	samples := makeSamples(rng, 10, 20, 4)
	ens, err := Train(context.Background(), logs.NewTestingLog(t), dtree.NewRandomizedBuilder(), samples, Options{Forests: 3, Trees: 2, Seed: 1})
	require.NoError(t, err)

	pos := [][]float64{samples[0].X, samples[1].X}
	neg := [][]float64{samples[20].X, samples[21].X, samples[22].X}
	set := ens.EncodeSamples(rng, pos, neg)
	require.Len(t, set, 5)
	nPos, nNeg := 0, 0
	for _, s := range set {
		require.Len(t, s.X, 3)
		switch s.Label {
		case 1:
			nPos++
		case -1:
			nNeg++
		default:
			t.Fatalf("unexpected label %v", s.Label)
		}
	}
	require.Equal(t, 2, nPos)
	require.Equal(t, 3, nNeg)
}

type failingBuilder struct{}

var errBuild = errors.New("build failed")

func (failingBuilder) Build(rng *rand.Rand, samples []dtree.Sample) (dtree.Tree, error) {
	return nil, errBuild
}

func TestTrainErrors(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 5))
	log := logs.NewTestingLog(t)

	_, err := Train(context.Background(), log, dtree.NewRandomizedBuilder(), makeSamples(rng, 20, 10, 2), DefaultOptions())
	require.ErrorIs(t, err, ErrInsufficientNegatives)

	_, err = Train(context.Background(), log, failingBuilder{}, makeSamples(rng, 10, 10, 2), Options{Forests: 4, Trees: 2})
	require.ErrorIs(t, err, errBuild)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Train(ctx, log, dtree.NewRandomizedBuilder(), makeSamples(rng, 10, 10, 2), Options{Forests: 4, Trees: 2})
	require.ErrorIs(t, err, context.Canceled)
}
