package dtree

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
)

// Two well separated clusters in 4 dimensions
func clusters(rng *rand.Rand, n int) []Sample {
	samples := []Sample{}
	for i := 0; i < n; i++ {
		label := i % 2
		x := make([]float64, 4)
		for j := range x {
			x[j] = rng.Float64()
			if label == 1 {
				x[j] += 2
			}
		}
		samples = append(samples, Sample{X: x, Label: label})
	}
	return samples
}

func TestBuildSeparable(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	samples := clusters(rng, 200)
	b := NewRandomizedBuilder()
	tree, err := b.Build(rng, samples)
	require.NoError(t, err)

	for _, s := range samples {
		leaf := tree.Classify(s.X)
		require.Equal(t, s.Label, leaf.Label)
		require.LessOrEqual(t, leaf.Positive, leaf.Total)
		require.Positive(t, leaf.Total)
	}
	require.Equal(t, 1, tree.Classify([]float64{3, 3, 3, 3}).Label)
	require.Equal(t, 0, tree.Classify([]float64{0, 0, 0, 0}).Label)

	dt := tree.(*DecisionTree)
	require.GreaterOrEqual(t, dt.Depth(), 1)
	require.GreaterOrEqual(t, dt.NumLeaves(), 2)
}

func TestBuildDeterministic(t *testing.T) {
	samples := clusters(rand.New(rand.NewPCG(5, 5)), 100)
	b := NewRandomizedBuilder()
	t1, err := b.Build(rand.New(rand.NewPCG(7, 7)), samples)
	require.NoError(t, err)
	t2, err := b.Build(rand.New(rand.NewPCG(7, 7)), samples)
	require.NoError(t, err)
	require.Equal(t, t1.(*DecisionTree).Root, t2.(*DecisionTree).Root)

	t3, err := b.Build(rand.New(rand.NewPCG(7, 7)), samples)
	require.NoError(t, err)
	for _, s := range samples {
		require.Equal(t, t1.Classify(s.X), t3.Classify(s.X))
	}
}

func TestBuildLimits(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	// Random labels force the tree to keep splitting
	samples := clusters(rng, 300)
	for i := range samples {
		samples[i].Label = rng.IntN(2)
	}
	b := NewRandomizedBuilder()
	b.MaxDepth = 0
	full, err := b.Build(rng, samples)
	require.NoError(t, err)

	b.MaxDepth = 3
	tree, err := b.Build(rng, samples)
	require.NoError(t, err)
	require.LessOrEqual(t, tree.(*DecisionTree).Depth(), 4)
	require.Less(t, tree.(*DecisionTree).Depth(), full.(*DecisionTree).Depth())

	b.MaxDepth = 0
	b.MinSplit = 1000
	tree, err = b.Build(rng, samples)
	require.NoError(t, err)
	require.Equal(t, 1, tree.(*DecisionTree).NumLeaves())
	leaf := tree.Classify(samples[0].X)
	require.Equal(t, len(samples), leaf.Total)
}

func TestBuildPureAndEmpty(t *testing.T) {
	b := NewRandomizedBuilder()
	_, err := b.Build(rand.New(rand.NewPCG(1, 1)), nil)
	require.ErrorIs(t, err, ErrEmptySample)

	pure := []Sample{{X: []float64{1}, Label: 1}, {X: []float64{2}, Label: 1}}
	tree, err := b.Build(rand.New(rand.NewPCG(1, 1)), pure)
	require.NoError(t, err)
	require.Equal(t, Leaf{Label: 1, Positive: 2, Total: 2}, tree.Classify([]float64{5}))

	mixed := []Sample{{X: []float64{1}, Label: 0}, {X: []float64{1}, Label: 1}, {X: []float64{1}, Label: 0}}
	tree, err = b.Build(rand.New(rand.NewPCG(1, 1)), mixed)
	require.NoError(t, err)
	require.Equal(t, Leaf{Label: 0, Positive: 1, Total: 3}, tree.Classify([]float64{1}))
}
