// Package foresthash encodes patches into real-valued fingerprints ("hash codes").
//
// A Forest of M trees produces one coordinate of the code: the summed positive leaf
// posteriors of trees that vote positive, minus the summed negative leaf posteriors of
// trees that vote negative. An Ensemble of L forests produces an L dimensional code.
// Codes are continuous margins in [-M, M], not bits.
package foresthash

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime"
	"sync/atomic"

	"github.com/cyclopcam/hypertrack/pkg/dtree"
	"github.com/cyclopcam/logs"
	"golang.org/x/sync/errgroup"
)

// DefaultTreeSample is the size of the balanced subsample that each tree is built from
const DefaultTreeSample = 1000

// Forest is an immutable, ordered collection of trees
type Forest struct {
	Trees []dtree.Tree
}

// BuildForest builds m trees, each on a fresh balanced subsample of at most sampleSize rows
func BuildForest(rng *rand.Rand, builder dtree.Builder, samples []Sample, m, sampleSize int) (*Forest, error) {
	forest := &Forest{
		Trees: make([]dtree.Tree, 0, m),
	}
	for i := 0; i < m; i++ {
		subset, err := RandomSample(rng, samples, sampleSize)
		if err != nil {
			return nil, err
		}
		tree, err := builder.Build(rng, subset)
		if err != nil {
			return nil, fmt.Errorf("Tree %v: %w", i, err)
		}
		forest.Trees = append(forest.Trees, tree)
	}
	return forest, nil
}

// HashCode returns p_sum - n_sum over all trees
func (f *Forest) HashCode(x []float64) float64 {
	pSum := 0.0
	nSum := 0.0
	for _, tree := range f.Trees {
		leaf := tree.Classify(x)
		if leaf.Total == 0 {
			continue
		}
		if leaf.Label == 1 {
			pSum += float64(leaf.Positive) / float64(leaf.Total)
		} else {
			nSum += float64(leaf.Total-leaf.Positive) / float64(leaf.Total)
		}
	}
	return pSum - nSum
}

// Ensemble is the full bank of forests. It is replaced wholesale on retrain.
type Ensemble struct {
	Forests []*Forest
}

// Dim is the dimensionality of the hash code
func (e *Ensemble) Dim() int {
	return len(e.Forests)
}

// Code returns the hash code of a single vector
func (e *Ensemble) Code(x []float64) []float64 {
	code := make([]float64, len(e.Forests))
	for j, forest := range e.Forests {
		code[j] = forest.HashCode(x)
	}
	return code
}

// Encode returns the N x L code matrix of the given vectors
func (e *Ensemble) Encode(vectors [][]float64) [][]float64 {
	codes := make([][]float64, len(vectors))
	for i, x := range vectors {
		codes[i] = e.Code(x)
	}
	return codes
}

// EncodeSamples hash-codes positive and negative patches into a shuffled
// classifier training set, labeled +1 and -1.
func (e *Ensemble) EncodeSamples(rng *rand.Rand, pos, neg [][]float64) []Sample {
	return labeled(rng, e.Encode(pos), e.Encode(neg), 1, -1)
}

type Options struct {
	Forests    int    // L, the code dimensionality
	Trees      int    // M, trees per forest
	TreeSample int    // Balanced subsample size per tree
	Workers    int    // Forests built concurrently. 0 = NumCPU
	Seed       uint64 // Forest i draws from rand.NewPCG(Seed, i)
}

func DefaultOptions() Options {
	return Options{
		Forests:    100,
		Trees:      10,
		TreeSample: DefaultTreeSample,
		Seed:       1,
	}
}

// Train builds a new Ensemble of opts.Forests forests.
// Forests are built concurrently, but each has its own random stream, so the
// result does not depend on scheduling. If any forest fails, no Ensemble is returned.
func Train(ctx context.Context, log logs.Log, builder dtree.Builder, samples []Sample, opts Options) (*Ensemble, error) {
	nPos, nNeg := CountLabels(samples)
	if nNeg < nPos {
		return nil, fmt.Errorf("%w (%v positive, %v negative)", ErrInsufficientNegatives, nPos, nNeg)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	treeSample := opts.TreeSample
	if treeSample <= 0 {
		treeSample = DefaultTreeSample
	}

	forests := make([]*Forest, opts.Forests)
	var done atomic.Int32
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < opts.Forests; i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(opts.Seed, uint64(i)))
			forest, err := BuildForest(rng, builder, samples, opts.Trees, treeSample)
			if err != nil {
				return fmt.Errorf("Forest %v: %w", i, err)
			}
			forests[i] = forest
			if n := done.Add(1); n%25 == 0 {
				log.Debugf("Built %v/%v forests", n, opts.Forests)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &Ensemble{Forests: forests}, nil
}
