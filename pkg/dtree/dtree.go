// Package dtree is the tree-builder used by the forest hash.
//
// The hash only relies on the Builder and Tree interfaces: build a tree from a
// labeled sample, and classify a point, returning the statistics of the leaf it lands in.
// RandomizedBuilder is the default implementation. It grows Gini classification trees
// with github.com/wlattner/rf/tree, considering a random subset of features at each node.
package dtree

import (
	"errors"
	"math"
	"math/rand/v2"

	"github.com/wlattner/rf/tree"
)

var ErrEmptySample = errors.New("Cannot build a tree from an empty sample")

// Class names handed to the tree. The class id is the index, so ClassCounts[classPositive]
// is the number of positive samples in a node.
var classes = []string{"0", "1"}

const (
	classNegative = 0
	classPositive = 1
)

// Sample is one labeled example. Label 1 is positive, anything else is negative.
type Sample struct {
	X     []float64
	Label int
}

// Leaf is the answer of a tree for a single point
type Leaf struct {
	Label    int // Predicted label (1 or 0)
	Positive int // Number of positive training samples in the leaf
	Total    int // Number of training samples in the leaf
}

type Tree interface {
	Classify(x []float64) Leaf
}

// Builder grows a tree from a labeled sample.
// The same rng state must produce the same tree.
type Builder interface {
	Build(rng *rand.Rand, samples []Sample) (Tree, error)
}

// DecisionTree is a fitted binary tree. Points with x[SplitVar] <= SplitVal go left.
type DecisionTree struct {
	Root *tree.Node
}

func positives(n *tree.Node) int {
	if len(n.ClassCounts) <= classPositive {
		return 0
	}
	return n.ClassCounts[classPositive]
}

func (t *DecisionTree) Classify(x []float64) Leaf {
	n := t.Root
	for !n.Leaf {
		if x[n.SplitVar] <= n.SplitVal {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	pos := positives(n)
	label := 0
	if 2*pos >= n.Samples {
		label = 1
	}
	return Leaf{
		Label:    label,
		Positive: pos,
		Total:    n.Samples,
	}
}

// Depth returns the number of edges on the longest root to leaf path
func (t *DecisionTree) Depth() int {
	var depth func(n *tree.Node) int
	depth = func(n *tree.Node) int {
		if n.Leaf {
			return 0
		}
		return 1 + max(depth(n.Left), depth(n.Right))
	}
	return depth(t.Root)
}

// NumLeaves returns the number of leaves
func (t *DecisionTree) NumLeaves() int {
	var count func(n *tree.Node) int
	count = func(n *tree.Node) int {
		if n.Leaf {
			return 1
		}
		return count(n.Left) + count(n.Right)
	}
	return count(t.Root)
}

// RandomizedBuilder builds DecisionTrees
type RandomizedBuilder struct {
	MaxDepth    int // Maximum depth of the tree. 0 = unlimited
	MinSplit    int // Nodes with fewer samples than this become leaves
	MinLeaf     int // Minimum number of samples on each side of a split
	MaxFeatures int // Features considered per node. 0 = sqrt(nFeatures)
}

func NewRandomizedBuilder() *RandomizedBuilder {
	return &RandomizedBuilder{
		MaxDepth: 10,
		MinSplit: 2,
		MinLeaf:  1,
	}
}

// Build fits a tree on all of samples. The tree's own random source is seeded from rng.
func (b *RandomizedBuilder) Build(rng *rand.Rand, samples []Sample) (Tree, error) {
	if len(samples) == 0 {
		return nil, ErrEmptySample
	}
	nFeatures := len(samples[0].X)
	maxFeatures := b.MaxFeatures
	if maxFeatures <= 0 || maxFeatures > nFeatures {
		maxFeatures = max(1, int(math.Sqrt(float64(nFeatures))))
	}
	maxDepth := b.MaxDepth
	if maxDepth <= 0 {
		maxDepth = -1
	}

	X := make([][]float64, len(samples))
	y := make([]int, len(samples))
	inx := make([]int, len(samples))
	for i, s := range samples {
		X[i] = s.X
		y[i] = classNegative
		if s.Label == 1 {
			y[i] = classPositive
		}
		inx[i] = i
	}

	clf := tree.NewClassifier(tree.MinSplit(b.MinSplit), tree.MinLeaf(b.MinLeaf),
		tree.MaxDepth(maxDepth), tree.Impurity(tree.Gini),
		tree.MaxFeatures(maxFeatures), tree.RandState(int64(rng.Uint64()>>1)))
	clf.FitInx(X, y, inx, classes)
	return &DecisionTree{Root: clf.Root}, nil
}
