package foresthash

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/cyclopcam/hypertrack/pkg/dtree"
)

// Sample is a labeled row of a training matrix.
// Forest training uses labels 1/0, classifier training uses +1/-1.
type Sample = dtree.Sample

var ErrInsufficientNegatives = errors.New("Fewer negative than positive examples")

// TrainingSet labels positives 1 and negatives 0, and shuffles the result
func TrainingSet(rng *rand.Rand, pos, neg [][]float64) []Sample {
	return labeled(rng, pos, neg, 1, 0)
}

func labeled(rng *rand.Rand, pos, neg [][]float64, posLabel, negLabel int) []Sample {
	samples := make([]Sample, 0, len(pos)+len(neg))
	for _, x := range pos {
		samples = append(samples, Sample{X: x, Label: posLabel})
	}
	for _, x := range neg {
		samples = append(samples, Sample{X: x, Label: negLabel})
	}
	rng.Shuffle(len(samples), func(i, j int) {
		samples[i], samples[j] = samples[j], samples[i]
	})
	return samples
}

// CountLabels returns the number of positive (label 1) and negative samples
func CountLabels(samples []Sample) (pos, neg int) {
	for _, s := range samples {
		if s.Label == 1 {
			pos++
		} else {
			neg++
		}
	}
	return
}

// RandomSample draws a label-balanced subsample of at most f rows.
// Each class contributes min(f/2, #positives) rows, picked in random order.
// The input must hold at least as many negatives as positives.
func RandomSample(rng *rand.Rand, samples []Sample, f int) ([]Sample, error) {
	nPos, nNeg := CountLabels(samples)
	if nNeg < nPos {
		return nil, fmt.Errorf("%w (%v positive, %v negative)", ErrInsufficientNegatives, nPos, nNeg)
	}
	wantPos := min(f/2, nPos)
	wantNeg := wantPos

	order := rng.Perm(len(samples))
	picked := make([]Sample, 0, wantPos+wantNeg)
	for _, i := range order {
		if wantPos == 0 && wantNeg == 0 {
			break
		}
		s := samples[i]
		if s.Label == 1 {
			if wantPos == 0 {
				continue
			}
			wantPos--
		} else {
			if wantNeg == 0 {
				continue
			}
			wantNeg--
		}
		picked = append(picked, s)
	}
	return picked, nil
}
