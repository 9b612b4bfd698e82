package stats

import (
	"math"

	"golang.org/x/exp/constraints"
)

type Number interface {
	constraints.Float | constraints.Integer
}

// Returns (mean, variance) of the given samples.
func MeanVar[T Number](samples []T) (float64, float64) {
	mean := Mean(samples)
	variance := Variance(samples, mean)
	return mean, variance
}

// Returns the mean of the given samples, or zero if there are no samples.
func Mean[T Number](samples []T) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range samples {
		sum += float64(v)
	}
	return sum / float64(len(samples))
}

// Returns the variance of the given samples.
func Variance[T Number](samples []T, mean float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range samples {
		diff := float64(v) - mean
		sum += diff * diff
	}
	return sum / float64(len(samples))
}

// Returns the largest absolute value in v, or zero if v is empty.
func MaxAbs(v []float64) float64 {
	m := 0.0
	for _, x := range v {
		m = max(m, math.Abs(x))
	}
	return m
}

// NormalizeMaxAbs divides v in place by its largest absolute value, so that all
// values lie in [-1, 1]. An all-zero vector is divided by 1 (i.e. left as is).
func NormalizeMaxAbs(v []float64) {
	m := MaxAbs(v)
	if m == 0 {
		m = 1
	}
	for i := range v {
		v[i] /= m
	}
}

// Returns the index of the first maximum of v, or -1 if v is empty.
func ArgMax(v []float64) int {
	best := -1
	for i, x := range v {
		if best == -1 || x > v[best] {
			best = i
		}
	}
	return best
}

func Clamp[T constraints.Ordered](v, min, max T) T {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
