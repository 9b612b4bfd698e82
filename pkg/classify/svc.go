package classify

import (
	"math"
	"math/rand/v2"
)

// SVC is a kernel support vector classifier with an RBF kernel,
// trained with the simplified SMO algorithm.
type SVC struct {
	C         float64
	Gamma     float64 // 0 = 1/nFeatures
	Tol       float64
	MaxPasses int // Stop after this many consecutive passes without a change
	MaxIter   int // Hard limit on passes over the data
	Seed      uint64

	Support [][]float64 // Support vectors
	Coef    []float64   // alpha_i * y_i of each support vector
	B       float64
	gamma   float64
}

func NewSVC(seed uint64) *SVC {
	return &SVC{C: 1, Tol: 1e-3, MaxPasses: 10, MaxIter: 1000, Seed: seed}
}

func (m *SVC) Name() string { return "svc" }

func (m *SVC) kernel(a, b []float64) float64 {
	d := 0.0
	for i := range a {
		t := a[i] - b[i]
		d += t * t
	}
	return math.Exp(-m.gamma * d)
}

func (m *SVC) Decision(x []float64) float64 {
	f := m.B
	for i, sv := range m.Support {
		f += m.Coef[i] * m.kernel(sv, x)
	}
	return f
}

func (m *SVC) Fit(X [][]float64, y []float64) error {
	n := len(X)
	m.Support = nil
	m.Coef = nil
	m.B = 0
	m.gamma = m.Gamma
	if m.gamma <= 0 {
		m.gamma = 1 / float64(max(1, dims(X)))
	}
	if n == 0 {
		return nil
	}

	K := make([][]float64, n)
	for i := range K {
		K[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		K[i][i] = 1
		for j := i + 1; j < n; j++ {
			k := m.kernel(X[i], X[j])
			K[i][j] = k
			K[j][i] = k
		}
	}

	alpha := make([]float64, n)
	b := 0.0
	f := func(i int) float64 {
		s := b
		for k := 0; k < n; k++ {
			if alpha[k] != 0 {
				s += alpha[k] * y[k] * K[k][i]
			}
		}
		return s
	}

	rng := rand.New(rand.NewPCG(m.Seed, 5))
	passes := 0
	for iter := 0; passes < m.MaxPasses && iter < m.MaxIter && n > 1; iter++ {
		changed := 0
		for i := 0; i < n; i++ {
			Ei := f(i) - y[i]
			if !((y[i]*Ei < -m.Tol && alpha[i] < m.C) || (y[i]*Ei > m.Tol && alpha[i] > 0)) {
				continue
			}
			j := rng.IntN(n - 1)
			if j >= i {
				j++
			}
			Ej := f(j) - y[j]
			ai, aj := alpha[i], alpha[j]
			var lo, hi float64
			if y[i] != y[j] {
				lo = max(0, aj-ai)
				hi = min(m.C, m.C+aj-ai)
			} else {
				lo = max(0, ai+aj-m.C)
				hi = min(m.C, ai+aj)
			}
			if lo == hi {
				continue
			}
			eta := 2*K[i][j] - K[i][i] - K[j][j]
			if eta >= 0 {
				continue
			}
			newAj := aj - y[j]*(Ei-Ej)/eta
			newAj = min(hi, max(lo, newAj))
			if math.Abs(newAj-aj) < 1e-5 {
				continue
			}
			newAi := ai + y[i]*y[j]*(aj-newAj)
			b1 := b - Ei - y[i]*(newAi-ai)*K[i][i] - y[j]*(newAj-aj)*K[i][j]
			b2 := b - Ej - y[i]*(newAi-ai)*K[i][j] - y[j]*(newAj-aj)*K[j][j]
			switch {
			case newAi > 0 && newAi < m.C:
				b = b1
			case newAj > 0 && newAj < m.C:
				b = b2
			default:
				b = (b1 + b2) / 2
			}
			alpha[i] = newAi
			alpha[j] = newAj
			changed++
		}
		if changed == 0 {
			passes++
		} else {
			passes = 0
		}
	}

	for i := range alpha {
		if alpha[i] > 0 {
			m.Support = append(m.Support, X[i])
			m.Coef = append(m.Coef, alpha[i]*y[i])
		}
	}
	m.B = b
	return nil
}
