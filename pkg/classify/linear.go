package classify

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// linear is a hyperplane w.x + b
type linear struct {
	W []float64
	B float64
}

func (l *linear) Decision(x []float64) float64 {
	return floats.Dot(l.W, x) + l.B
}

func (l *linear) reset(dim int) {
	l.W = make([]float64, dim)
	l.B = 0
}

// stopper ends an epoch loop once the summed epoch loss has failed to improve by at
// least tol*n for 5 consecutive epochs.
type stopper struct {
	tol       float64
	best      float64
	noImprove int
}

func newStopper(tol float64) *stopper {
	return &stopper{tol: tol, best: math.Inf(1)}
}

func (s *stopper) done(epochLoss float64, n int) bool {
	if s.tol <= 0 {
		return false
	}
	if epochLoss > s.best-s.tol*float64(n) {
		s.noImprove++
	} else {
		s.noImprove = 0
	}
	s.best = min(s.best, epochLoss)
	return s.noImprove >= 5
}

func dims(X [][]float64) int {
	if len(X) == 0 {
		return 0
	}
	return len(X[0])
}

// PassiveAggressive is the PA-II online classifier (squared hinge)
type PassiveAggressive struct {
	linear
	C       float64
	MaxIter int
	Tol     float64
	Seed    uint64
}

func NewPassiveAggressive(seed uint64) *PassiveAggressive {
	return &PassiveAggressive{C: 1, MaxIter: 1000, Tol: 1e-4, Seed: seed}
}

func (m *PassiveAggressive) Name() string { return "passive-aggressive" }

func (m *PassiveAggressive) Fit(X [][]float64, y []float64) error {
	m.reset(dims(X))
	rng := rand.New(rand.NewPCG(m.Seed, 1))
	stop := newStopper(m.Tol)
	for epoch := 0; epoch < m.MaxIter; epoch++ {
		sumLoss := 0.0
		for _, i := range rng.Perm(len(X)) {
			loss := max(0, 1-y[i]*m.Decision(X[i]))
			sumLoss += loss
			if loss == 0 {
				continue
			}
			sqNorm := floats.Dot(X[i], X[i])
			step := loss / (sqNorm + 0.5/m.C)
			floats.AddScaled(m.W, step*y[i], X[i])
			m.B += step * y[i]
		}
		if stop.done(sumLoss, len(X)) {
			break
		}
	}
	return nil
}

// Perceptron is the classic mistake-driven perceptron
type Perceptron struct {
	linear
	Eta     float64
	MaxIter int
	Tol     float64
	Seed    uint64
}

func NewPerceptron(seed uint64) *Perceptron {
	return &Perceptron{Eta: 1, MaxIter: 1000, Tol: 1e-3, Seed: seed}
}

func (m *Perceptron) Name() string { return "perceptron" }

func (m *Perceptron) Fit(X [][]float64, y []float64) error {
	m.reset(dims(X))
	rng := rand.New(rand.NewPCG(m.Seed, 2))
	stop := newStopper(m.Tol)
	for epoch := 0; epoch < m.MaxIter; epoch++ {
		sumLoss := 0.0
		for _, i := range rng.Perm(len(X)) {
			margin := y[i] * m.Decision(X[i])
			if margin > 0 {
				continue
			}
			sumLoss -= margin
			floats.AddScaled(m.W, m.Eta*y[i], X[i])
			m.B += m.Eta * y[i]
		}
		if stop.done(sumLoss, len(X)) {
			break
		}
	}
	return nil
}

// SGD is a hinge loss linear SVM trained by stochastic gradient descent,
// with L2 regularization, an "optimal" decaying learning rate, and averaged weights.
type SGD struct {
	linear
	Alpha   float64
	MaxIter int
	Tol     float64
	Seed    uint64
}

func NewSGD(seed uint64) *SGD {
	return &SGD{Alpha: 1e-4, MaxIter: 100, Tol: 1e-3, Seed: seed}
}

func (m *SGD) Name() string { return "sgd" }

func (m *SGD) Fit(X [][]float64, y []float64) error {
	dim := dims(X)
	w := make([]float64, dim)
	b := 0.0
	m.reset(dim)
	rng := rand.New(rand.NewPCG(m.Seed, 3))
	stop := newStopper(m.Tol)

	// Initial step size heuristic for the "optimal" schedule: eta = 1 / (alpha * (t0 + t))
	typw := math.Sqrt(1 / math.Sqrt(m.Alpha))
	t0 := 1 / (typw * m.Alpha)
	t := 0.0
	count := 0.0
	for epoch := 0; epoch < m.MaxIter; epoch++ {
		sumLoss := 0.0
		for _, i := range rng.Perm(len(X)) {
			eta := 1 / (m.Alpha * (t0 + t))
			margin := y[i] * (floats.Dot(w, X[i]) + b)
			floats.Scale(1-eta*m.Alpha, w)
			if margin < 1 {
				sumLoss += 1 - margin
				floats.AddScaled(w, eta*y[i], X[i])
				b += eta * y[i]
			}
			t++
			// Running average of the weights
			count++
			for k := range m.W {
				m.W[k] += (w[k] - m.W[k]) / count
			}
			m.B += (b - m.B) / count
		}
		if stop.done(sumLoss, len(X)) {
			break
		}
	}
	return nil
}

// Logistic is L2 regularized logistic regression, fitted with L-BFGS
type Logistic struct {
	linear
	C       float64
	MaxIter int
	Tol     float64
}

func NewLogistic() *Logistic {
	return &Logistic{C: 1, MaxIter: 100, Tol: 1e-4}
}

func (m *Logistic) Name() string { return "logistic" }

// log(1 + exp(z)) without overflow
func softplus(z float64) float64 {
	if z > 30 {
		return z
	}
	return math.Log1p(math.Exp(z))
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func (m *Logistic) Fit(X [][]float64, y []float64) error {
	dim := dims(X)
	m.reset(dim)
	if len(X) == 0 {
		return nil
	}
	n := float64(len(X))
	// The objective is 0.5*|w|^2 + C*sum(logloss), divided by C*n to keep gradients O(1).
	// The last element of the parameter vector is the (unpenalized) intercept.
	reg := 1 / (m.C * n)
	problem := optimize.Problem{
		Func: func(p []float64) float64 {
			w, b := p[:dim], p[dim]
			f := 0.5 * reg * floats.Dot(w, w)
			for i, x := range X {
				f += softplus(-y[i]*(floats.Dot(w, x)+b)) / n
			}
			return f
		},
		Grad: func(grad, p []float64) {
			w, b := p[:dim], p[dim]
			for k := range grad {
				grad[k] = 0
			}
			floats.AddScaled(grad[:dim], reg, w)
			for i, x := range X {
				// d/dz softplus(-y z) = -y * sigmoid(-y z)
				g := -y[i] * sigmoid(-y[i]*(floats.Dot(w, x)+b)) / n
				floats.AddScaled(grad[:dim], g, x)
				grad[dim] += g
			}
		},
	}
	settings := &optimize.Settings{
		GradientThreshold: m.Tol,
		MajorIterations:   m.MaxIter,
	}
	result, err := optimize.Minimize(problem, make([]float64, dim+1), settings, &optimize.LBFGS{})
	if result == nil {
		return err
	}
	// A line search that stalls near the optimum still leaves a usable solution
	copy(m.W, result.X[:dim])
	m.B = result.X[dim]
	return nil
}
