package forecast

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

type adam struct {
	lr, beta1, beta2, eps float64
	m, v                  []float64
	t                     int
}

func newAdam(n int, lr float64) *adam {
	return &adam{
		lr:    lr,
		beta1: 0.9,
		beta2: 0.999,
		eps:   1e-7,
		m:     make([]float64, n),
		v:     make([]float64, n),
	}
}

func (a *adam) step(params, grad []float64) {
	a.t++
	c1 := 1 - math.Pow(a.beta1, float64(a.t))
	c2 := 1 - math.Pow(a.beta2, float64(a.t))
	for i, g := range grad {
		a.m[i] = a.beta1*a.m[i] + (1-a.beta1)*g
		a.v[i] = a.beta2*a.v[i] + (1-a.beta2)*g*g
		params[i] -= a.lr * (a.m[i] / c1) / (math.Sqrt(a.v[i]/c2) + a.eps)
	}
}

// clipNorm rescales grad in place so its L2 norm is at most limit.
func clipNorm(grad []float64, limit float64) float64 {
	n := floats.Norm(grad, 2)
	if limit > 0 && n > limit {
		floats.Scale(limit/n, grad)
	}
	return n
}
