package levitate

import "math"

// Adam keeps first and second moment estimates for gradient ascent with a
// per-parameter learning rate.
type Adam struct {
	Beta1   float64
	Beta2   float64
	Epsilon float64

	m []float64
	v []float64
	t int
}

func NewAdam(dim int) *Adam {
	return &Adam{
		Beta1:   0.9,
		Beta2:   0.999,
		Epsilon: 1e-8,
		m:       make([]float64, dim),
		v:       make([]float64, dim),
	}
}

// Step moves params up the gradient in place.
func (a *Adam) Step(params, grad, rates []float64) {
	a.t++
	b1Corr := 1 - math.Pow(a.Beta1, float64(a.t))
	b2Corr := 1 - math.Pow(a.Beta2, float64(a.t))
	for i, g := range grad {
		a.m[i] = a.Beta1*a.m[i] + (1-a.Beta1)*g
		a.v[i] = a.Beta2*a.v[i] + (1-a.Beta2)*g*g
		mhat := a.m[i] / b1Corr
		vhat := a.v[i] / b2Corr
		params[i] += rates[i] * mhat / (math.Sqrt(vhat) + a.Epsilon)
	}
}

func (a *Adam) Steps() int {
	return a.t
}
