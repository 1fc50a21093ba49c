package gorkov

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// DistanceFloor clamps the emitter to point distance so that evaluating on
// top of an emitter yields a large but finite potential.
const DistanceFloor = 1e-6

var ErrShapeMismatch error = fmt.Errorf("emitter and phase counts differ")

// Evaluator computes the Gor'kov potential of point-source arrays. It holds
// no state besides its constants and is safe for concurrent use.
type Evaluator struct {
	Constants Constants
}

func NewEvaluator(c Constants) (*Evaluator, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &Evaluator{Constants: c}, nil
}

// EvaluateBatch computes the potential of every configuration at every
// point. phases may be nil, or hold a nil/empty entry for a configuration,
// meaning all phases are zero. Result i has len(points) values.
func (e *Evaluator) EvaluateBatch(emitters [][]Vec3, phases [][]float64, points []Vec3) ([][]float64, error) {
	if phases != nil && len(phases) != len(emitters) {
		return nil, fmt.Errorf("%w: %d configurations but %d phase sets", ErrShapeMismatch, len(emitters), len(phases))
	}

	out := make([][]float64, len(emitters))
	for b, config := range emitters {
		var ph []float64
		if phases != nil {
			ph = phases[b]
		}
		if len(ph) != 0 && len(ph) != len(config) {
			return nil, fmt.Errorf("%w: configuration %d has %d emitters and %d phases", ErrShapeMismatch, b, len(config), len(ph))
		}
		out[b] = make([]float64, len(points))
		e.potential(out[b], config, ph, points)
	}
	return out, nil
}

// Evaluate computes the potential of one configuration over points.
func (e *Evaluator) Evaluate(emitters []Vec3, phases []float64, points []Vec3) ([]float64, error) {
	var ph [][]float64
	if phases != nil {
		ph = [][]float64{phases}
	}
	u, err := e.EvaluateBatch([][]Vec3{emitters}, ph, points)
	if err != nil {
		return nil, err
	}
	return u[0], nil
}

// At computes the potential of one configuration at a single point.
func (e *Evaluator) At(emitters []Vec3, phases []float64, p Vec3) (float64, error) {
	u, err := e.Evaluate(emitters, phases, []Vec3{p})
	if err != nil {
		return 0, err
	}
	return u[0], nil
}

func (e *Evaluator) potential(dst []float64, emitters []Vec3, phases []float64, points []Vec3) {
	k := e.Constants.WaveNumber()
	amp := e.Constants.PressureAmplitude
	coef := e.Constants.coefficient()

	for m, p := range points {
		var re, im float64
		for i, em := range emitters {
			r := math.Max(p.Dist(em), DistanceFloor)
			arg := k * r
			if len(phases) != 0 {
				arg += phases[i]
			}
			s, c := math.Sincos(arg)
			re += amp / r * c
			im += amp / r * s
		}
		dst[m] = -coef * (re*re + im*im)
	}
}

// pressure returns the complex pressure at p along with every emitter's
// contribution and clamped distance.
func (e *Evaluator) pressure(emitters []Vec3, phases []float64, p Vec3) (complex128, []complex128, []float64) {
	k := e.Constants.WaveNumber()
	amp := e.Constants.PressureAmplitude

	var total complex128
	terms := make([]complex128, len(emitters))
	dists := make([]float64, len(emitters))
	for i, em := range emitters {
		r := math.Max(p.Dist(em), DistanceFloor)
		arg := k * r
		if len(phases) != 0 {
			arg += phases[i]
		}
		s, c := math.Sincos(arg)
		terms[i] = complex(amp/r*c, amp/r*s)
		dists[i] = r
		total += terms[i]
	}
	return total, terms, dists
}

// WellDepthGradient returns max(U) - min(U) over points together with its
// derivative with respect to every emitter position and phase. The extrema
// are held fixed at their current grid points, so the result is the
// subgradient of the piecewise smooth depth.
func (e *Evaluator) WellDepthGradient(emitters []Vec3, phases []float64, points []Vec3) (float64, []Vec3, []float64, error) {
	if len(phases) != 0 && len(phases) != len(emitters) {
		return 0, nil, nil, fmt.Errorf("%w: %d emitters and %d phases", ErrShapeMismatch, len(emitters), len(phases))
	}
	if len(points) == 0 {
		return 0, make([]Vec3, len(emitters)), make([]float64, len(emitters)), nil
	}

	u := make([]float64, len(points))
	e.potential(u, emitters, phases, points)
	hi, lo := floats.MaxIdx(u), floats.MinIdx(u)

	dPos := make([]Vec3, len(emitters))
	dPhase := make([]float64, len(emitters))
	e.accumulateGradient(dPos, dPhase, emitters, phases, points[hi], 1)
	e.accumulateGradient(dPos, dPhase, emitters, phases, points[lo], -1)
	return u[hi] - u[lo], dPos, dPhase, nil
}

// accumulateGradient adds sign * dU(p) to the position and phase gradients.
//
//	dU/dphi_i = 2C Im(conj(P) T_i)
//	dU/de_i   = -2C Re(conj(P) T_i (ik - 1/r)) (e_i - p)/r
func (e *Evaluator) accumulateGradient(dPos []Vec3, dPhase []float64, emitters []Vec3, phases []float64, p Vec3, sign float64) {
	k := e.Constants.WaveNumber()
	coef := e.Constants.coefficient()

	total, terms, dists := e.pressure(emitters, phases, p)
	conj := complex(real(total), -imag(total))
	for i, t := range terms {
		ct := conj * t
		dPhase[i] += sign * 2 * coef * imag(ct)

		r := dists[i]
		if r <= DistanceFloor {
			continue
		}
		dr := -2 * coef * real(ct*complex(-1/r, k))
		dPos[i] = dPos[i].Add(emitters[i].Sub(p).Scale(sign * dr / r))
	}
}
