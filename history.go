package levitate

import (
	"math"
	"time"
)

// HistoryRecord summarizes one generation or iteration. BestSoFar and
// CurrentBest are zero until a valid candidate has been seen.
type HistoryRecord struct {
	Index         int     `json:"iteration"`
	BestSoFar     float64 `json:"best_fitness_so_far"`
	CurrentBest   float64 `json:"current_best_fitness"`
	MeanValid     float64 `json:"mean_fitness"`
	ValidCount    int     `json:"valid_count"`
	Skipped       bool    `json:"skipped,omitempty"`
	Reinitialized bool    `json:"reinitialized,omitempty"`
}

// History is append-only for the duration of a run.
type History []HistoryRecord

func (h *History) Append(rec HistoryRecord) {
	*h = append(*h, rec)
}

func (h History) BestSoFar() []float64 {
	out := make([]float64, len(h))
	for i, rec := range h {
		out[i] = rec.BestSoFar
	}
	return out
}

func (h History) MeanValid() []float64 {
	out := make([]float64, len(h))
	for i, rec := range h {
		out[i] = rec.MeanValid
	}
	return out
}

// Improvement records a new best-ever configuration.
type Improvement struct {
	Iteration       int           `json:"iteration"`
	Fitness         float64       `json:"fitness"`
	Array           *EmitterArray `json:"array"`
	VersusReference float64       `json:"improvement_vs_reference_pct"`
}

// Result is the outcome of a search. Best is nil only when the reference
// was infeasible and no valid candidate was ever found.
type Result struct {
	Driver            string
	Mask              ParameterMask
	Best              *Candidate
	Reference         *Candidate
	History           History
	Improvements      []Improvement
	Stop              StopReason
	Iterations        int
	Reinitializations int
	Elapsed           time.Duration
}

// newResult seeds best-ever with the reference when the reference is
// itself feasible.
func newResult(driver string, p *Problem, reference *EmitterArray, mask ParameterMask) (*Result, error) {
	score, err := p.Objective.Evaluate(reference)
	if err != nil {
		return nil, err
	}
	ref := NewCandidate(reference.Clone(), 0)
	ref.SetScore(score)

	res := &Result{Driver: driver, Mask: mask, Reference: ref, Stop: StopCompleted}
	if score.Valid {
		res.Best = ref.Clone()
	}
	return res, nil
}

func (r *Result) BestFitness() float64 {
	if r.Best == nil {
		return 0
	}
	return r.Best.Fitness()
}

func (r *Result) Valid() bool {
	return r.Best != nil && r.Best.Valid()
}

// Improvement is the percentage gain of the best fitness over the
// reference, zero when the reference fitness is not positive.
func (r *Result) Improvement() float64 {
	return percentOver(r.BestFitness(), r.Reference.Fitness())
}

func percentOver(value, base float64) float64 {
	if base <= 0 {
		return 0
	}
	return (value - base) / base * 100
}

// MinRelativeGain is the fraction of the best fitness a candidate has to
// add before it counts as an improvement.
const MinRelativeGain = 1e-9

func improves(fitness, best float64) bool {
	return fitness-best > MinRelativeGain*math.Abs(best)
}

// offer installs c as the new best if it is valid, finite and better than
// the current best by more than MinRelativeGain.
func (r *Result) offer(c *Candidate, iteration int) bool {
	if !c.Valid() || math.IsNaN(c.Fitness()) || math.IsInf(c.Fitness(), 0) {
		return false
	}
	if r.Best != nil && !improves(c.Fitness(), r.Best.Fitness()) {
		return false
	}
	r.Best = c.Clone()
	r.Improvements = append(r.Improvements, Improvement{
		Iteration:       iteration,
		Fitness:         c.Fitness(),
		Array:           r.Best.Array.Clone(),
		VersusReference: percentOver(c.Fitness(), r.Reference.Fitness()),
	})
	return true
}
