package levitate

import (
	"fmt"
	"math"
	"runtime"

	"github.com/sourcegraph/conc/pool"
	"nickandperla.net/levitate/gorkov"
)

// QualityWeights blend field quality into the score. With Symmetry and
// Uniformity both zero the score is the plain well depth and Depth is
// ignored.
type QualityWeights struct {
	Depth      float64 `toml:"depth" json:"depth"`
	Symmetry   float64 `toml:"symmetry" json:"symmetry"`
	Uniformity float64 `toml:"uniformity" json:"uniformity"`
}

// ExtendedWeights scores depth in microjoules alongside the symmetry and
// uniformity of the field.
func ExtendedWeights() QualityWeights {
	return QualityWeights{Depth: 1e6, Symmetry: 1000, Uniformity: 100}
}

func (w QualityWeights) Extended() bool {
	return w.Symmetry != 0 || w.Uniformity != 0
}

type ObjectiveConfig struct {
	Grid    gorkov.Grid    `toml:"grid" json:"grid"`
	Quality QualityWeights `toml:"quality" json:"quality"`
	Workers int            `toml:"workers" json:"-"`
}

func DefaultObjectiveConfig() ObjectiveConfig {
	return ObjectiveConfig{Grid: gorkov.DefaultGrid()}
}

func (c ObjectiveConfig) Validate() error {
	if err := c.Grid.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative, got %d", ErrInvalidConfig, c.Workers)
	}
	for _, v := range []float64{c.Quality.Depth, c.Quality.Symmetry, c.Quality.Uniformity} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: quality weights must be finite", ErrInvalidConfig)
		}
	}
	return nil
}

// Score is one objective evaluation. Fitness = Quality - Penalty, where
// Quality is the well depth or, with extended weights, the weighted blend.
type Score struct {
	WellDepth  float64 `json:"well_depth"`
	Symmetry   float64 `json:"symmetry,omitempty"`
	Uniformity float64 `json:"uniformity,omitempty"`
	Quality    float64 `json:"quality"`
	Penalty    float64 `json:"penalty"`
	Fitness    float64 `json:"fitness"`
	Valid      bool    `json:"valid"`
}

// Objective scores emitter arrays against a fixed grid, constants and
// constraint set. It is safe for concurrent use.
type Objective struct {
	Evaluator   *gorkov.Evaluator
	Constraints *ConstraintEngine
	Grid        gorkov.Grid
	Weights     QualityWeights
	Workers     int
	points      []gorkov.Vec3
	rings       [][]int
}

func NewObjective(evaluator *gorkov.Evaluator, constraints *ConstraintEngine, config ObjectiveConfig) (*Objective, error) {
	if evaluator == nil || constraints == nil {
		return nil, fmt.Errorf("%w: objective needs an evaluator and a constraint engine", ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	o := &Objective{
		Evaluator:   evaluator,
		Constraints: constraints,
		Grid:        config.Grid,
		Weights:     config.Quality,
		Workers:     config.Workers,
		points:      config.Grid.Points(),
	}
	if o.Workers == 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.Weights.Extended() {
		for _, r := range gorkov.Rings {
			o.rings = append(o.rings, config.Grid.RingIndices(r, gorkov.RingBand))
		}
	}
	return o, nil
}

func (o *Objective) Points() []gorkov.Vec3 {
	return o.points
}

// Field evaluates the potential of a over the objective grid.
func (o *Objective) Field(a *EmitterArray) ([]float64, error) {
	return o.Evaluator.Evaluate(a.Positions, a.Phases, o.points)
}

// WellDepth is the unconstrained max(U) - min(U) of a over the grid.
func (o *Objective) WellDepth(a *EmitterArray) (float64, error) {
	u, err := o.Field(a)
	if err != nil {
		return 0, err
	}
	return gorkov.WellDepth(u), nil
}

func (o *Objective) Evaluate(a *EmitterArray) (Score, error) {
	scores, err := o.EvaluateBatch([]*EmitterArray{a})
	if err != nil {
		return Score{}, err
	}
	return scores[0], nil
}

// Fitness is the scalar objective of a configuration.
func (o *Objective) Fitness(a *EmitterArray) (float64, error) {
	s, err := o.Evaluate(a)
	return s.Fitness, err
}

// EvaluateBatch scores every array. The batch is split into chunks that are
// evaluated concurrently; each chunk writes only its own slots, so the
// result equals scoring the arrays one at a time.
func (o *Objective) EvaluateBatch(arrays []*EmitterArray) ([]Score, error) {
	scores := make([]Score, len(arrays))
	if len(arrays) == 0 {
		return scores, nil
	}

	workers := o.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(arrays) {
		workers = len(arrays)
	}
	split := len(arrays) / workers
	odds := len(arrays) % workers

	p := pool.New().WithErrors().WithMaxGoroutines(workers)
	start := 0
	for w := 0; w < workers; w++ {
		size := split
		if w < odds {
			size++
		}
		lo, hi := start, start+size
		start = hi
		p.Go(func() error {
			return o.scoreChunk(scores[lo:hi], arrays[lo:hi])
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

func (o *Objective) scoreChunk(dst []Score, arrays []*EmitterArray) error {
	emitters := make([][]gorkov.Vec3, len(arrays))
	phases := make([][]float64, len(arrays))
	for i, a := range arrays {
		emitters[i] = a.Positions
		phases[i] = a.Phases
	}
	fields, err := o.Evaluator.EvaluateBatch(emitters, phases, o.points)
	if err != nil {
		return err
	}
	for i, u := range fields {
		dst[i] = o.score(u, arrays[i].Positions)
	}
	return nil
}

func (o *Objective) score(u []float64, positions []gorkov.Vec3) Score {
	s := Score{WellDepth: gorkov.WellDepth(u)}
	s.Valid, s.Penalty = o.Constraints.Check(positions)
	s.Quality = s.WellDepth
	if o.Weights.Extended() {
		s.Symmetry = gorkov.Symmetry(u, o.rings)
		s.Uniformity = gorkov.Uniformity(u)
		s.Quality = o.Weights.Depth*s.WellDepth + o.Weights.Symmetry*s.Symmetry + o.Weights.Uniformity*s.Uniformity
	}
	s.Fitness = s.Quality - s.Penalty
	return s
}

// FieldQuality scores a against the objective grid regardless of the
// configured weights.
func (o *Objective) FieldQuality(a *EmitterArray) (Score, error) {
	u, err := o.Field(a)
	if err != nil {
		return Score{}, err
	}
	rings := o.rings
	if rings == nil {
		for _, r := range gorkov.Rings {
			rings = append(rings, o.Grid.RingIndices(r, gorkov.RingBand))
		}
	}
	s := o.score(u, a.Positions)
	s.Symmetry = gorkov.Symmetry(u, rings)
	s.Uniformity = gorkov.Uniformity(u)
	return s, nil
}
