package levitate

import (
	"math"
	"math/rand"
)

// Population is the fixed-size set of candidates of one evolutionary
// generation.
type Population struct {
	Candidates []*Candidate
	Generation int
}

// PopulationConfig controls how a fresh population is drawn.
type PopulationConfig struct {
	Size          int     `toml:"size"`
	InitAttempts  int     `toml:"init_attempts"`
	InitExtent    float64 `toml:"init_extent"`
	FallbackSigma float64 `toml:"fallback_sigma"`
}

func DefaultPopulationConfig() PopulationConfig {
	return PopulationConfig{
		Size:          150,
		InitAttempts:  100,
		InitExtent:    0.03,
		FallbackSigma: 0.002,
	}
}

// NewPopulation draws config.Size candidates. Each slot samples uniform
// planar layouts until one passes the constraints; once the attempt budget
// is spent the slot falls back to the reference geometry under Gaussian
// noise, so initialization always terminates. When the mask leaves
// positions fixed every candidate starts at the reference layout.
func NewPopulation(p *Problem, config PopulationConfig, mask ParameterMask, generation int, r *rand.Rand) *Population {
	pop := &Population{
		Candidates: make([]*Candidate, config.Size),
		Generation: generation,
	}
	n := p.Config.Emitters

	for slot := range pop.Candidates {
		var a *EmitterArray
		if mask.Positions {
			for attempt := 0; attempt < config.InitAttempts; attempt++ {
				positions := UniformRandom(n, config.InitExtent, r)
				if valid, _ := p.Constraints.Check(positions); valid {
					a = &EmitterArray{Positions: positions}
					break
				}
			}
			if a == nil {
				a = p.Reference.Clone()
				for i := range a.Positions {
					a.Positions[i].X += r.NormFloat64() * config.FallbackSigma
					a.Positions[i].Y += r.NormFloat64() * config.FallbackSigma
				}
			}
		} else {
			a = p.Reference.Clone()
		}

		if mask.Phases {
			a.Phases = make([]float64, n)
			for i := range a.Phases {
				a.Phases[i] = r.Float64() * 2 * math.Pi
			}
		}
		pop.Candidates[slot] = NewCandidate(a, generation)
	}
	return pop
}

func (pop *Population) Size() int {
	return len(pop.Candidates)
}

func (pop *Population) Arrays() []*EmitterArray {
	arrays := make([]*EmitterArray, len(pop.Candidates))
	for i, c := range pop.Candidates {
		arrays[i] = c.Array
	}
	return arrays
}

// Evaluate scores every candidate in one batch.
func (pop *Population) Evaluate(o *Objective) ([]Score, error) {
	scores, err := o.EvaluateBatch(pop.Arrays())
	if err != nil {
		return nil, err
	}
	for i, s := range scores {
		pop.Candidates[i].SetScore(s)
	}
	return scores, nil
}
