package levitate

import (
	"fmt"
	"math/rand"
)

// MutationConfig: with probability Rate a child is mutated; each emitter is
// then perturbed independently with probability Fraction.
type MutationConfig struct {
	Rate       float64 `toml:"rate"`
	Fraction   float64 `toml:"fraction"`
	Sigma      float64 `toml:"sigma"`
	PhaseSigma float64 `toml:"phase_sigma"`
}

func DefaultMutationConfig() MutationConfig {
	return MutationConfig{
		Rate:       0.1,
		Fraction:   0.3,
		Sigma:      0.003,
		PhaseSigma: 0.3,
	}
}

func (c MutationConfig) Validate() error {
	if c.Rate < 0 || c.Rate > 1 || c.Fraction < 0 || c.Fraction > 1 {
		return fmt.Errorf("%w: mutation rate and fraction must lie in [0, 1]", ErrInvalidConfig)
	}
	if c.Sigma < 0 || c.PhaseSigma < 0 {
		return fmt.Errorf("%w: mutation sigmas must not be negative", ErrInvalidConfig)
	}
	return nil
}

type Mutation struct {
	Config MutationConfig
	Mask   ParameterMask
}

func NewMutation(config MutationConfig, mask ParameterMask) *Mutation {
	return &Mutation{Config: config, Mask: mask}
}

// Apply mutates a in place and reports whether anything changed.
func (m *Mutation) Apply(a *EmitterArray, r *rand.Rand) bool {
	if r.Float64() >= m.Config.Rate {
		return false
	}
	mutated := false
	for i := range a.Positions {
		if r.Float64() >= m.Config.Fraction {
			continue
		}
		if m.Mask.Positions {
			a.Positions[i].X += r.NormFloat64() * m.Config.Sigma
			a.Positions[i].Y += r.NormFloat64() * m.Config.Sigma
		}
		if m.Mask.Phases && a.HasPhases() {
			a.Phases[i] += r.NormFloat64() * m.Config.PhaseSigma
		}
		mutated = true
	}
	return mutated
}
