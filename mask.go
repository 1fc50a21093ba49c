package levitate

import (
	"fmt"
	"math"
)

// ParameterMask selects which degrees of freedom a search may change.
// Positions move in the array plane only.
type ParameterMask struct {
	Positions bool `toml:"positions" json:"positions"`
	Phases    bool `toml:"phases" json:"phases"`
}

var (
	PositionsOnly = ParameterMask{Positions: true}
	PhasesOnly    = ParameterMask{Phases: true}
	Joint         = ParameterMask{Positions: true, Phases: true}
)

func (m ParameterMask) Validate() error {
	if !m.Positions && !m.Phases {
		return fmt.Errorf("%w: parameter mask enables nothing to optimize", ErrInvalidConfig)
	}
	return nil
}

func (m ParameterMask) String() string {
	switch m {
	case PositionsOnly:
		return "positions"
	case PhasesOnly:
		return "phases"
	case Joint:
		return "positions+phases"
	}
	return "none"
}

// Dim is the number of free parameters of an n emitter array.
func (m ParameterMask) Dim(n int) int {
	var d int
	if m.Positions {
		d += 2 * n
	}
	if m.Phases {
		d += n
	}
	return d
}

// Flatten packs the free parameters of a: x0, y0, x1, y1, ... then phases.
func (m ParameterMask) Flatten(a *EmitterArray) []float64 {
	x := make([]float64, 0, m.Dim(a.Len()))
	if m.Positions {
		for _, p := range a.Positions {
			x = append(x, p.X, p.Y)
		}
	}
	if m.Phases {
		x = append(x, a.PhaseValues()...)
	}
	return x
}

// Unflatten writes x back into a, the inverse of Flatten.
func (m ParameterMask) Unflatten(a *EmitterArray, x []float64) {
	k := 0
	if m.Positions {
		for i := range a.Positions {
			a.Positions[i].X = x[k]
			a.Positions[i].Y = x[k+1]
			k += 2
		}
	}
	if m.Phases {
		if !a.HasPhases() {
			a.Phases = make([]float64, a.Len())
		}
		copy(a.Phases, x[k:])
	}
}

func allFinite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// ParseParameterMask accepts the names String produces.
func ParseParameterMask(s string) (ParameterMask, error) {
	switch s {
	case "positions":
		return PositionsOnly, nil
	case "phases":
		return PhasesOnly, nil
	case "positions+phases", "joint":
		return Joint, nil
	}
	return ParameterMask{}, fmt.Errorf("%w: unknown parameter mask %q", ErrInvalidConfig, s)
}
