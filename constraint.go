package levitate

import (
	"fmt"
	"math"

	"nickandperla.net/levitate/gorkov"
)

// ConstraintConfig bounds the feasible region. MaxSpread and MaxPerturbation
// are disabled when zero.
type ConstraintConfig struct {
	MinSpacing      float64 `toml:"min_spacing" json:"min_spacing_m"`
	MaxSpread       float64 `toml:"max_spread" json:"max_spread_m"`
	MaxPerturbation float64 `toml:"max_perturbation" json:"max_perturbation_m,omitempty"`
	PenaltyWeight   float64 `toml:"penalty_weight" json:"penalty_weight"`
	RepairPasses    int     `toml:"repair_passes" json:"-"`
}

func DefaultConstraintConfig() ConstraintConfig {
	return ConstraintConfig{
		MinSpacing:    0.005,
		MaxSpread:     0.060,
		PenaltyWeight: DefaultPenaltyWeight,
		RepairPasses:  DefaultRepairPasses,
	}
}

func (c ConstraintConfig) Validate() error {
	for _, check := range []struct {
		name  string
		value float64
	}{
		{"min_spacing", c.MinSpacing},
		{"max_spread", c.MaxSpread},
		{"max_perturbation", c.MaxPerturbation},
	} {
		if check.value < 0 || math.IsNaN(check.value) || math.IsInf(check.value, 0) {
			return fmt.Errorf("%w: %s must be a non-negative distance, got %v", ErrInvalidConfig, check.name, check.value)
		}
	}
	if !(c.PenaltyWeight > 0) || math.IsInf(c.PenaltyWeight, 0) {
		return fmt.Errorf("%w: penalty_weight must be positive, got %v", ErrInvalidConfig, c.PenaltyWeight)
	}
	if c.RepairPasses < 0 {
		return fmt.Errorf("%w: repair_passes must not be negative, got %d", ErrInvalidConfig, c.RepairPasses)
	}
	return nil
}

// Violation describes how a configuration breaks the constraints.
// Exceeding the perturbation limit adds no penalty but is still invalid.
type Violation struct {
	Penalty      float64
	Reasons      ViolationReason
	MinSpacing   float64
	MaxRadius    float64
	MaxDeviation float64
}

func (v Violation) Valid() bool {
	return v.Penalty == 0 && v.Reasons&FailedPerturbation == 0
}

type ConstraintEngine struct {
	Config ConstraintConfig
}

func NewConstraintEngine(config ConstraintConfig) (*ConstraintEngine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &ConstraintEngine{Config: config}, nil
}

// repairSlack pushes repaired pairs a hair beyond the minimum so that the
// repaired distance survives floating point rounding.
const repairSlack = 1e-9

func (ce *ConstraintEngine) passes() int {
	if ce.Config.RepairPasses == 0 {
		return DefaultRepairPasses
	}
	return ce.Config.RepairPasses
}

// Check reports whether positions are feasible and the accumulated penalty.
// Valid is true exactly when the penalty is zero.
func (ce *ConstraintEngine) Check(positions []gorkov.Vec3) (bool, float64) {
	v := ce.Inspect(positions)
	return v.Valid(), v.Penalty
}

func (ce *ConstraintEngine) Inspect(positions []gorkov.Vec3) Violation {
	w := ce.Config.PenaltyWeight
	v := Violation{MinSpacing: math.Inf(1)}

	for i := range positions {
		for j := i + 1; j < len(positions); j++ {
			d := positions[i].Dist(positions[j])
			v.MinSpacing = math.Min(v.MinSpacing, d)
			if d < ce.Config.MinSpacing {
				v.Penalty += w * (ce.Config.MinSpacing - d)
				v.Reasons |= FailedSpacing
			}
		}
	}

	v.MaxRadius = maxRadius(positions)
	if ce.Config.MaxSpread > 0 && v.MaxRadius > ce.Config.MaxSpread {
		v.Penalty += w * (v.MaxRadius - ce.Config.MaxSpread)
		v.Reasons |= FailedSpread
	}
	return v
}

// CheckBatch returns the penalty of every configuration; a configuration is
// valid when its penalty is zero.
func (ce *ConstraintEngine) CheckBatch(batch [][]gorkov.Vec3) []float64 {
	penalties := make([]float64, len(batch))
	for i, positions := range batch {
		_, penalties[i] = ce.Check(positions)
	}
	return penalties
}

// Repair pushes apart every pair closer than MinSpacing, each member moving
// half the shortfall, for a bounded number of passes, then rescales the
// whole configuration into MaxSpread. The result may still be infeasible
// and must be re-checked. positions is not modified.
func (ce *ConstraintEngine) Repair(positions []gorkov.Vec3) []gorkov.Vec3 {
	out := copyPositions(positions)
	ce.pushApart(out, ce.passes())

	if ce.Config.MaxSpread > 0 {
		if r := maxRadius(out); r > ce.Config.MaxSpread {
			scale := ce.Config.MaxSpread / r * (1 - repairSlack)
			for i := range out {
				out[i] = out[i].Scale(scale)
			}
		}
	}
	return out
}

func (ce *ConstraintEngine) pushApart(positions []gorkov.Vec3, passes int) {
	minSpacing := ce.Config.MinSpacing
	if minSpacing <= 0 {
		return
	}
	target := minSpacing * (1 + repairSlack)
	n := len(positions)

	for pass := 0; pass < passes; pass++ {
		moved := false
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				delta := positions[j].Sub(positions[i])
				d := delta.Norm()
				if d >= minSpacing {
					continue
				}
				var dir gorkov.Vec3
				if d > 0 {
					dir = delta.Scale(1 / d)
				} else {
					// Coincident: separate along a direction fixed by the pair.
					theta := 2 * math.Pi * float64(i+j) / float64(n)
					dir = gorkov.Vec3{X: math.Cos(theta), Y: math.Sin(theta)}
				}
				push := (target - d) / 2
				positions[i] = positions[i].Sub(dir.Scale(push))
				positions[j] = positions[j].Add(dir.Scale(push))
				moved = true
			}
		}
		if !moved {
			return
		}
	}
}

// CheckPerturbation measures each emitter's displacement from the matching
// reference emitter. exceeded is true if any displacement is larger than
// MaxPerturbation; it is never true when MaxPerturbation is disabled.
func (ce *ConstraintEngine) CheckPerturbation(positions, reference []gorkov.Vec3) (bool, float64) {
	if len(positions) != len(reference) {
		panic(fmt.Errorf("%w: %d positions against %d reference emitters", ErrShapeMismatch, len(positions), len(reference)))
	}
	var maxDev float64
	for i := range positions {
		maxDev = math.Max(maxDev, positions[i].Dist(reference[i]))
	}
	return ce.Config.MaxPerturbation > 0 && maxDev > ce.Config.MaxPerturbation, maxDev
}

// ClipPerturbation pulls every emitter back inside MaxPerturbation of its
// reference position along the displacement direction.
func (ce *ConstraintEngine) ClipPerturbation(positions, reference []gorkov.Vec3) []gorkov.Vec3 {
	if len(positions) != len(reference) {
		panic(fmt.Errorf("%w: %d positions against %d reference emitters", ErrShapeMismatch, len(positions), len(reference)))
	}
	out := copyPositions(positions)
	limit := ce.Config.MaxPerturbation
	if limit <= 0 {
		return out
	}
	for i := range out {
		dev := out[i].Sub(reference[i])
		if d := dev.Norm(); d > limit {
			out[i] = reference[i].Add(dev.Scale(limit * (1 - repairSlack) / d))
		}
	}
	return out
}

// Project maps a configuration back toward the feasible region: clip to the
// perturbation radius around reference (when given), then Repair.
func (ce *ConstraintEngine) Project(positions, reference []gorkov.Vec3) []gorkov.Vec3 {
	if reference != nil {
		positions = ce.ClipPerturbation(positions, reference)
	}
	return ce.Repair(positions)
}

// InspectAgainst is Inspect plus the perturbation limit around reference,
// which may be nil.
func (ce *ConstraintEngine) InspectAgainst(positions, reference []gorkov.Vec3) Violation {
	v := ce.Inspect(positions)
	if reference != nil {
		var exceeded bool
		exceeded, v.MaxDeviation = ce.CheckPerturbation(positions, reference)
		if exceeded {
			v.Reasons |= FailedPerturbation
		}
	}
	return v
}

// Feasible is Check combined with the perturbation limit around reference.
func (ce *ConstraintEngine) Feasible(positions, reference []gorkov.Vec3) bool {
	return ce.InspectAgainst(positions, reference).Valid()
}
