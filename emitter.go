package levitate

import (
	"fmt"
	"math"

	cp "github.com/jinzhu/copier"
	"nickandperla.net/levitate/gorkov"
)

// EmitterArray is an ordered set of point sources. Phases is either empty
// (all emitters in phase) or holds one offset in radians per position.
type EmitterArray struct {
	Positions []gorkov.Vec3 `json:"positions"`
	Phases    []float64     `json:"phases,omitempty"`
}

func NewEmitterArray(positions []gorkov.Vec3, phases []float64) (*EmitterArray, error) {
	if len(positions) == 0 {
		return nil, ErrNoEmitters
	}
	if len(phases) != 0 && len(phases) != len(positions) {
		return nil, fmt.Errorf("%w: %d positions and %d phases", ErrShapeMismatch, len(positions), len(phases))
	}
	a := &EmitterArray{Positions: make([]gorkov.Vec3, len(positions))}
	copy(a.Positions, positions)
	if len(phases) != 0 {
		a.Phases = make([]float64, len(phases))
		copy(a.Phases, phases)
	}
	return a, nil
}

func (a *EmitterArray) Len() int {
	return len(a.Positions)
}

// PhaseValues returns one phase per emitter, zeros when none are set.
func (a *EmitterArray) PhaseValues() []float64 {
	if len(a.Phases) == len(a.Positions) {
		return a.Phases
	}
	return make([]float64, len(a.Positions))
}

func (a *EmitterArray) HasPhases() bool {
	return len(a.Phases) != 0
}

// Add appends an emitter. A non-zero phase on an array without phases
// materializes zero phases for the existing emitters.
func (a *EmitterArray) Add(p gorkov.Vec3, phase float64) {
	if a.HasPhases() || phase != 0 {
		a.Phases = append(a.PhaseValues(), phase)
	}
	a.Positions = append(a.Positions, p)
}

// Remove deletes emitter i. The last emitter can never be removed.
func (a *EmitterArray) Remove(i int) error {
	if i < 0 || i >= len(a.Positions) {
		return fmt.Errorf("emitter index [%d] out of range [0, %d)", i, len(a.Positions))
	}
	if len(a.Positions) == 1 {
		return ErrNoEmitters
	}
	a.Positions = append(a.Positions[:i], a.Positions[i+1:]...)
	if a.HasPhases() {
		a.Phases = append(a.Phases[:i], a.Phases[i+1:]...)
	}
	return nil
}

// Clone returns a deep copy sharing no backing arrays with a.
func (a *EmitterArray) Clone() *EmitterArray {
	clone := &EmitterArray{}
	cp.CopyWithOption(clone, a, cp.Option{DeepCopy: true})
	return clone
}

// Scaled returns a copy with every position multiplied by f.
func (a *EmitterArray) Scaled(f float64) *EmitterArray {
	clone := a.Clone()
	for i := range clone.Positions {
		clone.Positions[i] = clone.Positions[i].Scale(f)
	}
	return clone
}

// MaxRadius is the largest emitter distance from the origin.
func (a *EmitterArray) MaxRadius() float64 {
	return maxRadius(a.Positions)
}

// MinSpacing is the smallest pairwise distance, +Inf for one emitter.
func (a *EmitterArray) MinSpacing() float64 {
	minDist := math.Inf(1)
	for i := range a.Positions {
		for j := i + 1; j < len(a.Positions); j++ {
			minDist = math.Min(minDist, a.Positions[i].Dist(a.Positions[j]))
		}
	}
	return minDist
}

// WrapPhases maps every phase into [0, 2pi).
func (a *EmitterArray) WrapPhases() {
	for i, ph := range a.Phases {
		ph = math.Mod(ph, 2*math.Pi)
		if ph < 0 {
			ph += 2 * math.Pi
		}
		if ph >= 2*math.Pi {
			ph = 0
		}
		a.Phases[i] = ph
	}
}

func maxRadius(positions []gorkov.Vec3) float64 {
	var r float64
	for _, p := range positions {
		r = math.Max(r, p.Norm())
	}
	return r
}

func copyPositions(positions []gorkov.Vec3) []gorkov.Vec3 {
	out := make([]gorkov.Vec3, len(positions))
	copy(out, positions)
	return out
}
