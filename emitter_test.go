package levitate

import (
	"errors"
	"math"
	test "testing"

	"nickandperla.net/levitate/gorkov"
)

func TestNewEmitterArray(t *test.T) {
	positions := []gorkov.Vec3{{X: 1}, {Y: 1}}
	a, err := NewEmitterArray(positions, nil)
	if err != nil {
		t.Fatalf("NewEmitterArray returned error: %v", err)
	}
	positions[0].X = 5
	if a.Positions[0].X != 1 {
		t.Errorf("NewEmitterArray kept a reference to its input")
	}
	if a.HasPhases() || len(a.PhaseValues()) != 2 {
		t.Errorf("Expected implicit zero phases, got %v", a.PhaseValues())
	}

	if _, err := NewEmitterArray(nil, nil); !errors.Is(err, ErrNoEmitters) {
		t.Errorf("Expected ErrNoEmitters, got %v", err)
	}
	if _, err := NewEmitterArray(positions, []float64{1}); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch, got %v", err)
	}
}

func TestCloneDoesNotAlias(t *test.T) {
	a, _ := NewEmitterArray(referencePositions(), []float64{0, 1, 2, 3, 4, 5, 6})
	b := a.Clone()
	b.Positions[0].X = 1
	b.Phases[0] = 1
	if a.Positions[0].X == 1 || a.Phases[0] == 1 {
		t.Errorf("Clone shares backing arrays with the original")
	}

	c := NewCandidate(a, 3)
	c.SetScore(Score{Fitness: 2, Valid: true})
	d := c.Clone()
	d.Array.Positions[1].Y = 7
	if c.Array.Positions[1].Y == 7 {
		t.Errorf("Candidate clone shares its array")
	}
	if !d.Valid() || d.Fitness() != 2 || d.Generation != 3 {
		t.Errorf("Candidate clone lost its score: %+v", d)
	}
}

func TestAddRemove(t *test.T) {
	a, _ := NewEmitterArray([]gorkov.Vec3{{}}, nil)
	a.Add(gorkov.Vec3{X: 0.01}, 0)
	if a.Len() != 2 || a.HasPhases() {
		t.Fatalf("Unexpected array after in-phase Add: %+v", a)
	}
	a.Add(gorkov.Vec3{Y: 0.01}, 1.5)
	if len(a.Phases) != 3 || a.Phases[0] != 0 || a.Phases[2] != 1.5 {
		t.Fatalf("Expected materialized phases, got %v", a.Phases)
	}

	if err := a.Remove(0); err != nil {
		t.Fatalf("Remove returned error: %v", err)
	}
	if a.Len() != 2 || len(a.Phases) != 2 || a.Positions[0].X != 0.01 {
		t.Errorf("Unexpected array after Remove: %+v", a)
	}
	if err := a.Remove(5); err == nil {
		t.Errorf("Remove out of range should fail")
	}
	a.Remove(0)
	if err := a.Remove(0); !errors.Is(err, ErrNoEmitters) {
		t.Errorf("Removing the last emitter should fail with ErrNoEmitters, got %v", err)
	}
}

func TestWrapPhases(t *test.T) {
	a, _ := NewEmitterArray([]gorkov.Vec3{{}, {}, {}, {}}, []float64{-0.5, 7, 2 * math.Pi, 1})
	a.WrapPhases()
	want := []float64{2*math.Pi - 0.5, 7 - 2*math.Pi, 0, 1}
	for i := range want {
		if !closeTo(a.Phases[i], want[i], 1e-12) {
			t.Errorf("Phase %d: expected %v, got %v", i, want[i], a.Phases[i])
		}
	}
}

func TestScaled(t *test.T) {
	a, _ := NewEmitterArray(referencePositions(), nil)
	b := a.Scaled(2)
	if !closeTo(b.MaxRadius(), 2*a.MaxRadius(), 1e-15) {
		t.Errorf("Expected radius %v, got %v", 2*a.MaxRadius(), b.MaxRadius())
	}
	if a.Positions[1] == b.Positions[1] {
		t.Errorf("Scaled modified the original")
	}
}
