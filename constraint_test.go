package levitate

import (
	"errors"
	"math/rand"
	test "testing"

	"nickandperla.net/levitate/gorkov"
)

func testEngine(t test.TB) *ConstraintEngine {
	ce, err := NewConstraintEngine(DefaultConstraintConfig())
	if err != nil {
		t.Fatalf("NewConstraintEngine returned error: %v", err)
	}
	return ce
}

func referencePositions() []gorkov.Vec3 {
	return FlowerOfLife(7, gorkov.DefaultConstants().Wavelength())
}

func TestReferenceIsFeasible(t *test.T) {
	ce := testEngine(t)
	if valid, penalty := ce.Check(referencePositions()); !valid || penalty != 0 {
		t.Errorf("Flower of Life reference should be feasible, got valid=%v penalty=%v", valid, penalty)
	}
}

func TestCompressedIsInfeasible(t *test.T) {
	ce := testEngine(t)
	ref, _ := NewEmitterArray(referencePositions(), nil)
	compressed := ref.Scaled(0.1)

	v := ce.Inspect(compressed.Positions)
	if v.Valid() || !(v.Penalty > 0) {
		t.Fatalf("Compressed geometry should be infeasible, got penalty=%v", v.Penalty)
	}
	if v.Reasons&FailedSpacing == 0 {
		t.Errorf("Expected spacing violation, got %v", v.Reasons)
	}
	if v.Reasons&FailedSpread != 0 {
		t.Errorf("Compressed geometry should not violate spread, got %v", v.Reasons)
	}
}

func TestSpacingPenaltyMonotonic(t *test.T) {
	ce := testEngine(t)
	last := 0.0
	for _, d := range []float64{0.0049, 0.004, 0.003, 0.002, 0.001, 0} {
		_, penalty := ce.Check([]gorkov.Vec3{{}, {X: d}})
		if !(penalty > last) {
			t.Errorf("Penalty at spacing %v should exceed %v, got %v", d, last, penalty)
		}
		if want := DefaultPenaltyWeight * (0.005 - d); !closeTo(penalty, want, 1e-6) {
			t.Errorf("Penalty at spacing %v: expected %v, got %v", d, want, penalty)
		}
		last = penalty
	}
}

func TestSpreadPenalty(t *test.T) {
	ce := testEngine(t)
	v := ce.Inspect([]gorkov.Vec3{{X: 0.07}})
	if v.Reasons != FailedSpread {
		t.Errorf("Expected spread violation only, got %v", v.Reasons)
	}
	if !closeTo(v.Penalty, DefaultPenaltyWeight*0.01, 1e-6) {
		t.Errorf("Expected penalty %v, got %v", DefaultPenaltyWeight*0.01, v.Penalty)
	}
}

func TestSpreadDisabled(t *test.T) {
	config := DefaultConstraintConfig()
	config.MaxSpread = 0
	ce, err := NewConstraintEngine(config)
	if err != nil {
		t.Fatalf("NewConstraintEngine returned error: %v", err)
	}
	if valid, _ := ce.Check([]gorkov.Vec3{{X: 1}}); !valid {
		t.Errorf("Spread should not be checked when disabled")
	}
}

func TestCheckBatch(t *test.T) {
	ce := testEngine(t)
	ref, _ := NewEmitterArray(referencePositions(), nil)
	penalties := ce.CheckBatch([][]gorkov.Vec3{ref.Positions, ref.Scaled(0.1).Positions})
	if len(penalties) != 2 {
		t.Fatalf("Expected 2 penalties, got %d", len(penalties))
	}
	if penalties[0] != 0 || !(penalties[1] > 0) {
		t.Errorf("Unexpected penalties %v", penalties)
	}
}

func TestRepairLeavesFeasibleUnchanged(t *test.T) {
	ce := testEngine(t)
	ref := referencePositions()
	repaired := ce.Repair(ref)
	for i := range ref {
		if repaired[i] != ref[i] {
			t.Errorf("Emitter %d moved from %v to %v", i, ref[i], repaired[i])
		}
	}
}

func TestRepairCoincidentPair(t *test.T) {
	config := DefaultConstraintConfig()
	config.RepairPasses = 1
	ce, err := NewConstraintEngine(config)
	if err != nil {
		t.Fatalf("NewConstraintEngine returned error: %v", err)
	}
	positions := []gorkov.Vec3{{X: 0.012}, {X: 0.012}}
	repaired := ce.Repair(positions)

	if d := repaired[0].Dist(repaired[1]); d < config.MinSpacing {
		t.Errorf("Coincident pair still %v apart after one pass", d)
	}
	if valid, penalty := ce.Check(repaired); !valid {
		t.Errorf("Repaired pair should be feasible, penalty=%v", penalty)
	}
	if positions[0] != positions[1] {
		t.Errorf("Repair modified its input")
	}
}

func TestRepairRescalesSpread(t *test.T) {
	ce := testEngine(t)
	positions := []gorkov.Vec3{{X: 0.08}, {X: -0.08}, {Y: 0.08}}
	repaired := ce.Repair(positions)
	if valid, penalty := ce.Check(repaired); !valid {
		t.Fatalf("Rescaled geometry should be feasible, penalty=%v", penalty)
	}
	again := ce.Repair(repaired)
	for i := range repaired {
		if again[i] != repaired[i] {
			t.Errorf("Repair is not idempotent on emitter %d: %v then %v", i, repaired[i], again[i])
		}
	}
}

func TestRepairRandomCrowd(t *test.T) {
	ce := testEngine(t)
	r := rand.New(rand.NewSource(7))
	improved := 0
	for trial := 0; trial < 20; trial++ {
		positions := UniformRandom(7, 0.01, r)
		_, before := ce.Check(positions)
		_, after := ce.Check(ce.Repair(positions))
		if after < before {
			improved++
		}
	}
	if improved < 15 {
		t.Errorf("Repair reduced the penalty of only %d/20 crowded layouts", improved)
	}
}

func TestClipPerturbation(t *test.T) {
	config := DefaultConstraintConfig()
	config.MaxPerturbation = 0.002
	ce, err := NewConstraintEngine(config)
	if err != nil {
		t.Fatalf("NewConstraintEngine returned error: %v", err)
	}
	ref := referencePositions()
	moved := copyPositions(ref)
	for i := range moved {
		moved[i].X += 0.01
	}

	if exceeded, dev := ce.CheckPerturbation(moved, ref); !exceeded || !closeTo(dev, 0.01, 1e-12) {
		t.Errorf("Expected exceeded perturbation of 0.01, got exceeded=%v dev=%v", exceeded, dev)
	}
	if v := ce.InspectAgainst(moved, ref); v.Valid() || v.Reasons&FailedPerturbation == 0 {
		t.Errorf("Expected a perturbation violation, got %v", v.Reasons)
	}
	if ce.Feasible(moved, ref) {
		t.Errorf("Moved geometry should not be feasible against its reference")
	}

	clipped := ce.ClipPerturbation(moved, ref)
	if exceeded, dev := ce.CheckPerturbation(clipped, ref); exceeded || dev > config.MaxPerturbation {
		t.Errorf("Clipped geometry still deviates by %v", dev)
	}
	if !ce.Feasible(ce.Project(moved, ref), ref) {
		t.Errorf("Projected geometry should be feasible")
	}
}

func TestCheckPerturbationShapeMismatch(t *test.T) {
	ce := testEngine(t)
	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrShapeMismatch) {
			t.Errorf("Expected ErrShapeMismatch panic, got %v", r)
		}
	}()
	ce.CheckPerturbation(referencePositions(), referencePositions()[:3])
}

func TestConstraintConfigValidate(t *test.T) {
	config := DefaultConstraintConfig()
	config.MinSpacing = -1
	if _, err := NewConstraintEngine(config); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
}

func TestViolationReasonString(t *test.T) {
	if s := (FailedSpacing | FailedPerturbation).String(); s != "spacing|perturbation" {
		t.Errorf("Unexpected reason string %q", s)
	}
	if s := ViolationReason(0).String(); s != "valid" {
		t.Errorf("Unexpected reason string %q", s)
	}
}
