package levitate

import (
	"context"
	"errors"
	"math"
	test "testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

func testGradientConfig() *GradientConfig {
	config := DefaultGradientConfig()
	config.Iterations = 20
	config.LogEvery = 0
	logger, _ := logtest.NewNullLogger()
	config.Logger = logger
	return &config
}

func TestRunGradient(t *test.T) {
	p := testProblem(t, 7)
	res, err := RunGradient(context.Background(), p, testGradientConfig())
	if err != nil {
		t.Fatalf("RunGradient returned error: %v", err)
	}
	if !res.Valid() {
		t.Fatalf("Best result is not valid")
	}
	if res.BestFitness() < p.ReferenceScore.Fitness {
		t.Errorf("Best fitness %v below the starting fitness %v", res.BestFitness(), p.ReferenceScore.Fitness)
	}
	if valid, penalty := p.Constraints.Check(res.Best.Array.Positions); !valid {
		t.Errorf("Best geometry violates constraints, penalty=%v", penalty)
	}
	if res.Iterations != 20 && res.Stop != StopStagnant {
		t.Errorf("Expected 20 iterations, got %d (%s)", res.Iterations, res.Stop)
	}
	checkHistory(t, res)
}

func TestGradientRespectsPerturbation(t *test.T) {
	config := DefaultProblemConfig(7)
	config.Objective.Grid.Resolution = 20
	config.Constraints.MaxPerturbation = 0.001
	p, err := NewProblem(config)
	if err != nil {
		t.Fatalf("NewProblem returned error: %v", err)
	}
	gc := testGradientConfig()
	gc.PositionRate = 0.001

	res, err := RunGradient(context.Background(), p, gc)
	if err != nil {
		t.Fatalf("RunGradient returned error: %v", err)
	}
	if exceeded, dev := p.Constraints.CheckPerturbation(res.Best.Array.Positions, p.Reference.Positions); exceeded {
		t.Errorf("Best geometry moved %v from its start", dev)
	}
	for _, imp := range res.Improvements {
		if !p.Constraints.Feasible(imp.Array.Positions, p.Reference.Positions) {
			t.Errorf("Improvement at iteration %d is infeasible", imp.Iteration)
		}
	}
}

func TestGradientPhasesOnly(t *test.T) {
	p := testProblem(t, 7)
	config := testGradientConfig()
	config.Mask = PhasesOnly

	res, err := RunGradient(context.Background(), p, config)
	if err != nil {
		t.Fatalf("RunGradient returned error: %v", err)
	}
	for i, pos := range res.Best.Array.Positions {
		if pos != p.Reference.Positions[i] {
			t.Errorf("Emitter %d moved under a phases-only mask", i)
		}
	}
	for i, ph := range res.Best.Array.Phases {
		if ph < 0 || ph >= 2*math.Pi {
			t.Errorf("Phase %d not wrapped: %v", i, ph)
		}
	}
}

func TestGradientFiniteDifference(t *test.T) {
	p := testProblem(t, 7)
	config := testGradientConfig()
	config.Iterations = 5
	config.Method = GradientFiniteDifference

	res, err := RunGradient(context.Background(), p, config)
	if err != nil {
		t.Fatalf("RunGradient returned error: %v", err)
	}
	if !res.Valid() || res.BestFitness() < p.ReferenceScore.Fitness {
		t.Errorf("Finite difference search lost ground: %v < %v", res.BestFitness(), p.ReferenceScore.Fitness)
	}
}

func TestDepthGradientMethodsAgree(t *test.T) {
	p := testProblem(t, 7)
	analytic := testGradientConfig()
	numeric := testGradientConfig()
	numeric.Method = GradientFiniteDifference

	start := p.Reference.Clone()
	start.Positions[1].X += 0.001
	start.Positions[4].Y -= 0.002

	da, ga, err := depthGradient(p, analytic, start)
	if err != nil {
		t.Fatalf("depthGradient returned error: %v", err)
	}
	dn, gn, err := depthGradient(p, numeric, start)
	if err != nil {
		t.Fatalf("depthGradient returned error: %v", err)
	}
	if !closeTo(da, dn, 1e-12*math.Abs(da)) {
		t.Errorf("Depths differ: %v vs %v", da, dn)
	}
	var scale float64
	for _, g := range ga {
		scale = math.Max(scale, math.Abs(g))
	}
	for i := range ga {
		if !closeTo(ga[i], gn[i], 1e-3*scale) {
			t.Errorf("Gradient %d: analytic %v, finite difference %v", i, ga[i], gn[i])
		}
	}
}

func TestGradientSkipsNonFinite(t *test.T) {
	p := testProblem(t, 7)
	config := testGradientConfig()
	config.Iterations = 5
	config.Patience = 0
	logger, hook := logtest.NewNullLogger()
	config.Logger = logger
	start := p.Reference.Clone()
	start.Positions[0].X = math.NaN()
	config.Start = start

	res, err := RunGradient(context.Background(), p, config)
	if err != nil {
		t.Fatalf("RunGradient returned error: %v", err)
	}
	if res.Best != nil {
		t.Errorf("A non-finite start should never become the best, got %v", res.BestFitness())
	}
	if len(res.History) != 5 {
		t.Fatalf("Expected 5 history records, got %d", len(res.History))
	}
	for i, rec := range res.History {
		if !rec.Skipped {
			t.Errorf("Record %d was not skipped", i)
		}
	}
	warnings := 0
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			warnings++
		}
	}
	if warnings != 5 {
		t.Errorf("Expected 5 warnings, got %d", warnings)
	}
}

func TestGradientCancelled(t *test.T) {
	p := testProblem(t, 7)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := RunGradient(ctx, p, testGradientConfig())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if res.Stop != StopCancelled || res.Iterations != 0 {
		t.Errorf("Unexpected partial result: stop=%q iterations=%d", res.Stop, res.Iterations)
	}
}

func TestGradientStartMismatch(t *test.T) {
	p := testProblem(t, 7)
	config := testGradientConfig()
	config.Start, _ = NewEmitterArray(referencePositions()[:3], nil)
	if _, err := RunGradient(context.Background(), p, config); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch, got %v", err)
	}
}

func TestGradientConfigValidate(t *test.T) {
	config := DefaultGradientConfig()
	config.Method = "newton"
	if err := config.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig for an unknown method, got %v", err)
	}
	config = DefaultGradientConfig()
	config.PositionRate = 0
	if err := config.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig for a zero rate, got %v", err)
	}
}

func TestGradientRecordsStart(t *test.T) {
	p := testProblem(t, 7)
	res, err := RunGradient(context.Background(), p, testGradientConfig())
	if err != nil {
		t.Fatalf("RunGradient returned error: %v", err)
	}
	if len(res.Improvements) == 0 {
		t.Fatalf("No improvements recorded")
	}
	first := res.Improvements[0]
	if first.Iteration != 0 || first.Fitness != p.ReferenceScore.Fitness {
		t.Errorf("First improvement is iteration %d fitness %v, expected the start at fitness %v",
			first.Iteration, first.Fitness, p.ReferenceScore.Fitness)
	}
	for i, pos := range first.Array.Positions {
		if pos != p.Reference.Positions[i] {
			t.Errorf("First improvement moved emitter %d from the start", i)
		}
	}
}
