package levitate

import (
	"context"
	"errors"
	test "testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

func testEvolutionConfig() *EvolutionConfig {
	config := DefaultEvolutionConfig()
	config.Population.Size = 20
	config.Generations = 50
	config.Seed = 42
	config.LogEvery = 0
	logger, _ := logtest.NewNullLogger()
	config.Logger = logger
	return &config
}

func checkHistory(t *test.T, res *Result) {
	t.Helper()
	if len(res.History) != res.Iterations {
		t.Errorf("Expected %d history records, got %d", res.Iterations, len(res.History))
	}
	last := 0.0
	for i, rec := range res.History {
		if rec.Index != i {
			t.Errorf("Record %d has index %d", i, rec.Index)
		}
		if rec.BestSoFar < last {
			t.Errorf("Best so far decreased at %d: %v -> %v", i, last, rec.BestSoFar)
		}
		last = rec.BestSoFar
	}
	if len(res.History) > 0 && last != res.BestFitness() {
		t.Errorf("Final best so far %v differs from best fitness %v", last, res.BestFitness())
	}
}

func TestRunEvolutionary(t *test.T) {
	p := testProblem(t, 7)
	res, err := RunEvolutionary(context.Background(), p, testEvolutionConfig())
	if err != nil {
		t.Fatalf("RunEvolutionary returned error: %v", err)
	}
	if !res.Valid() {
		t.Fatalf("Best result is not valid")
	}
	if res.BestFitness() < p.ReferenceScore.Fitness {
		t.Errorf("Best fitness %v below reference %v", res.BestFitness(), p.ReferenceScore.Fitness)
	}
	if valid, penalty := p.Constraints.Check(res.Best.Array.Positions); !valid {
		t.Errorf("Best geometry violates constraints, penalty=%v", penalty)
	}
	if res.Improvement() < 0 {
		t.Errorf("Negative improvement %v", res.Improvement())
	}
	if res.Stop != StopCompleted && res.Stop != StopStagnant {
		t.Errorf("Unexpected stop reason %q", res.Stop)
	}
	checkHistory(t, res)
}

func TestRunEvolutionarySeeded(t *test.T) {
	p := testProblem(t, 7)
	config := testEvolutionConfig()
	config.Generations = 10

	first, err := RunEvolutionary(context.Background(), p, config)
	if err != nil {
		t.Fatalf("RunEvolutionary returned error: %v", err)
	}
	second, err := RunEvolutionary(context.Background(), p, config)
	if err != nil {
		t.Fatalf("RunEvolutionary returned error: %v", err)
	}
	if first.BestFitness() != second.BestFitness() {
		t.Errorf("Seeded runs diverged: %v vs %v", first.BestFitness(), second.BestFitness())
	}
}

func TestEvolverStepKeepsSize(t *test.T) {
	p := testProblem(t, 7)
	e, err := NewEvolver(p, testEvolutionConfig())
	if err != nil {
		t.Fatalf("NewEvolver returned error: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := e.Step(); err != nil {
			t.Fatalf("Step %d returned error: %v", i, err)
		}
		if e.Population.Size() != 20 {
			t.Errorf("Generation %d has %d candidates", e.Generation(), e.Population.Size())
		}
	}
	if e.Generation() != 5 {
		t.Errorf("Expected generation 5, got %d", e.Generation())
	}
}

func TestEvolutionPatience(t *test.T) {
	p := testProblem(t, 7)
	config := testEvolutionConfig()
	config.Patience = 1
	config.Generations = 100

	res, err := RunEvolutionary(context.Background(), p, config)
	if err != nil {
		t.Fatalf("RunEvolutionary returned error: %v", err)
	}
	if res.Stop != StopStagnant || res.Iterations >= 100 {
		t.Errorf("Expected an early stagnant stop, got %q after %d", res.Stop, res.Iterations)
	}
}

func TestEvolutionCancelled(t *test.T) {
	p := testProblem(t, 7)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := RunEvolutionary(ctx, p, testEvolutionConfig())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if res == nil || res.Stop != StopCancelled {
		t.Fatalf("Expected a cancelled partial result, got %+v", res)
	}
	if res.BestFitness() != p.ReferenceScore.Fitness {
		t.Errorf("Cancelled run should report the reference, got %v", res.BestFitness())
	}
}

func TestEvolutionReinitializes(t *test.T) {
	config := DefaultProblemConfig(7)
	config.Objective.Grid.Resolution = 10
	config.Constraints.MinSpacing = 0.05
	config.Constraints.MaxSpread = 0.01
	p, err := NewProblem(config)
	if err != nil {
		t.Fatalf("NewProblem returned error: %v", err)
	}

	ec := testEvolutionConfig()
	ec.Generations = 3
	ec.Population.InitAttempts = 2
	logger, hook := logtest.NewNullLogger()
	ec.Logger = logger

	res, err := RunEvolutionary(context.Background(), p, ec)
	if err != nil {
		t.Fatalf("RunEvolutionary returned error: %v", err)
	}
	if res.Best != nil || res.Valid() {
		t.Errorf("No candidate can be feasible, got best %+v", res.Best)
	}
	if res.Reinitializations != 3 {
		t.Errorf("Expected 3 reinitializations, got %d", res.Reinitializations)
	}
	for i, rec := range res.History {
		if !rec.Reinitialized || rec.BestSoFar != 0 || rec.ValidCount != 0 {
			t.Errorf("Record %d: unexpected %+v", i, rec)
		}
	}
	warnings := 0
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			warnings++
		}
	}
	if warnings != 3 {
		t.Errorf("Expected 3 reinitialization warnings, got %d", warnings)
	}
}

func TestEvolutionPhasesOnly(t *test.T) {
	p := testProblem(t, 7)
	config := testEvolutionConfig()
	config.Generations = 10
	config.Mask = PhasesOnly

	res, err := RunEvolutionary(context.Background(), p, config)
	if err != nil {
		t.Fatalf("RunEvolutionary returned error: %v", err)
	}
	for i, pos := range res.Best.Array.Positions {
		if pos != p.Reference.Positions[i] {
			t.Errorf("Emitter %d moved under a phases-only mask", i)
		}
	}
	if res.BestFitness() < p.ReferenceScore.Fitness {
		t.Errorf("Best fitness %v below reference %v", res.BestFitness(), p.ReferenceScore.Fitness)
	}
}

func TestEvolutionConfigValidate(t *test.T) {
	config := DefaultEvolutionConfig()
	config.Population.Size = 1
	if err := config.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig for a population of one, got %v", err)
	}
	config = DefaultEvolutionConfig()
	config.Mask = ParameterMask{}
	if err := config.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig for an empty mask, got %v", err)
	}
}

func TestEvolutionIgnoresRoundingGains(t *test.T) {
	p := testProblem(t, 7)
	config := testEvolutionConfig()
	config.Generations = 400
	config.Patience = 0
	config.Seed = 3

	res, err := RunEvolutionary(context.Background(), p, config)
	if err != nil {
		t.Fatalf("RunEvolutionary returned error: %v", err)
	}
	for i := 1; i < len(res.Improvements); i++ {
		prev, cur := res.Improvements[i-1], res.Improvements[i]
		if !improves(cur.Fitness, prev.Fitness) {
			t.Errorf("Improvement at generation %d gains only %v over generation %d",
				cur.Iteration, cur.Fitness-prev.Fitness, prev.Iteration)
		}
	}
}
