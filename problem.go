package levitate

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"nickandperla.net/levitate/gorkov"
)

// ProblemConfig is everything held constant across one search: the array
// size, the physics, the constraints and the scoring grid.
type ProblemConfig struct {
	Emitters    int              `toml:"emitters"`
	Physics     gorkov.Constants `toml:"physics"`
	Constraints ConstraintConfig `toml:"constraints"`
	Objective   ObjectiveConfig  `toml:"objective"`
}

func DefaultProblemConfig(emitters int) ProblemConfig {
	return ProblemConfig{
		Emitters:    emitters,
		Physics:     gorkov.DefaultConstants(),
		Constraints: DefaultConstraintConfig(),
		Objective:   DefaultObjectiveConfig(),
	}
}

func (c ProblemConfig) Validate() error {
	if c.Emitters < 1 {
		return fmt.Errorf("%w: emitters must be at least 1, got %d", ErrInvalidConfig, c.Emitters)
	}
	if err := c.Physics.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Constraints.Validate(); err != nil {
		return err
	}
	if err := c.Objective.Validate(); err != nil {
		return err
	}
	q := c.Objective.Quality
	if q.Depth < 0 || q.Symmetry < 0 || q.Uniformity < 0 {
		return fmt.Errorf("%w: quality weights must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Problem wires the evaluator, constraint engine and objective of one run
// together with the reference geometry every result is compared against.
type Problem struct {
	Config         ProblemConfig
	Evaluator      *gorkov.Evaluator
	Constraints    *ConstraintEngine
	Objective      *Objective
	Reference      *EmitterArray
	ReferenceScore Score
}

func NewProblem(config ProblemConfig) (*Problem, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	evaluator, err := gorkov.NewEvaluator(config.Physics)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	constraints, err := NewConstraintEngine(config.Constraints)
	if err != nil {
		return nil, err
	}
	objective, err := NewObjective(evaluator, constraints, config.Objective)
	if err != nil {
		return nil, err
	}
	reference, err := ReferenceGeometry(config.Emitters, config.Physics)
	if err != nil {
		return nil, err
	}
	score, err := objective.Evaluate(reference)
	if err != nil {
		return nil, fmt.Errorf("failed to score reference geometry: %w", err)
	}

	return &Problem{
		Config:         config,
		Evaluator:      evaluator,
		Constraints:    constraints,
		Objective:      objective,
		Reference:      reference,
		ReferenceScore: score,
	}, nil
}

func loggerOrDefault(l logrus.FieldLogger) logrus.FieldLogger {
	if l == nil {
		return logrus.StandardLogger()
	}
	return l
}
