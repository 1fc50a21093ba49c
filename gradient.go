package levitate

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/diff/fd"
	"nickandperla.net/levitate/gorkov"
)

const (
	GradientAnalytic         = "analytic"
	GradientFiniteDifference = "finite_difference"
)

type GradientConfig struct {
	Iterations   int                `toml:"iterations"`
	PositionRate float64            `toml:"position_rate"`
	PhaseRate    float64            `toml:"phase_rate"`
	Patience     int                `toml:"patience"`
	Method       string             `toml:"method"`
	Step         float64            `toml:"fd_step"`
	Mask         ParameterMask      `toml:"mask"`
	LogEvery     int                `toml:"log_every"`
	Start        *EmitterArray      `toml:"-"`
	Logger       logrus.FieldLogger `toml:"-"`
}

func DefaultGradientConfig() GradientConfig {
	return GradientConfig{
		Iterations:   500,
		PositionRate: 0.0003,
		PhaseRate:    0.01,
		Patience:     150,
		Method:       GradientAnalytic,
		Step:         1e-7,
		Mask:         PositionsOnly,
		LogEvery:     50,
	}
}

func (c *GradientConfig) Validate() error {
	if c.Iterations < 1 {
		return fmt.Errorf("%w: iterations must be at least 1, got %d", ErrInvalidConfig, c.Iterations)
	}
	if c.Mask.Positions && !(c.PositionRate > 0) {
		return fmt.Errorf("%w: position_rate must be positive, got %v", ErrInvalidConfig, c.PositionRate)
	}
	if c.Mask.Phases && !(c.PhaseRate > 0) {
		return fmt.Errorf("%w: phase_rate must be positive, got %v", ErrInvalidConfig, c.PhaseRate)
	}
	if c.Patience < 0 {
		return fmt.Errorf("%w: patience must not be negative, got %d", ErrInvalidConfig, c.Patience)
	}
	switch c.Method {
	case "", GradientAnalytic:
	case GradientFiniteDifference:
		if !(c.Step > 0) {
			return fmt.Errorf("%w: fd_step must be positive, got %v", ErrInvalidConfig, c.Step)
		}
	default:
		return fmt.Errorf("%w: unknown gradient method %q", ErrInvalidConfig, c.Method)
	}
	return c.Mask.Validate()
}

// rates lays out the learning rate of every flattened parameter.
func (c *GradientConfig) rates(n int) []float64 {
	rates := make([]float64, 0, c.Mask.Dim(n))
	if c.Mask.Positions {
		for i := 0; i < 2*n; i++ {
			rates = append(rates, c.PositionRate)
		}
	}
	if c.Mask.Phases {
		for i := 0; i < n; i++ {
			rates = append(rates, c.PhaseRate)
		}
	}
	return rates
}

// depthGradient returns the unconstrained well depth of a and its gradient
// over the masked parameters.
func depthGradient(p *Problem, c *GradientConfig, a *EmitterArray) (float64, []float64, error) {
	points := p.Objective.Points()

	if c.Method == GradientFiniteDifference {
		depth := func(x []float64) float64 {
			trial := a.Clone()
			c.Mask.Unflatten(trial, x)
			u, err := p.Evaluator.Evaluate(trial.Positions, trial.Phases, points)
			if err != nil {
				return math.NaN()
			}
			return gorkov.WellDepth(u)
		}
		x := c.Mask.Flatten(a)
		grad := fd.Gradient(nil, depth, x, &fd.Settings{Formula: fd.Central, Step: c.Step})
		return depth(x), grad, nil
	}

	depth, dPos, dPhase, err := p.Evaluator.WellDepthGradient(a.Positions, a.Phases, points)
	if err != nil {
		return 0, nil, err
	}
	grad := make([]float64, 0, c.Mask.Dim(a.Len()))
	if c.Mask.Positions {
		for _, d := range dPos {
			grad = append(grad, d.X, d.Y)
		}
	}
	if c.Mask.Phases {
		grad = append(grad, dPhase...)
	}
	return depth, grad, nil
}

// RunGradient climbs the unconstrained well depth with Adam and projects
// back onto the feasible region after every step: clip each emitter to the
// perturbation radius around its starting position (when MaxPerturbation is
// set), then repair spacing and spread. The best feasible configuration by
// objective fitness is tracked apart from the current iterate. Steps whose
// depth or gradient is not finite are skipped and count as stagnant.
func RunGradient(ctx context.Context, p *Problem, config *GradientConfig) (*Result, error) {
	if p == nil || config == nil {
		return nil, fmt.Errorf("%w: gradient search needs a problem and a config", ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	startTime := time.Now()
	log := loggerOrDefault(config.Logger).WithField("driver", "gradient")

	start := p.Reference
	if config.Start != nil {
		start = config.Start
	}
	if start.Len() != p.Config.Emitters {
		return nil, fmt.Errorf("%w: start has %d emitters, problem has %d", ErrShapeMismatch, start.Len(), p.Config.Emitters)
	}
	current := start.Clone()
	if config.Mask.Phases && !current.HasPhases() {
		current.Phases = make([]float64, current.Len())
	}

	var anchor []gorkov.Vec3
	if p.Constraints.Config.MaxPerturbation > 0 {
		anchor = copyPositions(start.Positions)
	}

	res, err := newResult("gradient", p, p.Reference, config.Mask)
	if err != nil {
		return nil, err
	}
	res.Best = nil
	initial, err := scoreFeasible(p, current, anchor, 0)
	if err != nil {
		return nil, err
	}
	res.offer(initial, 0)

	log.WithFields(logrus.Fields{
		"emitters":   p.Config.Emitters,
		"iterations": config.Iterations,
		"mask":       config.Mask.String(),
		"method":     config.Method,
		"start":      initial.Fitness(),
	}).Info("Starting gradient search")

	adam := NewAdam(config.Mask.Dim(current.Len()))
	rates := config.rates(current.Len())
	stagnant := 0

	for it := 0; it < config.Iterations; it++ {
		if err := ctx.Err(); err != nil {
			res.Stop = StopCancelled
			res.Elapsed = time.Since(startTime)
			return res, err
		}
		res.Iterations = it + 1
		rec := HistoryRecord{Index: it}

		depth, grad, err := depthGradient(p, config, current)
		if err != nil {
			return res, fmt.Errorf("iteration %d: %w", it, err)
		}

		improved := false
		if math.IsNaN(depth) || math.IsInf(depth, 0) || !allFinite(grad) {
			log.WithField("iteration", it).Warn("Non-finite depth or gradient, skipping step")
			rec.Skipped = true
		} else {
			previous := current.Clone()
			x := config.Mask.Flatten(current)
			adam.Step(x, grad, rates)
			config.Mask.Unflatten(current, x)
			if config.Mask.Positions {
				current.Positions = p.Constraints.Project(current.Positions, anchor)
			}
			current.WrapPhases()

			cand, err := scoreFeasible(p, current, anchor, it)
			if err != nil {
				return res, fmt.Errorf("iteration %d: %w", it, err)
			}
			if math.IsNaN(cand.Fitness()) || math.IsInf(cand.Fitness(), 0) {
				log.WithField("iteration", it).Warn("Non-finite fitness after step, restoring parameters")
				current = previous
				rec.Skipped = true
			} else {
				if cand.Valid() {
					rec.ValidCount = 1
					rec.CurrentBest = cand.Fitness()
					rec.MeanValid = cand.Fitness()
				}
				improved = res.offer(cand, it)
			}
		}

		if improved {
			stagnant = 0
			log.WithFields(logrus.Fields{
				"iteration":   it,
				"best":        res.BestFitness(),
				"improvement": res.Improvement(),
			}).Info("New best geometry")
		} else {
			stagnant++
		}
		rec.BestSoFar = res.BestFitness()
		res.History.Append(rec)

		if config.LogEvery > 0 && it%config.LogEvery == 0 {
			log.WithFields(logrus.Fields{
				"iteration": it,
				"best":      rec.BestSoFar,
				"depth":     depth,
			}).Info("Iteration complete")
		}

		if config.Patience > 0 && stagnant >= config.Patience {
			res.Stop = StopStagnant
			log.WithFields(logrus.Fields{
				"iteration": it,
				"patience":  config.Patience,
			}).Info("Early stopping, best fitness stagnant")
			break
		}
	}

	res.Elapsed = time.Since(startTime)
	log.WithFields(logrus.Fields{
		"iterations":  res.Iterations,
		"best":        res.BestFitness(),
		"improvement": res.Improvement(),
		"stop":        res.Stop,
		"elapsed":     res.Elapsed,
	}).Info("Gradient search finished")
	return res, nil
}

// scoreFeasible scores a snapshot of a. Exceeding the perturbation radius
// around anchor marks the candidate invalid even at zero penalty.
func scoreFeasible(p *Problem, a *EmitterArray, anchor []gorkov.Vec3, iteration int) (*Candidate, error) {
	score, err := p.Objective.Evaluate(a)
	if err != nil {
		return nil, err
	}
	if anchor != nil {
		if exceeded, _ := p.Constraints.CheckPerturbation(a.Positions, anchor); exceeded {
			score.Valid = false
		}
	}
	c := NewCandidate(a.Clone(), iteration)
	c.SetScore(score)
	return c, nil
}
