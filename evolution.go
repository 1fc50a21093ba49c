package levitate

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

type EvolutionConfig struct {
	Population  PopulationConfig   `toml:"population"`
	Generations int                `toml:"generations"`
	Elites      int                `toml:"elites"`
	Patience    int                `toml:"patience"`
	Mutation    MutationConfig     `toml:"mutation"`
	Mask        ParameterMask      `toml:"mask"`
	Seed        int64              `toml:"seed"`
	LogEvery    int                `toml:"log_every"`
	Logger      logrus.FieldLogger `toml:"-"`
}

func DefaultEvolutionConfig() EvolutionConfig {
	return EvolutionConfig{
		Population:  DefaultPopulationConfig(),
		Generations: 1000,
		Patience:    200,
		Mutation:    DefaultMutationConfig(),
		Mask:        PositionsOnly,
		LogEvery:    50,
	}
}

func (c *EvolutionConfig) Validate() error {
	if c.Population.Size < 2 {
		return fmt.Errorf("%w: population size must be at least 2, got %d", ErrInvalidConfig, c.Population.Size)
	}
	if c.Population.InitAttempts < 0 || c.Population.InitExtent < 0 || c.Population.FallbackSigma < 0 {
		return fmt.Errorf("%w: population init parameters must not be negative", ErrInvalidConfig)
	}
	if c.Generations < 1 {
		return fmt.Errorf("%w: generations must be at least 1, got %d", ErrInvalidConfig, c.Generations)
	}
	if c.Elites < 0 || c.Elites > c.Population.Size {
		return fmt.Errorf("%w: elites must lie in [0, %d], got %d", ErrInvalidConfig, c.Population.Size, c.Elites)
	}
	if c.Patience < 0 {
		return fmt.Errorf("%w: patience must not be negative, got %d", ErrInvalidConfig, c.Patience)
	}
	if err := c.Mutation.Validate(); err != nil {
		return err
	}
	return c.Mask.Validate()
}

// eliteCount defaults to a fifth of the population, and at least one.
func (c *EvolutionConfig) eliteCount() int {
	if c.Elites > 0 {
		return c.Elites
	}
	if n := c.Population.Size / 5; n > 0 {
		return n
	}
	return 1
}

// Evolver runs the evolutionary search one generation at a time.
type Evolver struct {
	Problem    *Problem
	Config     *EvolutionConfig
	Population *Population
	Result     *Result
	Selector   *Selector
	Reproducer *Reproducer

	log        logrus.FieldLogger
	rand       *rand.Rand
	generation int
	stagnant   int
	done       bool
}

func NewEvolver(p *Problem, config *EvolutionConfig) (*Evolver, error) {
	if p == nil || config == nil {
		return nil, fmt.Errorf("%w: evolver needs a problem and a config", ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	res, err := newResult("evolutionary", p, p.Reference, config.Mask)
	if err != nil {
		return nil, err
	}

	r := newRand(config.Seed)
	e := &Evolver{
		Problem:    p,
		Config:     config,
		Result:     res,
		Selector:   NewSelector(config.eliteCount()),
		Reproducer: NewReproducer(p.Constraints, NewMutation(config.Mutation, config.Mask), config.Mask),
		log:        loggerOrDefault(config.Logger).WithField("driver", "evolutionary"),
		rand:       r,
	}
	e.Population = NewPopulation(p, config.Population, config.Mask, 0, r)
	return e, nil
}

func (e *Evolver) Generation() int {
	return e.generation
}

func (e *Evolver) Done() bool {
	return e.done
}

// Step evaluates the current generation, records it, and breeds the next.
// It returns true once the generation budget or the patience is exhausted.
func (e *Evolver) Step() (bool, error) {
	if e.done {
		return true, nil
	}
	gen := e.generation
	scores, err := e.Population.Evaluate(e.Problem.Objective)
	if err != nil {
		return false, fmt.Errorf("generation %d: %w", gen, err)
	}

	rec := HistoryRecord{Index: gen}
	var validFitness []float64
	bestIdx := -1
	for i, s := range scores {
		if !s.Valid {
			continue
		}
		validFitness = append(validFitness, s.Fitness)
		if bestIdx < 0 || s.Fitness > scores[bestIdx].Fitness {
			bestIdx = i
		}
	}
	rec.ValidCount = len(validFitness)

	improved := false
	if bestIdx >= 0 {
		rec.CurrentBest = scores[bestIdx].Fitness
		rec.MeanValid = stat.Mean(validFitness, nil)
		improved = e.Result.offer(e.Population.Candidates[bestIdx], gen)
	}
	if improved {
		e.stagnant = 0
		e.log.WithFields(logrus.Fields{
			"generation":  gen,
			"best":        e.Result.BestFitness(),
			"improvement": e.Result.Improvement(),
		}).Info("New best geometry")
	} else {
		e.stagnant++
	}
	rec.BestSoFar = e.Result.BestFitness()

	if e.Config.LogEvery > 0 && gen%e.Config.LogEvery == 0 {
		e.log.WithFields(logrus.Fields{
			"generation": gen,
			"best":       rec.BestSoFar,
			"valid":      rec.ValidCount,
			"population": e.Population.Size(),
		}).Info("Generation complete")
	}

	e.generation++
	e.Result.Iterations = e.generation

	elites := e.Selector.Select(scores)
	if len(elites) == 0 {
		e.log.WithField("generation", gen).Warn("No valid candidates, reinitializing population")
		rec.Reinitialized = true
		e.Result.Reinitializations++
		e.Population = NewPopulation(e.Problem, e.Config.Population, e.Config.Mask, e.generation, e.rand)
	} else {
		parents := make([]*Candidate, len(elites))
		for i, idx := range elites {
			parents[i] = e.Population.Candidates[idx]
		}
		e.Population = e.Reproducer.Next(parents, e.Config.Population.Size, e.generation, e.rand)
	}
	e.Result.History.Append(rec)

	switch {
	case e.Config.Patience > 0 && e.stagnant >= e.Config.Patience:
		e.Result.Stop = StopStagnant
		e.log.WithFields(logrus.Fields{
			"generation": gen,
			"patience":   e.Config.Patience,
		}).Info("Early stopping, best fitness stagnant")
		e.done = true
	case e.generation >= e.Config.Generations:
		e.Result.Stop = StopCompleted
		e.done = true
	}
	return e.done, nil
}

// RunEvolutionary searches emitter layouts (and/or phases) by elitist blend
// crossover. The context is checked once per generation; on cancellation
// the best result so far is returned together with the context error.
func RunEvolutionary(ctx context.Context, p *Problem, config *EvolutionConfig) (*Result, error) {
	start := time.Now()
	e, err := NewEvolver(p, config)
	if err != nil {
		return nil, err
	}

	e.log.WithFields(logrus.Fields{
		"emitters":    p.Config.Emitters,
		"population":  config.Population.Size,
		"generations": config.Generations,
		"mask":        config.Mask.String(),
		"reference":   e.Result.Reference.Fitness(),
	}).Info("Starting evolutionary search")

	for !e.Done() {
		if err := ctx.Err(); err != nil {
			e.Result.Stop = StopCancelled
			e.Result.Elapsed = time.Since(start)
			return e.Result, err
		}
		if _, err := e.Step(); err != nil {
			e.Result.Elapsed = time.Since(start)
			return e.Result, err
		}
	}

	e.Result.Elapsed = time.Since(start)
	e.log.WithFields(logrus.Fields{
		"generations": e.Result.Iterations,
		"best":        e.Result.BestFitness(),
		"improvement": e.Result.Improvement(),
		"stop":        e.Result.Stop,
		"elapsed":     e.Result.Elapsed,
	}).Info("Evolutionary search finished")
	return e.Result, nil
}
