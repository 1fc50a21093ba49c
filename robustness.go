package levitate

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
	"gonum.org/v1/gonum/stat"
	"nickandperla.net/levitate/gorkov"
)

type Scenario string

const (
	PositionNoise Scenario = "position_noise_only"
	PhaseNoise    Scenario = "phase_noise_only"
	BothNoise     Scenario = "both_noise"
	WithFailures  Scenario = "with_failures"
)

var Scenarios = []Scenario{PositionNoise, PhaseNoise, BothNoise, WithFailures}

// RobustnessConfig describes manufacturing tolerances: Gaussian position
// error (m), Gaussian phase error (degrees) and independent emitter failure.
type RobustnessConfig struct {
	Trials        int                `toml:"trials"`
	PositionNoise float64            `toml:"position_noise"`
	PhaseNoiseDeg float64            `toml:"phase_noise_deg"`
	FailureRate   float64            `toml:"failure_rate"`
	Grid          gorkov.Grid        `toml:"grid"`
	Workers       int                `toml:"workers"`
	Seed          int64              `toml:"seed"`
	Logger        logrus.FieldLogger `toml:"-"`
}

func DefaultRobustnessConfig() RobustnessConfig {
	return RobustnessConfig{
		Trials:        1000,
		PositionNoise: 0.002,
		PhaseNoiseDeg: 15,
		FailureRate:   0.05,
		Grid:          gorkov.Grid{Extent: 0.05, Resolution: 60, Height: 0.005},
	}
}

func (c *RobustnessConfig) Validate() error {
	if c.Trials < 1 {
		return fmt.Errorf("%w: trials must be at least 1, got %d", ErrInvalidConfig, c.Trials)
	}
	if c.PositionNoise < 0 || c.PhaseNoiseDeg < 0 {
		return fmt.Errorf("%w: noise levels must not be negative", ErrInvalidConfig)
	}
	if c.FailureRate < 0 || c.FailureRate > 1 {
		return fmt.Errorf("%w: failure_rate must lie in [0, 1], got %v", ErrInvalidConfig, c.FailureRate)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative, got %d", ErrInvalidConfig, c.Workers)
	}
	if err := c.Grid.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// ArraySource yields the geometry of one trial.
type ArraySource func(r *rand.Rand) *EmitterArray

// FixedArray returns a on every trial.
func FixedArray(a *EmitterArray) ArraySource {
	return func(*rand.Rand) *EmitterArray {
		return a
	}
}

// RandomArrays draws a fresh RandomSpaced layout on every trial.
func RandomArrays(n int, extent, minSpacing float64) ArraySource {
	return func(r *rand.Rand) *EmitterArray {
		return &EmitterArray{Positions: RandomSpaced(n, extent, minSpacing, r)}
	}
}

// GeometryStats summarizes the non-zero depths of one geometry in one
// scenario. Success is the percentage of trials that kept any depth and
// Retention the mean as a percentage of the noiseless mean.
type GeometryStats struct {
	Mean      float64   `json:"mean"`
	StdDev    float64   `json:"std"`
	Success   float64   `json:"success_pct"`
	Retention float64   `json:"retention_pct"`
	Depths    []float64 `json:"-"`
}

type ScenarioReport struct {
	Scenario Scenario      `json:"scenario"`
	A        GeometryStats `json:"a"`
	B        GeometryStats `json:"b"`
	Test     TTest         `json:"t_test"`
	CohensD  float64       `json:"cohens_d"`
}

type RobustnessReport struct {
	Trials     int              `json:"trials"`
	NoiselessA float64          `json:"noiseless_a"`
	NoiselessB float64          `json:"noiseless_b"`
	Scenarios  []ScenarioReport `json:"scenarios"`
}

// trialDepths holds the depths of one trial, indexed by scenario.
type trialDepths struct {
	noiselessA, noiselessB float64
	a, b                   [4]float64
}

// RunRobustness compares geometries a and b under manufacturing noise.
// Every trial draws from its own source seeded from Seed and the trial
// index, so reports are reproducible regardless of worker scheduling.
func RunRobustness(ctx context.Context, e *gorkov.Evaluator, config *RobustnessConfig, a, b ArraySource) (*RobustnessReport, error) {
	if e == nil || config == nil || a == nil || b == nil {
		return nil, fmt.Errorf("%w: robustness needs an evaluator, a config and two geometries", ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	log := loggerOrDefault(config.Logger).WithField("driver", "robustness")
	seed := newRand(config.Seed).Int63()
	points := config.Grid.Points()

	workers := config.Workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}

	log.WithFields(logrus.Fields{
		"trials":         config.Trials,
		"position_noise": config.PositionNoise,
		"phase_noise":    config.PhaseNoiseDeg,
		"failure_rate":   config.FailureRate,
	}).Info("Starting robustness trials")

	results := make([]trialDepths, config.Trials)
	p := pool.New().WithContext(ctx).WithCancelOnError().WithMaxGoroutines(workers)
	for trial := 0; trial < config.Trials; trial++ {
		trial := trial
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r := rand.New(rand.NewSource(seed + int64(trial)))
			td, err := runTrial(e, config, points, a(r), b(r), r)
			if err != nil {
				return fmt.Errorf("trial %d: %w", trial, err)
			}
			results[trial] = td
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	report := &RobustnessReport{Trials: config.Trials}
	noiselessA := make([]float64, len(results))
	noiselessB := make([]float64, len(results))
	for i, td := range results {
		noiselessA[i], noiselessB[i] = td.noiselessA, td.noiselessB
	}
	report.NoiselessA = stat.Mean(noiselessA, nil)
	report.NoiselessB = stat.Mean(noiselessB, nil)

	for s, scenario := range Scenarios {
		depthsA := make([]float64, len(results))
		depthsB := make([]float64, len(results))
		for i, td := range results {
			depthsA[i], depthsB[i] = td.a[s], td.b[s]
		}
		sr := ScenarioReport{
			Scenario: scenario,
			A:        summarize(depthsA, report.NoiselessA),
			B:        summarize(depthsB, report.NoiselessB),
		}
		nzA, nzB := nonZero(depthsA), nonZero(depthsB)
		if len(nzA) > 0 && len(nzB) > 0 {
			sr.Test = WelchTTest(nzA, nzB)
			sr.CohensD = CohensD(nzA, nzB)
		} else {
			sr.Test = TTest{PValue: 1}
		}
		report.Scenarios = append(report.Scenarios, sr)

		log.WithFields(logrus.Fields{
			"scenario": scenario,
			"mean_a":   sr.A.Mean,
			"mean_b":   sr.B.Mean,
			"p_value":  sr.Test.PValue,
			"cohens_d": sr.CohensD,
		}).Info("Scenario complete")
	}
	return report, nil
}

func runTrial(e *gorkov.Evaluator, config *RobustnessConfig, points []gorkov.Vec3, a, b *EmitterArray, r *rand.Rand) (trialDepths, error) {
	var td trialDepths
	var err error
	phaseSigma := config.PhaseNoiseDeg * math.Pi / 180

	if td.noiselessA, err = noisyDepth(e, points, a.Positions, a.Phases, nil); err != nil {
		return td, err
	}
	if td.noiselessB, err = noisyDepth(e, points, b.Positions, b.Phases, nil); err != nil {
		return td, err
	}

	for i, arr := range []*EmitterArray{a, b} {
		posOnly := jitterPositions(arr.Positions, config.PositionNoise, r)
		phaseOnly := jitterPhases(arr.PhaseValues(), phaseSigma, r)
		bothPos := jitterPositions(arr.Positions, config.PositionNoise, r)
		bothPhase := jitterPhases(arr.PhaseValues(), phaseSigma, r)
		active := make([]bool, arr.Len())
		for j := range active {
			active[j] = r.Float64() > config.FailureRate
		}

		depths := &td.a
		if i == 1 {
			depths = &td.b
		}
		cases := []struct {
			positions []gorkov.Vec3
			phases    []float64
			active    []bool
		}{
			{posOnly, arr.Phases, nil},
			{arr.Positions, phaseOnly, nil},
			{bothPos, bothPhase, nil},
			{bothPos, bothPhase, active},
		}
		for s, c := range cases {
			if depths[s], err = noisyDepth(e, points, c.positions, c.phases, c.active); err != nil {
				return td, err
			}
		}
	}
	return td, nil
}

// noisyDepth is the well depth of the active emitters; zero when every
// emitter has failed.
func noisyDepth(e *gorkov.Evaluator, points, positions []gorkov.Vec3, phases []float64, active []bool) (float64, error) {
	if active != nil {
		var pos []gorkov.Vec3
		var ph []float64
		for i, on := range active {
			if !on {
				continue
			}
			pos = append(pos, positions[i])
			if len(phases) != 0 {
				ph = append(ph, phases[i])
			}
		}
		positions, phases = pos, ph
	}
	if len(positions) == 0 {
		return 0, nil
	}
	u, err := e.Evaluate(positions, phases, points)
	if err != nil {
		return 0, err
	}
	return gorkov.WellDepth(u), nil
}

func jitterPositions(positions []gorkov.Vec3, sigma float64, r *rand.Rand) []gorkov.Vec3 {
	out := copyPositions(positions)
	for i := range out {
		out[i].X += r.NormFloat64() * sigma
		out[i].Y += r.NormFloat64() * sigma
	}
	return out
}

func jitterPhases(phases []float64, sigma float64, r *rand.Rand) []float64 {
	out := make([]float64, len(phases))
	for i, ph := range phases {
		out[i] = ph + r.NormFloat64()*sigma
	}
	return out
}

func nonZero(x []float64) []float64 {
	var out []float64
	for _, v := range x {
		if v > 0 {
			out = append(out, v)
		}
	}
	return out
}

func summarize(depths []float64, noiseless float64) GeometryStats {
	gs := GeometryStats{Depths: depths}
	nz := nonZero(depths)
	if len(depths) > 0 {
		gs.Success = float64(len(nz)) / float64(len(depths)) * 100
	}
	if len(nz) > 0 {
		gs.Mean, gs.StdDev = stat.PopMeanStdDev(nz, nil)
	}
	if noiseless > 0 {
		gs.Retention = gs.Mean / noiseless * 100
	}
	return gs
}
