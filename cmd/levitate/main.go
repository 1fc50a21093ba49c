package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"nickandperla.net/levitate"
	"nickandperla.net/levitate/gorkov"
)

var (
	configPath  string
	emitters    int
	seed        int64
	outPath     string
	plotPath    string
	layoutPath  string
	profileDir  string
	persistPath string
	maskName    string
	extended    bool
	verbose     bool

	method    string
	startPath string

	trials   int
	againstB string
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		logrus.WithError(err).Fatal("levitate failed")
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "levitate",
		Short:         "Optimize emitter layouts for acoustic levitation traps",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "TOML tool config; defaults are used when empty")
	pf.IntVarP(&emitters, "emitters", "n", 0, "Number of emitters, overrides [problem] emitters")
	pf.Int64Var(&seed, "seed", 0, "Random seed, 0 seeds from the clock")
	pf.StringVarP(&outPath, "out", "o", "", "Write the JSON result here instead of stdout")
	pf.StringVar(&plotPath, "plot", "", "Save a fitness history plot (png, svg, pdf)")
	pf.StringVar(&layoutPath, "layout-plot", "", "Save the best and reference emitter layouts")
	pf.StringVar(&profileDir, "profile", "", "Write a CPU profile into this directory")
	pf.StringVar(&persistPath, "db", "", "Store results in this SQLite database, overrides [persistence]")
	pf.BoolVar(&extended, "extended", false, "Score symmetry and uniformity on the wide quality grid")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	evolve := &cobra.Command{
		Use:   "evolve",
		Short: "Evolutionary search over emitter positions and/or phases",
		RunE:  runEvolve,
	}
	evolve.Flags().StringVar(&maskName, "mask", "positions", "Free parameters: positions, phases or positions+phases, overrides [evolution.mask]")

	gradient := &cobra.Command{
		Use:   "gradient",
		Short: "Projected Adam ascent on well depth",
		RunE:  runGradient,
	}
	gradient.Flags().StringVar(&maskName, "mask", "positions", "Free parameters: positions, phases or positions+phases, overrides [gradient.mask]")
	gradient.Flags().StringVar(&method, "method", levitate.GradientAnalytic, "Gradient method: analytic or finite_difference, overrides [gradient] method")
	gradient.Flags().StringVar(&startPath, "start", "", "Start from the best geometry of a JSON result")

	robustness := &cobra.Command{
		Use:   "robustness [result.json]",
		Short: "Compare a geometry against the reference under manufacturing noise",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runRobustness,
	}
	robustness.Flags().IntVar(&trials, "trials", 0, "Monte Carlo trials, overrides [robustness] trials")
	robustness.Flags().StringVar(&againstB, "against", "reference", "Comparison geometry: reference, random or grid")

	reference := &cobra.Command{
		Use:   "reference",
		Short: "Score the Flower of Life reference geometry",
		RunE:  runReference,
	}

	runs := &cobra.Command{
		Use:   "runs",
		Short: "Summarize stored runs per driver",
		RunE:  runRuns,
	}

	root.AddCommand(evolve, gradient, robustness, reference, runs)
	return root
}

func setupLogging() {
	logrus.SetOutput(os.Stderr)
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05"})
	} else {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
}

func loadConfig() (*levitate.ToolConfig, error) {
	var config *levitate.ToolConfig
	if configPath == "" {
		c := levitate.DefaultToolConfig()
		config = &c
	} else {
		var err error
		if config, err = levitate.LoadToolConfig(configPath); err != nil {
			return nil, err
		}
	}
	if emitters > 0 {
		config.Problem.Emitters = emitters
	}
	if extended {
		config.Problem.Objective.Quality = levitate.ExtendedWeights()
		config.Problem.Objective.Grid = gorkov.QualityGrid()
	}
	if seed != 0 {
		config.Evolution.Seed = seed
		config.Robustness.Seed = seed
	}
	if persistPath != "" {
		config.Persistence = &levitate.PersistenceConfig{
			Path:          filepath.Dir(persistPath),
			Name:          filepath.Base(persistPath),
			SQLitePragmas: []string{"journal_mode(WAL)", "busy_timeout(5000)"},
		}
	}
	return config, config.Validate()
}

// applyMaskFlag replaces the configured mask only when --mask was given.
func applyMaskFlag(cmd *cobra.Command, mask *levitate.ParameterMask) error {
	if !cmd.Flags().Changed("mask") {
		return nil
	}
	m, err := levitate.ParseParameterMask(maskName)
	if err != nil {
		return err
	}
	*mask = m
	return nil
}

func applyGradientFlags(cmd *cobra.Command, config *levitate.GradientConfig) error {
	if cmd.Flags().Changed("method") {
		config.Method = method
	}
	return applyMaskFlag(cmd, &config.Mask)
}

// withProfile runs fn under a CPU profile when --profile is set.
func withProfile(fn func() error) error {
	if profileDir != "" {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(profileDir), profile.Quiet).Stop()
	}
	return fn()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func output() (io.WriteCloser, error) {
	if outPath == "" {
		return nopCloser{os.Stdout}, nil
	}
	return os.Create(outPath)
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

func runEvolve(cmd *cobra.Command, args []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyMaskFlag(cmd, &config.Evolution.Mask); err != nil {
		return err
	}
	problem, err := levitate.NewProblem(config.Problem)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	var res *levitate.Result
	err = withProfile(func() error {
		var runErr error
		res, runErr = levitate.RunEvolutionary(ctx, problem, &config.Evolution)
		return runErr
	})
	return finish(config, problem, res, err)
}

func runGradient(cmd *cobra.Command, args []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyGradientFlags(cmd, &config.Gradient); err != nil {
		return err
	}
	if startPath != "" {
		if config.Gradient.Start, err = loadArray(startPath); err != nil {
			return err
		}
	}
	problem, err := levitate.NewProblem(config.Problem)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	var res *levitate.Result
	err = withProfile(func() error {
		var runErr error
		res, runErr = levitate.RunGradient(ctx, problem, &config.Gradient)
		return runErr
	})
	return finish(config, problem, res, err)
}

// finish reports a result, partial ones from a cancelled run included.
func finish(config *levitate.ToolConfig, problem *levitate.Problem, res *levitate.Result, runErr error) error {
	if res == nil {
		return runErr
	}
	if runErr != nil && res.Stop != levitate.StopCancelled {
		return runErr
	}

	rec := levitate.NewResultRecord(res, problem)
	out, err := output()
	if err != nil {
		return err
	}
	defer out.Close()
	if err := rec.WriteJSON(out); err != nil {
		return err
	}

	if plotPath != "" {
		if err := levitate.SaveHistoryPlot(res, plotPath); err != nil {
			logrus.WithError(err).Warn("Failed to save history plot")
		}
	}
	if layoutPath != "" {
		if err := levitate.SaveGeometryPlot(res, layoutPath); err != nil {
			logrus.WithError(err).Warn("Failed to save layout plot")
		}
	}

	if config.Persistence != nil {
		persist, err := levitate.NewPersistence(config.Persistence)
		if err != nil {
			return fmt.Errorf("Failed to create or initialize Persistence: %w", err)
		}
		defer persist.Shutdown()
		if _, err := persist.SaveResult(rec); err != nil {
			return err
		}
		logrus.WithField("run_id", rec.RunID).Info("Result stored")
	}

	logrus.WithFields(logrus.Fields{
		"best":        rec.BestFitness,
		"reference":   rec.ReferenceFitness,
		"improvement": rec.ImprovementPct,
		"valid":       rec.Valid,
		"stop":        rec.StopReason,
	}).Info("Done")
	return nil
}

func loadArray(path string) (*levitate.EmitterArray, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rec, err := levitate.ReadResultRecord(f)
	if err != nil {
		return nil, err
	}
	return rec.Array()
}

func runRobustness(cmd *cobra.Command, args []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	if trials > 0 {
		config.Robustness.Trials = trials
	}
	problem, err := levitate.NewProblem(config.Problem)
	if err != nil {
		return err
	}

	a := levitate.FixedArray(problem.Reference)
	if len(args) == 1 {
		arr, err := loadArray(args[0])
		if err != nil {
			return err
		}
		a = levitate.FixedArray(arr)
	}

	var b levitate.ArraySource
	switch againstB {
	case "reference":
		b = levitate.FixedArray(problem.Reference)
	case "random":
		b = levitate.RandomArrays(config.Problem.Emitters, 0.03, config.Problem.Constraints.MinSpacing)
	case "grid":
		pitch := config.Problem.Physics.Wavelength()
		b = levitate.FixedArray(&levitate.EmitterArray{Positions: levitate.SquareGrid(config.Problem.Emitters, pitch)})
	default:
		return fmt.Errorf("unknown comparison geometry %q", againstB)
	}

	ctx, cancel := signalContext()
	defer cancel()

	var report *levitate.RobustnessReport
	err = withProfile(func() error {
		var runErr error
		report, runErr = levitate.RunRobustness(ctx, problem.Evaluator, &config.Robustness, a, b)
		return runErr
	})
	if err != nil {
		return err
	}
	return writeJSON(report)
}

func runReference(cmd *cobra.Command, args []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	problem, err := levitate.NewProblem(config.Problem)
	if err != nil {
		return err
	}
	quality, err := problem.Objective.FieldQuality(problem.Reference)
	if err != nil {
		return err
	}
	u, err := problem.Objective.Field(problem.Reference)
	if err != nil {
		return err
	}
	stats := gorkov.Analyze(u)
	grid := problem.Objective.Grid
	return writeJSON(struct {
		Emitters  int                    `json:"n_emitters"`
		Positions *levitate.EmitterArray `json:"geometry"`
		Score     levitate.Score         `json:"score"`
		Quality   levitate.Score         `json:"field_quality"`
		Field     gorkov.FieldStats      `json:"field"`
		Trap      gorkov.Vec3            `json:"trap_point"`
		Peak      gorkov.Vec3            `json:"peak_point"`
		MinGap    float64                `json:"min_spacing_m"`
		Radius    float64                `json:"max_radius_m"`
	}{
		Emitters:  problem.Reference.Len(),
		Positions: problem.Reference,
		Score:     problem.ReferenceScore,
		Quality:   quality,
		Field:     stats,
		Trap:      grid.Point(stats.MinIndex),
		Peak:      grid.Point(stats.MaxIndex),
		MinGap:    problem.Reference.MinSpacing(),
		Radius:    problem.Reference.MaxRadius(),
	})
}

func runRuns(cmd *cobra.Command, args []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	if config.Persistence == nil {
		return fmt.Errorf("no database configured, pass --db or set [persistence]")
	}
	persist, err := levitate.NewPersistence(config.Persistence)
	if err != nil {
		return fmt.Errorf("Failed to create or initialize Persistence: %w", err)
	}
	defer persist.Shutdown()

	metrics, err := persist.QueryMetrics()
	if err != nil {
		return err
	}
	for _, m := range metrics {
		logrus.WithFields(logrus.Fields{
			"driver":          m.Driver,
			"runs":            m.RunCount,
			"valid":           m.ValidCount,
			"best":            m.BestFitness,
			"avg":             m.AvgFitness,
			"avg_improvement": m.AvgImprovement,
		}).Info("Stored runs")
	}
	return writeJSON(metrics)
}

func writeJSON(v any) error {
	out, err := output()
	if err != nil {
		return err
	}
	defer out.Close()
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
