package levitate

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// ToolConfig is the TOML file shared by the levitate tools. Sections that
// are absent keep their defaults.
type ToolConfig struct {
	Persistence *PersistenceConfig `toml:"persistence"`
	Problem     ProblemConfig      `toml:"problem"`
	Evolution   EvolutionConfig    `toml:"evolution"`
	Gradient    GradientConfig     `toml:"gradient"`
	Robustness  RobustnessConfig   `toml:"robustness"`
}

func DefaultToolConfig() ToolConfig {
	return ToolConfig{
		Problem:    DefaultProblemConfig(7),
		Evolution:  DefaultEvolutionConfig(),
		Gradient:   DefaultGradientConfig(),
		Robustness: DefaultRobustnessConfig(),
	}
}

// LoadToolConfig decodes path over DefaultToolConfig and validates the
// result. Unknown keys are rejected.
func LoadToolConfig(path string) (*ToolConfig, error) {
	conffile, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("Unable to load tool config: %w", err)
	}
	defer conffile.Close()

	config := DefaultToolConfig()
	md, err := toml.NewDecoder(conffile).Decode(&config)
	if err != nil {
		return nil, fmt.Errorf("Failed to unmarshal tool config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: unknown keys %v", ErrInvalidConfig, undecoded)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *ToolConfig) Validate() error {
	if err := c.Problem.Validate(); err != nil {
		return fmt.Errorf("[problem] %w", err)
	}
	if err := c.Evolution.Validate(); err != nil {
		return fmt.Errorf("[evolution] %w", err)
	}
	if err := c.Gradient.Validate(); err != nil {
		return fmt.Errorf("[gradient] %w", err)
	}
	if err := c.Robustness.Validate(); err != nil {
		return fmt.Errorf("[robustness] %w", err)
	}
	return nil
}
