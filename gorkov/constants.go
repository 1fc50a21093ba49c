package gorkov

import (
	"fmt"
	"math"
)

var ErrInvalidConstants error = fmt.Errorf("invalid physical constants")

// Constants are the medium, particle and carrier parameters of a field
// evaluation. Wavelength and wave number are always derived from the current
// Frequency, never stored.
type Constants struct {
	SpeedOfSound      float64 `toml:"speed_of_sound" json:"speed_of_sound"`
	AirDensity        float64 `toml:"air_density" json:"air_density"`
	ParticleRadius    float64 `toml:"particle_radius" json:"particle_radius"`
	ParticleDensity   float64 `toml:"particle_density" json:"particle_density"`
	PressureAmplitude float64 `toml:"pressure_amplitude" json:"pressure_amplitude"`
	Frequency         float64 `toml:"frequency" json:"frequency"`
}

// DefaultConstants describes expanded polystyrene in air driven at 40kHz.
func DefaultConstants() Constants {
	return Constants{
		SpeedOfSound:      343.0,
		AirDensity:        1.225,
		ParticleRadius:    0.0015,
		ParticleDensity:   84.0,
		PressureAmplitude: 1000.0,
		Frequency:         40000.0,
	}
}

func (c Constants) Validate() error {
	checks := []struct {
		name  string
		value float64
	}{
		{"speed_of_sound", c.SpeedOfSound},
		{"air_density", c.AirDensity},
		{"particle_radius", c.ParticleRadius},
		{"particle_density", c.ParticleDensity},
		{"pressure_amplitude", c.PressureAmplitude},
		{"frequency", c.Frequency},
	}
	for _, check := range checks {
		if !(check.value > 0) || math.IsInf(check.value, 0) {
			return fmt.Errorf("%w: %s must be positive and finite, got %v", ErrInvalidConstants, check.name, check.value)
		}
	}
	return nil
}

func (c Constants) Wavelength() float64 {
	return c.SpeedOfSound / c.Frequency
}

func (c Constants) WaveNumber() float64 {
	return 2 * math.Pi / c.Wavelength()
}

// ParticleVolume is V0 = 4/3 pi a^3.
func (c Constants) ParticleVolume() float64 {
	return 4.0 / 3.0 * math.Pi * c.ParticleRadius * c.ParticleRadius * c.ParticleRadius
}

// Monopole is the f1 contrast factor 1 - rho_air/rho_particle.
func (c Constants) Monopole() float64 {
	return 1 - c.AirDensity/c.ParticleDensity
}

// coefficient is the factor applied to |p|^2. Only the monopole (pressure)
// term is evaluated; the dipole f2 velocity term is not.
func (c Constants) coefficient() float64 {
	return c.ParticleVolume() * c.Monopole() / (2 * c.AirDensity * c.SpeedOfSound * c.SpeedOfSound)
}
