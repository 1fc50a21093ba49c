package levitate

import (
	"fmt"
	"math"
	"math/rand"

	"nickandperla.net/levitate/gorkov"
)

// RingPitch is the spacing between Flower of Life rings in wavelengths.
const RingPitch = 2.5

// FlowerOfLife lays out a center emitter and concentric rings, ring k
// holding 6k emitters at radius 2.5*k*wavelength, truncated to n emitters.
func FlowerOfLife(n int, wavelength float64) []gorkov.Vec3 {
	positions := make([]gorkov.Vec3, 0, n)
	if n <= 0 {
		return positions
	}
	positions = append(positions, gorkov.Vec3{})
	for ring := 1; len(positions) < n; ring++ {
		radius := RingPitch * float64(ring) * wavelength
		count := 6 * ring
		for j := 0; j < count && len(positions) < n; j++ {
			theta := float64(j) * 2 * math.Pi / float64(count)
			positions = append(positions, gorkov.Vec3{X: radius * math.Cos(theta), Y: radius * math.Sin(theta)})
		}
	}
	return positions
}

// ReferenceGeometry is the Flower of Life baseline at the carrier
// wavelength of c. It is recomputed on every call.
func ReferenceGeometry(n int, c gorkov.Constants) (*EmitterArray, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, ErrNoEmitters)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return NewEmitterArray(FlowerOfLife(n, c.Wavelength()), nil)
}

// SquareGrid centers n emitters on a square lattice with the given pitch,
// filling rows of ceil(sqrt(n)).
func SquareGrid(n int, pitch float64) []gorkov.Vec3 {
	positions := make([]gorkov.Vec3, 0, n)
	if n <= 0 {
		return positions
	}
	side := int(math.Ceil(math.Sqrt(float64(n))))
	rows := (n + side - 1) / side
	offsetX := float64(side-1) * pitch / 2
	offsetY := float64(rows-1) * pitch / 2
	for i := 0; i < n; i++ {
		positions = append(positions, gorkov.Vec3{
			X: float64(i%side)*pitch - offsetX,
			Y: float64(i/side)*pitch - offsetY,
		})
	}
	return positions
}

const randomPlacementAttempts = 1000

// RandomSpaced places n emitters uniformly in [-extent, extent]^2 keeping
// minSpacing between them. An emitter that cannot be placed within the
// attempt budget goes on a widening spiral instead.
func RandomSpaced(n int, extent, minSpacing float64, r *rand.Rand) []gorkov.Vec3 {
	positions := make([]gorkov.Vec3, 0, n)
	for i := 0; i < n; i++ {
		placed := false
		for attempt := 0; attempt < randomPlacementAttempts; attempt++ {
			candidate := gorkov.Vec3{
				X: r.Float64()*2*extent - extent,
				Y: r.Float64()*2*extent - extent,
			}
			if spacedFrom(candidate, positions, minSpacing) {
				positions = append(positions, candidate)
				placed = true
				break
			}
		}
		if !placed {
			angle := float64(i) / float64(n) * 2 * math.Pi
			radius := 0.025 + float64(i)/float64(n)*0.015
			positions = append(positions, gorkov.Vec3{X: radius * math.Cos(angle), Y: radius * math.Sin(angle)})
		}
	}
	return positions
}

func spacedFrom(p gorkov.Vec3, positions []gorkov.Vec3, minSpacing float64) bool {
	for _, q := range positions {
		if p.Dist(q) < minSpacing {
			return false
		}
	}
	return true
}

// UniformRandom draws n planar positions uniformly from [-extent, extent]^2.
func UniformRandom(n int, extent float64, r *rand.Rand) []gorkov.Vec3 {
	positions := make([]gorkov.Vec3, n)
	for i := range positions {
		positions[i] = gorkov.Vec3{
			X: r.Float64()*2*extent - extent,
			Y: r.Float64()*2*extent - extent,
		}
	}
	return positions
}
