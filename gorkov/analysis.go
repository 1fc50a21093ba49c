package gorkov

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// FieldStats summarizes a potential sampled over a grid.
type FieldStats struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Depth    float64 `json:"depth"`
	MinIndex int     `json:"min_index"`
	MaxIndex int     `json:"max_index"`
}

func Analyze(u []float64) FieldStats {
	if len(u) == 0 {
		return FieldStats{MinIndex: -1, MaxIndex: -1}
	}
	lo, hi := floats.MinIdx(u), floats.MaxIdx(u)
	return FieldStats{
		Min:      u[lo],
		Max:      u[hi],
		Depth:    u[hi] - u[lo],
		MinIndex: lo,
		MaxIndex: hi,
	}
}

// WellDepth is max(U) - min(U), zero for an empty field.
func WellDepth(u []float64) float64 {
	if len(u) == 0 {
		return 0
	}
	return floats.Max(u) - floats.Min(u)
}

// Rings are the radii, in meters, at which rotational symmetry is sampled.
var Rings = []float64{0.01, 0.02, 0.03, 0.04}

const (
	RingBand     = 0.002
	TrapFraction = 0.1
	scoreEpsilon = 1e-6
)

// RingIndices returns the indices of grid points whose distance from the z
// axis lies strictly within band of radius.
func (g Grid) RingIndices(radius, band float64) []int {
	var idx []int
	for i, p := range g.Points() {
		r := p.Radial()
		if r > radius-band && r < radius+band {
			idx = append(idx, i)
		}
	}
	return idx
}

// Symmetry averages 1/(std+eps) of the potential over each ring. Rings with
// no samples contribute zero but still count toward the average.
func Symmetry(u []float64, rings [][]int) float64 {
	if len(rings) == 0 {
		return 0
	}
	var score float64
	for _, ring := range rings {
		if len(ring) == 0 {
			continue
		}
		values := make([]float64, len(ring))
		for i, j := range ring {
			values[i] = u[j]
		}
		score += 1 / (sampleStdDev(values) + scoreEpsilon)
	}
	return score / float64(len(rings))
}

// Uniformity is 1/(std+eps) over the trap region: the points within
// TrapFraction of the range above the minimum.
func Uniformity(u []float64) float64 {
	if len(u) == 0 {
		return 0
	}
	lo, hi := floats.Min(u), floats.Max(u)
	limit := lo + TrapFraction*(hi-lo)
	var trap []float64
	for _, v := range u {
		if v < limit {
			trap = append(trap, v)
		}
	}
	if len(trap) == 0 {
		return 0
	}
	return 1 / (sampleStdDev(trap) + scoreEpsilon)
}

func sampleStdDev(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	return stat.StdDev(x, nil)
}
