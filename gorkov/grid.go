package gorkov

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

var ErrInvalidGrid error = fmt.Errorf("invalid evaluation grid")

// Grid is a square plane of evaluation points at a fixed height above the
// array, spanning [-Extent, Extent] on both axes.
type Grid struct {
	Extent     float64 `toml:"extent" json:"extent"`
	Resolution int     `toml:"resolution" json:"resolution"`
	Height     float64 `toml:"height" json:"height"`
}

func DefaultGrid() Grid {
	return Grid{Extent: 0.04, Resolution: 50, Height: 0.005}
}

// QualityGrid is the finer, wider plane used when scoring field symmetry.
func QualityGrid() Grid {
	return Grid{Extent: 0.06, Resolution: 80, Height: 0.005}
}

func (g Grid) Validate() error {
	if !(g.Extent > 0) {
		return fmt.Errorf("%w: extent must be positive, got %v", ErrInvalidGrid, g.Extent)
	}
	if g.Resolution < 2 {
		return fmt.Errorf("%w: resolution must be at least 2, got %d", ErrInvalidGrid, g.Resolution)
	}
	return nil
}

// Axis returns the Resolution evenly spaced coordinates of either axis.
func (g Grid) Axis() []float64 {
	return floats.Span(make([]float64, g.Resolution), -g.Extent, g.Extent)
}

// Points lays the plane out with x varying slowest: index = ix*Resolution + iy.
func (g Grid) Points() []Vec3 {
	axis := g.Axis()
	points := make([]Vec3, 0, len(axis)*len(axis))
	for _, x := range axis {
		for _, y := range axis {
			points = append(points, Vec3{X: x, Y: y, Z: g.Height})
		}
	}
	return points
}

// Point returns the grid point at a flat index produced by Points.
func (g Grid) Point(index int) Vec3 {
	axis := g.Axis()
	return Vec3{X: axis[index/g.Resolution], Y: axis[index%g.Resolution], Z: g.Height}
}
