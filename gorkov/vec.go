package gorkov

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Vec3 is a position in meters. Planar arrays leave Z at zero.
type Vec3 r3.Vec

func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3(r3.Add(r3.Vec(v), r3.Vec(o)))
}

func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3(r3.Sub(r3.Vec(v), r3.Vec(o)))
}

func (v Vec3) Scale(f float64) Vec3 {
	return Vec3(r3.Scale(f, r3.Vec(v)))
}

func (v Vec3) Norm() float64 {
	return r3.Norm(r3.Vec(v))
}

func (v Vec3) Dist(o Vec3) float64 {
	return v.Sub(o).Norm()
}

// Radial is the distance from the z axis.
func (v Vec3) Radial() float64 {
	return math.Hypot(v.X, v.Y)
}

func (v Vec3) IsFinite() bool {
	for _, c := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
