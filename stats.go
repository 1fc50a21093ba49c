package levitate

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// TTest is the outcome of a two-sample Welch t-test.
type TTest struct {
	T      float64 `json:"t"`
	DF     float64 `json:"df"`
	PValue float64 `json:"p_value"`
}

// WelchTTest compares the means of a and b without assuming equal
// variances. The p-value is two-sided. With fewer than two samples on
// either side the test is uninformative and reports p = 1. When both
// samples are constant the means either match (p = 1) or trivially differ
// (p = 0).
func WelchTTest(a, b []float64) TTest {
	if len(a) < 2 || len(b) < 2 {
		return TTest{PValue: 1}
	}
	ma, va := stat.MeanVariance(a, nil)
	mb, vb := stat.MeanVariance(b, nil)
	na, nb := float64(len(a)), float64(len(b))

	qa, qb := va/na, vb/nb
	se := math.Sqrt(qa + qb)
	if se == 0 {
		if ma == mb {
			return TTest{PValue: 1}
		}
		return TTest{PValue: 0}
	}

	t := (ma - mb) / se
	df := (qa + qb) * (qa + qb) / (qa*qa/(na-1) + qb*qb/(nb-1))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return TTest{T: t, DF: df, PValue: 2 * dist.CDF(-math.Abs(t))}
}

// CohensD is the mean difference over the root mean square of the two
// population standard deviations.
func CohensD(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	ma, sa := stat.PopMeanStdDev(a, nil)
	mb, sb := stat.PopMeanStdDev(b, nil)
	pooled := math.Sqrt((sa*sa + sb*sb) / 2)
	if pooled == 0 {
		return 0
	}
	return (ma - mb) / pooled
}
