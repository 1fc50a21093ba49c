package levitate

import (
	test "testing"
)

func TestWelchTTest(t *test.T) {
	a := []float64{1, 2, 3, 4, 5}
	b := []float64{2, 4, 6, 8, 10}
	res := WelchTTest(a, b)
	if !closeTo(res.T, -1.8973666, 1e-6) {
		t.Errorf("Expected t=-1.8974, got %v", res.T)
	}
	if !closeTo(res.DF, 5.8823529, 1e-6) {
		t.Errorf("Expected df=5.8824, got %v", res.DF)
	}
	if !closeTo(res.PValue, 0.10753, 1e-4) {
		t.Errorf("Expected p=0.1075, got %v", res.PValue)
	}

	swapped := WelchTTest(b, a)
	if !closeTo(swapped.T, -res.T, 1e-12) || !closeTo(swapped.PValue, res.PValue, 1e-12) {
		t.Errorf("Swapping samples should only flip t: %+v vs %+v", swapped, res)
	}
}

func TestWelchTTestDegenerate(t *test.T) {
	if res := WelchTTest([]float64{1}, []float64{1, 2}); res.PValue != 1 {
		t.Errorf("Expected p=1 for a single sample, got %v", res.PValue)
	}
	if res := WelchTTest([]float64{2, 2}, []float64{2, 2}); res.PValue != 1 {
		t.Errorf("Expected p=1 for identical constants, got %v", res.PValue)
	}
	if res := WelchTTest([]float64{2, 2}, []float64{3, 3}); res.PValue != 0 {
		t.Errorf("Expected p=0 for distinct constants, got %v", res.PValue)
	}
}

func TestCohensD(t *test.T) {
	d := CohensD([]float64{1, 2, 3, 4, 5}, []float64{2, 4, 6, 8, 10})
	if !closeTo(d, -1.3416408, 1e-6) {
		t.Errorf("Expected d=-1.3416, got %v", d)
	}
	if d := CohensD([]float64{1, 1}, []float64{1, 1}); d != 0 {
		t.Errorf("Expected d=0 for zero spread, got %v", d)
	}
}
