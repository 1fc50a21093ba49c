package levitate

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// SaveHistoryPlot draws best-so-far and mean valid fitness per iteration,
// with the reference fitness as a flat line. The format follows the
// extension of path.
func SaveHistoryPlot(res *Result, path string) error {
	if len(res.History) == 0 {
		return fmt.Errorf("no history to plot for %s run", res.Driver)
	}

	best := make(plotter.XYs, 0, len(res.History))
	mean := make(plotter.XYs, 0, len(res.History))
	for _, rec := range res.History {
		best = append(best, plotter.XY{X: float64(rec.Index), Y: rec.BestSoFar})
		if rec.ValidCount > 0 {
			mean = append(mean, plotter.XY{X: float64(rec.Index), Y: rec.MeanValid})
		}
	}
	first, last := float64(res.History[0].Index), float64(res.History[len(res.History)-1].Index)
	ref := plotter.XYs{{X: first, Y: res.Reference.Fitness()}, {X: last, Y: res.Reference.Fitness()}}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s search (%s)", res.Driver, res.Mask)
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = "fitness"

	if err := plotutil.AddLines(p, "best so far", best, "reference", ref); err != nil {
		return fmt.Errorf("failed to add history lines: %w", err)
	}
	if len(mean) > 0 {
		l, err := plotter.NewLine(mean)
		if err != nil {
			return fmt.Errorf("failed to build mean line: %w", err)
		}
		l.Color = color.Gray{Y: 160}
		l.Dashes = []vg.Length{vg.Points(2), vg.Points(2)}
		p.Add(l)
		p.Legend.Add("mean valid", l)
	}

	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}

// SaveGeometryPlot scatters the best and reference emitter positions in
// millimetres.
func SaveGeometryPlot(res *Result, path string) error {
	p := plot.New()
	p.Title.Text = "emitter positions (mm)"
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"

	series := []struct {
		name  string
		array *EmitterArray
	}{
		{"reference", res.Reference.Array},
	}
	if res.Best != nil {
		series = append(series, struct {
			name  string
			array *EmitterArray
		}{"best", res.Best.Array})
	}

	for i, s := range series {
		pts := make(plotter.XYs, s.array.Len())
		for j, pos := range s.array.Positions {
			pts[j] = plotter.XY{X: pos.X * 1000, Y: pos.Y * 1000}
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return fmt.Errorf("failed to build %s scatter: %w", s.name, err)
		}
		sc.GlyphStyle.Color = plotutil.Color(i)
		sc.GlyphStyle.Shape = plotutil.Shape(i)
		p.Add(sc)
		p.Legend.Add(s.name, sc)
	}
	p.X.Min, p.X.Max = -70, 70
	p.Y.Min, p.Y.Max = -70, 70

	return p.Save(5*vg.Inch, 5*vg.Inch, path)
}
