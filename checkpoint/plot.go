package checkpoint

import (
	"fmt"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/genotrain/pkg/errors"
)

// MetricSeries returns (step, value) points of metric across the existing
// checkpoints, ordered by step. Non-finite values are skipped.
func (m *Manager) MetricSeries(metric string) plotter.XYs {
	records := m.ListCheckpoints()
	pts := make(plotter.XYs, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		v, ok := records[i].Metrics[metric]
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		pts = append(pts, plotter.XY{X: float64(records[i].Step), Y: v})
	}
	return pts
}

// PlotMetricHistory renders metric against step to out. The image format
// follows the file extension (png, svg, pdf, ...).
func (m *Manager) PlotMetricHistory(metric, out string) error {
	pts := m.MetricSeries(metric)
	if len(pts) == 0 {
		return errors.NewValueError("PlotMetricHistory", fmt.Sprintf("no checkpoint reports %q", metric))
	}

	p := plot.New()
	p.Title.Text = metric
	p.X.Label.Text = "step"
	p.Y.Label.Text = metric

	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return errors.Wrap(err, "failed to build metric plot")
	}
	p.Add(line, points, plotter.NewGrid())

	if m.bestPath != "" {
		for _, r := range m.ListCheckpoints() {
			if r.Path != m.bestPath {
				continue
			}
			if v, ok := r.Metrics[metric]; ok && !math.IsNaN(v) && !math.IsInf(v, 0) {
				best, err := plotter.NewScatter(plotter.XYs{{X: float64(r.Step), Y: v}})
				if err != nil {
					return errors.Wrap(err, "failed to build metric plot")
				}
				best.GlyphStyle.Radius = vg.Points(4)
				p.Add(best)
				p.Legend.Add("best", best)
			}
		}
	}

	if err := p.Save(8*vg.Inch, 4*vg.Inch, out); err != nil {
		return errors.Wrapf(err, "failed to save plot %s", out)
	}
	return nil
}
