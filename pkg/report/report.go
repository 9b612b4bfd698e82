// Package report summarizes a tracking run, as numbers and as plots
package report

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/cyclopcam/hypertrack/pkg/stats"
	"github.com/cyclopcam/hypertrack/pkg/track"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

var ErrNoResults = errors.New("No frame results to report")

type Summary struct {
	Frames             int
	Held               int
	ForestRetrains     int
	ClassifierRetrains int
	MeanScore          float64
	ScoreStdDev        float64
	MeanStep           float64 // Mean distance the center moved per frame, in pixels
	MaxStep            float64
}

func Summarize(results []*track.FrameResult) Summary {
	s := Summary{
		Frames: len(results),
	}
	scores := []float64{}
	steps := []float64{}
	for i, r := range results {
		if r.Held {
			s.Held++
		} else {
			scores = append(scores, r.Score)
		}
		if r.ForestRetrained {
			s.ForestRetrains++
		}
		if r.ClassifierRetrained {
			s.ClassifierRetrains++
		}
		if i > 0 {
			d := float64(results[i-1].Center.Distance(r.Center))
			steps = append(steps, d)
			s.MaxStep = max(s.MaxStep, d)
		}
	}
	mean, variance := stats.MeanVar(scores)
	s.MeanScore = mean
	s.ScoreStdDev = math.Sqrt(variance)
	s.MeanStep = stats.Mean(steps)
	return s
}

func (s Summary) String() string {
	return fmt.Sprintf("%v frames (%v held), score %.4f +- %.4f, step mean %.1f max %.1f px, %v forest and %v classifier retrains",
		s.Frames, s.Held, s.MeanScore, s.ScoreStdDev, s.MeanStep, s.MaxStep, s.ForestRetrains, s.ClassifierRetrains)
}

func newPlot(title, x, y string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = x
	p.Y.Label.Text = y
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p
}

func addLine(p *plot.Plot, label string, pts plotter.XYs, c color.Color) error {
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = c
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add(label, line)
	return nil
}

// SavePlots writes scores.png and trajectory.png into dir
func SavePlots(dir string, results []*track.FrameResult) error {
	if len(results) == 0 {
		return ErrNoResults
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	pScore := newPlot("Chosen candidate score", "Frame", "Score")
	propagated := make(plotter.XYs, 0, len(results))
	raw := make(plotter.XYs, 0, len(results))
	retrains := make(plotter.XYs, 0)
	for _, r := range results {
		if r.Held {
			continue
		}
		propagated = append(propagated, plotter.XY{X: float64(r.Index), Y: r.Score})
		raw = append(raw, plotter.XY{X: float64(r.Index), Y: r.RawScore})
		if r.ForestRetrained || r.ClassifierRetrained {
			retrains = append(retrains, plotter.XY{X: float64(r.Index), Y: r.Score})
		}
	}
	if len(propagated) > 0 {
		if err := addLine(pScore, "propagated", propagated, color.RGBA{B: 200, A: 255}); err != nil {
			return err
		}
		if err := addLine(pScore, "classifier", raw, color.RGBA{R: 200, G: 120, A: 255}); err != nil {
			return err
		}
	}
	if len(retrains) > 0 {
		sc, err := plotter.NewScatter(retrains)
		if err != nil {
			return err
		}
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		sc.GlyphStyle.Color = color.RGBA{R: 200, A: 255}
		pScore.Add(sc)
		pScore.Legend.Add("retrain", sc)
	}

	pTraj := newPlot("Target center", "Frame", "Pixels")
	xs := make(plotter.XYs, 0, len(results))
	ys := make(plotter.XYs, 0, len(results))
	for _, r := range results {
		xs = append(xs, plotter.XY{X: float64(r.Index), Y: float64(r.Center.X)})
		ys = append(ys, plotter.XY{X: float64(r.Index), Y: float64(r.Center.Y)})
	}
	if err := addLine(pTraj, "x", xs, color.RGBA{R: 200, A: 255}); err != nil {
		return err
	}
	if err := addLine(pTraj, "y", ys, color.RGBA{G: 150, A: 255}); err != nil {
		return err
	}

	if err := pScore.Save(14*vg.Inch, 6*vg.Inch, filepath.Join(dir, "scores.png")); err != nil {
		return fmt.Errorf("Failed to save score plot: %w", err)
	}
	if err := pTraj.Save(14*vg.Inch, 6*vg.Inch, filepath.Join(dir, "trajectory.png")); err != nil {
		return fmt.Errorf("Failed to save trajectory plot: %w", err)
	}
	return nil
}
