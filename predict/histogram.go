package predict

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// SaveHistogram plots the distribution of change scores to an image file.
// The format follows the file extension (png, svg, pdf ...).
func SaveHistogram(scores []float64, bins int, title, filename string) error {
	if len(scores) == 0 {
		return fmt.Errorf("no scores to plot")
	}
	if bins < 1 {
		return fmt.Errorf("bins must be positive. Got %v", bins)
	}

	p, err := plot.New()
	if err != nil {
		return err
	}

	v := make(plotter.Values, len(scores))
	copy(v, scores)

	h, err := plotter.NewHist(v, bins)
	if err != nil {
		return err
	}
	p.Title.Text = title
	p.X.Label.Text = "change score"
	p.Y.Label.Text = "pixels"
	p.Add(h)

	return p.Save(4*vg.Inch, 4*vg.Inch, filename)
}
