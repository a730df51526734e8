package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-gota/gota/dataframe"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Prediction is the result of one image.
type Prediction struct {
	Image     string
	Class     int
	Prob      float64 // probability of Class
	MaskRatio float64 // share of pixels in the mask
}

// writeReport saves predictions as predictions.csv and a histogram of the
// mask ratios as mask-ratio-histo.png under dir.
func writeReport(preds []Prediction, dir string) error {
	df := dataframe.LoadStructs(preds)
	if df.Err != nil {
		return df.Err
	}

	f, err := os.Create(filepath.Join(dir, "predictions.csv"))
	if err != nil {
		return err
	}
	defer f.Close()

	if err := df.WriteCSV(f); err != nil {
		return err
	}

	ratios := df.Col("MaskRatio").Float()
	p, err := plot.New()
	if err != nil {
		return err
	}

	v := make(plotter.Values, len(ratios))
	for i := 0; i < len(ratios); i++ {
		v[i] = ratios[i] * 100
	}

	h, err := plotter.NewHist(v, 10)
	if err != nil {
		return err
	}
	p.Title.Text = "Mask Ratio Histogram"
	p.X.Label.Text = "mask (%)"
	p.Add(h)

	histo := filepath.Join(dir, "mask-ratio-histo.png")
	if err := p.Save(4*vg.Inch, 4*vg.Inch, histo); err != nil {
		return err
	}

	fmt.Printf("Report saved to %q\n", dir)
	return nil
}
