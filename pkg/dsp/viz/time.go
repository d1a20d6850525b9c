package viz

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

const (
	imageWidth  = 8 * vg.Inch
	imageHeight = 6 * vg.Inch
)

var ErrNoData = errors.New("no data to plot")

type PlotType int

const (
	PlotTypeDefault PlotType = iota
	PlotTypeScatter
	PlotTypeLines
)

func ParsePlotType(s string) (PlotType, error) {
	switch s {
	case "":
		return PlotTypeDefault, nil
	case "lines":
		return PlotTypeLines, nil
	case "scatter":
		return PlotTypeScatter, nil
	}
	return PlotTypeDefault, fmt.Errorf("unknown plot type %q", s)
}

// TimeDomainPlotter draws a captured waveform against time. Long captures are decimated to maxPoints.
type TimeDomainPlotter struct {
	mu        sync.RWMutex
	volts     []float64
	interval  time.Duration
	fullScale float64
	maxPoints int
	name      string
	plotFunc  func(*plot.Plot, ...interface{}) error
}

func NewTimeDomainPlotter(name string, maxPoints int) *TimeDomainPlotter {
	ret := &TimeDomainPlotter{
		maxPoints: maxPoints,
		name:      name,
		plotFunc:  plotutil.AddLines,
	}

	return ret
}

func (t *TimeDomainPlotter) Name() string {
	return t.name
}

func (t *TimeDomainPlotter) SetPlotType(tp PlotType) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch tp {
	case PlotTypeScatter:
		t.plotFunc = plotutil.AddScatters
	default:
		t.plotFunc = plotutil.AddLines
	}
}

// SetData replaces the waveform. fullScale fixes the y axis to ±fullScale volts when positive.
func (t *TimeDomainPlotter) SetData(volts []float64, interval time.Duration, fullScale float64) {
	t.mu.Lock()
	t.volts = volts
	t.interval = interval
	t.fullScale = fullScale
	t.mu.Unlock()
}

func (t *TimeDomainPlotter) points() plotter.XYs {
	step := 1
	if t.maxPoints > 0 {
		for len(t.volts)/step > t.maxPoints {
			step++
		}
	}
	ret := make(plotter.XYs, 0, len(t.volts)/step+1)
	for i := 0; i < len(t.volts); i += step {
		ret = append(ret, plotter.XY{X: (time.Duration(i) * t.interval).Seconds(), Y: t.volts[i]})
	}
	return ret
}

func (t *TimeDomainPlotter) Plot() (*plot.Plot, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.volts) == 0 {
		return nil, ErrNoData
	}

	p := plotWithDefaults()

	p.Title.Text = t.name
	p.Y.Label.Text = "Volts"
	p.X.Label.Text = "Time (s)"
	if t.fullScale > 0 {
		p.Y.Min = -t.fullScale
		p.Y.Max = t.fullScale
	}

	p.Add(plotter.NewGrid())

	if err := t.plotFunc(p, "v(t)", t.points()); err != nil {
		return nil, err
	}
	return p, nil
}

// GetImage renders the waveform as PNG, or returns nil when there is nothing to draw.
func (t *TimeDomainPlotter) GetImage() *ImageContainer {
	p, err := t.Plot()
	if err != nil {
		return nil
	}

	var imageData bytes.Buffer
	w, err := p.WriterTo(imageWidth, imageHeight, "png")
	if err != nil {
		return nil
	}
	if _, err := w.WriteTo(&imageData); err != nil {
		return nil
	}
	return &ImageContainer{name: t.name, data: imageData.Bytes()}
}

// Save writes the plot to path; the format follows the file extension.
func (t *TimeDomainPlotter) Save(path string) error {
	p, err := t.Plot()
	if err != nil {
		return err
	}
	return p.Save(imageWidth, imageHeight, path)
}
