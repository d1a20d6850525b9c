package mixer

import (
	"math"
)

const (
	tau float64 = math.Pi * 2
)

type Shape int

const (
	ShapeSine Shape = iota
	ShapeSquare
	ShapeTriangle
	ShapeDC
)

// Oscillator produces a real-valued periodic waveform one sample at a time.
type Oscillator struct {
	shape          Shape
	amplitude      float64
	offset         float64
	phase          float64
	phaseIncrement float64
}

func (o *Oscillator) incrementPhase() {
	o.phase += o.phaseIncrement
	if o.phase >= tau {
		o.phase = math.Mod(o.phase, tau)
	}
}

// NewOscillator returns an oscillator with peak amplitude amplitude (half of peak-to-peak) around offset.
func NewOscillator(shape Shape, sampleRate, frequency, amplitude, offset float64) *Oscillator {
	ret := &Oscillator{
		shape:     shape,
		amplitude: amplitude,
		offset:    offset,
	}
	if sampleRate > 0 {
		ret.phaseIncrement = frequency * tau / sampleRate
	}

	return ret
}

func (o *Oscillator) value() float64 {
	switch o.shape {
	case ShapeSquare:
		if o.phase < math.Pi {
			return o.offset + o.amplitude
		}
		return o.offset - o.amplitude
	case ShapeTriangle:
		// -1 at phase 0, +1 at pi
		return o.offset + o.amplitude*(1-2*math.Abs(o.phase/math.Pi-1))
	case ShapeDC:
		return o.offset + o.amplitude
	default:
		return o.offset + o.amplitude*math.Sin(o.phase)
	}
}

// Next returns the current sample and advances the phase.
func (o *Oscillator) Next() float64 {
	v := o.value()
	o.incrementPhase()
	return v
}

// Skip advances the phase by n samples without producing output.
func (o *Oscillator) Skip(n int) {
	o.phase = math.Mod(o.phase+o.phaseIncrement*float64(n), tau)
}

// WorkBuffer fills output with consecutive samples.
func (o *Oscillator) WorkBuffer(output []float64) int {
	for i := range output {
		output[i] = o.Next()
	}

	return len(output)
}
