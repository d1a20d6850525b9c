package picostream

import (
	"time"

	"github.com/norasector/picostream/pkg/picostream/device"
)

// Result is what an acquisition produced. Samples holds everything captured before termination, which is a partial
// sequence unless Reason is StateCompleted.
type Result struct {
	Samples        []int16
	Reason         State
	Range          device.Range
	SampleInterval device.SampleInterval
	Polls          int
	Notifications  int
	Overflows      int
	Truncated      int
	Elapsed        time.Duration
	Err            error
}

func (r *Result) Len() int {
	return len(r.Samples)
}

// Volts converts the captured samples using the channel's voltage range.
func (r *Result) Volts() []float64 {
	ret := make([]float64, len(r.Samples))
	for i, s := range r.Samples {
		ret[i] = device.ADCToVolts(s, r.Range)
	}
	return ret
}

// SampleRate is the number of samples per second implied by the sample interval, or 0 if it is unknown.
func (r *Result) SampleRate() float64 {
	d := r.SampleInterval.Duration()
	if d <= 0 {
		return 0
	}
	return float64(time.Second) / float64(d)
}
