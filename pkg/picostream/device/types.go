package device

import (
	"fmt"
	"strings"
	"time"
)

// MaxADCValue is the full-scale ADC count for any voltage range.
const MaxADCValue = 32512

type Channel int

const (
	ChannelA Channel = iota
	ChannelB
	ChannelC
	ChannelD
)

func (c Channel) String() string {
	if c < ChannelA || c > ChannelD {
		return fmt.Sprintf("channel(%d)", int(c))
	}
	return string(rune('A' + int(c)))
}

type Coupling int

const (
	CouplingAC Coupling = iota
	CouplingDC
)

func (c Coupling) String() string {
	if c == CouplingAC {
		return "ac"
	}
	return "dc"
}

func ParseCoupling(s string) (Coupling, error) {
	switch strings.ToLower(s) {
	case "ac":
		return CouplingAC, nil
	case "dc", "":
		return CouplingDC, nil
	}
	return 0, fmt.Errorf("unknown coupling %q", s)
}

type Range int

const (
	Range10mV Range = iota
	Range20mV
	Range50mV
	Range100mV
	Range200mV
	Range500mV
	Range1V
	Range2V
	Range5V
	Range10V
	Range20V
)

var rangeVolts = []float64{0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10, 20}
var rangeNames = []string{"10mV", "20mV", "50mV", "100mV", "200mV", "500mV", "1V", "2V", "5V", "10V", "20V"}

func (r Range) Valid() bool {
	return r >= Range10mV && r <= Range20V
}

// Volts is the full-scale input voltage of the range.
func (r Range) Volts() float64 {
	if !r.Valid() {
		return 0
	}
	return rangeVolts[r]
}

func (r Range) String() string {
	if !r.Valid() {
		return fmt.Sprintf("range(%d)", int(r))
	}
	return rangeNames[r]
}

func ParseRange(s string) (Range, error) {
	for i, name := range rangeNames {
		if strings.EqualFold(name, s) {
			return Range(i), nil
		}
	}
	return 0, fmt.Errorf("unknown voltage range %q", s)
}

// ADCToVolts converts a raw sample taken on r to volts.
func ADCToVolts(sample int16, r Range) float64 {
	return float64(sample) * r.Volts() / MaxADCValue
}

// VoltsToADC converts volts on r to a raw sample, clipping at full scale.
func VoltsToADC(v float64, r Range) int16 {
	if !r.Valid() {
		return 0
	}
	counts := v / r.Volts() * MaxADCValue
	switch {
	case counts > MaxADCValue:
		counts = MaxADCValue
	case counts < -MaxADCValue:
		counts = -MaxADCValue
	}
	return int16(counts)
}

type ChannelSettings struct {
	Channel      Channel
	Enabled      bool
	Coupling     Coupling
	Range        Range
	AnalogOffset float32
}

type Waveform int

const (
	WaveformSine Waveform = iota
	WaveformSquare
	WaveformTriangle
	WaveformDC
)

var waveformNames = []string{"sine", "square", "triangle", "dc"}

func (w Waveform) String() string {
	if w < WaveformSine || w > WaveformDC {
		return fmt.Sprintf("waveform(%d)", int(w))
	}
	return waveformNames[w]
}

func ParseWaveform(s string) (Waveform, error) {
	for i, name := range waveformNames {
		if strings.EqualFold(name, s) {
			return Waveform(i), nil
		}
	}
	return 0, fmt.Errorf("unknown waveform %q", s)
}

// SigGenSettings configures the built-in arbitrary waveform generator.
type SigGenSettings struct {
	Waveform     Waveform
	Frequency    float64 // Hz
	AmplitudeVpp float64
	OffsetVolts  float64
}

type TimeUnits int

const (
	TimeUnitsFS TimeUnits = iota
	TimeUnitsPS
	TimeUnitsNS
	TimeUnitsUS
	TimeUnitsMS
	TimeUnitsS
)

var timeUnitNames = []string{"fs", "ps", "ns", "us", "ms", "s"}

func (u TimeUnits) String() string {
	if u < TimeUnitsFS || u > TimeUnitsS {
		return fmt.Sprintf("units(%d)", int(u))
	}
	return timeUnitNames[u]
}

func ParseTimeUnits(s string) (TimeUnits, error) {
	for i, name := range timeUnitNames {
		if strings.EqualFold(name, s) {
			return TimeUnits(i), nil
		}
	}
	return 0, fmt.Errorf("unknown time units %q", s)
}

// SampleInterval is an interval count expressed in Units.
type SampleInterval struct {
	Count uint32
	Units TimeUnits
}

// Duration converts the interval to a time.Duration. Sub-nanosecond intervals round down.
func (s SampleInterval) Duration() time.Duration {
	count := time.Duration(s.Count)
	switch s.Units {
	case TimeUnitsFS:
		return count / 1000000
	case TimeUnitsPS:
		return count / 1000
	case TimeUnitsNS:
		return count * time.Nanosecond
	case TimeUnitsUS:
		return count * time.Microsecond
	case TimeUnitsMS:
		return count * time.Millisecond
	case TimeUnitsS:
		return count * time.Second
	}
	return 0
}

func (s SampleInterval) String() string {
	return fmt.Sprintf("%d%s", s.Count, s.Units)
}

type StreamingSettings struct {
	Interval          SampleInterval
	PreTrigger        uint32
	PostTrigger       uint32
	AutoStop          bool
	DownsampleRatio   uint32
	OverviewBufferLen uint32
}
