// Package sim implements a simulated streaming oscilloscope. The built-in signal generator is looped back into every
// enabled channel, and samples are produced in real time at the requested sample interval.
package sim

import (
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/norasector/picostream/pkg/dsp/mixer"
	"github.com/norasector/picostream/pkg/picostream/device"
)

const (
	numChannels       = 4
	defaultMaxBlock   = 10000
	maxSigGenVpp      = 4.0
	maxSigGenFreq     = 1e6
	simulatedHandle   = device.Handle(1)
	minSampleInterval = time.Nanosecond
)

type Option func(s *Simulator)

// WithClock replaces the wall clock used to decide how many samples are due.
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) {
		s.now = now
	}
}

// WithMaxBlock bounds the number of samples reported by a single notification.
func WithMaxBlock(n int) Option {
	return func(s *Simulator) {
		if n > 0 {
			s.maxBlock = n
		}
	}
}

// WithMaxNotificationsPerPoll bounds how many notifications one GetStreamingLatestValues call delivers. The rest stay
// queued for later polls and are overwritten if the ring buffer wraps onto them.
func WithMaxNotificationsPerPoll(n int) Option {
	return func(s *Simulator) {
		s.maxPerPoll = n
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Simulator) {
		s.logger = logger
	}
}

type Simulator struct {
	mu       sync.Mutex
	now      func() time.Time
	maxBlock int
	logger   zerolog.Logger

	handle   device.Handle
	channels [numChannels]device.ChannelSettings
	buffers  [numChannels][]int16
	sigGen   *device.SigGenSettings

	streaming   bool
	autoStopped bool
	settings    device.StreamingSettings
	interval    time.Duration
	started     time.Time
	produced    uint64
	writeIdx    int
	osc         *mixer.Oscillator
	scratch     []float64

	// undelivered notifications and the samples they cover
	pending    *queue.Queue
	queued     int
	maxPerPoll int
}

func NewSimulator(opts ...Option) *Simulator {
	s := &Simulator{
		now:      time.Now,
		maxBlock: defaultMaxBlock,
		logger:   log.Logger,
		pending:  queue.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulator) checkHandle(op string, h device.Handle) error {
	if s.handle == 0 || h != s.handle {
		return device.Check(op, device.StatusInvalidHandle)
	}
	return nil
}

func (s *Simulator) OpenUnit() (device.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle != 0 {
		return 0, device.Check("OpenUnit", device.StatusMaxUnitsOpened)
	}
	s.handle = simulatedHandle
	for i := range s.channels {
		s.channels[i] = device.ChannelSettings{Channel: device.Channel(i), Coupling: device.CouplingDC, Range: device.Range5V}
	}
	s.logger.Debug().Int("handle", int(s.handle)).Msg("simulated unit opened")
	return s.handle, nil
}

func (s *Simulator) SetChannel(h device.Handle, settings device.ChannelSettings) error {
	const op = "SetChannel"
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkHandle(op, h); err != nil {
		return err
	}
	if settings.Channel < device.ChannelA || settings.Channel > device.ChannelD {
		return device.Check(op, device.StatusInvalidChannel)
	}
	if !settings.Range.Valid() {
		return device.Check(op, device.StatusInvalidVoltageRange)
	}
	if s.streaming {
		return device.Check(op, device.StatusBusy)
	}
	s.channels[settings.Channel] = settings
	return nil
}

func (s *Simulator) SetSigGenBuiltIn(h device.Handle, settings device.SigGenSettings) error {
	const op = "SetSigGenBuiltIn"
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkHandle(op, h); err != nil {
		return err
	}
	if settings.Waveform < device.WaveformSine || settings.Waveform > device.WaveformDC ||
		settings.AmplitudeVpp < 0 || settings.AmplitudeVpp > maxSigGenVpp ||
		settings.Frequency < 0 || settings.Frequency > maxSigGenFreq {
		return device.Check(op, device.StatusInvalidParameter)
	}
	sg := settings
	s.sigGen = &sg
	return nil
}

func (s *Simulator) SetDataBuffer(h device.Handle, channel device.Channel, buf []int16) error {
	const op = "SetDataBuffer"
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkHandle(op, h); err != nil {
		return err
	}
	if channel < device.ChannelA || channel > device.ChannelD {
		return device.Check(op, device.StatusInvalidChannel)
	}
	if len(buf) == 0 {
		return device.Check(op, device.StatusInvalidParameter)
	}
	if s.streaming {
		return device.Check(op, device.StatusBusy)
	}
	s.buffers[channel] = buf
	return nil
}

// capacity is the common ring length of all enabled, buffered channels, or 0 if there is none or they disagree.
func (s *Simulator) capacity() int {
	capacity := 0
	for i, ch := range s.channels {
		if !ch.Enabled || s.buffers[i] == nil {
			continue
		}
		if capacity != 0 && len(s.buffers[i]) != capacity {
			return 0
		}
		capacity = len(s.buffers[i])
	}
	return capacity
}

func (s *Simulator) RunStreaming(h device.Handle, settings device.StreamingSettings) (device.SampleInterval, error) {
	const op = "RunStreaming"
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkHandle(op, h); err != nil {
		return device.SampleInterval{}, err
	}
	if s.streaming {
		return device.SampleInterval{}, device.Check(op, device.StatusBusy)
	}
	if s.capacity() == 0 || settings.OverviewBufferLen == 0 {
		return device.SampleInterval{}, device.Check(op, device.StatusInvalidParameter)
	}
	if settings.DownsampleRatio == 0 {
		settings.DownsampleRatio = 1
	}
	interval := settings.Interval.Duration() * time.Duration(settings.DownsampleRatio)
	if interval < minSampleInterval {
		return device.SampleInterval{}, device.Check(op, device.StatusInvalidTimebase)
	}

	sampleRate := float64(time.Second) / float64(interval)
	if s.sigGen != nil {
		s.osc = mixer.NewOscillator(shapeOf(s.sigGen.Waveform), sampleRate, s.sigGen.Frequency, s.sigGen.AmplitudeVpp/2, s.sigGen.OffsetVolts)
	} else {
		s.osc = mixer.NewOscillator(mixer.ShapeDC, sampleRate, 0, 0, 0)
	}

	s.settings = settings
	s.interval = interval
	s.scratch = make([]float64, s.maxBlock)
	s.started = s.now()
	s.produced = 0
	s.writeIdx = 0
	s.autoStopped = false
	s.streaming = true
	for s.pending.Length() > 0 {
		s.pending.Remove()
	}
	s.queued = 0

	s.logger.Debug().
		Str("interval", settings.Interval.String()).
		Uint32("downsample", settings.DownsampleRatio).
		Int("buffer", s.capacity()).
		Msg("simulated streaming started")

	actual := device.SampleInterval{
		Count: settings.Interval.Count * settings.DownsampleRatio,
		Units: settings.Interval.Units,
	}
	return actual, nil
}

func shapeOf(w device.Waveform) mixer.Shape {
	switch w {
	case device.WaveformSquare:
		return mixer.ShapeSquare
	case device.WaveformTriangle:
		return mixer.ShapeTriangle
	case device.WaveformDC:
		return mixer.ShapeDC
	}
	return mixer.ShapeSine
}

// dcComponent is what AC coupling removes from the generator output.
func (s *Simulator) dcComponent() float64 {
	if s.sigGen == nil {
		return 0
	}
	if s.sigGen.Waveform == device.WaveformDC {
		return s.sigGen.OffsetVolts + s.sigGen.AmplitudeVpp/2
	}
	return s.sigGen.OffsetVolts
}

func (s *Simulator) writeSample(idx int, volts float64) {
	for i, ch := range s.channels {
		if !ch.Enabled || s.buffers[i] == nil {
			continue
		}
		v := volts + float64(ch.AnalogOffset)
		if ch.Coupling == device.CouplingAC {
			v -= s.dcComponent()
		}
		s.buffers[i][idx] = device.VoltsToADC(v, ch.Range)
	}
}

// discard drops the k oldest undelivered samples from the front of the backlog and returns how many it dropped.
func (s *Simulator) discard(k int) int {
	dropped := 0
	for k > 0 && s.pending.Length() > 0 {
		front := s.pending.Peek().(*device.Notification)
		if int(front.NoOfSamples) <= k {
			s.pending.Remove()
			k -= int(front.NoOfSamples)
			dropped += int(front.NoOfSamples)
			s.queued -= int(front.NoOfSamples)
			continue
		}
		front.StartIndex = (front.StartIndex + uint32(k)) % uint32(s.capacity())
		front.NoOfSamples -= uint32(k)
		s.queued -= k
		dropped += k
		k = 0
	}
	return dropped
}

// advance writes every sample that is due into the ring buffers and queues one notification per contiguous block.
func (s *Simulator) advance() {
	if s.autoStopped {
		return
	}

	due := uint64(s.now().Sub(s.started) / s.interval)
	limit := uint64(s.settings.PreTrigger) + uint64(s.settings.PostTrigger)
	if s.settings.AutoStop && due > limit {
		due = limit
	}
	if due <= s.produced {
		return
	}

	capacity := s.capacity()
	n := int(due - s.produced)
	overflow := false
	if s.queued+n > capacity {
		// the driver has already overwritten what nobody read
		overflow = true
		dropped := s.discard(s.queued + n - capacity)
		if n > capacity {
			skip := n - capacity
			s.osc.Skip(skip)
			s.writeIdx = (s.writeIdx + skip) % capacity
			s.produced += uint64(skip)
			n = capacity
			dropped += skip
		}
		if s.pending.Length() > 0 {
			s.pending.Peek().(*device.Notification).Overflow = true
			overflow = false
		}
		s.logger.Debug().Int("dropped", dropped).Msg("simulated ring buffer overflow")
	}

	for n > 0 {
		block := n
		if room := capacity - s.writeIdx; block > room {
			block = room
		}
		if block > s.maxBlock {
			block = s.maxBlock
		}

		volts := s.scratch[:block]
		s.osc.WorkBuffer(volts)
		for i, v := range volts {
			s.writeSample(s.writeIdx+i, v)
		}

		s.produced += uint64(block)
		n -= block

		autoStop := s.settings.AutoStop && s.produced >= limit
		s.pending.Add(&device.Notification{
			Handle:      s.handle,
			NoOfSamples: uint32(block),
			StartIndex:  uint32(s.writeIdx),
			Overflow:    overflow,
			AutoStop:    autoStop,
		})
		s.queued += block
		overflow = false
		s.writeIdx = (s.writeIdx + block) % capacity
		if autoStop {
			s.autoStopped = true
		}
	}
}

func (s *Simulator) GetStreamingLatestValues(h device.Handle, ready device.StreamingReady, param interface{}) error {
	const op = "GetStreamingLatestValues"
	s.mu.Lock()

	if err := s.checkHandle(op, h); err != nil {
		s.mu.Unlock()
		return err
	}
	if !s.streaming {
		s.mu.Unlock()
		return device.Check(op, device.StatusNotStreaming)
	}
	if ready == nil {
		s.mu.Unlock()
		return device.Check(op, device.StatusInvalidParameter)
	}

	s.advance()
	count := s.pending.Length()
	if s.maxPerPoll > 0 && count > s.maxPerPoll {
		count = s.maxPerPoll
	}
	notifications := make([]device.Notification, 0, count)
	for i := 0; i < count; i++ {
		n := s.pending.Remove().(*device.Notification)
		s.queued -= int(n.NoOfSamples)
		n.Param = param
		notifications = append(notifications, *n)
	}
	s.mu.Unlock()

	for _, n := range notifications {
		ready(n)
	}
	return nil
}

func (s *Simulator) Stop(h device.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkHandle("Stop", h); err != nil {
		return err
	}
	s.streaming = false
	return nil
}

func (s *Simulator) CloseUnit(h device.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkHandle("CloseUnit", h); err != nil {
		return err
	}
	s.streaming = false
	s.handle = 0
	s.sigGen = nil
	s.buffers = [numChannels][]int16{}
	s.logger.Debug().Msg("simulated unit closed")
	return nil
}
