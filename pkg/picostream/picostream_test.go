package picostream

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/norasector/picostream/pkg/picostream/device"
	"github.com/norasector/picostream/pkg/picostream/device/sim"
	"github.com/norasector/picostream/pkg/util"
)

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1600000000, 0)}
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.t = c.t.Add(d)
	return nil
}

// scriptedDevice delivers a fixed list of notifications per poll. Each notified region is filled with consecutive
// values of a counter so the accumulated stream can be checked against 0, 1, 2, ...
type scriptedDevice struct {
	calls   []string
	ring    []int16
	script  [][]device.Notification
	polls   int
	next    int16
	failOn  map[string]device.Status
	handled int
}

func (d *scriptedDevice) call(op string) error {
	d.calls = append(d.calls, op)
	if status, ok := d.failOn[op]; ok {
		return device.Check(op, status)
	}
	return nil
}

func (d *scriptedDevice) OpenUnit() (device.Handle, error) {
	if err := d.call("OpenUnit"); err != nil {
		return 0, err
	}
	return 1, nil
}

func (d *scriptedDevice) SetChannel(h device.Handle, settings device.ChannelSettings) error {
	return d.call("SetChannel")
}

func (d *scriptedDevice) SetSigGenBuiltIn(h device.Handle, settings device.SigGenSettings) error {
	return d.call("SetSigGenBuiltIn")
}

func (d *scriptedDevice) SetDataBuffer(h device.Handle, channel device.Channel, buf []int16) error {
	d.ring = buf
	return d.call("SetDataBuffer")
}

func (d *scriptedDevice) RunStreaming(h device.Handle, settings device.StreamingSettings) (device.SampleInterval, error) {
	if settings.AutoStop {
		return device.SampleInterval{}, device.Check("RunStreaming", device.StatusInvalidParameter)
	}
	return settings.Interval, d.call("RunStreaming")
}

func (d *scriptedDevice) GetStreamingLatestValues(h device.Handle, ready device.StreamingReady, param interface{}) error {
	if status, ok := d.failOn["GetStreamingLatestValues"]; ok {
		return device.Check("GetStreamingLatestValues", status)
	}
	if d.polls < len(d.script) {
		for _, n := range d.script[d.polls] {
			for i := uint32(0); i < n.NoOfSamples && int(n.StartIndex+i) < len(d.ring); i++ {
				d.ring[n.StartIndex+i] = d.next
				d.next++
			}
			d.handled++
			ready(n)
		}
	}
	d.polls++
	return nil
}

func (d *scriptedDevice) Stop(h device.Handle) error {
	return d.call("Stop")
}

func (d *scriptedDevice) CloseUnit(h device.Handle) error {
	return d.call("CloseUnit")
}

func (d *scriptedDevice) teardownCalls() []string {
	var ret []string
	for _, c := range d.calls {
		if c == "Stop" || c == "CloseUnit" {
			ret = append(ret, c)
		}
	}
	return ret
}

func testOptions(bufferLength, dataLength int) Options {
	return Options{
		BufferLength: bufferLength,
		DataLength:   dataLength,
		Channel: device.ChannelSettings{
			Channel:  device.ChannelA,
			Enabled:  true,
			Coupling: device.CouplingDC,
			Range:    device.Range2V,
		},
		Streaming: device.StreamingSettings{
			Interval:    device.SampleInterval{Count: 1, Units: device.TimeUnitsUS},
			PostTrigger: 10000,
		},
		Timeout:   5 * time.Second,
		PollDelay: 2 * time.Millisecond,
	}
}

func runStreamer(t *testing.T, dev device.Device, opts Options, extra ...StreamerOption) (*Result, error) {
	t.Helper()
	clock := newFakeClock()
	s, err := NewStreamer(dev, opts, append([]StreamerOption{WithClock(clock), WithLogger(zerolog.Nop())}, extra...)...)
	if err != nil {
		t.Fatalf("NewStreamer: %v", err)
	}
	res, err := s.Run(context.Background())
	if res == nil {
		t.Fatal("Run returned nil result")
	}
	return res, err
}

func sequence(n int) []int16 {
	ret := make([]int16, n)
	for i := range ret {
		ret[i] = int16(i)
	}
	return ret
}

func TestStreamerCompletesAcrossWraps(t *testing.T) {
	var script [][]device.Notification
	for i := 0; i < 50; i++ {
		script = append(script, []device.Notification{{
			Handle:      1,
			NoOfSamples: 10000,
			StartIndex:  uint32((i % 10) * 10000),
		}})
	}
	dev := &scriptedDevice{script: script}
	metrics := &util.RecordingWriteAPI{}

	res, err := runStreamer(t, dev, testOptions(100000, 500000), WithInfluxDB(metrics))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Reason != StateCompleted {
		t.Errorf("reason = %s, want completed", res.Reason)
	}
	if res.Len() != 500000 {
		t.Errorf("len = %d, want 500000", res.Len())
	}
	if !reflect.DeepEqual(res.Samples, sequence(500000)) {
		t.Error("accumulated samples are not the notified blocks in order")
	}
	if res.Notifications != 50 || res.Polls != 50 {
		t.Errorf("notifications = %d polls = %d, want 50 and 50", res.Notifications, res.Polls)
	}
	if got, want := dev.teardownCalls(), []string{"Stop", "CloseUnit"}; !reflect.DeepEqual(got, want) {
		t.Errorf("teardown = %v, want %v", got, want)
	}
	if got := len(metrics.Points("picostream.poll")); got != 50 {
		t.Errorf("poll points = %d, want 50", got)
	}
	if got := len(metrics.Points("picostream.session")); got != 1 {
		t.Errorf("session points = %d, want 1", got)
	}
}

func TestStreamerTimesOutWithoutData(t *testing.T) {
	dev := &scriptedDevice{}

	res, err := runStreamer(t, dev, testOptions(100000, 500000))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Reason != StateTimedOut {
		t.Errorf("reason = %s, want timed_out", res.Reason)
	}
	if res.Len() != 0 {
		t.Errorf("len = %d, want 0", res.Len())
	}
	if res.Elapsed < 5*time.Second || res.Elapsed > 5*time.Second+2*time.Millisecond {
		t.Errorf("elapsed = %s, want ~5s", res.Elapsed)
	}
	if res.Polls != 2500 {
		t.Errorf("polls = %d, want 2500", res.Polls)
	}
	if got, want := dev.teardownCalls(), []string{"Stop", "CloseUnit"}; !reflect.DeepEqual(got, want) {
		t.Errorf("teardown = %v, want %v", got, want)
	}
}

func TestStreamerRunStreamingFailure(t *testing.T) {
	dev := &scriptedDevice{
		failOn: map[string]device.Status{"RunStreaming": device.StatusInvalidTimebase},
		script: [][]device.Notification{{{NoOfSamples: 10}}},
	}

	res, err := runStreamer(t, dev, testOptions(100, 100))
	var se *device.StatusError
	if !errors.As(err, &se) || se.Op != "RunStreaming" || se.Status != device.StatusInvalidTimebase {
		t.Fatalf("err = %v, want RunStreaming status error", err)
	}
	if res.Reason != StateFailed || res.Err != err {
		t.Errorf("reason = %s err = %v", res.Reason, res.Err)
	}
	if dev.handled != 0 {
		t.Errorf("handler ran %d times", dev.handled)
	}
	if got, want := dev.teardownCalls(), []string{"CloseUnit"}; !reflect.DeepEqual(got, want) {
		t.Errorf("teardown = %v, want %v", got, want)
	}
}

func TestStreamerOpenFailureSkipsTeardown(t *testing.T) {
	dev := &scriptedDevice{failOn: map[string]device.Status{"OpenUnit": device.StatusNotFound}}

	res, err := runStreamer(t, dev, testOptions(100, 100))
	if device.StatusOf(err) != device.StatusNotFound {
		t.Fatalf("err = %v", err)
	}
	if res.Reason != StateFailed {
		t.Errorf("reason = %s", res.Reason)
	}
	if got := dev.teardownCalls(); len(got) != 0 {
		t.Errorf("teardown = %v, want none", got)
	}
}

func TestStreamerSigGenIsOptional(t *testing.T) {
	opts := testOptions(10, 10)
	dev := &scriptedDevice{script: [][]device.Notification{{{NoOfSamples: 10}}}}
	if _, err := runStreamer(t, dev, opts); err != nil {
		t.Fatal(err)
	}
	for _, c := range dev.calls {
		if c == "SetSigGenBuiltIn" {
			t.Error("signal generator configured without settings")
		}
	}

	opts.SigGen = &device.SigGenSettings{Waveform: device.WaveformSine, Frequency: 5, AmplitudeVpp: 2}
	dev = &scriptedDevice{script: [][]device.Notification{{{NoOfSamples: 10}}}}
	if _, err := runStreamer(t, dev, opts); err != nil {
		t.Fatal(err)
	}
	want := []string{"OpenUnit", "SetSigGenBuiltIn", "SetChannel", "SetDataBuffer", "RunStreaming", "Stop", "CloseUnit"}
	if !reflect.DeepEqual(dev.calls, want) {
		t.Errorf("calls = %v, want %v", dev.calls, want)
	}
}

func TestStreamerPollFailureKeepsPartialData(t *testing.T) {
	dev := &scriptedDevice{script: [][]device.Notification{{{NoOfSamples: 30}}}}

	// fail on the second poll
	res, err := runStreamer(t, &failAfterPolls{scriptedDevice: dev, after: 1}, testOptions(100, 100))
	if device.StatusOf(err) != device.StatusBusy {
		t.Fatalf("err = %v, want busy", err)
	}
	if res.Reason != StateFailed || res.Len() != 30 {
		t.Errorf("reason = %s len = %d, want failed and 30", res.Reason, res.Len())
	}
	if got, want := dev.teardownCalls(), []string{"Stop", "CloseUnit"}; !reflect.DeepEqual(got, want) {
		t.Errorf("teardown = %v, want %v", got, want)
	}
}

type failAfterPolls struct {
	*scriptedDevice
	after int
}

func (f *failAfterPolls) GetStreamingLatestValues(h device.Handle, ready device.StreamingReady, param interface{}) error {
	if f.polls >= f.after {
		return device.Check("GetStreamingLatestValues", device.StatusBusy)
	}
	return f.scriptedDevice.GetStreamingLatestValues(h, ready, param)
}

func TestStreamerTruncatesAtDataLength(t *testing.T) {
	dev := &scriptedDevice{script: [][]device.Notification{
		{{StartIndex: 0, NoOfSamples: 10}},
		{{StartIndex: 10, NoOfSamples: 10}},
		{{StartIndex: 0, NoOfSamples: 10}},
	}}

	res, err := runStreamer(t, dev, testOptions(20, 25))
	if err != nil {
		t.Fatal(err)
	}
	if res.Reason != StateCompleted {
		t.Errorf("reason = %s, want completed", res.Reason)
	}
	if !reflect.DeepEqual(res.Samples, sequence(25)) {
		t.Errorf("samples = %v", res.Samples)
	}
	if res.Truncated != 5 {
		t.Errorf("truncated = %d, want 5", res.Truncated)
	}
}

func TestStreamerEmptyPollsAndBatches(t *testing.T) {
	dev := &scriptedDevice{script: [][]device.Notification{
		{{StartIndex: 0, NoOfSamples: 4}, {StartIndex: 4, NoOfSamples: 6}},
		{},
		{},
		{{StartIndex: 10, NoOfSamples: 2, Triggered: true, AutoStop: true, TriggerAt: 1}, {StartIndex: 0, NoOfSamples: 8}},
	}}

	res, err := runStreamer(t, dev, testOptions(12, 20))
	if err != nil {
		t.Fatal(err)
	}
	if res.Reason != StateCompleted || res.Polls != 4 || res.Notifications != 4 {
		t.Errorf("reason = %s polls = %d notifications = %d", res.Reason, res.Polls, res.Notifications)
	}
	if !reflect.DeepEqual(res.Samples, sequence(20)) {
		t.Errorf("samples = %v", res.Samples)
	}
}

func TestStreamerOverflowIsNotFatal(t *testing.T) {
	dev := &scriptedDevice{script: [][]device.Notification{
		{{StartIndex: 0, NoOfSamples: 5}},
		{{StartIndex: 7, NoOfSamples: 3, Overflow: true}, {StartIndex: 0, NoOfSamples: 2}},
	}}

	res, err := runStreamer(t, dev, testOptions(10, 10))
	if err != nil {
		t.Fatal(err)
	}
	if res.Reason != StateCompleted || res.Overflows != 1 || res.Len() != 10 {
		t.Errorf("reason = %s overflows = %d len = %d", res.Reason, res.Overflows, res.Len())
	}
}

func TestStreamerRejectsSegmentOutsideRing(t *testing.T) {
	dev := &scriptedDevice{script: [][]device.Notification{{{StartIndex: 8, NoOfSamples: 5}}}}

	res, err := runStreamer(t, dev, testOptions(10, 100))
	if !errors.Is(err, ErrSegmentOutOfRange) {
		t.Fatalf("err = %v, want ErrSegmentOutOfRange", err)
	}
	if res.Reason != StateFailed || res.Len() != 0 {
		t.Errorf("reason = %s len = %d", res.Reason, res.Len())
	}
	if got, want := dev.teardownCalls(), []string{"Stop", "CloseUnit"}; !reflect.DeepEqual(got, want) {
		t.Errorf("teardown = %v, want %v", got, want)
	}
}

func TestStreamerCanceled(t *testing.T) {
	dev := &scriptedDevice{}
	s, err := NewStreamer(dev, testOptions(10, 10), WithClock(newFakeClock()), WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := s.Run(ctx)
	if !errors.Is(err, context.Canceled) || res.Reason != StateFailed {
		t.Errorf("err = %v reason = %s", err, res.Reason)
	}
	if dev.polls != 1 {
		t.Errorf("polls = %d, want 1", dev.polls)
	}
	if got, want := dev.teardownCalls(), []string{"Stop", "CloseUnit"}; !reflect.DeepEqual(got, want) {
		t.Errorf("teardown = %v, want %v", got, want)
	}
}

func TestStreamerStopFailureStillCloses(t *testing.T) {
	dev := &scriptedDevice{
		script: [][]device.Notification{{{NoOfSamples: 10}}},
		failOn: map[string]device.Status{"Stop": device.StatusInvalidHandle},
	}

	res, err := runStreamer(t, dev, testOptions(10, 10))
	if device.StatusOf(err) != device.StatusInvalidHandle {
		t.Fatalf("err = %v", err)
	}
	if res.Reason != StateCompleted || res.Len() != 10 {
		t.Errorf("reason = %s len = %d", res.Reason, res.Len())
	}
	if got, want := dev.teardownCalls(), []string{"Stop", "CloseUnit"}; !reflect.DeepEqual(got, want) {
		t.Errorf("teardown = %v, want %v", got, want)
	}
}

func TestStreamerRunsOnce(t *testing.T) {
	dev := &scriptedDevice{script: [][]device.Notification{{{NoOfSamples: 10}}}}
	s, err := NewStreamer(dev, testOptions(10, 10), WithClock(newFakeClock()), WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Run(context.Background()); !errors.Is(err, ErrAlreadyRun) {
		t.Errorf("second run err = %v", err)
	}
	if got := len(dev.teardownCalls()); got != 2 {
		t.Errorf("teardown calls = %d, want 2", got)
	}
}

func TestNewStreamerValidates(t *testing.T) {
	tests := []struct {
		name   string
		modify func(o *Options)
	}{
		{"no buffer", func(o *Options) { o.BufferLength = 0 }},
		{"no data", func(o *Options) { o.DataLength = 0 }},
		{"no timeout", func(o *Options) { o.Timeout = 0 }},
		{"negative delay", func(o *Options) { o.PollDelay = -time.Second }},
		{"bad range", func(o *Options) { o.Channel.Range = device.Range(42) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions(10, 10)
			tt.modify(&opts)
			if _, err := NewStreamer(&scriptedDevice{}, opts); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestStreamerWithSimulator(t *testing.T) {
	clock := newFakeClock()
	dev := sim.NewSimulator(sim.WithClock(clock.Now), sim.WithLogger(zerolog.Nop()))
	opts := testOptions(100000, 500000)
	opts.SigGen = &device.SigGenSettings{Waveform: device.WaveformSine, Frequency: 5, AmplitudeVpp: 2}

	s, err := NewStreamer(dev, opts, WithClock(clock), WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatal(err)
	}
	res, err := s.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Reason != StateCompleted || res.Len() != 500000 || res.Overflows != 0 {
		t.Errorf("reason = %s len = %d overflows = %d", res.Reason, res.Len(), res.Overflows)
	}
	if res.SampleRate() != 1e6 {
		t.Errorf("sample rate = %v, want 1e6", res.SampleRate())
	}

	// 5 Hz at 1 MS/s peaks at a quarter period
	if v := res.Volts()[50000]; v < 0.99 || v > 1.01 {
		t.Errorf("peak = %v V, want ~1 V", v)
	}
}

func TestStreamerReportsDownsampledRate(t *testing.T) {
	clock := newFakeClock()
	dev := sim.NewSimulator(sim.WithClock(clock.Now), sim.WithLogger(zerolog.Nop()))
	opts := testOptions(100000, 200000)
	opts.Streaming.DownsampleRatio = 2

	s, err := NewStreamer(dev, opts, WithClock(clock), WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatal(err)
	}
	res, err := s.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Reason != StateCompleted || res.Len() != 200000 {
		t.Errorf("reason = %s len = %d", res.Reason, res.Len())
	}
	if want := (device.SampleInterval{Count: 2, Units: device.TimeUnitsUS}); res.SampleInterval != want {
		t.Errorf("interval = %v, want %v", res.SampleInterval, want)
	}
	if res.SampleRate() != 5e5 {
		t.Errorf("sample rate = %v, want 5e5", res.SampleRate())
	}
}
