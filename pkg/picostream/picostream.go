package picostream

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/norasector/picostream/pkg/picostream/device"
	"github.com/norasector/picostream/pkg/util"
)

// Streamer acquires DataLength samples from a streaming device into a linear buffer.
type Streamer struct {
	device   device.Device
	opts     Options
	writeAPI api.WriteAPI
	logger   zerolog.Logger
	clock    Clock
	state    State
	ran      bool
}

type StreamerOption func(s *Streamer) error

func WithInfluxDB(writeAPI api.WriteAPI) StreamerOption {
	return func(s *Streamer) error {
		s.writeAPI = writeAPI
		return nil
	}
}

func WithLogger(logger zerolog.Logger) StreamerOption {
	return func(s *Streamer) error {
		s.logger = logger
		return nil
	}
}

func WithClock(clock Clock) StreamerOption {
	return func(s *Streamer) error {
		if clock == nil {
			return fmt.Errorf("nil clock")
		}
		s.clock = clock
		return nil
	}
}

func NewStreamer(dev device.Device, options Options, opts ...StreamerOption) (*Streamer, error) {
	if dev == nil {
		return nil, fmt.Errorf("must specify a device")
	}
	s := &Streamer{
		device:   dev,
		opts:     options,
		writeAPI: &util.MockWriteAPI{}, // overwritten with option
		logger:   log.Logger,
		clock:    wallClock{},
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if err := s.opts.Validate(); err != nil {
		return nil, err
	}
	s.opts.Streaming.AutoStop = false
	s.opts.Streaming.OverviewBufferLen = uint32(s.opts.BufferLength)
	if s.opts.Streaming.DownsampleRatio == 0 {
		s.opts.Streaming.DownsampleRatio = 1
	}

	return s, nil
}

func (s *Streamer) setState(state State) {
	s.logger.Debug().Str("from", s.state.String()).Str("to", state.String()).Msg("state change")
	s.state = state
}

// Run performs one acquisition. The returned Result is never nil and holds whatever was captured; the error is
// non-nil when the session failed or teardown did. Stop and CloseUnit are issued exactly once for whatever part of
// the session was set up, however the run ends.
func (s *Streamer) Run(ctx context.Context) (res *Result, err error) {
	if s.ran {
		return &Result{Reason: StateFailed, Err: ErrAlreadyRun}, ErrAlreadyRun
	}
	s.ran = true

	sess := newSession(s.opts.BufferLength, s.opts.DataLength)
	reason := StateFailed
	defer func() {
		if !reason.Terminal() {
			reason = StateFailed
		}
		teardownErr := s.teardown(sess)
		s.setState(StateStopped)
		if err == nil {
			err = teardownErr
		}
		res = s.result(sess, reason, err)
		s.report(res)
	}()

	reason, err = s.acquire(ctx, sess)
	return res, err
}

// acquire opens and configures the unit, starts streaming and runs the loop until a terminal state.
func (s *Streamer) acquire(ctx context.Context, sess *session) (State, error) {
	s.setState(StateIdle)

	handle, err := s.device.OpenUnit()
	if err != nil {
		return s.failed(err)
	}
	sess.handle = handle
	sess.opened = true

	if s.opts.SigGen != nil {
		if err := s.device.SetSigGenBuiltIn(handle, *s.opts.SigGen); err != nil {
			return s.failed(err)
		}
	}
	if err := s.device.SetChannel(handle, s.opts.Channel); err != nil {
		return s.failed(err)
	}
	if err := s.device.SetDataBuffer(handle, s.opts.Channel.Channel, sess.ring.Backing()); err != nil {
		return s.failed(err)
	}
	interval, err := s.device.RunStreaming(handle, s.opts.Streaming)
	if err != nil {
		return s.failed(err)
	}
	sess.streaming = true
	sess.interval = interval
	sess.startTime = s.clock.Now()
	s.setState(StateStreaming)

	s.logger.Info().
		Int("buffer_length", s.opts.BufferLength).
		Int("data_length", s.opts.DataLength).
		Str("sample_interval", interval.String()).
		Dur("timeout", s.opts.Timeout).
		Msg("streaming started")

	return s.loop(ctx, sess)
}

func (s *Streamer) failed(err error) (State, error) {
	s.setState(StateFailed)
	return StateFailed, err
}

func (s *Streamer) loop(ctx context.Context, sess *session) (State, error) {
	for {
		if sess.acc.Full() {
			s.setState(StateCompleted)
			return StateCompleted, nil
		}
		if s.clock.Now().Sub(sess.startTime) >= s.opts.Timeout {
			s.setState(StateTimedOut)
			return StateTimedOut, nil
		}
		if err := s.poll(sess); err != nil {
			return s.failed(err)
		}
		if err := s.clock.Sleep(ctx, s.opts.PollDelay); err != nil {
			return s.failed(err)
		}
	}
}

// poll asks the driver for pending notifications. The handler may run any number of times before it returns.
func (s *Streamer) poll(sess *session) error {
	var err error
	before, overflowsBefore, notificationsBefore := sess.acc.Len(), sess.overflows, sess.notifications

	pollMicros := util.TimeOperationMicroseconds(func() {
		sess.inPoll = true
		defer func() { sess.inPoll = false }()
		err = s.device.GetStreamingLatestValues(sess.handle, sess.onStreamingReady, nil)
	})
	sess.polls++

	if err != nil {
		return err
	}
	if sess.handlerErr != nil {
		return sess.handlerErr
	}

	if sess.notified {
		sess.notified = false
		s.logger.Debug().
			Uint32("samples", sess.lastSegment.Length).
			Uint32("offset", sess.lastSegment.Offset).
			Int("total", sess.acc.Len()).
			Msg("callback")

		s.writeAPI.WritePoint(influxdb2.NewPoint("picostream.poll",
			map[string]string{
				"channel": s.opts.Channel.Channel.String(),
			},
			map[string]interface{}{
				"samples":       sess.acc.Len() - before,
				"notifications": sess.notifications - notificationsBefore,
				"overflows":     sess.overflows - overflowsBefore,
				"poll_us":       pollMicros,
			}, time.Now()))
	}
	if sess.overflows > overflowsBefore {
		s.logger.Warn().
			Int("overflows", sess.overflows).
			Uint32("offset", sess.lastSegment.Offset).
			Msg("ring buffer overflow, samples lost")
	}

	return nil
}

func (s *Streamer) teardown(sess *session) error {
	var first error
	if sess.streaming {
		sess.streaming = false
		if err := s.device.Stop(sess.handle); err != nil {
			s.logger.Error().Err(err).Msg("error stopping stream")
			first = err
		}
	}
	if sess.opened {
		sess.opened = false
		if err := s.device.CloseUnit(sess.handle); err != nil {
			s.logger.Error().Err(err).Msg("error closing unit")
			if first == nil {
				first = err
			}
		}
	}
	return first
}

func (s *Streamer) result(sess *session, reason State, err error) *Result {
	var elapsed time.Duration
	if !sess.startTime.IsZero() {
		elapsed = s.clock.Now().Sub(sess.startTime)
	}
	return &Result{
		Samples:        sess.acc.Samples(),
		Reason:         reason,
		Range:          s.opts.Channel.Range,
		SampleInterval: sess.interval,
		Polls:          sess.polls,
		Notifications:  sess.notifications,
		Overflows:      sess.overflows,
		Truncated:      sess.truncated,
		Elapsed:        elapsed,
		Err:            err,
	}
}

func (s *Streamer) report(res *Result) {
	ev := s.logger.Info()
	if res.Reason == StateFailed {
		ev = s.logger.Error().Err(res.Err)
	}
	ev.Str("reason", res.Reason.String()).
		Int("samples", res.Len()).
		Int("overflows", res.Overflows).
		Int("polls", res.Polls).
		Dur("elapsed", res.Elapsed).
		Msg("streaming finished")

	s.writeAPI.WritePoint(influxdb2.NewPoint("picostream.session",
		map[string]string{
			"reason": res.Reason.String(),
		},
		map[string]interface{}{
			"samples":       res.Len(),
			"notifications": res.Notifications,
			"overflows":     res.Overflows,
			"truncated":     res.Truncated,
			"polls":         res.Polls,
			"elapsed_ms":    res.Elapsed.Milliseconds(),
		}, time.Now()))
}
