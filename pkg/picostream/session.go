package picostream

import (
	"time"

	"github.com/norasector/picostream/pkg/picostream/device"
)

// session is the state of one acquisition. It is shared by the streaming loop and the notification handler, which
// never run at the same time: the driver calls the handler from inside GetStreamingLatestValues.
type session struct {
	handle    device.Handle
	opened    bool
	streaming bool
	startTime time.Time
	interval  device.SampleInterval

	ring *RingBuffer
	acc  *Accumulator

	lastSegment Segment
	notified    bool
	inPoll      bool

	polls         int
	notifications int
	overflows     int
	truncated     int

	// first contract violation seen by the handler
	handlerErr error
}

func newSession(bufferLength, dataLength int) *session {
	return &session{
		ring: NewRingBuffer(bufferLength),
		acc:  NewAccumulator(dataLength),
	}
}

func (s *session) fail(err error) {
	if s.handlerErr == nil {
		s.handlerErr = err
	}
}

// onStreamingReady is the notification handler given to the driver. It is the only place the accumulator's write
// cursor advances.
func (s *session) onStreamingReady(n device.Notification) {
	if !s.inPoll {
		s.fail(ErrNotificationOutsidePoll)
		return
	}

	seg := Segment{
		Offset:    n.StartIndex,
		Length:    n.NoOfSamples,
		Overflow:  n.Overflow,
		Triggered: n.Triggered,
	}
	src, err := s.ring.Segment(seg)
	if err != nil {
		s.fail(err)
		return
	}

	if seg.Overflow {
		s.overflows++
	}
	copied := s.acc.Append(src)
	s.truncated += len(src) - copied
	s.notifications++
	s.lastSegment = seg
	s.notified = true
}
