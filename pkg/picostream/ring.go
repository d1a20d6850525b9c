package picostream

import "fmt"

// Segment describes one contiguous block the driver reported. It is only valid until the next poll.
type Segment struct {
	Offset    uint32
	Length    uint32
	Overflow  bool
	Triggered bool
}

// RingBuffer is the circular sample buffer handed to the driver. The driver writes it; the session only reads the
// region of the most recent notification.
type RingBuffer struct {
	buf []int16
}

func NewRingBuffer(capacity int) *RingBuffer {
	return &RingBuffer{buf: make([]int16, capacity)}
}

func (r *RingBuffer) Cap() int {
	return len(r.buf)
}

// Backing returns the slice registered with the driver.
func (r *RingBuffer) Backing() []int16 {
	return r.buf
}

// Segment returns the samples covered by seg, which must satisfy offset < cap and offset+length <= cap.
func (r *RingBuffer) Segment(seg Segment) ([]int16, error) {
	start := uint64(seg.Offset)
	end := start + uint64(seg.Length)
	if start >= uint64(r.Cap()) || end > uint64(r.Cap()) {
		return nil, fmt.Errorf("%w: offset %d length %d capacity %d", ErrSegmentOutOfRange, seg.Offset, seg.Length, r.Cap())
	}
	return r.buf[start:end], nil
}
