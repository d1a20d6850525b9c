package picostream

import (
	"fmt"
	"time"

	"github.com/norasector/picostream/pkg/picostream/device"
)

type Options struct {
	// BufferLength is the ring buffer capacity in samples.
	BufferLength int
	// DataLength is the number of samples to acquire.
	DataLength int
	Channel    device.ChannelSettings
	// SigGen enables the built-in signal generator when non-nil.
	SigGen    *device.SigGenSettings
	Streaming device.StreamingSettings
	Timeout   time.Duration
	PollDelay time.Duration
}

func (o Options) Validate() error {
	if o.BufferLength <= 0 || o.DataLength <= 0 {
		return fmt.Errorf("must specify buffer length and data length")
	}
	if o.Timeout <= 0 {
		return fmt.Errorf("must specify a streaming timeout")
	}
	if o.PollDelay < 0 {
		return fmt.Errorf("poll delay %s is negative", o.PollDelay)
	}
	if !o.Channel.Range.Valid() {
		return fmt.Errorf("invalid voltage range %s", o.Channel.Range)
	}
	return nil
}
