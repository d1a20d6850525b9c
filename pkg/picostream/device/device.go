package device

// Handle identifies an open unit. The zero value means no unit was opened.
type Handle int16

// Notification is what the driver reports each time a contiguous block of new samples has landed in the
// buffer registered with SetDataBuffer.
type Notification struct {
	Handle      Handle
	NoOfSamples uint32
	StartIndex  uint32
	Overflow    bool
	TriggerAt   uint32
	Triggered   bool
	AutoStop    bool
	Param       interface{}
}

// StreamingReady is invoked by the driver, synchronously and only from inside GetStreamingLatestValues.
// It must not block and must not retain the notification.
type StreamingReady func(n Notification)

// Device is the driver binding of a streaming oscilloscope. Every call that fails returns a *StatusError.
type Device interface {
	OpenUnit() (Handle, error)
	SetChannel(h Handle, settings ChannelSettings) error
	SetSigGenBuiltIn(h Handle, settings SigGenSettings) error
	// SetDataBuffer registers buf as the driver's ring buffer for channel. The driver writes into it, the caller only reads.
	SetDataBuffer(h Handle, channel Channel, buf []int16) error
	// RunStreaming starts streaming and returns the sample interval the driver actually selected.
	RunStreaming(h Handle, settings StreamingSettings) (SampleInterval, error)
	// GetStreamingLatestValues delivers all pending notifications to ready before returning.
	GetStreamingLatestValues(h Handle, ready StreamingReady, param interface{}) error
	Stop(h Handle) error
	CloseUnit(h Handle) error
}
