package picostream

import "errors"

var (
	// ErrSegmentOutOfRange is recorded when the driver reports a block that does not lie inside the ring buffer.
	ErrSegmentOutOfRange = errors.New("notified segment outside ring buffer")
	// ErrNotificationOutsidePoll is recorded when the driver invokes the handler after the poll that owned it returned.
	ErrNotificationOutsidePoll = errors.New("notification delivered outside of a poll")
	ErrAlreadyRun              = errors.New("streamer has already run")
)
