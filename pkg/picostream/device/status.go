package device

import (
	"errors"
	"fmt"
)

type Status uint32

const (
	StatusOK                  Status = 0x00
	StatusMaxUnitsOpened      Status = 0x01
	StatusMemoryFail          Status = 0x02
	StatusNotFound            Status = 0x03
	StatusInvalidHandle       Status = 0x0C
	StatusInvalidParameter    Status = 0x0D
	StatusInvalidTimebase     Status = 0x0E
	StatusInvalidVoltageRange Status = 0x0F
	StatusNoSignalGenerator   Status = 0x12
	StatusStreamingFailed     Status = 0x13
	StatusInvalidChannel      Status = 0x16
	StatusBusy                Status = 0x27
	StatusNotStreaming        Status = 0x3F
)

var statusNames = map[Status]string{
	StatusOK:                  "ok",
	StatusMaxUnitsOpened:      "max units opened",
	StatusMemoryFail:          "memory fail",
	StatusNotFound:            "not found",
	StatusInvalidHandle:       "invalid handle",
	StatusInvalidParameter:    "invalid parameter",
	StatusInvalidTimebase:     "invalid timebase",
	StatusInvalidVoltageRange: "invalid voltage range",
	StatusNoSignalGenerator:   "no signal generator",
	StatusStreamingFailed:     "streaming failed",
	StatusInvalidChannel:      "invalid channel",
	StatusBusy:                "busy",
	StatusNotStreaming:        "not streaming",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown status"
}

// StatusError is returned by every Device call that completes with a non-zero status.
type StatusError struct {
	Op     string
	Status Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: error %Xh (%s)", e.Op, uint32(e.Status), e.Status)
}

// Check returns nil for StatusOK and a *StatusError naming op otherwise.
func Check(op string, status Status) error {
	if status == StatusOK {
		return nil
	}
	return &StatusError{Op: op, Status: status}
}

// StatusOf extracts the driver status from err, or StatusOK if err is not a *StatusError.
func StatusOf(err error) Status {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return StatusOK
}
