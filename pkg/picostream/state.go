package picostream

// State is a stage of the streaming session. Completed, TimedOut and Failed are terminal; every session ends in Stopped
// after teardown.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateCompleted
	StateTimedOut
	StateFailed
	StateStopped
)

var stateNames = map[State]string{
	StateIdle:      "idle",
	StateStreaming: "streaming",
	StateCompleted: "completed",
	StateTimedOut:  "timed_out",
	StateFailed:    "failed",
	StateStopped:   "stopped",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateTimedOut || s == StateFailed
}
