package bridge

// State is the telemetry handler's processing state.
type State int32

const (
	// StateIdle means no tick is running.
	StateIdle State = iota
	// StateProcessing means a tick is between receipt and publish.
	StateProcessing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProcessing:
		return "processing"
	default:
		return "unknown"
	}
}
