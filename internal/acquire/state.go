package acquire

// State is the acquisition lifecycle position. Transitions are
// Idle → Connecting → Connected → Running → Stopping → Idle; Connect
// failures fall back to Idle, and Idle is re-entrant.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}
