package websocket

// State of one connection. Transitions only move forward:
// Connecting -> Authenticated -> Open -> Closing -> Closed, or Connecting -> Closed when
// authentication fails.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
