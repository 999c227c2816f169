package supervisor

import "time"

// State is the connection state. Exactly one holds at any time.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	// Offline is terminal: the primary transport has been given up for the
	// rest of the process and the fallback read loop is running.
	Offline
)

var States = []State{Disconnected, Connecting, Connected, Reconnecting, Offline}

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Reconnecting:
		return "Reconnecting"
	case Offline:
		return "Offline"
	}
	return "Unknown"
}

// Transition is one recorded state change.
type Transition struct {
	From    State
	To      State
	Cause   string
	Retries int
	At      time.Time
}
