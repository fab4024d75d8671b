package process

import "fmt"

// State is the lifecycle state of a supervised process.
//
// State machine:
// Running -> Failed -> Restarting -> Running
// Failed -> Stopped (restart budget exhausted)
// Running/Failed/Restarting -> Stopped (explicit stop)
type State int32

const (
	StateRunning State = iota
	StateFailed
	StateRestarting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateFailed:
		return "failed"
	case StateRestarting:
		return "restarting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible from s.
func (s State) Terminal() bool { return s == StateStopped }

// AllStates lists every state in declaration order.
func AllStates() []State {
	return []State{StateRunning, StateFailed, StateRestarting, StateStopped}
}

func (s State) MarshalText() ([]byte, error) {
	if s < StateRunning || s > StateStopped {
		return nil, fmt.Errorf("invalid process state %d", int32(s))
	}
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for _, st := range AllStates() {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown process state %q", string(b))
}
