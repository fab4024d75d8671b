package process

import "time"

// Status is a by-value snapshot of one supervised process.
type Status struct {
	Name           string      `json:"name"`
	State          State       `json:"state"`
	InstanceID     string      `json:"instance_id,omitempty"`
	PID            int         `json:"pid,omitempty"`
	Restarts       int         `json:"restarts"`
	RestartHistory []time.Time `json:"restart_history,omitempty"`
	LastRestartAt  time.Time   `json:"last_restart_at,omitempty"`
	LastFailureAt  time.Time   `json:"last_failure_at,omitempty"`
	RegisteredAt   time.Time   `json:"registered_at"`
}

// Running reports whether the snapshot was taken while the process was running.
func (s Status) Running() bool { return s.State == StateRunning }
