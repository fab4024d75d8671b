package client

import "time"

// ProcessRequest registers a shell command as a supervised process.
type ProcessRequest struct {
	Name      string   `json:"name"`
	Command   string   `json:"command"`
	WorkDir   string   `json:"work_dir,omitempty"`
	Env       []string `json:"env,omitempty"`
	DependsOn []string `json:"depends_on,omitempty"`
}

// ProcessStatus represents the status of a single process
type ProcessStatus struct {
	Name           string      `json:"name"`
	State          string      `json:"state"`
	InstanceID     string      `json:"instance_id,omitempty"`
	PID            int         `json:"pid,omitempty"`
	Restarts       int         `json:"restarts"`
	RestartHistory []time.Time `json:"restart_history,omitempty"`
	LastRestartAt  time.Time   `json:"last_restart_at,omitempty"`
	LastFailureAt  time.Time   `json:"last_failure_at,omitempty"`
	RegisteredAt   time.Time   `json:"registered_at"`
}

// StopResponse is returned by the stop endpoint.
type StopResponse struct {
	OK    bool   `json:"ok"`
	State string `json:"state"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// LoginRequest is the body of the login endpoint.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Token is a bearer token issued by the daemon.
type Token struct {
	Type      string    `json:"type"`
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}
