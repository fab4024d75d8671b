package registry

import (
	"slices"
	"time"

	"github.com/loykin/supervisr/internal/process"
)

// record is the authoritative state of one supervised process.
// All fields are guarded by Registry.mu.
type record struct {
	name       string
	state      process.State
	handle     process.Handle
	factory    process.Factory
	history    []time.Time // restart timestamps, oldest first
	instanceID string
	generation uint64
	restarts   int
	registered time.Time
	lastFail   time.Time
}

func (r *record) status() process.Status {
	st := process.Status{
		Name:           r.name,
		State:          r.state,
		InstanceID:     r.instanceID,
		Restarts:       r.restarts,
		RestartHistory: slices.Clone(r.history),
		LastFailureAt:  r.lastFail,
		RegisteredAt:   r.registered,
	}
	if p, ok := r.handle.(process.OSProcess); ok && r.state == process.StateRunning && !p.Finished() {
		st.PID = p.PID()
	}
	if n := len(r.history); n > 0 {
		st.LastRestartAt = r.history[n-1]
	}
	return st
}

// stop forces the terminal state and releases the handle.
func (r *record) stop() {
	r.state = process.StateStopped
	r.handle = nil
	r.generation++
}
