// Package registry holds the authoritative state of every supervised process.
// All access goes through Registry so the lock discipline cannot be bypassed.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/supervisr/internal/process"
	"github.com/loykin/supervisr/internal/ratelimit"
)

var (
	ErrInvalidName       = errors.New("invalid process name")
	ErrAlreadyRegistered = errors.New("process already registered")
)

// TransitionFunc observes a state change. It is called after the registry lock is released.
type TransitionFunc func(name string, from, to process.State)

type Option func(*Registry)

// WithTransitionObserver registers fn to be told about every state change.
func WithTransitionObserver(fn TransitionFunc) Option {
	return func(r *Registry) { r.observe = fn }
}

// WithIDGenerator overrides the instance id generator (uuid by default).
func WithIDGenerator(fn func() string) Option {
	return func(r *Registry) { r.newID = fn }
}

// Registry maps process names to their records.
//
// Lock hierarchy:
// 1. addMu - serializes registrations so the factory can run without mu held
// 2. mu    - guards records
type Registry struct {
	addMu   sync.Mutex
	mu      sync.RWMutex
	records map[string]*record
	observe TransitionFunc
	newID   func() string
}

func New(opts ...Option) *Registry {
	r := &Registry{
		records: make(map[string]*record),
		newID:   uuid.NewString,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

type transition struct {
	name     string
	from, to process.State
}

func (r *Registry) set(rec *record, to process.State, pending *[]transition) {
	if rec.state == to {
		return
	}
	*pending = append(*pending, transition{name: rec.name, from: rec.state, to: to})
	rec.state = to
}

func (r *Registry) notify(pending []transition) {
	if r.observe == nil {
		return
	}
	for _, t := range pending {
		r.observe(t.name, t.from, t.to)
	}
}

// Add registers name, starts its first instance and records it as running.
// Duplicate names are rejected without invoking the factory.
func (r *Registry) Add(name string, f process.Factory, now time.Time) (process.Status, error) {
	if err := ValidateName(name); err != nil {
		return process.Status{}, err
	}
	if f == nil {
		return process.Status{}, process.ErrNilFactory
	}
	r.addMu.Lock()
	defer r.addMu.Unlock()

	r.mu.RLock()
	_, exists := r.records[name]
	r.mu.RUnlock()
	if exists {
		return process.Status{}, fmt.Errorf("%w: %s", ErrAlreadyRegistered, name)
	}

	// factory runs without mu so queries on other processes are not blocked
	h := process.SafeStart(f)

	rec := &record{
		name:       name,
		state:      process.StateRunning,
		handle:     h,
		factory:    f,
		instanceID: r.newID(),
		registered: now,
	}
	r.mu.Lock()
	r.records[name] = rec
	st := rec.status()
	r.mu.Unlock()
	return st, nil
}

// Status returns a consistent snapshot of name.
func (r *Registry) Status(name string) (process.Status, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[name]
	if !ok {
		return process.Status{}, false
	}
	return rec.status(), true
}

// State returns the current state of name.
func (r *Registry) State(name string) (process.State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[name]
	if !ok {
		return 0, false
	}
	return rec.state, true
}

// Stop forces name into the terminal Stopped state and drops its handle
// without signaling the underlying work. It returns the state name was in
// before, read under the same lock, and whether name exists. Of several
// concurrent Stop calls exactly one sees a non-Stopped prev.
func (r *Registry) Stop(name string) (prev process.State, ok bool) {
	var pending []transition
	r.mu.Lock()
	rec, ok := r.records[name]
	if ok {
		prev = rec.state
		r.set(rec, process.StateStopped, &pending)
		rec.stop()
	}
	r.mu.Unlock()
	r.notify(pending)
	return prev, ok
}

// Names returns every registered name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.records))
	for n := range r.records {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Statuses returns a snapshot of every record, sorted by name.
func (r *Registry) Statuses() []process.Status {
	r.mu.RLock()
	out := make([]process.Status, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.status())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Failure is one finished instance observed by CollectFailures.
type Failure struct {
	Name string
	// GaveUp is set when the restart budget was exhausted and the
	// process was moved to Stopped instead of becoming a restart candidate.
	GaveUp bool
}

// CollectFailures is the detection phase of a monitor tick. Every record whose
// handle reports finished moves to Failed, loses its handle and has its history
// pruned; it then either stays Failed as a restart candidate or, with no budget
// left, moves to Stopped. Results are sorted by name.
func (r *Registry) CollectFailures(now time.Time, lim ratelimit.Limiter) []Failure {
	var pending []transition
	var out []Failure
	r.mu.Lock()
	for _, rec := range r.records {
		if rec.handle == nil || !rec.handle.Finished() {
			continue
		}
		r.set(rec, process.StateFailed, &pending)
		rec.handle = nil
		rec.lastFail = now
		pruned, ok := lim.Allow(rec.history, now)
		rec.history = pruned
		if !ok {
			r.set(rec, process.StateStopped, &pending)
			rec.stop()
		}
		out = append(out, Failure{Name: rec.name, GaveUp: !ok})
	}
	r.mu.Unlock()
	r.notify(pending)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Outcome is the result of BeginRestart.
type Outcome int

const (
	// OutcomeReady means the caller must start the ticket and complete it.
	OutcomeReady Outcome = iota
	// OutcomeUnknown means the name is not registered.
	OutcomeUnknown
	// OutcomeStopped means the record is already terminal.
	OutcomeStopped
	// OutcomeGaveUp means the record's own budget was exhausted and it is now Stopped.
	OutcomeGaveUp
	// OutcomeBusy means another restart of the same record is in flight.
	OutcomeBusy
)

func (o Outcome) String() string {
	switch o {
	case OutcomeReady:
		return "ready"
	case OutcomeUnknown:
		return "unknown"
	case OutcomeStopped:
		return "stopped"
	case OutcomeGaveUp:
		return "gave_up"
	case OutcomeBusy:
		return "busy"
	default:
		return "invalid"
	}
}

// Ticket authorizes one restart of one record.
type Ticket struct {
	Name       string
	generation uint64
	factory    process.Factory
}

// Start runs the ticket's factory. Call it without holding any registry lock.
func (t Ticket) Start() process.Handle { return process.SafeStart(t.factory) }

// BeginRestart moves name to Restarting if it may be restarted at now, judged
// on its own history only. The returned ticket must be passed to CompleteRestart.
func (r *Registry) BeginRestart(name string, now time.Time, lim ratelimit.Limiter) (Ticket, Outcome) {
	var pending []transition
	defer func() { r.notify(pending) }()
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[name]
	switch {
	case !ok:
		return Ticket{}, OutcomeUnknown
	case rec.state == process.StateStopped:
		return Ticket{}, OutcomeStopped
	case rec.state == process.StateRestarting:
		return Ticket{}, OutcomeBusy
	}
	pruned, allowed := lim.Allow(rec.history, now)
	rec.history = pruned
	if !allowed {
		r.set(rec, process.StateStopped, &pending)
		rec.stop()
		return Ticket{}, OutcomeGaveUp
	}
	r.set(rec, process.StateRestarting, &pending)
	rec.handle = nil
	rec.generation++
	return Ticket{Name: name, generation: rec.generation, factory: rec.factory}, OutcomeReady
}

// CompleteRestart installs h as the new instance if the record is still in the
// restart that t authorized. If the record was stopped or restarted again in the
// meantime the handle is discarded and false is returned; the record is left as is.
func (r *Registry) CompleteRestart(t Ticket, h process.Handle, now time.Time) bool {
	if h == nil {
		h = process.Exited(process.ErrNilHandle)
	}
	var pending []transition
	r.mu.Lock()
	rec, ok := r.records[t.Name]
	applied := ok && rec.state == process.StateRestarting && rec.generation == t.generation
	if applied {
		rec.handle = h
		rec.history = append(rec.history, now)
		rec.restarts++
		rec.instanceID = r.newID()
		r.set(rec, process.StateRunning, &pending)
	}
	r.mu.Unlock()
	r.notify(pending)
	return applied
}
