package manager

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/supervisr/internal/deps"
	"github.com/loykin/supervisr/internal/history"
	"github.com/loykin/supervisr/internal/metrics"
	"github.com/loykin/supervisr/internal/process"
	"github.com/loykin/supervisr/internal/registry"
)

// Manager registers processes, watches them and restarts them according to
// the configured strategy and restart budget.
type Manager struct {
	cfg   Config
	reg   *registry.Registry
	graph *deps.Graph
	now   func() time.Time
	log   *slog.Logger
	hist  *history.Dispatcher

	sinks []history.Sink
	newID func() string

	mu         sync.Mutex
	monitoring bool
	closed     bool
	cancel     context.CancelFunc
	done       chan struct{}
}

type Option func(*Manager)

// WithClock replaces time.Now. Tests use it to drive the restart window.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithHistorySinks sends lifecycle events to the given sinks.
func WithHistorySinks(sinks ...history.Sink) Option {
	return func(m *Manager) { m.sinks = append(m.sinks, sinks...) }
}

// WithIDGenerator overrides how instance ids are minted.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) { m.newID = fn }
}

func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		cfg:   cfg,
		graph: deps.NewGraph(),
		now:   time.Now,
		log:   slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	regOpts := []registry.Option{registry.WithTransitionObserver(observeTransition)}
	if m.newID != nil {
		regOpts = append(regOpts, registry.WithIDGenerator(m.newID))
	}
	m.reg = registry.New(regOpts...)
	m.hist = history.NewDispatcher(m.log, m.sinks...)
	m.sinks = nil
	return m, nil
}

func observeTransition(name string, from, to process.State) {
	metrics.RecordStateTransition(name, from.String(), to.String())
	metrics.SetCurrentState(name, from.String(), false)
	metrics.SetCurrentState(name, to.String(), true)
}

func (m *Manager) Config() Config { return m.cfg }

// SetHistorySinks replaces the history sinks. Passing no sinks clears the list.
func (m *Manager) SetHistorySinks(sinks ...history.Sink) { m.hist.SetSinks(sinks...) }

// AddProcess registers name and starts its first instance right away.
func (m *Manager) AddProcess(name string, f process.Factory) error {
	st, err := m.reg.Add(name, f, m.now())
	if err != nil {
		return err
	}
	metrics.SetCurrentState(name, st.State.String(), true)
	m.log.Info("process registered",
		slog.String("process", name),
		slog.String("instance", st.InstanceID))
	m.emit(history.EventRegistered, st, "")
	return nil
}

// AddDependency records that name depends on dependsOn. Neither name has
// to be registered.
func (m *Manager) AddDependency(name, dependsOn string) {
	m.graph.Add(name, dependsOn)
}

// StopProcess forces name into Stopped without signaling the running work.
// It reports whether name is registered.
func (m *Manager) StopProcess(name string) bool {
	before, ok := m.reg.Stop(name)
	if !ok {
		return false
	}
	if before != process.StateStopped {
		metrics.IncStop(name)
		m.log.Info("process stopped", slog.String("process", name), slog.String("from", before.String()))
		if st, ok := m.reg.Status(name); ok {
			m.emit(history.EventStopped, st, "")
		}
	}
	return true
}

func (m *Manager) ProcessState(name string) (process.State, bool) {
	return m.reg.State(name)
}

func (m *Manager) Status(name string) (process.Status, bool) {
	return m.reg.Status(name)
}

// Statuses returns every process sorted by name.
func (m *Manager) Statuses() []process.Status {
	return m.reg.Statuses()
}

// Dependencies returns a copy of the dependency graph.
func (m *Manager) Dependencies() map[string][]string {
	return m.graph.Snapshot()
}

// StartMonitoring launches the monitor loop. It may be called only once.
func (m *Manager) StartMonitoring() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrShutdown
	}
	if m.monitoring {
		return ErrAlreadyMonitoring
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.monitoring = true
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(ctx, m.done)
	m.log.Info("monitoring started",
		slog.String("strategy", m.cfg.Strategy.String()),
		slog.Int("max_restarts", m.cfg.MaxRestarts),
		slog.Duration("max_time", m.cfg.MaxTime),
		slog.Duration("poll_interval", m.cfg.PollInterval))
	return nil
}

// Monitoring reports whether the monitor loop is running.
func (m *Manager) Monitoring() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.monitoring && !m.closed
}

// Shutdown stops the monitor loop and waits for it to exit. Running units are
// left alone. Queued history events are flushed, then sinks that can be
// closed are closed.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if err := m.hist.Close(); err != nil {
		m.log.Warn("closing history sinks", slog.Any("error", err))
	}
}

func (m *Manager) emit(t history.EventType, st process.Status, trigger string) {
	if m.hist.Len() == 0 {
		return
	}
	e := history.NewEvent(t, m.now(), st)
	if t == history.EventRestarted {
		e.Record.Strategy = m.cfg.Strategy.String()
	}
	e.Record.Trigger = trigger
	m.hist.Publish(e)
}
