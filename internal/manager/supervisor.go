package manager

import (
	"context"
	"log/slog"
	"time"

	"github.com/loykin/supervisr/internal/history"
	"github.com/loykin/supervisr/internal/metrics"
	"github.com/loykin/supervisr/internal/registry"
	"github.com/loykin/supervisr/internal/strategy"
)

func (m *Manager) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(m.cfg.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Tick()
		}
	}
}

// restartPlan is one member of the tick's restart set union.
type restartPlan struct {
	name    string
	trigger string
}

// Tick runs one monitor pass: it moves finished processes to Failed (or to
// Stopped once their budget is used up), expands every restart candidate
// through the strategy and restarts each member of the union once.
// The loop calls it every PollInterval; it is exported for callers that
// drive supervision themselves.
func (m *Manager) Tick() {
	started := time.Now()
	defer func() { metrics.ObserveTick(time.Since(started).Seconds()) }()

	now := m.now()
	failures := m.reg.CollectFailures(now, m.cfg.limiter())
	if len(failures) == 0 {
		return
	}

	var plan []restartPlan
	seen := make(map[string]bool)
	for _, f := range failures {
		metrics.IncFailure(f.Name)
		st, _ := m.reg.Status(f.Name)
		if f.GaveUp {
			metrics.IncGiveUp(f.Name)
			m.log.Warn("restart budget exhausted, process stopped",
				slog.String("process", f.Name),
				slog.Int("max_restarts", m.cfg.MaxRestarts),
				slog.Duration("max_time", m.cfg.MaxTime))
			m.emit(history.EventGaveUp, st, f.Name)
			continue
		}
		m.log.Info("process finished", slog.String("process", f.Name))
		m.emit(history.EventFailed, st, f.Name)

		set := strategy.RestartSet(m.cfg.Strategy, f.Name, m.reg.Names(), m.graph)
		metrics.ObserveRestartSet(m.cfg.Strategy.String(), len(set))
		for _, n := range set {
			if !seen[n] {
				seen[n] = true
				plan = append(plan, restartPlan{name: n, trigger: f.Name})
			}
		}
	}

	for _, p := range plan {
		m.restart(p, now)
	}
}

func (m *Manager) restart(p restartPlan, now time.Time) {
	log := m.log.With(slog.String("process", p.name), slog.String("trigger", p.trigger))
	tk, out := m.reg.BeginRestart(p.name, now, m.cfg.limiter())
	switch out {
	case registry.OutcomeReady:
	case registry.OutcomeUnknown, registry.OutcomeStopped, registry.OutcomeBusy:
		log.Debug("restart skipped", slog.String("reason", out.String()))
		return
	case registry.OutcomeGaveUp:
		metrics.IncGiveUp(p.name)
		log.Warn("restart budget exhausted, process stopped")
		if st, ok := m.reg.Status(p.name); ok {
			m.emit(history.EventGaveUp, st, p.trigger)
		}
		return
	}

	// no registry lock is held while the factory runs
	h := tk.Start()
	if !m.reg.CompleteRestart(tk, h, now) {
		log.Info("restart discarded, process changed while starting")
		return
	}
	metrics.IncRestart(p.name, m.cfg.Strategy.String())
	st, _ := m.reg.Status(p.name)
	log.Info("process restarted",
		slog.String("instance", st.InstanceID),
		slog.Int("restarts", st.Restarts),
		slog.String("strategy", m.cfg.Strategy.String()))
	m.emit(history.EventRestarted, st, p.trigger)
}
