package manager

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/supervisr/internal/history"
	"github.com/loykin/supervisr/internal/process"
	"github.com/loykin/supervisr/internal/registry"
	"github.com/loykin/supervisr/internal/strategy"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newFakeClock() *fakeClock { return &fakeClock{t: epoch} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// At moves the clock to epoch+d.
func (c *fakeClock) At(d time.Duration) {
	c.mu.Lock()
	c.t = epoch.Add(d)
	c.mu.Unlock()
}

type flagHandle struct{ done atomic.Bool }

func (h *flagHandle) Finished() bool { return h.done.Load() }

// unit is a factory whose current instance can be finished on demand.
type unit struct {
	mu      sync.Mutex
	starts  int
	current *flagHandle
}

func (u *unit) Start() process.Handle {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.starts++
	u.current = &flagHandle{}
	return u.current
}

func (u *unit) crash() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.current.done.Store(true)
}

func (u *unit) count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.starts
}

type memSink struct {
	mu     sync.Mutex
	events []history.Event
}

func (s *memSink) Send(_ context.Context, e history.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *memSink) types() []history.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]history.EventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestManager(t *testing.T, cfg Config, clk *fakeClock, opts ...Option) *Manager {
	t.Helper()
	opts = append([]Option{WithClock(clk.Now), WithLogger(quiet())}, opts...)
	m, err := NewManager(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(m.Shutdown)
	return m
}

func cfgWith(s strategy.Strategy, maxRestarts int, maxTime time.Duration) Config {
	c := DefaultConfig()
	c.Strategy = s
	c.MaxRestarts = maxRestarts
	c.MaxTime = maxTime
	return c
}

func mustState(t *testing.T, m *Manager, name string) process.State {
	t.Helper()
	st, ok := m.ProcessState(name)
	require.True(t, ok, name)
	return st
}

func historyLen(t *testing.T, m *Manager, name string) int {
	t.Helper()
	st, ok := m.Status(name)
	require.True(t, ok, name)
	return len(st.RestartHistory)
}

func TestNewManager_Validation(t *testing.T) {
	bad := []Config{
		{MaxRestarts: -1, MaxTime: time.Second},
		{MaxRestarts: 1, MaxTime: 0},
		{MaxRestarts: 1, MaxTime: time.Second, Strategy: strategy.Strategy(9)},
		{MaxRestarts: 1, MaxTime: time.Second, PollInterval: -time.Millisecond},
	}
	for _, c := range bad {
		_, err := NewManager(c)
		assert.ErrorIs(t, err, ErrInvalidConfig, "%+v", c)
	}

	m, err := NewManager(Config{MaxRestarts: 0, MaxTime: time.Second})
	require.NoError(t, err)
	assert.Equal(t, DefaultPollInterval, m.Config().PollInterval)
	assert.Equal(t, strategy.OneForOne, m.Config().Strategy)
}

func TestAddProcess(t *testing.T) {
	m := newTestManager(t, DefaultConfig(), newFakeClock())
	u := &unit{}
	require.NoError(t, m.AddProcess("x", u))
	assert.Equal(t, process.StateRunning, mustState(t, m, "x"))
	assert.Equal(t, 1, u.count())

	err := m.AddProcess("x", &unit{})
	assert.ErrorIs(t, err, registry.ErrAlreadyRegistered)
	assert.ErrorIs(t, m.AddProcess("", u), registry.ErrInvalidName)

	_, ok := m.ProcessState("nope")
	assert.False(t, ok)
}

func TestRateLimit_FourthFailureInWindowStops(t *testing.T) {
	clk := newFakeClock()
	m := newTestManager(t, cfgWith(strategy.OneForOne, 3, 5*time.Second), clk)
	x := &unit{}
	require.NoError(t, m.AddProcess("x", x))

	for i := 0; i < 3; i++ {
		clk.At(time.Duration(i) * time.Second)
		x.crash()
		m.Tick()
		assert.Equal(t, process.StateRunning, mustState(t, m, "x"), "failure %d", i+1)
	}
	assert.Equal(t, 3, historyLen(t, m, "x"))

	clk.At(3 * time.Second)
	x.crash()
	m.Tick()
	assert.Equal(t, process.StateStopped, mustState(t, m, "x"))
	assert.Equal(t, 4, x.count())

	// nothing brings it back
	for i := 4; i < 20; i++ {
		clk.At(time.Duration(i) * time.Second)
		m.Tick()
	}
	assert.Equal(t, process.StateStopped, mustState(t, m, "x"))
	assert.Equal(t, 4, x.count())
}

func TestRateLimit_SlidingWindow(t *testing.T) {
	clk := newFakeClock()
	m := newTestManager(t, cfgWith(strategy.OneForOne, 1, 5*time.Second), clk)
	x := &unit{}
	require.NoError(t, m.AddProcess("x", x))

	x.crash()
	m.Tick()
	require.Equal(t, process.StateRunning, mustState(t, m, "x"))

	// the restart at t=0 has aged out by t=6
	clk.At(6 * time.Second)
	x.crash()
	m.Tick()
	assert.Equal(t, process.StateRunning, mustState(t, m, "x"))
	st, _ := m.Status("x")
	assert.Equal(t, []time.Time{epoch.Add(6 * time.Second)}, st.RestartHistory)
	assert.Equal(t, 2, st.Restarts)

	// but a second failure inside the window is one too many
	clk.At(7 * time.Second)
	x.crash()
	m.Tick()
	assert.Equal(t, process.StateStopped, mustState(t, m, "x"))
}

func TestZeroBudgetStopsOnFirstFailure(t *testing.T) {
	m := newTestManager(t, cfgWith(strategy.OneForAll, 0, time.Second), newFakeClock())
	a, b := &unit{}, &unit{}
	require.NoError(t, m.AddProcess("a", a))
	require.NoError(t, m.AddProcess("b", b))
	a.crash()
	m.Tick()
	assert.Equal(t, process.StateStopped, mustState(t, m, "a"))
	// a gave up, so it is no restart candidate and nothing fans out
	assert.Equal(t, process.StateRunning, mustState(t, m, "b"))
	assert.Equal(t, 1, b.count())
}

func TestOneForOne_OnlyFailedRestarts(t *testing.T) {
	m := newTestManager(t, cfgWith(strategy.OneForOne, 3, 5*time.Second), newFakeClock())
	a, b := &unit{}, &unit{}
	require.NoError(t, m.AddProcess("a", a))
	require.NoError(t, m.AddProcess("b", b))
	m.AddDependency("b", "a")
	before, _ := m.Status("b")

	a.crash()
	m.Tick()
	assert.Equal(t, 1, historyLen(t, m, "a"))
	after, _ := m.Status("b")
	assert.Equal(t, before, after)
	assert.Equal(t, 1, b.count())
}

func TestOneForAll_RestartsEveryone(t *testing.T) {
	m := newTestManager(t, cfgWith(strategy.OneForAll, 3, 5*time.Second), newFakeClock())
	units := map[string]*unit{"a": {}, "b": {}, "c": {}}
	for n, u := range units {
		require.NoError(t, m.AddProcess(n, u))
	}
	units["b"].crash()
	m.Tick()
	for n, u := range units {
		assert.Equal(t, process.StateRunning, mustState(t, m, n))
		assert.Equal(t, 1, historyLen(t, m, n), n)
		assert.Equal(t, 2, u.count(), n)
	}
}

func TestOneForAll_SimultaneousFailuresRestartOnce(t *testing.T) {
	m := newTestManager(t, cfgWith(strategy.OneForAll, 3, 5*time.Second), newFakeClock())
	a, b := &unit{}, &unit{}
	require.NoError(t, m.AddProcess("a", a))
	require.NoError(t, m.AddProcess("b", b))
	a.crash()
	b.crash()
	m.Tick()
	assert.Equal(t, 1, historyLen(t, m, "a"))
	assert.Equal(t, 1, historyLen(t, m, "b"))
}

func TestRestForOne_DirectDependentsOnly(t *testing.T) {
	m := newTestManager(t, cfgWith(strategy.RestForOne, 3, 5*time.Second), newFakeClock())
	a, b, c, d := &unit{}, &unit{}, &unit{}, &unit{}
	require.NoError(t, m.AddProcess("a", a))
	require.NoError(t, m.AddProcess("b", b))
	require.NoError(t, m.AddProcess("c", c))
	require.NoError(t, m.AddProcess("d", d))
	m.AddDependency("b", "a")
	m.AddDependency("d", "b")
	m.AddDependency("ghost", "a") // never registered

	a.crash()
	m.Tick()
	assert.Equal(t, 1, historyLen(t, m, "a"))
	assert.Equal(t, 1, historyLen(t, m, "b"))
	assert.Equal(t, 0, historyLen(t, m, "c"))
	assert.Equal(t, 0, historyLen(t, m, "d"))
	_, ok := m.ProcessState("ghost")
	assert.False(t, ok)
	assert.Equal(t, map[string][]string{"b": {"a"}, "d": {"b"}, "ghost": {"a"}}, m.Dependencies())
}

func TestFanOut_UsesEachMembersOwnBudget(t *testing.T) {
	clk := newFakeClock()
	m := newTestManager(t, cfgWith(strategy.RestForOne, 1, time.Minute), clk)
	a, b := &unit{}, &unit{}
	require.NoError(t, m.AddProcess("a", a))
	require.NoError(t, m.AddProcess("b", b))
	m.AddDependency("a", "b")

	// b restarts on its own, using its single restart
	b.crash()
	m.Tick()
	require.Equal(t, process.StateRunning, mustState(t, m, "b"))
	require.Equal(t, 1, historyLen(t, m, "a"))

	// the fan-out used up a's budget, so its own failure stops it and b is left alone
	clk.At(time.Second)
	a.crash()
	m.Tick()
	assert.Equal(t, process.StateStopped, mustState(t, m, "a"))
	assert.Equal(t, process.StateRunning, mustState(t, m, "b"))
}

func TestFanOut_ExhaustedMemberIsStopped(t *testing.T) {
	clk := newFakeClock()
	m := newTestManager(t, cfgWith(strategy.RestForOne, 1, time.Minute), clk)
	a, b := &unit{}, &unit{}
	require.NoError(t, m.AddProcess("a", a))
	require.NoError(t, m.AddProcess("b", b))
	m.AddDependency("b", "a")

	b.crash()
	m.Tick()
	require.Equal(t, 1, historyLen(t, m, "b"))

	// a's failure fans out to b, whose budget is already used
	clk.At(time.Second)
	a.crash()
	m.Tick()
	assert.Equal(t, process.StateRunning, mustState(t, m, "a"))
	assert.Equal(t, process.StateStopped, mustState(t, m, "b"))
}

func TestStopProcess(t *testing.T) {
	m := newTestManager(t, DefaultConfig(), newFakeClock())
	x := &unit{}
	require.NoError(t, m.AddProcess("x", x))

	assert.True(t, m.StopProcess("x"))
	assert.Equal(t, process.StateStopped, mustState(t, m, "x"))
	assert.True(t, m.StopProcess("x"))
	assert.False(t, m.StopProcess("missing"))

	x.crash()
	for i := 0; i < 5; i++ {
		m.Tick()
	}
	assert.Equal(t, process.StateStopped, mustState(t, m, "x"))
	assert.Equal(t, 1, x.count())
}

func TestStopped_NotRevivedByFanOut(t *testing.T) {
	m := newTestManager(t, cfgWith(strategy.OneForAll, 3, 5*time.Second), newFakeClock())
	a, b := &unit{}, &unit{}
	require.NoError(t, m.AddProcess("a", a))
	require.NoError(t, m.AddProcess("b", b))
	m.StopProcess("b")
	a.crash()
	m.Tick()
	assert.Equal(t, process.StateStopped, mustState(t, m, "b"))
	assert.Equal(t, 1, b.count())
}

func TestStopRacingInFlightRestart(t *testing.T) {
	m := newTestManager(t, DefaultConfig(), newFakeClock())
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	var first flagHandle
	f := process.FactoryFunc(func() process.Handle {
		if calls.Add(1) == 1 {
			return &first
		}
		close(entered)
		<-release
		return &flagHandle{}
	})
	require.NoError(t, m.AddProcess("x", f))
	require.NoError(t, m.AddProcess("y", &unit{}))

	first.done.Store(true)
	ticked := make(chan struct{})
	go func() {
		m.Tick()
		close(ticked)
	}()
	<-entered
	assert.Equal(t, process.StateRestarting, mustState(t, m, "x"))
	// queries on other processes are not blocked by the slow factory
	assert.Equal(t, process.StateRunning, mustState(t, m, "y"))

	require.True(t, m.StopProcess("x"))
	close(release)
	<-ticked

	st, _ := m.Status("x")
	assert.Equal(t, process.StateStopped, st.State)
	assert.Empty(t, st.RestartHistory)
	assert.Equal(t, 0, st.Restarts)
}

func TestBadFactoryEventuallyStops(t *testing.T) {
	m := newTestManager(t, cfgWith(strategy.OneForOne, 2, time.Minute), newFakeClock())
	var calls atomic.Int32
	first := &flagHandle{}
	f := process.FactoryFunc(func() process.Handle {
		if calls.Add(1) > 1 {
			panic("cannot start")
		}
		return first
	})
	require.NoError(t, m.AddProcess("bad", f))
	first.done.Store(true)

	m.Tick()
	m.Tick()
	assert.Equal(t, process.StateRunning, mustState(t, m, "bad"))
	m.Tick()
	assert.Equal(t, process.StateStopped, mustState(t, m, "bad"))
	assert.Equal(t, int32(3), calls.Load())
	m.Tick()
	assert.Equal(t, int32(3), calls.Load())
}

func TestHistoryEvents(t *testing.T) {
	clk := newFakeClock()
	sink := &memSink{}
	m := newTestManager(t, cfgWith(strategy.OneForOne, 1, time.Minute), clk, WithHistorySinks(sink))
	x := &unit{}
	require.NoError(t, m.AddProcess("x", x))
	x.crash()
	m.Tick()
	x.crash()
	m.Tick()
	m.StopProcess("x") // already stopped, no event
	m.Shutdown()

	assert.Equal(t, []history.EventType{
		history.EventRegistered,
		history.EventFailed,
		history.EventRestarted,
		history.EventGaveUp,
	}, sink.types())

	sink.mu.Lock()
	restarted := sink.events[2]
	sink.mu.Unlock()
	assert.Equal(t, "one_for_one", restarted.Record.Strategy)
	assert.Equal(t, "x", restarted.Record.Trigger)
	assert.Equal(t, 1, restarted.Record.Restarts)
	assert.Equal(t, "running", restarted.Record.State)
}

func TestHistoryStoppedEvent(t *testing.T) {
	sink := &memSink{}
	m := newTestManager(t, DefaultConfig(), newFakeClock())
	m.SetHistorySinks(sink)
	require.NoError(t, m.AddProcess("x", &unit{}))
	m.StopProcess("x")
	m.Shutdown()
	assert.Equal(t, []history.EventType{history.EventRegistered, history.EventStopped}, sink.types())
}

// stalledSink holds every Send until release is closed.
type stalledSink struct{ release chan struct{} }

func (s stalledSink) Send(ctx context.Context, _ history.Event) error {
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestTick_NotDelayedByStalledSink(t *testing.T) {
	clk := newFakeClock()
	sink := stalledSink{release: make(chan struct{})}
	m := newTestManager(t, cfgWith(strategy.OneForAll, 5, time.Minute), clk, WithHistorySinks(sink))
	units := map[string]*unit{"a": {}, "b": {}, "c": {}}
	for n, u := range units {
		require.NoError(t, m.AddProcess(n, u))
	}
	units["a"].crash()

	start := time.Now()
	m.Tick()
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	for n := range units {
		assert.Equal(t, process.StateRunning, mustState(t, m, n), n)
		assert.Equal(t, 1, historyLen(t, m, n), n)
	}
	close(sink.release)
}

func TestStartMonitoring_OnceAndShutdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PollInterval = 5 * time.Millisecond
	m, err := NewManager(cfg, WithLogger(quiet()))
	require.NoError(t, err)

	x := &unit{}
	require.NoError(t, m.AddProcess("x", x))
	require.NoError(t, m.StartMonitoring())
	assert.ErrorIs(t, m.StartMonitoring(), ErrAlreadyMonitoring)
	assert.True(t, m.Monitoring())

	x.crash()
	require.Eventually(t, func() bool {
		st, _ := m.Status("x")
		return st.Restarts == 1 && st.State == process.StateRunning
	}, 2*time.Second, 5*time.Millisecond)

	m.Shutdown()
	m.Shutdown()
	assert.False(t, m.Monitoring())
	assert.ErrorIs(t, m.StartMonitoring(), ErrShutdown)

	// the loop is gone: a new failure goes unnoticed
	x.crash()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, process.StateRunning, mustState(t, m, "x"))
}

func TestShutdownWithoutMonitoring(t *testing.T) {
	m, err := NewManager(DefaultConfig(), WithLogger(quiet()))
	require.NoError(t, err)
	m.Shutdown()
	assert.True(t, errors.Is(m.StartMonitoring(), ErrShutdown))
}

func TestWithIDGenerator(t *testing.T) {
	var n atomic.Int32
	m := newTestManager(t, DefaultConfig(), newFakeClock(), WithIDGenerator(func() string {
		return string(rune('a' + n.Add(1) - 1))
	}))
	x := &unit{}
	require.NoError(t, m.AddProcess("x", x))
	st, _ := m.Status("x")
	assert.Equal(t, "a", st.InstanceID)
	x.crash()
	m.Tick()
	st, _ = m.Status("x")
	assert.Equal(t, "b", st.InstanceID)
}

func TestStopProcess_ConcurrentEmitsOneStoppedEvent(t *testing.T) {
	sink := &memSink{}
	m := newTestManager(t, DefaultConfig(), newFakeClock(), WithHistorySinks(sink))
	require.NoError(t, m.AddProcess("x", &unit{}))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, m.StopProcess("x"))
		}()
	}
	wg.Wait()
	m.Shutdown()
	assert.Equal(t, []history.EventType{history.EventRegistered, history.EventStopped}, sink.types())
}
