package supervisr

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfg "github.com/loykin/supervisr/internal/config"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestFacade_RestartAndGiveUp(t *testing.T) {
	clk := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	sup, err := New(DefaultConfig(), WithClock(clk.Now), WithLogger(quietLogger()))
	require.NoError(t, err)
	defer sup.Shutdown()

	crash := FactoryFunc(func() Handle { return Exited(errors.New("boom")) })
	require.NoError(t, sup.AddProcess("flaky", crash))
	assert.ErrorIs(t, sup.AddProcess("flaky", crash), ErrAlreadyRegistered)

	for i := 0; i < 3; i++ {
		clk.Advance(100 * time.Millisecond)
		sup.Tick()
		st, ok := sup.Status("flaky")
		require.True(t, ok)
		assert.Equal(t, StateRunning, st.State)
		assert.Equal(t, i+1, st.Restarts)
	}
	clk.Advance(100 * time.Millisecond)
	sup.Tick()
	st, _ := sup.ProcessState("flaky")
	assert.Equal(t, StateStopped, st)
}

func TestFacade_StrategyAndDependencies(t *testing.T) {
	c := DefaultConfig()
	s, err := ParseStrategy("rest-for-one")
	require.NoError(t, err)
	c.Strategy = s
	sup, err := New(c, WithLogger(quietLogger()))
	require.NoError(t, err)
	defer sup.Shutdown()

	assert.Equal(t, RestForOne, sup.Config().Strategy)
	sup.AddDependency("web", "db")
	assert.Equal(t, map[string][]string{"web": {"db"}}, sup.Dependencies())
	assert.False(t, sup.StopProcess("web"))
}

func TestFacade_StartMonitoringTwice(t *testing.T) {
	sup, err := New(DefaultConfig(), WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, sup.StartMonitoring())
	assert.ErrorIs(t, sup.StartMonitoring(), ErrAlreadyMonitoring)
	sup.Shutdown()
	assert.ErrorIs(t, sup.StartMonitoring(), ErrShutdown)
}

func TestFacade_InvalidConfig(t *testing.T) {
	c := DefaultConfig()
	c.MaxRestarts = -1
	_, err := New(c)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestFromConfig(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell commands use sh")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "supervisr.toml")
	body := `
[supervisor]
strategy = "one_for_all"

[log.slog]
level = "error"

[[processes]]
name = "db"
command = "sleep 5"

[[processes]]
name = "web"
command = "sleep 5"
depends_on = ["db"]
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	fc, err := LoadConfig(path)
	require.NoError(t, err)

	sup, err := FromConfig(fc)
	require.NoError(t, err)
	t.Cleanup(func() {
		sup.StopProcess("db")
		sup.StopProcess("web")
		sup.Shutdown()
	})

	assert.Equal(t, OneForAll, sup.Config().Strategy)
	assert.Equal(t, map[string][]string{"web": {"db"}}, sup.Dependencies())
	for _, n := range []string{"db", "web"} {
		st, ok := sup.ProcessState(n)
		require.True(t, ok, n)
		assert.Equal(t, StateRunning, st, n)
	}
}

func TestFromConfig_InvalidEntryStartsNothing(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell commands use sh")
	}
	dir := t.TempDir()
	marker := filepath.Join(dir, "started")
	fc, err := LoadConfig("")
	require.NoError(t, err)
	fc.Log.Slog.Level = "error"
	fc.Processes = []cfg.ProcConfig{
		{Name: "first", Command: "touch " + marker},
		{Name: "bad/name", Command: "true"},
	}

	sup, err := FromConfig(fc)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidName)
	assert.Nil(t, sup)

	time.Sleep(200 * time.Millisecond)
	_, statErr := os.Stat(marker)
	assert.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestHTTPHandler_ServesStatus(t *testing.T) {
	sup, err := New(DefaultConfig(), WithLogger(quietLogger()))
	require.NoError(t, err)
	defer sup.Shutdown()
	require.NoError(t, sup.AddProcess("w", GoFactory(func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})))

	srv, err := NewHTTPServer("127.0.0.1:0", "/api", sup)
	require.NoError(t, err)
	defer func() { _ = srv.Close() }()

	resp, err := http.Get("http://" + srv.Addr + "/api/status?name=w")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsHelpers(t *testing.T) {
	require.NoError(t, RegisterMetrics(prometheus.NewRegistry()))
	assert.NotNil(t, MetricsHandler())

	srv, err := ServeMetrics("127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = srv.Close() }()
	resp, err := http.Get("http://" + srv.Addr + "/metrics")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNewHistorySinkFromDSN(t *testing.T) {
	_, err := NewHistorySinkFromDSN("")
	assert.Error(t, err)
	s, err := NewHistorySinkFromDSN("sqlite://" + filepath.Join(t.TempDir(), "h.db"))
	require.NoError(t, err)
	if c, ok := s.(io.Closer); ok {
		_ = c.Close()
	}
}
