package metrics

import (
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceCollector_SamplesOwnProcess(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewResourceCollector(func() []Target {
		return []Target{
			{Name: "self", PID: os.Getpid()},
			{Name: "none", PID: 0},
		}
	})
	require.NoError(t, reg.Register(c))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range mfs {
		names[mf.GetName()] = true
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "name" {
					assert.Equal(t, "self", l.GetValue())
				}
			}
		}
	}
	assert.True(t, names["supervisr_process_memory_rss_bytes"])
	assert.True(t, names["supervisr_process_num_threads"])
}

func TestResourceCollector_SkipsVanishedProcess(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(NewResourceCollector(func() []Target {
		return []Target{{Name: "gone", PID: 1 << 30}}
	})))
	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.Empty(t, mfs)
}
