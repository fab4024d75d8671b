package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDemoRestartsUnstableProcess(t *testing.T) {
	if testing.Short() {
		t.Skip("runs for about a second")
	}
	out := &safeBuffer{}
	err := runDemo(context.Background(), DemoFlags{
		Duration:   1200 * time.Millisecond,
		Interval:   400 * time.Millisecond,
		CrashAfter: 150 * time.Millisecond,
		Strategy:   "one_for_one",
	}, out)
	require.NoError(t, err)

	s := out.String()
	assert.Contains(t, s, "Starting supervision system...")
	assert.Contains(t, s, "Unstable process failing!")
	assert.Contains(t, s, "unstable_process state after")
	assert.Contains(t, s, "stable_process state after")
	assert.Contains(t, s, "Demo ended")
}

func TestDemoRejectsUnknownStrategy(t *testing.T) {
	err := runDemo(context.Background(), DemoFlags{Duration: time.Millisecond, Strategy: "all_for_none"}, &safeBuffer{})
	assert.Error(t, err)
}

func TestDemoStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := runDemo(ctx, DemoFlags{Duration: time.Hour, Interval: time.Hour, CrashAfter: time.Hour}, &safeBuffer{})
	assert.ErrorIs(t, err, context.Canceled)
}
