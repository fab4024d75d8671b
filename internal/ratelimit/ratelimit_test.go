package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func at(sec float64) time.Time { return t0.Add(time.Duration(sec * float64(time.Second))) }

func TestNew_Validates(t *testing.T) {
	_, err := New(-1, time.Second)
	assert.ErrorIs(t, err, ErrInvalidLimits)
	_, err = New(3, 0)
	assert.ErrorIs(t, err, ErrInvalidLimits)
	l, err := New(0, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, l.MaxRestarts)
}

func TestAllow_BelowCeiling(t *testing.T) {
	l := Limiter{MaxRestarts: 3, Window: 5 * time.Second}
	pruned, ok := l.Allow([]time.Time{at(0), at(1)}, at(2))
	assert.True(t, ok)
	assert.Len(t, pruned, 2)
}

func TestAllow_CeilingReached(t *testing.T) {
	l := Limiter{MaxRestarts: 3, Window: 5 * time.Second}
	_, ok := l.Allow([]time.Time{at(0), at(1), at(2)}, at(3))
	assert.False(t, ok)
}

func TestAllow_ZeroMaxNeverAllows(t *testing.T) {
	l := Limiter{MaxRestarts: 0, Window: time.Second}
	_, ok := l.Allow(nil, at(0))
	assert.False(t, ok)
}

func TestPrune_SlidingWindow(t *testing.T) {
	l := Limiter{MaxRestarts: 2, Window: 5 * time.Second}
	hist := []time.Time{at(0), at(3)}

	// at exactly window age the oldest entry no longer counts
	pruned, ok := l.Allow(hist, at(5))
	assert.True(t, ok)
	assert.Equal(t, []time.Time{at(3)}, pruned)

	// input untouched
	assert.Len(t, hist, 2)

	_, ok = l.Allow(hist, at(4.9))
	assert.False(t, ok)
}

func TestRemaining(t *testing.T) {
	l := Limiter{MaxRestarts: 3, Window: 10 * time.Second}
	assert.Equal(t, 3, l.Remaining(nil, at(0)))
	assert.Equal(t, 1, l.Remaining([]time.Time{at(0), at(1)}, at(2)))
	assert.Equal(t, 0, l.Remaining([]time.Time{at(0), at(1), at(2), at(3)}, at(4)))
	assert.Equal(t, 3, l.Remaining([]time.Time{at(0), at(1)}, at(20)))
}
