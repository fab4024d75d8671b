package manager

import (
	"errors"
	"fmt"
	"time"

	"github.com/loykin/supervisr/internal/ratelimit"
	"github.com/loykin/supervisr/internal/strategy"
)

const (
	DefaultMaxRestarts  = 3
	DefaultMaxTime      = 5 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
)

var (
	ErrAlreadyMonitoring = errors.New("monitoring already started")
	ErrShutdown          = errors.New("manager is shut down")
	ErrInvalidConfig     = errors.New("invalid supervisor config")
)

// Config is fixed for the lifetime of a Manager.
type Config struct {
	// MaxRestarts is the number of restarts allowed per process within MaxTime.
	MaxRestarts int
	// MaxTime is the sliding window restarts are counted over.
	MaxTime  time.Duration
	Strategy strategy.Strategy
	// PollInterval is how often the monitor looks for finished processes.
	PollInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxRestarts:  DefaultMaxRestarts,
		MaxTime:      DefaultMaxTime,
		Strategy:     strategy.OneForOne,
		PollInterval: DefaultPollInterval,
	}
}

// Validate checks c, filling in the default poll interval when unset.
func (c *Config) Validate() error {
	if _, err := ratelimit.New(c.MaxRestarts, c.MaxTime); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if !c.Strategy.Valid() {
		return fmt.Errorf("%w: unknown strategy %d", ErrInvalidConfig, int(c.Strategy))
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("%w: negative poll interval", ErrInvalidConfig)
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	return nil
}

func (c Config) limiter() ratelimit.Limiter {
	return ratelimit.Limiter{MaxRestarts: c.MaxRestarts, Window: c.MaxTime}
}
