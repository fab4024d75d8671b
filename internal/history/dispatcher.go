package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	defaultSendTimeout = 5 * time.Second
	defaultQueueSize   = 1024
)

// Dispatcher fans events out to every configured sink concurrently.
// Sink failures are logged and returned, never retried.
type Dispatcher struct {
	mu      sync.RWMutex
	sinks   []Sink
	timeout time.Duration
	log     *slog.Logger

	// background delivery, see Publish
	queue   chan Event
	once    sync.Once
	closed  bool
	base    context.Context
	abort   context.CancelFunc
	drained chan struct{}
}

func NewDispatcher(log *slog.Logger, sinks ...Sink) *Dispatcher {
	return NewDispatcherSize(log, defaultQueueSize, sinks...)
}

// NewDispatcherSize is NewDispatcher with a Publish queue of size entries.
func NewDispatcherSize(log *slog.Logger, size int, sinks ...Sink) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if size <= 0 {
		size = defaultQueueSize
	}
	base, abort := context.WithCancel(context.Background())
	return &Dispatcher{
		sinks:   append([]Sink(nil), sinks...),
		timeout: defaultSendTimeout,
		log:     log,
		queue:   make(chan Event, size),
		base:    base,
		abort:   abort,
		drained: make(chan struct{}),
	}
}

// SetSinks replaces the sink list. Passing no sinks clears it.
func (d *Dispatcher) SetSinks(sinks ...Sink) {
	d.mu.Lock()
	d.sinks = append([]Sink(nil), sinks...)
	d.mu.Unlock()
}

// SetTimeout bounds each Send call.
func (d *Dispatcher) SetTimeout(t time.Duration) {
	d.mu.Lock()
	if t > 0 {
		d.timeout = t
	}
	d.mu.Unlock()
}

func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.sinks)
}

// Send delivers e to all sinks and returns the joined sink errors.
func (d *Dispatcher) Send(ctx context.Context, e Event) error {
	d.mu.RLock()
	sinks := append([]Sink(nil), d.sinks...)
	timeout := d.timeout
	d.mu.RUnlock()
	if len(sinks) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	errs := make([]error, len(sinks))
	var g errgroup.Group
	for i, s := range sinks {
		g.Go(func() error {
			if err := s.Send(ctx, e); err != nil {
				d.log.Warn("history sink failed",
					slog.String("event", string(e.Type)),
					slog.String("process", e.Record.Name),
					slog.Any("error", err))
				errs[i] = err
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Publish queues e for delivery by a background goroutine and never blocks.
// When the queue is full, or after Close, the event is dropped and false is
// returned. Events are delivered in Publish order.
func (d *Dispatcher) Publish(e Event) bool {
	d.once.Do(func() { go d.deliver() })
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.queue <- e:
		return true
	default:
		d.log.Warn("history queue full, event dropped",
			slog.String("event", string(e.Type)),
			slog.String("process", e.Record.Name),
			slog.Int("queue_size", cap(d.queue)))
		return false
	}
}

func (d *Dispatcher) deliver() {
	defer close(d.drained)
	for e := range d.queue {
		_ = d.Send(d.base, e)
	}
}

// Close stops background delivery, then closes every sink that implements
// io.Closer. Queued events get one send timeout to drain; whatever is left
// after that is sent with a canceled context.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	timeout := d.timeout
	d.mu.Unlock()

	d.once.Do(func() { go d.deliver() })
	select {
	case <-d.drained:
	case <-time.After(timeout):
		d.log.Warn("history queue not drained in time", slog.Duration("timeout", timeout))
		d.abort()
		<-d.drained
	}
	d.abort()

	d.mu.Lock()
	sinks := d.sinks
	d.sinks = nil
	d.mu.Unlock()
	var errs []error
	for _, s := range sinks {
		if c, ok := s.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
