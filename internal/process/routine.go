package process

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
)

// PanicError is the error recorded for a routine that panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// Routine is a Handle backed by a goroutine.
type Routine struct {
	done chan struct{}
	once sync.Once
	mu   sync.RWMutex
	err  error
}

// Go runs fn in a new goroutine and returns its handle. A panic inside fn is
// recovered and recorded as a *PanicError; it finishes the routine like a return.
// ctx is handed to fn unchanged.
func Go(ctx context.Context, fn func(context.Context) error) *Routine {
	r := &Routine{done: make(chan struct{})}
	go func() {
		var err error
		defer func() {
			if v := recover(); v != nil {
				err = &PanicError{Value: v, Stack: debug.Stack()}
			}
			r.finish(err)
		}()
		err = fn(ctx)
	}()
	return r
}

// GoFactory returns a Factory that starts fn as a Routine on every call.
func GoFactory(fn func(context.Context) error) Factory {
	return FactoryFunc(func() Handle { return Go(context.Background(), fn) })
}

func (r *Routine) finish(err error) {
	r.once.Do(func() {
		r.mu.Lock()
		r.err = err
		r.mu.Unlock()
		close(r.done)
	})
}

// Finished reports whether the goroutine has returned or panicked.
func (r *Routine) Finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Done is closed when the routine finishes.
func (r *Routine) Done() <-chan struct{} { return r.done }

// Err returns the routine's result once finished, nil before that.
func (r *Routine) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}
