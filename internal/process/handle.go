package process

import (
	"errors"
	"runtime/debug"
)

var (
	ErrNilFactory = errors.New("process: nil factory")
	ErrNilHandle  = errors.New("process: factory returned nil handle")
)

// Handle is the liveness token of one running instance of a process.
// Finished must not block. The supervisor reads nothing else from it.
type Handle interface {
	Finished() bool
}

// OSProcess is implemented by handles backed by an operating system process.
type OSProcess interface {
	Handle
	PID() int
}

// Factory starts a fresh instance of a process and returns its handle.
// It is called once on registration and once per restart, possibly from the
// monitor goroutine, so implementations must be safe for concurrent use.
type Factory interface {
	Start() Handle
}

// FactoryFunc adapts an ordinary function to the Factory interface.
type FactoryFunc func() Handle

func (f FactoryFunc) Start() Handle { return f() }

// Exited returns a handle that is already finished. Factories use it to report
// an instance that could not be started.
func Exited(err error) Handle { return finishedHandle{err: err} }

// SafeStart invokes f and never panics: a panicking factory or a nil handle
// yields an already finished handle, which the monitor then sees as a failure.
func SafeStart(f Factory) (h Handle) {
	defer func() {
		if v := recover(); v != nil {
			h = Exited(&PanicError{Value: v, Stack: debug.Stack()})
		}
	}()
	if f == nil {
		return Exited(ErrNilFactory)
	}
	h = f.Start()
	if h == nil {
		return Exited(ErrNilHandle)
	}
	return h
}
