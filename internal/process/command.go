package process

import (
	"errors"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/loykin/supervisr/internal/logger"
)

// Command is a Factory that runs a shell command as the unit of work.
// Output goes to rotating files when Log names a destination.
type Command struct {
	Name    string
	Script  string
	WorkDir string
	Env     []string // complete environment; nil inherits the supervisor's own
	Log     logger.FileConfig
}

// Start launches the command. A command that cannot be launched yields a
// handle that is already finished, so the monitor treats it as a failure.
func (c Command) Start() Handle {
	h, err := c.start()
	if err != nil {
		return finishedHandle{err: err}
	}
	return h
}

func (c Command) start() (*CommandHandle, error) {
	script := strings.TrimSpace(c.Script)
	if script == "" {
		return nil, errors.New("empty command")
	}
	cmd := shellCommand(script)
	if c.WorkDir != "" {
		cmd.Dir = c.WorkDir
	}
	if c.Env != nil {
		cmd.Env = c.Env
	}
	outW, errW, err := c.Log.ProcessWriters(c.Name)
	if err != nil {
		return nil, err
	}
	if outW != nil {
		cmd.Stdout = outW
	}
	if errW != nil {
		cmd.Stderr = errW
	}
	if err := cmd.Start(); err != nil {
		closeWriters(outW, errW)
		return nil, err
	}
	h := &CommandHandle{cmd: cmd, done: make(chan struct{})}
	go func() {
		werr := cmd.Wait()
		closeWriters(outW, errW)
		h.mu.Lock()
		h.err = werr
		h.mu.Unlock()
		close(h.done)
	}()
	return h, nil
}

func closeWriters(ws ...io.WriteCloser) {
	for _, w := range ws {
		if w != nil {
			_ = w.Close()
		}
	}
}

// CommandHandle tracks one launched command.
type CommandHandle struct {
	cmd  *exec.Cmd
	done chan struct{}
	mu   sync.RWMutex
	err  error
}

func (h *CommandHandle) Finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// PID returns the OS process id of the command.
func (h *CommandHandle) PID() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Done is closed once the command has exited.
func (h *CommandHandle) Done() <-chan struct{} { return h.done }

// Err returns the exit error once the command has exited.
func (h *CommandHandle) Err() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.err
}

type finishedHandle struct{ err error }

func (finishedHandle) Finished() bool { return true }

func (f finishedHandle) Err() error { return f.err }
