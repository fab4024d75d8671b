package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/loykin/supervisr"
	"github.com/loykin/supervisr/internal/logger"
)

// embedded_logger: per-process log files written through rotating writers.
// A short command writes to stdout and stderr; each restart appends to the same files.
func main() {
	logDir := os.Getenv("SUPERVISR_LOG_DIR")
	if logDir == "" {
		logDir = filepath.Join(os.TempDir(), fmt.Sprintf("supervisr-logs-%d", time.Now().UnixNano()))
	}
	_ = os.MkdirAll(logDir, 0o750)

	sup, err := supervisr.New(supervisr.DefaultConfig())
	if err != nil {
		panic(err)
	}
	defer sup.Shutdown()

	cmd := supervisr.Command{
		Name:   "embedded-logger-demo",
		Script: "echo hello-out; echo hello-err 1>&2; sleep 0.2",
		Log:    logger.FileConfig{Dir: logDir, MaxSizeMB: 1},
	}
	if err := sup.AddProcess(cmd.Name, cmd); err != nil {
		panic(err)
	}
	if err := sup.StartMonitoring(); err != nil {
		panic(err)
	}
	time.Sleep(time.Second)
	sup.StopProcess(cmd.Name)
	st, _ := sup.Status(cmd.Name)

	fmt.Println("Embedded logger example")
	fmt.Println("  Restarts:", st.Restarts)
	fmt.Println("  Stdout log:", filepath.Join(logDir, cmd.Name+".stdout.log"))
	fmt.Println("  Stderr log:", filepath.Join(logDir, cmd.Name+".stderr.log"))
	fmt.Println("Tip: set SUPERVISR_LOG_DIR to choose a custom log directory.")
}
