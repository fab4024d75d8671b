package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/loykin/supervisr/internal/detector"
)

// daemonize re-executes the binary in the background without the daemon flags
// and exits the parent.
func daemonize(pidFile string, logFile string) error {
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	// #nosec 204
	cmd := exec.Command(executable, childArgs(os.Args[1:], pidFile)...)
	configureDaemonAttrs(cmd)
	cmd.Stdin = nil

	if logFile != "" {
		// #nosec 304
		logF, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer func() { _ = logF.Close() }()
		cmd.Stdout = logF
		cmd.Stderr = logF
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon process: %w", err)
	}

	fmt.Printf("Daemon started with PID %d\n", cmd.Process.Pid)
	os.Exit(0)
	return nil
}

// childArgs strips --daemonize and --logfile and keeps --pidfile so the child
// writes and removes its own PID file.
func childArgs(args []string, pidFile string) []string {
	var out []string
	skipNext := false
	for _, arg := range args {
		if skipNext {
			skipNext = false
			continue
		}
		switch {
		case arg == "--daemonize":
			continue
		case arg == "--pidfile", arg == "--logfile":
			skipNext = true
			continue
		case strings.HasPrefix(arg, "--pidfile="), strings.HasPrefix(arg, "--logfile="), strings.HasPrefix(arg, "--daemonize="):
			continue
		}
		out = append(out, arg)
	}
	if pidFile != "" {
		out = append(out, "--pidfile", pidFile)
	}
	return out
}

// writePidFile writes the daemon PID together with its start time
func writePidFile(pidFile string, pid int) error {
	return detector.WritePIDFile(pidFile, pid)
}

// checkPidFile fails when pidFile names a daemon that is still running
func checkPidFile(pidFile string) error {
	if pidFile == "" {
		return nil
	}
	d := detector.PIDFile{Path: pidFile}
	alive, err := d.Alive()
	if err != nil {
		return err
	}
	if alive {
		return fmt.Errorf("supervisr already running (%s)", d.Describe())
	}
	return nil
}

// removePidFile removes the PID file
func removePidFile(pidFile string) error {
	if pidFile == "" {
		return nil
	}
	return os.Remove(pidFile)
}
