package detector

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// pidMeta is the optional second line of a pid file.
type pidMeta struct {
	StartUnixMilli int64 `json:"start_unix_ms"`
}

func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := process.PidExists(int32(pid))
	return err == nil && ok
}

// startMillis returns the creation time of pid in Unix milliseconds, 0 if unknown.
func startMillis(pid int) int64 {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return 0
	}
	ms, err := p.CreateTime()
	if err != nil {
		return 0
	}
	return ms
}

// WritePIDFile records pid and its start time so a later reader can tell a
// live owner from a recycled pid.
func WritePIDFile(path string, pid int) error {
	content := strconv.Itoa(pid)
	if ms := startMillis(pid); ms > 0 {
		b, _ := json.Marshal(pidMeta{StartUnixMilli: ms})
		content += "\n" + string(b)
	}
	return os.WriteFile(path, []byte(content+"\n"), 0o644)
}

// PIDFile detects a process via a pid file written by WritePIDFile. Plain
// files holding only a pid are accepted too.
type PIDFile struct {
	Path string
}

func (d PIDFile) Alive() (bool, error) {
	data, err := os.ReadFile(d.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return false, fmt.Errorf("invalid pid in %s: %w", d.Path, err)
	}
	if !pidAlive(pid) {
		return false, nil
	}
	if len(lines) > 1 {
		var m pidMeta
		if json.Unmarshal([]byte(strings.TrimSpace(lines[1])), &m) == nil && m.StartUnixMilli > 0 {
			if cur := startMillis(pid); cur > 0 && cur != m.StartUnixMilli {
				return false, nil // pid reused
			}
		}
	}
	return true, nil
}

func (d PIDFile) Describe() string { return "pidfile:" + d.Path }

// PID detects by a known pid number.
type PID struct{ PID int }

func (d PID) Alive() (bool, error) { return pidAlive(d.PID), nil }
func (d PID) Describe() string     { return fmt.Sprintf("pid:%d", d.PID) }
