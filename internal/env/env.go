// Package env composes the environment handed to command processes.
package env

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type Var map[string]string

// Env holds variables shared by every command process.
type Env struct {
	Var Var  // global variables (K->V)
	os  bool // start from the supervisor's own environment
	env Var  // cached base from OS environment
}

func New() *Env {
	return &Env{Var: make(Var)}
}

// WithOS returns a copy that starts Merge from the OS environment.
func (e *Env) WithOS(inherit bool) *Env {
	c := e.clone()
	c.os = inherit
	return c
}

// WithSet returns a copy with K=V set.
func (e *Env) WithSet(k, v string) *Env {
	c := e.clone()
	if k != "" {
		c.Var[k] = v
	}
	return c
}

// WithPairs returns a copy with every "K=V" entry of kvs applied in order.
func (e *Env) WithPairs(kvs []string) *Env {
	c := e.clone()
	for k, v := range Parse(kvs) {
		c.Var[k] = v
	}
	return c
}

func (e *Env) clone() *Env {
	c := &Env{Var: make(Var, len(e.Var)), os: e.os, env: e.env}
	for k, v := range e.Var {
		c.Var[k] = v
	}
	return c
}

func fromOS() Var {
	base := make(Var)
	for k, v := range Parse(os.Environ()) {
		base[k] = v
	}
	return base
}

// Merge composes the final environment list applying order:
// base = OS env (only when inherited)
// then global e.Var overrides
// then perProc (slice of "K=V") overrides
// ${VAR} references are expanded against the composed map (single pass).
// The result is sorted and never nil.
func (e *Env) Merge(perProc []string) []string {
	m := make(Var)
	if e.os {
		if e.env == nil {
			e.env = fromOS()
		}
		for k, v := range e.env {
			m[k] = v
		}
	}
	for k, v := range e.Var {
		m[k] = v
	}
	for k, v := range Parse(perProc) {
		m[k] = v
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+expand(v, m))
	}
	sort.Strings(out)
	return out
}

func expand(s string, m Var) string {
	var b strings.Builder
	for {
		i := strings.Index(s, "${")
		if i < 0 {
			break
		}
		j := strings.IndexByte(s[i+2:], '}')
		if j < 0 {
			break
		}
		end := i + 3 + j
		b.WriteString(s[:i])
		if v, ok := m[s[i+2:end-1]]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(s[i:end])
		}
		s = s[end:]
	}
	b.WriteString(s)
	return b.String()
}

// Parse turns "K=V" entries into a map. Entries without '=' or with an empty key are skipped.
func Parse(kvs []string) Var {
	m := make(Var, len(kvs))
	for _, kv := range kvs {
		if i := strings.IndexByte(kv, '='); i > 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	return m
}

// LoadFile parses a simple .env file with KEY=VALUE lines (no export, no quotes).
// Lines starting with # are ignored.
func LoadFile(path string) (Var, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	m := make(Var)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i > 0 {
			m[strings.TrimSpace(line[:i])] = strings.TrimSpace(line[i+1:])
		}
	}
	return m, nil
}
