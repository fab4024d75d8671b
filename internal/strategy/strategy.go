// Package strategy decides which processes to restart after one of them fails.
package strategy

import (
	"fmt"
	"sort"
	"strings"
)

// Strategy selects the restart fan-out for a failure.
type Strategy int

const (
	// OneForOne restarts only the failed process.
	OneForOne Strategy = iota
	// OneForAll restarts every registered process.
	OneForAll
	// RestForOne restarts the failed process and its direct dependents.
	RestForOne
)

func (s Strategy) String() string {
	switch s {
	case OneForOne:
		return "one_for_one"
	case OneForAll:
		return "one_for_all"
	case RestForOne:
		return "rest_for_one"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool { return s >= OneForOne && s <= RestForOne }

// Parse accepts snake_case, kebab-case and CamelCase spellings, case-insensitively.
func Parse(s string) (Strategy, error) {
	norm := strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.TrimSpace(s)))
	switch norm {
	case "oneforone", "":
		return OneForOne, nil
	case "oneforall":
		return OneForAll, nil
	case "restforone":
		return RestForOne, nil
	}
	return OneForOne, fmt.Errorf("unknown restart strategy %q", s)
}

func (s Strategy) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid restart strategy %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Strategy) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// DependentsLister is the part of the dependency graph the engine needs.
type DependentsLister interface {
	Dependents(target string) []string
}

// RestartSet returns the names to restart after failed terminated: failed first,
// the rest sorted, without duplicates. registered lists every name currently in
// the registry; graph may be nil for strategies that ignore dependencies.
// Names are not filtered by state or rate limit here.
func RestartSet(s Strategy, failed string, registered []string, graph DependentsLister) []string {
	var others []string
	switch s {
	case OneForAll:
		others = registered
	case RestForOne:
		if graph != nil {
			others = graph.Dependents(failed)
		}
	}
	out := []string{failed}
	seen := map[string]bool{failed: true}
	rest := make([]string, 0, len(others))
	for _, n := range others {
		if !seen[n] {
			seen[n] = true
			rest = append(rest, n)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}
