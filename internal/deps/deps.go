// Package deps records "p depends on q" relationships between supervised
// processes. Names need not be registered; cycles are not checked.
package deps

import (
	"slices"
	"sort"
	"sync"
)

// Graph maps a process to the processes it depends on, in declaration order.
type Graph struct {
	mu    sync.RWMutex
	edges map[string][]string
}

func NewGraph() *Graph {
	return &Graph{edges: make(map[string][]string)}
}

// Add declares that process depends on dependsOn. Repeated declarations are ignored.
func (g *Graph) Add(process, dependsOn string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if slices.Contains(g.edges[process], dependsOn) {
		return
	}
	g.edges[process] = append(g.edges[process], dependsOn)
}

// DependsOn returns what name depends on.
func (g *Graph) DependsOn(name string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.edges[name])
}

// Dependents returns, sorted, every process that directly depends on target.
func (g *Graph) Dependents(target string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []string
	for p, on := range g.edges {
		if slices.Contains(on, target) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// Snapshot returns a deep copy of the graph.
func (g *Graph) Snapshot() map[string][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string][]string, len(g.edges))
	for p, on := range g.edges {
		out[p] = slices.Clone(on)
	}
	return out
}

// Len is the number of processes with at least one declared dependency.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}
