/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package graph

import (
	"sort"

	"github.com/vijay-papanaboina/stackset/api/v1alpha1"
)

// =============================================================================
// Dependency graph over a declaration set.
//
// Build resolves every reference to its target resource (failing fast on
// dangling names or keys), adds one edge per dependency->dependent pair,
// and rejects cycles. The graph is built fresh from the declaration set on
// every planning pass - it is never mutated incrementally.
//
// Plan produces a stable topological order: dependencies before dependents,
// ties between independent resources broken by declaration order.
// =============================================================================

// Graph is an acyclic dependency graph over declared resources.
type Graph struct {
	specs []v1alpha1.ResourceSpec
	index map[string]int

	// dependsOn maps a resource to its direct dependencies, dependents to
	// the resources that consume it. Both keep insertion order.
	dependsOn  map[string][]string
	dependents map[string][]string
}

// Build constructs the graph for one reconciliation run. It returns an
// UnresolvedReferenceError when a reference points at a missing resource
// or data key, and a CycleError when the references form a cycle.
func Build(specs []v1alpha1.ResourceSpec) (*Graph, error) {
	g := &Graph{
		specs:      specs,
		index:      make(map[string]int, len(specs)),
		dependsOn:  make(map[string][]string),
		dependents: make(map[string][]string),
	}
	for i := range specs {
		g.index[specs[i].Name] = i
	}

	for i := range specs {
		res := &specs[i]
		seenDep := make(map[string]struct{})
		for _, ref := range res.EffectiveReferences() {
			target, err := g.resolve(res.Name, ref)
			if err != nil {
				return nil, err
			}
			if _, dup := seenDep[target.Name]; dup {
				continue
			}
			seenDep[target.Name] = struct{}{}
			g.dependsOn[res.Name] = append(g.dependsOn[res.Name], target.Name)
			g.dependents[target.Name] = append(g.dependents[target.Name], res.Name)
		}
	}

	if cycle := g.findCycle(); cycle != nil {
		return nil, &CycleError{Path: cycle}
	}
	return g, nil
}

// resolve maps a reference to its target spec. A reference with a key must
// point at a Secret or Config that declares the key.
func (g *Graph) resolve(from string, ref v1alpha1.Reference) (*v1alpha1.ResourceSpec, error) {
	idx, ok := g.index[ref.Target]
	if !ok {
		return nil, &UnresolvedReferenceError{From: from, Target: ref.Target, Key: ref.Key}
	}
	target := &g.specs[idx]
	if ref.Key != "" {
		// Only Secret and Config carry addressable data keys.
		if target.Kind != v1alpha1.KindSecret && target.Kind != v1alpha1.KindConfig {
			return nil, &UnresolvedReferenceError{From: from, Target: ref.Target, Key: ref.Key}
		}
		if _, ok := target.Data[ref.Key]; !ok {
			return nil, &UnresolvedReferenceError{From: from, Target: ref.Target, Key: ref.Key}
		}
	}
	return target, nil
}

// findCycle runs a depth-first traversal tracking the in-progress set.
// It returns the names along the first back-edge found, closed so the
// first and last entries match, or nil when the graph is acyclic.
func (g *Graph) findCycle() []string {
	const (
		unvisited  = 0
		inProgress = 1
		done       = 2
	)
	state := make(map[string]int, len(g.specs))

	var stack []string
	var cycle []string

	var visit func(name string) bool
	visit = func(name string) bool {
		state[name] = inProgress
		stack = append(stack, name)
		for _, dep := range g.dependsOn[name] {
			switch state[dep] {
			case inProgress:
				// Back-edge: slice the cycle out of the stack.
				start := 0
				for i, n := range stack {
					if n == dep {
						start = i
						break
					}
				}
				cycle = append(append([]string{}, stack[start:]...), dep)
				return true
			case unvisited:
				if visit(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = done
		return false
	}

	for i := range g.specs {
		if state[g.specs[i].Name] == unvisited {
			if visit(g.specs[i].Name) {
				return cycle
			}
		}
	}
	return nil
}

// Plan returns the apply order: every resource after all its dependencies,
// independent resources in declaration order. Build has already rejected
// cycles, so Plan always covers the full set.
func (g *Graph) Plan() []v1alpha1.ResourceSpec {
	indegree := make(map[string]int, len(g.specs))
	for i := range g.specs {
		indegree[g.specs[i].Name] = len(g.dependsOn[g.specs[i].Name])
	}

	// ready holds declaration indices of resources whose dependencies are
	// all planned, kept sorted so the lowest declaration index is applied
	// first (Kahn's algorithm with a stable tie-breaker).
	var ready []int
	for i := range g.specs {
		if indegree[g.specs[i].Name] == 0 {
			ready = append(ready, i)
		}
	}

	plan := make([]v1alpha1.ResourceSpec, 0, len(g.specs))
	for len(ready) > 0 {
		i := ready[0]
		ready = ready[1:]
		res := g.specs[i]
		plan = append(plan, res)

		for _, dep := range g.dependents[res.Name] {
			indegree[dep]--
			if indegree[dep] == 0 {
				di := g.index[dep]
				at := sort.SearchInts(ready, di)
				ready = append(ready, 0)
				copy(ready[at+1:], ready[at:])
				ready[at] = di
			}
		}
	}
	return plan
}

// Reverse returns the teardown order: the exact reverse of plan, so a
// resource is never deleted while something depending on it still exists.
func Reverse(plan []v1alpha1.ResourceSpec) []v1alpha1.ResourceSpec {
	out := make([]v1alpha1.ResourceSpec, len(plan))
	for i := range plan {
		out[len(plan)-1-i] = plan[i]
	}
	return out
}

// DirectDependencies returns the names of the resources name directly
// depends on, in reference order.
func (g *Graph) DirectDependencies(name string) []string {
	return g.dependsOn[name]
}

// Dependents returns the names of the resources that directly depend on
// name.
func (g *Graph) Dependents(name string) []string {
	return g.dependents[name]
}

// KindOf returns the declared kind of name.
func (g *Graph) KindOf(name string) (v1alpha1.ResourceKind, bool) {
	idx, ok := g.index[name]
	if !ok {
		return "", false
	}
	return g.specs[idx].Kind, true
}

// Len returns the number of resources in the graph.
func (g *Graph) Len() int {
	return len(g.specs)
}
