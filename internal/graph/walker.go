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
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// SkippedError marks a resource that was never visited because a
// dependency failed. Blocking names the failed resource at the root of
// the chain.
type SkippedError struct {
	Blocking string
}

func (e *SkippedError) Error() string {
	return fmt.Sprintf("skipped: blocked by failed dependency %q", e.Blocking)
}

// VisitFunc is called once per resource when all its dependencies have
// been visited successfully.
type VisitFunc func(ctx context.Context, name string) error

// WalkOptions configures Walk.
type WalkOptions struct {
	// Parallelism bounds the number of concurrent visits. Values <= 1
	// mean sequential execution.
	Parallelism int

	// Reverse walks dependents before dependencies (teardown order).
	Reverse bool
}

// Walk visits every resource in dependency order, running up to
// Parallelism visits concurrently. A resource is visited only after all
// its dependencies (dependents, in Reverse mode) completed without error.
//
// The returned map holds one entry per non-successful resource: the visit
// error, or a SkippedError for resources blocked by a failed dependency.
// Resources not reached before ctx was cancelled have no entry at all.
//
// A failure never stops independent branches; only the failed resource's
// transitive dependents are skipped.
func (g *Graph) Walk(ctx context.Context, opts WalkOptions, fn VisitFunc) map[string]error {
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}

	// indegree counts unvisited prerequisites; next maps a resource to
	// the resources unblocked by its completion.
	indegree := make(map[string]*int32, len(g.specs))
	next := make(map[string][]string, len(g.specs))
	for i := range g.specs {
		name := g.specs[i].Name
		var count int32
		if opts.Reverse {
			count = int32(len(g.dependents[name]))
			next[name] = g.dependsOn[name]
		} else {
			count = int32(len(g.dependsOn[name]))
			next[name] = g.dependents[name]
		}
		c := count
		indegree[name] = &c
	}

	ready := make(chan string, len(g.specs))
	for name, count := range indegree {
		if *count == 0 {
			ready <- name
		}
	}
	// Deterministic start order for the sequential case.
	if opts.Parallelism == 1 {
		drainSorted(g, ready)
	}

	var mu sync.Mutex
	results := make(map[string]error)
	processed := make(map[string]bool)
	remaining := int32(g.Len())
	var closeOnce sync.Once
	finish := func() { closeOnce.Do(func() { close(ready) }) }
	if g.Len() == 0 {
		finish()
	}

	// settle records an outcome exactly once and closes the ready channel
	// when the last resource settles. Returns false if already settled.
	settle := func(name string, err error) bool {
		mu.Lock()
		defer mu.Unlock()
		if processed[name] {
			return false
		}
		processed[name] = true
		if err != nil {
			results[name] = err
		}
		if atomic.AddInt32(&remaining, -1) == 0 {
			finish()
		}
		return true
	}

	// markSkipped propagates a failure to all transitive dependents that
	// have not run yet. blocking stays the original failed resource.
	var markSkipped func(name, blocking string)
	markSkipped = func(name, blocking string) {
		if !settle(name, &SkippedError{Blocking: blocking}) {
			return
		}
		for _, n := range next[name] {
			markSkipped(n, blocking)
		}
	}

	eg, ctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(opts.Parallelism))

	for range opts.Parallelism {
		eg.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					finish()
					return ctx.Err()
				case name, ok := <-ready:
					if !ok {
						return nil
					}
					if err := sem.Acquire(ctx, 1); err != nil {
						finish()
						return err
					}
					err := fn(ctx, name)
					sem.Release(1)

					if err != nil {
						settle(name, err)
						for _, n := range next[name] {
							markSkipped(n, name)
						}
						continue
					}
					settle(name, nil)

					for _, n := range next[name] {
						if atomic.AddInt32(indegree[n], -1) != 0 {
							continue
						}
						mu.Lock()
						done := processed[n]
						mu.Unlock()
						if !done {
							select {
							case ready <- n:
							case <-ctx.Done():
								finish()
								return ctx.Err()
							}
						}
					}
				}
			}
		})
	}

	_ = eg.Wait()
	return results
}

// drainSorted reorders the currently queued roots by declaration order so
// a sequential walk matches the stable plan exactly.
func drainSorted(g *Graph, ready chan string) {
	n := len(ready)
	if n < 2 {
		return
	}
	queued := make([]string, 0, n)
	for range n {
		queued = append(queued, <-ready)
	}
	for {
		best := -1
		for i, name := range queued {
			if name == "" {
				continue
			}
			if best == -1 || g.index[name] < g.index[queued[best]] {
				best = i
			}
		}
		if best == -1 {
			return
		}
		ready <- queued[best]
		queued[best] = ""
	}
}
