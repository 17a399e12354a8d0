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
	"errors"
	"fmt"
	"strings"
)

// UnresolvedReferenceError reports a reference whose target resource or
// data key does not exist in the declaration set. Fatal for the whole run,
// before any cluster mutation: a plan must never be executed against an
// invalid graph.
type UnresolvedReferenceError struct {
	// From is the resource holding the dangling reference.
	From string
	// Target is the referenced resource name.
	Target string
	// Key is the referenced data key, empty for whole-resource references.
	Key string
}

func (e *UnresolvedReferenceError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("resource %q references unknown resource %q", e.From, e.Target)
	}
	return fmt.Sprintf("resource %q references key %q of %q, which does not declare it", e.From, e.Key, e.Target)
}

// CycleError reports a reference cycle. Path holds the names along the
// cycle, first and last being the same resource.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cyclic dependency: %s", strings.Join(e.Path, " -> "))
}

// AsCycleError returns the CycleError in err's chain, or nil.
func AsCycleError(err error) *CycleError {
	var ce *CycleError
	if errors.As(err, &ce) {
		return ce
	}
	return nil
}

// AsUnresolvedReference returns the UnresolvedReferenceError in err's
// chain, or nil.
func AsUnresolvedReference(err error) *UnresolvedReferenceError {
	var ue *UnresolvedReferenceError
	if errors.As(err, &ue) {
		return ue
	}
	return nil
}
