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

// Package report holds the per-resource reconciliation outcomes and their
// aggregation into a run summary. It is structured data only; rendering
// belongs to the CLI.
package report

import (
	"github.com/vijay-papanaboina/stackset/api/v1alpha1"
)

// Outcome is the terminal state of one resource in one run.
type Outcome string

const (
	// OutcomeApplied means a create or update call was issued and succeeded.
	OutcomeApplied Outcome = "Applied"

	// OutcomeUnchanged means observed state already matched the declaration;
	// no mutation call was issued.
	OutcomeUnchanged Outcome = "Unchanged"

	// OutcomeFailed means the apply (or delete) failed after retries.
	OutcomeFailed Outcome = "Failed"

	// OutcomeSkipped means the resource was never attempted: a dependency
	// failed, or the run was cancelled first.
	OutcomeSkipped Outcome = "Skipped"
)

// Result is the outcome for a single resource. Results are written once
// when the resource settles and never mutated afterwards.
type Result struct {
	Kind v1alpha1.ResourceKind
	Name string

	Outcome Outcome

	// Reason explains Failed and Skipped outcomes: the error after
	// exhausted retries, the name of the blocking dependency, or
	// "cancelled".
	Reason string
}

// Summary aggregates the results of one reconciliation run.
type Summary struct {
	// Results holds one entry per declared resource, in plan order.
	Results []Result

	// Applied, Unchanged, Failed and Skipped count results by outcome.
	Applied   int
	Unchanged int
	Failed    int
	Skipped   int
}

// Summarize builds the run summary from per-resource results.
func Summarize(results []Result) *Summary {
	s := &Summary{Results: results}
	for _, r := range results {
		switch r.Outcome {
		case OutcomeApplied:
			s.Applied++
		case OutcomeUnchanged:
			s.Unchanged++
		case OutcomeFailed:
			s.Failed++
		case OutcomeSkipped:
			s.Skipped++
		}
	}
	return s
}

// Clean reports whether every resource ended Applied or Unchanged.
func (s *Summary) Clean() bool {
	return s.Failed == 0 && s.Skipped == 0
}

// HasFailures reports whether any resource failed.
func (s *Summary) HasFailures() bool {
	return s.Failed > 0
}
