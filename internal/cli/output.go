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

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/vijay-papanaboina/stackset/api/v1alpha1"
	"github.com/vijay-papanaboina/stackset/internal/graph"
	"github.com/vijay-papanaboina/stackset/internal/report"
)

// renderPlan prints the computed apply order with each resource's direct
// dependencies, so the ordering is reviewable before anything runs.
func renderPlan(w io.Writer, g *graph.Graph, plan []v1alpha1.ResourceSpec) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "KIND", "NAME", "DEPENDS ON"})
	for i, res := range plan {
		deps := strings.Join(g.DirectDependencies(res.Name), ", ")
		if deps == "" {
			deps = "-"
		}
		t.AppendRow(table.Row{i + 1, string(res.Kind), res.Name, deps})
	}
	t.Render()
}

// renderSummary prints the per-resource outcomes and the totals line.
func renderSummary(w io.Writer, s *report.Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"KIND", "NAME", "OUTCOME", "DETAIL"})
	for _, r := range s.Results {
		t.AppendRow(table.Row{string(r.Kind), r.Name, colorize(r.Outcome), r.Reason})
	}
	t.Render()

	fmt.Fprintf(w, "%d applied, %d unchanged, %d failed, %d skipped\n",
		s.Applied, s.Unchanged, s.Failed, s.Skipped)
}

func colorize(o report.Outcome) string {
	switch o {
	case report.OutcomeApplied:
		return color.GreenString(string(o))
	case report.OutcomeFailed:
		return color.RedString(string(o))
	case report.OutcomeSkipped:
		return color.YellowString(string(o))
	default:
		return string(o)
	}
}
