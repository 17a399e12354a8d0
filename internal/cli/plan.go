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
	"github.com/spf13/cobra"

	"github.com/vijay-papanaboina/stackset/internal/graph"
)

func newPlanCommand(c *CLI) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the computed apply order without executing it",
		Long: `Plan validates the declaration, resolves every reference, rejects
cycles and prints the order apply would use. No cluster access happens.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := c.loadStackSet()
			if err != nil {
				return err
			}
			g, err := graph.Build(set.Resources)
			if err != nil {
				return err
			}
			renderPlan(c.out, g, g.Plan())
			return nil
		},
	}

	addFileFlag(cmd, c)
	return cmd
}
