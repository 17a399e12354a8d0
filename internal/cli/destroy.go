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

	"github.com/vijay-papanaboina/stackset/internal/reconcile"
)

func newDestroyCommand(c *CLI) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Tear the declared stack down in reverse dependency order",
		Long: `Destroy deletes the stack's objects in the exact reverse of the
apply order, so nothing is removed while a dependent still exists. Only
objects created by stackset (carrying its managed-by annotation) are
deleted; anything else is left in place.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := c.loadStackSet()
			if err != nil {
				return err
			}
			cl, err := c.newClient()
			if err != nil {
				return err
			}

			rec := reconcile.New(cl, c.log, reconcile.Options{
				Parallelism: c.parallelism,
				CallTimeout: c.timeout,
			})
			summary, err := rec.Destroy(cmd.Context(), set)
			if err != nil {
				return err
			}

			renderSummary(c.out, summary)
			if !summary.Clean() {
				return errResourcesFailed
			}
			return nil
		},
	}

	addFileFlag(cmd, c)
	cmd.Flags().IntVar(&c.parallelism, "parallelism", 1, "Maximum number of concurrent deletes (1 = sequential)")
	cmd.Flags().DurationVar(&c.timeout, "timeout", 0, "Per-API-call timeout (default 30s)")
	return cmd
}
