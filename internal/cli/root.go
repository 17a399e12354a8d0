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

// Package cli wires the stackset commands: apply, plan and destroy.
//
// Exit codes: 0 when every resource ended Applied or Unchanged, 1 when
// any resource Failed (or on infrastructure errors), 2 on malformed
// declarations, unresolved references and dependency cycles.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/cli-runtime/pkg/genericclioptions"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client"
	crzap "sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/vijay-papanaboina/stackset/api/v1alpha1"
	"github.com/vijay-papanaboina/stackset/internal/graph"
	"github.com/vijay-papanaboina/stackset/internal/manifest"
)

// Exit codes of the stackset CLI.
const (
	ExitOK = 0
	// ExitFailed: at least one resource failed to apply or delete, or an
	// infrastructure error (kubeconfig, connectivity) stopped the run.
	ExitFailed = 1
	// ExitInvalid: the declaration itself is unusable - malformed spec,
	// duplicate name, unresolved reference or dependency cycle. Nothing
	// was applied.
	ExitInvalid = 2
)

// errResourcesFailed marks a run that finished but left failures in the
// summary.
var errResourcesFailed = errors.New("one or more resources failed")

// CLI carries the state shared by all subcommands.
type CLI struct {
	configFlags *genericclioptions.ConfigFlags

	file        string
	parallelism int
	timeout     time.Duration
	verbose     bool

	log logr.Logger
	out io.Writer
}

// NewRootCommand builds the stackset command tree.
func NewRootCommand(c *CLI) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stackset",
		Short: "Apply a declared resource stack to a cluster in dependency order",
		Long: `stackset reads a StackSet declaration (secrets, configs, workloads,
services and the references between them), computes a dependency-ordered
plan and reconciles it against the cluster: create what is missing,
update what drifted, leave the rest alone.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := zapcore.InfoLevel
			if c.verbose {
				level = zapcore.DebugLevel
			}
			c.log = crzap.New(
				crzap.WriteTo(os.Stderr),
				crzap.UseDevMode(true),
				crzap.Level(level),
			)
		},
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) == 0 {
				_ = cmd.Help()
			}
		},
	}

	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Enable debug logging")
	c.configFlags.AddFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		newApplyCommand(c),
		newPlanCommand(c),
		newDestroyCommand(c),
	)
	return cmd
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	c := &CLI{
		configFlags: genericclioptions.NewConfigFlags(true),
		out:         os.Stdout,
	}
	root := NewRootCommand(c)

	// In-flight API calls finish on their own deadline; no new resource
	// applications start after the first signal.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		if msg := err.Error(); msg != "" {
			fmt.Fprintln(os.Stderr, "Error:", msg)
		}
		return ExitCode(err)
	}
	return ExitOK
}

// ExitCode maps an error to the documented exit codes.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if manifest.IsMalformed(err) || manifest.IsDuplicateName(err) {
		return ExitInvalid
	}
	if graph.AsCycleError(err) != nil || graph.AsUnresolvedReference(err) != nil {
		return ExitInvalid
	}
	return ExitFailed
}

// addFileFlag registers the mandatory declaration-file flag.
func addFileFlag(cmd *cobra.Command, c *CLI) {
	cmd.Flags().StringVarP(&c.file, "file", "f", "", "Path to the StackSet declaration file")
	_ = cmd.MarkFlagRequired("file")
}

// newClient builds the cluster client from the kubeconfig flags.
func (c *CLI) newClient() (client.Client, error) {
	cfg, err := c.configFlags.ToRESTConfig()
	if err != nil {
		return nil, fmt.Errorf("loading kubeconfig: %w", err)
	}
	scheme := runtime.NewScheme()
	if err := clientgoscheme.AddToScheme(scheme); err != nil {
		return nil, err
	}
	return client.New(cfg, client.Options{Scheme: scheme})
}

// loadStackSet reads the declaration and applies the namespace override
// from the command line, if any.
func (c *CLI) loadStackSet() (*v1alpha1.StackSet, error) {
	set, err := manifest.Load(c.file)
	if err != nil {
		return nil, err
	}
	if ns := *c.configFlags.Namespace; ns != "" {
		set.Metadata.Namespace = ns
	}
	return set, nil
}
