package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mockyard/manager"
	"mockyard/process"
)

// controlCmds returns start, stop and restart. They drive the controller directly and skip
// the record store, so they work on any workspace under the base directory.
func controlCmds(opts *rootOptions) []*cobra.Command {
	actions := []struct {
		use, short string
		run        func(*manager.ContainerManager, context.Context, string) error
	}{
		{"start", "Start a project's mock container and wait until it runs", (*manager.ContainerManager).Start},
		{"stop", "Stop a project's mock container", (*manager.ContainerManager).Stop},
		{"restart", "Stop then start a project's mock container", (*manager.ContainerManager).Restart},
	}

	cmds := make([]*cobra.Command, 0, len(actions))
	for _, a := range actions {
		cmds = append(cmds, &cobra.Command{
			Use:   a.use + " <project>",
			Short: a.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				orch, err := newOrchestrator(ctx, opts.cfg, nil)
				if err != nil {
					return err
				}
				defer orch.Close()
				if a.use != "stop" {
					orch.ensureNetwork(ctx)
				}

				if err := a.run(orch.containers, ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], orch.containers.Status(ctx, args[0]))
				return nil
			},
		})
	}
	return cmds
}

func statusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <project>...",
		Short: "Show the container state of projects",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			orch, err := newOrchestrator(ctx, opts.cfg, nil)
			if err != nil {
				return err
			}
			defer orch.Close()
			for _, name := range args {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", name, orch.containers.Status(ctx, name))
			}
			return nil
		},
	}
}

func runtimeCmd(opts *rootOptions) *cobra.Command {
	var probeTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "runtime",
		Short: "Print the script runtime that would be used",
		RunE: func(cmd *cobra.Command, args []string) error {
			if probeTimeout <= 0 {
				probeTimeout = opts.cfg.Orchestration.ProbeTimeout
			}
			runner := process.NewRunner()
			runtime, err := process.ResolveInterpreter(cmd.Context(), runner, opts.cfg.Orchestration.Interpreters, probeTimeout)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), runtime)
			return nil
		},
	}
	cmd.Flags().DurationVar(&probeTimeout, "probe-timeout", 0, "Override the configured probe timeout")
	return cmd
}
