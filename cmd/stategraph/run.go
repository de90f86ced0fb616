package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/stategraph/internal/cli"
	"github.com/aretw0/stategraph/internal/presentation/tui"
	"github.com/aretw0/stategraph/pkg/graph"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <graph>",
	Short: "Invoke a graph and print the final state",
	Long: `Runs a registered graph from its entry point until it reaches END.

Input is a JSON or YAML object (or @file). Without --input the graph's example
input is used. With --resume the run continues from its last checkpoint.`,
	Args:    cobra.ExactArgs(1),
	PreRunE: setup,
	RunE:    runGraph,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("input", "i", "", "Initial state update as JSON/YAML, or @file")
	runCmd.Flags().String("run-id", "", "Run ID used for checkpoints (generated when empty)")
	runCmd.Flags().String("resume", "", "Resume the checkpointed run with this ID instead of starting a new one")
	runCmd.Flags().Int("retry-ceiling", 0, "Per-node visit ceiling for this run (0 keeps the configured one)")
	runCmd.Flags().Bool("trace", false, "Print every node and routing decision")
	runCmd.Flags().Bool("json", false, "Print the run as JSON instead of a report")
}

func runGraph(cmd *cobra.Command, args []string) error {
	entry, err := app.Registry.Get(args[0])
	if err != nil {
		return err
	}

	raw, _ := cmd.Flags().GetString("input")
	runID, _ := cmd.Flags().GetString("run-id")
	resumeID, _ := cmd.Flags().GetString("resume")
	ceiling, _ := cmd.Flags().GetInt("retry-ceiling")
	trace, _ := cmd.Flags().GetBool("trace")
	asJSON, _ := cmd.Flags().GetBool("json")

	out := cmd.OutOrStdout()
	opts := app.RunOptions()
	if ceiling > 0 {
		opts = append(opts, graph.WithRetryCeiling(ceiling))
	}
	if trace {
		opts = append(opts, graph.WithLifecycleHooks(tui.TraceHooks(cmd.ErrOrStderr())))
	}

	var info *graph.RunInfo
	var runErr error
	if resumeID != "" {
		if app.Store == nil {
			return errors.New("--resume needs a checkpoint backend")
		}
		opts = append(opts, graph.WithLocker(app.Locker, app.Config.Checkpoint.LockTTL))
		info, runErr = entry.Graph.Resume(cmd.Context(), app.Store, resumeID, opts...)
		if info == nil {
			return runErr
		}
	} else {
		input, err := cli.ParseInput(raw)
		if err != nil {
			return err
		}
		if input == nil {
			input = entry.Example
		}
		if runID != "" {
			opts = append(opts, graph.WithRunID(runID))
		}
		info, runErr = entry.Graph.Run(cmd.Context(), input, opts...)
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(info); err != nil {
			return err
		}
	} else {
		if tui.IsTerminal(out) {
			tui.PrintBanner(out)
		}
		rendered, err := tui.NewRenderer(out)(tui.Report(info, runErr))
		if err != nil {
			return err
		}
		fmt.Fprint(out, rendered)
	}

	if runErr != nil {
		return fmt.Errorf("run %s failed: %s", info.RunID, tui.FailureMessage(runErr))
	}
	return nil
}
