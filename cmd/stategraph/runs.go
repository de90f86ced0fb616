package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:               "runs",
	Short:             "Manage checkpointed runs",
	Long:              `List, inspect and remove run checkpoints in the configured store. Use a persistent backend (file or redis) to keep runs between invocations.`,
	PersistentPreRunE: setup,
}

var runsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		if app.Store == nil {
			return errors.New("checkpointing is disabled")
		}
		ids, err := app.Store.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("error listing runs: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(ids) == 0 {
			fmt.Fprintln(out, "No runs found.")
			return nil
		}
		for _, id := range ids {
			cp, err := app.Store.Load(cmd.Context(), id)
			if err != nil {
				fmt.Fprintf(out, "- %s (unreadable: %v)\n", id, err)
				continue
			}
			fmt.Fprintf(out, "- %s  graph=%s status=%s step=%d next=%s\n", id, cp.Graph, cp.Status, cp.Step, cp.Next)
		}
		return nil
	},
}

var runsInspectCmd = &cobra.Command{
	Use:   "inspect <run-id>",
	Short: "Print the checkpoint of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if app.Store == nil {
			return errors.New("checkpointing is disabled")
		}
		cp, err := app.Store.Load(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("error loading run '%s': %w", args[0], err)
		}
		data, err := json.MarshalIndent(cp, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var runsRmCmd = &cobra.Command{
	Use:   "rm <run-id>...",
	Short: "Remove one or more runs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if app.Store == nil {
			return errors.New("checkpointing is disabled")
		}
		var errs []error
		for _, id := range args {
			if err := app.Store.Delete(cmd.Context(), id); err != nil {
				errs = append(errs, fmt.Errorf("error removing '%s': %w", id, err))
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed run '%s'\n", id)
		}
		return errors.Join(errs...)
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsLsCmd, runsInspectCmd, runsRmCmd)
}
