package main

import (
	"fmt"
	"os"

	"github.com/aretw0/stategraph/internal/cli"
	"github.com/aretw0/stategraph/internal/config"
	"github.com/spf13/cobra"
)

// app is built before every command that needs the registry.
var app *cli.App

var rootCmd = &cobra.Command{
	Use:   "stategraph",
	Short: "Stategraph runs stateful workflow graphs",
	Long: `Stategraph compiles workflow graphs over a typed state schema and runs them
with bounded retries, checkpoints and resumable runs.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	if app != nil {
		if cerr := app.Close(); cerr != nil {
			app.Logger.Warn("failed to close checkpoint store", "err", cerr)
		}
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (default ./"+config.DefaultPath+" when present)")
	rootCmd.PersistentFlags().String("log-level", "", "Override the log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("checkpoint", "", "Override the checkpoint backend (none, memory, file, redis)")
}

// setup loads the configuration and builds the application.
func setup(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	if backend, _ := cmd.Flags().GetString("checkpoint"); backend != "" {
		cfg.Checkpoint.Backend = backend
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	app, err = cli.NewApp(cfg, cli.Options{})
	return err
}
