package main

import (
	"errors"
	"fmt"

	"github.com/aretw0/stategraph/internal/config"
	"github.com/aretw0/stategraph/internal/demos"
	"github.com/aretw0/stategraph/pkg/graph"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [name...]",
	Short: "Compile graphs and report every definition problem",
	Long:  `Compiles the named graphs (all when none is given) with the configured options and reports dead ends, unreachable nodes, unknown targets and undeclared writes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}

		want := make(map[string]bool, len(args))
		for _, a := range args {
			want[a] = true
		}

		out := cmd.OutOrStdout()
		failed := 0
		seen := 0
		for _, d := range demos.Definitions() {
			if len(want) > 0 && !want[d.Name] {
				continue
			}
			seen++
			_, err := d.Build(demos.StubDeps(), graph.WithName(d.Name), graph.WithRetryCeiling(cfg.CeilingFor(d.Name)))
			if err != nil {
				failed++
				fmt.Fprintf(out, "❌ %s\n", d.Name)
				var defErr *graph.DefinitionError
				if errors.As(err, &defErr) {
					for _, p := range defErr.Problems {
						fmt.Fprintf(out, "   - %v\n", p)
					}
				} else {
					fmt.Fprintf(out, "   - %v\n", err)
				}
				continue
			}
			fmt.Fprintf(out, "✅ %s\n", d.Name)
		}

		switch {
		case seen < len(want):
			return fmt.Errorf("unknown graph in %v", args)
		case failed > 0:
			return fmt.Errorf("%d graph(s) failed validation", failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
