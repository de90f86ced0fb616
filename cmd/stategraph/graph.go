package main

import (
	"encoding/json"
	"fmt"

	mermaid "github.com/aretw0/stategraph/internal/presentation/graph"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph [name]",
	Short: "List graphs or export one as a diagram",
	Long: `Without arguments, lists the registered graphs.
With a name, outputs a Mermaid diagram (graph TD) of that graph, or its
structure as JSON with --format json.`,
	Args:    cobra.MaximumNArgs(1),
	PreRunE: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if len(args) == 0 {
			for _, e := range app.Registry.List() {
				fmt.Fprintf(out, "%-12s %s\n", e.Name, e.Description)
			}
			return nil
		}

		entry, err := app.Registry.Get(args[0])
		if err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		switch format {
		case "mermaid":
			fmt.Fprint(out, mermaid.GenerateMermaid(entry.Graph, nil))
		case "json":
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(entry.Graph.Describe())
		default:
			return fmt.Errorf("unknown format %q (mermaid, json)", format)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().StringP("format", "f", "mermaid", "Output format: mermaid or json")
}
