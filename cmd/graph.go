package cmd

import (
	"fmt"
	"os"

	"github.com/iksnae/ragulate/internal"
	"github.com/spf13/cobra"
)

var graphOut string

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Fetch the knowledge-graph description",
	Long: `Download the backend's knowledge-graph description document and print it,
or write it to a file with --out. The document is passed through unchanged.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := internal.NewClient(cfg).GetGraph(cmd.Context())
		if err != nil {
			return err
		}
		if graphOut == "" {
			_, err := cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(graphOut, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", graphOut, err)
		}
		internal.PrintSuccess(cmd.OutOrStdout(), fmt.Sprintf("Wrote %d bytes to %s", len(data), graphOut))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().StringVarP(&graphOut, "out", "o", "", "Write the graph to a file instead of stdout")
}
