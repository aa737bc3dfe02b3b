package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/iksnae/ragulate/internal"
	"github.com/spf13/cobra"
)

var (
	archivePath    string
	archiveSummary bool
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Snapshot conversations into a SQLite file",
	Long: `Write every conversation that exists on the server into a local SQLite
archive. Re-running replaces the stored copy of each conversation. The archive
is a write-only snapshot; ragulate never reads conversations back from it.

With --summary the archive contents are listed instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := internal.OpenArchive(archivePath)
		if err != nil {
			return err
		}
		defer db.Close()

		out := cmd.OutOrStdout()
		if archiveSummary {
			sums, err := internal.SummarizeArchive(ctx, db)
			if err != nil {
				return err
			}
			if len(sums) == 0 {
				fmt.Fprintln(out, headerStyle.Render("🗄  Archive is empty"))
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, titleStyle.Render("User")+"\t"+titleStyle.Render("Conversations")+"\t"+titleStyle.Render("Messages")+"\t"+titleStyle.Render("Last archived")+"\t")
			for _, s := range sums {
				fmt.Fprintf(w, "%s\t%d\t%d\t%s\t\n", s.Username, s.Sessions, s.Messages, dateStyle.Render(s.LastArchived))
			}
			return w.Flush()
		}

		mgr, _, err := login(ctx, cmd)
		if err != nil {
			return err
		}
		n, err := internal.WriteArchive(ctx, db, mgr.Username(), mgr.Sessions())
		if err != nil {
			return err
		}
		internal.PrintSuccess(out, fmt.Sprintf("Archived %d conversation(s) to %s", n, archivePath))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(archiveCmd)
	archiveCmd.Flags().StringVar(&archivePath, "db", "ragulate-archive.db", "SQLite archive path")
	archiveCmd.Flags().BoolVar(&archiveSummary, "summary", false, "List archive contents instead of writing")
}
