package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/iksnae/ragulate/internal"
	"github.com/spf13/cobra"
)

var documentsStatus string

var documentsCmd = &cobra.Command{
	Use:     "documents",
	Aliases: []string{"docs"},
	Short:   "List documents in the knowledge store",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		queue := internal.NewUploadQueue(internal.NewClient(cfg))
		docs, err := queue.Documents(cmd.Context())
		if err != nil {
			return err
		}
		if documentsStatus != "" {
			filtered := docs[:0]
			for _, d := range docs {
				if strings.EqualFold(d.Status, documentsStatus) {
					filtered = append(filtered, d)
				}
			}
			docs = filtered
		}
		displayDocuments(cmd.OutOrStdout(), docs)
		return nil
	},
}

func displayDocuments(out io.Writer, docs []internal.Document) {
	if len(docs) == 0 {
		fmt.Fprintln(out, headerStyle.Render("📚 No documents"))
		return
	}

	counts := internal.CountByStatus(docs)
	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	parts := make([]string, 0, len(statuses))
	for _, s := range statuses {
		parts = append(parts, fmt.Sprintf("%s: %d", internal.StatusBadge(s), counts[s]))
	}
	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("📚 %d document(s)", len(docs)))+"  "+strings.Join(parts, " • "))
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, titleStyle.Render("ID")+"\t"+titleStyle.Render("Status")+"\t"+titleStyle.Render("Chunks")+"\t"+titleStyle.Render("Length")+"\t"+titleStyle.Render("Summary")+"\t")
	for _, d := range docs {
		summary := strings.Join(strings.Fields(d.ContentSummary), " ")
		if len([]rune(summary)) > 60 {
			summary = string([]rune(summary)[:57]) + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t\n", idStyle.Render(d.DocID), internal.StatusBadge(d.Status), d.ChunksCount, d.ContentLength, summary)
	}
	_ = w.Flush()
}

func init() {
	rootCmd.AddCommand(documentsCmd)
	documentsCmd.Flags().StringVar(&documentsStatus, "status", "", "Only show documents with this status (pending, processing, processed, failed)")
}
