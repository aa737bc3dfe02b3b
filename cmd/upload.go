package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/iksnae/ragulate/internal"
	"github.com/spf13/cobra"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Add documents to the knowledge store",
	Long: `Upload one or more files into the backend's knowledge store. Each file is
submitted independently; one failure does not stop the others. The document
listing is shown once the uploads settle.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files := make([]internal.File, 0, len(args))
		for _, path := range args {
			f, err := internal.FileFromPath(path)
			if err != nil {
				return err
			}
			files = append(files, f)
		}

		queue := internal.NewUploadQueue(internal.NewClient(cfg))
		queue.Stage(files...)

		results, err := internal.ShowProgressResult(cmd.Context(), fmt.Sprintf("Uploading %d file(s)", len(files)), func(ctx context.Context) (map[string]error, error) {
			return queue.SubmitAll(ctx), nil
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		failed := displayUploads(out, queue.Items())

		if docs := queue.LastRefresh(); len(docs) > 0 {
			fmt.Fprintln(out)
			displayDocuments(out, docs)
		}

		internal.LogDebug("Upload results: %v", results)
		if failed > 0 {
			return fmt.Errorf("%d of %d upload(s) failed", failed, len(files))
		}
		return nil
	},
}

// displayUploads prints the queue and returns how many entries ended in error
func displayUploads(out io.Writer, items []internal.PendingUpload) int {
	failed := 0
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, titleStyle.Render("File")+"\t"+titleStyle.Render("Size")+"\t"+titleStyle.Render("Status")+"\t"+titleStyle.Render("Detail")+"\t")
	for i := len(items) - 1; i >= 0; i-- {
		item := items[i]
		if item.Status == internal.UploadFailed {
			failed++
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t\n", item.File.Name, item.File.Size, internal.StatusBadge(string(item.Status)), item.ErrorDetail)
	}
	_ = w.Flush()
	return failed
}

func init() {
	rootCmd.AddCommand(uploadCmd)
}
