package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/iksnae/ragulate/internal"
	"github.com/iksnae/ragulate/internal/export"
	"github.com/spf13/cobra"
)

var (
	format      string
	outputDir   string
	exportRef   string
	includeNone bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export conversations to files",
	Long: `Export conversations to files in one of several formats (jsonl, md, yaml, json).

All conversations are exported unless --session picks one. Conversations with
no messages are skipped unless --include-empty is set.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		exporter, err := export.NewExporter(format)
		if err != nil {
			return err
		}

		mgr, _, err := login(cmd.Context(), cmd)
		if err != nil {
			return err
		}

		sessions := mgr.Sessions()
		if exportRef != "" {
			s, err := resolveSession(mgr, exportRef)
			if err != nil {
				return err
			}
			sessions = []internal.Session{s}
		} else if !includeNone {
			filtered := sessions[:0]
			for _, s := range sessions {
				if len(s.Messages) > 0 {
					filtered = append(filtered, s)
				}
			}
			sessions = filtered
		}

		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}

		written, err := internal.ShowProgressResult(cmd.Context(), fmt.Sprintf("Exporting %d conversation(s) to %s", len(sessions), outputDir), func(ctx context.Context) (int, error) {
			n := 0
			for i := range sessions {
				if err := exportSession(exporter, &sessions[i], outputDir); err != nil {
					internal.LogError("%v", err)
					continue
				}
				n++
			}
			return n, nil
		})
		if err != nil {
			return err
		}

		internal.PrintSuccess(cmd.OutOrStdout(), fmt.Sprintf("Export complete: %d conversation(s) exported to %s", written, outputDir))
		if written < len(sessions) {
			return fmt.Errorf("%d conversation(s) failed to export", len(sessions)-written)
		}
		return nil
	},
}

func exportSession(exporter export.Exporter, session *internal.Session, dir string) error {
	path := filepath.Join(dir, export.FileName(session, exporter.Extension()))
	file, err := os.Create(path)
	if err != nil {
		return &internal.ExportError{Format: exporter.Extension(), Path: path, Err: err}
	}
	if err := exporter.Export(session, file); err != nil {
		_ = file.Close()
		return &internal.ExportError{Format: exporter.Extension(), Path: path, Err: err}
	}
	if err := file.Close(); err != nil {
		return &internal.ExportError{Format: exporter.Extension(), Path: path, Err: err}
	}
	internal.LogDebug("Wrote %s", path)
	return nil
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&format, "format", "f", "jsonl", "Export format (jsonl, md, yaml, json)")
	exportCmd.Flags().StringVarP(&outputDir, "out", "o", "./exports", "Output directory")
	exportCmd.Flags().StringVarP(&exportRef, "session", "s", "", "Export a single conversation (number or ID)")
	exportCmd.Flags().BoolVar(&includeNone, "include-empty", false, "Also export conversations without messages")
}
