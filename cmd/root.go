package cmd

import (
	"fmt"
	"os"

	"github.com/iksnae/ragulate/internal"
	"github.com/spf13/cobra"
)

var (
	verbose    bool
	configPath string
	serverURL  string
	username   string
	password   string
	version    string = "dev"
	commit     string = "unknown"
	date       string = "unknown"

	// cfg is loaded once per invocation by the root pre-run hook
	cfg *internal.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ragulate",
	Short: "Chat with a RAG backend and manage its knowledge store",
	Long: `A command-line client for a retrieval-augmented generation chat server.

ragulate keeps a local mirror of your conversations, sends questions to the
server's chat pipeline and uploads documents into its knowledge store.

Features:
  • Log in or register and list your conversations
  • Interactive chat with file attachments
  • Upload documents and watch their ingestion status
  • Export conversations (JSON, JSONL, Markdown, YAML) or archive them to SQLite

Quick Start:
  ragulate login -u alice                # Check credentials and remember the user
  ragulate chat                          # Start chatting
  ragulate upload report.pdf notes.md    # Add documents to the knowledge store
  ragulate export --format md            # Export all conversations as Markdown`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		internal.SetVerbose(verbose)

		loaded, err := internal.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if serverURL != "" {
			loaded.ServerURL = serverURL
			if err := loaded.Validate(); err != nil {
				return err
			}
		}
		if loaded.LogFile != "" {
			internal.SetLogFile(loaded.LogFile)
		}
		cfg = loaded
		internal.LogDebug("Using server %s", cfg.ServerURL)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		internal.SyncLogs()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		internal.PrintError(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.ragulate/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Backend base URL (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&username, "user", "u", "", "Username (default from config or RAGULATE_USERNAME)")
	rootCmd.PersistentFlags().StringVarP(&password, "password", "p", "", "Password (default RAGULATE_PASSWORD, otherwise prompted)")

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}
