package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/ragulate/internal"
	"github.com/spf13/cobra"
)

var (
	healthcheckDetails bool
)

var (
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true).
			Underline(true)
)

var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check that ragulate can reach and use the backend",
	Long: `Check the health of the client setup by verifying:
  • Configuration
  • Server reachability
  • Knowledge store listing
  • Login and conversation loading (when a username and password are available)

Login is only attempted non-interactively: pass --user and --password or set
RAGULATE_USERNAME and RAGULATE_PASSWORD.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		ctx := cmd.Context()
		fmt.Fprintln(out, sectionStyle.Render("🔍 ragulate health check"))
		fmt.Fprintln(out)

		fmt.Fprintln(out, infoStyle.Render("Step 1: Checking configuration..."))
		fmt.Fprintln(out, successStyle.Render("✅ Configuration is valid"))
		if healthcheckDetails {
			fmt.Fprintf(out, "   Server: %s\n", cfg.ServerURL)
			fmt.Fprintf(out, "   Request timeout: %s\n", cfg.RequestTimeout)
			fmt.Fprintf(out, "   Upload timeout: %s\n", cfg.UploadTimeout)
		}
		fmt.Fprintln(out)

		client := internal.NewClient(cfg)

		fmt.Fprintln(out, infoStyle.Render("Step 2: Contacting the server..."))
		docs, err := client.ListDocuments(ctx)
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render("❌ Server is not reachable:"), err)
			fmt.Fprintln(out)
			return fmt.Errorf("health check failed: %w", err)
		}
		fmt.Fprintln(out, successStyle.Render("✅ Server answered"))
		fmt.Fprintln(out)

		fmt.Fprintln(out, infoStyle.Render("Step 3: Knowledge store..."))
		if len(docs) == 0 {
			fmt.Fprintln(out, warningStyle.Render("⚠️  Knowledge store is empty"))
		} else {
			fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✅ %d document(s)", len(docs))))
			if healthcheckDetails {
				for status, n := range internal.CountByStatus(docs) {
					fmt.Fprintf(out, "   %s: %d\n", status, n)
				}
			}
		}
		fmt.Fprintln(out)

		fmt.Fprintln(out, infoStyle.Render("Step 4: Login..."))
		sessions, loginErr := healthcheckLogin(cmd, out)
		fmt.Fprintln(out)

		fmt.Fprintln(out, sectionStyle.Render("📊 Summary"))
		fmt.Fprintln(out)
		if loginErr != nil {
			fmt.Fprintln(out, errorStyle.Render("❌ Health check failed"))
			return loginErr
		}
		fmt.Fprintln(out, successStyle.Render("✅ Health check passed!"))
		fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("   • Documents: %d", len(docs))))
		if sessions >= 0 {
			fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("   • Conversations: %d", sessions)))
		}
		return nil
	},
}

// healthcheckLogin returns the conversation count, or -1 when login was skipped
func healthcheckLogin(cmd *cobra.Command, out io.Writer) (int, error) {
	user := username
	if user == "" {
		user = cfg.Username
	}
	pass := password
	if pass == "" {
		pass = os.Getenv("RAGULATE_PASSWORD")
	}
	if user == "" || pass == "" {
		fmt.Fprintln(out, warningStyle.Render("⚠️  Skipped (no username and password available)"))
		return -1, nil
	}

	client := internal.NewClient(cfg)
	mgr := newManager(client)
	if _, err := mgr.Authenticate(cmd.Context(), internal.Credentials{Username: user, Password: pass}); err != nil {
		fmt.Fprintln(out, errorStyle.Render("❌ Login failed:"), err)
		return -1, fmt.Errorf("health check failed: %w", err)
	}
	fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✅ Logged in as %s", mgr.Username())))
	if healthcheckDetails {
		for i, s := range mgr.Sessions() {
			if i == 5 {
				fmt.Fprintf(out, "   ... and %d more\n", len(mgr.Sessions())-5)
				break
			}
			fmt.Fprintf(out, "   [%d] %s (%d message(s))\n", i+1, s.Title, len(s.Messages))
		}
	}
	return len(mgr.Sessions()), nil
}

func init() {
	rootCmd.AddCommand(healthcheckCmd)
	healthcheckCmd.Flags().BoolVarP(&healthcheckDetails, "details", "d", false, "Show detailed diagnostic information")
}
