package cmd

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/ragulate/internal"
	"github.com/spf13/cobra"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"list", "ls"},
	Short:   "List your conversations",
	Long:    `List every conversation the backend holds for the user, most recent first.`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, _, err := login(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		displaySessions(cmd.OutOrStdout(), mgr.Sessions(), activeLocalID(mgr))
		return nil
	},
}

func activeLocalID(mgr *internal.SessionManager) string {
	if s, ok := mgr.Active(); ok {
		return s.LocalID
	}
	return ""
}

func displaySessions(out io.Writer, sessions []internal.Session, activeID string) {
	if len(sessions) == 0 {
		fmt.Fprintln(out, headerStyle.Render("📋 No conversations yet"))
		return
	}

	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("📋 Found %d conversation(s)", len(sessions))))
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, titleStyle.Render("#")+"\t"+titleStyle.Render("Title")+"\t"+titleStyle.Render("Messages")+"\t"+titleStyle.Render("Created")+"\t"+titleStyle.Render("ID")+"\t")

	for i, s := range sessions {
		marker := " "
		if s.LocalID == activeID {
			marker = "*"
		}

		title := s.Title
		if len([]rune(title)) > 50 {
			title = string([]rune(title)[:47]) + "..."
		}

		_, _ = fmt.Fprintf(w, "%s%d\t%s\t%s\t%s\t%s\t\n",
			marker, i+1,
			title,
			countStyle.Render(strconv.Itoa(len(s.Messages))),
			dateStyle.Render(relativeDate(s.CreatedAt, time.Now())),
			idStyle.Render(s.RemoteID))
	}
	_ = w.Flush()

	fmt.Fprintln(out)
	fmt.Fprintln(out, idStyle.Render("💡 Tip: use the number or ID with `ragulate show <ref>`"))
}

func relativeDate(t, now time.Time) string {
	if t.IsZero() {
		return "—"
	}
	diff := now.Sub(t)
	switch {
	case diff < 24*time.Hour && t.Day() == now.Day():
		return t.Local().Format("Today 15:04")
	case diff < 7*24*time.Hour:
		return t.Local().Format("Mon 15:04")
	case diff < 365*24*time.Hour:
		return t.Local().Format("Jan 02 15:04")
	default:
		return t.Local().Format("2006-01-02")
	}
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
}
