package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/ragulate/internal"
	"github.com/spf13/cobra"
)

var (
	limit int
	since string
)

var (
	sessionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("212")).
				Padding(0, 1).
				MarginBottom(1)

	sessionMetaStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("243")).
				MarginBottom(1)

	userMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39")).
				Bold(true).
				Padding(0, 1)

	assistantMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("135")).
				Bold(true).
				Padding(0, 1)

	messageContentStyle = lipgloss.NewStyle().
				Padding(0, 2).
				MarginBottom(1)

	timestampStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)
)

var showCmd = &cobra.Command{
	Use:   "show <ref>",
	Short: "Show messages of a conversation",
	Long: `Display the messages of one conversation. <ref> is the number shown by
'ragulate sessions' or the conversation ID.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var sinceTime time.Time
		if since != "" {
			t, err := time.Parse(time.RFC3339, since)
			if err != nil {
				return fmt.Errorf("invalid --since timestamp format (expected RFC3339): %w", err)
			}
			sinceTime = t
		}

		mgr, _, err := login(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		session, err := resolveSession(mgr, args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		displaySessionHeader(out, &session)

		messages := session.Messages
		if !sinceTime.IsZero() {
			filtered := make([]internal.Message, 0, len(messages))
			for _, msg := range messages {
				if !msg.Timestamp.Before(sinceTime) {
					filtered = append(filtered, msg)
				}
			}
			messages = filtered
		}

		total := len(messages)
		if limit > 0 && limit < total {
			messages = messages[:limit]
		}
		for i, msg := range messages {
			displayMessage(out, i+1, msg, total)
		}

		if limit > 0 && limit < total {
			fmt.Fprintln(out)
			fmt.Fprintln(out, lipgloss.NewStyle().
				Foreground(lipgloss.Color("243")).
				Italic(true).
				Render(fmt.Sprintf("... (%d more message(s))", total-limit)))
		}
		return nil
	},
}

func displaySessionHeader(out io.Writer, session *internal.Session) {
	fmt.Fprintln(out, sessionHeaderStyle.Render(fmt.Sprintf("💬 %s", session.Title)))

	var metaParts []string
	if !session.CreatedAt.IsZero() {
		metaParts = append(metaParts, fmt.Sprintf("Created: %s", session.CreatedAt.Local().Format("2006-01-02 15:04")))
	}
	metaParts = append(metaParts, fmt.Sprintf("Messages: %d", len(session.Messages)))
	if session.RemoteID != "" {
		metaParts = append(metaParts, fmt.Sprintf("ID: %s", session.RemoteID))
	}
	fmt.Fprintln(out, sessionMetaStyle.Render(strings.Join(metaParts, " • ")))
	fmt.Fprintln(out)
}

func displayMessage(out io.Writer, index int, msg internal.Message, total int) {
	var label string
	var style lipgloss.Style
	switch msg.Role {
	case internal.RoleUser:
		style = userMessageStyle
		label = "👤 User"
		if msg.Author != "" {
			label = "👤 " + msg.Author
		}
	default:
		style = assistantMessageStyle
		label = "🤖 Assistant"
	}

	header := style.Render(label) + " " + timestampStyle.Render(fmt.Sprintf("[%d/%d]", index, total))
	if !msg.Timestamp.IsZero() {
		header += " " + timestampStyle.Render(msg.Timestamp.Local().Format("15:04:05"))
	}
	fmt.Fprintln(out, header)

	content := strings.TrimSpace(msg.Content)
	if content != "" {
		fmt.Fprintln(out, messageContentStyle.Render(wrapText(content, 80)))
	} else {
		fmt.Fprintln(out, messageContentStyle.Foreground(lipgloss.Color("240")).Render("(empty message)"))
	}
	for _, a := range msg.Attachments {
		fmt.Fprintln(out, timestampStyle.Render(fmt.Sprintf("   📎 %s", a.Name)))
	}
	fmt.Fprintln(out)
}

func wrapText(text string, width int) string {
	lines := strings.Split(text, "\n")
	var wrapped []string

	for _, line := range lines {
		if len(line) <= width {
			wrapped = append(wrapped, line)
			continue
		}

		current := ""
		for _, word := range strings.Fields(line) {
			switch {
			case current == "":
				current = word
			case len(current)+len(word)+1 > width:
				wrapped = append(wrapped, current)
				current = word
			default:
				current += " " + word
			}
		}
		if current != "" {
			wrapped = append(wrapped, current)
		}
	}
	return strings.Join(wrapped, "\n")
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().IntVarP(&limit, "limit", "n", 0, "Limit number of messages to show")
	showCmd.Flags().StringVar(&since, "since", "", "Show messages since timestamp (RFC3339)")
}
