package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/iksnae/ragulate/internal"
)

// MarkdownExporter exports sessions in Markdown format
type MarkdownExporter struct{}

// Export exports a session to Markdown format
func (e *MarkdownExporter) Export(session *internal.Session, w io.Writer) error {
	title := session.Title
	if title == "" {
		title = internal.DefaultSessionTitle
	}
	_, _ = fmt.Fprintf(w, "# %s\n\n", title)

	if session.RemoteID != "" {
		_, _ = fmt.Fprintf(w, "**Session:** %s  \n", session.RemoteID)
	}
	if !session.CreatedAt.IsZero() {
		_, _ = fmt.Fprintf(w, "**Created:** %s  \n", session.CreatedAt.UTC().Format(time.RFC3339))
	}
	_, _ = fmt.Fprintf(w, "**Messages:** %d\n\n", len(session.Messages))

	_, _ = fmt.Fprintf(w, "---\n\n")

	for i, msg := range session.Messages {
		speaker := string(msg.Role)
		if msg.Author != "" && msg.Role == internal.RoleUser {
			speaker = msg.Author
		}
		timestamp := ""
		if !msg.Timestamp.IsZero() {
			timestamp = fmt.Sprintf(" (%s)", msg.Timestamp.UTC().Format(time.RFC3339))
		}

		_, _ = fmt.Fprintf(w, "**%s:**%s\n\n%s\n\n", speaker, timestamp, escapeMarkdown(msg.Content))

		for _, a := range msg.Attachments {
			_, _ = fmt.Fprintf(w, "- 📎 %s (%d bytes)\n", a.Name, a.Size)
		}
		if len(msg.Attachments) > 0 {
			_, _ = fmt.Fprintln(w)
		}

		if i < len(session.Messages)-1 {
			_, _ = fmt.Fprintf(w, "---\n\n")
		}
	}
	return nil
}

// escapeMarkdown escapes emphasis markers outside fenced code blocks
func escapeMarkdown(text string) string {
	lines := strings.Split(text, "\n")
	result := make([]string, 0, len(lines))
	inCodeBlock := false

	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "```"):
			inCodeBlock = !inCodeBlock
		case !inCodeBlock:
			line = strings.ReplaceAll(line, "**", "\\*\\*")
			line = strings.ReplaceAll(line, "__", "\\_\\_")
		}
		result = append(result, line)
	}
	return strings.Join(result, "\n")
}

// Extension returns the file extension for this format
func (e *MarkdownExporter) Extension() string {
	return "md"
}
