package export

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/iksnae/ragulate/internal"
)

// JSONLExporter exports sessions in JSONL format (one message per line)
type JSONLExporter struct{}

type jsonlLine struct {
	SessionID   string     `json:"session_id"`
	MessageID   string     `json:"message_id,omitempty"`
	Role        string     `json:"role"`
	Content     string     `json:"content"`
	Author      string     `json:"author,omitempty"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
	Attachments []string   `json:"attachments,omitempty"`
}

// Export exports a session to JSONL format
func (e *JSONLExporter) Export(session *internal.Session, w io.Writer) error {
	enc := json.NewEncoder(w)
	sessionID := session.RemoteID
	if sessionID == "" {
		sessionID = session.LocalID
	}

	for _, msg := range session.Messages {
		line := jsonlLine{
			SessionID: sessionID,
			MessageID: msg.ID,
			Role:      string(msg.Role),
			Content:   msg.Content,
			Author:    msg.Author,
		}
		if !msg.Timestamp.IsZero() {
			ts := msg.Timestamp.UTC()
			line.Timestamp = &ts
		}
		for _, a := range msg.Attachments {
			line.Attachments = append(line.Attachments, a.Name)
		}
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("failed to encode message: %w", err)
		}
	}
	return nil
}

// Extension returns the file extension for this format
func (e *JSONLExporter) Extension() string {
	return "jsonl"
}
