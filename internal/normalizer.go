package internal

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// RemoteMessage is one record of a get-session-detail response
type RemoteMessage struct {
	ID        string     `json:"_id,omitempty"`
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	Timestamp RemoteTime `json:"timestamp"`
	UserName  string     `json:"user_name,omitempty"`
}

// RemoteTime accepts the timestamp shapes the backend has been seen to emit:
// RFC3339 strings, numeric strings and bare numbers (seconds or milliseconds).
type RemoteTime struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler
func (rt *RemoteTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		rt.Time = time.Time{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		rt.Time = parseRemoteTimestamp(s)
		return nil
	}

	rt.Time = parseRemoteTimestamp(string(data))
	return nil
}

// MarshalJSON implements json.Marshaler
func (rt RemoteTime) MarshalJSON() ([]byte, error) {
	if rt.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(rt.Format(time.RFC3339Nano))
}

func parseRemoteTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}
	}
	// Anything past year ~2286 in seconds is really milliseconds.
	if f > 1e10 {
		return time.UnixMilli(int64(f))
	}
	sec := int64(f)
	return time.Unix(sec, int64((f-float64(sec))*float64(time.Second)))
}

// Normalizer converts remote session records into local sessions
type Normalizer struct {
	now func() time.Time
}

// NewNormalizer creates a new Normalizer
func NewNormalizer() *Normalizer {
	return &Normalizer{now: time.Now}
}

// NormalizeSession converts a remote detail list into a local Session with a
// fresh local id. Message order and content are preserved verbatim.
func (n *Normalizer) NormalizeSession(remoteID string, records []RemoteMessage) *Session {
	messages := make([]Message, 0, len(records))
	for _, rec := range records {
		messages = append(messages, n.NormalizeMessage(rec))
	}

	createdAt := n.now()
	if len(messages) > 0 && !messages[0].Timestamp.IsZero() {
		createdAt = messages[0].Timestamp
	}

	return &Session{
		LocalID:   newLocalID("session"),
		RemoteID:  remoteID,
		Title:     deriveTitle(messages),
		Messages:  messages,
		CreatedAt: createdAt,
	}
}

// NormalizeMessage converts a single remote record to a Message
func (n *Normalizer) NormalizeMessage(rec RemoteMessage) Message {
	id := rec.ID
	if id == "" {
		id = newMessageID()
	}

	role := normalizeRole(rec.Role)
	msg := Message{
		ID:        id,
		Role:      role,
		Content:   rec.Content,
		Timestamp: rec.Timestamp.Time,
	}
	if role == RoleUser {
		msg.Author = rec.UserName
	}
	return msg
}

// normalizeRole maps backend role names onto the two local roles
func normalizeRole(role string) Role {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "user", "human":
		return RoleUser
	default:
		return RoleAssistant
	}
}

const maxTitleLength = 40

// deriveTitle uses the first user message as a title, like most chat UIs do
func deriveTitle(messages []Message) string {
	for _, msg := range messages {
		if msg.Role != RoleUser {
			continue
		}
		title := strings.Join(strings.Fields(msg.Content), " ")
		if title == "" {
			continue
		}
		if runes := []rune(title); len(runes) > maxTitleLength {
			title = string(runes[:maxTitleLength-3]) + "..."
		}
		return title
	}
	return DefaultSessionTitle
}
