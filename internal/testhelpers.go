package internal

import (
	"time"
)

// CreateTestSession creates a hydrated-looking session with one exchange
func CreateTestSession(remoteID string) *Session {
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return &Session{
		LocalID:  newLocalID("session"),
		RemoteID: remoteID,
		Title:    "Hello, how are you?",
		Messages: []Message{
			{
				ID:        "msg-" + remoteID + "-1",
				Role:      RoleUser,
				Content:   "Hello, how are you?",
				Timestamp: created,
				Author:    "alice",
			},
			{
				ID:        "msg-" + remoteID + "-2",
				Role:      RoleAssistant,
				Content:   "I'm doing well, thank you!",
				Timestamp: created.Add(5 * time.Second),
			},
		},
		CreatedAt: created,
	}
}

// CreateTestSessionWithMessages creates a test session with custom messages
func CreateTestSessionWithMessages(remoteID string, messages []Message) *Session {
	s := &Session{
		LocalID:   newLocalID("session"),
		RemoteID:  remoteID,
		Title:     deriveTitle(messages),
		Messages:  messages,
		CreatedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	if len(messages) > 0 && !messages[0].Timestamp.IsZero() {
		s.CreatedAt = messages[0].Timestamp
	}
	return s
}

// CreateTestMessage creates a message with a fixed timestamp
func CreateTestMessage(role Role, content string) Message {
	return Message{
		ID:        newMessageID(),
		Role:      role,
		Content:   content,
		Timestamp: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}
