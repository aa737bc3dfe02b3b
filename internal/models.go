package internal

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Role identifies the author side of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DefaultSessionTitle is used for sessions with no user-supplied title
const DefaultSessionTitle = "New Chat"

// FallbackAnswer is appended as the assistant reply whenever a send fails
const FallbackAnswer = "Sorry, I could not get an answer from the server. Please try again."

// Session is one conversation thread
type Session struct {
	LocalID   string    `json:"local_id" yaml:"local_id"`
	RemoteID  string    `json:"remote_id,omitempty" yaml:"remote_id,omitempty"`
	Title     string    `json:"title" yaml:"title"`
	Messages  []Message `json:"messages" yaml:"messages"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Message is a single turn in a session
type Message struct {
	ID          string    `json:"id" yaml:"id"`
	Role        Role      `json:"role" yaml:"role"`
	Content     string    `json:"content" yaml:"content"`
	Timestamp   time.Time `json:"timestamp" yaml:"timestamp"`
	Author      string    `json:"author,omitempty" yaml:"author,omitempty"`
	Attachments []File    `json:"attachments,omitempty" yaml:"attachments,omitempty"`
}

// clone returns a deep copy so callers never alias manager-owned slices
func (s *Session) clone() Session {
	c := *s
	c.Messages = make([]Message, len(s.Messages))
	copy(c.Messages, s.Messages)
	return c
}

// File is a local file handle plus the metadata needed to upload it
type File struct {
	Name    string    `json:"name" yaml:"name"`
	Size    int64     `json:"size" yaml:"size"`
	ModTime time.Time `json:"mod_time" yaml:"mod_time"`
	Path    string    `json:"path,omitempty" yaml:"path,omitempty"`

	open func() (io.ReadCloser, error)
}

// FileFromPath stats a file on disk and returns a handle for it
func FileFromPath(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("%s is a directory", path)
	}
	return File{
		Name:    filepath.Base(path),
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Path:    path,
	}, nil
}

// NewFile builds a handle over an arbitrary opener, for content that is not on disk
func NewFile(name string, size int64, modTime time.Time, open func() (io.ReadCloser, error)) File {
	return File{Name: name, Size: size, ModTime: modTime, open: open}
}

// Open returns a reader over the file content
func (f File) Open() (io.ReadCloser, error) {
	if f.open != nil {
		return f.open()
	}
	if f.Path == "" {
		return nil, fmt.Errorf("file %s has no content source", f.Name)
	}
	return os.Open(f.Path)
}

// UploadStatus is the lifecycle state of a staged file
type UploadStatus string

const (
	UploadReady   UploadStatus = "ready"
	UploadSending UploadStatus = "sending"
	UploadSent    UploadStatus = "sent"
	UploadFailed  UploadStatus = "error"
)

// Submittable reports whether a submit may start from this status
func (s UploadStatus) Submittable() bool {
	return s == UploadReady || s == UploadFailed
}

// PendingUpload is a locally staged file awaiting or past submission
type PendingUpload struct {
	ID          string       `json:"id"`
	File        File         `json:"file"`
	Status      UploadStatus `json:"status"`
	ErrorDetail string       `json:"error_detail,omitempty"`
}

// Document is an entry of the remote knowledge store listing
type Document struct {
	DocID          string `json:"doc_id"`
	ContentSummary string `json:"content_summary"`
	Status         string `json:"status"`
	ContentLength  int    `json:"content_length"`
	ChunksCount    int    `json:"chunks_count"`
	CreatedAt      string `json:"created_at"`
}

// Document ingestion states reported by the knowledge store
const (
	DocStatusPending    = "pending"
	DocStatusProcessing = "processing"
	DocStatusProcessed  = "processed"
	DocStatusFailed     = "failed"
)

// CountByStatus tallies documents per ingestion status
func CountByStatus(docs []Document) map[string]int {
	counts := make(map[string]int)
	for _, d := range docs {
		status := d.Status
		if status == "" {
			status = "unknown"
		}
		counts[status]++
	}
	return counts
}

// Credentials identify a user against the auth service
type Credentials struct {
	Username string `json:"username" validate:"required,max=128"`
	Password string `json:"password" validate:"required"`
}

// AuthResult is returned by a successful authentication
type AuthResult struct {
	Username   string
	SessionIDs []string
}
