package internal

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated is returned by operations that need a username
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrSessionNotFound is returned when a local session id is unknown
	ErrSessionNotFound = errors.New("session not found")
	// ErrEmptyMessage is returned when a send has neither text nor attachments
	ErrEmptyMessage = errors.New("message is empty")
	// ErrSendInFlight is returned when a session already awaits a response
	ErrSendInFlight = errors.New("a message is already being sent for this session")
	// ErrHydrationSuperseded is returned by a hydration overtaken by a newer one
	ErrHydrationSuperseded = errors.New("hydration superseded by a newer one")
	// ErrUploadNotFound is returned when an upload id is unknown
	ErrUploadNotFound = errors.New("upload not found")
	// ErrNotSubmittable is returned when submit is called outside ready/error
	ErrNotSubmittable = errors.New("upload is not in a submittable state")
)

// RemoteError represents a failed call to a backend capability. Connection
// failures and non-success statuses are both reported this way.
type RemoteError struct {
	Capability string // "authenticate", "send-message", ...
	Status     int    // 0 for connection-level failures
	Body       string
	Err        error
}

func (e *RemoteError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("remote error [%s]: %v", e.Capability, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("remote error [%s]: status %d: %s", e.Capability, e.Status, e.Body)
	}
	return fmt.Sprintf("remote error [%s]: status %d", e.Capability, e.Status)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Detail returns the most useful human-readable text for the failure
func (e *RemoteError) Detail() string {
	if e.Body != "" {
		return e.Body
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("status %d", e.Status)
}

// AuthError is surfaced verbatim to the user on a failed login or registration
type AuthError struct {
	Username string
	Message  string
	Err      error
}

func (e *AuthError) Error() string {
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// HydrationError represents a failure to fetch the remote session list
type HydrationError struct {
	Username string
	Err      error
}

func (e *HydrationError) Error() string {
	return fmt.Sprintf("hydration error [%s]: %v", e.Username, e.Err)
}

func (e *HydrationError) Unwrap() error {
	return e.Err
}

// UploadError represents a rejected or failed document submission
type UploadError struct {
	UploadID string
	FileName string
	Detail   string
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload error [%s]: %s", e.FileName, e.Detail)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// ExportError represents errors during export
type ExportError struct {
	Format string
	Path   string
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export error [%s] %s: %v", e.Format, e.Path, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// errorDetail extracts display text from any failure
func errorDetail(err error) string {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Detail()
	}
	return err.Error()
}
