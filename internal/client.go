package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Authenticator is the auth capability
type Authenticator interface {
	Authenticate(ctx context.Context, creds Credentials) (*AuthResult, error)
	Register(ctx context.Context, creds Credentials) error
}

// SessionSource lists a user's remote sessions and fetches their history
type SessionSource interface {
	ListSessions(ctx context.Context, username string) ([]string, error)
	GetSessionDetail(ctx context.Context, sessionID string) ([]RemoteMessage, error)
}

// Answerer turns a message into an answer from the RAG backend
type Answerer interface {
	SendMessage(ctx context.Context, req AnswerRequest) (string, error)
}

// DocumentStore is the knowledge-store ingestion capability
type DocumentStore interface {
	InsertDocument(ctx context.Context, file File) error
	ListDocuments(ctx context.Context) ([]Document, error)
}

// AnswerRequest is the payload of a send-message call
type AnswerRequest struct {
	Message     string `json:"message"`
	SessionID   string `json:"sessionId"`
	UserName    string `json:"userName"`
	Attachments []File `json:"-"`
}

// InsertSummary is the ingestion report some backends return for an upload
type InsertSummary struct {
	Inserted  int           `json:"inserted"`
	Skipped   int           `json:"skipped"`
	Errors    []InsertIssue `json:"errors"`
	Processed int           `json:"processed"`
	Files     []string      `json:"files"`
}

// InsertIssue describes why a single file was not ingested
type InsertIssue struct {
	File    string `json:"file"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Client talks to the RAG backend over HTTP
type Client struct {
	baseURL       string
	endpoints     Endpoints
	httpClient    *http.Client
	uploadTimeout time.Duration
}

// NewClient creates a new Client from configuration
func NewClient(cfg *Config) *Client {
	return &Client{
		baseURL:       strings.TrimRight(cfg.ServerURL, "/"),
		endpoints:     cfg.Endpoints,
		httpClient:    &http.Client{Timeout: cfg.RequestTimeout},
		uploadTimeout: cfg.UploadTimeout,
	}
}

type credentialsResponse struct {
	Sessions []string `json:"sessions"`
}

// Authenticate implements Authenticator
func (c *Client) Authenticate(ctx context.Context, creds Credentials) (*AuthResult, error) {
	var resp credentialsResponse
	if err := c.doJSON(ctx, "authenticate", http.MethodPost, c.endpoints.Login, creds, &resp); err != nil {
		return nil, err
	}
	return &AuthResult{Username: creds.Username, SessionIDs: resp.Sessions}, nil
}

// Register implements Authenticator
func (c *Client) Register(ctx context.Context, creds Credentials) error {
	return c.doJSON(ctx, "register", http.MethodPost, c.endpoints.Register, creds, nil)
}

// ListSessions implements SessionSource
func (c *Client) ListSessions(ctx context.Context, username string) ([]string, error) {
	path := c.endpoints.Sessions + "?" + url.Values{"username": {username}}.Encode()
	var resp credentialsResponse
	if err := c.doJSON(ctx, "list-sessions", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// GetSessionDetail implements SessionSource
func (c *Client) GetSessionDetail(ctx context.Context, sessionID string) ([]RemoteMessage, error) {
	path := c.endpoints.Sessions + "/" + url.PathEscape(sessionID)
	var records []RemoteMessage
	if err := c.doJSON(ctx, "get-session-detail", http.MethodGet, path, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

type answerResponse struct {
	Answer string `json:"answer"`
}

// SendMessage implements Answerer. Requests with attachments go out as
// multipart/form-data, everything else as JSON.
func (c *Client) SendMessage(ctx context.Context, req AnswerRequest) (string, error) {
	var resp answerResponse
	if len(req.Attachments) == 0 {
		if err := c.doJSON(ctx, "send-message", http.MethodPost, c.endpoints.Chat, req, &resp); err != nil {
			return "", err
		}
		return resp.Answer, nil
	}

	fields := map[string]string{
		"message":   req.Message,
		"sessionId": req.SessionID,
		"userName":  req.UserName,
	}
	body, contentType, err := buildMultipart(fields, "files", req.Attachments)
	if err != nil {
		return "", &RemoteError{Capability: "send-message", Err: err}
	}
	data, err := c.do(ctx, "send-message", http.MethodPost, c.endpoints.Chat, body, contentType)
	if err != nil {
		return "", err
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", &RemoteError{Capability: "send-message", Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return resp.Answer, nil
}

// InsertDocument implements DocumentStore
func (c *Client) InsertDocument(ctx context.Context, file File) error {
	body, contentType, err := buildMultipart(nil, "file", []File{file})
	if err != nil {
		return &RemoteError{Capability: "insert-document", Err: err}
	}

	if c.uploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.uploadTimeout)
		defer cancel()
	}

	data, err := c.do(ctx, "insert-document", http.MethodPost, c.endpoints.DocumentUpload, body, contentType)
	if err != nil {
		return err
	}

	// A 2xx may still carry a per-file rejection in an ingestion summary.
	var summary InsertSummary
	if json.Unmarshal(data, &summary) == nil && summary.Inserted == 0 && len(summary.Errors) > 0 {
		issue := summary.Errors[0]
		detail := issue.Error
		if issue.Details != "" {
			detail = issue.Error + ": " + issue.Details
		}
		return &RemoteError{Capability: "insert-document", Status: http.StatusOK, Body: detail}
	}
	return nil
}

type documentsResponse struct {
	Documents []Document `json:"documents"`
}

// ListDocuments implements DocumentStore
func (c *Client) ListDocuments(ctx context.Context) ([]Document, error) {
	var resp documentsResponse
	if err := c.doJSON(ctx, "list-documents", http.MethodGet, c.endpoints.Documents, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Documents, nil
}

// GetOptions fetches the user's option bag
func (c *Client) GetOptions(ctx context.Context, username string) (map[string]interface{}, error) {
	path := c.endpoints.Options + "?" + url.Values{"username": {username}}.Encode()
	opts := make(map[string]interface{})
	if err := c.doJSON(ctx, "get-options", http.MethodGet, path, nil, &opts); err != nil {
		return nil, err
	}
	return opts, nil
}

// SetOptions stores the user's option bag and returns the stored version
func (c *Client) SetOptions(ctx context.Context, username string, opts map[string]interface{}) (map[string]interface{}, error) {
	path := c.endpoints.Options + "?" + url.Values{"username": {username}}.Encode()
	stored := make(map[string]interface{})
	if err := c.doJSON(ctx, "set-options", http.MethodPost, path, opts, &stored); err != nil {
		return nil, err
	}
	return stored, nil
}

// GetGraph returns the raw graph-description document
func (c *Client) GetGraph(ctx context.Context) ([]byte, error) {
	return c.do(ctx, "get-graph", http.MethodGet, c.endpoints.Graph, nil, "")
}

func (c *Client) doJSON(ctx context.Context, capability, method, path string, in, out interface{}) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &RemoteError{Capability: capability, Err: fmt.Errorf("failed to encode request: %w", err)}
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	data, err := c.do(ctx, capability, method, path, body, contentType)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &RemoteError{Capability: capability, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

func (c *Client) do(ctx context.Context, capability, method, path string, body io.Reader, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, &RemoteError{Capability: capability, Err: err}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	LogDebug("%s %s", method, req.URL.Redacted())
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &RemoteError{Capability: capability, Err: err}
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &RemoteError{Capability: capability, Status: res.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &RemoteError{
			Capability: capability,
			Status:     res.StatusCode,
			Body:       extractErrorText(data),
			Err:        fmt.Errorf("unexpected status %s", res.Status),
		}
	}
	return data, nil
}

// extractErrorText pulls a message out of common JSON error envelopes and
// falls back to the raw body.
func extractErrorText(data []byte) string {
	var envelope map[string]interface{}
	if err := json.Unmarshal(data, &envelope); err == nil {
		for _, key := range []string{"detail", "error", "message"} {
			if s, ok := envelope[key].(string); ok && s != "" {
				return s
			}
		}
	}
	text := strings.TrimSpace(string(data))
	if len(text) > 500 {
		text = text[:500] + "..."
	}
	return text
}

func buildMultipart(fields map[string]string, fileField string, files []File) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}

	for _, f := range files {
		part, err := w.CreateFormFile(fileField, f.Name)
		if err != nil {
			return nil, "", err
		}
		rc, err := f.Open()
		if err != nil {
			return nil, "", fmt.Errorf("failed to open %s: %w", f.Name, err)
		}
		_, err = io.Copy(part, rc)
		_ = rc.Close()
		if err != nil {
			return nil, "", fmt.Errorf("failed to read %s: %w", f.Name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
