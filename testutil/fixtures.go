package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// DetailRecord is one message as served by get-session-detail
type DetailRecord struct {
	ID        string `json:"_id,omitempty"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
	UserName  string `json:"user_name,omitempty"`
}

// DocumentRecord is one entry of the list-documents response
type DocumentRecord struct {
	DocID          string `json:"doc_id"`
	ContentSummary string `json:"content_summary"`
	Status         string `json:"status"`
	ContentLength  int    `json:"content_length"`
	ChunksCount    int    `json:"chunks_count"`
	CreatedAt      string `json:"created_at"`
}

// ChatRequest captures what the fake server received on /chat
type ChatRequest struct {
	Message     string
	SessionID   string
	UserName    string
	Attachments []string
	Multipart   bool
}

// FakeServer is an in-process stand-in for the RAG backend. Exported fields
// may be changed between requests; access is guarded by Lock/Unlock.
type FakeServer struct {
	*httptest.Server

	mu sync.Mutex

	Users          map[string]string         // username -> password
	SessionsByUser map[string][]string       // username -> remote session ids
	Details        map[string][]DetailRecord // session id -> history
	DetailStatus   map[string]int            // session id -> forced status
	Answer         string
	ChatStatus     int
	Documents      []DocumentRecord
	UploadStatus   map[string]int    // file name -> forced status
	UploadBody     map[string]string // file name -> response body
	Options        map[string]map[string]interface{}
	Graph          string

	ChatRequests []ChatRequest
	Uploaded     []string
	DetailHits   int
	DocumentHits int
}

// NewFakeServer starts a FakeServer and closes it when the test ends
func NewFakeServer(t *testing.T) *FakeServer {
	t.Helper()
	fs := &FakeServer{
		Users:          map[string]string{},
		SessionsByUser: map[string][]string{},
		Details:        map[string][]DetailRecord{},
		DetailStatus:   map[string]int{},
		Answer:         "This is the answer.",
		UploadStatus:   map[string]int{},
		UploadBody:     map[string]string{},
		Options:        map[string]map[string]interface{}{},
		Graph:          "graph TD;\n  A-->B;\n",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", fs.handleLogin)
	mux.HandleFunc("POST /register", fs.handleRegister)
	mux.HandleFunc("GET /sessions", fs.handleListSessions)
	mux.HandleFunc("GET /sessions/{id}", fs.handleDetail)
	mux.HandleFunc("POST /chat", fs.handleChat)
	mux.HandleFunc("POST /documents/upload", fs.handleUpload)
	mux.HandleFunc("GET /documents", fs.handleDocuments)
	mux.HandleFunc("GET /options", fs.handleGetOptions)
	mux.HandleFunc("POST /options", fs.handleSetOptions)
	mux.HandleFunc("GET /graph", fs.handleGraph)

	fs.Server = httptest.NewServer(mux)
	t.Cleanup(fs.Close)
	return fs
}

// Lock guards direct field access from tests
func (fs *FakeServer) Lock() { fs.mu.Lock() }

// Unlock releases Lock
func (fs *FakeServer) Unlock() { fs.mu.Unlock() }

// AddUser registers a user with the given remote sessions
func (fs *FakeServer) AddUser(username, password string, sessionIDs ...string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.Users[username] = password
	fs.SessionsByUser[username] = sessionIDs
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (fs *FakeServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "bad request"})
		return
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if pw, ok := fs.Users[c.Username]; !ok || pw != c.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid username or password"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": nonNil(fs.SessionsByUser[c.Username])})
}

func (fs *FakeServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "bad request"})
		return
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, ok := fs.Users[c.Username]; ok {
		writeJSON(w, http.StatusConflict, map[string]string{"detail": "User already exists"})
		return
	}
	fs.Users[c.Username] = c.Password
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (fs *FakeServer) handleListSessions(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	ids := fs.SessionsByUser[r.URL.Query().Get("username")]
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": nonNil(ids)})
}

func (fs *FakeServer) handleDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.DetailHits++
	if status, ok := fs.DetailStatus[id]; ok {
		writeJSON(w, status, map[string]string{"detail": "detail failure"})
		return
	}
	records := fs.Details[id]
	if records == nil {
		records = []DetailRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (fs *FakeServer) handleChat(w http.ResponseWriter, r *http.Request) {
	req := ChatRequest{}
	if err := r.ParseMultipartForm(32 << 20); err == nil {
		req.Multipart = true
		req.Message = r.FormValue("message")
		req.SessionID = r.FormValue("sessionId")
		req.UserName = r.FormValue("userName")
		for _, fh := range r.MultipartForm.File["files"] {
			req.Attachments = append(req.Attachments, fh.Filename)
		}
	} else {
		var body struct {
			Message   string `json:"message"`
			SessionID string `json:"sessionId"`
			UserName  string `json:"userName"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "bad request"})
			return
		}
		req.Message, req.SessionID, req.UserName = body.Message, body.SessionID, body.UserName
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.ChatRequests = append(fs.ChatRequests, req)
	if fs.ChatStatus != 0 && fs.ChatStatus != http.StatusOK {
		writeJSON(w, fs.ChatStatus, map[string]string{"detail": "generation failed"})
		return
	}
	if req.SessionID != "" {
		fs.Details[req.SessionID] = append(fs.Details[req.SessionID],
			DetailRecord{Role: "user", Content: req.Message, UserName: req.UserName},
			DetailRecord{Role: "assistant", Content: fs.Answer},
		)
		ids := fs.SessionsByUser[req.UserName]
		if !contains(ids, req.SessionID) {
			fs.SessionsByUser[req.UserName] = append(ids, req.SessionID)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": fs.Answer})
}

func (fs *FakeServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file", http.StatusBadRequest)
		return
	}
	defer file.Close()
	content, _ := io.ReadAll(file)

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if status, ok := fs.UploadStatus[header.Filename]; ok && status != http.StatusOK {
		http.Error(w, fs.UploadBody[header.Filename], status)
		return
	}
	if body, ok := fs.UploadBody[header.Filename]; ok {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
		return
	}
	fs.Uploaded = append(fs.Uploaded, header.Filename)
	fs.Documents = append(fs.Documents, DocumentRecord{
		DocID:          "doc-" + header.Filename,
		ContentSummary: string(content),
		Status:         "processed",
		ContentLength:  len(content),
		ChunksCount:    1,
		CreatedAt:      "2025-03-01T10:00:00Z",
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"inserted": 1, "skipped": 0, "errors": []interface{}{}, "processed": 1, "files": []string{header.Filename},
	})
}

func (fs *FakeServer) handleDocuments(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.DocumentHits++
	docs := fs.Documents
	if docs == nil {
		docs = []DocumentRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"documents": docs})
}

func (fs *FakeServer) handleGetOptions(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	opts := fs.Options[r.URL.Query().Get("username")]
	if opts == nil {
		opts = map[string]interface{}{}
	}
	writeJSON(w, http.StatusOK, opts)
}

func (fs *FakeServer) handleSetOptions(w http.ResponseWriter, r *http.Request) {
	var opts map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "bad request"})
		return
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	user := r.URL.Query().Get("username")
	if fs.Options[user] == nil {
		fs.Options[user] = map[string]interface{}{}
	}
	for k, v := range opts {
		fs.Options[user][k] = v
	}
	writeJSON(w, http.StatusOK, fs.Options[user])
}

func (fs *FakeServer) handleGraph(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	w.Header().Set("Content-Type", "text/plain")
	_, _ = io.WriteString(w, fs.Graph)
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
