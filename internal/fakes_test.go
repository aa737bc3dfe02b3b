package internal

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// fakeBackend implements every capability in memory
type fakeBackend struct {
	mu sync.Mutex

	authErr     error
	registerErr error
	sessionIDs  []string
	listErr     error
	details     map[string][]RemoteMessage
	detailErrs  map[string]error
	answer      string
	sendErr     error
	insertErrs  map[string]error
	documents   []Document

	// When set, ListSessions defers to listHook with the 1-based call number.
	listHook func(ctx context.Context, call int32) ([]string, error)
	// Detail fetches for a gated session signal detailStarted and wait for the gate or ctx.
	detailGates   map[string]chan struct{}
	detailStarted chan string
	// When set, SendMessage signals sendStarted and waits for sendGate or ctx.
	sendGate    chan struct{}
	sendStarted chan struct{}
	// When set, InsertDocument signals insertStarted and waits for insertGate or ctx.
	insertGate    chan struct{}
	insertStarted chan struct{}

	authCalls   atomic.Int32
	listCalls   atomic.Int32
	detailCalls atomic.Int32
	insertCalls atomic.Int32
	docCalls    atomic.Int32
	sendReqs    []AnswerRequest
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		details:    make(map[string][]RemoteMessage),
		detailErrs: make(map[string]error),
		insertErrs: make(map[string]error),
		answer:     "42",
	}
}

func (f *fakeBackend) Authenticate(ctx context.Context, creds Credentials) (*AuthResult, error) {
	f.authCalls.Add(1)
	if f.authErr != nil {
		return nil, f.authErr
	}
	return &AuthResult{Username: creds.Username, SessionIDs: f.sessionIDs}, nil
}

func (f *fakeBackend) Register(ctx context.Context, creds Credentials) error {
	return f.registerErr
}

func (f *fakeBackend) ListSessions(ctx context.Context, username string) ([]string, error) {
	call := f.listCalls.Add(1)
	if f.listHook != nil {
		return f.listHook(ctx, call)
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.sessionIDs, nil
}

func (f *fakeBackend) GetSessionDetail(ctx context.Context, sessionID string) ([]RemoteMessage, error) {
	f.detailCalls.Add(1)
	f.mu.Lock()
	gate, started := f.detailGates[sessionID], f.detailStarted
	f.mu.Unlock()

	if gate != nil {
		if started != nil {
			started <- sessionID
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.detailErrs[sessionID]; err != nil {
		return nil, err
	}
	return f.details[sessionID], nil
}

func (f *fakeBackend) SendMessage(ctx context.Context, req AnswerRequest) (string, error) {
	f.mu.Lock()
	f.sendReqs = append(f.sendReqs, req)
	gate, started := f.sendGate, f.sendStarted
	f.mu.Unlock()

	if gate != nil {
		if started != nil {
			started <- struct{}{}
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.sendErr != nil {
		return "", f.sendErr
	}
	return f.answer, nil
}

func (f *fakeBackend) InsertDocument(ctx context.Context, file File) error {
	f.insertCalls.Add(1)
	f.mu.Lock()
	gate, started := f.insertGate, f.insertStarted
	err := f.insertErrs[file.Name]
	f.mu.Unlock()

	if gate != nil {
		if started != nil {
			started <- struct{}{}
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeBackend) ListDocuments(ctx context.Context) ([]Document, error) {
	f.docCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.documents, nil
}

func (f *fakeBackend) requests() []AnswerRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]AnswerRequest, len(f.sendReqs))
	copy(out, f.sendReqs)
	return out
}

var errBoom = errors.New("boom")

func newTestManager(f *fakeBackend, opts ...SessionManagerOption) *SessionManager {
	return NewSessionManager(f, f, f, opts...)
}
