package internal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ManagerState is the lifecycle state of a SessionManager
type ManagerState int

const (
	StateUninitialized ManagerState = iota
	StateHydrating
	StateReady
)

func (s ManagerState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateHydrating:
		return "hydrating"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("ManagerState(%d)", int(s))
	}
}

// SessionManager owns the local mirror of a user's conversations. All
// mutation goes through its methods; the lock is never held across a remote
// call, so every settlement re-checks that its target still exists.
type SessionManager struct {
	auth    Authenticator
	source  SessionSource
	answers Answerer

	normalizer         *Normalizer
	hydrateConcurrency int
	now                func() time.Time

	mu         sync.Mutex
	state      ManagerState
	username   string
	sessions   []*Session // head is the most recent
	activeID   string
	inFlight   map[string]bool
	hydrateGen uint64

	// hydrating counts overlapping HydrateAll calls; restoreState is the
	// state to settle into once the last of them finishes.
	hydrating    int
	restoreState ManagerState

	sends *taskSet
}

// SessionManagerOption customizes a SessionManager
type SessionManagerOption func(*SessionManager)

// WithHydrateConcurrency caps the number of parallel detail fetches; 0 means unlimited
func WithHydrateConcurrency(n int) SessionManagerOption {
	return func(m *SessionManager) { m.hydrateConcurrency = n }
}

// WithClock overrides the clock used for local timestamps
func WithClock(now func() time.Time) SessionManagerOption {
	return func(m *SessionManager) {
		m.now = now
		m.normalizer.now = now
	}
}

// NewSessionManager creates a new SessionManager
func NewSessionManager(auth Authenticator, source SessionSource, answers Answerer, opts ...SessionManagerOption) *SessionManager {
	m := &SessionManager{
		auth:       auth,
		source:     source,
		answers:    answers,
		normalizer: NewNormalizer(),
		now:        time.Now,
		inFlight:   make(map[string]bool),
		sends:      newTaskSet(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Authenticate logs in and hydrates the session list. On failure the
// manager state is left untouched and an *AuthError is returned.
func (m *SessionManager) Authenticate(ctx context.Context, creds Credentials) (*AuthResult, error) {
	if err := validate.Struct(creds); err != nil {
		return nil, &AuthError{Username: creds.Username, Message: "Please enter a username and password.", Err: err}
	}

	result, err := m.auth.Authenticate(ctx, creds)
	if err != nil {
		LogWarn("Authentication failed for %s: %v", creds.Username, err)
		return nil, &AuthError{Username: creds.Username, Message: authMessage(err, "Login failed"), Err: err}
	}
	if result.Username == "" {
		result.Username = creds.Username
	}

	m.mu.Lock()
	m.username = result.Username
	m.mu.Unlock()

	if err := m.HydrateAll(ctx, result.Username); err != nil {
		return result, err
	}
	return result, nil
}

// Register creates an account and then authenticates with it
func (m *SessionManager) Register(ctx context.Context, creds Credentials) (*AuthResult, error) {
	if err := validate.Struct(creds); err != nil {
		return nil, &AuthError{Username: creds.Username, Message: "Please enter a username and password.", Err: err}
	}
	if err := m.auth.Register(ctx, creds); err != nil {
		LogWarn("Registration failed for %s: %v", creds.Username, err)
		return nil, &AuthError{Username: creds.Username, Message: authMessage(err, "Registration failed"), Err: err}
	}
	return m.Authenticate(ctx, creds)
}

func authMessage(err error, fallback string) string {
	var remote *RemoteError
	if errors.As(err, &remote) && remote.Body != "" {
		return remote.Body
	}
	return fallback + ": " + errorDetail(err)
}

// HydrateAll replaces the local session set with the remote one. Detail
// fetches run concurrently and fail independently; a failed fetch yields a
// session with no messages. The session for the last remote id becomes active.
//
// Overlapping calls are ordered by when their list arrives: a hydration whose
// list fails never supersedes another, and one overtaken by a newer applied
// set returns ErrHydrationSuperseded without touching state.
func (m *SessionManager) HydrateAll(ctx context.Context, username string) error {
	m.mu.Lock()
	if m.hydrating == 0 {
		m.restoreState = m.state
	}
	m.hydrating++
	m.state = StateHydrating
	m.mu.Unlock()

	ids, err := m.source.ListSessions(ctx, username)
	if err != nil {
		LogWarn("Failed to list sessions for %s: %v", username, err)
		m.mu.Lock()
		m.finishHydrationLocked()
		m.mu.Unlock()
		return &HydrationError{Username: username, Err: err}
	}

	m.mu.Lock()
	m.hydrateGen++
	gen := m.hydrateGen
	m.mu.Unlock()

	hydrated := make([]*Session, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	if m.hydrateConcurrency > 0 {
		g.SetLimit(m.hydrateConcurrency)
	}
	for i, id := range ids {
		g.Go(func() error {
			records, err := m.source.GetSessionDetail(gctx, id)
			if err != nil {
				LogWarn("Failed to load session %s, keeping it empty: %v", id, err)
				records = nil
			}
			hydrated[i] = m.normalizer.NormalizeSession(id, records)
			return nil
		})
	}
	_ = g.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.finishHydrationLocked()

	if m.hydrateGen != gen {
		LogDebug("Discarding superseded hydration for %s", username)
		return ErrHydrationSuperseded
	}

	// Remote order is oldest first; local order keeps the most recent at the head.
	sessions := make([]*Session, 0, len(hydrated))
	for i := len(hydrated) - 1; i >= 0; i-- {
		sessions = append(sessions, hydrated[i])
	}

	m.sends.cancelAll()
	m.inFlight = make(map[string]bool)
	m.sessions = sessions
	m.username = username
	m.activeID = ""
	if len(sessions) > 0 {
		m.activeID = sessions[0].LocalID
	}
	m.restoreState = StateReady

	LogInfo("Hydrated %d session(s) for %s", len(sessions), username)
	return nil
}

// finishHydrationLocked leaves the hydrating state once no call is pending
func (m *SessionManager) finishHydrationLocked() {
	m.hydrating--
	if m.hydrating == 0 {
		m.state = m.restoreState
	}
}

// CreateSession starts a new, empty conversation and makes it active. No
// request is made; the bucket token becomes real on the first exchange.
func (m *SessionManager) CreateSession() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked().clone()
}

func (m *SessionManager) createLocked() *Session {
	s := &Session{
		LocalID:   newLocalID("session"),
		RemoteID:  NewBucketToken(),
		Title:     DefaultSessionTitle,
		Messages:  []Message{},
		CreatedAt: m.now(),
	}
	m.sessions = append([]*Session{s}, m.sessions...)
	m.activeID = s.LocalID
	if m.state == StateUninitialized {
		m.state = StateReady
	}
	if m.hydrating > 0 && m.restoreState == StateUninitialized {
		m.restoreState = StateReady
	}
	return s
}

// SendMessage appends the user message immediately, asks the backend for an
// answer and appends it. Backend failures are never returned: they resolve
// into FallbackAnswer so every user message gets a paired reply. The returned
// message is the assistant reply.
func (m *SessionManager) SendMessage(ctx context.Context, localID, text string, attachments ...File) (Message, error) {
	if strings.TrimSpace(text) == "" && len(attachments) == 0 {
		return Message{}, ErrEmptyMessage
	}

	m.mu.Lock()
	s := m.findLocked(localID)
	if s == nil {
		m.mu.Unlock()
		return Message{}, ErrSessionNotFound
	}
	if m.inFlight[localID] {
		m.mu.Unlock()
		return Message{}, ErrSendInFlight
	}

	userMsg := Message{
		ID:          newMessageID(),
		Role:        RoleUser,
		Content:     text,
		Timestamp:   m.now(),
		Author:      m.username,
		Attachments: attachments,
	}
	s.Messages = append(s.Messages, userMsg)
	m.inFlight[localID] = true
	req := AnswerRequest{
		Message:     text,
		SessionID:   s.RemoteID,
		UserName:    m.username,
		Attachments: attachments,
	}
	m.mu.Unlock()

	sendCtx, release := m.sends.start(ctx, localID)
	answer, err := m.answers.SendMessage(sendCtx, req)
	release()

	content := answer
	if err != nil {
		LogWarn("Send failed for session %s: %v", req.SessionID, err)
		content = FallbackAnswer
	}
	reply := Message{
		ID:        newMessageID(),
		Role:      RoleAssistant,
		Content:   content,
		Timestamp: m.now(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// The session may have been deleted or replaced by a hydration meanwhile.
	s = m.findLocked(localID)
	if s == nil {
		LogDebug("Dropping reply for vanished session %s", localID)
		return reply, ErrSessionNotFound
	}
	delete(m.inFlight, localID)
	s.Messages = append(s.Messages, reply)
	return reply, nil
}

// DeleteSession removes a session locally. The remote record is not deleted.
// If the active session is removed, the first remaining one becomes active,
// or a new session is created when none remain.
func (m *SessionManager) DeleteSession(localID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.indexLocked(localID)
	if idx < 0 {
		return ErrSessionNotFound
	}

	m.sends.cancel(localID)
	delete(m.inFlight, localID)
	m.sessions = append(m.sessions[:idx], m.sessions[idx+1:]...)

	if m.activeID != localID {
		return nil
	}
	if len(m.sessions) > 0 {
		m.activeID = m.sessions[0].LocalID
		return nil
	}
	m.createLocked()
	return nil
}

// RenameSession changes the local title only
func (m *SessionManager) RenameSession(localID, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.findLocked(localID)
	if s == nil {
		return ErrSessionNotFound
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultSessionTitle
	}
	s.Title = title
	return nil
}

// SelectSession makes a resident session active without re-fetching it
func (m *SessionManager) SelectSession(localID string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.findLocked(localID)
	if s == nil {
		return Session{}, ErrSessionNotFound
	}
	m.activeID = localID
	return s.clone(), nil
}

// Sessions returns a snapshot of all sessions, most recent first
func (m *SessionManager) Sessions() []Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.clone())
	}
	return out
}

// Session returns a snapshot of one session
func (m *SessionManager) Session(localID string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.findLocked(localID)
	if s == nil {
		return Session{}, false
	}
	return s.clone(), true
}

// FindByRemoteID looks a session up by its remote bucket id
func (m *SessionManager) FindByRemoteID(remoteID string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sessions {
		if s.RemoteID == remoteID {
			return s.clone(), true
		}
	}
	return Session{}, false
}

// Active returns the active session, if any
func (m *SessionManager) Active() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.activeID == "" {
		return Session{}, false
	}
	s := m.findLocked(m.activeID)
	if s == nil {
		return Session{}, false
	}
	return s.clone(), true
}

// Sending reports whether the session is awaiting a response
func (m *SessionManager) Sending(localID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inFlight[localID]
}

// Username returns the authenticated user, or "" before hydration
func (m *SessionManager) Username() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.username
}

// State returns the manager lifecycle state
func (m *SessionManager) State() ManagerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *SessionManager) findLocked(localID string) *Session {
	if i := m.indexLocked(localID); i >= 0 {
		return m.sessions[i]
	}
	return nil
}

func (m *SessionManager) indexLocked(localID string) int {
	for i, s := range m.sessions {
		if s.LocalID == localID {
			return i
		}
	}
	return -1
}
