package internal

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func hydratedManager(t *testing.T, f *fakeBackend, username string) *SessionManager {
	t.Helper()
	m := newTestManager(f)
	_, err := m.Authenticate(context.Background(), Credentials{Username: username, Password: "secret"})
	require.NoError(t, err)
	return m
}

func TestAuthenticate_HydratesAndSelectsLastRemoteSession(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newFakeBackend()
	f.sessionIDs = []string{"s1", "s2"}
	f.details["s2"] = []RemoteMessage{
		{ID: "a", Role: "user", Content: "hi", UserName: "alice"},
		{ID: "b", Role: "assistant", Content: "hello"},
	}

	m := newTestManager(f)
	assert.Equal(t, StateUninitialized, m.State())

	result, err := m.Authenticate(context.Background(), Credentials{Username: "alice", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "alice", result.Username)
	assert.Equal(t, StateReady, m.State())
	assert.Equal(t, "alice", m.Username())

	active, ok := m.Active()
	require.True(t, ok)
	assert.Equal(t, "s2", active.RemoteID)
	assert.Len(t, active.Messages, 2)
	assert.Len(t, m.Sessions(), 2)
}

func TestAuthenticate_FailureLeavesStateEmpty(t *testing.T) {
	f := newFakeBackend()
	f.authErr = &RemoteError{Capability: "authenticate", Status: 401, Body: "Invalid username or password"}
	f.sessionIDs = []string{"s1"}

	m := newTestManager(f)
	_, err := m.Authenticate(context.Background(), Credentials{Username: "alice", Password: "wrong"})

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "Invalid username or password", authErr.Error())
	assert.Equal(t, StateUninitialized, m.State())
	assert.Empty(t, m.Sessions())
	assert.Empty(t, m.Username())
	_, ok := m.Active()
	assert.False(t, ok)
	assert.Zero(t, f.listCalls.Load(), "no hydration after a failed login")
}

func TestAuthenticate_ValidatesCredentials(t *testing.T) {
	f := newFakeBackend()
	m := newTestManager(f)

	_, err := m.Authenticate(context.Background(), Credentials{Username: "", Password: "pw"})
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Zero(t, f.authCalls.Load(), "invalid credentials must not reach the backend")
}

func TestRegister(t *testing.T) {
	t.Run("success authenticates", func(t *testing.T) {
		f := newFakeBackend()
		f.sessionIDs = []string{"s1"}
		m := newTestManager(f)

		_, err := m.Register(context.Background(), Credentials{Username: "bob", Password: "pw"})
		require.NoError(t, err)
		assert.Equal(t, int32(1), f.authCalls.Load())
		assert.Len(t, m.Sessions(), 1)
	})

	t.Run("failure surfaces message", func(t *testing.T) {
		f := newFakeBackend()
		f.registerErr = &RemoteError{Capability: "register", Status: 409, Body: "User already exists"}
		m := newTestManager(f)

		_, err := m.Register(context.Background(), Credentials{Username: "bob", Password: "pw"})
		require.EqualError(t, err, "User already exists")
		assert.Zero(t, f.authCalls.Load())
	})
}

func TestHydrateAll_IsolatesDetailFailures(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newFakeBackend()
	f.sessionIDs = []string{"s1", "s2", "s3", "s4"}
	for _, id := range f.sessionIDs {
		f.details[id] = []RemoteMessage{{Role: "user", Content: "q " + id}, {Role: "assistant", Content: "a " + id}}
	}
	f.detailErrs["s2"] = errBoom

	m := newTestManager(f, WithHydrateConcurrency(2))
	require.NoError(t, m.HydrateAll(context.Background(), "alice"))

	assert.Equal(t, int32(4), f.detailCalls.Load())
	sessions := m.Sessions()
	require.Len(t, sessions, 4)

	byRemote := make(map[string]Session)
	seenLocal := make(map[string]bool)
	for _, s := range sessions {
		byRemote[s.RemoteID] = s
		assert.False(t, seenLocal[s.LocalID], "duplicate local id %s", s.LocalID)
		seenLocal[s.LocalID] = true
	}
	for _, id := range f.sessionIDs {
		require.Contains(t, byRemote, id)
	}
	assert.Empty(t, byRemote["s2"].Messages)
	assert.Len(t, byRemote["s3"].Messages, 2)

	active, ok := m.Active()
	require.True(t, ok)
	assert.Equal(t, "s4", active.RemoteID)
	assert.Equal(t, "s4", sessions[0].RemoteID, "most recent session is at the head")
}

func TestHydrateAll_PreservesOrderAndContent(t *testing.T) {
	f := newFakeBackend()
	f.sessionIDs = []string{"s1"}
	var records []RemoteMessage
	for i := 0; i < 7; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		records = append(records, RemoteMessage{Role: role, Content: fmt.Sprintf("message %d", i)})
	}
	f.details["s1"] = records

	m := newTestManager(f)
	require.NoError(t, m.HydrateAll(context.Background(), "alice"))

	active, ok := m.Active()
	require.True(t, ok)
	require.Len(t, active.Messages, len(records))
	for i, rec := range records {
		assert.Equal(t, Role(rec.Role), active.Messages[i].Role)
		assert.Equal(t, rec.Content, active.Messages[i].Content)
	}
}

func TestHydrateAll_ListFailureKeepsPreviousSessions(t *testing.T) {
	f := newFakeBackend()
	f.sessionIDs = []string{"s1"}
	m := hydratedManager(t, f, "alice")

	f.listErr = errBoom
	err := m.HydrateAll(context.Background(), "alice")

	var hydErr *HydrationError
	require.ErrorAs(t, err, &hydErr)
	assert.ErrorIs(t, err, errBoom)
	assert.Len(t, m.Sessions(), 1)
	assert.Equal(t, StateReady, m.State())
}

func TestHydrateAll_FirstListFailureReturnsToUninitialized(t *testing.T) {
	f := newFakeBackend()
	f.listErr = errBoom
	m := newTestManager(f)

	err := m.HydrateAll(context.Background(), "alice")
	var hydErr *HydrationError
	require.ErrorAs(t, err, &hydErr)
	assert.Equal(t, StateUninitialized, m.State())
	assert.Empty(t, m.Sessions())
}

func TestHydrateAll_LateOlderHydrationDoesNotOverwriteNewer(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newFakeBackend()
	f.listHook = func(ctx context.Context, call int32) ([]string, error) {
		if call == 1 {
			return []string{"old"}, nil
		}
		return []string{"new"}, nil
	}
	gate := make(chan struct{})
	f.detailGates = map[string]chan struct{}{"old": gate}
	f.detailStarted = make(chan string, 1)
	m := newTestManager(f)

	older := make(chan error, 1)
	go func() { older <- m.HydrateAll(context.Background(), "alice") }()
	require.Equal(t, "old", <-f.detailStarted)

	require.NoError(t, m.HydrateAll(context.Background(), "alice"))
	assert.Equal(t, StateHydrating, m.State(), "the older call is still pending")

	close(gate)
	assert.ErrorIs(t, <-older, ErrHydrationSuperseded)

	sessions := m.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "new", sessions[0].RemoteID)
	active, ok := m.Active()
	require.True(t, ok)
	assert.Equal(t, "new", active.RemoteID)
	assert.Equal(t, StateReady, m.State())
}

func TestHydrateAll_NewerListFailureDoesNotStrandOlder(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newFakeBackend()
	listStarted := make(chan struct{}, 1)
	listGate := make(chan struct{})
	f.listHook = func(ctx context.Context, call int32) ([]string, error) {
		if call == 1 {
			listStarted <- struct{}{}
			select {
			case <-listGate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return []string{"s1"}, nil
		}
		return nil, errBoom
	}
	m := newTestManager(f)

	older := make(chan error, 1)
	go func() { older <- m.HydrateAll(context.Background(), "alice") }()
	<-listStarted

	err := m.HydrateAll(context.Background(), "alice")
	var hydErr *HydrationError
	require.ErrorAs(t, err, &hydErr)
	assert.Equal(t, StateHydrating, m.State(), "the older call is still pending")

	close(listGate)
	require.NoError(t, <-older, "a failed newer list does not supersede")

	assert.Equal(t, StateReady, m.State())
	sessions := m.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "s1", sessions[0].RemoteID)
}

func TestHydrateAll_CreateDuringFailedHydrationStaysReady(t *testing.T) {
	f := newFakeBackend()
	listStarted := make(chan struct{}, 1)
	listGate := make(chan struct{})
	f.listHook = func(ctx context.Context, call int32) ([]string, error) {
		listStarted <- struct{}{}
		<-listGate
		return nil, errBoom
	}
	m := newTestManager(f)

	done := make(chan error, 1)
	go func() { done <- m.HydrateAll(context.Background(), "alice") }()
	<-listStarted

	s := m.CreateSession()
	close(listGate)
	require.Error(t, <-done)

	assert.Equal(t, StateReady, m.State())
	_, ok := m.Session(s.LocalID)
	assert.True(t, ok)
}

func TestHydrateAll_ReplacesRatherThanMerges(t *testing.T) {
	f := newFakeBackend()
	f.sessionIDs = []string{"s1"}
	f.details["s1"] = []RemoteMessage{{Role: "user", Content: "old"}}
	m := hydratedManager(t, f, "alice")

	local := m.CreateSession()
	_, err := m.SendMessage(context.Background(), local.LocalID, "hello")
	require.NoError(t, err)

	f.details["s1"] = []RemoteMessage{{Role: "user", Content: "new"}, {Role: "assistant", Content: "reply"}}
	require.NoError(t, m.HydrateAll(context.Background(), "alice"))

	sessions := m.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "new", sessions[0].Messages[0].Content)
	_, ok := m.Session(local.LocalID)
	assert.False(t, ok, "local-only session is dropped by a full replacement")
}

func TestCreateSession(t *testing.T) {
	f := newFakeBackend()
	f.sessionIDs = []string{"s1"}
	m := hydratedManager(t, f, "alice")

	before := f.listCalls.Load()
	s := m.CreateSession()

	assert.NotEmpty(t, s.LocalID)
	assert.NotEmpty(t, s.RemoteID, "bucket token is generated eagerly")
	assert.Equal(t, DefaultSessionTitle, s.Title)
	assert.Empty(t, s.Messages)
	assert.False(t, s.CreatedAt.IsZero())
	assert.Equal(t, before, f.listCalls.Load(), "no network call on create")

	sessions := m.Sessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, s.LocalID, sessions[0].LocalID, "new session goes to the head")

	active, ok := m.Active()
	require.True(t, ok)
	assert.Equal(t, s.LocalID, active.LocalID)

	other := m.CreateSession()
	assert.NotEqual(t, s.RemoteID, other.RemoteID)
	assert.NotEqual(t, s.LocalID, other.LocalID)
}

func TestSendMessage_Success(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newFakeBackend()
	f.answer = "Article 5 lists the processing principles."
	m := hydratedManager(t, f, "alice")
	s := m.CreateSession()

	reply, err := m.SendMessage(context.Background(), s.LocalID, "What is article 5?")
	require.NoError(t, err)
	assert.Equal(t, RoleAssistant, reply.Role)
	assert.Equal(t, f.answer, reply.Content)

	got, _ := m.Session(s.LocalID)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, RoleUser, got.Messages[0].Role)
	assert.Equal(t, "What is article 5?", got.Messages[0].Content)
	assert.Equal(t, "alice", got.Messages[0].Author)
	assert.Equal(t, f.answer, got.Messages[1].Content)

	reqs := f.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, s.RemoteID, reqs[0].SessionID)
	assert.Equal(t, "alice", reqs[0].UserName)
	assert.False(t, m.Sending(s.LocalID))
}

func TestSendMessage_FailureAppendsFallback(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "network error", err: &RemoteError{Capability: "send-message", Err: errors.New("connection refused")}},
		{name: "server error", err: &RemoteError{Capability: "send-message", Status: 500, Body: "internal"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeBackend()
			f.sendErr = tt.err
			m := hydratedManager(t, f, "alice")
			s := m.CreateSession()

			reply, err := m.SendMessage(context.Background(), s.LocalID, "hello")
			require.NoError(t, err, "send failures are never surfaced")
			assert.Equal(t, FallbackAnswer, reply.Content)

			got, _ := m.Session(s.LocalID)
			require.Len(t, got.Messages, 2)
			assert.Equal(t, RoleUser, got.Messages[0].Role)
			assert.Equal(t, RoleAssistant, got.Messages[1].Role)
			assert.Equal(t, FallbackAnswer, got.Messages[1].Content)
			assert.False(t, m.Sending(s.LocalID), "never stuck awaiting a response")
		})
	}
}

func TestSendMessage_EmptyIsNoop(t *testing.T) {
	f := newFakeBackend()
	m := hydratedManager(t, f, "alice")
	s := m.CreateSession()

	_, err := m.SendMessage(context.Background(), s.LocalID, "")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	_, err = m.SendMessage(context.Background(), s.LocalID, "   \n")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	got, _ := m.Session(s.LocalID)
	assert.Empty(t, got.Messages)
	assert.Empty(t, f.requests())
}

func TestSendMessage_AttachmentsOnly(t *testing.T) {
	f := newFakeBackend()
	m := hydratedManager(t, f, "alice")
	s := m.CreateSession()

	att := File{Name: "notes.txt", Size: 3}
	_, err := m.SendMessage(context.Background(), s.LocalID, "", att)
	require.NoError(t, err)

	got, _ := m.Session(s.LocalID)
	require.Len(t, got.Messages, 2)
	require.Len(t, got.Messages[0].Attachments, 1)
	assert.Equal(t, "notes.txt", got.Messages[0].Attachments[0].Name)
	require.Len(t, f.requests(), 1)
	assert.Len(t, f.requests()[0].Attachments, 1)
}

func TestSendMessage_KeepsTextVerbatim(t *testing.T) {
	f := newFakeBackend()
	m := hydratedManager(t, f, "alice")
	s := m.CreateSession()

	text := "  - first\n  - second\n\n```go\nfmt.Println(1)\n```\n"
	_, err := m.SendMessage(context.Background(), s.LocalID, text)
	require.NoError(t, err)

	got, _ := m.Session(s.LocalID)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, text, got.Messages[0].Content)
	require.Len(t, f.requests(), 1)
	assert.Equal(t, text, f.requests()[0].Message)
}

func TestSendMessage_UnknownSession(t *testing.T) {
	m := newTestManager(newFakeBackend())
	_, err := m.SendMessage(context.Background(), "session-missing", "hello")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSendMessage_SingleFlightPerSession(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newFakeBackend()
	m := hydratedManager(t, f, "alice")
	s := m.CreateSession()
	other := m.CreateSession()

	f.sendGate = make(chan struct{})
	f.sendStarted = make(chan struct{}, 2)

	done := make(chan error, 1)
	go func() {
		_, err := m.SendMessage(context.Background(), s.LocalID, "first")
		done <- err
	}()
	<-f.sendStarted
	assert.True(t, m.Sending(s.LocalID))

	_, err := m.SendMessage(context.Background(), s.LocalID, "second")
	assert.ErrorIs(t, err, ErrSendInFlight)

	otherDone := make(chan error, 1)
	go func() {
		_, err := m.SendMessage(context.Background(), other.LocalID, "independent")
		otherDone <- err
	}()
	<-f.sendStarted

	close(f.sendGate)
	require.NoError(t, <-done)
	require.NoError(t, <-otherDone)

	got, _ := m.Session(s.LocalID)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "first", got.Messages[0].Content)
	assert.Equal(t, RoleAssistant, got.Messages[1].Role)
}

func TestSendMessage_DeletedWhileInFlightIsNotResurrected(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newFakeBackend()
	m := hydratedManager(t, f, "alice")
	keep := m.CreateSession()
	doomed := m.CreateSession()

	f.sendGate = make(chan struct{})
	f.sendStarted = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() {
		_, err := m.SendMessage(context.Background(), doomed.LocalID, "hello")
		done <- err
	}()
	<-f.sendStarted

	require.NoError(t, m.DeleteSession(doomed.LocalID))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrSessionNotFound)
	case <-time.After(5 * time.Second):
		t.Fatal("delete should cancel the in-flight send")
	}
	close(f.sendGate)

	_, ok := m.Session(doomed.LocalID)
	assert.False(t, ok)
	assert.Len(t, m.Sessions(), 1)
	active, _ := m.Active()
	assert.Equal(t, keep.LocalID, active.LocalID)
}

func TestDeleteSession(t *testing.T) {
	t.Run("active with others remaining selects first remaining", func(t *testing.T) {
		m := hydratedManager(t, newFakeBackend(), "alice")
		a := m.CreateSession()
		b := m.CreateSession()
		c := m.CreateSession() // list is now c, b, a

		_, err := m.SelectSession(b.LocalID)
		require.NoError(t, err)
		require.NoError(t, m.DeleteSession(b.LocalID))

		active, ok := m.Active()
		require.True(t, ok)
		assert.Equal(t, c.LocalID, active.LocalID)
		assert.Len(t, m.Sessions(), 2)
		_ = a
	})

	t.Run("inactive keeps active pointer", func(t *testing.T) {
		m := hydratedManager(t, newFakeBackend(), "alice")
		a := m.CreateSession()
		b := m.CreateSession()

		require.NoError(t, m.DeleteSession(a.LocalID))
		active, _ := m.Active()
		assert.Equal(t, b.LocalID, active.LocalID)
	})

	t.Run("only session is replaced by a fresh one", func(t *testing.T) {
		f := newFakeBackend()
		f.sessionIDs = []string{"s1"}
		m := hydratedManager(t, f, "alice")
		only, _ := m.Active()

		require.NoError(t, m.DeleteSession(only.LocalID))

		sessions := m.Sessions()
		require.Len(t, sessions, 1)
		assert.NotEqual(t, only.LocalID, sessions[0].LocalID)
		assert.Empty(t, sessions[0].Messages)
		active, ok := m.Active()
		require.True(t, ok)
		assert.Equal(t, sessions[0].LocalID, active.LocalID)
	})

	t.Run("unknown id", func(t *testing.T) {
		m := newTestManager(newFakeBackend())
		assert.ErrorIs(t, m.DeleteSession("nope"), ErrSessionNotFound)
	})
}

func TestCreateDeleteSequencesKeepExactlyOneActive(t *testing.T) {
	m := hydratedManager(t, newFakeBackend(), "alice")
	m.CreateSession()

	ops := []string{"create", "create", "delete-active", "delete-last", "create", "delete-active", "delete-active", "delete-active"}
	for i, op := range ops {
		switch op {
		case "create":
			m.CreateSession()
		case "delete-active":
			active, ok := m.Active()
			require.True(t, ok)
			require.NoError(t, m.DeleteSession(active.LocalID))
		case "delete-last":
			sessions := m.Sessions()
			require.NoError(t, m.DeleteSession(sessions[len(sessions)-1].LocalID))
		}

		sessions := m.Sessions()
		require.NotEmpty(t, sessions, "step %d (%s)", i, op)
		active, ok := m.Active()
		require.True(t, ok, "step %d (%s)", i, op)
		found := 0
		for _, s := range sessions {
			if s.LocalID == active.LocalID {
				found++
			}
		}
		assert.Equal(t, 1, found, "step %d (%s)", i, op)
	}
}

func TestRenameSession(t *testing.T) {
	f := newFakeBackend()
	m := hydratedManager(t, f, "alice")
	s := m.CreateSession()

	require.NoError(t, m.RenameSession(s.LocalID, "GDPR questions"))
	got, _ := m.Session(s.LocalID)
	assert.Equal(t, "GDPR questions", got.Title)
	assert.Equal(t, s.RemoteID, got.RemoteID)

	require.NoError(t, m.RenameSession(s.LocalID, "  "))
	got, _ = m.Session(s.LocalID)
	assert.Equal(t, DefaultSessionTitle, got.Title)

	assert.ErrorIs(t, m.RenameSession("nope", "x"), ErrSessionNotFound)
	assert.Empty(t, f.requests(), "rename is local only")
}

func TestSelectSession_DoesNotRefetch(t *testing.T) {
	f := newFakeBackend()
	f.sessionIDs = []string{"s1", "s2"}
	f.details["s1"] = []RemoteMessage{{Role: "user", Content: "one"}}
	m := hydratedManager(t, f, "alice")

	target, ok := m.FindByRemoteID("s1")
	require.True(t, ok)
	calls := f.detailCalls.Load()

	selected, err := m.SelectSession(target.LocalID)
	require.NoError(t, err)
	assert.Equal(t, "one", selected.Messages[0].Content)
	assert.Equal(t, calls, f.detailCalls.Load())

	active, _ := m.Active()
	assert.Equal(t, target.LocalID, active.LocalID)

	_, err = m.SelectSession("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSnapshotsAreCopies(t *testing.T) {
	f := newFakeBackend()
	f.sessionIDs = []string{"s1"}
	f.details["s1"] = []RemoteMessage{{Role: "user", Content: "original"}}
	m := hydratedManager(t, f, "alice")

	sessions := m.Sessions()
	sessions[0].Messages[0].Content = "tampered"
	sessions[0].Title = "tampered"

	again := m.Sessions()
	assert.Equal(t, "original", again[0].Messages[0].Content)
	assert.NotEqual(t, "tampered", again[0].Title)
}

func TestManagerState_String(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "hydrating", StateHydrating.String())
	assert.Equal(t, "ready", StateReady.String())
}
