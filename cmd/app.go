package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/iksnae/ragulate/internal"
	"github.com/spf13/cobra"
)

// credentials resolves the username and password from flags, environment,
// config and finally a prompt on the command's input.
func credentials(cmd *cobra.Command) (internal.Credentials, error) {
	creds := internal.Credentials{Username: username, Password: password}
	if creds.Username == "" {
		creds.Username = cfg.Username
	}
	if creds.Password == "" {
		creds.Password = os.Getenv("RAGULATE_PASSWORD")
	}

	in := inputReader(cmd)
	if creds.Username == "" {
		u, err := prompt(cmd.ErrOrStderr(), in, "Username: ")
		if err != nil {
			return creds, err
		}
		creds.Username = u
	}
	if creds.Password == "" {
		p, err := prompt(cmd.ErrOrStderr(), in, "Password: ")
		if err != nil {
			return creds, err
		}
		creds.Password = p
	}
	return creds, nil
}

// input buffers the command's stdin once so prompts and the chat loop do
// not steal lines from each other.
var input struct {
	src io.Reader
	r   *bufio.Reader
}

func inputReader(cmd *cobra.Command) *bufio.Reader {
	src := cmd.InOrStdin()
	if input.r == nil || input.src != src {
		input.src = src
		input.r = bufio.NewReader(src)
	}
	return input.r
}

func prompt(w io.Writer, in *bufio.Reader, label string) (string, error) {
	fmt.Fprint(w, label)
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func newManager(client *internal.Client) *internal.SessionManager {
	return internal.NewSessionManager(client, client, client,
		internal.WithHydrateConcurrency(cfg.HydrateConcurrency))
}

// login authenticates and hydrates a fresh manager. A hydration failure is
// reported as a warning; the manager is still usable for new sessions.
func login(ctx context.Context, cmd *cobra.Command) (*internal.SessionManager, *internal.Client, error) {
	creds, err := credentials(cmd)
	if err != nil {
		return nil, nil, err
	}

	client := internal.NewClient(cfg)
	mgr := newManager(client)

	err = internal.ShowProgress(ctx, "Loading conversations", func(ctx context.Context) error {
		_, err := mgr.Authenticate(ctx, creds)
		return err
	})
	var hydrationErr *internal.HydrationError
	switch {
	case errors.As(err, &hydrationErr):
		internal.PrintWarning(cmd.ErrOrStderr(), fmt.Sprintf("Could not load conversations: %v", hydrationErr.Err))
	case err != nil:
		return nil, nil, err
	}
	return mgr, client, nil
}

// resolveSession finds a session by 1-based list position, remote id or local id
func resolveSession(mgr *internal.SessionManager, ref string) (internal.Session, error) {
	sessions := mgr.Sessions()
	var n int
	if _, err := fmt.Sscanf(ref, "%d", &n); err == nil && fmt.Sprint(n) == ref {
		if n < 1 || n > len(sessions) {
			return internal.Session{}, fmt.Errorf("no session #%d (have %d)", n, len(sessions))
		}
		return sessions[n-1], nil
	}
	if s, ok := mgr.FindByRemoteID(ref); ok {
		return s, nil
	}
	if s, ok := mgr.Session(ref); ok {
		return s, nil
	}
	return internal.Session{}, fmt.Errorf("%w: %s", internal.ErrSessionNotFound, ref)
}

func requireUsername() (string, error) {
	u := username
	if u == "" {
		u = cfg.Username
	}
	if u == "" {
		return "", fmt.Errorf("%w: pass --user or run `ragulate login`", internal.ErrNotAuthenticated)
	}
	return u, nil
}
