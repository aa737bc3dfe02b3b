package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/iksnae/ragulate/internal"
	"github.com/spf13/cobra"
)

var (
	chatSession string
	chatAttach  []string
	chatNew     bool
)

const chatHelp = `Commands:
  /new               start a new conversation
  /list              list conversations
  /select <n|id>     switch to a conversation
  /rename <title>    rename the current conversation (local only)
  /delete [n|id]     remove a conversation locally (default: current)
  /attach <path>     attach a file to the next message
  /history           show the current conversation
  /help              show this help
  /quit              leave
Anything else is sent as a message.`

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Chat with the RAG backend",
	Long: `Start an interactive chat. With a message argument, send it to the
selected conversation, print the answer and exit.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		mgr, _, err := login(ctx, cmd)
		if err != nil {
			return err
		}

		r := &chatREPL{mgr: mgr, out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr()}
		switch {
		case chatNew:
			mgr.CreateSession()
		case chatSession != "":
			s, err := resolveSession(mgr, chatSession)
			if err != nil {
				return err
			}
			if _, err := mgr.SelectSession(s.LocalID); err != nil {
				return err
			}
		}
		for _, path := range chatAttach {
			if err := r.attach(path); err != nil {
				return err
			}
		}

		if len(args) == 1 {
			return r.send(ctx, args[0])
		}

		fmt.Fprintln(r.out, chatHelp)
		r.printActive()
		return r.loop(ctx, inputReader(cmd))
	},
}

type chatREPL struct {
	mgr     *internal.SessionManager
	out     io.Writer
	errOut  io.Writer
	pending []internal.File
}

type lineReader interface {
	ReadString(delim byte) (string, error)
}

func (r *chatREPL) loop(ctx context.Context, in lineReader) error {
	for {
		fmt.Fprint(r.out, "> ")
		line, err := in.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			quit, cmdErr := r.handle(ctx, line)
			if cmdErr != nil {
				internal.PrintError(r.errOut, cmdErr.Error())
			}
			if quit {
				return nil
			}
		}
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(r.out)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// handle runs one input line and reports whether the loop should stop
func (r *chatREPL) handle(ctx context.Context, line string) (bool, error) {
	if !strings.HasPrefix(line, "/") {
		return false, r.send(ctx, line)
	}

	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(r.out, chatHelp)
	case "/new":
		r.mgr.CreateSession()
		r.printActive()
	case "/list":
		displaySessions(r.out, r.mgr.Sessions(), activeLocalID(r.mgr))
	case "/select":
		s, err := resolveSession(r.mgr, arg)
		if err != nil {
			return false, err
		}
		if _, err := r.mgr.SelectSession(s.LocalID); err != nil {
			return false, err
		}
		r.printActive()
	case "/rename":
		s, ok := r.mgr.Active()
		if !ok {
			return false, internal.ErrSessionNotFound
		}
		if err := r.mgr.RenameSession(s.LocalID, arg); err != nil {
			return false, err
		}
		r.printActive()
	case "/delete":
		target, ok := r.mgr.Active()
		if arg != "" {
			s, err := resolveSession(r.mgr, arg)
			if err != nil {
				return false, err
			}
			target, ok = s, true
		}
		if !ok {
			return false, internal.ErrSessionNotFound
		}
		if err := r.mgr.DeleteSession(target.LocalID); err != nil {
			return false, err
		}
		internal.PrintInfo(r.out, fmt.Sprintf("Removed %q locally", target.Title))
		r.printActive()
	case "/attach":
		if arg == "" {
			return false, errors.New("usage: /attach <path>")
		}
		return false, r.attach(arg)
	case "/history":
		s, ok := r.mgr.Active()
		if !ok {
			return false, internal.ErrSessionNotFound
		}
		displaySessionHeader(r.out, &s)
		for i, msg := range s.Messages {
			displayMessage(r.out, i+1, msg, len(s.Messages))
		}
	default:
		return false, fmt.Errorf("unknown command %s (try /help)", name)
	}
	return false, nil
}

func (r *chatREPL) attach(path string) error {
	f, err := internal.FileFromPath(path)
	if err != nil {
		return err
	}
	r.pending = append(r.pending, f)
	internal.PrintInfo(r.out, fmt.Sprintf("Attached %s (%d bytes)", f.Name, f.Size))
	return nil
}

func (r *chatREPL) send(ctx context.Context, text string) error {
	s, ok := r.mgr.Active()
	if !ok {
		s = r.mgr.CreateSession()
	}

	attachments := r.pending
	reply, err := internal.ShowProgressResult(ctx, "Thinking", func(ctx context.Context) (internal.Message, error) {
		return r.mgr.SendMessage(ctx, s.LocalID, text, attachments...)
	})
	if err != nil {
		return err
	}
	r.pending = nil

	fmt.Fprintln(r.out, assistantMessageStyle.Render("🤖 Assistant"))
	fmt.Fprintln(r.out, messageContentStyle.Render(wrapText(reply.Content, 80)))
	return nil
}

func (r *chatREPL) printActive() {
	s, ok := r.mgr.Active()
	if !ok {
		return
	}
	pos := ""
	for i, other := range r.mgr.Sessions() {
		if other.LocalID == s.LocalID {
			pos = "#" + strconv.Itoa(i+1) + " "
			break
		}
	}
	internal.PrintInfo(r.out, fmt.Sprintf("Current conversation: %s%s (%d message(s))", pos, s.Title, len(s.Messages)))
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&chatSession, "session", "s", "", "Conversation to continue (number or ID)")
	chatCmd.Flags().StringArrayVarP(&chatAttach, "attach", "a", nil, "File to attach to the first message (repeatable)")
	chatCmd.Flags().BoolVar(&chatNew, "new", false, "Start a new conversation")
}
