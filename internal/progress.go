package internal

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	progressStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// ProgressStep represents a single step in a multi-step process
type ProgressStep struct {
	Message string
	Fn      func(ctx context.Context) error
}

// ShowProgress runs fn while drawing a spinner on stderr. Off a terminal it
// logs the message and runs fn without decoration.
func ShowProgress(ctx context.Context, message string, fn func(ctx context.Context) error) error {
	if !isTerminal(os.Stderr) {
		LogInfo("%s", message)
		return fn(ctx)
	}
	return spin(ctx, os.Stderr, message, fn)
}

// ShowProgressResult is ShowProgress for work that yields a value. The value
// only reaches the caller through a channel once fn has finished, so an fn
// abandoned after ctx ends never shares memory with the caller.
func ShowProgressResult[T any](ctx context.Context, message string, fn func(ctx context.Context) (T, error)) (T, error) {
	run, results := collect(fn)
	if err := ShowProgress(ctx, message, run); err != nil {
		var zero T
		return zero, err
	}
	return <-results, nil
}

// collect adapts fn to the error-only form. The buffered channel receives
// the value exactly when the adapted func returns nil.
func collect[T any](fn func(ctx context.Context) (T, error)) (func(ctx context.Context) error, <-chan T) {
	results := make(chan T, 1)
	return func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		results <- v
		return nil
	}, results
}

// ShowProgressWithSteps runs steps in order and stops at the first failure
func ShowProgressWithSteps(ctx context.Context, steps []ProgressStep) error {
	for i, step := range steps {
		msg := fmt.Sprintf("[%d/%d] %s", i+1, len(steps), step.Message)
		if err := ShowProgress(ctx, msg, step.Fn); err != nil {
			return fmt.Errorf("%s: %w", step.Message, err)
		}
	}
	return nil
}

// spin redraws the spinner until fn returns or ctx is done. When ctx ends
// first, fn keeps its own copy of ctx and is expected to return promptly.
func spin(ctx context.Context, w io.Writer, message string, fn func(ctx context.Context) error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn(ctx)
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for i := 0; ; i++ {
		select {
		case err := <-done:
			if err != nil {
				fmt.Fprintf(w, "\r%s %s\n", errorStyle.Render("✗"), message)
				return err
			}
			fmt.Fprintf(w, "\r%s %s\n", successStyle.Render("✓"), message)
			return nil
		case <-ctx.Done():
			fmt.Fprintf(w, "\r%s %s\n", warningStyle.Render("…"), message)
			return ctx.Err()
		case <-ticker.C:
			fmt.Fprintf(w, "\r%s %s", progressStyle.Render(spinnerFrames[i%len(spinnerFrames)]), message)
		}
	}
}

// isTerminal checks if the writer is a terminal
func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		stat, err := f.Stat()
		if err != nil {
			return false
		}
		return (stat.Mode() & os.ModeCharDevice) != 0
	}
	return false
}

// PrintSuccess prints a success message
func PrintSuccess(w io.Writer, message string) {
	if isTerminal(w) {
		fmt.Fprintf(w, "%s %s\n", successStyle.Render("✓"), message)
	} else {
		fmt.Fprintln(w, message)
	}
}

// PrintError prints an error message
func PrintError(w io.Writer, message string) {
	if isTerminal(w) {
		fmt.Fprintf(w, "%s %s\n", errorStyle.Render("✗"), message)
	} else {
		fmt.Fprintf(w, "ERROR: %s\n", message)
	}
}

// PrintInfo prints an info message
func PrintInfo(w io.Writer, message string) {
	if isTerminal(w) {
		fmt.Fprintf(w, "%s %s\n", progressStyle.Render("ℹ"), message)
	} else {
		fmt.Fprintln(w, message)
	}
}

// PrintWarning prints a warning message
func PrintWarning(w io.Writer, message string) {
	if isTerminal(w) {
		fmt.Fprintf(w, "%s %s\n", warningStyle.Render("⚠"), message)
	} else {
		fmt.Fprintf(w, "WARNING: %s\n", message)
	}
}

// StatusBadge renders an upload or document status with a matching color
func StatusBadge(status string) string {
	switch status {
	case string(UploadSent), DocStatusProcessed:
		return successStyle.Render(status)
	case string(UploadFailed), DocStatusFailed:
		return errorStyle.Render(status)
	case string(UploadSending), DocStatusProcessing, DocStatusPending:
		return warningStyle.Render(status)
	default:
		return progressStyle.Render(status)
	}
}
