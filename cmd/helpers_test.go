package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/iksnae/ragulate/testutil"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type result struct {
	stdout string
	stderr string
	err    error
}

// resetFlags restores every flag of c and its children to its default so
// one Execute does not leak into the next.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// run executes the root command against fs with the given stdin
func run(t *testing.T, fs *testutil.FakeServer, stdin string, args ...string) result {
	t.Helper()
	resetFlags(rootCmd)
	t.Setenv("RAGULATE_PASSWORD", "")
	t.Setenv("RAGULATE_USERNAME", "")

	if fs != nil {
		args = append([]string{"--config", testutil.WriteConfig(t, fs.URL)}, args...)
	}

	var stdout, stderr bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)

	err := rootCmd.Execute()
	return result{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

// newBackend starts a fake server with alice and two remote conversations
func newBackend(t *testing.T) *testutil.FakeServer {
	t.Helper()
	fs := testutil.NewFakeServer(t)
	fs.AddUser("alice", "pw", "s1", "s2")
	fs.Lock()
	fs.Details["s1"] = []testutil.DetailRecord{
		{ID: "m1", Role: "user", Content: "What is RAG?", Timestamp: "2025-03-01T10:00:00Z", UserName: "alice"},
		{ID: "m2", Role: "assistant", Content: "Retrieval augmented generation.", Timestamp: "2025-03-01T10:00:05Z"},
	}
	fs.Details["s2"] = []testutil.DetailRecord{
		{ID: "m3", Role: "user", Content: "Summarize the report", Timestamp: "2025-03-02T09:00:00Z", UserName: "alice"},
		{ID: "m4", Role: "assistant", Content: "The report covers Q1.", Timestamp: "2025-03-02T09:00:03Z"},
	}
	fs.Unlock()
	return fs
}
