package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// WriteTempFile writes content to name inside a fresh temp dir and returns its path
func WriteTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}

// WriteConfig writes a YAML config file pointing at serverURL and returns its path
func WriteConfig(t *testing.T, serverURL string) string {
	t.Helper()
	return WriteTempFile(t, "config.yaml", "server_url: "+serverURL+"\nrequest_timeout: 5s\n")
}

// JSONUnmarshal unmarshals JSON for testing
func JSONUnmarshal(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("Failed to unmarshal JSON: %v", err)
	}
}
