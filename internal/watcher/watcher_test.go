package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelevant(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/tmp/review_gate_trigger.json", true},
		{"/tmp/review_gate_response_abc.json", true},
		{"/tmp/mcp_response.json", true},
		{"/tmp/mcp_response_abc.json", true},
		{"/tmp/unrelated.json", false},
		{"/tmp/.review_gate_trigger.json.swp", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, relevant(tt.path), tt.path)
	}
}

func TestWatcherNudgesOnCreate(t *testing.T) {
	dir := t.TempDir()

	w, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "review_gate_response_x.json"), []byte("{}"), 0o644))

	select {
	case <-w.Nudge():
	case <-time.After(2 * time.Second):
		t.Fatal("expected a nudge for a rendezvous file")
	}
}

func TestWatcherIgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()

	w, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644))

	select {
	case <-w.Nudge():
		t.Fatal("unexpected nudge for an unrelated file")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcherStopIdempotent(t *testing.T) {
	w, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, w.Start())
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}
