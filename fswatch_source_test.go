package trellis

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pollUntil repeatedly calls loop.Poll until it reports it did something, or
// the deadline passes; it returns whether the loop ever fired.
func pollUntil(loop EventLoop, deadline time.Duration) bool {
	stop := time.Now().Add(deadline)
	for time.Now().Before(stop) {
		if loop.Poll() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestFSWatchSourceDeliversAFileWriteAsADiscreteEvent(t *testing.T) {
	dir := t.TempDir()
	ctrl := NewController()
	loop := NewPollingLoop(nil)

	src, err := NewFSWatchSource(ctrl, loop, nil, dir)
	require.NoError(t, err)
	defer func() { _ = src.Stop() }()

	assert.Nil(t, src.Cell().Get())

	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("log_level = \"debug\"\n"), 0o644))

	require.True(t, pollUntil(loop, 2*time.Second), "the watcher never delivered a call for the write")

	got, ok := src.Cell().Get().(FSWatchEvent)
	require.True(t, ok)
	assert.Equal(t, path, got.Path)

	require.NoError(t, ctrl.Atomically(func() error { return nil }))
	assert.Nil(t, src.Cell().Get(), "the event cell resets to nil on the pulse after it fired")
}

func TestFSWatchSourceAddPath(t *testing.T) {
	watched := t.TempDir()
	extra := t.TempDir()
	ctrl := NewController()
	loop := NewPollingLoop(nil)

	src, err := NewFSWatchSource(ctrl, loop, nil, watched)
	require.NoError(t, err)
	defer func() { _ = src.Stop() }()

	require.NoError(t, src.AddPath(extra))

	path := filepath.Join(extra, "added.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	require.True(t, pollUntil(loop, 2*time.Second), "a write under a path added via AddPath should still be delivered")
	got, ok := src.Cell().Get().(FSWatchEvent)
	require.True(t, ok)
	assert.Equal(t, path, got.Path)
}

func TestFSWatchSourceStopIsIdempotentAndStopsThePump(t *testing.T) {
	dir := t.TempDir()
	ctrl := NewController()
	loop := NewPollingLoop(nil)

	src, err := NewFSWatchSource(ctrl, loop, nil, dir)
	require.NoError(t, err)

	require.NoError(t, src.Stop())
	require.NoError(t, src.Stop(), "Stop must be safe to call twice")

	// No further write can be observed once the watcher is closed; the
	// pump goroutine has already exited (Stop waits on s.done).
	require.NoError(t, os.WriteFile(filepath.Join(dir, "after-stop.txt"), []byte("x"), 0o644))
	assert.False(t, pollUntil(loop, 100*time.Millisecond))
}

func TestNewFSWatchSourceRejectsAMissingPath(t *testing.T) {
	ctrl := NewController()
	loop := NewPollingLoop(nil)
	_, err := NewFSWatchSource(ctrl, loop, nil, filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Error(t, err)
}
