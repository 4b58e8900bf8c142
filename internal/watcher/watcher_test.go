package watcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reloadRecorder struct {
	mu    sync.Mutex
	count int
	err   error
}

func (r *reloadRecorder) reload(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count++
	return r.err
}

func (r *reloadRecorder) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startWatcher runs Start in the background and stops it at cleanup.
func startWatcher(t *testing.T, w *Watcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		_ = w.Stop()
		<-done
	})
	// Give fsnotify a moment to establish the watch.
	time.Sleep(50 * time.Millisecond)
}

func writeFile(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644))
}

func waitForCalls(t *testing.T, rec *reloadRecorder, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return rec.calls() >= want
	}, 3*time.Second, 10*time.Millisecond)
}

func TestNew_Validation(t *testing.T) {
	rec := &reloadRecorder{}

	t.Run("missing directory", func(t *testing.T) {
		_, err := New("", 0, rec.reload, quietLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "documents directory")
	})

	t.Run("missing reload func", func(t *testing.T) {
		_, err := New(t.TempDir(), 0, nil, quietLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reload function")
	})
}

func TestWatcher_ReloadsOnNewDocument(t *testing.T) {
	dir := t.TempDir()
	rec := &reloadRecorder{}

	w, err := New(dir, 50*time.Millisecond, rec.reload, quietLogger())
	require.NoError(t, err)
	startWatcher(t, w)

	writeFile(t, dir, "manual.pdf")

	waitForCalls(t, rec, 1)
	assert.Equal(t, uint64(rec.calls()), w.Reloads())
}

func TestWatcher_CoalescesBursts(t *testing.T) {
	dir := t.TempDir()
	rec := &reloadRecorder{}

	w, err := New(dir, 300*time.Millisecond, rec.reload, quietLogger())
	require.NoError(t, err)
	startWatcher(t, w)

	// A burst of writes well inside one debounce window.
	for i := 0; i < 5; i++ {
		writeFile(t, dir, fmt.Sprintf("doc%d.pdf", i))
	}

	waitForCalls(t, rec, 1)
	time.Sleep(600 * time.Millisecond)
	assert.Equal(t, 1, rec.calls())
}

func TestWatcher_IgnoresNonPDF(t *testing.T) {
	dir := t.TempDir()
	rec := &reloadRecorder{}

	w, err := New(dir, 50*time.Millisecond, rec.reload, quietLogger())
	require.NoError(t, err)
	startWatcher(t, w)

	writeFile(t, dir, "notes.txt")
	writeFile(t, dir, ".hidden.pdf")
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 0, rec.calls())

	// A real document still gets through, so the watch is alive.
	writeFile(t, dir, "real.pdf")
	waitForCalls(t, rec, 1)
}

func TestWatcher_RemoveTriggersReload(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "manual.pdf")
	rec := &reloadRecorder{}

	w, err := New(dir, 50*time.Millisecond, rec.reload, quietLogger())
	require.NoError(t, err)
	startWatcher(t, w)

	require.NoError(t, os.Remove(filepath.Join(dir, "manual.pdf")))

	waitForCalls(t, rec, 1)
}

func TestWatcher_ReloadFailureKeepsWatching(t *testing.T) {
	dir := t.TempDir()
	rec := &reloadRecorder{err: assert.AnError}

	w, err := New(dir, 50*time.Millisecond, rec.reload, quietLogger())
	require.NoError(t, err)
	startWatcher(t, w)

	writeFile(t, dir, "first.pdf")
	waitForCalls(t, rec, 1)

	writeFile(t, dir, "second.pdf")
	waitForCalls(t, rec, 2)
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	rec := &reloadRecorder{}

	w, err := New(t.TempDir(), 50*time.Millisecond, rec.reload, quietLogger())
	require.NoError(t, err)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	// Starting after Stop fails cleanly: the underlying watcher is closed.
	err = w.Start(context.Background())
	require.Error(t, err)
}

func TestIsPDF(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"manual.pdf", true},
		{"/docs/Guide.PDF", true},
		{"notes.txt", false},
		{".hidden.pdf", false},
		{"archive.pdf.bak", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isPDF(tt.path), tt.path)
	}
}
