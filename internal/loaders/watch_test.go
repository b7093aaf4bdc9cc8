package loaders

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/loadkit/internal/record"
)

type watchRun struct {
	sets   chan record.Set
	done   chan error
	cancel context.CancelFunc
}

func startWatch(t *testing.T, tpl *Templates, cfg WatchConfig, in any) *watchRun {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	w := &watchRun{sets: make(chan record.Set, 16), done: make(chan error, 1), cancel: cancel}
	go func() {
		w.done <- tpl.Watch(cfg)(ctx, in, nil, func(v any) { w.sets <- v.(record.Set) })
	}()
	t.Cleanup(cancel)
	return w
}

func (w *watchRun) next(t *testing.T) record.Set {
	t.Helper()
	select {
	case s := <-w.sets:
		return s
	case err := <-w.done:
		t.Fatalf("watch ended early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watch emission")
	}
	return nil
}

func (w *watchRun) stop(t *testing.T) error {
	t.Helper()
	w.cancel()
	select {
	case err := <-w.done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
		return nil
	}
}

func TestWatch_InitialThenChanges(t *testing.T) {
	dir := writeTree(t, map[string]string{"a.html": "v1"})
	tpl := New(dir)
	w := startWatch(t, tpl, WatchConfig{Debounce: 20 * time.Millisecond}, "*.html")

	assert.Equal(t, "v1", w.next(t)["a.html"].Content)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.html"), []byte("v2"), 0o644))
	assert.Equal(t, "v2", w.next(t)["a.html"].Content)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.html"), []byte("new"), 0o644))
	assert.Equal(t, "new", w.next(t)["b.html"].Content)

	assert.NoError(t, w.stop(t))
}

func TestWatch_IgnoresNonMatching(t *testing.T) {
	dir := writeTree(t, map[string]string{"a.html": "v1"})
	tpl := New(dir)
	w := startWatch(t, tpl, WatchConfig{Debounce: 20 * time.Millisecond, SkipInitial: true}, "*.html")

	// Give the watcher time to register before writing.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.html"), []byte("v2"), 0o644))

	got := w.next(t)
	assert.Equal(t, []string{"a.html"}, got.Keys())
	assert.Equal(t, "v2", got["a.html"].Content)
	assert.NoError(t, w.stop(t))
}

func TestWatch_NamedFileCreatedLater(t *testing.T) {
	dir := t.TempDir()
	tpl := New(dir)
	w := startWatch(t, tpl, DefaultWatchConfig(), "later.html")

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "later.html"), []byte("here"), 0o644))
	assert.Equal(t, "here", w.next(t)["later.html"].Content)
	assert.NoError(t, w.stop(t))
}

func TestWatch_RecursivePattern(t *testing.T) {
	dir := writeTree(t, map[string]string{"pages/blog/a.html": "v1"})
	tpl := New(dir)
	w := startWatch(t, tpl, WatchConfig{Debounce: 20 * time.Millisecond}, "pages/**/*.html")

	assert.Equal(t, "v1", w.next(t)["pages/blog/a.html"].Content)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "pages", "blog", "a.html"), []byte("v2"), 0o644))
	assert.Equal(t, "v2", w.next(t)["pages/blog/a.html"].Content)

	require.NoError(t, os.Mkdir(filepath.Join(dir, "pages", "news"), 0o755))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pages", "news", "b.html"), []byte("new"), 0o644))
	assert.Equal(t, "new", w.next(t)["pages/news/b.html"].Content)

	assert.NoError(t, w.stop(t))
}

func TestWatchDirs(t *testing.T) {
	dir := writeTree(t, map[string]string{"pages/blog/2024/a.html": "x", "pages/b.html": "y"})

	dirs, root, err := watchDirs(filepath.Join(dir, "pages", "*.html"))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "pages")}, dirs)
	assert.Empty(t, root)

	dirs, root, err = watchDirs(filepath.Join(dir, "pages", "**", "*.html"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "pages"), root)
	assert.Equal(t, []string{
		filepath.Join(dir, "pages"),
		filepath.Join(dir, "pages", "blog"),
		filepath.Join(dir, "pages", "blog", "2024"),
	}, dirs)

	_, _, err = watchDirs(filepath.Join(dir, "missing", "**", "*.html"))
	assert.Error(t, err)
}

func TestWatch_RejectsNonPatterns(t *testing.T) {
	err := New("").Watch(DefaultWatchConfig())(context.Background(), 42, nil, func(any) {})
	assert.ErrorContains(t, err, "expected file patterns")
}

func TestWatchPatterns(t *testing.T) {
	got, err := watchPatterns([]any{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)

	_, err = watchPatterns([]any{"a", 1})
	assert.Error(t, err)
}

func TestMatchesAny(t *testing.T) {
	patterns := []string{"/site/pages/*.html", "/site/index.html"}
	assert.True(t, matchesAny(patterns, "/site/pages/a.html"))
	assert.True(t, matchesAny(patterns, "/site/index.html"))
	assert.False(t, matchesAny(patterns, "/site/pages/a.txt"))
	assert.False(t, matchesAny(patterns, "/site/other/a.html"))

	recursive := []string{"/site/pages/**/*.html"}
	assert.True(t, matchesAny(recursive, "/site/pages/a.html"))
	assert.True(t, matchesAny(recursive, "/site/pages/blog/2024/a.html"))
	assert.False(t, matchesAny(recursive, "/site/other/a.html"))
}
