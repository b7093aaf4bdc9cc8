package loaders

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/loadkit/internal/loader"
	"github.com/roach88/loadkit/internal/record"
)

// writeTree creates files under a temporary directory and returns it.
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func siteTree(t *testing.T) string {
	return writeTree(t, map[string]string{
		"pages/a.html":     "---\ntitle: A\n---\n<p>a</p>",
		"pages/b.html":     "<p>b</p>",
		"pages/notes.txt":  "notes",
		"layouts/base.hbs": "{{{ body }}}",
	})
}

func TestLoad_Glob(t *testing.T) {
	tpl := New(siteTree(t))

	set, err := tpl.Load(context.Background(), "pages/*.html", nil)
	require.NoError(t, err)
	assert.Equal(t, record.Set{
		"pages/a.html": {Path: "pages/a.html", Content: "<p>a</p>", Data: map[string]any{"title": "A"}},
		"pages/b.html": {Path: "pages/b.html", Content: "<p>b</p>"},
	}, set)
}

func TestLoad_RecursiveGlob(t *testing.T) {
	tpl := New(writeTree(t, map[string]string{
		"pages/index.html":          "root",
		"pages/blog/post.html":      "post",
		"pages/blog/2024/old.html":  "old",
		"pages/blog/2024/notes.txt": "notes",
		"layouts/base.html":         "base",
	}))

	set, err := tpl.Load(context.Background(), "pages/**/*.html", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"pages/blog/2024/old.html", "pages/blog/post.html", "pages/index.html"}, set.Keys())

	set, err = tpl.Load(context.Background(), "{pages,layouts}/*.html", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"layouts/base.html", "pages/index.html"}, set.Keys())
}

func TestLoad_FrontMatterDisabled(t *testing.T) {
	tpl := &Templates{BaseDir: siteTree(t)}

	set, err := tpl.Load(context.Background(), "pages/a.html", nil)
	require.NoError(t, err)
	assert.Equal(t, "---\ntitle: A\n---\n<p>a</p>", set["pages/a.html"].Content)
	assert.Nil(t, set["pages/a.html"].Data)
}

func TestLoad_PatternList(t *testing.T) {
	tpl := New(siteTree(t))

	for _, in := range []any{
		[]string{"pages/b.html", "layouts/*"},
		[]any{"pages/b.html", "layouts/*"},
		loader.Targets{"pages/b.html", "layouts/*", "pages/none-*.html"},
	} {
		set, err := tpl.Load(context.Background(), in, nil)
		require.NoError(t, err, "%T", in)
		assert.ElementsMatch(t, []string{"pages/b.html", "layouts/base.hbs"}, set.Keys(), "%T", in)
	}
}

func TestLoad_EmptyGlob(t *testing.T) {
	tpl := New(siteTree(t))

	set, err := tpl.Load(context.Background(), "pages/*.md", nil)
	require.NoError(t, err)
	assert.Empty(t, set)
}

func TestLoad_MissingFile(t *testing.T) {
	tpl := New(siteTree(t))

	_, err := tpl.Load(context.Background(), "pages/missing.html", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	_, err = tpl.Load(context.Background(), "pages", nil)
	assert.ErrorContains(t, err, "is a directory")
}

func TestLoad_LiteralPair(t *testing.T) {
	tpl := New("")

	set, err := tpl.Load(context.Background(), loader.Targets{"greeting", "Hello {{ name }}"}, record.Locals{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, record.Set{
		"greeting": {Path: "greeting", Content: "Hello {{ name }}", Data: map[string]any{"name": "Ada"}},
	}, set)
}

func TestLoad_LiteralObjects(t *testing.T) {
	tpl := New("")

	set, err := tpl.Load(context.Background(), map[string]any{
		"a": "A",
		"b": map[string]any{"content": "B", "data": map[string]any{"x": 1}},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, record.Set{
		"a": {Path: "a", Content: "A"},
		"b": {Content: "B", Data: map[string]any{"x": 1}},
	}, set)

	set, err = tpl.Load(context.Background(), map[string]any{"path": "one.html", "content": "1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, record.Set{"one.html": {Path: "one.html", Content: "1"}}, set)

	set, err = tpl.Load(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Nil(t, set)

	_, err = tpl.Load(context.Background(), 42, nil)
	assert.Error(t, err)
}

func TestLoad_LocalsDoNotOverrideRecordData(t *testing.T) {
	tpl := New(siteTree(t))

	set, err := tpl.Load(context.Background(), "pages/a.html", record.Locals{"title": "ignored", "site": "docs"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "A", "site": "docs"}, set["pages/a.html"].Data)
}

func TestLoad_AbsolutePatternOutsideBase(t *testing.T) {
	other := writeTree(t, map[string]string{"x.html": "x"})
	tpl := New(siteTree(t))

	abs := filepath.Join(other, "x.html")
	set, err := tpl.Load(context.Background(), abs, nil)
	require.NoError(t, err)
	assert.Contains(t, set, filepath.ToSlash(abs))
}

func TestLoad_CanceledContext(t *testing.T) {
	tpl := New(siteTree(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tpl.Load(ctx, "pages/*.html", nil)
	assert.ErrorIs(t, err, context.Canceled)
}
