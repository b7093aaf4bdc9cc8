package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/loadkit/internal/record"
)

type loadResponse struct {
	Status string     `json:"status"`
	Data   LoadOutput `json:"data"`
	Error  *CLIError  `json:"error"`
	LoadID string     `json:"load_id"`
}

func runLoadJSON(t *testing.T, dir string, args ...string) (loadResponse, error) {
	t.Helper()
	args = append([]string{"load"}, args...)
	args = append(args, "--base-dir", dir, "--format", "json")
	out, _, err := execute(t, args...)

	var resp loadResponse
	decode(t, out, &resp)
	return resp, err
}

func TestLoadCommand_Glob(t *testing.T) {
	dir := writeSite(t)

	resp, err := runLoadJSON(t, dir, "pages", "pages/*.html")
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "pages", resp.Data.Collection)
	assert.Equal(t, "sync", resp.Data.Convention)
	assert.NotEmpty(t, resp.LoadID)
	assert.Equal(t, resp.LoadID, resp.Data.LoadID)
	assert.Equal(t, []string{"pages/about.html", "pages/index.html"}, resp.Data.Records.Keys())
	assert.Equal(t, "<h1>home</h1>", resp.Data.Records["pages/index.html"].Content)
	assert.Equal(t, map[string]any{"title": "Home"}, resp.Data.Records["pages/index.html"].Data)
}

func TestLoadCommand_Conventions(t *testing.T) {
	dir := writeSite(t)

	tests := []struct {
		name   string
		args   []string
		conv   string
		events int
		keys   []string
	}{
		{"callback", []string{"layout", "layouts/base.html"}, "callback", 0, []string{"layouts/base.html"}},
		{"deferred literal", []string{"partial", "button", "<button/>", "--literal"}, "deferred", 0, []string{"button"}},
		{"stream", []string{"includes", "includes/*.html"}, "stream", 1, []string{"includes/nav.html"}},
		{"override", []string{"includes", "includes/*.html", "--using", "sync"}, "sync", 0, []string{"includes/nav.html"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := runLoadJSON(t, dir, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.conv, resp.Data.Convention)
			assert.Equal(t, tt.events, resp.Data.Events)
			assert.Equal(t, tt.keys, resp.Data.Records.Keys())
		})
	}
}

func TestLoadCommand_Locals(t *testing.T) {
	dir := writeSite(t)

	resp, err := runLoadJSON(t, dir, "pages", "pages/*.html", "--local", "site=docs")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"site": "docs"}, resp.Data.Records["pages/about.html"].Data)
	assert.Equal(t, map[string]any{"title": "Home", "site": "docs"}, resp.Data.Records["pages/index.html"].Data)
}

func TestLoadCommand_Failures(t *testing.T) {
	dir := writeSite(t)

	t.Run("missing file", func(t *testing.T) {
		resp, err := runLoadJSON(t, dir, "page", "pages/missing.html")
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Equal(t, "error", resp.Status)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "STAGE_FAILED", resp.Error.Code)
		assert.Contains(t, resp.Error.Message, "missing.html")
	})

	t.Run("unknown accessor", func(t *testing.T) {
		resp, err := runLoadJSON(t, dir, "posts")
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		require.NotNil(t, resp.Error)
		assert.Equal(t, CodeUnknownTarget, resp.Error.Code)
	})
}

func TestLoadCommand_ArgumentErrors(t *testing.T) {
	dir := writeSite(t)

	_, _, err := execute(t, "load", "partial", "button", "--literal", "--base-dir", dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "exactly a key and its content")

	_, _, err = execute(t, "load", "pages", "--using", "eventually", "--base-dir", dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, _, err = execute(t, "load")
	require.Error(t, err)
}

func TestLoadCommand_Text(t *testing.T) {
	dir := writeSite(t)

	out, _, err := execute(t, "load", "pages", "pages/*.html", "--base-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "pages (sync)")
	assert.Contains(t, out, "pages/about.html  14 bytes")
	assert.Contains(t, out, "pages/index.html  13 bytes  1 data key(s)")
	assert.Contains(t, out, "2 record(s)")
}

func TestLoadCommand_Trace(t *testing.T) {
	dir := writeSite(t)

	_, stderr, err := execute(t, "load", "pages", "pages/about.html", "--base-dir", dir, "--trace")
	require.NoError(t, err)
	assert.Contains(t, stderr, "loadkit.load")
}

func TestLoadOptions_CallArgs(t *testing.T) {
	opts := &LoadOptions{}

	args, err := opts.callArgs(nil)
	require.NoError(t, err)
	assert.Empty(t, args)

	args, err = opts.callArgs([]string{"a.html", "b.html"})
	require.NoError(t, err)
	assert.Equal(t, []any{[]string{"a.html", "b.html"}}, args)

	opts.Literal = true
	opts.Locals = map[string]string{"k": "v"}
	args, err = opts.callArgs([]string{"key", "content"})
	require.NoError(t, err)
	assert.Equal(t, []any{"key", "content", record.Locals{"k": "v"}}, args)
}
