package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchCommand_InitialLoad(t *testing.T) {
	dir := writeSite(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"watch", "pages/*.html", "--base-dir", dir, "--debounce", "10ms"})

	require.NoError(t, cmd.ExecuteContext(ctx))
	assert.Contains(t, out.String(), "pages/about.html  14 bytes")
	assert.Contains(t, out.String(), "pages/index.html  13 bytes")
}

func TestWatchCommand_Flags(t *testing.T) {
	cmd := NewWatchCommand(&RootOptions{})

	debounce := cmd.Flags().Lookup("debounce")
	require.NotNil(t, debounce)
	assert.Equal(t, "100ms", debounce.DefValue)
	assert.NotNil(t, cmd.Flags().Lookup("skip-initial"))
}

func TestWatchCommand_RejectsGlobDirectory(t *testing.T) {
	dir := writeSite(t)

	_, _, err := execute(t, "watch", "*/index.html", "--base-dir", dir)
	require.Error(t, err)
}
