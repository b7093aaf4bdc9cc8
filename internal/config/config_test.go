package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/loadkit/internal/engine"
	"github.com/roach88/loadkit/internal/loader"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	specs, err := cfg.Specs()
	require.NoError(t, err)
	assert.Equal(t, []engine.CollectionSpec{
		{Singular: "partial", Plural: "partials", Convention: loader.Deferred},
		{Singular: "include", Plural: "includes", Convention: loader.Stream},
		{Singular: "layout", Plural: "layouts", Convention: loader.Callback},
		{Singular: "page", Plural: "pages", Convention: loader.Sync},
	}, specs)
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "loadkit.yaml", `
collections:
  - singular: post
    plural: posts
    convention: stream
log_level: debug
database: journal.db
base_dir: site
load_timeout: 2s
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []CollectionConfig{{Singular: "post", Plural: "posts", Convention: "stream"}}, cfg.Collections)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat, "unset keys keep their default")
	assert.Equal(t, "journal.db", cfg.Database)
	assert.Equal(t, "site", cfg.BaseDir)
	assert.Equal(t, 2*time.Second, cfg.LoadTimeout)
	assert.False(t, cfg.Trace)
}

func TestLoad_JSONAndTOML(t *testing.T) {
	jsonPath := writeConfig(t, "loadkit.json", `{"log_format": "json", "trace": true}`)
	cfg, err := Load(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.True(t, cfg.Trace)
	assert.Len(t, cfg.Collections, 4)

	tomlPath := writeConfig(t, "loadkit.toml", "log_level = \"warn\"\nload_timeout = \"250ms\"\n")
	cfg, err = Load(tomlPath)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 250*time.Millisecond, cfg.LoadTimeout)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LOADKIT_LOG_LEVEL", "error")
	t.Setenv("LOADKIT_TRACE", "true")

	path := writeConfig(t, "loadkit.yaml", "log_level: debug\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel)
	assert.True(t, cfg.Trace)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad level", "log_level: loud\n", "invalid log_level"},
		{"bad format", "log_format: xml\n", "invalid log_format"},
		{"bad convention", "collections:\n  - plural: posts\n    convention: eventually\n", "unknown convention"},
		{"missing plural", "collections:\n  - singular: post\n", "plural is required"},
		{"name clash", "collections:\n  - {singular: page, plural: pages}\n  - {singular: pages, plural: docs}\n", "already used"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "loadkit.yaml", tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_CUE(t *testing.T) {
	path := writeConfig(t, "loadkit.cue", `
_base: "templates"

collections: [
	{singular: "page", plural: "pages"},
	{singular: "snippet", plural: "snippets", convention: "deferred"},
]
base_dir:     _base
load_timeout: "1500ms"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []CollectionConfig{
		{Singular: "page", Plural: "pages"},
		{Singular: "snippet", Plural: "snippets", Convention: "deferred"},
	}, cfg.Collections)
	assert.Equal(t, "templates", cfg.BaseDir)
	assert.Equal(t, 1500*time.Millisecond, cfg.LoadTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_CUESchemaViolation(t *testing.T) {
	path := writeConfig(t, "loadkit.cue", `collections: [{plural: "pages", convention: "eventually"}]`)

	_, err := Load(path)
	require.Error(t, err)
	var cerr *Error
	require.True(t, errors.As(err, &cerr), "got %T: %v", err, err)
}

func TestLoad_CUESyntaxError(t *testing.T) {
	path := writeConfig(t, "loadkit.cue", `collections: [`)

	_, err := Load(path)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.True(t, cerr.Pos.IsValid())
	assert.Contains(t, cerr.Error(), "loadkit.cue")
}

func TestLoad_CUEBadDuration(t *testing.T) {
	_, err := Load(writeConfig(t, "loadkit.cue", `load_timeout: "soon"`))
	assert.ErrorContains(t, err, "load_timeout")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":      slog.LevelInfo,
		"info":  slog.LevelInfo,
		"DEBUG": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("trace")
	assert.Error(t, err)
}

func TestValidate_NegativeTimeout(t *testing.T) {
	cfg := Default()
	cfg.LoadTimeout = -time.Second
	assert.Error(t, cfg.Validate())
}
