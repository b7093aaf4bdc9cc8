// Package config provides configuration types and defaults for loadkit.
package config

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/roach88/loadkit/internal/engine"
	"github.com/roach88/loadkit/internal/loader"
)

// CollectionConfig declares one collection.
type CollectionConfig struct {
	Singular   string `mapstructure:"singular" json:"singular"`
	Plural     string `mapstructure:"plural" json:"plural"`
	Convention string `mapstructure:"convention" json:"convention,omitempty"` // sync (default), callback, deferred, stream
}

// Config holds all configuration options for loadkit.
type Config struct {
	Collections []CollectionConfig `mapstructure:"collections" json:"collections"`
	LogLevel    string             `mapstructure:"log_level" json:"log_level"`   // debug, info (default), warn, error
	LogFormat   string             `mapstructure:"log_format" json:"log_format"` // text (default) or json
	// Database is the load journal path. Empty disables the journal.
	Database string `mapstructure:"database" json:"database,omitempty"`
	// BaseDir is the directory relative file patterns resolve against.
	BaseDir     string        `mapstructure:"base_dir" json:"base_dir,omitempty"`
	LoadTimeout time.Duration `mapstructure:"load_timeout" json:"load_timeout,omitempty"`
	Trace       bool          `mapstructure:"trace" json:"trace,omitempty"`
}

// Default returns the built-in configuration: the four template
// collections, each on its customary convention.
func Default() Config {
	return Config{
		Collections: []CollectionConfig{
			{Singular: "partial", Plural: "partials", Convention: "deferred"},
			{Singular: "include", Plural: "includes", Convention: "stream"},
			{Singular: "layout", Plural: "layouts", Convention: "callback"},
			{Singular: "page", Plural: "pages", Convention: "sync"},
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	seen := make(map[string]string)
	for i, coll := range c.Collections {
		if coll.Plural == "" {
			return fmt.Errorf("collections[%d]: plural is required", i)
		}
		if _, err := loader.ParseConvention(coll.Convention); err != nil {
			return fmt.Errorf("collections[%d] (%s): %w", i, coll.Plural, err)
		}
		for _, name := range []string{coll.Singular, coll.Plural} {
			if name == "" {
				continue
			}
			if prev, ok := seen[name]; ok && prev != coll.Plural {
				return fmt.Errorf("collections[%d]: name %q already used by %q", i, name, prev)
			}
			seen[name] = coll.Plural
		}
	}

	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if !slices.Contains([]string{"", "text", "json"}, c.LogFormat) {
		return fmt.Errorf("invalid log_format %q: must be text or json", c.LogFormat)
	}
	if c.LoadTimeout < 0 {
		return fmt.Errorf("invalid load_timeout %s: must not be negative", c.LoadTimeout)
	}
	return nil
}

// Specs converts the configured collections for engine.WithDefaultCollections.
func (c Config) Specs() ([]engine.CollectionSpec, error) {
	specs := make([]engine.CollectionSpec, 0, len(c.Collections))
	for _, coll := range c.Collections {
		conv, err := loader.ParseConvention(coll.Convention)
		if err != nil {
			return nil, fmt.Errorf("collection %s: %w", coll.Plural, err)
		}
		specs = append(specs, engine.CollectionSpec{
			Singular:   coll.Singular,
			Plural:     coll.Plural,
			Convention: conv,
		})
	}
	return specs, nil
}

// ParseLevel maps a log_level value to a slog level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log_level %q: must be debug, info, warn or error", s)
	}
}
