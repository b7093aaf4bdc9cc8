package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variable overrides, e.g.
// LOADKIT_LOG_LEVEL=debug.
const EnvPrefix = "LOADKIT"

//go:embed schema.cue
var schemaCUE string

// Error is a configuration error, positioned when it came from a CUE file.
type Error struct {
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

// Load reads the configuration at path on top of Default, then applies
// LOADKIT_* environment overrides. An empty path reads no file.
//
// Files ending in .cue are evaluated with CUE against the built-in schema.
// Every other extension (yaml, yml, json, toml) is read with viper.
func Load(path string) (Config, error) {
	v := NewViper()
	if path != "" && filepath.Ext(path) == ".cue" {
		file, err := loadCUE(path)
		if err != nil {
			return Config{}, err
		}
		if err := v.MergeConfigMap(file); err != nil {
			return Config{}, fmt.Errorf("merging config %s: %w", path, err)
		}
	} else if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}
	return Unmarshal(v)
}

// NewViper returns a viper instance seeded with the defaults and bound to
// LOADKIT_* environment variables.
func NewViper() *viper.Viper {
	v := viper.New()
	d := Default()
	v.SetDefault("collections", d.Collections)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("database", d.Database)
	v.SetDefault("base_dir", d.BaseDir)
	v.SetDefault("load_timeout", d.LoadTimeout)
	v.SetDefault("trace", d.Trace)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Unmarshal decodes and validates the settings held by v.
func Unmarshal(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// loadCUE evaluates a CUE file and returns its concrete settings as a flat
// key/value map, ready to layer over the defaults.
func loadCUE(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	val := ctx.CompileBytes(data, cue.Filename(path))
	if err := val.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	val = schema.Unify(val)
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var file struct {
		Collections []CollectionConfig `json:"collections"`
		LogLevel    *string            `json:"log_level"`
		LogFormat   *string            `json:"log_format"`
		Database    *string            `json:"database"`
		BaseDir     *string            `json:"base_dir"`
		LoadTimeout *string            `json:"load_timeout"`
		Trace       *bool              `json:"trace"`
	}
	if err := val.Decode(&file); err != nil {
		return nil, formatCUEError(err)
	}

	out := make(map[string]any)
	if file.Collections != nil {
		out["collections"] = file.Collections
	}
	setIf(out, "log_level", file.LogLevel)
	setIf(out, "log_format", file.LogFormat)
	setIf(out, "database", file.Database)
	setIf(out, "base_dir", file.BaseDir)
	setIf(out, "trace", file.Trace)
	if file.LoadTimeout != nil {
		d, err := time.ParseDuration(*file.LoadTimeout)
		if err != nil {
			return nil, &Error{Message: fmt.Sprintf("load_timeout: %v", err)}
		}
		out["load_timeout"] = d
	}
	return out, nil
}

func setIf[T any](m map[string]any, key string, v *T) {
	if v != nil {
		m[key] = *v
	}
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		return &Error{Message: first.Error(), Pos: positions[0]}
	}
	return &Error{Message: first.Error()}
}
