package loaders

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/roach88/loadkit/internal/loader"
	"github.com/roach88/loadkit/internal/record"
)

// Templates reads template records from literals and files.
type Templates struct {
	// BaseDir is the directory relative patterns are resolved against.
	// Empty means the working directory.
	BaseDir string

	// FrontMatter enables parsing of a leading YAML front matter block. The
	// parsed mapping is merged into the record's Data and stripped from
	// Content.
	FrontMatter bool
}

// New returns a Templates loader rooted at baseDir with front matter
// parsing enabled.
func New(baseDir string) *Templates {
	return &Templates{BaseDir: baseDir, FrontMatter: true}
}

// Load interprets in and returns the records it describes.
func (t *Templates) Load(ctx context.Context, in any, locals record.Locals) (record.Set, error) {
	switch v := in.(type) {
	case nil:
		return nil, nil
	case loader.Targets:
		if key, content, ok := literalPair(v); ok {
			return withLocals(record.Set{key: {Path: key, Content: content}}, locals), nil
		}
		out := record.Set{}
		for i, elem := range v {
			set, err := t.Load(ctx, elem, locals)
			if err != nil {
				return nil, fmt.Errorf("target %d: %w", i, err)
			}
			out.Merge(set)
		}
		return out, nil
	case string:
		return t.glob(ctx, []string{v}, locals)
	case []string:
		return t.glob(ctx, v, locals)
	case []any:
		if patterns, ok := allStrings(v); ok {
			return t.glob(ctx, patterns, locals)
		}
		return t.Load(ctx, loader.Targets(v), locals)
	default:
		set, err := record.Normalize(in)
		if err != nil {
			return nil, err
		}
		return withLocals(set, locals), nil
	}
}

// glob expands every pattern and reads the matched files. Patterns follow
// doublestar syntax, so "**" crosses directories and "{a,b}" alternates. A
// pattern without glob metacharacters names a single file, which must exist.
func (t *Templates) glob(ctx context.Context, patterns []string, locals record.Locals) (record.Set, error) {
	out := record.Set{}
	for _, pattern := range patterns {
		paths, err := t.expand(pattern)
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			r, err := t.readFile(p)
			if err != nil {
				return nil, err
			}
			out[r.Path] = r
		}
	}
	return withLocals(out, locals), nil
}

// expand returns the regular files matching pattern, sorted.
func (t *Templates) expand(pattern string) ([]string, error) {
	full := t.abs(pattern)
	if !hasMeta(pattern) {
		info, err := os.Stat(full)
		if err != nil {
			return nil, fmt.Errorf("load %q: %w", pattern, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("load %q: is a directory", pattern)
		}
		return []string{full}, nil
	}

	matches, err := doublestar.FilepathGlob(full)
	if err != nil {
		return nil, fmt.Errorf("load %q: %w", pattern, err)
	}
	files := matches[:0]
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("load %q: %w", m, err)
		}
		if !info.IsDir() {
			files = append(files, m)
		}
	}
	slices.Sort(files)
	return files, nil
}

func (t *Templates) readFile(full string) (record.Record, error) {
	body, err := os.ReadFile(full)
	if err != nil {
		return record.Record{}, fmt.Errorf("read %s: %w", full, err)
	}

	r := record.Record{Path: t.key(full), Content: string(body)}
	if t.FrontMatter {
		data, content, err := ParseFrontMatter(r.Content)
		if err != nil {
			return record.Record{}, fmt.Errorf("%s: %w", r.Path, err)
		}
		r.Content = content
		if len(data) > 0 {
			r.Data = data
		}
	}
	return r, nil
}

func (t *Templates) abs(pattern string) string {
	if filepath.IsAbs(pattern) || t.BaseDir == "" {
		return filepath.Clean(pattern)
	}
	return filepath.Join(t.BaseDir, pattern)
}

// key returns the record key for a file: its slash-separated path relative
// to BaseDir, or the path itself when it lies outside BaseDir.
func (t *Templates) key(full string) string {
	base := t.BaseDir
	if base == "" {
		base = "."
	}
	rel, err := filepath.Rel(base, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(full)
	}
	return filepath.ToSlash(rel)
}

func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}

func literalPair(targets loader.Targets) (key, content string, ok bool) {
	if len(targets) != 2 {
		return "", "", false
	}
	key, ok1 := targets[0].(string)
	content, ok2 := targets[1].(string)
	return key, content, ok1 && ok2
}

func allStrings(vs []any) ([]string, bool) {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		s, ok := v.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// withLocals returns a copy of set whose records carry locals in Data.
// Keys already present in a record's Data are kept.
func withLocals(set record.Set, locals record.Locals) record.Set {
	if len(locals) == 0 || len(set) == 0 {
		return set
	}
	out := make(record.Set, len(set))
	for k, r := range set {
		data := make(map[string]any, len(locals)+len(r.Data))
		maps.Copy(data, locals)
		maps.Copy(data, r.Data)
		r.Data = data
		out[k] = r
	}
	return out
}
