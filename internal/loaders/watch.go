package loaders

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/roach88/loadkit/internal/loader"
	"github.com/roach88/loadkit/internal/record"
)

// WatchConfig configures a watch stage.
type WatchConfig struct {
	// Debounce is how long a file must stay quiet before it is reloaded.
	Debounce time.Duration

	// SkipInitial suppresses the initial load of every matched file.
	SkipInitial bool
}

// DefaultWatchConfig returns the default watch settings.
func DefaultWatchConfig() WatchConfig {
	return WatchConfig{Debounce: 100 * time.Millisecond}
}

// Watch returns a stream stage that emits the files matching its input
// patterns, then emits each matching file again whenever it is written or
// created. Removed files are ignored. The stage runs until ctx is done,
// which ends the stream cleanly.
func (t *Templates) Watch(cfg WatchConfig) loader.StreamFunc {
	return func(ctx context.Context, in any, locals record.Locals, emit func(any)) error {
		patterns, err := watchPatterns(in)
		if err != nil {
			return err
		}

		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("creating fsnotify watcher: %w", err)
		}
		defer fsw.Close()

		full := make([]string, len(patterns))
		dirs := make(map[string]bool)
		var roots []string
		for i, p := range patterns {
			full[i] = t.abs(p)
			watched, root, err := watchDirs(full[i])
			if err != nil {
				return fmt.Errorf("watch %q: %w", p, err)
			}
			if root != "" {
				roots = append(roots, root)
			}
			for _, dir := range watched {
				if dirs[dir] {
					continue
				}
				if err := fsw.Add(dir); err != nil {
					return fmt.Errorf("watching directory %s: %w", dir, err)
				}
				dirs[dir] = true
			}
		}

		if !cfg.SkipInitial {
			for _, p := range patterns {
				if !hasMeta(p) {
					// A single named file may not exist yet.
					if _, err := t.expand(p); err != nil {
						if errors.Is(err, fs.ErrNotExist) {
							continue
						}
						return err
					}
				}
				err := t.eachFile(ctx, []string{p}, locals, func(set record.Set) { emit(set) })
				if err != nil {
					return err
				}
			}
		}

		return t.watchLoop(ctx, fsw, full, roots, cfg.Debounce, func(path string) error {
			r, err := t.readFile(path)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			emit(withLocals(record.Set{r.Path: r}, locals))
			return nil
		})
	}
}

// watchLoop debounces filesystem events and calls reload once per quiet
// changed path, in the order the paths first changed. Directories created
// under one of roots are watched from then on.
func (t *Templates) watchLoop(ctx context.Context, fsw *fsnotify.Watcher, patterns, roots []string, debounce time.Duration, reload func(string) error) error {
	var (
		timer   *time.Timer
		pending []string
		seen    = make(map[string]bool)
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	timerC := func() <-chan time.Time {
		if timer != nil {
			return timer.C
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create != 0 && under(roots, event.Name) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := fsw.Add(event.Name); err != nil {
						return fmt.Errorf("watching directory %s: %w", event.Name, err)
					}
					continue
				}
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !matchesAny(patterns, event.Name) {
				continue
			}
			if !seen[event.Name] {
				seen[event.Name] = true
				pending = append(pending, event.Name)
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(debounce)
			}

		case <-timerC():
			batch := pending
			pending = nil
			clear(seen)
			for _, path := range batch {
				if err := reload(path); err != nil {
					return err
				}
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watching files: %w", err)
		}
	}
}

// watchDirs returns the directories to watch for the absolute pattern full.
// A literal directory part is watched as is. Otherwise every directory under
// the pattern's literal base is watched, and the base is returned as root.
func watchDirs(full string) (dirs []string, root string, err error) {
	dir := filepath.Dir(full)
	if !hasMeta(dir) {
		return []string{dir}, "", nil
	}
	base, _ := doublestar.SplitPattern(filepath.ToSlash(full))
	root = filepath.FromSlash(base)
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return dirs, root, nil
}

func under(roots []string, name string) bool {
	for _, root := range roots {
		if name == root || strings.HasPrefix(name, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func matchesAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if p == filepath.Clean(name) {
			return true
		}
		if ok, _ := doublestar.PathMatch(p, name); ok {
			return true
		}
	}
	return false
}

func watchPatterns(in any) ([]string, error) {
	switch v := in.(type) {
	case string:
		return []string{v}, nil
	case []string:
		return v, nil
	case []any:
		if patterns, ok := allStrings(v); ok {
			return patterns, nil
		}
	case loader.Targets:
		if patterns, ok := allStrings(v); ok {
			return patterns, nil
		}
	}
	return nil, fmt.Errorf("watch: expected file patterns, got %T", in)
}
