// Package watch re-runs verification when document files change.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/wizzardx/davinci/internal/loader"
)

// DefaultDebounce is the quiet period after the last change before a batch
// is handed to the callback.
const DefaultDebounce = 300 * time.Millisecond

// ChangeFunc receives the sorted set of changed files in one batch.
type ChangeFunc func(ctx context.Context, changed []string)

// Config configures a Watcher.
type Config struct {
	Root     string
	Patterns []string // doublestar globs relative to Root; empty means loader.DefaultPatterns
	Debounce time.Duration
}

// Watcher watches Root recursively and batches matching file events.
type Watcher struct {
	cfg      Config
	onChange ChangeFunc
	logger   *slog.Logger
	fsw      *fsnotify.Watcher
}

// New creates a watcher and registers every directory under cfg.Root.
func New(cfg Config, onChange ChangeFunc, logger *slog.Logger) (*Watcher, error) {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, err
	}
	cfg.Root = root

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{cfg: cfg, onChange: onChange, logger: logger, fsw: fsw}
	if err := w.addTree(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// addTree adds dir and every non-hidden directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && ignoredDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return err
		}
		w.logger.Debug("watching directory", slog.String("path", path))
		return nil
	})
}

func ignoredDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "node_modules" || name == "vendor"
}

// Run processes events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.cfg.Debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !ignoredDir(info.Name()) {
					if err := w.addTree(event.Name); err != nil {
						w.logger.Warn("failed to watch new directory",
							slog.String("path", event.Name), slog.String("error", err.Error()))
					}
					continue
				}
			}
			if !w.relevant(event) {
				continue
			}
			pending[event.Name] = struct{}{}
			timer.Reset(w.cfg.Debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", slog.String("error", err.Error()))

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			clear(pending)

			w.logger.Info("documents changed", slog.Int("files", len(changed)))
			w.onChange(ctx, changed)
		}
	}
}

// relevant reports whether an event touches a file matching the patterns.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	rel, err := filepath.Rel(w.cfg.Root, event.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	return loader.Matches(w.cfg.Patterns, rel)
}
