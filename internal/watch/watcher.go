// Package watch rebuilds the manifest when source images change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/tendant/manual-asset-pipeline/internal/convention"
)

// DefaultDebounce is the quiet period before a rebuild starts
const DefaultDebounce = 500 * time.Millisecond

// RebuildFunc runs one build. Calls never overlap.
type RebuildFunc func(ctx context.Context) error

// Event reports a completed rebuild
type Event struct {
	Changed []string // site-relative paths that triggered the rebuild
	Err     error
}

// Option configures a Watcher
type Option func(*Watcher)

// WithDebounce sets the quiet period before a rebuild
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// Watcher monitors the source roots of a site tree
type Watcher struct {
	siteRoot  string
	conv      *convention.Convention
	rebuild   RebuildFunc
	debounce  time.Duration
	logger    *zap.Logger
	fsw       *fsnotify.Watcher
	events    chan Event
	closeOnce sync.Once
}

// New creates a watcher and registers every existing source directory under
// siteRoot. Optimized directories and directories outside the source roots
// are never watched.
func New(siteRoot string, conv *convention.Convention, rebuild RebuildFunc, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		siteRoot: siteRoot,
		conv:     conv,
		rebuild:  rebuild,
		debounce: DefaultDebounce,
		logger:   zap.NewNop(),
		fsw:      fsw,
		events:   make(chan Event, 16),
	}
	for _, opt := range opts {
		opt(w)
	}

	if _, err := os.Stat(siteRoot); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", siteRoot, err)
	}

	// Directories leading to a source root are watched too, so roots created
	// after start are picked up
	if err := w.addTree(siteRoot); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	return w, nil
}

// Events reports each finished rebuild. The channel is closed when Run returns.
// Events are dropped when nobody is reading.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Run processes file events until ctx is done. Changes are debounced and
// rebuilds run one at a time on this goroutine.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.events)
	defer w.Close()

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	pending := make(map[string]struct{})

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			rel, relevant := w.handle(event)
			if !relevant {
				continue
			}
			pending[rel] = struct{}{}
			timer.Reset(w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))

		case <-timer.C:
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			clear(pending)

			w.logger.Info("sources changed, rebuilding", zap.Strings("changed", changed))
			err := w.rebuild(ctx)
			if err != nil {
				w.logger.Error("rebuild failed", zap.Error(err))
			}

			select {
			case w.events <- Event{Changed: changed, Err: err}:
			default:
			}
		}
	}
}

// Close stops watching. It is safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.fsw.Close()
	})
	return err
}

// handle registers new directories and reports whether event concerns a
// source image
func (w *Watcher) handle(event fsnotify.Event) (string, bool) {
	if event.Op == fsnotify.Chmod {
		return "", false
	}

	rel, err := filepath.Rel(w.siteRoot, event.Name)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)

	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return "", false
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !w.wantsDir(rel) {
				return "", false
			}
			if err := w.addTree(event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", zap.String("dir", rel), zap.Error(err))
			}
			// Files may have landed before the watch was in place
			return rel, true
		}
	}

	if !convention.IsSourceImage(event.Name) {
		return "", false
	}
	if !w.inSourceRoot(convention.Split(rel).Dir) {
		return "", false
	}
	return rel, true
}

// inSourceRoot reports whether dir lies in a source root outside any
// optimized tree
func (w *Watcher) inSourceRoot(dir string) bool {
	if w.conv.IsOptimizedDir(dir) {
		return false
	}
	_, ok := w.conv.OptimizedDir(dir)
	return ok
}

// leadsToRoot reports whether a source root may appear below dir: the site
// root, an ancestor of the assets or manuals directory, or a manual folder
func (w *Watcher) leadsToRoot(dir string) bool {
	if dir == "." {
		return true
	}
	for _, root := range []string{w.conv.AssetsDir(), w.conv.ManualsDir()} {
		if root == dir || strings.HasPrefix(root, dir+"/") {
			return true
		}
	}
	return path.Dir(dir) == w.conv.ManualsDir()
}

func (w *Watcher) wantsDir(dir string) bool {
	return w.inSourceRoot(dir) || w.leadsToRoot(dir)
}

// addTree watches root and the directories below it that are source
// directories or lead to one. Optimized trees and unrelated directories are
// skipped, as are unreadable ones. A missing root is ignored.
func (w *Watcher) addTree(root string) error {
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		rel, relErr := filepath.Rel(w.siteRoot, p)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if err != nil {
			if p == root {
				return err
			}
			if d != nil && !d.IsDir() {
				return nil
			}
			w.logger.Warn("skipping unreadable directory", zap.String("dir", rel), zap.Error(err))
			return filepath.SkipDir
		}
		if !d.IsDir() {
			return nil
		}
		if !w.wantsDir(rel) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
		w.logger.Debug("watching", zap.String("dir", rel))
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
