// Package watch triggers batches when files change under a source tree.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/klauern/blocksync/internal/logging"
)

// DefaultDebounce is used when Options.Debounce is not positive.
const DefaultDebounce = 2 * time.Second

// ErrRunning is returned when Run is called on a watcher that is already running.
var ErrRunning = errors.New("watcher already running")

// Handler processes one debounced group of changed paths. Handlers are
// never called concurrently.
type Handler func(ctx context.Context, changed []string) error

// Options configures a Watcher.
type Options struct {
	// Root is the directory tree to watch.
	Root string
	// MaxDepth limits how many directory levels below Root are watched.
	// Negative means unlimited.
	MaxDepth int
	// Debounce is how long the tree must stay quiet before the handler runs.
	Debounce time.Duration
	// Ignore reports paths whose events should be dropped.
	Ignore func(path string) bool
	Logger *slog.Logger
}

// Watcher watches a directory tree with fsnotify and calls a handler once
// changes settle.
type Watcher struct {
	fsw  *fsnotify.Watcher
	opts Options
	log  *slog.Logger
	root string

	mu      sync.Mutex
	running bool
	dirs    map[string]int
}

// New creates a Watcher for opts.Root. Nothing is watched until Run.
func New(opts Options) (*Watcher, error) {
	if opts.Root == "" {
		return nil, errors.New("watch root is required")
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve watch root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to access watch root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch root is not a directory: %s", root)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &Watcher{
		fsw:  fsw,
		opts: opts,
		log:  logger.With(logging.Operation("watch")),
		root: root,
		dirs: make(map[string]int),
	}, nil
}

// Watched returns the directories currently watched, sorted.
func (w *Watcher) Watched() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.dirs))
	for d := range w.dirs {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Close releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Run watches until ctx is done, calling handle with each debounced batch
// of changed paths. A handler error is logged and watching continues.
// Run returns nil when ctx is canceled.
func (w *Watcher) Run(ctx context.Context, handle Handler) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return ErrRunning
	}
	w.running = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	if err := w.addTree(w.root); err != nil {
		return err
	}
	w.log.Info("watching source tree",
		logging.Path(w.root),
		logging.Count(len(w.Watched())),
		slog.Duration("debounce", w.opts.Debounce),
	)

	timer := time.NewTimer(w.opts.Debounce)
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
			if !w.accept(event) {
				continue
			}
			w.log.Debug("change detected", logging.Path(event.Name), slog.String("op", event.Op.String()))
			if event.Has(fsnotify.Create) {
				w.maybeAddDir(event.Name)
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				w.forget(event.Name)
			}
			pending[event.Name] = struct{}{}
			timer.Reset(w.opts.Debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", logging.Err(err))

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

			w.log.Info("running batch for changes", logging.Count(len(changed)))
			if err := handle(ctx, changed); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				w.log.Error("batch failed", logging.Err(err))
			}
		}
	}
}

func (w *Watcher) accept(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	if w.opts.Ignore != nil && w.opts.Ignore(event.Name) {
		return false
	}
	return true
}

// depth returns how many directory levels path is below the root.
func (w *Watcher) depth(path string) int {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}

func (w *Watcher) withinDepth(dir string) bool {
	return w.opts.MaxDepth < 0 || w.depth(dir) <= w.opts.MaxDepth
}

// addTree watches dir and every subdirectory within the depth limit.
// Unreadable subdirectories are logged and skipped.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return fmt.Errorf("failed to walk %s: %w", dir, err)
			}
			w.log.Warn("cannot watch directory", logging.Path(path), logging.Err(err))
			return fs.SkipDir
		}
		if !d.IsDir() {
			return nil
		}
		if !w.withinDepth(path) {
			return fs.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			if path == w.root {
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}
			w.log.Warn("cannot watch directory", logging.Path(path), logging.Err(err))
			return fs.SkipDir
		}
		w.mu.Lock()
		w.dirs[path] = w.depth(path)
		w.mu.Unlock()
		return nil
	})
}

func (w *Watcher) maybeAddDir(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() || !w.withinDepth(path) {
		return
	}
	if err := w.addTree(path); err != nil {
		w.log.Warn("cannot watch new directory", logging.Path(path), logging.Err(err))
	}
}

// forget drops path and its subdirectories from the watched set. fsnotify
// removes the kernel watch itself when a directory goes away.
func (w *Watcher) forget(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	prefix := path + string(filepath.Separator)
	for d := range w.dirs {
		if d == path || strings.HasPrefix(d, prefix) {
			delete(w.dirs, d)
		}
	}
}
