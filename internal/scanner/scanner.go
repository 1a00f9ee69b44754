// Package scanner discovers candidate entry files under a root directory and
// classifies them with the naming rules.
package scanner

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
	"time"

	"github.com/klauern/blocksync/internal/logging"
	"github.com/klauern/blocksync/internal/model"
	"github.com/klauern/blocksync/internal/naming"
)

// DefaultMaxDepth bounds recursion below the root when no depth is configured.
const DefaultMaxDepth = 5

// ErrRootNotFound is returned when the scan root does not exist or is not a directory.
var ErrRootNotFound = errors.New("scan root not found")

// DirError records a directory that could not be listed. Its subtree yields no files.
type DirError struct {
	Path string
	Err  error
}

// Result is the outcome of one scan pass.
type Result struct {
	Root     string
	MaxDepth int

	Valid   []model.Descriptor
	Invalid []model.Descriptor
	Ignored []string

	// TotalFiles counts every file classified into Valid, Invalid or Ignored.
	TotalFiles int
	// SkippedDirs lists directories beyond MaxDepth that were not descended into.
	SkippedDirs []string
	DirErrors   []DirError
	Duration    time.Duration
}

// Paths returns the full paths of all valid descriptors, sorted.
func (r *Result) Paths() []string {
	paths := make([]string, 0, len(r.Valid))
	for _, d := range r.Valid {
		paths = append(paths, d.FullPath)
	}
	return paths
}

// Scanner walks a directory tree using a set of naming rules.
type Scanner struct {
	rules  naming.Rules
	logger *slog.Logger
}

// New creates a Scanner for the given rules.
func New(rules naming.Rules) *Scanner {
	return &Scanner{
		rules:  rules,
		logger: logging.Default(),
	}
}

// WithLogger sets the logger used for per-directory warnings.
func (s *Scanner) WithLogger(logger *slog.Logger) *Scanner {
	s.logger = logger
	return s
}

// Rules returns the naming rules used by the scanner.
func (s *Scanner) Rules() naming.Rules {
	return s.rules
}

// Scan walks root down to maxDepth levels and classifies every file.
// Only a missing root is fatal; unreadable directories are logged and
// contribute nothing to the result.
func (s *Scanner) Scan(ctx context.Context, root string, maxDepth int) (*Result, error) {
	start := time.Now()
	if maxDepth < 0 {
		maxDepth = DefaultMaxDepth
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRootNotFound, root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrRootNotFound, root)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %q: %w", root, err)
	}

	w := &walker{
		rules:  s.rules,
		logger: s.logger,
		root:   absRoot,
		max:    maxDepth,
		result: &Result{Root: absRoot, MaxDepth: maxDepth},
	}
	if err := w.walk(ctx, absRoot, 0); err != nil {
		return nil, err
	}

	res := w.result
	res.rejectCollisions()
	res.sort()
	res.Duration = time.Since(start)

	s.logger.Debug("scan complete",
		logging.Path(absRoot),
		slog.Int("valid", len(res.Valid)),
		slog.Int("invalid", len(res.Invalid)),
		slog.Int("ignored", len(res.Ignored)),
		slog.Int("dir_errors", len(res.DirErrors)),
		slog.Duration(logging.KeyDuration, res.Duration),
	)

	return res, nil
}

type walker struct {
	rules  naming.Rules
	logger *slog.Logger
	root   string
	max    int
	result *Result
}

func (w *walker) walk(ctx context.Context, dir string, depth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		w.logger.Warn("skipping unreadable directory",
			logging.Path(dir),
			logging.Err(err),
		)
		w.result.DirErrors = append(w.result.DirErrors, DirError{Path: dir, Err: err})
		return nil
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		isDir, info, ok := w.resolve(path, entry)
		if !ok {
			continue
		}

		if isDir {
			if depth+1 > w.max {
				w.logger.Debug("depth limit reached", logging.Path(path), slog.Int("max_depth", w.max))
				w.result.SkippedDirs = append(w.result.SkippedDirs, path)
				continue
			}
			if err := w.walk(ctx, path, depth+1); err != nil {
				return err
			}
			continue
		}

		w.classify(path, entry.Name(), info)
	}
	return nil
}

// resolve reports whether path is a directory and returns file info for
// regular files. Symlinked directories are not followed.
func (w *walker) resolve(path string, entry fs.DirEntry) (bool, fs.FileInfo, bool) {
	if entry.Type()&fs.ModeSymlink != 0 {
		target, err := os.Stat(path)
		if err != nil {
			w.logger.Debug("skipping dangling symlink", logging.Path(path), logging.Err(err))
			return false, nil, false
		}
		if target.IsDir() {
			w.logger.Debug("not following symlinked directory", logging.Path(path))
			return false, nil, false
		}
		return false, target, target.Mode().IsRegular()
	}

	if entry.IsDir() {
		return true, nil, true
	}

	info, err := entry.Info()
	if err != nil {
		// Vanished between listing and stat.
		w.logger.Debug("skipping file that disappeared", logging.Path(path), logging.Err(err))
		return false, nil, false
	}
	return false, info, info.Mode().IsRegular()
}

func (w *walker) classify(path, name string, info fs.FileInfo) {
	w.result.TotalFiles++

	verdict := w.rules.Classify(name)
	if verdict.Status == model.StatusIgnored {
		w.result.Ignored = append(w.result.Ignored, path)
		return
	}

	rel, _ := filepath.Rel(w.root, path)
	desc := model.Descriptor{
		FullPath: path,
		RelPath:  rel,
		ModTime:  info.ModTime(),
		Size:     info.Size(),
		Status:   verdict.Status,
		Reason:   verdict.Reason,
	}

	if desc.Status == model.StatusValid {
		if err := w.checkSegments(rel); err != nil {
			desc.Status = model.StatusInvalid
			desc.Reason = err.Error()
		}
	}

	if desc.Status == model.StatusValid {
		id, err := w.rules.DeriveIdentity(path, w.root)
		if err != nil {
			desc.Status = model.StatusInvalid
			desc.Reason = err.Error()
		} else {
			desc.Identity = id
		}
	}

	if desc.Valid() {
		w.result.Valid = append(w.result.Valid, desc)
		return
	}
	w.logger.Debug("invalid entry file", logging.Path(path), slog.String("reason", desc.Reason))
	w.result.Invalid = append(w.result.Invalid, desc)
}

func (w *walker) checkSegments(rel string) error {
	dir := filepath.Dir(rel)
	if dir == "." {
		return nil
	}
	for _, seg := range strings.Split(filepath.ToSlash(dir), "/") {
		if err := w.rules.CheckSegment(seg); err != nil {
			return err
		}
	}
	return nil
}

// rejectCollisions moves every valid descriptor whose identity is shared by
// another valid descriptor into Invalid.
func (r *Result) rejectCollisions() {
	byID := make(map[model.Identity][]int)
	for i, d := range r.Valid {
		byID[d.Identity] = append(byID[d.Identity], i)
	}

	colliding := make(map[int]string)
	for id, idxs := range byID {
		if len(idxs) < 2 {
			continue
		}
		paths := make([]string, 0, len(idxs))
		for _, i := range idxs {
			paths = append(paths, r.Valid[i].RelPath)
		}
		sort.Strings(paths)
		for _, i := range idxs {
			colliding[i] = fmt.Sprintf("identity %s is shared by %s", id, strings.Join(paths, ", "))
		}
	}
	if len(colliding) == 0 {
		return
	}

	kept := r.Valid[:0:0]
	for i, d := range r.Valid {
		if reason, ok := colliding[i]; ok {
			d.Status = model.StatusInvalid
			d.Reason = reason
			r.Invalid = append(r.Invalid, d)
			continue
		}
		kept = append(kept, d)
	}
	r.Valid = kept
}

func (r *Result) sort() {
	sort.Slice(r.Valid, func(i, j int) bool { return r.Valid[i].FullPath < r.Valid[j].FullPath })
	sort.Slice(r.Invalid, func(i, j int) bool { return r.Invalid[i].FullPath < r.Invalid[j].FullPath })
	sort.Strings(r.Ignored)
	sort.Strings(r.SkippedDirs)
}
