// Package ledger records what was last imported for each entry identity and
// which source paths were observed by the last completed cycle.
package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/klauern/blocksync/internal/logging"
	"github.com/klauern/blocksync/internal/model"
)

// TimeLayout is the on-disk timestamp layout. Ledger timestamps have
// minute resolution and are interpreted in local time.
const TimeLayout = "2006-01-02 15:04"

// FilePerm is the permission used for ledger and manifest files.
const FilePerm = 0o640

// Entry is the persisted record of the last successful import of one identity.
type Entry struct {
	Identity     model.Identity `json:"identity" yaml:"identity"`
	LastModified time.Time      `json:"last_modified" yaml:"last_modified"`
	SourcePath   string         `json:"source_path" yaml:"source_path"`
	ImportedAt   time.Time      `json:"imported_at,omitzero" yaml:"imported_at,omitempty"`
}

// LoadReport describes how the ledger and manifest files were read.
type LoadReport struct {
	LedgerEntries   int
	ManifestPaths   int
	SkippedLines    int
	SkippedManifest int
	// Warnings holds read failures that caused a file to load as empty.
	Warnings []string
}

// Ledger is the in-memory change ledger with an explicit load/save lifecycle.
// It is not safe for concurrent mutation.
type Ledger struct {
	path         string
	manifestPath string

	entries  map[model.Identity]Entry
	manifest map[string]struct{}
	dirty    bool

	logger *slog.Logger
	now    func() time.Time
}

// New returns an empty ledger bound to the given files.
func New(ledgerPath, manifestPath string) *Ledger {
	return &Ledger{
		path:         ledgerPath,
		manifestPath: manifestPath,
		entries:      make(map[model.Identity]Entry),
		manifest:     make(map[string]struct{}),
		logger:       logging.Default(),
		now:          time.Now,
	}
}

// Load reads the ledger and manifest files. Missing files are an empty
// state. Unreadable files and malformed lines are logged and skipped; Load
// never fails.
func Load(ledgerPath, manifestPath string) (*Ledger, LoadReport) {
	l := New(ledgerPath, manifestPath)
	var report LoadReport

	if data, err := os.ReadFile(ledgerPath); err == nil { // #nosec G304 - path comes from configuration
		entries, skipped := parseLedger(data, l.logger)
		for _, e := range entries {
			l.entries[e.Identity] = e
		}
		report.SkippedLines = skipped
	} else if !errors.Is(err, os.ErrNotExist) {
		l.logger.Warn("ledger unreadable, starting empty", logging.Path(ledgerPath), logging.Err(err))
		report.Warnings = append(report.Warnings, fmt.Sprintf("ledger %s: %v", ledgerPath, err))
	}

	if data, err := os.ReadFile(manifestPath); err == nil { // #nosec G304 - path comes from configuration
		paths, skipped := parseManifest(data)
		for _, p := range paths {
			l.manifest[p] = struct{}{}
		}
		report.SkippedManifest = skipped
	} else if !errors.Is(err, os.ErrNotExist) {
		l.logger.Warn("manifest unreadable, starting empty", logging.Path(manifestPath), logging.Err(err))
		report.Warnings = append(report.Warnings, fmt.Sprintf("manifest %s: %v", manifestPath, err))
	}

	if report.SkippedLines > 0 {
		l.logger.Warn("skipped malformed ledger lines", logging.Path(ledgerPath), logging.Count(report.SkippedLines))
	}

	report.LedgerEntries = len(l.entries)
	report.ManifestPaths = len(l.manifest)
	return l, report
}

// Path returns the ledger file path.
func (l *Ledger) Path() string { return l.path }

// ManifestPath returns the manifest file path.
func (l *Ledger) ManifestPath() string { return l.manifestPath }

// Len returns the number of ledger entries.
func (l *Ledger) Len() int { return len(l.entries) }

// Dirty reports whether there are changes not yet saved.
func (l *Ledger) Dirty() bool { return l.dirty }

// Lookup returns the entry for an identity.
func (l *Ledger) Lookup(id model.Identity) (Entry, bool) {
	e, ok := l.entries[id]
	return e, ok
}

// Entries returns all entries sorted by identity.
func (l *Ledger) Entries() []Entry {
	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity.Less(out[j].Identity) })
	return out
}

// Commit records a successful import. Writing an existing identity
// overwrites it. The timestamp is truncated to the ledger's resolution so
// the stored value is never ahead of the file that produced it.
func (l *Ledger) Commit(id model.Identity, lastModified time.Time, sourcePath string) {
	l.entries[id] = Entry{
		Identity:     id,
		LastModified: Truncate(lastModified),
		SourcePath:   sourcePath,
		ImportedAt:   Truncate(l.now()),
	}
	l.dirty = true
}

// Remove deletes the entry for an identity and reports whether it existed.
func (l *Ledger) Remove(id model.Identity) bool {
	if _, ok := l.entries[id]; !ok {
		return false
	}
	delete(l.entries, id)
	l.dirty = true
	return true
}

// Purge deletes all entries and clears the manifest. It returns the number
// of entries removed.
func (l *Ledger) Purge() int {
	n := len(l.entries)
	l.entries = make(map[model.Identity]Entry)
	l.manifest = make(map[string]struct{})
	l.dirty = true
	return n
}

// Manifest returns the manifest paths, sorted.
func (l *Ledger) Manifest() []string {
	out := make([]string, 0, len(l.manifest))
	for p := range l.manifest {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// InManifest reports whether path was observed by the last completed cycle.
func (l *Ledger) InManifest(path string) bool {
	_, ok := l.manifest[path]
	return ok
}

// UpdateManifest replaces the whole manifest with the given descriptors' paths.
func (l *Ledger) UpdateManifest(descs []model.Descriptor) {
	m := make(map[string]struct{}, len(descs))
	for _, d := range descs {
		m[d.FullPath] = struct{}{}
	}
	l.manifest = m
	l.dirty = true
}

// Save persists the ledger entries. Use SaveManifest for the manifest.
func (l *Ledger) Save() error {
	if err := writeLedger(l.path, l.Entries(), l.now()); err != nil {
		return fmt.Errorf("failed to save ledger: %w", err)
	}
	l.logger.Debug("ledger saved", logging.Path(l.path), logging.Count(len(l.entries)))
	l.dirty = false
	return nil
}

// SaveManifest persists the manifest.
func (l *Ledger) SaveManifest() error {
	if err := writeManifest(l.manifestPath, l.Manifest()); err != nil {
		return fmt.Errorf("failed to save manifest: %w", err)
	}
	l.logger.Debug("manifest saved", logging.Path(l.manifestPath), logging.Count(len(l.manifest)))
	return nil
}

// SaveAll persists both files.
func (l *Ledger) SaveAll() error {
	if err := l.Save(); err != nil {
		return err
	}
	return l.SaveManifest()
}

// Truncate reduces t to the ledger's minute resolution in local time.
func Truncate(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	t = t.In(time.Local)
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, time.Local)
}
