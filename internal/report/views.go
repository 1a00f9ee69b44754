package report

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/klauern/blocksync/internal/archive"
	"github.com/klauern/blocksync/internal/backup"
	"github.com/klauern/blocksync/internal/ledger"
	"github.com/klauern/blocksync/internal/model"
	"github.com/klauern/blocksync/internal/scanner"
	"github.com/klauern/blocksync/internal/store"
	"github.com/klauern/blocksync/internal/sync"
)

const timeLayout = ledger.TimeLayout

var titleCaser = cases.Title(language.English)

func title(s string) string {
	return titleCaser.String(s)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(timeLayout)
}

// StatusEntry is one row of a status report.
type StatusEntry struct {
	Name     string    `json:"name" yaml:"name"`
	Category string    `json:"category" yaml:"category"`
	State    string    `json:"state" yaml:"state"`
	Modified time.Time `json:"modified,omitzero" yaml:"modified,omitempty"`
	Path     string    `json:"path" yaml:"path"`
}

// InvalidFile is a file that carries the naming convention but was rejected.
type InvalidFile struct {
	Path   string `json:"path" yaml:"path"`
	Reason string `json:"reason" yaml:"reason"`
}

// StatusView is the structured form of a status report.
type StatusView struct {
	Root        string         `json:"root" yaml:"root"`
	GeneratedAt time.Time      `json:"generated_at" yaml:"generated_at"`
	InSync      bool           `json:"in_sync" yaml:"in_sync"`
	Counts      map[string]int `json:"counts" yaml:"counts"`
	Entries     []StatusEntry  `json:"entries" yaml:"entries"`
	Invalid     []InvalidFile  `json:"invalid,omitempty" yaml:"invalid,omitempty"`
	Unresolved  []string       `json:"unresolved,omitempty" yaml:"unresolved,omitempty"`
}

// NewStatusView flattens a plan into report rows. Up-to-date entries are
// included only when verbose is set.
func NewStatusView(p *sync.Plan, verbose bool) StatusView {
	v := StatusView{
		Root:        p.Root,
		GeneratedAt: p.GeneratedAt,
		InSync:      p.Diff.InSync(),
		Counts:      make(map[string]int),
		Unresolved:  p.Diff.Unresolved,
	}
	for state, n := range p.Diff.Counts() {
		v.Counts[string(state)] = n
	}

	addItems := func(items []ledger.Item) {
		for _, it := range items {
			v.Entries = append(v.Entries, StatusEntry{
				Name:     it.Descriptor.Identity.Name,
				Category: it.Descriptor.Identity.Category,
				State:    string(it.State),
				Modified: ledger.Truncate(it.Descriptor.ModTime),
				Path:     it.Descriptor.FullPath,
			})
		}
	}
	addGone := func(gone []ledger.Gone) {
		for _, g := range gone {
			e := StatusEntry{
				Name:     g.Identity.Name,
				Category: g.Identity.Category,
				State:    string(g.State),
				Path:     g.Path,
			}
			if g.Previous != nil {
				e.Modified = g.Previous.LastModified
			}
			v.Entries = append(v.Entries, e)
		}
	}

	addItems(p.Diff.New)
	addItems(p.Diff.Modified)
	if verbose {
		addItems(p.Diff.UpToDate)
	}
	addGone(p.Diff.Missing)
	addGone(p.Diff.Removed)

	if p.Scan != nil {
		v.Counts["invalid"] = len(p.Scan.Invalid)
		v.Counts["ignored"] = len(p.Scan.Ignored)
		for _, d := range p.Scan.Invalid {
			v.Invalid = append(v.Invalid, InvalidFile{Path: d.FullPath, Reason: d.Reason})
		}
	}
	return v
}

// Status writes the scan and diff of a plan.
func (r *Renderer) Status(w io.Writer, p *sync.Plan) error {
	v := NewStatusView(p, r.opts.Verbose)

	doc := document{
		Title: "Status of " + v.Root,
		Summary: []field{
			{"New", strconv.Itoa(v.Counts[string(ledger.StateNew)])},
			{"Modified", strconv.Itoa(v.Counts[string(ledger.StateModified)])},
			{"Up to date", strconv.Itoa(v.Counts[string(ledger.StateUpToDate)])},
			{"Missing", strconv.Itoa(v.Counts[string(ledger.StateMissing)])},
			{"Removed", strconv.Itoa(v.Counts[string(ledger.StateRemoved)])},
			{"Invalid", strconv.Itoa(v.Counts["invalid"])},
		},
		Columns: []string{"State", "Name", "Category", "Modified", "Path"},
		Empty:   "Everything is up to date.",
		Data:    v,
	}
	for _, e := range v.Entries {
		doc.Rows = append(doc.Rows, []string{title(e.State), e.Name, e.Category, formatTime(e.Modified), e.Path})
	}
	for _, inv := range v.Invalid {
		doc.Notes = append(doc.Notes, fmt.Sprintf("Invalid: %s (%s)", inv.Path, inv.Reason))
	}
	for _, u := range v.Unresolved {
		doc.Notes = append(doc.Notes, "Unresolved manifest path: "+u)
	}
	return r.render(w, doc)
}

// ScanView is the structured form of a scan report.
type ScanView struct {
	Root        string             `json:"root" yaml:"root"`
	MaxDepth    int                `json:"max_depth" yaml:"max_depth"`
	TotalFiles  int                `json:"total_files" yaml:"total_files"`
	Valid       []model.Descriptor `json:"valid" yaml:"valid"`
	Invalid     []model.Descriptor `json:"invalid" yaml:"invalid"`
	Ignored     []string           `json:"ignored,omitempty" yaml:"ignored,omitempty"`
	SkippedDirs []string           `json:"skipped_dirs,omitempty" yaml:"skipped_dirs,omitempty"`
	DirErrors   []InvalidFile      `json:"dir_errors,omitempty" yaml:"dir_errors,omitempty"`
	Duration    string             `json:"duration" yaml:"duration"`
}

// Scan writes the classification buckets of a scan.
func (r *Renderer) Scan(w io.Writer, res *scanner.Result) error {
	v := ScanView{
		Root:        res.Root,
		MaxDepth:    res.MaxDepth,
		TotalFiles:  res.TotalFiles,
		Valid:       res.Valid,
		Invalid:     res.Invalid,
		Ignored:     res.Ignored,
		SkippedDirs: res.SkippedDirs,
		Duration:    res.Duration.String(),
	}
	for _, de := range res.DirErrors {
		v.DirErrors = append(v.DirErrors, InvalidFile{Path: de.Path, Reason: de.Err.Error()})
	}

	doc := document{
		Title: "Scan of " + res.Root,
		Summary: []field{
			{"Files", strconv.Itoa(res.TotalFiles)},
			{"Valid", strconv.Itoa(len(res.Valid))},
			{"Invalid", strconv.Itoa(len(res.Invalid))},
			{"Ignored", strconv.Itoa(len(res.Ignored))},
			{"Max depth", strconv.Itoa(res.MaxDepth)},
		},
		Columns: []string{"Status", "Name", "Category", "Path", "Reason"},
		Empty:   "No candidate files found.",
		Data:    v,
	}
	for _, d := range res.Valid {
		doc.Rows = append(doc.Rows, []string{title(string(d.Status)), d.Identity.Name, d.Identity.Category, d.RelPath, ""})
	}
	for _, d := range res.Invalid {
		doc.Rows = append(doc.Rows, []string{title(string(d.Status)), "", "", d.RelPath, d.Reason})
	}
	if r.opts.Verbose {
		for _, p := range res.Ignored {
			doc.Rows = append(doc.Rows, []string{title(string(model.StatusIgnored)), "", "", p, ""})
		}
	}
	for _, dir := range res.SkippedDirs {
		doc.Notes = append(doc.Notes, "Beyond max depth: "+dir)
	}
	for _, de := range v.DirErrors {
		doc.Notes = append(doc.Notes, fmt.Sprintf("Unreadable directory: %s (%s)", de.Path, de.Reason))
	}
	return r.render(w, doc)
}

// ItemView is one processed entry in a batch report.
type ItemView struct {
	Name     string `json:"name" yaml:"name"`
	Category string `json:"category" yaml:"category"`
	Action   string `json:"action" yaml:"action"`
	Path     string `json:"path,omitempty" yaml:"path,omitempty"`
	Message  string `json:"message,omitempty" yaml:"message,omitempty"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
}

// BatchView is the structured form of a batch report.
type BatchView struct {
	Operation  string         `json:"operation" yaml:"operation"`
	Mode       string         `json:"mode,omitempty" yaml:"mode,omitempty"`
	DryRun     bool           `json:"dry_run" yaml:"dry_run"`
	Aborted    bool           `json:"aborted,omitempty" yaml:"aborted,omitempty"`
	Canceled   bool           `json:"canceled" yaml:"canceled"`
	RolledBack bool           `json:"rolled_back" yaml:"rolled_back"`
	Backup     string         `json:"backup,omitempty" yaml:"backup,omitempty"`
	OutputDir  string         `json:"output_dir,omitempty" yaml:"output_dir,omitempty"`
	Counts     map[string]int `json:"counts" yaml:"counts"`
	Items      []ItemView     `json:"items" yaml:"items"`
	Pruned     []string       `json:"pruned,omitempty" yaml:"pruned,omitempty"`
	States     []string       `json:"states" yaml:"states"`
	Duration   string         `json:"duration" yaml:"duration"`
}

func newBatchView(op string, b *sync.Batch) BatchView {
	v := BatchView{
		Operation:  op,
		DryRun:     b.DryRun,
		Canceled:   b.Canceled,
		RolledBack: b.RolledBack,
		Counts:     make(map[string]int),
		Duration:   b.Duration.String(),
	}
	if b.Backup != nil {
		v.Backup = b.Backup.ID
	}
	for _, s := range b.States {
		v.States = append(v.States, string(s))
	}
	for _, ir := range b.Items {
		v.Counts[string(ir.Action)]++
		v.Items = append(v.Items, ItemView{
			Name:     ir.Identity.Name,
			Category: ir.Identity.Category,
			Action:   string(ir.Action),
			Path:     ir.Path,
			Message:  ir.Message,
			Error:    ir.ErrorText(),
		})
	}
	return v
}

func (r *Renderer) batch(w io.Writer, v BatchView, summary string) error {
	doc := document{
		Columns: []string{"Action", "Name", "Category", "Path", "Detail"},
		Data:    v,
	}
	if r.opts.Format == FormatMarkdown {
		doc.Title = title(v.Operation)
		doc.Summary = []field{{"Duration", v.Duration}}
		for _, action := range []sync.Action{
			sync.ActionCreated, sync.ActionUpdated, sync.ActionExported, sync.ActionRemoved,
			sync.ActionPlanned, sync.ActionSkipped, sync.ActionFailed,
		} {
			if n := v.Counts[string(action)]; n > 0 {
				doc.Summary = append(doc.Summary, field{title(string(action)), strconv.Itoa(n)})
			}
		}
		if v.Backup != "" {
			doc.Summary = append(doc.Summary, field{"Backup", v.Backup})
		}
	} else {
		doc.Notes = []string{summary}
	}
	for _, it := range v.Items {
		detail := it.Message
		if it.Error != "" {
			detail = it.Error
		}
		doc.Rows = append(doc.Rows, []string{title(it.Action), it.Name, it.Category, it.Path, detail})
	}
	return r.render(w, doc)
}

// Import writes the outcome of an import batch.
func (r *Renderer) Import(w io.Writer, res *sync.ImportResult) error {
	v := newBatchView("import", &res.Batch)
	v.Mode = string(res.Mode)
	v.Aborted = res.Aborted
	v.Pruned = res.Pruned
	return r.batch(w, v, res.Summary())
}

// Export writes the outcome of an export batch.
func (r *Renderer) Export(w io.Writer, res *sync.ExportResult) error {
	v := newBatchView("export", &res.Batch)
	v.OutputDir = res.OutputDir
	return r.batch(w, v, res.Summary())
}

// Remove writes the outcome of a removal batch.
func (r *Renderer) Remove(w io.Writer, res *sync.RemoveResult) error {
	return r.batch(w, newBatchView("remove", &res.Batch), res.Summary())
}

// LedgerEntry is one row of a ledger listing.
type LedgerEntry struct {
	Name         string    `json:"name" yaml:"name"`
	Category     string    `json:"category" yaml:"category"`
	LastModified time.Time `json:"last_modified" yaml:"last_modified"`
	ImportedAt   time.Time `json:"imported_at,omitzero" yaml:"imported_at,omitempty"`
	SourcePath   string    `json:"source_path" yaml:"source_path"`
}

// Ledger writes the recorded entries of the change ledger.
func (r *Renderer) Ledger(w io.Writer, entries []ledger.Entry) error {
	rows := make([]LedgerEntry, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, LedgerEntry{
			Name:         e.Identity.Name,
			Category:     e.Identity.Category,
			LastModified: e.LastModified,
			ImportedAt:   e.ImportedAt,
			SourcePath:   e.SourcePath,
		})
	}

	doc := document{
		Summary: []field{{"Entries", strconv.Itoa(len(rows))}},
		Columns: []string{"Name", "Category", "Last Modified", "Imported", "Source"},
		Empty:   "The ledger is empty.",
		Data:    rows,
	}
	for _, e := range rows {
		doc.Rows = append(doc.Rows, []string{e.Name, e.Category, formatTime(e.LastModified), formatTime(e.ImportedAt), e.SourcePath})
	}
	return r.render(w, doc)
}

// BackupEntry is one row of a backup listing.
type BackupEntry struct {
	ID          string    `json:"id" yaml:"id"`
	Operation   string    `json:"operation" yaml:"operation"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	Size        int64     `json:"size" yaml:"size"`
	Hash        string    `json:"hash" yaml:"hash"`
	SourcePath  string    `json:"source_path" yaml:"source_path"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
}

// Backups writes a list of store snapshots.
func (r *Renderer) Backups(w io.Writer, backups []backup.Metadata) error {
	rows := make([]BackupEntry, 0, len(backups))
	for _, b := range backups {
		rows = append(rows, BackupEntry{
			ID:          b.ID,
			Operation:   b.Operation,
			CreatedAt:   b.CreatedAt,
			Size:        b.Size,
			Hash:        b.Hash,
			SourcePath:  b.SourcePath,
			Description: b.Description,
		})
	}

	doc := document{
		Columns: []string{"ID", "Operation", "Created", "Size", "Description"},
		Empty:   "No backups found.",
		Data:    rows,
	}
	for _, b := range rows {
		doc.Rows = append(doc.Rows, []string{b.ID, b.Operation, b.CreatedAt.Format("2006-01-02 15:04:05"), FormatBytes(b.Size), b.Description})
	}
	return r.render(w, doc)
}

// BackupStats writes aggregate backup statistics.
func (r *Renderer) BackupStats(w io.Writer, s *backup.Stats) error {
	doc := document{
		Title: "Backup statistics",
		Summary: []field{
			{"Backups", strconv.Itoa(s.TotalBackups)},
			{"Total size", FormatBytes(s.TotalSize)},
			{"Oldest", formatTime(s.OldestBackup)},
			{"Newest", formatTime(s.NewestBackup)},
		},
		Columns: []string{"Source", "Backups"},
		Data:    s,
	}
	for _, src := range slices.Sorted(maps.Keys(s.BackupsBySource)) {
		doc.Rows = append(doc.Rows, []string{src, strconv.Itoa(s.BackupsBySource[src])})
	}
	return r.render(w, doc)
}

// FormatBytes renders a byte count with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// Rollback writes the outcome of restoring the store from a snapshot.
func (r *Renderer) Rollback(w io.Writer, res *sync.RollbackResult) error {
	doc := document{
		Title: "Store restored",
		Data:  res,
	}
	if res.Restored != nil {
		doc.Summary = append(doc.Summary,
			field{"Backup", res.Restored.ID},
			field{"Created", formatTime(res.Restored.CreatedAt)},
			field{"Store", res.Restored.SourcePath},
		)
	}
	if res.Safety != nil {
		doc.Notes = append(doc.Notes, fmt.Sprintf("The previous store was saved as backup %s", res.Safety.ID))
	}
	return r.render(w, doc)
}

// Archive writes the manifest of an export archive.
func (r *Renderer) Archive(w io.Writer, m *archive.Manifest) error {
	doc := document{
		Summary: []field{
			{"Created", formatTime(m.CreatedAt)},
			{"Entries", strconv.Itoa(m.EntryCount)},
		},
		Columns: []string{"Name", "Category", "File", "Size", "Modified"},
		Empty:   "The archive holds no entries.",
		Data:    m,
	}
	if m.Store != "" {
		doc.Summary = append(doc.Summary, field{"Store", m.Store})
	}
	if m.Category != "" {
		doc.Summary = append(doc.Summary, field{"Category", m.Category})
	}
	for _, e := range m.Entries {
		doc.Rows = append(doc.Rows, []string{e.Name, e.Category, e.Filename, FormatBytes(e.Size), formatTime(e.ModifiedAt)})
	}
	return r.render(w, doc)
}

// Store writes the entries held by a document store.
func (r *Renderer) Store(w io.Writer, entries []store.Entry) error {
	doc := document{
		Summary: []field{{"Entries", strconv.Itoa(len(entries))}},
		Columns: []string{"Name", "Category", "Size", "Updated"},
		Empty:   "The store is empty.",
		Data:    entries,
	}
	for _, e := range entries {
		doc.Rows = append(doc.Rows, []string{e.Identity.Name, e.Identity.Category, FormatBytes(e.Size), formatTime(e.UpdatedAt)})
	}
	return r.render(w, doc)
}
