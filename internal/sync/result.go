package sync

import (
	"fmt"
	"strings"
	"time"

	"github.com/klauern/blocksync/internal/backup"
	"github.com/klauern/blocksync/internal/model"
)

// Action represents the action taken on an entry during a batch.
type Action string

const (
	// ActionCreated indicates a new entry was added to the store.
	ActionCreated Action = "created"

	// ActionUpdated indicates an existing entry was replaced.
	ActionUpdated Action = "updated"

	// ActionSkipped indicates the entry was not processed (canceled or excluded).
	ActionSkipped Action = "skipped"

	// ActionPlanned indicates the entry would be processed (dry run).
	ActionPlanned Action = "planned"

	// ActionFailed indicates an error occurred processing the entry.
	ActionFailed Action = "failed"

	// ActionExported indicates the entry was written to the filesystem.
	ActionExported Action = "exported"

	// ActionRemoved indicates the entry was removed.
	ActionRemoved Action = "removed"
)

// ItemResult represents the outcome of processing a single entry.
type ItemResult struct {
	// Identity is the entry that was processed.
	Identity model.Identity `json:"identity" yaml:"identity"`

	// Path is the source file (import) or output file (export).
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// Action is the action that was taken.
	Action Action `json:"action" yaml:"action"`

	// Error contains any error that occurred during processing.
	Error error `json:"-" yaml:"-"`

	// Message provides additional context about the action.
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

// Success returns true if the entry was successfully processed.
func (ir *ItemResult) Success() bool {
	return ir.Action != ActionFailed
}

// ErrorText returns the error message, or "" when there is none.
func (ir *ItemResult) ErrorText() string {
	if ir.Error == nil {
		return ""
	}
	return ir.Error.Error()
}

// Batch holds what every mutating or exporting batch reports.
type Batch struct {
	// Items contains the result for each processed entry.
	Items []ItemResult `json:"items" yaml:"items"`

	// Backup is the snapshot taken before the first mutation.
	Backup *backup.Metadata `json:"backup,omitempty" yaml:"backup,omitempty"`

	// RolledBack reports whether the store was restored from Backup.
	RolledBack bool `json:"rolled_back" yaml:"rolled_back"`

	// Canceled reports whether the batch stopped between items.
	Canceled bool `json:"canceled" yaml:"canceled"`

	// DryRun indicates nothing was changed.
	DryRun bool `json:"dry_run" yaml:"dry_run"`

	// States lists the state machine steps the batch went through.
	States []State `json:"states" yaml:"states"`

	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Succeeded returns items that were processed successfully.
func (b *Batch) Succeeded() []ItemResult {
	var out []ItemResult
	for _, ir := range b.Items {
		if ir.Action != ActionFailed && ir.Action != ActionSkipped && ir.Action != ActionPlanned {
			out = append(out, ir)
		}
	}
	return out
}

// Failed returns items that failed.
func (b *Batch) Failed() []ItemResult {
	return b.filterByAction(ActionFailed)
}

// Skipped returns items that were not processed.
func (b *Batch) Skipped() []ItemResult {
	return b.filterByAction(ActionSkipped)
}

// Created returns entries that were added.
func (b *Batch) Created() []ItemResult {
	return b.filterByAction(ActionCreated)
}

// Updated returns entries that were replaced.
func (b *Batch) Updated() []ItemResult {
	return b.filterByAction(ActionUpdated)
}

// filterByAction returns items with the given action.
func (b *Batch) filterByAction(action Action) []ItemResult {
	var filtered []ItemResult
	for _, ir := range b.Items {
		if ir.Action == action {
			filtered = append(filtered, ir)
		}
	}
	return filtered
}

// Success returns true if no item failed.
func (b *Batch) Success() bool {
	return len(b.Failed()) == 0
}

// TotalProcessed returns the number of items attempted.
func (b *Batch) TotalProcessed() int {
	return len(b.Items) - len(b.Skipped())
}

// ImportResult contains the complete outcome of an import batch.
type ImportResult struct {
	Batch

	// Plan is the scan and diff the batch was computed from.
	Plan *Plan `json:"plan" yaml:"plan"`

	// Mode is the work selection used.
	Mode Mode `json:"mode" yaml:"mode"`

	// Aborted reports that confirmation was declined; nothing was changed.
	Aborted bool `json:"aborted" yaml:"aborted"`

	// Pruned lists backups deleted by retention after the batch.
	Pruned []string `json:"pruned,omitempty" yaml:"pruned,omitempty"`
}

// Summary returns a human-readable summary of the import result.
func (r *ImportResult) Summary() string {
	var sb strings.Builder

	switch {
	case r.DryRun:
		sb.WriteString("Dry run - no changes made\n")
	case r.Aborted:
		sb.WriteString("Import aborted - no changes made\n")
	case r.Canceled:
		sb.WriteString("Import canceled - completed items were kept\n")
	}

	sb.WriteString(fmt.Sprintf("Imported using %s mode\n", r.Mode))
	sb.WriteString(fmt.Sprintf("  Created: %d\n", len(r.Created())))
	sb.WriteString(fmt.Sprintf("  Updated: %d\n", len(r.Updated())))
	if r.DryRun {
		sb.WriteString(fmt.Sprintf("  Planned: %d\n", len(r.filterByAction(ActionPlanned))))
	}
	sb.WriteString(fmt.Sprintf("  Skipped: %d\n", len(r.Skipped())))
	sb.WriteString(fmt.Sprintf("  Failed:  %d\n", len(r.Failed())))
	if r.Backup != nil {
		sb.WriteString(fmt.Sprintf("  Backup:  %s\n", r.Backup.ID))
	}
	if r.RolledBack {
		sb.WriteString("  Store restored from backup\n")
	}

	writeFailures(&sb, r.Failed())
	return sb.String()
}

// ExportResult contains the outcome of an export batch.
type ExportResult struct {
	Batch

	// OutputDir is the directory entries were written under.
	OutputDir string `json:"output_dir" yaml:"output_dir"`
}

// Exported returns items that were written.
func (r *ExportResult) Exported() []ItemResult {
	return r.filterByAction(ActionExported)
}

// Summary returns a human-readable summary of the export result.
func (r *ExportResult) Summary() string {
	var sb strings.Builder
	if r.Canceled {
		sb.WriteString("Export canceled\n")
	}
	sb.WriteString(fmt.Sprintf("Exported to %s\n", r.OutputDir))
	sb.WriteString(fmt.Sprintf("  Exported: %d\n", len(r.Exported())))
	sb.WriteString(fmt.Sprintf("  Failed:   %d\n", len(r.Failed())))
	writeFailures(&sb, r.Failed())
	return sb.String()
}

// RemoveResult contains the outcome of a removal batch.
type RemoveResult struct {
	Batch

	// FromStore reports whether entries were also removed from the store.
	FromStore bool `json:"from_store" yaml:"from_store"`
}

// Removed returns items that were removed.
func (r *RemoveResult) Removed() []ItemResult {
	return r.filterByAction(ActionRemoved)
}

// Summary returns a human-readable summary of the removal result.
func (r *RemoveResult) Summary() string {
	var sb strings.Builder
	where := "ledger"
	if r.FromStore {
		where = "ledger and store"
	}
	sb.WriteString(fmt.Sprintf("Removed from %s\n", where))
	sb.WriteString(fmt.Sprintf("  Removed: %d\n", len(r.Removed())))
	sb.WriteString(fmt.Sprintf("  Skipped: %d\n", len(r.Skipped())))
	sb.WriteString(fmt.Sprintf("  Failed:  %d\n", len(r.Failed())))
	if r.RolledBack {
		sb.WriteString("  Store restored from backup\n")
	}
	writeFailures(&sb, r.Failed())
	return sb.String()
}

func writeFailures(sb *strings.Builder, failed []ItemResult) {
	if len(failed) == 0 {
		return
	}
	sb.WriteString("\nErrors:\n")
	for _, f := range failed {
		sb.WriteString(fmt.Sprintf("  - %s: %v\n", f.Identity, f.Error))
	}
}
