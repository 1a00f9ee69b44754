package sync

import (
	"errors"
	"strings"
	"testing"

	"github.com/klauern/blocksync/internal/backup"
	"github.com/klauern/blocksync/internal/model"
)

func TestItemResult_Success(t *testing.T) {
	tests := []struct {
		name   string
		action Action
		want   bool
	}{
		{"created is success", ActionCreated, true},
		{"updated is success", ActionUpdated, true},
		{"skipped is success", ActionSkipped, true},
		{"exported is success", ActionExported, true},
		{"removed is success", ActionRemoved, true},
		{"failed is not success", ActionFailed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ir := &ItemResult{Action: tt.action}
			if got := ir.Success(); got != tt.want {
				t.Errorf("ItemResult.Success() = %v, want %v", got, tt.want)
			}
		})
	}
}

func sampleBatch() Batch {
	return Batch{Items: []ItemResult{
		{Identity: model.Identity{Name: "A", Category: "General"}, Action: ActionCreated},
		{Identity: model.Identity{Name: "B", Category: "General"}, Action: ActionUpdated},
		{Identity: model.Identity{Name: "C", Category: "General"}, Action: ActionFailed, Error: errors.New("locked")},
		{Identity: model.Identity{Name: "D", Category: "General"}, Action: ActionSkipped},
	}}
}

func TestBatch_Filters(t *testing.T) {
	b := sampleBatch()

	if got := len(b.Created()); got != 1 {
		t.Errorf("Created() = %d, want 1", got)
	}
	if got := len(b.Updated()); got != 1 {
		t.Errorf("Updated() = %d, want 1", got)
	}
	if got := len(b.Failed()); got != 1 {
		t.Errorf("Failed() = %d, want 1", got)
	}
	if got := len(b.Succeeded()); got != 2 {
		t.Errorf("Succeeded() = %d, want 2", got)
	}
	if got := b.TotalProcessed(); got != 3 {
		t.Errorf("TotalProcessed() = %d, want 3", got)
	}
	if b.Success() {
		t.Error("Success() should be false with a failed item")
	}
}

func TestImportResult_Summary(t *testing.T) {
	r := &ImportResult{Batch: sampleBatch(), Mode: ModePending}
	r.Backup = &backup.Metadata{ID: "20240301-090000-000-abcd1234"}
	r.RolledBack = true

	summary := r.Summary()
	for _, want := range []string{"pending mode", "Created: 1", "Failed:  1", "20240301-090000-000-abcd1234", "restored from backup", "General/C: locked"} {
		if !strings.Contains(summary, want) {
			t.Errorf("Summary() missing %q:\n%s", want, summary)
		}
	}

	aborted := &ImportResult{Mode: ModePending, Aborted: true}
	if !strings.Contains(aborted.Summary(), "aborted") {
		t.Error("aborted summary should say so")
	}
}

func TestExportAndRemoveSummary(t *testing.T) {
	er := &ExportResult{OutputDir: "/tmp/out", Batch: Batch{Items: []ItemResult{{Action: ActionExported}}}}
	if !strings.Contains(er.Summary(), "Exported: 1") {
		t.Errorf("export summary = %q", er.Summary())
	}

	rr := &RemoveResult{FromStore: true, Batch: Batch{Items: []ItemResult{{Action: ActionRemoved}}}}
	if !strings.Contains(rr.Summary(), "ledger and store") {
		t.Errorf("remove summary = %q", rr.Summary())
	}
}
