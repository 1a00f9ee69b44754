package e2e_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauern/blocksync/internal/e2e"
	"github.com/klauern/blocksync/internal/report"
)

// lastWeek is far enough in the past that a fresh write is seen as a change.
var lastWeek = time.Now().Add(-7 * 24 * time.Hour).Truncate(time.Minute)

// seeded returns a harness with an initialized store and two blocks on disk.
func seeded(t *testing.T) (*e2e.Harness, *e2e.Fixture) {
	t.Helper()
	h := e2e.NewHarness(t)
	src := h.SourceFixture()
	src.WriteBlock("AT_Foo.docx", "foo", lastWeek)
	src.WriteBlock("Legal/AT_Bar.docx", "bar", lastWeek)
	e2e.AssertSuccess(t, h.Run("store", "init"))
	return h, src
}

// TestVersionCommand verifies the version command works correctly.
func TestVersionCommand(t *testing.T) {
	h := e2e.NewHarness(t)

	result := h.Run("version")

	e2e.AssertSuccess(t, result)
	e2e.AssertOutputContains(t, result, "blocksync version")
	e2e.AssertOutputContains(t, result, "go:")
}

// TestConfigShowCommand verifies config show outputs the default configuration.
func TestConfigShowCommand(t *testing.T) {
	h := e2e.NewHarness(t)

	result := h.Run("config", "show")

	e2e.AssertSuccess(t, result)
	for _, section := range []string{"source:", "naming:", "store:", "ledger:", "backup:", "import:", "watch:"} {
		e2e.AssertOutputContains(t, result, section)
	}
	e2e.AssertOutputContains(t, result, h.SourceRoot())
}

// TestConfigFileTOML verifies a TOML config file changes the naming rules.
func TestConfigFileTOML(t *testing.T) {
	h := e2e.NewHarness(t)
	src := h.SourceFixture()
	src.WriteBlock("BB_Clause.docx", "clause", lastWeek)
	src.WriteBlock("AT_Foo.docx", "foo", lastWeek)

	cfgPath := h.TempFixture().WriteFile("blocksync.toml", "[naming]\nprefix = \"BB_\"\n")

	result := h.Run("--config", cfgPath, "scan")

	e2e.AssertSuccess(t, result)
	e2e.AssertOutputContains(t, result, "Clause")
	e2e.AssertOutputNotContains(t, result, "Foo")
}

// TestStatusBeforeStoreExists verifies status works without a store.
func TestStatusBeforeStoreExists(t *testing.T) {
	h := e2e.NewHarness(t)
	h.SourceFixture().WriteBlock("AT_Foo.docx", "foo", lastWeek)

	result := h.Run("status")

	e2e.AssertSuccess(t, result)
	e2e.AssertOutputContains(t, result, "New:")
	e2e.AssertOutputContains(t, result, "Foo")
}

// TestImportWithoutStore verifies import refuses to run before store init.
func TestImportWithoutStore(t *testing.T) {
	h := e2e.NewHarness(t)
	h.SourceFixture().WriteBlock("AT_Foo.docx", "foo", lastWeek)

	result := h.Run("import", "--yes")

	e2e.AssertError(t, result)
	e2e.AssertExitCode(t, result, 1)
	e2e.AssertErrorContains(t, result, "store init")
}

// TestImportMissingSourceRoot verifies a missing source tree is reported.
func TestImportMissingSourceRoot(t *testing.T) {
	h := e2e.NewHarness(t)
	e2e.AssertSuccess(t, h.Run("store", "init"))

	result := h.Run("--root", filepath.Join(h.HomeDir(), "nowhere"), "import", "--yes")

	e2e.AssertError(t, result)
}

// TestFullSyncCycle walks a block through new, up to date, modified and missing.
func TestFullSyncCycle(t *testing.T) {
	h, src := seeded(t)

	result := h.Run("import", "--yes")
	e2e.AssertSuccess(t, result)
	e2e.AssertCount(t, result, "Created", 2)

	e2e.AssertFileExists(t, filepath.Join(h.DataDir(), "ledger.txt"))
	e2e.AssertFileContains(t, filepath.Join(h.DataDir(), "manifest.txt"), src.Path("Legal/AT_Bar.docx"))

	result = h.Run("status")
	e2e.AssertSuccess(t, result)
	e2e.AssertOutputContains(t, result, "Everything is up to date.")

	src.WriteBlock("AT_Foo.docx", "foo v2", lastWeek.Add(time.Hour))
	result = h.Run("status")
	e2e.AssertSuccess(t, result)
	e2e.AssertCount(t, result, "Modified", 1)

	result = h.Run("import", "--yes")
	e2e.AssertSuccess(t, result)
	e2e.AssertCount(t, result, "Updated", 1)
	e2e.AssertCount(t, result, "Created", 0)

	src.Remove("Legal/AT_Bar.docx")
	result = h.Run("status")
	e2e.AssertSuccess(t, result)
	e2e.AssertOutputContains(t, result, "Missing")
	e2e.AssertOutputContains(t, result, "Bar")
}

// TestImportSameMinuteIsUnchanged verifies sub-minute edits are not seen.
func TestImportSameMinuteIsUnchanged(t *testing.T) {
	h, src := seeded(t)
	e2e.AssertSuccess(t, h.Run("import", "--yes"))

	src.WriteBlock("AT_Foo.docx", "foo again", lastWeek.Add(30*time.Second))

	result := h.Run("import", "--yes")
	e2e.AssertSuccess(t, result)
	e2e.AssertCount(t, result, "Updated", 0)
}

// TestImportConfirmation verifies declining the prompt leaves the store alone.
func TestImportConfirmation(t *testing.T) {
	h, _ := seeded(t)

	result := h.RunWithStdin("no\n", "import")
	e2e.AssertSuccess(t, result)
	e2e.AssertOutputContains(t, result, "Import aborted - no changes made")
	e2e.AssertStderrContains(t, result, "2 new entries will be added")
	e2e.AssertStderrContains(t, result, "+ Legal/Bar")

	result = h.Run("store", "list")
	e2e.AssertSuccess(t, result)
	e2e.AssertOutputContains(t, result, "The store is empty.")

	result = h.RunWithStdin("yes\n", "import")
	e2e.AssertSuccess(t, result)
	e2e.AssertCount(t, result, "Created", 2)
}

// TestImportDryRun verifies a dry run plans work without touching anything.
func TestImportDryRun(t *testing.T) {
	h, _ := seeded(t)

	result := h.Run("import", "--dry-run")
	e2e.AssertSuccess(t, result)
	e2e.AssertOutputContains(t, result, "Dry run - no changes made")
	e2e.AssertOutputContains(t, result, "Planned: 2")

	e2e.AssertFileNotExists(t, filepath.Join(h.DataDir(), "ledger.txt"))
	result = h.Run("backup", "list")
	e2e.AssertSuccess(t, result)
	e2e.AssertOutputContains(t, result, "No backups found.")
}

// TestImportAllReimportsUpToDate verifies --all ignores the ledger.
func TestImportAllReimportsUpToDate(t *testing.T) {
	h, _ := seeded(t)
	e2e.AssertSuccess(t, h.Run("import", "--yes"))

	result := h.Run("import", "--all", "--yes")
	e2e.AssertSuccess(t, result)
	e2e.AssertOutputContains(t, result, "all mode")
	e2e.AssertCount(t, result, "Updated", 2)
}

// TestImportOnlyNormalizesSpaces verifies --only matches names typed with
// spaces and rejects names with no source file.
func TestImportOnlyNormalizesSpaces(t *testing.T) {
	h, src := seeded(t)
	src.WriteBlock("Legal/AT_My Doc.docx", "mine", lastWeek)

	result := h.Run("import", "--only", "Legal/My Doc", "--yes")
	e2e.AssertSuccess(t, result)
	e2e.AssertCount(t, result, "Created", 1)

	result = h.Run("import", "--only", "Legal/Nope", "--yes")
	e2e.AssertErrorContains(t, result, "no source file for Legal/Nope")
}

// TestImportJSONOutput verifies the structured batch report.
func TestImportJSONOutput(t *testing.T) {
	h, _ := seeded(t)

	result := h.Run("--format", "json", "import", "--yes")
	e2e.AssertSuccess(t, result)

	var view report.BatchView
	if err := json.Unmarshal([]byte(result.Stdout), &view); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, result.Stdout)
	}
	if view.Operation != "import" {
		t.Errorf("operation = %q, want import", view.Operation)
	}
	if view.Counts["created"] != 2 {
		t.Errorf("created = %d, want 2", view.Counts["created"])
	}
	if view.Backup == "" {
		t.Error("expected a backup ID in the report")
	}
}

// TestStatusJSON verifies the structured status report.
func TestStatusJSON(t *testing.T) {
	h, _ := seeded(t)
	e2e.AssertSuccess(t, h.Run("import", "--yes"))

	result := h.Run("-o", "json", "status")
	e2e.AssertSuccess(t, result)

	var view report.StatusView
	if err := json.Unmarshal([]byte(result.Stdout), &view); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, result.Stdout)
	}
	if !view.InSync {
		t.Errorf("expected in_sync after import, got %+v", view)
	}
}

// TestScanBuckets verifies invalid, ignored and too-deep files are reported.
func TestScanBuckets(t *testing.T) {
	h := e2e.NewHarness(t)
	src := h.SourceFixture()
	src.WriteBlock("AT_Foo.docx", "foo", lastWeek)
	src.WriteBlock("AT_ .docx", "blank", lastWeek)
	src.WriteBlock("Notes/AT_Foo.txt", "text", lastWeek)
	src.WriteBlock("a/b/c/d/e/f/AT_Deep.docx", "deep", lastWeek)

	result := h.Run("--verbose", "scan")

	e2e.AssertSuccess(t, result)
	e2e.AssertOutputContains(t, result, "Valid:     1")
	e2e.AssertCount(t, result, "Invalid", 1)
	e2e.AssertOutputContains(t, result, "AT_Foo.txt")
	e2e.AssertOutputContains(t, result, "Beyond max depth:")
	e2e.AssertOutputNotContains(t, result, "Deep")
}

// TestStatusReportsInvalidFiles verifies invalid names surface in status.
func TestStatusReportsInvalidFiles(t *testing.T) {
	h := e2e.NewHarness(t)
	h.SourceFixture().WriteBlock("AT_.docx", "blank", lastWeek)

	result := h.Run("status")

	e2e.AssertSuccess(t, result)
	e2e.AssertOutputContains(t, result, "Invalid: ")
	e2e.AssertOutputContains(t, result, "blank")
}

// TestRemoveRequeuesEntry verifies a removed entry is imported again.
func TestRemoveRequeuesEntry(t *testing.T) {
	h, _ := seeded(t)
	e2e.AssertSuccess(t, h.Run("import", "--yes"))

	result := h.Run("remove", "General/Foo")
	e2e.AssertSuccess(t, result)
	e2e.AssertOutputContains(t, result, "Removed from ledger")

	result = h.Run("import", "--yes")
	e2e.AssertSuccess(t, result)
	e2e.AssertCount(t, result, "Created", 1)
}

// TestRemoveFromStore verifies --from-store deletes the stored document.
func TestRemoveFromStore(t *testing.T) {
	h, _ := seeded(t)
	e2e.AssertSuccess(t, h.Run("import", "--yes"))

	result := h.Run("rm", "--from-store", "Legal/Bar")
	e2e.AssertSuccess(t, result)
	e2e.AssertOutputContains(t, result, "Removed from ledger and store")

	result = h.Run("store", "list")
	e2e.AssertSuccess(t, result)
	e2e.AssertCount(t, result, "Entries", 1)
	e2e.AssertOutputNotContains(t, result, "Bar")
}

// TestExportLayout verifies exported files mirror the category tree.
func TestExportLayout(t *testing.T) {
	h, _ := seeded(t)
	e2e.AssertSuccess(t, h.Run("import", "--yes"))
	out := h.TempFixture()

	result := h.Run("export", "--out", out.Path(""))
	e2e.AssertSuccess(t, result)
	e2e.AssertCount(t, result, "Exported", 2)
	e2e.AssertFileEquals(t, out.Path("AT_Foo.docx"), "foo")
	e2e.AssertFileEquals(t, out.Path("Legal/AT_Bar.docx"), "bar")

	// A second export never overwrites what is already there.
	result = h.Run("export", "--out", out.Path(""), "General/Foo")
	e2e.AssertSuccess(t, result)
	e2e.AssertFileEquals(t, out.Path("AT_Foo (2).docx"), "foo")
}

// TestExportFlat verifies --flat writes every entry into one directory.
func TestExportFlat(t *testing.T) {
	h, _ := seeded(t)
	e2e.AssertSuccess(t, h.Run("import", "--yes"))
	out := h.TempFixture()

	result := h.Run("export", "--flat", "--out", out.Path(""))
	e2e.AssertSuccess(t, result)
	e2e.AssertFileEquals(t, out.Path("AT_Bar.docx"), "bar")
	if out.Exists("Legal") {
		t.Error("flat export should not create category directories")
	}
}

// TestArchiveRoundTrip verifies an export archive extracts to the same tree.
func TestArchiveRoundTrip(t *testing.T) {
	h, _ := seeded(t)
	e2e.AssertSuccess(t, h.Run("import", "--yes"))
	archivePath := filepath.Join(h.TempFixture().Path(""), "blocks.tar.gz")

	result := h.Run("export", "--archive", archivePath)
	e2e.AssertSuccess(t, result)
	e2e.AssertOutputContains(t, result, "Archived 2 entries")

	result = h.Run("archive", "list", archivePath)
	e2e.AssertSuccess(t, result)
	e2e.AssertOutputContains(t, result, "Foo")
	e2e.AssertOutputContains(t, result, "Legal")

	target := h.TempFixture()
	result = h.Run("archive", "extract", "--to", target.Path(""), archivePath)
	e2e.AssertSuccess(t, result)
	e2e.AssertFileEquals(t, target.Path("Legal/AT_Bar.docx"), "bar")

	// Extracting again must not clobber existing files.
	result = h.Run("archive", "extract", "--to", target.Path(""), archivePath)
	e2e.AssertError(t, result)
}

// TestBackupAndRestore verifies an import can be undone from its snapshot.
func TestBackupAndRestore(t *testing.T) {
	h, _ := seeded(t)
	e2e.AssertSuccess(t, h.Run("import", "--yes"))

	result := h.Run("backup", "list")
	e2e.AssertSuccess(t, result)
	e2e.AssertOutputContains(t, result, "import")

	result = h.RunWithStdin("n\n", "backup", "restore")
	e2e.AssertSuccess(t, result)
	result = h.Run("store", "list")
	e2e.AssertCount(t, result, "Entries", 2)

	result = h.Run("backup", "restore", "--yes")
	e2e.AssertSuccess(t, result)
	e2e.AssertOutputContains(t, result, "Store restored")

	result = h.Run("store", "list")
	e2e.AssertSuccess(t, result)
	e2e.AssertOutputContains(t, result, "The store is empty.")
}

// TestRestoreIsByteIdentical verifies a restore brings back the exact store
// file that existed before the import.
func TestRestoreIsByteIdentical(t *testing.T) {
	h, _ := seeded(t)
	storePath := filepath.Join(h.DataDir(), "store.db")
	before := h.TempFixture()
	before.WriteFile("store.db", h.DataFixture().ReadFile("store.db"))

	e2e.AssertSuccess(t, h.Run("import", "--yes"))
	e2e.AssertSuccess(t, h.Run("backup", "restore", "--yes"))

	e2e.AssertSameContent(t, storePath, before.Path("store.db"))
}

// TestBackupVerifyAndDelete verifies single-backup maintenance commands.
func TestBackupVerifyAndDelete(t *testing.T) {
	h, _ := seeded(t)
	e2e.AssertSuccess(t, h.Run("import", "--yes"))

	result := h.Run("-o", "json", "backup", "list")
	e2e.AssertSuccess(t, result)
	var backups []report.BackupEntry
	if err := json.Unmarshal([]byte(result.Stdout), &backups); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, result.Stdout)
	}
	if len(backups) != 1 {
		t.Fatalf("expected one backup, got %d", len(backups))
	}
	id := backups[0].ID

	result = h.Run("backup", "verify", id)
	e2e.AssertSuccess(t, result)
	e2e.AssertOutputContains(t, result, "is intact")

	result = h.Run("backup", "delete", id)
	e2e.AssertSuccess(t, result)

	result = h.Run("backup", "verify", id)
	e2e.AssertError(t, result)
}

// TestBackupRetention verifies the keep setting bounds the snapshot count.
func TestBackupRetention(t *testing.T) {
	h, src := seeded(t)
	h.SetEnv("BLOCKSYNC_BACKUP_KEEP", "2")

	for i := 1; i <= 3; i++ {
		src.WriteBlock("AT_Foo.docx", strings.Repeat("v", i), lastWeek.Add(time.Duration(i)*time.Hour))
		e2e.AssertSuccess(t, h.Run("import", "--yes"))
	}

	result := h.Run("-o", "json", "backup", "list")
	e2e.AssertSuccess(t, result)
	var backups []report.BackupEntry
	if err := json.Unmarshal([]byte(result.Stdout), &backups); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}
	if len(backups) != 2 {
		t.Errorf("expected 2 retained backups, got %d", len(backups))
	}
}

// TestLedgerPurgeForcesReimport verifies purge resets change detection.
func TestLedgerPurgeForcesReimport(t *testing.T) {
	h, _ := seeded(t)
	e2e.AssertSuccess(t, h.Run("import", "--yes"))

	result := h.RunWithStdin("n\n", "ledger", "purge")
	e2e.AssertSuccess(t, result)
	e2e.AssertOutputContains(t, result, "Purge canceled.")

	result = h.Run("ledger", "purge", "--yes")
	e2e.AssertSuccess(t, result)
	e2e.AssertOutputContains(t, result, "Purged 2 ledger entries")

	result = h.Run("status")
	e2e.AssertSuccess(t, result)
	e2e.AssertCount(t, result, "New", 2)
}

// TestCorruptLedgerIsTolerated verifies unreadable ledger lines are skipped.
func TestCorruptLedgerIsTolerated(t *testing.T) {
	h, _ := seeded(t)
	data := h.DataFixture()
	data.WriteFile("ledger.txt", "garbage line\nFoo|General|not a time\n")

	result := h.Run("status")

	e2e.AssertSuccess(t, result)
	e2e.AssertCount(t, result, "New", 2)
}

// TestHelpMentionsIdentitySyntax verifies the identity form is documented.
func TestHelpMentionsIdentitySyntax(t *testing.T) {
	h := e2e.NewHarness(t)

	result := h.Run("import", "--help")

	e2e.AssertSuccess(t, result)
	e2e.AssertOutputContains(t, result, "Category/Name")
}

func TestMain(m *testing.M) {
	// Logs go to stderr, which the harness captures; keep them off the terminal.
	_ = os.Setenv("BLOCKSYNC_LOGGING_LEVEL", "error")
	os.Exit(m.Run())
}
