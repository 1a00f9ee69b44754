package ledger

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/klauern/blocksync/internal/model"
	"github.com/klauern/blocksync/internal/naming"
	"github.com/klauern/blocksync/internal/util"
)

func tempLedger(t *testing.T) (*Ledger, string) {
	t.Helper()
	dir := util.CreateTempDir(t)
	l, report := Load(filepath.Join(dir, "ledger.txt"), filepath.Join(dir, "manifest.txt"))
	if len(report.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", report.Warnings)
	}
	return l, dir
}

func desc(root, rel string, modTime time.Time) model.Descriptor {
	rules := naming.DefaultRules()
	full := filepath.Join(root, filepath.FromSlash(rel))
	id, err := rules.DeriveIdentity(full, root)
	if err != nil {
		panic(err)
	}
	return model.Descriptor{
		FullPath: full,
		RelPath:  filepath.FromSlash(rel),
		Identity: id,
		ModTime:  modTime,
		Status:   model.StatusValid,
	}
}

func resolverFor(root string) Resolver {
	rules := naming.DefaultRules()
	return func(p string) (model.Identity, error) {
		return rules.DeriveIdentity(p, root)
	}
}

func names(items []Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Descriptor.Identity.Name)
	}
	return out
}

func goneKeys(gone []Gone) []string {
	out := make([]string, 0, len(gone))
	for _, g := range gone {
		out = append(out, g.Identity.Key())
	}
	return out
}

func TestLoad_MissingFilesAreEmpty(t *testing.T) {
	l, _ := tempLedger(t)
	util.AssertEqual(t, l.Len(), 0)
	util.AssertEqual(t, len(l.Manifest()), 0)
}

func TestDiff_NewAndModifiedScenario(t *testing.T) {
	l, root := tempLedger(t)

	bar := model.Identity{Name: "Bar", Category: "General"}
	l.Commit(bar, time.Date(2024, 1, 1, 10, 0, 0, 0, time.Local), filepath.Join(root, "AT_Bar.docx"))

	descs := []model.Descriptor{
		desc(root, "AT_Foo.docx", time.Date(2024, 3, 1, 9, 0, 0, 0, time.Local)),
		desc(root, "AT_Bar.docx", time.Date(2024, 6, 1, 10, 0, 0, 0, time.Local)),
	}

	d := l.Diff(descs, resolverFor(root))

	util.AssertEqual(t, strings.Join(names(d.New), ","), "Foo")
	util.AssertEqual(t, strings.Join(names(d.Modified), ","), "Bar")
	util.AssertEqual(t, len(d.UpToDate), 0)
	util.AssertEqual(t, len(d.Missing), 0)
	util.AssertEqual(t, len(d.Removed), 0)
}

func TestDiff_TimestampClassification(t *testing.T) {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.Local)

	tests := map[string]struct {
		modTime time.Time
		want    State
	}{
		"same timestamp is up to date": {modTime: base, want: StateUpToDate},
		"one minute later is modified": {modTime: base.Add(time.Minute), want: StateModified},
		"seconds within the same minute are up to date": {
			modTime: base.Add(30 * time.Second),
			want:    StateUpToDate,
		},
		"older file is up to date": {modTime: base.Add(-time.Hour), want: StateUpToDate},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			l, root := tempLedger(t)
			d0 := desc(root, "Legal/AT_Contract.docx", base)
			l.Commit(d0.Identity, base, d0.FullPath)

			d := l.Diff([]model.Descriptor{desc(root, "Legal/AT_Contract.docx", tt.modTime)}, resolverFor(root))
			got := d.All()
			if len(got) != 1 {
				t.Fatalf("All() = %d items, want 1", len(got))
			}
			util.AssertEqual(t, got[0].State, tt.want)
		})
	}
}

func TestDiff_RemovedVersusMissing(t *testing.T) {
	tests := map[string]struct {
		inManifest bool
		inLedger   bool
		wantState  State
		wantNone   bool
	}{
		"ledger entry not in manifest is removed":  {inLedger: true, wantState: StateRemoved},
		"ledger entry still in manifest is missing": {inLedger: true, inManifest: true, wantState: StateMissing},
		"manifest path never imported is removed":   {inManifest: true, wantState: StateRemoved},
		"unknown everywhere yields nothing":         {wantNone: true},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			l, root := tempLedger(t)
			baz := desc(root, "Legal/AT_Baz.docx", time.Date(2024, 1, 1, 10, 0, 0, 0, time.Local))
			other := desc(root, "AT_Other.docx", time.Date(2024, 1, 1, 10, 0, 0, 0, time.Local))

			if tt.inLedger {
				l.Commit(baz.Identity, baz.ModTime, baz.FullPath)
			}
			if tt.inManifest {
				l.UpdateManifest([]model.Descriptor{baz, other})
			}

			d := l.Diff([]model.Descriptor{other}, resolverFor(root))
			gone := append(append([]Gone{}, d.Missing...), d.Removed...)
			if tt.wantNone {
				util.AssertEqual(t, len(gone), 0)
				return
			}
			if len(gone) != 1 {
				t.Fatalf("gone = %v, want exactly Legal/Baz", goneKeys(gone))
			}
			util.AssertEqual(t, gone[0].Identity, model.Identity{Name: "Baz", Category: "Legal"})
			util.AssertEqual(t, gone[0].State, tt.wantState)
		})
	}
}

func TestDiff_MovedFileIsNotMissing(t *testing.T) {
	l, root := tempLedger(t)
	old := desc(root, "Legal/AT_Baz.docx", time.Date(2024, 1, 1, 10, 0, 0, 0, time.Local))
	l.Commit(old.Identity, old.ModTime, old.FullPath)
	l.UpdateManifest([]model.Descriptor{old})

	// Same identity, different spelling of the file name.
	moved := desc(root, "Legal/AT_baz.docx", old.ModTime)
	moved.Identity = old.Identity

	d := l.Diff([]model.Descriptor{moved}, resolverFor(root))
	util.AssertEqual(t, len(d.Missing), 0)
	util.AssertEqual(t, len(d.Removed), 0)
	util.AssertEqual(t, len(d.UpToDate), 1)
}

func TestDiff_StaleManifestAfterFailedCycle(t *testing.T) {
	// A cycle that imports Baz but fails before UpdateManifest leaves the
	// manifest without Baz. Deleting the file afterwards reports Removed,
	// not Missing, until a completed cycle records the path.
	l, root := tempLedger(t)
	baz := desc(root, "Legal/AT_Baz.docx", time.Date(2024, 1, 1, 10, 0, 0, 0, time.Local))
	l.Commit(baz.Identity, baz.ModTime, baz.FullPath)

	d := l.Diff(nil, resolverFor(root))
	util.AssertEqual(t, strings.Join(goneKeys(d.Removed), ","), "Legal/Baz")
	util.AssertEqual(t, len(d.Missing), 0)

	l.UpdateManifest([]model.Descriptor{baz})
	d = l.Diff(nil, resolverFor(root))
	util.AssertEqual(t, strings.Join(goneKeys(d.Missing), ","), "Legal/Baz")
	util.AssertEqual(t, len(d.Removed), 0)
}

func TestDiff_UnresolvedManifestPath(t *testing.T) {
	l, root := tempLedger(t)
	l.UpdateManifest([]model.Descriptor{{FullPath: filepath.Join(root, "AT_.docx")}})

	d := l.Diff(nil, resolverFor(root))
	util.AssertEqual(t, len(d.Unresolved), 1)
}

func TestDiff_IgnoresInvalidDescriptors(t *testing.T) {
	l, root := tempLedger(t)
	bad := desc(root, "AT_Foo.docx", time.Now())
	bad.Status = model.StatusInvalid

	d := l.Diff([]model.Descriptor{bad}, resolverFor(root))
	util.AssertEqual(t, len(d.All()), 0)
}

func TestCommit_OverwritesAndTruncates(t *testing.T) {
	l, root := tempLedger(t)
	id := model.Identity{Name: "Foo", Category: "General"}

	l.Commit(id, time.Date(2024, 1, 1, 10, 0, 45, 0, time.Local), filepath.Join(root, "a"))
	l.Commit(id, time.Date(2024, 2, 1, 10, 0, 59, 999, time.Local), filepath.Join(root, "b"))

	util.AssertEqual(t, l.Len(), 1)
	e, ok := l.Lookup(id)
	if !ok {
		t.Fatal("Lookup() missing committed identity")
	}
	if !e.LastModified.Equal(time.Date(2024, 2, 1, 10, 0, 0, 0, time.Local)) {
		t.Errorf("LastModified = %v, want truncated minute", e.LastModified)
	}
	util.AssertEqual(t, e.SourcePath, filepath.Join(root, "b"))
	if !l.Dirty() {
		t.Error("Dirty() = false after Commit")
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	l, dir := tempLedger(t)
	base := time.Date(2024, 5, 5, 8, 30, 0, 0, time.Local)

	for i, name := range []string{"Alpha", "Beta", "Gamma", "Delta"} {
		id := model.Identity{Name: name, Category: []string{"General", "Legal", "Legal/Sub"}[i%3]}
		l.Commit(id, base.Add(time.Duration(i)*time.Hour), filepath.Join(dir, "AT_"+name+".docx"))
	}
	l.UpdateManifest([]model.Descriptor{
		{FullPath: filepath.Join(dir, "b.docx")},
		{FullPath: filepath.Join(dir, "a.docx")},
	})
	util.AssertNoError(t, l.SaveAll())
	if l.Dirty() {
		t.Error("Dirty() = true after Save")
	}

	reloaded, report := Load(l.Path(), l.ManifestPath())
	util.AssertEqual(t, report.LedgerEntries, 4)
	util.AssertEqual(t, report.SkippedLines, 0)
	util.AssertEqual(t, report.ManifestPaths, 2)

	want := l.Entries()
	got := reloaded.Entries()
	if len(got) != len(want) {
		t.Fatalf("Entries() = %d, want %d", len(got), len(want))
	}
	for i := range want {
		util.AssertEqual(t, got[i].Identity, want[i].Identity)
		util.AssertEqual(t, got[i].SourcePath, want[i].SourcePath)
		if !got[i].LastModified.Equal(want[i].LastModified) {
			t.Errorf("%s LastModified = %v, want %v", got[i].Identity, got[i].LastModified, want[i].LastModified)
		}
	}

	manifest := reloaded.Manifest()
	if !sort.StringsAreSorted(manifest) {
		t.Errorf("manifest not sorted: %v", manifest)
	}
	util.AssertNoError(t, reloaded.Save())
	first := util.ReadFile(t, l.Path())
	lines := strings.Split(strings.TrimSpace(first), "\n")
	util.AssertEqual(t, len(lines), 3+4)
}

func TestLoad_SkipsMalformedLines(t *testing.T) {
	dir := util.CreateTempDir(t)
	ledgerPath := filepath.Join(dir, "ledger.txt")
	util.WriteFile(t, ledgerPath, strings.Join([]string{
		"# header",
		"Foo|General|2024-01-01 10:00|/src/AT_Foo.docx",
		"garbage line",
		"Bar|Legal|not-a-date|/src/Legal/AT_Bar.docx",
		"|Legal|2024-01-01 10:00|/src/x",
		"Baz|Legal|2024-01-01 10:00|/src/Legal/AT_Baz.docx|2024-01-02 11:00",
		"",
		"Qux|Legal|2024-01-01 10:00|/src/a|b|c",
		"Quux|Legal|2024-01-01 10:00||2024-01-02 11:00",
	}, "\n"))

	l, report := Load(ledgerPath, filepath.Join(dir, "manifest.txt"))

	util.AssertEqual(t, l.Len(), 3)
	util.AssertEqual(t, report.SkippedLines, 4)
	qux, ok := l.Lookup(model.Identity{Name: "Qux", Category: "Legal"})
	if !ok {
		t.Fatal("Qux not loaded")
	}
	util.AssertEqual(t, qux.SourcePath, "/src/a|b|c")
	e, ok := l.Lookup(model.Identity{Name: "Baz", Category: "Legal"})
	if !ok {
		t.Fatal("Baz not loaded")
	}
	if !e.ImportedAt.Equal(time.Date(2024, 1, 2, 11, 0, 0, 0, time.Local)) {
		t.Errorf("ImportedAt = %v", e.ImportedAt)
	}
}

func TestSaveLoad_FieldsThatCollideWithSyntax(t *testing.T) {
	tests := map[string]struct {
		id     model.Identity
		source string
	}{
		"name starting with comment marker": {
			id:     model.Identity{Name: "#Draft", Category: "General"},
			source: "/src/AT_#Draft.docx",
		},
		"name of only the comment marker": {
			id:     model.Identity{Name: "#", Category: "Legal"},
			source: "/src/Legal/AT_#.docx",
		},
		"separator in source path": {
			id:     model.Identity{Name: "Foo", Category: "General"},
			source: "/data/a|b/AT_Foo.docx",
		},
		"separator and comment marker together": {
			id:     model.Identity{Name: "#Foo", Category: "General"},
			source: "/data/a|b|2024-01-01 10:00/AT_#Foo.docx",
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			l, _ := tempLedger(t)
			modified := time.Date(2024, 3, 1, 9, 0, 0, 0, time.Local)
			l.Commit(tt.id, modified, tt.source)
			util.AssertNoError(t, l.Save())

			reloaded, report := Load(l.Path(), l.ManifestPath())
			util.AssertEqual(t, report.SkippedLines, 0)
			util.AssertEqual(t, report.LedgerEntries, 1)
			e, ok := reloaded.Lookup(tt.id)
			if !ok {
				t.Fatalf("%s lost on reload; ledger:\n%s", tt.id, util.ReadFile(t, l.Path()))
			}
			util.AssertEqual(t, e.SourcePath, tt.source)
			if !e.LastModified.Equal(modified) {
				t.Errorf("LastModified = %v, want %v", e.LastModified, modified)
			}
			if e.ImportedAt.IsZero() {
				t.Error("ImportedAt lost on reload")
			}
		})
	}
}

func TestLoad_UnreadableFileStartsEmpty(t *testing.T) {
	dir := util.CreateTempDir(t)
	ledgerPath := filepath.Join(dir, "ledger.txt")
	manifestPath := filepath.Join(dir, "manifest.txt")
	// A directory in place of the file makes ReadFile fail.
	util.AssertNoError(t, os.MkdirAll(ledgerPath, 0o750))
	util.AssertNoError(t, os.MkdirAll(manifestPath, 0o750))

	l, report := Load(ledgerPath, manifestPath)
	util.AssertEqual(t, l.Len(), 0)
	util.AssertEqual(t, len(report.Warnings), 2)
}

func TestLoad_ManifestSkipsRelativePaths(t *testing.T) {
	dir := util.CreateTempDir(t)
	manifestPath := filepath.Join(dir, "manifest.txt")
	abs := filepath.Join(dir, "AT_Foo.docx")
	util.WriteFile(t, manifestPath, "# manifest\nrelative/AT_Foo.docx\n"+abs+"\n")

	l, report := Load(filepath.Join(dir, "ledger.txt"), manifestPath)
	util.AssertEqual(t, report.SkippedManifest, 1)
	util.AssertEqual(t, strings.Join(l.Manifest(), ","), abs)
}

func TestRemoveAndPurge(t *testing.T) {
	l, _ := tempLedger(t)
	a := model.Identity{Name: "A", Category: "General"}
	b := model.Identity{Name: "B", Category: "General"}
	l.Commit(a, time.Now(), "/a")
	l.Commit(b, time.Now(), "/b")
	l.UpdateManifest([]model.Descriptor{{FullPath: "/a"}})

	if !l.Remove(a) {
		t.Error("Remove(a) = false, want true")
	}
	if l.Remove(a) {
		t.Error("second Remove(a) = true, want false")
	}
	util.AssertEqual(t, l.Len(), 1)

	util.AssertEqual(t, l.Purge(), 1)
	util.AssertEqual(t, l.Len(), 0)
	util.AssertEqual(t, len(l.Manifest()), 0)
}

func TestTruncate(t *testing.T) {
	in := time.Date(2024, 1, 1, 10, 5, 59, 123, time.Local)
	got := Truncate(in)
	if !got.Equal(time.Date(2024, 1, 1, 10, 5, 0, 0, time.Local)) {
		t.Errorf("Truncate() = %v", got)
	}
	if !Truncate(time.Time{}).IsZero() {
		t.Error("Truncate(zero) should stay zero")
	}
}
