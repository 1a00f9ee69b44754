package archive

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauern/blocksync/internal/model"
	"github.com/klauern/blocksync/internal/util"
)

func exportedFiles(t *testing.T) (string, []File) {
	t.Helper()
	dir := t.TempDir()
	foo := filepath.Join(dir, "General", "AT_Foo.docx")
	baz := filepath.Join(dir, "Legal", "Contracts", "AT_Baz.docx")
	util.WriteFile(t, foo, "foo body")
	util.WriteFile(t, baz, "baz body")
	return dir, []File{
		{Identity: model.Identity{Name: "Foo", Category: "General"}, Path: foo},
		{Identity: model.Identity{Name: "Baz", Category: "Legal/Contracts"}, Path: baz},
	}
}

func TestCreate(t *testing.T) {
	dir, files := exportedFiles(t)

	var buf bytes.Buffer
	manifest, err := Create(&buf, files, CreateOptions{BaseDir: dir, Store: "/srv/store.db"})
	util.AssertNoError(t, err)

	if buf.Len() == 0 {
		t.Error("Create produced empty output")
	}
	util.AssertEqual(t, manifest.Version, Version)
	util.AssertEqual(t, manifest.EntryCount, 2)
	util.AssertEqual(t, manifest.Store, "/srv/store.db")
	util.AssertEqual(t, manifest.Entries[0].Filename, "entries/General/AT_Foo.docx")
	util.AssertEqual(t, manifest.Entries[1].Filename, "entries/Legal/Contracts/AT_Baz.docx")
	util.AssertEqual(t, manifest.Entries[1].Size, int64(len("baz body")))
	util.AssertEqual(t, manifest.Entries[1].Identity(), model.Identity{Name: "Baz", Category: "Legal/Contracts"})
}

func TestCreate_NoEntries(t *testing.T) {
	var buf bytes.Buffer
	if _, err := Create(&buf, nil, CreateOptions{}); !errors.Is(err, ErrNoEntries) {
		t.Errorf("expected ErrNoEntries, got %v", err)
	}
}

func TestCreate_MissingFile(t *testing.T) {
	files := []File{{Identity: model.Identity{Name: "Gone", Category: "General"}, Path: filepath.Join(t.TempDir(), "nope.docx")}}
	var buf bytes.Buffer
	if _, err := Create(&buf, files, CreateOptions{}); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestCreate_Since(t *testing.T) {
	dir, files := exportedFiles(t)
	old := time.Now().Add(-48 * time.Hour)
	util.Touch(t, files[0].Path, old)

	var buf bytes.Buffer
	manifest, err := Create(&buf, files, CreateOptions{BaseDir: dir, Since: time.Now().Add(-time.Hour)})
	util.AssertNoError(t, err)
	util.AssertEqual(t, manifest.EntryCount, 1)
	util.AssertEqual(t, manifest.Entries[0].Name, "Baz")
}

func TestCreate_OutsideBaseDirUsesBaseName(t *testing.T) {
	_, files := exportedFiles(t)
	other := filepath.Join(t.TempDir(), "General", "AT_Foo.docx")
	util.WriteFile(t, other, "other foo")
	files = append(files, File{Identity: model.Identity{Name: "Foo", Category: "Archive"}, Path: other})

	var buf bytes.Buffer
	manifest, err := Create(&buf, files, CreateOptions{BaseDir: filepath.Join(t.TempDir(), "unrelated")})
	util.AssertNoError(t, err)

	util.AssertEqual(t, manifest.Entries[0].Filename, "entries/AT_Foo.docx")
	util.AssertEqual(t, manifest.Entries[2].Filename, "entries/AT_Foo (2).docx")
}

func TestExtract(t *testing.T) {
	dir, files := exportedFiles(t)
	var buf bytes.Buffer
	_, err := Create(&buf, files, CreateOptions{BaseDir: dir})
	util.AssertNoError(t, err)

	target := t.TempDir()
	manifest, err := Extract(bytes.NewReader(buf.Bytes()), ExtractOptions{TargetDir: target})
	util.AssertNoError(t, err)
	util.AssertEqual(t, manifest.EntryCount, 2)

	util.AssertEqual(t, util.ReadFile(t, filepath.Join(target, "General", "AT_Foo.docx")), "foo body")
	util.AssertEqual(t, util.ReadFile(t, filepath.Join(target, "Legal", "Contracts", "AT_Baz.docx")), "baz body")

	// A second extraction into the same directory must not clobber.
	if _, err := Extract(bytes.NewReader(buf.Bytes()), ExtractOptions{TargetDir: target}); err == nil {
		t.Error("expected error when extracted files already exist")
	}
}

func TestExtract_DryRun(t *testing.T) {
	dir, files := exportedFiles(t)
	var buf bytes.Buffer
	_, err := Create(&buf, files, CreateOptions{BaseDir: dir})
	util.AssertNoError(t, err)

	target := t.TempDir()
	manifest, err := Extract(&buf, ExtractOptions{TargetDir: target, DryRun: true})
	util.AssertNoError(t, err)
	util.AssertEqual(t, len(manifest.Entries), 2)

	entries, err := os.ReadDir(target)
	util.AssertNoError(t, err)
	util.AssertEqual(t, len(entries), 0)
}

func TestExtract_NotGzip(t *testing.T) {
	if _, err := Extract(strings.NewReader("plain text"), ExtractOptions{}); err == nil {
		t.Error("expected error for non-gzip input")
	}
}

func TestCreateFile_NeverClobbers(t *testing.T) {
	dir, files := exportedFiles(t)
	out := filepath.Join(t.TempDir(), "bundle.tar.gz")

	_, err := CreateFile(out, files, CreateOptions{BaseDir: dir})
	util.AssertNoError(t, err)

	manifest, err := ExtractFile(out, ExtractOptions{})
	util.AssertNoError(t, err)
	util.AssertEqual(t, manifest.EntryCount, 2)

	if _, err := CreateFile(out, files, CreateOptions{BaseDir: dir}); err == nil {
		t.Error("expected error when the archive already exists")
	}
}

func TestCreateFile_RemovesPartialArchive(t *testing.T) {
	out := filepath.Join(t.TempDir(), "bundle.tar.gz")
	if _, err := CreateFile(out, nil, CreateOptions{}); !errors.Is(err, ErrNoEntries) {
		t.Fatalf("expected ErrNoEntries, got %v", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("partial archive should be removed")
	}
}

func TestSafeMember(t *testing.T) {
	tests := map[string]struct {
		name    string
		want    string
		wantErr bool
	}{
		"entry":         {name: "entries/General/AT_Foo.docx", want: filepath.Join("General", "AT_Foo.docx")},
		"parent":        {name: "../escape.docx", wantErr: true},
		"nested parent": {name: "entries/../../escape.docx", wantErr: true},
		"absolute":      {name: "/etc/passwd", wantErr: true},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := safeMember(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("safeMember(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("safeMember(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}
