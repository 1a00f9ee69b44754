package e2e

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// Fixture provides helpers for creating test fixtures in E2E tests.
type Fixture struct {
	t       *testing.T
	baseDir string
}

// NewFixture creates a new fixture helper rooted at the given directory.
func NewFixture(t *testing.T, baseDir string) *Fixture {
	t.Helper()
	return &Fixture{
		t:       t,
		baseDir: baseDir,
	}
}

// WriteFile writes content to a file relative to the fixture base directory.
// It creates parent directories as needed.
func (f *Fixture) WriteFile(relPath, content string) string {
	f.t.Helper()
	fullPath := filepath.Join(f.baseDir, relPath)

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		f.t.Fatalf("failed to create directory %s: %v", dir, err)
	}

	if err := os.WriteFile(fullPath, []byte(content), 0o600); err != nil {
		f.t.Fatalf("failed to write file %s: %v", fullPath, err)
	}

	return fullPath
}

// WriteBlock writes a building block file and sets its modification time.
// The ledger compares modification times at minute precision, so tests that
// edit a block should move mtime forward by at least a minute.
func (f *Fixture) WriteBlock(relPath, content string, mtime time.Time) string {
	f.t.Helper()
	fullPath := f.WriteFile(relPath, content)
	f.Touch(relPath, mtime)
	return fullPath
}

// Touch sets the modification time of an existing file.
func (f *Fixture) Touch(relPath string, mtime time.Time) {
	f.t.Helper()
	fullPath := filepath.Join(f.baseDir, relPath)
	if err := os.Chtimes(fullPath, mtime, mtime); err != nil {
		f.t.Fatalf("failed to set times on %s: %v", fullPath, err)
	}
}

// Remove deletes a file relative to the base.
func (f *Fixture) Remove(relPath string) {
	f.t.Helper()
	if err := os.Remove(filepath.Join(f.baseDir, relPath)); err != nil {
		f.t.Fatalf("failed to remove %s: %v", relPath, err)
	}
}

// MkdirAll creates a directory and all parent directories relative to the base.
func (f *Fixture) MkdirAll(relPath string) string {
	f.t.Helper()
	fullPath := filepath.Join(f.baseDir, relPath)

	if err := os.MkdirAll(fullPath, 0o750); err != nil {
		f.t.Fatalf("failed to create directory %s: %v", fullPath, err)
	}

	return fullPath
}

// Path returns the full path for a relative path.
func (f *Fixture) Path(relPath string) string {
	return filepath.Join(f.baseDir, relPath)
}

// Exists returns true if the file or directory exists.
func (f *Fixture) Exists(relPath string) bool {
	f.t.Helper()
	_, err := os.Stat(filepath.Join(f.baseDir, relPath))
	return err == nil
}

// ReadFile reads and returns the content of a file.
func (f *Fixture) ReadFile(relPath string) string {
	f.t.Helper()
	fullPath := filepath.Join(f.baseDir, relPath)

	// #nosec G304 - fullPath is constructed from trusted test fixture base and test-provided path
	data, err := os.ReadFile(fullPath)
	if err != nil {
		f.t.Fatalf("failed to read file %s: %v", fullPath, err)
	}

	return string(data)
}

// SourceFixture returns a fixture over the harness source root.
func (h *Harness) SourceFixture() *Fixture {
	h.t.Helper()
	root := h.SourceRoot()
	if err := os.MkdirAll(root, 0o750); err != nil {
		h.t.Fatalf("failed to create source root: %v", err)
	}
	return NewFixture(h.t, root)
}

// DataFixture returns a fixture over the blocksync home.
func (h *Harness) DataFixture() *Fixture {
	h.t.Helper()
	return NewFixture(h.t, h.DataDir())
}

// TempFixture creates a fixture helper for a new temporary directory.
func (h *Harness) TempFixture() *Fixture {
	h.t.Helper()
	return NewFixture(h.t, h.t.TempDir())
}
