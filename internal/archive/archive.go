// Package archive bundles exported entries into a tar.gz file with a JSON manifest.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauern/blocksync/internal/model"
)

// ManifestName is the archive member holding the manifest.
const ManifestName = "manifest.json"

// Version is the manifest format version written by Create.
const Version = "1.0"

const entriesDir = "entries"

// ErrNoEntries is returned by Create when there is nothing to bundle.
var ErrNoEntries = errors.New("no entries to archive")

// Manifest represents the metadata for an archive
type Manifest struct {
	Version    string          `json:"version"`
	CreatedAt  time.Time       `json:"created_at"`
	Store      string          `json:"store,omitempty"`
	Category   string          `json:"category,omitempty"`
	EntryCount int             `json:"entry_count"`
	Entries    []ManifestEntry `json:"entries"`
}

// ManifestEntry represents one bundled file in the manifest
type ManifestEntry struct {
	Name       string    `json:"name"`
	Category   string    `json:"category"`
	Filename   string    `json:"filename"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Identity returns the entry identity the file was exported from.
func (e ManifestEntry) Identity() model.Identity {
	return model.Identity{Name: e.Name, Category: e.Category}
}

// File is an exported file to bundle.
type File struct {
	Identity model.Identity
	Path     string
}

// CreateOptions configures archive creation
type CreateOptions struct {
	// BaseDir is stripped from file paths to build member names. Files
	// outside it are stored under their base name.
	BaseDir string
	// Store and Category are recorded in the manifest.
	Store    string
	Category string
	// Since drops files modified before this time
	Since time.Time
}

// ExtractOptions configures archive extraction
type ExtractOptions struct {
	TargetDir string // Target directory for extraction
	DryRun    bool   // Preview without extraction
}

// Create writes a tar.gz archive of files to w and returns its manifest.
func Create(w io.Writer, files []File, opts CreateOptions) (*Manifest, error) {
	filtered, err := filterFiles(files, opts)
	if err != nil {
		return nil, err
	}
	if len(filtered) == 0 {
		return nil, ErrNoEntries
	}

	gzWriter := gzip.NewWriter(w)
	tarWriter := tar.NewWriter(gzWriter)

	manifest := &Manifest{
		Version:    Version,
		CreatedAt:  time.Now(),
		Store:      opts.Store,
		Category:   opts.Category,
		EntryCount: len(filtered),
		Entries:    make([]ManifestEntry, 0, len(filtered)),
	}

	used := make(map[string]bool, len(filtered))
	for _, f := range filtered {
		name := uniqueMember(memberName(opts.BaseDir, f.file.Path), used)
		if err := addFile(tarWriter, name, f.file.Path, f.info); err != nil {
			_ = tarWriter.Close()
			_ = gzWriter.Close()
			return nil, err
		}
		manifest.Entries = append(manifest.Entries, ManifestEntry{
			Name:       f.file.Identity.Name,
			Category:   f.file.Identity.Category,
			Filename:   name,
			Size:       f.info.Size(),
			ModifiedAt: f.info.ModTime(),
		})
	}

	manifestData, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize manifest: %w", err)
	}
	manifestHeader := &tar.Header{
		Name:    ManifestName,
		Mode:    0o644,
		Size:    int64(len(manifestData)),
		ModTime: manifest.CreatedAt,
	}
	if err := tarWriter.WriteHeader(manifestHeader); err != nil {
		return nil, fmt.Errorf("failed to write manifest header: %w", err)
	}
	if _, err := tarWriter.Write(manifestData); err != nil {
		return nil, fmt.Errorf("failed to write manifest data: %w", err)
	}

	if err := tarWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish tar stream: %w", err)
	}
	if err := gzWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish gzip stream: %w", err)
	}
	return manifest, nil
}

// CreateFile writes the archive to path. A partial file is removed on error.
func CreateFile(path string, files []File, opts CreateOptions) (*Manifest, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	// #nosec G304 - path is provided by the user
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}

	manifest, err := Create(f, files, opts)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close archive: %w", closeErr)
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	return manifest, nil
}

// Extract reads a tar.gz archive. Entry files are written under
// opts.TargetDir unless it is empty or DryRun is set. Existing files
// are never replaced.
func Extract(r io.Reader, opts ExtractOptions) (*Manifest, error) {
	gzReader, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer func() { _ = gzReader.Close() }()

	tarReader := tar.NewReader(gzReader)
	write := opts.TargetDir != "" && !opts.DryRun

	var manifest *Manifest
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read tar header: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		if header.Name == ManifestName {
			data, err := io.ReadAll(tarReader)
			if err != nil {
				return nil, fmt.Errorf("failed to read manifest: %w", err)
			}
			if err := json.Unmarshal(data, &manifest); err != nil {
				return nil, fmt.Errorf("failed to parse manifest: %w", err)
			}
			continue
		}

		rel, err := safeMember(header.Name)
		if err != nil {
			return nil, err
		}
		if write {
			if err := writeMember(tarReader, filepath.Join(opts.TargetDir, rel), header); err != nil {
				return nil, err
			}
		}
	}

	if manifest == nil {
		return nil, fmt.Errorf("archive missing %s", ManifestName)
	}
	return manifest, nil
}

// ExtractFile opens path and calls Extract.
func ExtractFile(path string, opts ExtractOptions) (*Manifest, error) {
	// #nosec G304 - path is provided by the user
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Extract(f, opts)
}

type statFile struct {
	file File
	info os.FileInfo
}

func filterFiles(files []File, opts CreateOptions) ([]statFile, error) {
	filtered := make([]statFile, 0, len(files))
	for _, f := range files {
		info, err := os.Stat(f.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", f.Path, err)
		}
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("not a regular file: %s", f.Path)
		}
		if !opts.Since.IsZero() && info.ModTime().Before(opts.Since) {
			continue
		}
		filtered = append(filtered, statFile{file: f, info: info})
	}
	return filtered, nil
}

func addFile(tw *tar.Writer, name, src string, info os.FileInfo) error {
	// #nosec G304 - src comes from the export batch
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	header := &tar.Header{
		Name:    name,
		Mode:    0o644,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header for %s: %w", name, err)
	}
	if _, err := io.Copy(tw, in); err != nil {
		return fmt.Errorf("failed to write data for %s: %w", name, err)
	}
	return nil
}

func memberName(baseDir, file string) string {
	rel := filepath.Base(file)
	if baseDir != "" {
		if r, err := filepath.Rel(baseDir, file); err == nil && r != ".." && !strings.HasPrefix(r, ".."+string(filepath.Separator)) {
			rel = r
		}
	}
	return path.Join(entriesDir, filepath.ToSlash(rel))
}

func uniqueMember(name string, used map[string]bool) string {
	candidate := name
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 2; used[candidate]; i++ {
		candidate = fmt.Sprintf("%s (%d)%s", stem, i, ext)
	}
	used[candidate] = true
	return candidate
}

// safeMember maps an archive member to a path relative to the extraction
// directory, rejecting anything that would escape it.
func safeMember(name string) (string, error) {
	clean := path.Clean(name)
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("unsafe archive member: %s", name)
	}
	clean = strings.TrimPrefix(clean, entriesDir+"/")
	return filepath.FromSlash(clean), nil
}

func writeMember(r io.Reader, dest string, header *tar.Header) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dest, err)
	}
	// #nosec G304 - dest is confined to the target directory
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", dest, err)
	}
	if !header.ModTime.IsZero() {
		_ = os.Chtimes(dest, header.ModTime, header.ModTime)
	}
	return nil
}
