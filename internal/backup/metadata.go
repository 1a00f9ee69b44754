// Package backup keeps timestamped, hash-verified snapshots of store files.
package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauern/blocksync/internal/logging"
	"github.com/klauern/blocksync/internal/util"
)

// Metadata contains metadata about a single backup
type Metadata struct {
	ID          string            `json:"id"`          // Unique backup identifier (timestamp + hash)
	SourcePath  string            `json:"source_path"` // Store file the snapshot was taken from
	BackupPath  string            `json:"backup_path"` // Path to backup file
	Operation   string            `json:"operation"`   // Batch that triggered the snapshot (import, remove, manual)
	CreatedAt   time.Time         `json:"created_at"`  // Backup creation timestamp
	ModifiedAt  time.Time         `json:"modified_at"` // Source modification timestamp
	Hash        string            `json:"hash"`        // SHA256 hash of content
	Size        int64             `json:"size"`        // File size in bytes
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"` // Additional metadata
	Tags        []string          `json:"tags,omitempty"`
}

// Index maintains an index of all backups
type Index struct {
	Version string              `json:"version"`
	Updated time.Time           `json:"updated"`
	Backups map[string]Metadata `json:"backups"` // Key: backup ID
}

const (
	// IndexVersion is the current version of the backup index format
	IndexVersion = "1.0"
	// IndexFilename is the name of the index file
	IndexFilename = "index.json"
	// sourceFilename records, inside each per-source directory, which store
	// file the snapshots belong to. It lets a lost index be rebuilt.
	sourceFilename = "SOURCE"
)

func newIndex() *Index {
	return &Index{
		Version: IndexVersion,
		Updated: time.Now(),
		Backups: make(map[string]Metadata),
	}
}

// loadIndex loads the backup index from disk. A missing index is empty; a
// corrupt one is rebuilt from the snapshot files.
func (m *Manager) loadIndex() (*Index, error) {
	indexPath := filepath.Join(m.dir, IndexFilename)

	// #nosec G304 - indexPath is constructed from the configured backup directory
	data, err := os.ReadFile(indexPath)
	if errors.Is(err, os.ErrNotExist) {
		return newIndex(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read index file: %w", err)
	}

	var index Index
	if err := json.Unmarshal(data, &index); err != nil {
		m.logger.Warn("backup index corrupt, rebuilding from disk", logging.Path(indexPath), logging.Err(err))
		rebuilt, rerr := m.rebuildIndex()
		if rerr != nil {
			return nil, fmt.Errorf("failed to rebuild index: %w", rerr)
		}
		if serr := m.saveIndex(rebuilt); serr != nil {
			return nil, serr
		}
		return rebuilt, nil
	}
	if index.Backups == nil {
		index.Backups = make(map[string]Metadata)
	}

	return &index, nil
}

// saveIndex saves the backup index to disk
func (m *Manager) saveIndex(index *Index) error {
	if err := os.MkdirAll(m.dir, BackupDirPerm); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	index.Updated = time.Now()

	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}

	indexPath := filepath.Join(m.dir, IndexFilename)
	if err := util.WriteFileAtomic(indexPath, data, BackupFilePerm); err != nil {
		return fmt.Errorf("failed to write index file: %w", err)
	}

	return nil
}

// rebuildIndex reconstructs the index by hashing every snapshot file found
// in the per-source directories.
func (m *Manager) rebuildIndex() (*Index, error) {
	index := newIndex()

	dirs, err := os.ReadDir(m.dir)
	if errors.Is(err, os.ErrNotExist) {
		return index, nil
	}
	if err != nil {
		return nil, err
	}

	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		sub := filepath.Join(m.dir, d.Name())
		// #nosec G304 - reading a marker file inside the backup directory
		src, err := os.ReadFile(filepath.Join(sub, sourceFilename))
		if err != nil {
			m.logger.Warn("skipping backup directory without source marker", logging.Path(sub), logging.Err(err))
			continue
		}
		sourcePath := strings.TrimSpace(string(src))

		files, err := os.ReadDir(sub)
		if err != nil {
			m.logger.Warn("skipping unreadable backup directory", logging.Path(sub), logging.Err(err))
			continue
		}
		for _, f := range files {
			if f.IsDir() || f.Name() == sourceFilename || strings.HasPrefix(f.Name(), ".") {
				continue
			}
			path := filepath.Join(sub, f.Name())
			id := strings.TrimSuffix(f.Name(), filepath.Ext(f.Name()))
			created, ok := parseIDTime(id)
			if !ok {
				continue
			}
			hash, size, err := hashFile(path)
			if err != nil {
				m.logger.Warn("skipping unreadable snapshot", logging.Path(path), logging.Err(err))
				continue
			}
			index.Backups[id] = Metadata{
				ID:          id,
				SourcePath:  sourcePath,
				BackupPath:  path,
				Operation:   "recovered",
				CreatedAt:   created,
				Hash:        hash,
				Size:        size,
				Description: "recovered from backup directory",
			}
		}
	}

	return index, nil
}

// ListBackups returns all backups sorted by creation time (newest first)
func (idx *Index) ListBackups() []Metadata {
	backups := make([]Metadata, 0, len(idx.Backups))
	for _, backup := range idx.Backups {
		backups = append(backups, backup)
	}
	sortNewestFirst(backups)
	return backups
}

func sortNewestFirst(backups []Metadata) {
	sort.Slice(backups, func(i, j int) bool {
		if !backups[i].CreatedAt.Equal(backups[j].CreatedAt) {
			return backups[i].CreatedAt.After(backups[j].CreatedAt)
		}
		return backups[i].ID > backups[j].ID
	})
}
