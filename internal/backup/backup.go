package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/klauern/blocksync/internal/logging"
	"github.com/klauern/blocksync/internal/util"
)

const (
	// BackupDirPerm is the permission for backup directories (rwxr-x---)
	BackupDirPerm = 0o750
	// BackupFilePerm is the permission for backup files (rw-r-----)
	BackupFilePerm = 0o640

	idTimeLayout = "20060102-150405"
)

var (
	// ErrNotFound is returned when a backup ID is not in the index.
	ErrNotFound = errors.New("backup not found")
	// ErrNoBackups is returned when a source has no snapshots.
	ErrNoBackups = errors.New("no backups available")
	// ErrCorrupted is returned when a snapshot no longer matches its hash.
	ErrCorrupted = errors.New("backup file corrupted")
)

// Options configures backup behavior
type Options struct {
	Operation   string            // Batch that requested the snapshot
	Description string            // Human-readable description
	Metadata    map[string]string // Additional metadata
	Tags        []string          // Tags for categorization
}

// Manager owns a backup directory holding snapshots of one or more store files.
type Manager struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// NewManager creates a Manager rooted at dir. The directory is created lazily.
func NewManager(dir string) *Manager {
	return &Manager{
		dir:    dir,
		logger: logging.Default(),
		now:    time.Now,
	}
}

// NewDefaultManager creates a Manager at the default backups location.
func NewDefaultManager() *Manager {
	return NewManager(util.BlocksyncBackupsPath())
}

// Dir returns the backup directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Snapshot creates a byte-identical copy of sourcePath. Any failure is
// returned; callers treat it as fatal for the batch.
func (m *Manager) Snapshot(sourcePath string, opts Options) (*Metadata, error) {
	sourcePath, err := filepath.Abs(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve source path: %w", err)
	}

	// Get source file info
	sourceInfo, err := os.Stat(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat source path %q: %w", sourcePath, err)
	}
	if sourceInfo.IsDir() {
		return nil, fmt.Errorf("source path %q is a directory", sourcePath)
	}

	// #nosec G304 - sourcePath is the configured store path
	content, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read source file %q: %w", sourcePath, err)
	}

	hash := sha256.Sum256(content)
	hashStr := hex.EncodeToString(hash[:])

	index, err := m.loadIndex()
	if err != nil {
		return nil, fmt.Errorf("failed to load backup index: %w", err)
	}

	sourceDir, err := m.ensureSourceDir(sourcePath)
	if err != nil {
		return nil, err
	}

	created := m.now()
	backupID := m.uniqueID(index, sourceDir, filepath.Ext(sourcePath), formatID(created, hashStr))
	backupPath := filepath.Join(sourceDir, backupID+filepath.Ext(sourcePath))

	if err := util.WriteFileAtomic(backupPath, content, BackupFilePerm); err != nil {
		return nil, fmt.Errorf("failed to write backup file: %w", err)
	}

	metadata := &Metadata{
		ID:          backupID,
		SourcePath:  sourcePath,
		BackupPath:  backupPath,
		Operation:   opts.Operation,
		CreatedAt:   created,
		ModifiedAt:  sourceInfo.ModTime(),
		Hash:        hashStr,
		Size:        sourceInfo.Size(),
		Description: opts.Description,
		Metadata:    opts.Metadata,
		Tags:        opts.Tags,
	}

	index.Backups[backupID] = *metadata
	if err := m.saveIndex(index); err != nil {
		_ = os.Remove(backupPath)
		return nil, fmt.Errorf("failed to add backup to index: %w", err)
	}

	m.logger.Info("backup created",
		logging.BackupID(backupID),
		logging.Path(sourcePath),
		logging.Operation(opts.Operation),
		slog.Int64("size", metadata.Size),
	)

	return metadata, nil
}

// Get returns the metadata of one backup.
func (m *Manager) Get(backupID string) (*Metadata, error) {
	index, err := m.loadIndex()
	if err != nil {
		return nil, fmt.Errorf("failed to load backup index: %w", err)
	}
	metadata, exists := index.Backups[backupID]
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, backupID)
	}
	return &metadata, nil
}

// Restore writes a verified copy of the backup to targetPath, replacing it atomically.
func (m *Manager) Restore(backupID string, targetPath string) error {
	metadata, err := m.Get(backupID)
	if err != nil {
		return err
	}

	content, err := os.ReadFile(metadata.BackupPath)
	if err != nil {
		return fmt.Errorf("failed to read backup file: %w", err)
	}

	hash := sha256.Sum256(content)
	if hex.EncodeToString(hash[:]) != metadata.Hash {
		return fmt.Errorf("%w: hash mismatch for %s", ErrCorrupted, backupID)
	}

	if err := util.WriteFileAtomic(targetPath, content, BackupFilePerm); err != nil {
		return fmt.Errorf("failed to write target file: %w", err)
	}

	m.logger.Info("backup restored", logging.BackupID(backupID), logging.Path(targetPath))
	return nil
}

// RestoreLatest restores the newest snapshot of sourcePath to targetPath.
func (m *Manager) RestoreLatest(sourcePath, targetPath string) (*Metadata, error) {
	latest, err := m.Latest(sourcePath)
	if err != nil {
		return nil, err
	}
	if err := m.Restore(latest.ID, targetPath); err != nil {
		return nil, err
	}
	return latest, nil
}

// List returns backups newest first. An empty sourcePath lists every backup.
func (m *Manager) List(sourcePath string) ([]Metadata, error) {
	index, err := m.loadIndex()
	if err != nil {
		return nil, fmt.Errorf("failed to load backup index: %w", err)
	}

	backups := index.ListBackups()
	if sourcePath == "" {
		return backups, nil
	}

	abs, err := filepath.Abs(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve source path: %w", err)
	}
	filtered := make([]Metadata, 0, len(backups))
	for _, backup := range backups {
		if backup.SourcePath == abs {
			filtered = append(filtered, backup)
		}
	}
	return filtered, nil
}

// Latest returns the newest snapshot of sourcePath.
func (m *Manager) Latest(sourcePath string) (*Metadata, error) {
	backups, err := m.List(sourcePath)
	if err != nil {
		return nil, err
	}
	if len(backups) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoBackups, sourcePath)
	}
	return &backups[0], nil
}

// Delete deletes a backup and removes it from the index
func (m *Manager) Delete(backupID string) error {
	index, err := m.loadIndex()
	if err != nil {
		return fmt.Errorf("failed to load backup index: %w", err)
	}

	metadata, exists := index.Backups[backupID]
	if !exists {
		return fmt.Errorf("%w: %q", ErrNotFound, backupID)
	}

	if err := os.Remove(metadata.BackupPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete backup file: %w", err)
	}

	delete(index.Backups, backupID)
	if err := m.saveIndex(index); err != nil {
		return fmt.Errorf("failed to remove backup from index: %w", err)
	}

	return nil
}

// Verify checks that a backup file is intact and matches its hash
func (m *Manager) Verify(backupID string) error {
	metadata, err := m.Get(backupID)
	if err != nil {
		return err
	}

	if _, err := os.Stat(metadata.BackupPath); os.IsNotExist(err) {
		return fmt.Errorf("backup file missing: %s", metadata.BackupPath)
	}

	hashStr, _, err := hashFile(metadata.BackupPath)
	if err != nil {
		return err
	}
	if hashStr != metadata.Hash {
		return fmt.Errorf("%w: hash mismatch (expected %s, got %s)", ErrCorrupted, metadata.Hash, hashStr)
	}

	return nil
}

func (m *Manager) ensureSourceDir(sourcePath string) (string, error) {
	sourceDir := filepath.Join(m.dir, sourceKey(sourcePath))
	if err := os.MkdirAll(sourceDir, BackupDirPerm); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}
	marker := filepath.Join(sourceDir, sourceFilename)
	if _, err := os.Stat(marker); errors.Is(err, os.ErrNotExist) {
		if err := util.WriteFileAtomic(marker, []byte(sourcePath+"\n"), BackupFilePerm); err != nil {
			return "", fmt.Errorf("failed to write source marker: %w", err)
		}
	}
	return sourceDir, nil
}

// uniqueID disambiguates IDs created within the same millisecond from the same content.
func (m *Manager) uniqueID(index *Index, dir, ext, id string) string {
	candidate := id
	for n := 2; ; n++ {
		_, inIndex := index.Backups[candidate]
		_, statErr := os.Stat(filepath.Join(dir, candidate+ext))
		if !inIndex && errors.Is(statErr, os.ErrNotExist) {
			return candidate
		}
		candidate = fmt.Sprintf("%s-%d", id, n)
	}
}

// sourceKey names the per-source backup directory: the store's base name
// plus a short hash of its absolute path.
func sourceKey(sourcePath string) string {
	sum := sha256.Sum256([]byte(sourcePath))
	base := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	return base + "-" + hex.EncodeToString(sum[:])[:8]
}

func formatID(t time.Time, hash string) string {
	return fmt.Sprintf("%s-%03d-%s", t.Format(idTimeLayout), t.Nanosecond()/int(time.Millisecond), hash[:8])
}

// parseIDTime recovers the creation time encoded in a backup ID.
func parseIDTime(id string) (time.Time, bool) {
	if len(id) < len(idTimeLayout)+4 {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(idTimeLayout, id[:len(idTimeLayout)], time.Local)
	if err != nil {
		return time.Time{}, false
	}
	rest := id[len(idTimeLayout):]
	if rest[0] != '-' {
		return time.Time{}, false
	}
	ms, err := strconv.Atoi(rest[1:4])
	if err != nil {
		return time.Time{}, false
	}
	return t.Add(time.Duration(ms) * time.Millisecond), true
}

func hashFile(path string) (string, int64, error) {
	// #nosec G304 - path is a snapshot inside the backup directory
	file, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open backup file: %w", err)
	}
	defer func() { _ = file.Close() }()

	hash := sha256.New()
	n, err := io.Copy(hash, file)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read backup file: %w", err)
	}
	return hex.EncodeToString(hash.Sum(nil)), n, nil
}
