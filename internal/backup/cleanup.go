package backup

import (
	"fmt"
	"time"

	"github.com/klauern/blocksync/internal/logging"
)

// DefaultKeep is the number of snapshots retained per source by default.
const DefaultKeep = 10

// CleanupOptions configures backup cleanup behavior
type CleanupOptions struct {
	// MaxBackups limits the number of backups to keep per source (0 = unlimited)
	MaxBackups int

	// MaxAge is the maximum age of backups to keep (0 = unlimited)
	MaxAge time.Duration

	// KeepAtLeastOne ensures at least one backup is kept per source file
	KeepAtLeastOne bool

	// SourcePath filters cleanup to one store file (empty = all sources)
	SourcePath string

	// DryRun previews what would be deleted without actually deleting
	DryRun bool
}

// DefaultCleanupOptions returns sensible defaults for cleanup
func DefaultCleanupOptions() CleanupOptions {
	return CleanupOptions{
		MaxBackups:     DefaultKeep,
		MaxAge:         0,
		KeepAtLeastOne: true,
	}
}

// Prune deletes the oldest snapshots of sourcePath beyond keep, ordered by
// creation time. A keep of zero or less disables pruning. Individual
// deletion failures are logged and skipped.
func (m *Manager) Prune(sourcePath string, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	return m.Cleanup(CleanupOptions{MaxBackups: keep, SourcePath: sourcePath})
}

// Cleanup removes old backups based on the specified options. Only a failure
// to read the index is returned; per-backup deletion errors are logged.
func (m *Manager) Cleanup(opts CleanupOptions) ([]string, error) {
	backups, err := m.List(opts.SourcePath)
	if err != nil {
		return nil, err
	}

	// Group by source, each group newest first.
	groups := make(map[string][]Metadata)
	var order []string
	for _, backup := range backups {
		if _, ok := groups[backup.SourcePath]; !ok {
			order = append(order, backup.SourcePath)
		}
		groups[backup.SourcePath] = append(groups[backup.SourcePath], backup)
	}

	var toDelete []string
	now := m.now()

	for _, source := range order {
		group := groups[source]
		var groupDelete []string
		keepCount := 0
		for idx, backup := range group {
			shouldDelete := false

			if opts.MaxAge > 0 && now.Sub(backup.CreatedAt) > opts.MaxAge {
				shouldDelete = true
			}
			if opts.MaxBackups > 0 && idx >= opts.MaxBackups {
				shouldDelete = true
			}

			if shouldDelete {
				groupDelete = append(groupDelete, backup.ID)
			} else {
				keepCount++
			}
		}

		// Spare the newest when everything would go.
		if opts.KeepAtLeastOne && keepCount == 0 && len(groupDelete) > 0 {
			groupDelete = groupDelete[1:]
		}
		toDelete = append(toDelete, groupDelete...)
	}

	if opts.DryRun {
		return toDelete, nil
	}

	var deleted []string
	for _, backupID := range toDelete {
		if err := m.Delete(backupID); err != nil {
			m.logger.Warn("failed to delete old backup", logging.BackupID(backupID), logging.Err(err))
			continue
		}
		deleted = append(deleted, backupID)
	}

	if len(deleted) > 0 {
		m.logger.Debug("pruned backups", logging.Count(len(deleted)))
	}
	return deleted, nil
}

// Stats returns statistics about backups
func (m *Manager) Stats() (*Stats, error) {
	index, err := m.loadIndex()
	if err != nil {
		return nil, fmt.Errorf("failed to load backup index: %w", err)
	}

	stats := &Stats{
		TotalBackups:    len(index.Backups),
		TotalSize:       0,
		BackupsBySource: make(map[string]int),
		OldestBackup:    time.Time{},
		NewestBackup:    time.Time{},
	}

	for _, backup := range index.Backups {
		stats.TotalSize += backup.Size
		stats.BackupsBySource[backup.SourcePath]++

		if stats.OldestBackup.IsZero() || backup.CreatedAt.Before(stats.OldestBackup) {
			stats.OldestBackup = backup.CreatedAt
		}
		if backup.CreatedAt.After(stats.NewestBackup) {
			stats.NewestBackup = backup.CreatedAt
		}
	}

	return stats, nil
}

// Stats contains statistics about backups
type Stats struct {
	TotalBackups    int            `json:"total_backups" yaml:"total_backups"`
	TotalSize       int64          `json:"total_size" yaml:"total_size"`
	BackupsBySource map[string]int `json:"backups_by_source" yaml:"backups_by_source"`
	OldestBackup    time.Time      `json:"oldest_backup" yaml:"oldest_backup"`
	NewestBackup    time.Time      `json:"newest_backup" yaml:"newest_backup"`
}
