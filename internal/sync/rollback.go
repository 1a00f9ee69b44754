package sync

import (
	"context"
	"errors"
	"os"

	"github.com/klauern/blocksync/internal/backup"
	"github.com/klauern/blocksync/internal/logging"
)

// RollbackResult reports an explicit rollback.
type RollbackResult struct {
	// Restored is the snapshot written over the store.
	Restored *backup.Metadata `json:"restored" yaml:"restored"`

	// Safety is the snapshot of the store taken just before restoring.
	Safety *backup.Metadata `json:"safety,omitempty" yaml:"safety,omitempty"`
}

// Rollback restores the store from backupID, or from its newest snapshot
// when backupID is empty. The current store is snapshotted first so the
// rollback can itself be undone. The ledger is left unchanged.
func (o *Orchestrator) Rollback(ctx context.Context, backupID string) (*RollbackResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, canceledErr("rollback", err)
	}
	o.beginBatch()
	defer o.setState(StateIdle)

	var (
		target *backup.Metadata
		err    error
	)
	if backupID == "" {
		target, err = o.backups.Latest(o.cfg.StorePath)
	} else {
		target, err = o.backups.Get(backupID)
	}
	if err != nil {
		return nil, validationErr("rollback", err)
	}
	if err := o.backups.Verify(target.ID); err != nil {
		return nil, validationErr("rollback", err)
	}

	result := &RollbackResult{Restored: target}

	o.setState(StateRollingBack)
	if _, statErr := os.Stat(o.cfg.StorePath); statErr == nil {
		safety, err := o.backups.Snapshot(o.cfg.StorePath, backup.Options{
			Operation:   "rollback",
			Description: "before restoring " + target.ID,
		})
		if err != nil {
			return nil, fatalErr("backup", err)
		}
		result.Safety = safety
	} else if !errors.Is(statErr, os.ErrNotExist) {
		return nil, fatalErr("backup", statErr)
	}

	if err := o.backups.Restore(target.ID, o.cfg.StorePath); err != nil {
		o.logger.Error("ROLLBACK FAILED: store may be in an unknown state", logging.BackupID(target.ID), logging.Err(err))
		return result, &Error{Kind: KindRollbackFailed, Op: "rollback", Err: err}
	}

	o.logger.Info("store restored", logging.BackupID(target.ID), logging.Path(o.cfg.StorePath))
	return result, nil
}
