// Package sync implements the batch orchestrator that moves entries between
// a source directory tree and a document store.
//
// # Batches
//
// An import batch scans the tree, diffs the valid entries against the change
// ledger and applies the resulting work set to the store:
//
//	o, err := sync.New(cfg, ledger, store, backups)
//	if err != nil {
//	    return err
//	}
//	result, err := o.Import(ctx, sync.ImportOptions{Mode: sync.ModePending})
//
// Every mutating batch snapshots the store file before opening it. If
// opening or saving the store fails, the snapshot is restored and neither
// the ledger nor the manifest is written. Ledger commits are staged while
// items run and applied only after the store saved successfully.
//
// Export batches write store entries to files and never replace an existing
// file. Remove batches drop ledger entries and optionally the matching store
// entries under the same backup discipline.
//
// # Errors
//
// Batch-level failures are returned as *Error with a Kind; per-item failures
// are reported in the result and do not stop the batch:
//
//	if errors.Is(err, sync.ErrRollbackFailed) {
//	    // the store may be in an unknown state
//	}
//
// # Progress
//
// A ProgressFunc set with WithProgress receives status messages, state
// transitions and completion percentages. Cancellation through the context
// is honored between items; an item that has started runs to completion.
package sync
