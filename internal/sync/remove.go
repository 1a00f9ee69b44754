package sync

import (
	"context"
	"errors"
	"time"

	"github.com/klauern/blocksync/internal/logging"
	"github.com/klauern/blocksync/internal/model"
	"github.com/klauern/blocksync/internal/store"
)

// RemoveOptions configures a removal batch.
type RemoveOptions struct {
	// Identities to remove. Required.
	Identities []model.Identity

	// FromStore also deletes the entries from the store, under a backup.
	FromStore bool
}

// Remove deletes ledger entries and, optionally, the matching store
// entries. Store removal follows the same backup, save and rollback rules
// as an import; ledger entries are dropped only for identities whose store
// removal was saved.
func (o *Orchestrator) Remove(ctx context.Context, opts RemoveOptions) (*RemoveResult, error) {
	defer logging.Timer("remove")()
	start := time.Now()
	o.beginBatch()

	result := &RemoveResult{FromStore: opts.FromStore}
	if len(opts.Identities) == 0 {
		return result, validationErr("remove", errors.New("no identities given"))
	}

	if !opts.FromStore {
		for _, id := range opts.Identities {
			ir := ItemResult{Identity: id, Action: ActionRemoved}
			if !o.ledger.Remove(id) {
				ir.Action = ActionSkipped
				ir.Message = "not in ledger"
			}
			result.Items = append(result.Items, ir)
		}
		o.endBatch(&result.Batch, start)
		if err := o.ledger.Save(); err != nil {
			return result, fatalErr("persist ledger", err)
		}
		return result, nil
	}

	berr := o.mutate(ctx, &result.Batch, "remove", len(opts.Identities), func(ctx context.Context) []staged {
		var removed []staged
		for i, id := range opts.Identities {
			if ctx.Err() != nil {
				result.Canceled = true
				for _, rest := range opts.Identities[i:] {
					result.Items = append(result.Items, ItemResult{Identity: rest, Action: ActionSkipped, Message: "canceled"})
				}
				break
			}
			ir := ItemResult{Identity: id, Action: ActionRemoved}
			err := o.store.Remove(context.WithoutCancel(ctx), id)
			switch {
			case errors.Is(err, store.ErrNotFound):
				// Still clear the ledger so the entry is tracked as gone.
				ir.Action = ActionSkipped
				ir.Message = "not in store"
				removed = append(removed, staged{desc: model.Descriptor{Identity: id}})
			case err != nil:
				ir.Action = ActionFailed
				ir.Error = err
				o.logger.Warn("store removal failed", logging.Entry(id.Name), logging.Category(id.Category), logging.Err(err))
			default:
				removed = append(removed, staged{desc: model.Descriptor{Identity: id}})
			}
			result.Items = append(result.Items, ir)
			o.percent(itemPercent(i+1, len(opts.Identities)))
		}
		return removed
	}, func(removed []staged) {
		for _, r := range removed {
			o.ledger.Remove(r.desc.Identity)
		}
	})
	if berr != nil {
		o.endBatch(&result.Batch, start)
		return result, berr
	}

	var perr error
	if err := o.ledger.Save(); err != nil {
		perr = fatalErr("persist ledger", err)
	}
	o.prune()
	o.endBatch(&result.Batch, start)
	o.percent(percentDone)
	return result, perr
}
