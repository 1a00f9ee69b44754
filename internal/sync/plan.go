package sync

import (
	"context"
	"errors"
	"time"

	"github.com/klauern/blocksync/internal/ledger"
	"github.com/klauern/blocksync/internal/model"
	"github.com/klauern/blocksync/internal/scanner"
)

// Plan is the read-only result of scanning the source tree and diffing it
// against the ledger.
type Plan struct {
	Root        string          `json:"root" yaml:"root"`
	Scan        *scanner.Result `json:"scan" yaml:"scan"`
	Diff        *ledger.Diff    `json:"diff" yaml:"diff"`
	GeneratedAt time.Time       `json:"generated_at" yaml:"generated_at"`
}

// Work returns the items an import in mode would process, narrowed to only
// when it is non-empty. Items are sorted by path.
func (p *Plan) Work(mode Mode, only []model.Identity) []ledger.Item {
	var items []ledger.Item
	if mode == ModeAll {
		items = p.Diff.All()
	} else {
		items = p.Diff.Pending()
	}
	if len(only) == 0 {
		return items
	}

	want := make(map[model.Identity]struct{}, len(only))
	for _, id := range only {
		want[id] = struct{}{}
	}
	filtered := items[:0:0]
	for _, it := range items {
		if _, ok := want[it.Descriptor.Identity]; ok {
			filtered = append(filtered, it)
		}
	}
	return filtered
}

// Unmatched returns the identities in only that no scanned source file has,
// in the order given.
func (p *Plan) Unmatched(only []model.Identity) []model.Identity {
	if len(only) == 0 {
		return nil
	}
	known := make(map[model.Identity]struct{})
	for _, it := range p.Diff.All() {
		known[it.Descriptor.Identity] = struct{}{}
	}
	var missing []model.Identity
	for _, id := range only {
		if _, ok := known[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// Status scans and diffs without changing anything or emitting progress.
func (o *Orchestrator) Status(ctx context.Context) (*Plan, error) {
	return o.plan(ctx, false)
}

func (o *Orchestrator) plan(ctx context.Context, track bool) (*Plan, error) {
	if track {
		o.setState(StateScanning)
		o.status("Scanning " + o.cfg.Root)
	}

	res, err := o.scanner.Scan(ctx, o.cfg.Root, o.cfg.MaxDepth)
	if err != nil {
		if track {
			o.setState(StateIdle)
		}
		switch {
		case errors.Is(err, scanner.ErrRootNotFound):
			return nil, validationErr("scan", err)
		case ctx.Err() != nil:
			return nil, canceledErr("scan", err)
		default:
			return nil, fatalErr("scan", err)
		}
	}
	if track {
		o.percent(percentScanned)
		o.setState(StateDiffing)
	}
	rules := o.cfg.Rules
	root := res.Root
	diff := o.ledger.Diff(res.Valid, func(p string) (model.Identity, error) {
		return rules.DeriveIdentity(p, root)
	})
	if track {
		o.percent(percentDiffed)
	}

	return &Plan{
		Root:        res.Root,
		Scan:        res,
		Diff:        diff,
		GeneratedAt: time.Now(),
	}, nil
}
