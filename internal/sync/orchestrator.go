package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/klauern/blocksync/internal/backup"
	"github.com/klauern/blocksync/internal/ledger"
	"github.com/klauern/blocksync/internal/logging"
	"github.com/klauern/blocksync/internal/model"
	"github.com/klauern/blocksync/internal/naming"
	"github.com/klauern/blocksync/internal/scanner"
	"github.com/klauern/blocksync/internal/store"
)

// Config holds the paths and rules an orchestrator works with.
type Config struct {
	// Root is the source directory tree.
	Root string

	// MaxDepth bounds recursion below Root.
	MaxDepth int

	// StorePath is the document store file.
	StorePath string

	// Rules is the naming convention for entry files.
	Rules naming.Rules

	// KeepBackups is how many snapshots of the store to retain (0 = all).
	KeepBackups int
}

// Orchestrator drives import, export and removal batches against one store
// and one ledger. It runs one batch at a time and does no locking of its
// own; callers serialize mutating batches.
type Orchestrator struct {
	cfg       Config
	scanner   *scanner.Scanner
	ledger    *ledger.Ledger
	store     store.DocumentStore
	backups   *backup.Manager
	confirmer Confirmer
	progress  ProgressFunc
	logger    *slog.Logger

	state  State
	states []State
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConfirmer sets the confirmer consulted before importing new identities.
func WithConfirmer(c Confirmer) Option {
	return func(o *Orchestrator) { o.confirmer = c }
}

// WithProgress sets the progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(o *Orchestrator) { o.progress = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// New creates an Orchestrator. Invalid configuration is a KindValidation error.
func New(cfg Config, l *ledger.Ledger, s store.DocumentStore, b *backup.Manager, opts ...Option) (*Orchestrator, error) {
	if cfg.Root == "" {
		return nil, validationErr("configure", errors.New("source root is not set"))
	}
	if cfg.StorePath == "" {
		return nil, validationErr("configure", errors.New("store path is not set"))
	}
	if err := cfg.Rules.Check(); err != nil {
		return nil, validationErr("configure", err)
	}
	if l == nil || s == nil || b == nil {
		return nil, validationErr("configure", errors.New("ledger, store and backup manager are required"))
	}
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = scanner.DefaultMaxDepth
	}

	o := &Orchestrator{
		cfg:     cfg,
		ledger:  l,
		store:   s,
		backups: b,
		logger:  logging.Default(),
		state:   StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.scanner = scanner.New(cfg.Rules).WithLogger(o.logger)
	return o, nil
}

// Config returns the orchestrator's configuration.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// Ledger returns the ledger the orchestrator commits to.
func (o *Orchestrator) Ledger() *ledger.Ledger {
	return o.ledger
}

// State returns the current state.
func (o *Orchestrator) State() State {
	return o.state
}

func (o *Orchestrator) setState(next State) {
	if next == o.state {
		return
	}
	if !o.state.CanTransition(next) {
		o.logger.Error("illegal state transition",
			slog.String("from", string(o.state)),
			logging.State(string(next)),
		)
	}
	o.logger.Debug("state transition", slog.String("from", string(o.state)), logging.State(string(next)))
	o.state = next
	o.states = append(o.states, next)
	o.emit(ProgressEvent{Type: ProgressState, State: next})
}

func (o *Orchestrator) beginBatch() {
	o.state = StateIdle
	o.states = []State{StateIdle}
}

func (o *Orchestrator) endBatch(b *Batch, start time.Time) {
	o.setState(StateIdle)
	b.States = append([]State(nil), o.states...)
	b.Duration = time.Since(start)
}

// ImportOptions configures an import batch.
type ImportOptions struct {
	// Mode selects new and modified entries (default) or all entries.
	Mode Mode

	// Only narrows the work set to these identities when non-empty.
	Only []model.Identity

	// Confirm consults the Confirmer when the batch adds new identities.
	Confirm bool

	// DryRun computes the work set without any side effects.
	DryRun bool
}

type staged struct {
	desc model.Descriptor
}

// Import scans the source tree, diffs it against the ledger and applies the
// resulting work to the store under a backup. Per-item failures are
// reported in the result; batch-level failures return an *Error alongside
// the partial result.
func (o *Orchestrator) Import(ctx context.Context, opts ImportOptions) (*ImportResult, error) {
	defer logging.Timer("import")()
	start := time.Now()
	o.beginBatch()

	if opts.Mode == "" {
		opts.Mode = ModePending
	}
	result := &ImportResult{Mode: opts.Mode}
	result.DryRun = opts.DryRun
	if !opts.Mode.IsValid() {
		return result, validationErr("import", fmt.Errorf("unknown import mode %q", opts.Mode))
	}

	plan, err := o.plan(ctx, true)
	if err != nil {
		o.endBatch(&result.Batch, start)
		return result, err
	}
	result.Plan = plan

	if missing := plan.Unmatched(opts.Only); len(missing) > 0 {
		o.endBatch(&result.Batch, start)
		keys := make([]string, len(missing))
		for i, id := range missing {
			keys[i] = id.Key()
		}
		return result, validationErr("import", fmt.Errorf("no source file for %s", strings.Join(keys, ", ")))
	}

	work := plan.Work(opts.Mode, opts.Only)
	o.logger.Debug("work set computed",
		logging.Operation("import"),
		logging.Count(len(work)),
		slog.String("mode", string(opts.Mode)),
	)

	if opts.DryRun {
		for _, it := range work {
			result.Items = append(result.Items, ItemResult{
				Identity: it.Descriptor.Identity,
				Path:     it.Descriptor.FullPath,
				Action:   ActionPlanned,
				Message:  string(it.State),
			})
		}
		o.endBatch(&result.Batch, start)
		return result, nil
	}

	if len(work) == 0 {
		o.status("Nothing to import")
		o.ledger.UpdateManifest(plan.Scan.Valid)
		err := o.ledger.SaveManifest()
		o.endBatch(&result.Batch, start)
		o.percent(percentDone)
		if err != nil {
			return result, fatalErr("persist manifest", err)
		}
		return result, nil
	}

	if opts.Confirm && o.confirmer != nil {
		if fresh := newIdentities(work); len(fresh) > 0 {
			o.setState(StateAwaitingConfirmation)
			o.status(fmt.Sprintf("Waiting for confirmation of %d new entries", len(fresh)))
			ok, err := o.confirmer.Confirm(ctx, fresh)
			if err == nil && ctx.Err() != nil {
				err = ctx.Err()
			}
			if err != nil {
				o.endBatch(&result.Batch, start)
				return result, canceledErr("confirm", err)
			}
			if !ok {
				o.logger.Info("import aborted at confirmation", logging.Count(len(fresh)))
				result.Aborted = true
				o.endBatch(&result.Batch, start)
				return result, nil
			}
		}
	}
	if err := ctx.Err(); err != nil {
		o.endBatch(&result.Batch, start)
		return result, canceledErr("import", err)
	}

	berr := o.mutate(ctx, &result.Batch, "import", len(work), func(ctx context.Context) []staged {
		var commits []staged
		for i, it := range work {
			if ctx.Err() != nil {
				result.Canceled = true
				for _, rest := range work[i:] {
					result.Items = append(result.Items, ItemResult{
						Identity: rest.Descriptor.Identity,
						Path:     rest.Descriptor.FullPath,
						Action:   ActionSkipped,
						Message:  "canceled",
					})
				}
				o.logger.Info("import canceled between items", logging.Count(i))
				break
			}
			ir := o.importItem(ctx, it)
			result.Items = append(result.Items, ir)
			if ir.Success() {
				commits = append(commits, staged{desc: it.Descriptor})
			}
			o.percent(itemPercent(i+1, len(work)))
		}
		return commits
	}, func(commits []staged) {
		for _, c := range commits {
			o.ledger.Commit(c.desc.Identity, c.desc.ModTime, c.desc.FullPath)
		}
	})
	if berr != nil {
		o.endBatch(&result.Batch, start)
		return result, berr
	}

	var perr error
	if err := o.ledger.Save(); err != nil {
		perr = fatalErr("persist ledger", err)
	} else if !result.Canceled {
		o.ledger.UpdateManifest(plan.Scan.Valid)
		if err := o.ledger.SaveManifest(); err != nil {
			perr = fatalErr("persist manifest", err)
		}
	}
	if perr != nil {
		o.logger.Error("store saved but ledger not persisted; entries will be re-imported", logging.Err(perr))
	}

	result.Pruned = o.prune()
	o.endBatch(&result.Batch, start)
	o.percent(percentDone)

	o.logger.Info("import finished",
		slog.Int("created", len(result.Created())),
		slog.Int("updated", len(result.Updated())),
		slog.Int("failed", len(result.Failed())),
		slog.Bool("canceled", result.Canceled),
	)
	return result, perr
}

func (o *Orchestrator) importItem(ctx context.Context, it ledger.Item) ItemResult {
	d := it.Descriptor
	ir := ItemResult{Identity: d.Identity, Path: d.FullPath}
	o.emit(ProgressEvent{Type: ProgressStatus, Message: "Importing " + d.Identity.String(), Identity: d.Identity})

	// Items run to completion once started; cancellation is checked between them.
	if err := o.store.Add(context.WithoutCancel(ctx), d.Identity, d.FullPath); err != nil {
		o.logger.Warn("import failed", logging.Entry(d.Identity.Name), logging.Category(d.Identity.Category), logging.Err(err))
		ir.Action = ActionFailed
		ir.Error = err
		return ir
	}

	if it.State == ledger.StateNew {
		ir.Action = ActionCreated
	} else {
		ir.Action = ActionUpdated
		ir.Message = string(it.State)
	}
	o.logger.Debug("imported", logging.Entry(d.Identity.Name), logging.Category(d.Identity.Category))
	return ir
}

// mutate runs the backup, open, mutate, save and commit steps shared by
// import and removal. Ledger commits are staged while mutating and applied
// in the Committing state, after the store saved, so a rollback never has
// ledger changes to undo.
func (o *Orchestrator) mutate(
	ctx context.Context,
	b *Batch,
	op string,
	n int,
	run func(ctx context.Context) []staged,
	apply func([]staged),
) error {
	o.setState(StateBackingUp)
	o.status("Backing up store")
	snap, err := o.backups.Snapshot(o.cfg.StorePath, backup.Options{
		Operation:   op,
		Description: fmt.Sprintf("before %s of %d entries", op, n),
		Metadata:    map[string]string{"items": strconv.Itoa(n)},
	})
	if err != nil {
		o.logger.Error("backup failed, batch aborted", logging.Operation(op), logging.Err(err))
		return fatalErr("backup", err)
	}
	b.Backup = snap
	o.percent(percentBackedUp)

	o.setState(StateMutating)
	if err := o.store.Open(ctx, o.cfg.StorePath); err != nil {
		return o.rollback(b, fatalErr("open store", err))
	}

	commits := run(ctx)
	o.logger.Debug("staged ledger commits", logging.Count(len(commits)))

	o.setState(StateSaving)
	o.status("Saving store")
	if err := o.store.Save(context.WithoutCancel(ctx)); err != nil {
		o.logger.Error("store save failed", logging.Operation(op), logging.Err(err))
		return o.rollback(b, fatalErr("save store", err))
	}
	if err := o.store.Close(); err != nil {
		o.logger.Warn("store close failed after save", logging.Err(err))
	}
	o.percent(percentSaved)

	o.setState(StateCommitting)
	apply(commits)
	return nil
}

// rollback restores the batch snapshot over the store after a fatal error.
func (o *Orchestrator) rollback(b *Batch, cause error) error {
	o.setState(StateRollingBack)
	o.status("Restoring store from backup")
	if err := o.store.Close(); err != nil {
		o.logger.Warn("store close failed during rollback", logging.Err(err))
	}

	if b.Backup == nil {
		return cause
	}
	if err := o.backups.Restore(b.Backup.ID, o.cfg.StorePath); err != nil {
		o.logger.Error("ROLLBACK FAILED: store may be in an unknown state",
			logging.BackupID(b.Backup.ID),
			logging.Path(o.cfg.StorePath),
			logging.Err(err),
			slog.String("cause", cause.Error()),
		)
		return &Error{Kind: KindRollbackFailed, Op: "rollback", Err: fmt.Errorf("%w (after: %v)", err, cause)}
	}
	b.RolledBack = true
	o.logger.Warn("store rolled back", logging.BackupID(b.Backup.ID), slog.String("cause", cause.Error()))
	return cause
}

func (o *Orchestrator) prune() []string {
	if o.cfg.KeepBackups <= 0 {
		return nil
	}
	pruned, err := o.backups.Prune(o.cfg.StorePath, o.cfg.KeepBackups)
	if err != nil {
		o.logger.Warn("backup pruning failed", logging.Err(err))
	}
	return pruned
}

func newIdentities(work []ledger.Item) []model.Identity {
	var out []model.Identity
	for _, it := range work {
		if it.State == ledger.StateNew {
			out = append(out, it.Descriptor.Identity)
		}
	}
	return out
}
