package sync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauern/blocksync/internal/logging"
	"github.com/klauern/blocksync/internal/model"
)

// maxCollisionSuffix bounds the counter used to find a free output name.
const maxCollisionSuffix = 10000

// ExportOptions configures an export batch.
type ExportOptions struct {
	// OutputDir receives the exported files. Required.
	OutputDir string

	// CategoryPrefix limits the export to a category subtree.
	CategoryPrefix string

	// Only narrows the export to these identities when non-empty.
	Only []model.Identity

	// Flat writes every entry directly into OutputDir instead of one
	// directory per category.
	Flat bool
}

// Export writes store entries to files. Existing files are never replaced;
// a counter suffix is added instead. The ledger is not consulted.
func (o *Orchestrator) Export(ctx context.Context, opts ExportOptions) (*ExportResult, error) {
	defer logging.Timer("export")()
	start := time.Now()

	result := &ExportResult{OutputDir: opts.OutputDir}
	if opts.OutputDir == "" {
		return result, validationErr("export", errors.New("output directory is not set"))
	}
	if err := os.MkdirAll(opts.OutputDir, 0o750); err != nil {
		return result, validationErr("export", fmt.Errorf("failed to create output directory: %w", err))
	}

	o.status("Opening store")
	if err := o.store.Open(ctx, o.cfg.StorePath); err != nil {
		return result, fatalErr("open store", err)
	}
	defer func() { _ = o.store.Close() }()

	entries, err := o.store.List(ctx, opts.CategoryPrefix)
	if err != nil {
		return result, fatalErr("list store", err)
	}
	if len(opts.Only) > 0 {
		want := make(map[model.Identity]struct{}, len(opts.Only))
		for _, id := range opts.Only {
			want[id] = struct{}{}
		}
		filtered := entries[:0]
		for _, e := range entries {
			if _, ok := want[e.Identity]; ok {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	for i, e := range entries {
		if ctx.Err() != nil {
			result.Canceled = true
			for _, rest := range entries[i:] {
				result.Items = append(result.Items, ItemResult{Identity: rest.Identity, Action: ActionSkipped, Message: "canceled"})
			}
			break
		}
		result.Items = append(result.Items, o.exportItem(ctx, e.Identity, opts))
		o.percent(itemPercent(i+1, len(entries)))
	}

	result.Duration = time.Since(start)
	o.percent(percentDone)
	o.logger.Info("export finished",
		logging.Path(opts.OutputDir),
		logging.Count(len(result.Exported())),
	)
	return result, nil
}

func (o *Orchestrator) exportItem(ctx context.Context, id model.Identity, opts ExportOptions) ItemResult {
	ir := ItemResult{Identity: id}
	o.emit(ProgressEvent{Type: ProgressStatus, Message: "Exporting " + id.String(), Identity: id})

	dir := opts.OutputDir
	if !opts.Flat {
		dir = filepath.Join(dir, o.cfg.Rules.RelativeDir(id.Category))
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		ir.Action = ActionFailed
		ir.Error = fmt.Errorf("failed to create %s: %w", dir, err)
		return ir
	}

	path, err := ReserveUniquePath(dir, o.cfg.Rules.FileName(id))
	if err != nil {
		ir.Action = ActionFailed
		ir.Error = err
		return ir
	}
	ir.Path = path

	if err := o.store.Export(context.WithoutCancel(ctx), id, path); err != nil {
		// Only the placeholder we created is removed.
		_ = os.Remove(path)
		o.logger.Warn("export failed", logging.Entry(id.Name), logging.Category(id.Category), logging.Err(err))
		ir.Action = ActionFailed
		ir.Error = err
		return ir
	}
	ir.Action = ActionExported
	return ir
}

// ReserveUniquePath creates an empty file named fileName in dir, or
// "base (N).ext" for the first free N, and returns its path. Creation is
// exclusive so a concurrent writer cannot be clobbered.
func ReserveUniquePath(dir, fileName string) (string, error) {
	ext := filepath.Ext(fileName)
	base := strings.TrimSuffix(fileName, ext)

	for n := 1; n <= maxCollisionSuffix; n++ {
		name := fileName
		if n > 1 {
			name = fmt.Sprintf("%s (%d)%s", base, n, ext)
		}
		path := filepath.Join(dir, name)
		// #nosec G304 - path is built from the export directory and entry name
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return "", err
		}
		return path, nil
	}
	return "", fmt.Errorf("no free file name for %s in %s", fileName, dir)
}
