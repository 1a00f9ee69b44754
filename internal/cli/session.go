package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/klauern/blocksync/internal/backup"
	"github.com/klauern/blocksync/internal/config"
	"github.com/klauern/blocksync/internal/ledger"
	"github.com/klauern/blocksync/internal/logging"
	"github.com/klauern/blocksync/internal/model"
	"github.com/klauern/blocksync/internal/report"
	"github.com/klauern/blocksync/internal/store/sqlite"
	"github.com/klauern/blocksync/internal/sync"
	"github.com/klauern/blocksync/internal/ui"
	"github.com/klauern/blocksync/internal/validation"
)

// session bundles what a command needs to run a batch.
type session struct {
	cfg     *config.Config
	ledger  *ledger.Ledger
	backups *backup.Manager
	orch    *sync.Orchestrator
	render  *report.Renderer
	out     io.Writer
	logger  *slog.Logger
}

// openSession loads the ledger and wires an orchestrator over the SQLite store.
func openSession(ctx context.Context, cmd *cli.Command, opts ...sync.Option) (*session, error) {
	cfg, err := configFrom(ctx, cmd)
	if err != nil {
		return nil, err
	}
	r, err := renderer(cfg, cmd.Bool("verbose"))
	if err != nil {
		return nil, err
	}
	logger := logging.WithContext(ctx)

	l, rep := ledger.Load(cfg.Ledger.Path, cfg.Ledger.ManifestPath)
	logger.Debug("ledger loaded",
		logging.Path(cfg.Ledger.Path),
		slog.Int("entries", rep.LedgerEntries),
		slog.Int("manifest_paths", rep.ManifestPaths),
	)

	b := backup.NewManager(cfg.Backup.Location)
	all := append([]sync.Option{sync.WithLogger(logger)}, opts...)
	o, err := sync.New(cfg.SyncConfig(), l, sqlite.New(), b, all...)
	if err != nil {
		return nil, err
	}

	return &session{
		cfg:     cfg,
		ledger:  l,
		backups: b,
		orch:    o,
		render:  r,
		out:     stdout(cmd),
		logger:  logger,
	}, nil
}

// settings returns the validation view of the configuration.
func settings(cfg *config.Config) validation.Settings {
	return validation.Settings{
		Root:         cfg.Source.Root,
		MaxDepth:     cfg.Source.MaxDepth,
		Rules:        cfg.Rules(),
		StorePath:    cfg.Store.Path,
		LedgerPath:   cfg.Ledger.Path,
		ManifestPath: cfg.Ledger.ManifestPath,
		BackupDir:    cfg.Backup.Location,
	}
}

// preflight validates the configuration before a mutating batch and prints
// any warnings to stderr.
func preflight(cfg *config.Config, opts validation.Options) error {
	res, err := validation.ValidateSettings(settings(cfg), opts)
	if err != nil {
		return err
	}
	for _, w := range res.Warnings {
		_, _ = fmt.Fprintln(os.Stderr, ui.StatusWarning(w))
	}
	return nil
}

// parseIdentities parses "Category/Name" arguments. A bare name lands in
// the root category; a trailing extension is tolerated. Spaces are
// normalized the way scanned paths are.
func parseIdentities(cfg *config.Config, args []string) ([]model.Identity, error) {
	rules := cfg.Rules()
	ids := make([]model.Identity, 0, len(args))
	for _, arg := range args {
		for _, part := range strings.Split(arg, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if strings.EqualFold(filepath.Ext(part), rules.Extension) {
				part = part[:len(part)-len(rules.Extension)]
			}
			id, err := model.ParseIdentity(part, rules.RootCategory)
			if err == nil {
				id, err = rules.NormalizeIdentity(id)
			}
			if err != nil {
				return nil, fmt.Errorf("invalid entry %q: %w", part, err)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}
