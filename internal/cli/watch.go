package cli

import (
	"context"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/klauern/blocksync/internal/config"
	"github.com/klauern/blocksync/internal/logging"
	"github.com/klauern/blocksync/internal/validation"
	"github.com/klauern/blocksync/internal/watch"
)

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Watch the source tree and report or import changes as they happen",
		Description: `Watches the source root for file changes. Once the tree has been quiet for
   the debounce interval, the current status is printed, or with --import an
   import batch runs. Batches never overlap. Press Ctrl+C to stop.

   Examples:
     blocksync watch
     blocksync watch --import --yes --debounce 5s`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "import",
				Usage: "Import changes instead of only reporting them",
			},
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "Do not ask before adding new entries",
			},
			&cli.DurationFlag{
				Name:  "debounce",
				Usage: "How long the tree must stay quiet before a batch runs (default from config)",
			},
		},
		Action: runWatch,
	}
}

func runWatch(ctx context.Context, cmd *cli.Command) error {
	cfg, err := configFrom(ctx, cmd)
	if err != nil {
		return err
	}
	doImport := cmd.Bool("import") || cfg.Watch.Import
	if err := preflight(cfg, validation.Options{
		RequireStore:           doImport,
		RequireWritePermission: doImport,
	}); err != nil {
		return err
	}

	debounce := cfg.Watch.Debounce
	if cmd.IsSet("debounce") {
		debounce = cmd.Duration("debounce")
	}
	logger := logging.WithContext(ctx)
	w, err := watch.New(watch.Options{
		Root:     cfg.Source.Root,
		MaxDepth: cfg.Source.MaxDepth,
		Debounce: debounce,
		Ignore:   watchIgnore(cfg),
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handle := func(ctx context.Context, changed []string) error {
		logger.Info("source tree changed", logging.Count(len(changed)))
		if doImport {
			return runImport(ctx, cmd, importRequest{Yes: cmd.Bool("yes")})
		}
		return runStatus(ctx, cmd)
	}

	// Report once up front so the first output does not wait for a change.
	if err := handle(ctx, nil); err != nil {
		logger.Error("initial batch failed", logging.Err(err))
	}
	return w.Run(ctx, handle)
}

// watchIgnore drops events for blocksync's own files and for temporary
// files written by editors and the atomic writer.
func watchIgnore(cfg *config.Config) func(string) bool {
	own := map[string]struct{}{}
	for _, p := range []string{cfg.Store.Path, cfg.Ledger.Path, cfg.Ledger.ManifestPath} {
		if abs, err := filepath.Abs(p); err == nil {
			own[abs] = struct{}{}
		}
	}
	backups, _ := filepath.Abs(cfg.Backup.Location)

	return func(path string) bool {
		for _, suffix := range []string{"", "-journal", "-wal", "-shm"} {
			if _, ok := own[strings.TrimSuffix(path, suffix)]; ok {
				return true
			}
		}
		if backups != "" && (path == backups || strings.HasPrefix(path, backups+string(filepath.Separator))) {
			return true
		}
		base := filepath.Base(path)
		return strings.HasPrefix(base, ".blocksync-") ||
			strings.HasPrefix(base, "~$") ||
			strings.HasSuffix(base, "~") ||
			strings.HasSuffix(base, ".swp")
	}
}
