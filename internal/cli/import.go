package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/klauern/blocksync/internal/logging"
	"github.com/klauern/blocksync/internal/model"
	"github.com/klauern/blocksync/internal/progress"
	"github.com/klauern/blocksync/internal/sync"
	"github.com/klauern/blocksync/internal/validation"
)

func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import new and modified entries into the document store",
		ArgsUsage: "[Category/Name...]",
		Description: `Scans the source tree, compares it with the ledger and adds every new or
   modified entry to the store. The store is backed up first and restored if
   saving fails.

   Entries are named Category/Name. A bare name refers to the root category.

   Examples:
     blocksync import
     blocksync import --dry-run
     blocksync import --all --yes
     blocksync import Legal/Bar General/Foo`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Import every valid entry, not only new and modified ones",
			},
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "Do not ask before adding new entries",
			},
			&cli.BoolFlag{
				Name:    "dry-run",
				Aliases: []string{"n"},
				Usage:   "Show what would be imported without changing anything",
			},
			&cli.StringSliceFlag{
				Name:  "only",
				Usage: "Limit the import to these entries (Category/Name, repeatable)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := configFrom(ctx, cmd)
			if err != nil {
				return err
			}
			only, err := parseIdentities(cfg, append(cmd.StringSlice("only"), cmd.Args().Slice()...))
			if err != nil {
				return err
			}
			return runImport(ctx, cmd, importRequest{
				Only:   only,
				All:    cmd.Bool("all"),
				Yes:    cmd.Bool("yes"),
				DryRun: cmd.Bool("dry-run"),
			})
		},
	}
}

// importRequest is what the import, status and watch commands ask of an import batch.
type importRequest struct {
	Only   []model.Identity
	All    bool
	Yes    bool
	DryRun bool
}

func runImport(ctx context.Context, cmd *cli.Command, req importRequest) error {
	cfg, err := configFrom(ctx, cmd)
	if err != nil {
		return err
	}
	if err := preflight(cfg, validation.Options{
		RequireStore:           !req.DryRun,
		RequireWritePermission: !req.DryRun,
	}); err != nil {
		return err
	}

	bar, observe := progress.ForBatch("Importing", os.Stderr)
	s, err := openSession(ctx, cmd,
		sync.WithConfirmer(newConfirmer(req.Yes, os.Stdin, os.Stderr)),
		sync.WithProgress(observe),
	)
	if err != nil {
		return err
	}

	mode := cfg.ImportMode()
	if req.All {
		mode = sync.ModeAll
	}
	res, err := s.orch.Import(ctx, sync.ImportOptions{
		Mode:    mode,
		Only:    req.Only,
		Confirm: cfg.Import.ConfirmNew && !req.Yes,
		DryRun:  req.DryRun,
	})
	_ = bar.Clear()
	if res != nil {
		if rerr := s.render.Import(s.out, res); rerr != nil && err == nil {
			err = rerr
		}
	}
	if err != nil {
		return err
	}

	if failed := len(res.Failed()); failed > 0 {
		s.logger.Warn("import finished with failures", logging.Count(failed))
		return fmt.Errorf("%d entr%s failed to import", failed, plural(failed, "y", "ies"))
	}
	return nil
}
