package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/klauern/blocksync/internal/ledger"
	"github.com/klauern/blocksync/internal/logging"
	"github.com/klauern/blocksync/internal/sync"
	"github.com/klauern/blocksync/internal/ui"
	"github.com/klauern/blocksync/internal/validation"
)

func removeCommand() *cli.Command {
	return &cli.Command{
		Name:      "remove",
		Aliases:   []string{"rm"},
		Usage:     "Forget entries in the ledger and optionally delete them from the store",
		ArgsUsage: "<Category/Name...>",
		Description: `Drops entries from the change ledger so the next import treats them as new.
   With --from-store the entries are also deleted from the document store,
   under a backup.

   Examples:
     blocksync remove General/Foo
     blocksync remove Legal/Bar --from-store`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "from-store",
				Usage: "Also delete the entries from the document store",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := configFrom(ctx, cmd)
			if err != nil {
				return err
			}
			ids, err := parseIdentities(cfg, cmd.Args().Slice())
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				return errors.New("at least one entry (Category/Name) is required")
			}
			fromStore := cmd.Bool("from-store")
			if fromStore {
				if err := preflight(cfg, validation.Options{RequireStore: true, RequireWritePermission: true}); err != nil {
					return err
				}
			}

			s, err := openSession(ctx, cmd)
			if err != nil {
				return err
			}
			res, err := s.orch.Remove(ctx, sync.RemoveOptions{Identities: ids, FromStore: fromStore})
			if res != nil {
				if rerr := s.render.Remove(s.out, res); rerr != nil && err == nil {
					err = rerr
				}
			}
			if err != nil {
				return err
			}
			if failed := len(res.Failed()); failed > 0 {
				return fmt.Errorf("%d entr%s could not be removed", failed, plural(failed, "y", "ies"))
			}
			return nil
		},
	}
}

func ledgerCommand() *cli.Command {
	return &cli.Command{
		Name:  "ledger",
		Usage: "Inspect and reset the change ledger",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recorded entries",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := configFrom(ctx, cmd)
					if err != nil {
						return err
					}
					r, err := renderer(cfg, cmd.Bool("verbose"))
					if err != nil {
						return err
					}
					l, _ := ledger.Load(cfg.Ledger.Path, cfg.Ledger.ManifestPath)
					return r.Ledger(stdout(cmd), l.Entries())
				},
			},
			{
				Name:  "purge",
				Usage: "Forget every recorded entry so the next import re-imports everything",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "yes",
						Aliases: []string{"y"},
						Usage:   "Do not ask for confirmation",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := configFrom(ctx, cmd)
					if err != nil {
						return err
					}
					l, _ := ledger.Load(cfg.Ledger.Path, cfg.Ledger.ManifestPath)
					if l.Len() == 0 {
						_, _ = fmt.Fprintln(stdout(cmd), "The ledger is empty.")
						return nil
					}
					if !cmd.Bool("yes") {
						ok, err := confirmAction(ctx, fmt.Sprintf("Forget all %d ledger entries?", l.Len()))
						if err != nil {
							return err
						}
						if !ok {
							_, _ = fmt.Fprintln(stdout(cmd), "Purge canceled.")
							return nil
						}
					}
					n := l.Purge()
					if err := l.Save(); err != nil {
						return fmt.Errorf("failed to save ledger: %w", err)
					}
					logging.WithContext(ctx).Info("ledger purged", logging.Count(n))
					_, _ = fmt.Fprintln(stdout(cmd), ui.StatusSuccess(fmt.Sprintf("Purged %d ledger entr%s", n, plural(n, "y", "ies"))))
					return nil
				},
			},
		},
	}
}
