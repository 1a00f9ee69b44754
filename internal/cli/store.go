package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/klauern/blocksync/internal/logging"
	"github.com/klauern/blocksync/internal/store"
	"github.com/klauern/blocksync/internal/store/sqlite"
	"github.com/klauern/blocksync/internal/ui"
)

func storeCommand() *cli.Command {
	return &cli.Command{
		Name:  "store",
		Usage: "Create and inspect the document store",
		Commands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Create an empty store at the configured path",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := configFrom(ctx, cmd)
					if err != nil {
						return err
					}
					if err := sqlite.Create(ctx, cfg.Store.Path); err != nil {
						return err
					}
					logging.WithContext(ctx).Info("store created", logging.Path(cfg.Store.Path))
					_, _ = fmt.Fprintln(stdout(cmd), ui.StatusSuccess("Created store "+cfg.Store.Path))
					return nil
				},
			},
			{
				Name:  "list",
				Usage: "List the entries held by the store",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "category",
						Usage: "Only list this category and its subcategories",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := configFrom(ctx, cmd)
					if err != nil {
						return err
					}
					r, err := renderer(cfg, cmd.Bool("verbose"))
					if err != nil {
						return err
					}
					entries, err := listStore(ctx, sqlite.New(), cfg.Store.Path, cmd.String("category"))
					if err != nil {
						return err
					}
					return r.Store(stdout(cmd), entries)
				},
			},
		},
	}
}

// listStore opens the store read-only for the duration of one List call.
func listStore(ctx context.Context, s store.DocumentStore, path, category string) ([]store.Entry, error) {
	if err := s.Open(ctx, path); err != nil {
		return nil, err
	}
	defer func() { _ = s.Close() }()
	return s.List(ctx, category)
}
