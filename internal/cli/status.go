package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/klauern/blocksync/internal/logging"
	"github.com/klauern/blocksync/internal/scanner"
	"github.com/klauern/blocksync/internal/ui/tui"
)

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show which entries are new, modified, missing or removed",
		Description: `Scans the source tree and compares it with the ledger without changing anything.

   With --interactive, pending entries are shown in a picker and the chosen
   ones are imported.

   Examples:
     blocksync status
     blocksync status --verbose
     blocksync status --format json
     blocksync status --interactive`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "interactive",
				Aliases: []string{"i"},
				Usage:   "Pick pending entries to import",
			},
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "Import the picked entries without a confirmation prompt",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runStatus(ctx, cmd)
		},
	}
}

func runStatus(ctx context.Context, cmd *cli.Command) error {
	s, err := openSession(ctx, cmd)
	if err != nil {
		return err
	}
	plan, err := s.orch.Status(ctx)
	if err != nil {
		return err
	}
	if !cmd.Bool("interactive") {
		return s.render.Status(s.out, plan)
	}

	pending := plan.Diff.Pending()
	if len(pending) == 0 {
		_, _ = fmt.Fprintln(s.out, "Everything is up to date.")
		return nil
	}
	res, err := tui.RunStatusList(pending)
	if err != nil {
		return fmt.Errorf("status picker failed: %w", err)
	}
	if res.Action != tui.StatusActionImport || len(res.Selected) == 0 {
		_, _ = fmt.Fprintln(s.out, "No entries imported.")
		return nil
	}
	s.logger.Info("importing picked entries", logging.Count(len(res.Selected)))
	return runImport(ctx, cmd, importRequest{Only: res.Selected, Yes: cmd.Bool("yes")})
}

func scanCommand() *cli.Command {
	return &cli.Command{
		Name:  "scan",
		Usage: "List the valid, invalid and ignored files under the source root",
		Description: `Walks the source tree and classifies every file against the naming rules.
   The ledger and store are not read.

   Examples:
     blocksync scan
     blocksync scan --verbose        # include ignored files
     blocksync scan --root ./blocks --format yaml`,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := configFrom(ctx, cmd)
			if err != nil {
				return err
			}
			r, err := renderer(cfg, cmd.Bool("verbose"))
			if err != nil {
				return err
			}
			sc := scanner.New(cfg.Rules()).WithLogger(logging.WithContext(ctx))
			depth := cfg.Source.MaxDepth
			if depth == 0 {
				depth = scanner.DefaultMaxDepth
			}
			res, err := sc.Scan(ctx, cfg.Source.Root, depth)
			if err != nil {
				return err
			}
			return r.Scan(stdout(cmd), res)
		},
	}
}
