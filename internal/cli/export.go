package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/klauern/blocksync/internal/archive"
	"github.com/klauern/blocksync/internal/logging"
	"github.com/klauern/blocksync/internal/progress"
	"github.com/klauern/blocksync/internal/sync"
	"github.com/klauern/blocksync/internal/ui"
)

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Write store entries back to files",
		ArgsUsage: "[Category/Name...]",
		Description: `Exports entries from the document store into a directory, one
   subdirectory per category unless --flat is given. Existing files are never
   replaced; a " (N)" suffix is added instead.

   With --archive the exported files are also bundled into a tar.gz archive
   with a JSON manifest. When --out is not given the files are exported into
   a temporary directory that is removed afterwards.

   Examples:
     blocksync export --out ./restored
     blocksync export --category Legal --flat
     blocksync export --archive blocks.tar.gz`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "out",
				Usage: "Output directory (default from config)",
			},
			&cli.StringFlag{
				Name:  "category",
				Usage: "Export only this category and its subcategories",
			},
			&cli.BoolFlag{
				Name:  "flat",
				Usage: "Write every entry directly into the output directory",
			},
			&cli.StringFlag{
				Name:  "archive",
				Usage: "Also bundle the exported files into this tar.gz archive",
			},
		},
		Action: runExport,
	}
}

func runExport(ctx context.Context, cmd *cli.Command) error {
	cfg, err := configFrom(ctx, cmd)
	if err != nil {
		return err
	}
	only, err := parseIdentities(cfg, cmd.Args().Slice())
	if err != nil {
		return err
	}

	archivePath := cmd.String("archive")
	outDir := cmd.String("out")
	switch {
	case outDir == "" && archivePath != "":
		tmp, err := os.MkdirTemp("", "blocksync-export-")
		if err != nil {
			return fmt.Errorf("failed to create staging directory: %w", err)
		}
		defer func() { _ = os.RemoveAll(tmp) }()
		outDir = tmp
	case outDir == "":
		outDir = cfg.Export.OutputDir
	}

	bar, observe := progress.ForBatch("Exporting", os.Stderr)
	s, err := openSession(ctx, cmd, sync.WithProgress(observe))
	if err != nil {
		return err
	}
	res, err := s.orch.Export(ctx, sync.ExportOptions{
		OutputDir:      outDir,
		CategoryPrefix: cmd.String("category"),
		Only:           only,
		Flat:           cmd.Bool("flat"),
	})
	_ = bar.Clear()
	if res != nil && archivePath == "" {
		if rerr := s.render.Export(s.out, res); rerr != nil && err == nil {
			err = rerr
		}
	}
	if err != nil {
		return err
	}

	if archivePath != "" {
		files := make([]archive.File, 0, len(res.Exported()))
		for _, it := range res.Exported() {
			files = append(files, archive.File{Identity: it.Identity, Path: it.Path})
		}
		m, err := archive.CreateFile(archivePath, files, archive.CreateOptions{
			BaseDir:  outDir,
			Store:    cfg.Store.Path,
			Category: cmd.String("category"),
		})
		if err != nil {
			if errors.Is(err, archive.ErrNoEntries) {
				_, _ = fmt.Fprintln(s.out, "No entries to archive.")
				return nil
			}
			return err
		}
		s.logger.Info("archive written", logging.Path(archivePath), logging.Count(m.EntryCount))
		_, _ = fmt.Fprintln(s.out, ui.StatusSuccess(fmt.Sprintf("Archived %d entr%s to %s",
			m.EntryCount, plural(m.EntryCount, "y", "ies"), archivePath)))
	}

	if failed := len(res.Failed()); failed > 0 {
		return fmt.Errorf("%d entr%s failed to export", failed, plural(failed, "y", "ies"))
	}
	return nil
}

func archiveCommand() *cli.Command {
	return &cli.Command{
		Name:  "archive",
		Usage: "Inspect and unpack export archives",
		Commands: []*cli.Command{
			{
				Name:      "list",
				Usage:     "Show the manifest of an archive",
				ArgsUsage: "<archive.tar.gz>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					path, err := requireArg(cmd, "archive path")
					if err != nil {
						return err
					}
					return showArchive(ctx, cmd, path, archive.ExtractOptions{DryRun: true})
				},
			},
			{
				Name:      "extract",
				Usage:     "Unpack the entry files of an archive",
				ArgsUsage: "<archive.tar.gz>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "to",
						Value: ".",
						Usage: "Directory to extract into",
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "List the archive without writing files",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					path, err := requireArg(cmd, "archive path")
					if err != nil {
						return err
					}
					return showArchive(ctx, cmd, path, archive.ExtractOptions{
						TargetDir: cmd.String("to"),
						DryRun:    cmd.Bool("dry-run"),
					})
				},
			},
		},
	}
}

func showArchive(ctx context.Context, cmd *cli.Command, path string, opts archive.ExtractOptions) error {
	cfg, err := configFrom(ctx, cmd)
	if err != nil {
		return err
	}
	r, err := renderer(cfg, cmd.Bool("verbose"))
	if err != nil {
		return err
	}
	m, err := archive.ExtractFile(path, opts)
	if err != nil {
		return err
	}
	if err := r.Archive(stdout(cmd), m); err != nil {
		return err
	}
	if opts.TargetDir != "" && !opts.DryRun {
		_, _ = fmt.Fprintln(stdout(cmd), ui.StatusSuccess(fmt.Sprintf("Extracted to %s", opts.TargetDir)))
	}
	return nil
}

// requireArg returns the first positional argument or a usage error naming it.
func requireArg(cmd *cli.Command, what string) (string, error) {
	if cmd.Args().Len() < 1 {
		return "", fmt.Errorf("%s is required", what)
	}
	return cmd.Args().First(), nil
}
