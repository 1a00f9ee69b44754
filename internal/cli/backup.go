package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/urfave/cli/v3"

	"github.com/klauern/blocksync/internal/backup"
	"github.com/klauern/blocksync/internal/config"
	"github.com/klauern/blocksync/internal/logging"
	"github.com/klauern/blocksync/internal/ui"
	"github.com/klauern/blocksync/internal/ui/tui"
)

func backupCommand() *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "Manage snapshots of the document store",
		Commands: []*cli.Command{
			backupListCommand(),
			backupRestoreCommand(),
			backupPruneCommand(),
			backupVerifyCommand(),
			backupDeleteCommand(),
			backupStatsCommand(),
		},
	}
}

func backupListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List store snapshots, newest first",
		Description: `Lists the snapshots taken of the configured store.

   --since accepts a date or a phrase such as "yesterday", "last week" or
   "3 days ago".

   Examples:
     blocksync backup list
     blocksync backup list --since "last monday"
     blocksync backup list --interactive`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "since",
				Usage: "Only show snapshots created after this time",
			},
			&cli.BoolFlag{
				Name:    "all",
				Aliases: []string{"a"},
				Usage:   "Include snapshots of every store, not only the configured one",
			},
			&cli.BoolFlag{
				Name:    "interactive",
				Aliases: []string{"i"},
				Usage:   "Browse snapshots and restore, verify or delete one",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := configFrom(ctx, cmd)
			if err != nil {
				return err
			}
			mgr := managerFor(cfg)
			source := cfg.Store.Path
			if cmd.Bool("all") {
				source = ""
			}
			backups, err := mgr.List(source)
			if err != nil {
				return err
			}
			if since := cmd.String("since"); since != "" {
				t, err := parseSince(since, time.Now())
				if err != nil {
					return err
				}
				backups = createdAfter(backups, t)
			}

			if cmd.Bool("interactive") {
				return browseBackups(ctx, cmd, backups)
			}
			r, err := renderer(cfg, cmd.Bool("verbose"))
			if err != nil {
				return err
			}
			return r.Backups(stdout(cmd), backups)
		},
	}
}

// parseSince reads an absolute date or a natural-language phrase relative to now.
func parseSince(text string, now time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, text, time.Local); err == nil {
			return t, nil
		}
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(text, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: %w", text, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: not a recognizable date", text)
	}
	return r.Time, nil
}

func createdAfter(backups []backup.Metadata, t time.Time) []backup.Metadata {
	kept := backups[:0:0]
	for _, b := range backups {
		if !b.CreatedAt.Before(t) {
			kept = append(kept, b)
		}
	}
	return kept
}

func browseBackups(ctx context.Context, cmd *cli.Command, backups []backup.Metadata) error {
	out := stdout(cmd)
	if len(backups) == 0 {
		_, _ = fmt.Fprintln(out, "No backups found.")
		return nil
	}
	res, err := tui.RunBackupList(backups)
	if err != nil {
		return fmt.Errorf("backup browser failed: %w", err)
	}

	switch res.Action {
	case tui.ActionRestore:
		return restoreBackup(ctx, cmd, res.BackupID)
	case tui.ActionVerify:
		return verifyBackup(ctx, cmd, res.BackupID)
	case tui.ActionDelete:
		return deleteBackup(ctx, cmd, res.BackupID)
	default:
		return nil
	}
}

func backupRestoreCommand() *cli.Command {
	return &cli.Command{
		Name:      "restore",
		Aliases:   []string{"rollback"},
		Usage:     "Restore the store from a snapshot (newest when no ID is given)",
		ArgsUsage: "[backup-id]",
		Description: `Replaces the store file with a snapshot. The current store is snapshotted
   first, so a restore can itself be undone. The ledger is not changed; run
   'blocksync status' afterwards to see what differs.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "Do not ask for confirmation",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id := cmd.Args().First()
			if !cmd.Bool("yes") {
				what := "the newest snapshot"
				if id != "" {
					what = "backup " + id
				}
				ok, err := confirmAction(ctx, fmt.Sprintf("Replace the store with %s?", what))
				if err != nil {
					return err
				}
				if !ok {
					_, _ = fmt.Fprintln(stdout(cmd), "Restore canceled.")
					return nil
				}
			}
			return restoreBackup(ctx, cmd, id)
		},
	}
}

func restoreBackup(ctx context.Context, cmd *cli.Command, id string) error {
	s, err := openSession(ctx, cmd)
	if err != nil {
		return err
	}
	res, err := s.orch.Rollback(ctx, id)
	if err != nil {
		return err
	}
	return s.render.Rollback(s.out, res)
}

func backupPruneCommand() *cli.Command {
	return &cli.Command{
		Name:  "prune",
		Usage: "Delete the oldest snapshots beyond the retention count",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "keep",
				Usage: "Number of snapshots to keep (default from config)",
			},
			&cli.DurationFlag{
				Name:  "older-than",
				Usage: "Also delete snapshots older than this (e.g. 720h)",
			},
			&cli.BoolFlag{
				Name:    "dry-run",
				Aliases: []string{"n"},
				Usage:   "Show what would be deleted",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := configFrom(ctx, cmd)
			if err != nil {
				return err
			}
			keep := cfg.Backup.Keep
			if cmd.IsSet("keep") {
				keep = int(cmd.Int("keep"))
			}
			mgr := managerFor(cfg)
			removed, err := mgr.Cleanup(backup.CleanupOptions{
				MaxBackups:     keep,
				MaxAge:         cmd.Duration("older-than"),
				KeepAtLeastOne: true,
				SourcePath:     cfg.Store.Path,
				DryRun:         cmd.Bool("dry-run"),
			})
			if err != nil {
				return err
			}

			out := stdout(cmd)
			verb := "Deleted"
			if cmd.Bool("dry-run") {
				verb = "Would delete"
			}
			if len(removed) == 0 {
				_, _ = fmt.Fprintln(out, "No backups to prune.")
				return nil
			}
			for _, id := range removed {
				_, _ = fmt.Fprintf(out, "  - %s\n", id)
			}
			logging.WithContext(ctx).Info("backups pruned", logging.Count(len(removed)))
			_, _ = fmt.Fprintln(out, ui.StatusSuccess(fmt.Sprintf("%s %d backup(s)", verb, len(removed))))
			return nil
		},
	}
}

func backupVerifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "Check that a snapshot matches its recorded hash",
		ArgsUsage: "<backup-id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id, err := requireArg(cmd, "backup ID")
			if err != nil {
				return err
			}
			return verifyBackup(ctx, cmd, id)
		},
	}
}

func verifyBackup(ctx context.Context, cmd *cli.Command, id string) error {
	mgr, err := backupManager(ctx, cmd)
	if err != nil {
		return err
	}
	if err := mgr.Verify(id); err != nil {
		_, _ = fmt.Fprintln(stdout(cmd), ui.StatusError(fmt.Sprintf("Backup %s is corrupt", id)))
		return err
	}
	_, _ = fmt.Fprintln(stdout(cmd), ui.StatusSuccess(fmt.Sprintf("Backup %s is intact", id)))
	return nil
}

func backupDeleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete one snapshot",
		ArgsUsage: "<backup-id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id, err := requireArg(cmd, "backup ID")
			if err != nil {
				return err
			}
			return deleteBackup(ctx, cmd, id)
		},
	}
}

func deleteBackup(ctx context.Context, cmd *cli.Command, id string) error {
	mgr, err := backupManager(ctx, cmd)
	if err != nil {
		return err
	}
	if err := mgr.Delete(id); err != nil {
		return err
	}
	logging.WithContext(ctx).Info("backup deleted", logging.BackupID(id))
	_, _ = fmt.Fprintln(stdout(cmd), ui.StatusSuccess(fmt.Sprintf("Deleted backup %s", id)))
	return nil
}

func backupStatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show snapshot counts and sizes",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := configFrom(ctx, cmd)
			if err != nil {
				return err
			}
			r, err := renderer(cfg, cmd.Bool("verbose"))
			if err != nil {
				return err
			}
			stats, err := managerFor(cfg).Stats()
			if err != nil {
				return err
			}
			return r.BackupStats(stdout(cmd), stats)
		},
	}
}

func backupManager(ctx context.Context, cmd *cli.Command) (*backup.Manager, error) {
	cfg, err := configFrom(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return managerFor(cfg), nil
}

func managerFor(cfg *config.Config) *backup.Manager {
	return backup.NewManager(cfg.Backup.Location)
}
