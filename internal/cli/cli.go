// Package cli provides the command-line interface for blocksync.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/klauern/blocksync/internal/config"
	"github.com/klauern/blocksync/internal/logging"
	"github.com/klauern/blocksync/internal/report"
	"github.com/klauern/blocksync/internal/sync"
	"github.com/klauern/blocksync/internal/ui"
)

var (
	// Version is the current version of the application.
	Version = "dev"
	// Commit is the git commit hash.
	Commit = "unknown"
	// BuildDate is the date and time of the build.
	BuildDate = "unknown"
)

// Run executes the CLI application with the given context and arguments.
func Run(ctx context.Context, args []string) error {
	app := &cli.Command{
		Name:      "blocksync",
		Usage:     "Keep a document store in step with a directory of building blocks",
		Version:   Version,
		Writer:    os.Stdout,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the config file (YAML or TOML)",
				Sources: cli.EnvVars("BLOCKSYNC_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "root",
				Usage: "Override the source root directory",
			},
			&cli.StringFlag{
				Name:  "store",
				Usage: "Override the document store path",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"o"},
				Usage:   "Output format: table, json, yaml, markdown",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable verbose output (info level logging)",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug output (debug level logging, implies verbose)",
			},
			&cli.BoolFlag{
				Name:  "log-json",
				Usage: "Write logs as JSON",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable colored output",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return ctx, err
			}
			configureColors(cmd, cfg)
			logger := configureLogging(cmd, cfg)
			ctx = logging.NewContext(ctx, logger)
			return withConfig(ctx, cfg), nil
		},
		Commands: []*cli.Command{
			versionCommand(),
			configCommand(),
			statusCommand(),
			scanCommand(),
			importCommand(),
			exportCommand(),
			removeCommand(),
			ledgerCommand(),
			backupCommand(),
			storeCommand(),
			watchCommand(),
			archiveCommand(),
		},
	}
	return app.Run(ctx, args)
}

// ReportError writes err for the user. A failed rollback is printed as an
// alert since the store may be left in an unknown state.
func ReportError(w io.Writer, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, sync.ErrRollbackFailed) {
		_, _ = fmt.Fprintln(w, ui.StatusAlert("ROLLBACK FAILED: the document store may be inconsistent"))
		_, _ = fmt.Fprintln(w, ui.StatusAlert("Restore it with 'blocksync backup restore' before the next import"))
	}
	_, _ = fmt.Fprintf(w, "Error: %v\n", err)
}

type configKey struct{}

func withConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// configFrom returns the configuration loaded for this invocation.
func configFrom(ctx context.Context, cmd *cli.Command) (*config.Config, error) {
	if cfg, ok := ctx.Value(configKey{}).(*config.Config); ok && cfg != nil {
		return cfg, nil
	}
	return loadConfig(cmd)
}

// loadConfig loads the config file and applies command-line overrides.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	return resolveConfig(cmd.String("config"), overrides{
		Root:   cmd.String("root"),
		Store:  cmd.String("store"),
		Format: cmd.String("format"),
	})
}

// overrides are the command-line values that win over the config file.
type overrides struct {
	Root   string
	Store  string
	Format string
}

// resolveConfig loads the config at path, or the default location when path
// is empty, and expands relative paths. An explicit path anchors relative
// paths at its directory; otherwise they resolve against the working directory.
func resolveConfig(path string, o overrides) (*config.Config, error) {
	explicit := path != ""
	if !explicit {
		path = config.FilePath()
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if o.Root != "" {
		cfg.Source.Root = o.Root
	}
	if o.Store != "" {
		cfg.Store.Path = o.Store
	}
	if o.Format != "" {
		cfg.Output.Format = o.Format
	}
	if cfg.Source.Root == "" {
		cfg.Source.Root = "."
	}

	base, err := os.Getwd()
	if err != nil {
		base = "."
	}
	if explicit {
		if abs, aerr := filepath.Abs(filepath.Dir(path)); aerr == nil {
			base = abs
		}
	}
	cfg.Expand(base)
	return cfg, nil
}

// configureColors sets up color output based on CLI flags and config.
func configureColors(cmd *cli.Command, cfg *config.Config) {
	switch {
	case cmd.Bool("no-color") || cfg.Output.Color == "never":
		ui.DisableColors()
	case cfg.Output.Color == "always":
		ui.EnableColors()
	}
}

// configureLogging sets up the logging level based on CLI flags and config.
func configureLogging(cmd *cli.Command, cfg *config.Config) *slog.Logger {
	opts := logging.DefaultOptions()
	opts.Level = cfg.LogLevel()
	opts.JSON = cfg.Logging.JSON || cmd.Bool("log-json")
	opts.File = cfg.LogFile()

	switch {
	case cmd.Bool("debug"):
		opts.Level = slog.LevelDebug
		opts.File.Level = slog.LevelDebug
		opts.AddSource = true
	case cmd.Bool("verbose"):
		opts.Level = min(opts.Level, slog.LevelInfo)
	default:
		// The terminal stays quiet unless asked; the log file keeps the configured level.
		opts.Level = max(opts.Level, slog.LevelWarn)
	}

	logger := logging.New(opts)
	logging.SetDefault(logger)

	logging.Debug("logging configured", slog.String("level", opts.Level.String()))
	return logger
}

// renderer returns a report renderer for the configured output format.
func renderer(cfg *config.Config, verbose bool) (*report.Renderer, error) {
	format, err := report.ParseFormat(cfg.Output.Format)
	if err != nil {
		return nil, err
	}
	return report.New(report.Options{Format: format, Pretty: true, Verbose: verbose}), nil
}

func stdout(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}
