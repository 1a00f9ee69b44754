package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/klauern/blocksync/internal/config"
	"github.com/klauern/blocksync/internal/ui"
)

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Show and create the configuration file",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Print the effective configuration",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "toml",
						Usage: "Print as TOML instead of YAML",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := configFrom(ctx, cmd)
					if err != nil {
						return err
					}
					data, err := cfg.Marshal(cmd.Bool("toml"))
					if err != nil {
						return err
					}
					_, err = stdout(cmd).Write(data)
					return err
				},
			},
			{
				Name:  "path",
				Usage: "Print the configuration file path",
				Action: func(_ context.Context, cmd *cli.Command) error {
					path := configPath(cmd)
					note := ""
					if !fileExists(path) {
						note = " (not created yet)"
					}
					_, _ = fmt.Fprintf(stdout(cmd), "%s%s\n", path, note)
					return nil
				},
			},
			{
				Name:  "init",
				Usage: "Write a configuration file with the default settings",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Overwrite an existing configuration file",
					},
				},
				Action: func(_ context.Context, cmd *cli.Command) error {
					path := configPath(cmd)
					if fileExists(path) && !cmd.Bool("force") {
						return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
					}
					if err := config.Default().SaveToPath(path); err != nil {
						return err
					}
					_, _ = fmt.Fprintln(stdout(cmd), ui.StatusSuccess("Wrote "+path))
					return nil
				},
			},
		},
	}
}

// configPath is the --config file when given, the default location otherwise.
func configPath(cmd *cli.Command) string {
	if p := cmd.String("config"); p != "" {
		return p
	}
	return config.FilePath()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
