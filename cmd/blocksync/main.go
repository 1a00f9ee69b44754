package main

import (
	"context"
	"os"

	"github.com/klauern/blocksync/internal/cli"
)

func main() {
	if err := cli.Run(context.Background(), os.Args); err != nil {
		cli.ReportError(os.Stderr, err)
		os.Exit(1)
	}
}
