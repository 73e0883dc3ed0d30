package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/challenge-miner/internal/fetch"
	"github.com/dtnitsch/challenge-miner/internal/run"
	"github.com/dtnitsch/challenge-miner/internal/seed"
)

func main() {
	app := &cli.App{
		Name:  "challenge-miner",
		Usage: "mine, deduplicate, and score challenge statements from source feeds",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to YAML config file",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "log errors only",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "seed",
				Usage:     "load organizations and source feeds from a YAML seed file",
				ArgsUsage: "<file.yaml>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "file",
						Usage: "seed file path (alternative to positional argument)",
					},
				},
				Action: seed.SeedAction,
			},
			{
				Name:   "fetch",
				Usage:  "discover and store documents from active feeds",
				Action: fetch.FetchAction,
			},
			{
				Name:  "run",
				Usage: "run the full pipeline: fetch, extract, score",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "skip-fetch",
						Usage: "process already-stored documents only",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "max documents to process this run",
					},
				},
				Action: run.RunAction,
			},
			{
				Name:  "retry",
				Usage: "re-run documents whose stage previously failed",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "stage",
						Value: "extract",
						Usage: "stage to retry: fetch, extract, or score",
					},
				},
				Action: run.RetryAction,
			},
			{
				Name:   "status",
				Usage:  "show per-stage progress and failure messages",
				Action: run.StatusAction,
			},
			{
				Name:  "list",
				Usage: "show stored challenges with scores, best first",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "all",
						Usage: "include challenges below the score threshold",
					},
				},
				Action: run.ListAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
