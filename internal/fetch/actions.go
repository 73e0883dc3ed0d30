package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/challenge-miner/models"
	"github.com/dtnitsch/challenge-miner/pkg/db"
	"github.com/dtnitsch/challenge-miner/pkg/fetcher"
	"github.com/dtnitsch/challenge-miner/pkg/langdetect"
	"github.com/dtnitsch/challenge-miner/pkg/lexicon"
)

// FetchAction runs the fetch phase on its own: discover and store documents
// from all active feeds without extracting or scoring.
func FetchAction(c *cli.Context) error {
	logLevel := slog.LevelInfo
	if c.Bool("quiet") {
		logLevel = slog.LevelError
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	cfg, err := models.LoadConfig(c.String("config"))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(2)
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	f, err := fetcher.New(cfg.Fetcher, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize fetcher: %w", err)
	}

	registry := lexicon.NewRegistry()
	if cfg.Lexicon != "" {
		if err := registry.LoadFile(cfg.Lexicon); err != nil {
			return fmt.Errorf("failed to load lexicon file: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats, err := Run(ctx, f, langdetect.New(registry.Languages()), database, logger)
	if err != nil {
		return err
	}

	fmt.Printf("fetched %d feeds\n", stats.Feeds)
	fmt.Printf("  discovered: %d URLs\n", stats.Discovered)
	fmt.Printf("  stored:     %d documents\n", stats.Stored)
	fmt.Printf("  duplicates: %d\n", stats.Duplicates)
	fmt.Printf("  errors:     %d\n", stats.Errors)
	if ctx.Err() != nil {
		fmt.Println("  (interrupted)")
	}
	return nil
}
