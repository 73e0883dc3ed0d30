// Package run holds the CLI actions for pipeline runs, retries, and status.
package run

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/challenge-miner/internal/pipeline"
	"github.com/dtnitsch/challenge-miner/models"
	"github.com/dtnitsch/challenge-miner/pkg/db"
)

func newLogger(c *cli.Context) *slog.Logger {
	logLevel := slog.LevelInfo
	if c.Bool("quiet") {
		logLevel = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}

func open(c *cli.Context) (*models.Config, *db.DB, error) {
	cfg, err := models.LoadConfig(c.String("config"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return cfg, database, nil
}

// RunAction executes one full pipeline pass: fetch, extract, score.
func RunAction(c *cli.Context) error {
	logger := newLogger(c)
	cfg, database, err := open(c)
	if err != nil {
		return err
	}
	defer database.Close()

	p, err := pipeline.New(cfg, database, logger)
	if err != nil {
		logger.Error("failed to initialize pipeline", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := p.Run(ctx, pipeline.Options{
		SkipFetch: c.Bool("skip-fetch"),
		BatchSize: c.Int("batch-size"),
	})
	if summary != nil {
		fmt.Print(summary.String())
	}
	if err != nil && ctx.Err() != nil {
		fmt.Println("  (interrupted, re-run to resume)")
		return nil
	}
	return err
}

// RetryAction clears failed ledger rows for a stage so those documents
// become pending again, then runs the pipeline over stored documents. Fetch
// failures are re-downloaded first so their rows carry content to process.
func RetryAction(c *cli.Context) error {
	logger := newLogger(c)
	cfg, database, err := open(c)
	if err != nil {
		return err
	}
	defer database.Close()

	stage := models.Stage(c.String("stage"))
	switch stage {
	case models.StageFetch, models.StageExtract, models.StageScore:
	default:
		return fmt.Errorf("unknown stage %q (use: fetch, extract, or score)", stage)
	}

	ids, err := database.ClearFailedStates(stage)
	if err != nil {
		return fmt.Errorf("failed to clear failed states: %w", err)
	}
	if len(ids) == 0 {
		fmt.Printf("no failed documents for stage %s\n", stage)
		return nil
	}
	fmt.Printf("retrying %d failed documents for stage %s\n", len(ids), stage)

	p, err := pipeline.New(cfg, database, logger)
	if err != nil {
		logger.Error("failed to initialize pipeline", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if stage == models.StageFetch {
		stats, err := p.Refetch(ctx, ids)
		if err != nil {
			return fmt.Errorf("refetch failed: %w", err)
		}
		fmt.Printf("refetched: %d stored, %d duplicates, %d errors\n", stats.Stored, stats.Duplicates, stats.Errors)
	}

	summary, err := p.Run(ctx, pipeline.Options{SkipFetch: true, BatchSize: len(ids)})
	if summary != nil {
		fmt.Print(summary.String())
	}
	if err != nil && ctx.Err() != nil {
		fmt.Println("  (interrupted, re-run to resume)")
		return nil
	}
	return err
}

// StatusAction prints the per-stage ledger counts and any failure messages.
func StatusAction(c *cli.Context) error {
	_, database, err := open(c)
	if err != nil {
		return err
	}
	defer database.Close()

	counts, err := database.StageSummary()
	if err != nil {
		return fmt.Errorf("failed to read stage summary: %w", err)
	}
	if len(counts) == 0 {
		fmt.Println("No documents processed yet")
		return nil
	}

	fmt.Printf("%-10s %-10s %-8s %-8s\n", "Stage", "Completed", "Failed", "Skipped")
	fmt.Println(strings.Repeat("-", 40))
	for _, st := range counts {
		fmt.Printf("%-10s %-10d %-8d %-8d\n", st.Stage, st.Completed, st.Failed, st.Skipped)
	}

	failures, err := database.Failures()
	if err != nil {
		return fmt.Errorf("failed to read failures: %w", err)
	}
	if len(failures) > 0 {
		fmt.Printf("\nFailures (%d):\n", len(failures))
		fmt.Println(strings.Repeat("-", 40))
		for _, f := range failures {
			fmt.Printf("  doc %d [%s]: %s\n", f.DocID, f.Stage, f.ErrorMessage)
		}
		fmt.Printf("\nTip: use 'challenge-miner retry --stage=<stage>' to re-run failed documents\n")
	}

	challenges, err := database.ListChallenges()
	if err != nil {
		return fmt.Errorf("failed to list challenges: %w", err)
	}
	fmt.Printf("\nChallenges: %d\n", len(challenges))
	return nil
}

// ListAction prints stored challenges with their scores, best first.
func ListAction(c *cli.Context) error {
	cfg, database, err := open(c)
	if err != nil {
		return err
	}
	defer database.Close()

	challenges, err := database.ListChallenges()
	if err != nil {
		return fmt.Errorf("failed to list challenges: %w", err)
	}
	if len(challenges) == 0 {
		fmt.Println("No challenges stored yet")
		return nil
	}

	type row struct {
		ch      models.Challenge
		overall int
		scored  bool
	}
	rows := make([]row, 0, len(challenges))
	for _, ch := range challenges {
		score, found, err := database.ScoreFor(ch.ChallengeID)
		if err != nil {
			return fmt.Errorf("failed to load score: %w", err)
		}
		rows = append(rows, row{ch: ch, overall: score.OverallScore, scored: found})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].overall > rows[j].overall })

	minScore := cfg.Scoring.MinOverallScore
	if c.Bool("all") {
		minScore = 0
	}

	var shown int
	for _, r := range rows {
		if r.scored && r.overall < minScore {
			continue
		}
		shown++
		title := r.ch.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("%3d. [%3d] %s\n", shown, r.overall, title)
		fmt.Printf("     %s\n", r.ch.Statement)
		if r.ch.Geography != "" || len(r.ch.SDGGoals) > 0 {
			fmt.Printf("     geography=%s sdg=%v confidence=%.2f merged_from=%d\n",
				r.ch.Geography, r.ch.SDGGoals, r.ch.Confidence, r.ch.MergedFrom)
		}
	}
	if shown == 0 {
		fmt.Printf("No challenges at or above score %d (use --all to show everything)\n", minScore)
	}
	return nil
}
