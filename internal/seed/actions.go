// Package seed loads organizations and source feeds from a YAML seed file.
package seed

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/dtnitsch/challenge-miner/internal/common"
	"github.com/dtnitsch/challenge-miner/models"
	"github.com/dtnitsch/challenge-miner/pkg/db"
)

// File is the seed file shape: organizations first, feeds referencing them
// by name.
type File struct {
	Organizations []Org  `yaml:"organizations"`
	SourceFeeds   []Feed `yaml:"source_feeds"`
}

type Org struct {
	Name    string `yaml:"org_name"`
	Type    string `yaml:"org_type"`
	Country string `yaml:"org_country"`
	Website string `yaml:"org_website"`
}

type Feed struct {
	OrgName     string `yaml:"org_name"`
	FeedName    string `yaml:"feed_name"`
	FeedType    string `yaml:"feed_type"`
	BaseURL     string `yaml:"base_url"`
	CrawlPolicy string `yaml:"crawl_policy"`
	Active      *bool  `yaml:"active"`
}

// SeedAction loads a seed file into the org and source_feed tables.
// Re-seeding is safe: organizations dedupe by name.
func SeedAction(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		path = c.String("file")
	}
	if path == "" {
		return fmt.Errorf("seed file required\nUsage: challenge-miner seed <file.yaml>")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}
	var file File
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("failed to parse seed file: %w", err)
	}
	if len(file.Organizations) == 0 {
		return fmt.Errorf("seed file has no organizations")
	}

	cfg, err := models.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	orgIDs := make(map[string]int64, len(file.Organizations))
	for _, org := range file.Organizations {
		if org.Name == "" {
			return fmt.Errorf("organization with empty org_name in seed file")
		}
		id, err := database.InsertOrg(models.Org{
			Name:    org.Name,
			Type:    org.Type,
			Country: org.Country,
			Website: org.Website,
		})
		if err != nil {
			return fmt.Errorf("failed to insert org %q: %w", org.Name, err)
		}
		orgIDs[org.Name] = id
	}
	fmt.Printf("seeded %d organizations\n", len(orgIDs))

	var feedCount, skipped int
	for _, feed := range file.SourceFeeds {
		orgID, ok := orgIDs[feed.OrgName]
		if !ok {
			fmt.Printf("  skipping feed %q: unknown org %q\n", feed.FeedName, feed.OrgName)
			skipped++
			continue
		}

		valid, invalid := common.SanitizeAndValidateURLs([]string{feed.BaseURL})
		if len(invalid) > 0 {
			fmt.Printf("  skipping feed %q: invalid base URL %q\n", feed.FeedName, feed.BaseURL)
			skipped++
			continue
		}

		active := true
		if feed.Active != nil {
			active = *feed.Active
		}
		if _, err := database.InsertFeed(models.SourceFeed{
			OrgID:       orgID,
			Name:        feed.FeedName,
			Type:        feed.FeedType,
			BaseURL:     valid[0],
			CrawlPolicy: feed.CrawlPolicy,
			Active:      active,
		}); err != nil {
			return fmt.Errorf("failed to insert feed %q: %w", feed.FeedName, err)
		}
		feedCount++
	}

	fmt.Printf("seeded %d source feeds", feedCount)
	if skipped > 0 {
		fmt.Printf(" (%d skipped)", skipped)
	}
	fmt.Println()
	return nil
}
