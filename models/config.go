package models

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv  = "CHALLENGE_MINER_CONFIG"
	dbPathEnv      = "CHALLENGE_MINER_DB"
	oracleKeyEnv   = "ORACLE_API_KEY"
	oracleURLEnv   = "ORACLE_ENDPOINT"
	oracleModelEnv = "ORACLE_MODEL"
	workersEnv     = "MAX_WORKERS"
)

// Duration wraps time.Duration so YAML values like "30s" or "24h" parse.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds runtime configuration for all pipeline stages. Values come
// from a YAML file with environment overrides on top of built-in defaults.
type Config struct {
	DBPath  string        `yaml:"dbPath"`
	Oracle  OracleConfig  `yaml:"oracle"`
	Chunker ChunkerConfig `yaml:"chunker"`
	Fetcher FetcherConfig `yaml:"fetcher"`
	Scoring ScoringConfig `yaml:"scoring"`
	Workers int           `yaml:"workers"`
	Lexicon string        `yaml:"lexiconPath"` // optional extra lexicon YAML
}

// OracleConfig describes how to reach the extraction oracle.
type OracleConfig struct {
	Endpoint    string   `yaml:"endpoint"`
	Model       string   `yaml:"model"`
	APIKey      string   `yaml:"apiKey"`
	Temperature float64  `yaml:"temperature"`
	Timeout     Duration `yaml:"timeout"`
	MaxRetries  int      `yaml:"maxRetries"`
}

// ChunkerConfig controls text segmentation.
type ChunkerConfig struct {
	Size     int     `yaml:"size"`     // target chunk size in runes
	Overlap  float64 `yaml:"overlap"`  // fraction of size shared with the neighbor
	Lookback int     `yaml:"lookback"` // boundary search window in runes
}

// FetcherConfig controls document fetching and depth-1 discovery.
type FetcherConfig struct {
	Timeout     Duration `yaml:"timeout"`
	UserAgent   string   `yaml:"userAgent"`
	MaxPerFeed  int      `yaml:"maxPerFeed"`
	CacheDir    string   `yaml:"cacheDir"`
	CacheMaxAge Duration `yaml:"cacheMaxAge"`
}

// ScoringConfig holds filter thresholds and the recency horizon.
// Sub-score weights are fixed; see pkg/scorer.
type ScoringConfig struct {
	MinOverallScore    int      `yaml:"minOverallScore"`
	MinConfidence      float64  `yaml:"minConfidence"`
	MaxSolutionLeakage int      `yaml:"maxSolutionLeakage"`
	MaxDocumentAge     Duration `yaml:"maxDocumentAge"`
	MaxEvidenceQuotes  int      `yaml:"maxEvidenceQuotes"`
}

// LoadConfig reads YAML configuration (if present) and applies environment
// overrides. A missing file is not an error; defaults apply.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.normalize()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(dbPathEnv); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv(oracleKeyEnv); v != "" {
		c.Oracle.APIKey = v
	}
	if v := os.Getenv(oracleURLEnv); v != "" {
		c.Oracle.Endpoint = v
	}
	if v := os.Getenv(oracleModelEnv); v != "" {
		c.Oracle.Model = v
	}
	if v := os.Getenv(workersEnv); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Workers = n
		}
	}
}

func (c *Config) normalize() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Chunker.Size <= 0 {
		c.Chunker.Size = 1000
	}
	if c.Chunker.Overlap <= 0 || c.Chunker.Overlap >= 1 {
		c.Chunker.Overlap = 0.15
	}
	if c.Chunker.Lookback <= 0 {
		c.Chunker.Lookback = 150
	}
	if c.Oracle.Timeout <= 0 {
		c.Oracle.Timeout = Duration(30 * time.Second)
	}
	if c.Oracle.MaxRetries <= 0 {
		c.Oracle.MaxRetries = 3
	}
	if c.Scoring.MaxDocumentAge <= 0 {
		c.Scoring.MaxDocumentAge = Duration(365 * 24 * time.Hour)
	}
	if c.Scoring.MaxEvidenceQuotes <= 0 {
		c.Scoring.MaxEvidenceQuotes = 2
	}
}

func defaultConfig() *Config {
	return &Config{
		DBPath: "challenge-miner.db",
		Oracle: OracleConfig{
			Endpoint:    "https://api.openai.com/v1/chat/completions",
			Model:       "gpt-4.1-mini",
			Temperature: 0.3,
			Timeout:     Duration(30 * time.Second),
			MaxRetries:  3,
		},
		Chunker: ChunkerConfig{Size: 1000, Overlap: 0.15, Lookback: 150},
		Fetcher: FetcherConfig{
			Timeout:     Duration(30 * time.Second),
			UserAgent:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
			MaxPerFeed:  10,
			CacheDir:    "cache",
			CacheMaxAge: Duration(24 * time.Hour),
		},
		Scoring: ScoringConfig{
			MinOverallScore:    40,
			MinConfidence:      0.50,
			MaxSolutionLeakage: 70,
			MaxDocumentAge:     Duration(365 * 24 * time.Hour),
			MaxEvidenceQuotes:  2,
		},
		Workers: 4,
	}
}
