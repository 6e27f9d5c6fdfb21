// Package config loads the crawler configuration from a YAML file, a .env
// file, H2H_* environment variables and command line flags, in increasing
// order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"mxshs/h2hcrawler/src/domain"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Scraper  Scraper  `mapstructure:"scraper"`
	Pool     Pool     `mapstructure:"pool"`
	Sink     Sink     `mapstructure:"sink"`
	Ranges   []Range  `mapstructure:"ranges"`
	Logging  Logging  `mapstructure:"logging"`
	Status   Status   `mapstructure:"status"`
	Report   Report   `mapstructure:"report"`
	Telegram Telegram `mapstructure:"telegram"`
}

// Scraper holds navigation settings for the match pages
type Scraper struct {
	BaseURL            string        `mapstructure:"base_url"`
	ListURL            string        `mapstructure:"list_url"`
	Timeout            time.Duration `mapstructure:"timeout"`
	SelectTimeout      time.Duration `mapstructure:"select_timeout"`
	RivalSelectTimeout time.Duration `mapstructure:"rival_select_timeout"`
	SelectDelay        time.Duration `mapstructure:"select_delay"`
	SelectRetries      int           `mapstructure:"select_retries"`
	HistoryWindow      string        `mapstructure:"history_window"`
	Headless           bool          `mapstructure:"headless"`
	UserAgent          string        `mapstructure:"user_agent"`
}

// Pool holds worker pool settings
type Pool struct {
	Workers   int           `mapstructure:"workers"`
	JitterMin time.Duration `mapstructure:"jitter_min"`
	JitterMax time.Duration `mapstructure:"jitter_max"`
}

// Sink holds the output table settings
type Sink struct {
	Backend         string        `mapstructure:"backend"` // sheets, postgres, sqlite or none
	ChunkSize       int           `mapstructure:"chunk_size"`
	APIPause        time.Duration `mapstructure:"api_pause"`
	RetryCooldown   time.Duration `mapstructure:"retry_cooldown"`
	NegativeSheet   string        `mapstructure:"negative_sheet"`
	PositiveSheet   string        `mapstructure:"positive_sheet"`
	HeadroomRows    int           `mapstructure:"headroom_rows"`
	SpreadsheetID   string        `mapstructure:"spreadsheet_id"`
	CredentialsFile string        `mapstructure:"credentials_file"`
	DSN             string        `mapstructure:"dsn"`
}

// Range is a contiguous span of match ids processed and flushed together
type Range struct {
	StartID int64  `mapstructure:"start_id"`
	EndID   int64  `mapstructure:"end_id"`
	Label   string `mapstructure:"label"`
}

// IDs lists the range from StartID down to EndID inclusive.
func (r Range) IDs() []domain.MatchID {
	if r.StartID < r.EndID {
		return nil
	}
	ids := make([]domain.MatchID, 0, r.StartID-r.EndID+1)
	for id := r.StartID; id >= r.EndID; id-- {
		ids = append(ids, domain.MatchID(id))
	}
	return ids
}

// Logging holds logging configuration
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Status holds the status endpoint configuration. An empty Addr disables it.
type Status struct {
	Addr string `mapstructure:"addr"`
}

// Report holds the failure report configuration
type Report struct {
	Path string `mapstructure:"path"`
}

// Telegram holds the end-of-run notification configuration
type Telegram struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// flagKeys maps command line flags onto config keys.
var flagKeys = map[string]string{
	"workers":     "pool.workers",
	"sink":        "sink.backend",
	"log-level":   "logging.level",
	"log-format":  "logging.format",
	"status-addr": "status.addr",
	"report":      "report.path",
	"headless":    "scraper.headless",
}

// Load reads configuration from file, .env and environment variables, then
// applies any flags in flags that were set on the command line. An empty
// path skips the file.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	// .env is optional; variables already set in the environment win.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("H2H")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("scraper.base_url", "https://live18.nowgoal25.com")
	v.SetDefault("scraper.list_url", "https://live20.nowgoal25.com/")
	v.SetDefault("scraper.timeout", "15s")
	v.SetDefault("scraper.select_timeout", "3s")
	v.SetDefault("scraper.rival_select_timeout", "5s")
	v.SetDefault("scraper.select_delay", "500ms")
	v.SetDefault("scraper.select_retries", 1)
	v.SetDefault("scraper.history_window", "8")
	v.SetDefault("scraper.headless", true)
	v.SetDefault("scraper.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/116.0.0.0 Safari/537.36")

	v.SetDefault("pool.workers", 4)
	v.SetDefault("pool.jitter_min", "300ms")
	v.SetDefault("pool.jitter_max", "800ms")

	v.SetDefault("sink.backend", "sheets")
	v.SetDefault("sink.chunk_size", 150)
	v.SetDefault("sink.api_pause", "300ms")
	v.SetDefault("sink.retry_cooldown", "60s")
	v.SetDefault("sink.negative_sheet", "Visitantes")
	v.SetDefault("sink.positive_sheet", "Locales")
	v.SetDefault("sink.headroom_rows", 100)
	v.SetDefault("sink.spreadsheet_id", "")
	v.SetDefault("sink.credentials_file", "google_credentials.json")
	v.SetDefault("sink.dsn", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("status.addr", "")
	v.SetDefault("report.path", "failures.yaml")

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", 0)
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.Scraper.BaseURL == "" {
		return fmt.Errorf("scraper.base_url is required")
	}
	if c.Scraper.Timeout <= 0 {
		return fmt.Errorf("scraper.timeout must be positive")
	}
	if c.Scraper.SelectRetries < 0 {
		return fmt.Errorf("scraper.select_retries must not be negative")
	}

	if c.Pool.Workers < 1 {
		return fmt.Errorf("pool.workers must be at least 1")
	}
	if c.Pool.JitterMin < 0 || c.Pool.JitterMax < c.Pool.JitterMin {
		return fmt.Errorf("pool.jitter_max must be at least pool.jitter_min and both non-negative")
	}

	switch c.Sink.Backend {
	case "sheets":
		if c.Sink.SpreadsheetID == "" {
			return fmt.Errorf("sink.spreadsheet_id is required for the sheets backend")
		}
		if c.Sink.CredentialsFile == "" {
			return fmt.Errorf("sink.credentials_file is required for the sheets backend")
		}
	case "postgres", "sqlite":
		if c.Sink.DSN == "" {
			return fmt.Errorf("sink.dsn is required for the %s backend", c.Sink.Backend)
		}
	case "none":
	default:
		return fmt.Errorf("sink.backend must be one of: sheets, postgres, sqlite, none")
	}
	if c.Sink.ChunkSize < 1 {
		return fmt.Errorf("sink.chunk_size must be at least 1")
	}
	if c.Sink.NegativeSheet == "" || c.Sink.PositiveSheet == "" {
		return fmt.Errorf("sink.negative_sheet and sink.positive_sheet are required")
	}

	for i, r := range c.Ranges {
		if r.StartID <= 0 || r.EndID <= 0 {
			return fmt.Errorf("ranges[%d]: ids must be positive", i)
		}
		if r.StartID < r.EndID {
			return fmt.Errorf("ranges[%d]: start_id must not be below end_id", i)
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == 0 {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	return nil
}
