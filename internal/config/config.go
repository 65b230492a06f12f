package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ── Config ─────────────────────────────────────────────────
// Explicit configuration value object. Loaded once at startup from a
// YAML file with environment overrides for secrets, then passed into
// constructors; core logic never reads ambient process state.

// Config is the full pipeline configuration.
type Config struct {
	Whoop    WhoopConfig    `yaml:"whoop"`
	Database DatabaseConfig `yaml:"database"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// WhoopConfig holds API and OAuth2 client settings.
type WhoopConfig struct {
	ClientID      string `yaml:"client_id"`
	ClientSecret  string `yaml:"client_secret"`
	APIBaseURL    string `yaml:"api_base_url"`
	CyclesBaseURL string `yaml:"cycles_base_url"`
	AuthURL       string `yaml:"auth_url"`
	TokenURL      string `yaml:"token_url"`
	RedirectURI   string `yaml:"redirect_uri"`
	Scope         string `yaml:"scope"`
}

// DatabaseConfig identifies the warehouse.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" | "postgres" | "mysql"
	DSN    string `yaml:"dsn"`
}

// PipelineConfig tunes a run.
type PipelineConfig struct {
	PageSize     int     `yaml:"page_size"`
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
	SnapshotDir  string  `yaml:"snapshot_dir"`
	// Schedule is a cron expression; empty disables scheduled runs.
	Schedule string `yaml:"schedule"`
	// LookbackDays re-fetches this many days before the newest stored
	// cycle so late-amended records are picked up.
	LookbackDays int `yaml:"lookback_days"`
	// EpochFloor is the window start when the warehouse is empty.
	EpochFloor string `yaml:"epoch_floor"`
}

// Defaults applied when the file leaves settings unset.
const (
	defaultAPIBaseURL   = "https://api.prod.whoop.com/developer/v2/"
	defaultAuthURL      = "https://api.prod.whoop.com/oauth/oauth2/auth"
	defaultTokenURL     = "https://api.prod.whoop.com/oauth/oauth2/token"
	defaultRedirectURI  = "http://localhost:8080/callback"
	defaultScope        = "read:cycles read:sleep read:recovery read:workout offline"
	defaultLookbackDays = 7
	defaultEpochFloor   = "2024-01-01"
	defaultRateLimitRPS = 2.0
	DefaultSQLiteDriver = "sqlite"
	defaultSQLiteDSN    = "whoop.db"
)

// Load reads configuration from path, applies environment overrides
// and defaults, and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv lets secrets live in the environment rather than the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("WHOOP_CLIENT_ID"); v != "" {
		c.Whoop.ClientID = v
	}
	if v := os.Getenv("WHOOP_CLIENT_SECRET"); v != "" {
		c.Whoop.ClientSecret = v
	}
	if v := os.Getenv("WHOOP_DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("WHOOP_DB_DSN"); v != "" {
		c.Database.DSN = v
	}
}

func (c *Config) applyDefaults() {
	if c.Whoop.APIBaseURL == "" {
		c.Whoop.APIBaseURL = defaultAPIBaseURL
	}
	if c.Whoop.CyclesBaseURL == "" {
		c.Whoop.CyclesBaseURL = c.Whoop.APIBaseURL
	}
	if c.Whoop.AuthURL == "" {
		c.Whoop.AuthURL = defaultAuthURL
	}
	if c.Whoop.TokenURL == "" {
		c.Whoop.TokenURL = defaultTokenURL
	}
	if c.Whoop.RedirectURI == "" {
		c.Whoop.RedirectURI = defaultRedirectURI
	}
	if c.Whoop.Scope == "" {
		c.Whoop.Scope = defaultScope
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DefaultSQLiteDriver
	}
	if c.Database.DSN == "" && c.Database.Driver == DefaultSQLiteDriver {
		c.Database.DSN = defaultSQLiteDSN
	}
	if c.Pipeline.LookbackDays <= 0 {
		c.Pipeline.LookbackDays = defaultLookbackDays
	}
	if c.Pipeline.EpochFloor == "" {
		c.Pipeline.EpochFloor = defaultEpochFloor
	}
	if c.Pipeline.RateLimitRPS == 0 {
		c.Pipeline.RateLimitRPS = defaultRateLimitRPS
	}
}

func (c *Config) validate() error {
	if c.Whoop.ClientID == "" || c.Whoop.ClientSecret == "" {
		return fmt.Errorf("config: whoop client_id and client_secret are required")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("config: database dsn is required for driver %s", c.Database.Driver)
	}
	if _, err := c.EpochFloorTime(); err != nil {
		return err
	}
	return nil
}

// EpochFloorTime parses the configured epoch floor as a UTC date.
func (c *Config) EpochFloorTime() (time.Time, error) {
	t, err := time.Parse("2006-01-02", c.Pipeline.EpochFloor)
	if err != nil {
		return time.Time{}, fmt.Errorf("config: bad epoch_floor %q: %w", c.Pipeline.EpochFloor, err)
	}
	return t.UTC(), nil
}
