package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sproutfi/basisledger/internal/models"
)

// Config is the full application configuration.
type Config struct {
	FeePercent float64 `yaml:"fee_percent"`

	Token struct {
		Contract string `yaml:"contract"`
		Decimals int    `yaml:"decimals"`
	} `yaml:"token"`

	Vaults []string `yaml:"vaults"`

	Explorer struct {
		BaseURL               string  `yaml:"base_url"`
		APIKey                string  `yaml:"api_key"`
		RequestTimeoutSeconds int     `yaml:"request_timeout_seconds"`
		RateLimitRPS          float64 `yaml:"rate_limit_rps"`
		MaxRetries            int     `yaml:"max_retries"`
	} `yaml:"explorer"`

	Backup struct {
		BaseURL               string `yaml:"base_url"`
		RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
		MaxRetries            int    `yaml:"max_retries"`
	} `yaml:"backup"`

	Cache struct {
		Backend    string `yaml:"backend"` // "memory" or "redis"
		TTLSeconds int    `yaml:"ttl_seconds"`
		Redis      struct {
			Addr string `yaml:"addr"`
			DB   int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Database struct {
		Enabled             bool   `yaml:"enabled"`
		DSN                 string `yaml:"dsn"`
		MaxOpenConns        int    `yaml:"max_open_conns"`
		MaxIdleConns        int    `yaml:"max_idle_conns"`
		QueryTimeoutSeconds int    `yaml:"query_timeout_seconds"`
	} `yaml:"database"`

	Server struct {
		Listen string `yaml:"listen"`
	} `yaml:"server"`
}

// Load reads and validates a YAML config file, applying defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.FeePercent == 0 {
		c.FeePercent = 15
	}
	if c.Token.Decimals == 0 {
		c.Token.Decimals = 6
	}
	if c.Explorer.RequestTimeoutSeconds == 0 {
		c.Explorer.RequestTimeoutSeconds = 30
	}
	if c.Backup.RequestTimeoutSeconds == 0 {
		c.Backup.RequestTimeoutSeconds = 15
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "memory"
	}
	if c.Cache.TTLSeconds == 0 {
		c.Cache.TTLSeconds = 300
	}
	if c.Database.QueryTimeoutSeconds == 0 {
		c.Database.QueryTimeoutSeconds = 5
	}
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
}

func (c *Config) validate() error {
	if _, err := models.NormalizeAddress(c.Token.Contract); err != nil {
		return fmt.Errorf("invalid token contract: %w", err)
	}
	if len(c.Vaults) == 0 {
		return fmt.Errorf("at least one vault address is required")
	}
	for _, v := range c.Vaults {
		if _, err := models.NormalizeAddress(v); err != nil {
			return fmt.Errorf("invalid vault address: %w", err)
		}
	}
	if c.Explorer.BaseURL == "" {
		return fmt.Errorf("explorer base_url is required")
	}
	if c.Backup.BaseURL == "" {
		return fmt.Errorf("backup base_url is required")
	}
	if c.Cache.Backend != "memory" && c.Cache.Backend != "redis" {
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.Backend == "redis" && c.Cache.Redis.Addr == "" {
		return fmt.Errorf("cache redis addr is required for the redis backend")
	}
	if c.Database.Enabled && c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required when the database is enabled")
	}
	if c.FeePercent < 0 || c.FeePercent > 100 {
		return fmt.Errorf("fee_percent must be between 0 and 100")
	}
	return nil
}

// CacheTTL returns the cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// ExplorerTimeout returns the explorer request timeout.
func (c *Config) ExplorerTimeout() time.Duration {
	return time.Duration(c.Explorer.RequestTimeoutSeconds) * time.Second
}

// BackupTimeout returns the backup request timeout.
func (c *Config) BackupTimeout() time.Duration {
	return time.Duration(c.Backup.RequestTimeoutSeconds) * time.Second
}

// QueryTimeout returns the database query timeout.
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.Database.QueryTimeoutSeconds) * time.Second
}
