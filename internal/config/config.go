// Package config loads the tradesim YAML configuration and applies
// environment variable overrides.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the tradesim platform.
type Config struct {
	Storage  Storage        `yaml:"storage"`
	Server   Server         `yaml:"server"`
	Alpaca   Alpaca         `yaml:"alpaca"`
	Logging  Logging        `yaml:"logging"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Backtest BacktestConfig `yaml:"backtest"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds network listener configuration for the results API.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API,
// used only to populate the local bar store before a run.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// FetchConfig holds parameters for the historical bar fetch job.
type FetchConfig struct {
	StartDate       string `yaml:"start_date"`
	BatchSize       int    `yaml:"batch_size"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
	MaxAttempts     int    `yaml:"max_attempts"`
}

// StrategyConfig selects a registered strategy variant and carries its
// numeric parameters.
type StrategyConfig struct {
	Name   string             `yaml:"name"`
	Params map[string]float64 `yaml:"params"`
}

// BacktestConfig defines the capital, risk, and simulation parameters for a
// backtest run.
type BacktestConfig struct {
	Symbols   []string `yaml:"symbols"`
	StartDate string   `yaml:"start_date"`
	EndDate   string   `yaml:"end_date"`

	InitialCapital float64 `yaml:"initial_capital"` // > 0
	RiskPerTrade   float64 `yaml:"risk_per_trade"`  // fraction of equity, (0, 1)
	MaxDrawdown    float64 `yaml:"max_drawdown"`    // fraction of initial capital, (0, 1]
	MaxPositions   int     `yaml:"max_positions"`   // >= 1
	MinTradeUnit   float64 `yaml:"min_trade_unit"`  // instrument minimum, e.g. 1 contract
	RiskFreeRate   float64 `yaml:"risk_free_rate"`  // annualized, for Sharpe
	Annualization  float64 `yaml:"annualization"`   // periods per year, e.g. 252 for daily

	Strategy StrategyConfig `yaml:"strategy"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, and then applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars take highest priority (canonical SDK names).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// applyDefaults fills zero-valued simulation parameters with safe defaults.
func applyDefaults(cfg *Config) {
	bt := &cfg.Backtest
	if bt.MinTradeUnit <= 0 {
		bt.MinTradeUnit = 1
	}
	if bt.Annualization <= 0 {
		bt.Annualization = 252
	}
	if cfg.Fetch.BatchSize <= 0 {
		cfg.Fetch.BatchSize = 500
	}
	if cfg.Fetch.RateLimitPerMin <= 0 {
		cfg.Fetch.RateLimitPerMin = 200
	}
	if cfg.Fetch.MaxAttempts <= 0 {
		cfg.Fetch.MaxAttempts = 3
	}
}

// Validate rejects configurations that cannot drive a run. It is called by
// the binaries before any simulation starts.
func (c *Config) Validate() error {
	bt := c.Backtest
	if bt.InitialCapital <= 0 {
		return fmt.Errorf("backtest.initial_capital must be > 0, got %v", bt.InitialCapital)
	}
	if bt.RiskPerTrade <= 0 || bt.RiskPerTrade >= 1 {
		return fmt.Errorf("backtest.risk_per_trade must be in (0, 1), got %v", bt.RiskPerTrade)
	}
	if bt.MaxDrawdown <= 0 || bt.MaxDrawdown > 1 {
		return fmt.Errorf("backtest.max_drawdown must be in (0, 1], got %v", bt.MaxDrawdown)
	}
	if bt.MaxPositions < 1 {
		return fmt.Errorf("backtest.max_positions must be >= 1, got %d", bt.MaxPositions)
	}
	if bt.Strategy.Name == "" {
		return fmt.Errorf("backtest.strategy.name is required")
	}
	return nil
}
