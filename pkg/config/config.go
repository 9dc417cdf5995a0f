// Package config defines configuration for every component of the
// platform. Config is loaded from a YAML file with environment
// variable overrides for secrets, following this codebase's standard
// viper-based loading convention.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration for the live daemon, the
// backtest driver, and the arbitrage daemon. Each binary reads only
// the sections it needs.
type Config struct {
	Store     StoreConfig     `mapstructure:"store"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Profile   ProfileConfig   `mapstructure:"profile"`
	State     StateConfig     `mapstructure:"state"`
	Strategy  StrategyConfig  `mapstructure:"strategy"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Broker    BrokerConfig    `mapstructure:"broker"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Arbitrage ArbitrageConfig `mapstructure:"arbitrage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// StoreConfig points at the SQLite time-series store.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// ProviderConfig describes one upstream market-data feed.
type ProviderConfig struct {
	Name      string   `mapstructure:"name"`
	Kind      string   `mapstructure:"kind"` // "polling" or "streaming"
	URL       string   `mapstructure:"url"`
	APIKey    string   `mapstructure:"api_key"`
	Symbols   []string `mapstructure:"symbols"`
	PollEvery time.Duration `mapstructure:"poll_every"`
}

// IngestConfig configures the ingestion router's provider fan-out.
type IngestConfig struct {
	Providers     []ProviderConfig `mapstructure:"providers"`
	NATSURL       string           `mapstructure:"nats_url"`
	BucketSeconds int              `mapstructure:"bucket_seconds"`
}

// ProfileConfig tunes the volume-profile engine's bucketing.
type ProfileConfig struct {
	BucketMinutes int     `mapstructure:"bucket_minutes"`
	ValueAreaPct  float64 `mapstructure:"value_area_pct"`
}

// StateConfig mirrors the market-state detector's thresholds.
type StateConfig struct {
	POCDistanceThreshold  float64 `mapstructure:"poc_distance_threshold"`
	MomentumThreshold     float64 `mapstructure:"momentum_threshold"`
	CVDPressureThreshold  float64 `mapstructure:"cvd_pressure_threshold"`
	LookbackPeriod        int     `mapstructure:"lookback_period"`
}

// StrategyConfig tunes entry/exit signal generation and sizing.
type StrategyConfig struct {
	MinAggression   float64 `mapstructure:"min_aggression"`
	ATRStopMult     float64 `mapstructure:"atr_stop_mult"`
	ATRTargetMult   float64 `mapstructure:"atr_target_mult"`
	RiskPerTradePct float64 `mapstructure:"risk_per_trade_pct"`
	MaxPositions    int     `mapstructure:"max_positions"`
}

// RiskConfig sets the two hard kill-switch limits the monitor checks.
type RiskConfig struct {
	MaxDailyLossPct         float64 `mapstructure:"max_daily_loss_pct"`
	MinAccountBalance       float64 `mapstructure:"min_account_balance"`
	EmergencyStopThreshold  int     `mapstructure:"emergency_stop_threshold"`
}

// BrokerConfig configures the live REST broker client.
type BrokerConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ExecutionConfig tunes the order monitor's lifecycle thresholds.
type ExecutionConfig struct {
	MaxOrderAge    time.Duration `mapstructure:"max_order_age"`
	MaxSlippagePct float64       `mapstructure:"max_slippage_pct"`
	CheckInterval  time.Duration `mapstructure:"check_interval"`
}

// ArbitrageConfig tunes the binary-market arbitrage engine. The venue
// it trades against is a separate account from the live daemon's
// broker, so it carries its own base URL and API key.
type ArbitrageConfig struct {
	SpreadThreshold float64       `mapstructure:"spread_threshold"`
	MinProfitPct    float64       `mapstructure:"min_profit_pct"`
	MonitorInterval time.Duration `mapstructure:"monitor_interval"`
	Markets         []string      `mapstructure:"markets"`
	PositionSizeUSD float64       `mapstructure:"position_size_usd"`
	VenueBaseURL    string        `mapstructure:"venue_base_url"`
	VenueAPIKey     string        `mapstructure:"venue_api_key"`
}

// LoggingConfig controls the slog handler used by the live daemons.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "text"
}

// Load reads config from a YAML file, applying ACE_-prefixed
// environment variable overrides for any field (dots replaced with
// underscores, per viper's standard env binding).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("ACE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if key := os.Getenv("ACE_BROKER_API_KEY"); key != "" {
		cfg.Broker.APIKey = key
	}
	for i := range cfg.Ingest.Providers {
		envVar := "ACE_PROVIDER_" + strings.ToUpper(cfg.Ingest.Providers[i].Name) + "_API_KEY"
		if key := os.Getenv(envVar); key != "" {
			cfg.Ingest.Providers[i].APIKey = key
		}
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.path", "auctioncore.db")
	v.SetDefault("ingest.nats_url", "nats://127.0.0.1:4222")
	v.SetDefault("ingest.bucket_seconds", 60)
	v.SetDefault("profile.bucket_minutes", 30)
	v.SetDefault("profile.value_area_pct", 0.70)
	v.SetDefault("state.poc_distance_threshold", 1.5)
	v.SetDefault("state.momentum_threshold", 1.5)
	v.SetDefault("state.cvd_pressure_threshold", 15.0)
	v.SetDefault("state.lookback_period", 60)
	v.SetDefault("strategy.min_aggression", 60.0)
	v.SetDefault("strategy.atr_stop_mult", 1.5)
	v.SetDefault("strategy.atr_target_mult", 3.0)
	v.SetDefault("strategy.risk_per_trade_pct", 1.0)
	v.SetDefault("strategy.max_positions", 5)
	v.SetDefault("risk.max_daily_loss_pct", 3.0)
	v.SetDefault("risk.min_account_balance", 1000.0)
	v.SetDefault("risk.emergency_stop_threshold", 3)
	v.SetDefault("broker.timeout", 10*time.Second)
	v.SetDefault("execution.max_order_age", 5*time.Minute)
	v.SetDefault("execution.max_slippage_pct", 1.0)
	v.SetDefault("execution.check_interval", time.Second)
	v.SetDefault("arbitrage.spread_threshold", 0.995)
	v.SetDefault("arbitrage.min_profit_pct", 0.5)
	v.SetDefault("arbitrage.monitor_interval", 60*time.Second)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks required fields and value ranges across sections
// relevant to the live daemon.
func (c *Config) Validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.Strategy.MaxPositions <= 0 {
		return fmt.Errorf("strategy.max_positions must be > 0")
	}
	if c.Strategy.RiskPerTradePct <= 0 || c.Strategy.RiskPerTradePct > 1 {
		return fmt.Errorf("strategy.risk_per_trade_pct must be in (0,1]")
	}
	if c.Risk.MaxDailyLossPct <= 0 {
		return fmt.Errorf("risk.max_daily_loss_pct must be > 0")
	}
	if c.Risk.MinAccountBalance <= 0 {
		return fmt.Errorf("risk.min_account_balance must be > 0")
	}
	return nil
}

// ValidateBroker additionally requires a broker endpoint, for the live
// execution path only (the backtest driver never constructs a broker
// client).
func (c *Config) ValidateBroker() error {
	if c.Broker.BaseURL == "" {
		return fmt.Errorf("broker.base_url is required")
	}
	if c.Broker.APIKey == "" {
		return fmt.Errorf("broker.api_key is required (set ACE_BROKER_API_KEY)")
	}
	return nil
}
