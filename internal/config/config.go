// Package config defines all configuration for the trading engine.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via PERP_* environment variables. No field
// is implicitly defaulted at runtime; every default lives here, in parsing.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file
// structure consumed by the engine at construction.
type Config struct {
	DryRun     bool             `mapstructure:"dry_run"`
	Symbols    []string         `mapstructure:"symbols"`
	Wallet     WalletConfig     `mapstructure:"wallet"`
	Venue      VenueConfig      `mapstructure:"venue"`
	Signal     SignalConfig     `mapstructure:"signal"`
	Dedup      DedupConfig      `mapstructure:"dedup"`
	Cost       CostConfig       `mapstructure:"cost"`
	IOC        IOCConfig        `mapstructure:"ioc"`
	Maker      MakerConfig      `mapstructure:"maker"`
	Router     RouterConfig     `mapstructure:"router"`
	TPSL       TPSLConfig       `mapstructure:"tpsl"`
	Closer     CloserConfig     `mapstructure:"closer"`
	Risk       RiskConfig       `mapstructure:"risk"`
	Attribution AttributionConfig `mapstructure:"attribution"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Analytics  AnalyticsConfig  `mapstructure:"analytics"`
}

// WalletConfig holds the Ethereum-style wallet used to sign venue actions.
type WalletConfig struct {
	PrivateKey    string `mapstructure:"private_key"`
	ChainID       int    `mapstructure:"chain_id"`
	FunderAddress string `mapstructure:"funder_address"`
}

// VenueConfig holds venue REST/WS endpoints and optional pre-derived API
// credentials.
type VenueConfig struct {
	RESTBaseURL string `mapstructure:"rest_base_url"`
	WSMarketURL string `mapstructure:"ws_market_url"`
	WSUserURL   string `mapstructure:"ws_user_url"`
	ApiKey      string `mapstructure:"api_key"`
	Secret      string `mapstructure:"secret"`
	Passphrase  string `mapstructure:"passphrase"`

	RateLimitPerSec float64       `mapstructure:"rate_limit_per_sec"`
	RateLimitBurst  int           `mapstructure:"rate_limit_burst"`
	BreakerMaxFails uint32        `mapstructure:"breaker_max_fails"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"`

	// PaperIOCFillRate / PaperLimitFillRate drive the deterministic
	// paper-trading short-circuit described in the spec's External
	// Interfaces section (IOC ~95% fill, LIMIT ~70% fill).
	PaperIOCFillRate   float64 `mapstructure:"paper_ioc_fill_rate"`
	PaperLimitFillRate float64 `mapstructure:"paper_limit_fill_rate"`
}

// SignalConfig tunes the primitive weights, aggregation thresholds, and the
// Microprice soft-normalisation scale.
type SignalConfig struct {
	OBIWeight        float64 `mapstructure:"obi_weight"`
	OBIDepthLevels   int     `mapstructure:"obi_depth_levels"`
	OBIWeighted      bool    `mapstructure:"obi_weighted"`
	MicropriceWeight float64 `mapstructure:"microprice_weight"`
	MicropriceScale  float64 `mapstructure:"microprice_scale"`
	ImpactWeight     float64 `mapstructure:"impact_weight"`
	ImpactWindowMs   int64   `mapstructure:"impact_window_ms"`
	ThetaHigh        float64 `mapstructure:"theta_high"`
	ThetaMedium      float64 `mapstructure:"theta_medium"`
	MaxTrades        int     `mapstructure:"max_trades"`
}

// DedupConfig tunes the Signal Deduplicator.
type DedupConfig struct {
	CooldownSeconds  float64 `mapstructure:"cooldown_seconds"`
	ChangeThreshold  float64 `mapstructure:"change_threshold"`
	DecayFactor      float64 `mapstructure:"decay_factor"`
	MaxSameDirection int     `mapstructure:"max_same_direction"`
}

// CostConfig tunes the Dynamic Cost Estimator's slippage cap and history
// retention. ImpactAlpha is loaded and defaulted but not passed to the
// estimator, whose impact model uses a fixed coefficient.
type CostConfig struct {
	ImpactAlpha   float64 `mapstructure:"impact_alpha"`
	MaxSlippageBps float64 `mapstructure:"max_slippage_bps"`
	HistorySize   int     `mapstructure:"history_size"`
}

// IOCConfig tunes the taker executor.
type IOCConfig struct {
	SizeStr string  `mapstructure:"default_size"`
	AdjBps  float64 `mapstructure:"adj_bps"`
}

// MakerConfig tunes the post-only limit executor.
type MakerConfig struct {
	SizeStr      string        `mapstructure:"default_size"`
	TickOffsetStr string       `mapstructure:"tick_offset"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	TimeoutHigh  time.Duration `mapstructure:"timeout_high"`
	TimeoutMedium time.Duration `mapstructure:"timeout_medium"`
	UsePostOnly  bool          `mapstructure:"use_post_only"`
}

// RouterConfig tunes the hybrid Maker/Taker router fallback behaviour.
type RouterConfig struct {
	EnableFallback   bool `mapstructure:"enable_fallback"`
	FallbackOnMedium bool `mapstructure:"fallback_on_medium"`
}

// TPSLConfig tunes fixed-percentage take-profit/stop-loss triggers.
type TPSLConfig struct {
	TPPct float64 `mapstructure:"tp_pct"`
	SLPct float64 `mapstructure:"sl_pct"`
}

// CloserConfig tunes the timeout-based position closer.
type CloserConfig struct {
	MaxPositionAgeSeconds int64 `mapstructure:"max_position_age_seconds"`
}

// RiskConfig tunes the hard pre-trade risk limits.
type RiskConfig struct {
	InitialNAVStr         string  `mapstructure:"initial_nav"`
	MaxSingleLossPct      float64 `mapstructure:"max_single_loss_pct"`
	MaxDailyDrawdownPct   float64 `mapstructure:"max_daily_drawdown_pct"`
	MaxPositionSizeUSDStr string  `mapstructure:"max_position_size_usd"`
}

// AttributionConfig tunes PnL attribution's fee/rebate rates and alpha
// health threshold.
type AttributionConfig struct {
	MakerFeeRate   float64 `mapstructure:"maker_fee_rate"`
	TakerFeeRate   float64 `mapstructure:"taker_fee_rate"`
	MakerRebateBps float64 `mapstructure:"maker_rebate_bps"`
	HorizonFactor  float64 `mapstructure:"horizon_factor"`
	AlphaThreshold float64 `mapstructure:"alpha_threshold"`
}

// EngineConfig tunes the main tick loop.
type EngineConfig struct {
	TickPeriod time.Duration `mapstructure:"tick_period"`
}

type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	AuditPath string `mapstructure:"audit_path"`
}

// MetricsConfig controls the Prometheus exporter.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// AnalyticsConfig controls the outbound event-pipeline WebSocket server.
type AnalyticsConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: PERP_PRIVATE_KEY, PERP_API_KEY,
// PERP_API_SECRET, PERP_PASSPHRASE.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("PERP")
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

	if key := os.Getenv("PERP_PRIVATE_KEY"); key != "" {
		cfg.Wallet.PrivateKey = key
	}
	if key := os.Getenv("PERP_API_KEY"); key != "" {
		cfg.Venue.ApiKey = key
	}
	if secret := os.Getenv("PERP_API_SECRET"); secret != "" {
		cfg.Venue.Secret = secret
	}
	if pass := os.Getenv("PERP_PASSPHRASE"); pass != "" {
		cfg.Venue.Passphrase = pass
	}
	if os.Getenv("PERP_DRY_RUN") == "true" || os.Getenv("PERP_DRY_RUN") == "1" {
		cfg.DryRun = true
	}

	return &cfg, nil
}

// setDefaults installs every spec-mandated default so a minimal YAML file
// (symbols, wallet, venue and risk.initial_nav, which has no default)
// produces a fully-specified configuration.
func setDefaults(v *viper.Viper) {
	v.SetDefault("signal.obi_weight", 0.34)
	v.SetDefault("signal.obi_depth_levels", 5)
	v.SetDefault("signal.obi_weighted", true)
	v.SetDefault("signal.microprice_weight", 0.33)
	v.SetDefault("signal.microprice_scale", 100.0)
	v.SetDefault("signal.impact_weight", 0.33)
	v.SetDefault("signal.impact_window_ms", 5000)
	v.SetDefault("signal.theta_high", 0.5)
	v.SetDefault("signal.theta_medium", 0.2)
	v.SetDefault("signal.max_trades", 1000)

	v.SetDefault("dedup.cooldown_seconds", 5.0)
	v.SetDefault("dedup.change_threshold", 0.15)
	v.SetDefault("dedup.decay_factor", 0.85)
	v.SetDefault("dedup.max_same_direction", 3)

	v.SetDefault("cost.impact_alpha", 1.0)
	v.SetDefault("cost.max_slippage_bps", 50.0)
	v.SetDefault("cost.history_size", 10000)

	v.SetDefault("ioc.default_size", "1.0")
	v.SetDefault("ioc.adj_bps", 5.0)

	v.SetDefault("maker.default_size", "1.0")
	v.SetDefault("maker.tick_offset", "0.01")
	v.SetDefault("maker.poll_interval", "100ms")
	v.SetDefault("maker.timeout_high", "5s")
	v.SetDefault("maker.timeout_medium", "3s")
	v.SetDefault("maker.use_post_only", true)

	v.SetDefault("router.enable_fallback", true)
	v.SetDefault("router.fallback_on_medium", false)

	v.SetDefault("tpsl.tp_pct", 0.02)
	v.SetDefault("tpsl.sl_pct", 0.01)

	v.SetDefault("closer.max_position_age_seconds", 1800)

	v.SetDefault("risk.max_single_loss_pct", 0.008)
	v.SetDefault("risk.max_daily_drawdown_pct", 0.05)
	v.SetDefault("risk.max_position_size_usd", "10000")

	v.SetDefault("attribution.maker_fee_rate", 0.00015)
	v.SetDefault("attribution.taker_fee_rate", 0.00045)
	v.SetDefault("attribution.maker_rebate_bps", 1.5)
	v.SetDefault("attribution.horizon_factor", 1.0)
	v.SetDefault("attribution.alpha_threshold", 0.70)

	v.SetDefault("engine.tick_period", "100ms")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("venue.rate_limit_per_sec", 10.0)
	v.SetDefault("venue.rate_limit_burst", 20)
	v.SetDefault("venue.breaker_max_fails", 5)
	v.SetDefault("venue.breaker_cooldown", "30s")
	v.SetDefault("venue.paper_ioc_fill_rate", 0.95)
	v.SetDefault("venue.paper_limit_fill_rate", 0.70)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("analytics.enabled", true)
	v.SetDefault("analytics.addr", ":8090")
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("symbols: at least one symbol is required")
	}
	if c.Wallet.PrivateKey == "" {
		return fmt.Errorf("wallet.private_key is required (set PERP_PRIVATE_KEY)")
	}
	if c.Wallet.ChainID == 0 {
		return fmt.Errorf("wallet.chain_id is required")
	}
	if c.Venue.RESTBaseURL == "" {
		return fmt.Errorf("venue.rest_base_url is required")
	}
	if c.RiskInitialNAV() <= 0 {
		return fmt.Errorf("risk.initial_nav must be > 0")
	}
	if c.Signal.ThetaMedium >= c.Signal.ThetaHigh {
		return fmt.Errorf("signal.theta_medium must be < signal.theta_high")
	}
	if c.Dedup.MaxSameDirection <= 0 {
		return fmt.Errorf("dedup.max_same_direction must be > 0")
	}
	return nil
}

// RiskInitialNAV parses risk.initial_nav as a float for validation purposes;
// component construction parses it as a Decimal.
func (c *Config) RiskInitialNAV() float64 {
	var f float64
	_, _ = fmt.Sscanf(c.Risk.InitialNAVStr, "%f", &f)
	return f
}
