// Package config provides configuration management for the trading supervisor.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Safety defaults applied when the corresponding keys are unset.
const (
	// defaultSLPlacementTimeout bounds how long an open position may live
	// without a stop-loss before the emergency close fires.
	defaultSLPlacementTimeout = 10
	// defaultConfirmationTimeout is the pending-confirmation lifetime.
	defaultConfirmationTimeout = 60
	// defaultPollInterval is the watcher cadence in seconds.
	defaultPollInterval = 5
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Broker      BrokerConfig      `yaml:"broker"`
	Trading     TradingConfig     `yaml:"trading"`
	FreeTrading FreeTradingConfig `yaml:"free_trading"`
	Safety      SafetyConfig      `yaml:"safety"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	Storage     StorageConfig     `yaml:"storage"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
	Notify      NotifyConfig      `yaml:"notify"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// BrokerConfig defines broker account settings.
type BrokerConfig struct {
	AccountID string `yaml:"account_id"`
	// RateLimitRPS caps broker calls per second; 0 disables the limiter.
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
}

// TradingConfig defines account-level sizing parameters.
type TradingConfig struct {
	DepositRub       float64 `yaml:"deposit_rub"`
	RiskPerTradePct  float64 `yaml:"risk_per_trade_pct"` // fraction, e.g. 0.01
	MaxPositionPct   float64 `yaml:"max_position_pct"`   // fraction, e.g. 0.25
}

// FreeTradingConfig gates and bounds user-initiated buy orders.
type FreeTradingConfig struct {
	Enabled                 bool    `yaml:"enabled"`
	MaxPriceDeviationPct    float64 `yaml:"max_price_deviation_pct"`
	MaxConcurrentPositions  int     `yaml:"max_concurrent_positions"`
	MaxDailyTrades          int     `yaml:"max_daily_trades"`
	MaxDailyLossRub         float64 `yaml:"max_daily_loss_rub"`
	SLPlacementTimeoutSec   int     `yaml:"sl_placement_timeout_sec"`
	ConfirmationTimeoutSec  int     `yaml:"confirmation_timeout_sec"`
	TradingStart            string  `yaml:"trading_start"` // "HH:MM" MSK
	TradingEnd              string  `yaml:"trading_end"`   // "HH:MM" MSK
	SLATRMultiplier         float64 `yaml:"sl_atr_multiplier"`
	TPATRMultiplier         float64 `yaml:"tp_atr_multiplier"`
}

// SafetyConfig defines global safety switches.
type SafetyConfig struct {
	// DryRun makes every broker call return synthetic success without
	// contacting the exchange.
	DryRun bool `yaml:"dry_run"`
}

// ScheduleConfig defines polling cadence and the daily analytics slot.
type ScheduleConfig struct {
	PollIntervalSec int    `yaml:"poll_interval_sec"`
	DailyCalcTime   string `yaml:"daily_calc_time"` // "HH:MM" MSK
}

// StorageConfig defines storage settings for supervisor state.
type StorageConfig struct {
	Path string `yaml:"path"`
	// SnapshotPath is where the external indicator pipeline drops the
	// daily per-ticker analytics file.
	SnapshotPath string `yaml:"snapshot_path"`
}

// DashboardConfig defines the read-only HTTP status server.
type DashboardConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// NotifyConfig defines who may issue sensitive commands.
type NotifyConfig struct {
	// AuthorizedUsers gates pause/resume/kill/buy; empty means any caller.
	AuthorizedUsers []string `yaml:"authorized_users"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	ft := &c.FreeTrading
	if ft.MaxPriceDeviationPct == 0 {
		ft.MaxPriceDeviationPct = 5.0
	}
	if ft.MaxConcurrentPositions == 0 {
		ft.MaxConcurrentPositions = 3
	}
	if ft.MaxDailyTrades == 0 {
		ft.MaxDailyTrades = 10
	}
	if ft.MaxDailyLossRub == 0 {
		ft.MaxDailyLossRub = 10000
	}
	if ft.SLPlacementTimeoutSec == 0 {
		ft.SLPlacementTimeoutSec = defaultSLPlacementTimeout
	}
	if ft.ConfirmationTimeoutSec == 0 {
		ft.ConfirmationTimeoutSec = defaultConfirmationTimeout
	}
	if ft.TradingStart == "" {
		ft.TradingStart = "10:05"
	}
	if ft.TradingEnd == "" {
		ft.TradingEnd = "18:40"
	}
	if ft.SLATRMultiplier == 0 {
		ft.SLATRMultiplier = 1.0
	}
	if ft.TPATRMultiplier == 0 {
		ft.TPATRMultiplier = 3.0
	}
	if c.Schedule.PollIntervalSec == 0 {
		c.Schedule.PollIntervalSec = defaultPollInterval
	}
	if c.Schedule.DailyCalcTime == "" {
		c.Schedule.DailyCalcTime = "06:30"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "supervisor.json"
	}
	if c.Storage.SnapshotPath == "" {
		c.Storage.SnapshotPath = "snapshot.json"
	}
	if c.Broker.RateLimitBurst == 0 {
		c.Broker.RateLimitBurst = 5
	}
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	if c.Trading.DepositRub <= 0 {
		return fmt.Errorf("trading.deposit_rub must be > 0")
	}
	if c.Trading.RiskPerTradePct <= 0 || c.Trading.RiskPerTradePct > 0.1 {
		return fmt.Errorf("trading.risk_per_trade_pct must be in (0, 0.1]")
	}
	if c.Trading.MaxPositionPct <= 0 || c.Trading.MaxPositionPct > 1.0 {
		return fmt.Errorf("trading.max_position_pct must be in (0, 1.0]")
	}

	ft := &c.FreeTrading
	if ft.MaxPriceDeviationPct <= 0 {
		return fmt.Errorf("free_trading.max_price_deviation_pct must be > 0")
	}
	if ft.MaxConcurrentPositions <= 0 {
		return fmt.Errorf("free_trading.max_concurrent_positions must be > 0")
	}
	if ft.MaxDailyTrades <= 0 {
		return fmt.Errorf("free_trading.max_daily_trades must be > 0")
	}
	if ft.MaxDailyLossRub <= 0 {
		return fmt.Errorf("free_trading.max_daily_loss_rub must be > 0")
	}
	if ft.SLPlacementTimeoutSec <= 0 {
		return fmt.Errorf("free_trading.sl_placement_timeout_sec must be > 0")
	}
	if ft.ConfirmationTimeoutSec <= 0 {
		return fmt.Errorf("free_trading.confirmation_timeout_sec must be > 0")
	}
	if ft.SLATRMultiplier <= 0 || ft.TPATRMultiplier <= 0 {
		return fmt.Errorf("free_trading ATR multipliers must be > 0")
	}

	s, err1 := parseClock(ft.TradingStart)
	e, err2 := parseClock(ft.TradingEnd)
	if err1 != nil || err2 != nil || !s.Before(e) {
		return fmt.Errorf("free_trading trading window invalid (start/end parse/order)")
	}

	if c.Schedule.PollIntervalSec <= 0 {
		return fmt.Errorf("schedule.poll_interval_sec must be > 0")
	}
	if _, err := parseClock(c.Schedule.DailyCalcTime); err != nil {
		return fmt.Errorf("schedule.daily_calc_time invalid: %w", err)
	}

	if c.Dashboard.Enabled && (c.Dashboard.Port <= 0 || c.Dashboard.Port > 65535) {
		return fmt.Errorf("dashboard.port must be in (0, 65535]")
	}

	return nil
}

func parseClock(v string) (time.Time, error) {
	return time.Parse("15:04", v)
}

// PollInterval returns the watcher cadence as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Schedule.PollIntervalSec) * time.Second
}

// SLPlacementTimeout returns the guard deadline as a duration.
func (c *Config) SLPlacementTimeout() time.Duration {
	return time.Duration(c.FreeTrading.SLPlacementTimeoutSec) * time.Second
}

// ConfirmationTimeout returns the pending-confirmation lifetime.
func (c *Config) ConfirmationTimeout() time.Duration {
	return time.Duration(c.FreeTrading.ConfirmationTimeoutSec) * time.Second
}

// MoscowLocation resolves the exchange timezone with a DST-agnostic
// fallback for minimal containers.
func MoscowLocation() *time.Location {
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		return time.FixedZone("MSK", 3*60*60)
	}
	return loc
}

// IsWithinTradingHours checks if the given time falls within the configured
// MSK trading window, Monday through Friday.
func (c *Config) IsWithinTradingHours(now time.Time) bool {
	loc := MoscowLocation()
	today := now.In(loc)

	// Only allow Monday to Friday trading
	if today.Weekday() == time.Saturday || today.Weekday() == time.Sunday {
		return false
	}

	startClock, err1 := parseClock(c.FreeTrading.TradingStart)
	endClock, err2 := parseClock(c.FreeTrading.TradingEnd)
	if err1 != nil || err2 != nil {
		// Safe defaults if misconfigured
		startClock = time.Date(0, 1, 1, 10, 5, 0, 0, loc)
		endClock = time.Date(0, 1, 1, 18, 40, 0, 0, loc)
	}
	start := time.Date(today.Year(), today.Month(), today.Day(),
		startClock.Hour(), startClock.Minute(), 0, 0, loc)
	end := time.Date(today.Year(), today.Month(), today.Day(),
		endClock.Hour(), endClock.Minute(), 0, 0, loc)

	// Inclusive on both ends: the window already trims the auction edges.
	return !today.Before(start) && !today.After(end)
}
