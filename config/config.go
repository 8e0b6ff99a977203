package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"
)

// Config is the root configuration for the FVG alert bot. It is constructed
// once at startup and passed by reference into every component; there is no
// global instance.
type Config struct {
	BrokerConfig       BrokerConfig               `json:"broker"`
	Symbols            map[string][]string        `json:"symbols"` // category -> symbol names
	SymbolSuffix       string                     `json:"symbol_suffix"`
	Timeframes         map[string]TimeframeConfig `json:"timeframes"`
	FVGConfig          FVGConfig                  `json:"fvg_settings"`
	AlertConfig        AlertConfig                `json:"alert_settings"`
	CacheConfig        CacheConfig                `json:"cache"`
	NotificationConfig NotificationConfig         `json:"notification"`
	AnalyzerConfig     AnalyzerConfig             `json:"analyzer"`
	LoggingConfig      LoggingConfig              `json:"logging"`
}

// BrokerConfig holds the connection settings for the broker bridge that
// serves candle and tick data.
type BrokerConfig struct {
	BaseURL        string `json:"base_url"`
	TickStreamURL  string `json:"tick_stream_url"` // websocket endpoint, optional
	APIToken       string `json:"api_token"`
	RequestTimeout int    `json:"request_timeout"` // seconds
	MaxRetries     int    `json:"max_retries"`
	RetryBackoff   int    `json:"retry_backoff"` // seconds between retries
	ClockSymbol    string `json:"clock_symbol"`  // liquid symbol used for broker time sync
	MockMode       bool   `json:"mock_mode"`
}

// TimeframeConfig holds per-timeframe analysis settings.
type TimeframeConfig struct {
	MaxLookback int `json:"max_lookback"`
}

// FVGConfig holds gap detection thresholds.
type FVGConfig struct {
	// MinSize maps a symbol class to the minimum absolute gap size.
	// Recognized classes: "default" (required), "metals", "crypto".
	MinSize       map[string]float64 `json:"min_size"`
	MaxChainDepth int                `json:"max_chain_depth"`
}

// AlertConfig holds alert feature toggles.
type AlertConfig struct {
	SendPotentialAlerts bool `json:"send_potential_2cr_alerts"`
	RateLimitSeconds    int  `json:"rate_limit_seconds"`
}

// CacheConfig holds alert deduplication cache settings.
type CacheConfig struct {
	Dir          string `json:"dir"`
	MaxSizeBytes int64  `json:"max_size_bytes"`
	RedisAddr    string `json:"redis_addr"` // optional; file store used when empty
	RedisDB      int    `json:"redis_db"`
}

// NotificationConfig holds notification channel settings.
type NotificationConfig struct {
	Enabled  bool           `json:"enabled"`
	Telegram TelegramConfig `json:"telegram"`
}

// TelegramConfig holds Telegram bot credentials.
type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

// AnalyzerConfig holds run-loop settings.
type AnalyzerConfig struct {
	CycleInterval int  `json:"cycle_interval"` // seconds between full watchlist passes
	ErrorBackoff  int  `json:"error_backoff"`  // seconds to sleep after a failed cycle
	SkipWeekends  bool `json:"skip_weekends"`
	LowerTFChecks int  `json:"lower_tf_checks"` // lower timeframes examined for 2CR
}

// LoggingConfig configures zerolog output.
type LoggingConfig struct {
	Level      string `json:"level"`
	JSONFormat bool   `json:"json_format"`
}

// Load reads config.json (or the file named by CONFIG_FILE) and applies
// environment variable overrides on top.
func Load() (*Config, error) {
	path := getEnvOrDefault("CONFIG_FILE", "config.json")

	cfg, err := loadFromFile(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	return &config, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.BrokerConfig.BaseURL = getEnvOrDefault("BROKER_BASE_URL", cfg.BrokerConfig.BaseURL)
	cfg.BrokerConfig.TickStreamURL = getEnvOrDefault("BROKER_TICK_STREAM_URL", cfg.BrokerConfig.TickStreamURL)
	cfg.BrokerConfig.APIToken = getEnvOrDefault("BROKER_API_TOKEN", cfg.BrokerConfig.APIToken)
	cfg.BrokerConfig.MockMode = getEnvBoolOrDefault("BROKER_MOCK_MODE", cfg.BrokerConfig.MockMode)

	cfg.NotificationConfig.Telegram.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.NotificationConfig.Telegram.BotToken)
	cfg.NotificationConfig.Telegram.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", cfg.NotificationConfig.Telegram.ChatID)

	cfg.CacheConfig.Dir = getEnvOrDefault("ALERT_CACHE_DIR", cfg.CacheConfig.Dir)
	cfg.CacheConfig.RedisAddr = getEnvOrDefault("ALERT_CACHE_REDIS_ADDR", cfg.CacheConfig.RedisAddr)

	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
}

func applyDefaults(cfg *Config) {
	if cfg.BrokerConfig.RequestTimeout <= 0 {
		cfg.BrokerConfig.RequestTimeout = 10
	}
	if cfg.BrokerConfig.MaxRetries <= 0 {
		cfg.BrokerConfig.MaxRetries = 3
	}
	if cfg.BrokerConfig.RetryBackoff <= 0 {
		cfg.BrokerConfig.RetryBackoff = 5
	}
	if cfg.BrokerConfig.ClockSymbol == "" {
		cfg.BrokerConfig.ClockSymbol = "EURUSD"
	}
	if cfg.FVGConfig.MaxChainDepth <= 0 {
		cfg.FVGConfig.MaxChainDepth = 3
	}
	if cfg.AlertConfig.RateLimitSeconds <= 0 {
		cfg.AlertConfig.RateLimitSeconds = 60
	}
	if cfg.CacheConfig.Dir == "" {
		cfg.CacheConfig.Dir = "cache"
	}
	if cfg.CacheConfig.MaxSizeBytes <= 0 {
		cfg.CacheConfig.MaxSizeBytes = 100 * 1024 * 1024
	}
	if cfg.AnalyzerConfig.CycleInterval <= 0 {
		cfg.AnalyzerConfig.CycleInterval = 300
	}
	if cfg.AnalyzerConfig.ErrorBackoff <= 0 {
		cfg.AnalyzerConfig.ErrorBackoff = 60
	}
	if cfg.AnalyzerConfig.LowerTFChecks <= 0 {
		cfg.AnalyzerConfig.LowerTFChecks = 2
	}
	if cfg.LoggingConfig.Level == "" {
		cfg.LoggingConfig.Level = "info"
	}
}

// Validate checks the configuration for startup-fatal problems: missing
// required sections, non-numeric or missing min-size thresholds, and a
// timeframe set that breaks the hierarchy's total order.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("config: no symbols configured")
	}
	if len(c.Timeframes) == 0 {
		return fmt.Errorf("config: no timeframes configured")
	}
	if len(c.FVGConfig.MinSize) == 0 {
		return fmt.Errorf("config: fvg_settings.min_size is required")
	}
	if _, ok := c.FVGConfig.MinSize["default"]; !ok {
		return fmt.Errorf("config: fvg_settings.min_size must contain a \"default\" entry")
	}
	for class, size := range c.FVGConfig.MinSize {
		if size <= 0 {
			return fmt.Errorf("config: fvg_settings.min_size[%s] must be positive, got %v", class, size)
		}
	}
	for name, tf := range c.Timeframes {
		if !IsValidTimeframe(name) {
			return fmt.Errorf("config: unknown timeframe %q", name)
		}
		if tf.MaxLookback <= 0 {
			return fmt.Errorf("config: timeframes[%s].max_lookback must be positive", name)
		}
	}
	return nil
}

// timeframeOrder ranks timeframe names from coarse to fine. Lower index means
// higher timeframe. This is the single source of truth for hierarchy checks
// inside config; the market package carries the same order as integer ranks.
var timeframeOrder = []string{"MN1", "W1", "D1", "H4", "H1", "M15", "M5", "M1"}

// IsValidTimeframe reports whether name is a recognized timeframe.
func IsValidTimeframe(name string) bool {
	for _, tf := range timeframeOrder {
		if tf == name {
			return true
		}
	}
	return false
}

// OrderedTimeframes returns the configured timeframe names sorted from
// highest to lowest.
func (c *Config) OrderedTimeframes() []string {
	rank := make(map[string]int, len(timeframeOrder))
	for i, tf := range timeframeOrder {
		rank[tf] = i
	}

	names := make([]string, 0, len(c.Timeframes))
	for name := range c.Timeframes {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return rank[names[i]] < rank[names[j]]
	})
	return names
}

// MaxLookback returns the configured lookback depth for a timeframe, with a
// fallback of 100 bars.
func (c *Config) MaxLookback(timeframe string) int {
	if tf, ok := c.Timeframes[timeframe]; ok && tf.MaxLookback > 0 {
		return tf.MaxLookback
	}
	return 100
}

// WatchlistSymbols flattens the symbol categories and applies the broker
// suffix to each name.
func (c *Config) WatchlistSymbols() []string {
	categories := make([]string, 0, len(c.Symbols))
	for cat := range c.Symbols {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	var symbols []string
	for _, cat := range categories {
		for _, s := range c.Symbols[cat] {
			symbols = append(symbols, s+c.SymbolSuffix)
		}
	}
	return symbols
}

// Timeout returns the broker request timeout as a duration.
func (b BrokerConfig) Timeout() time.Duration {
	return time.Duration(b.RequestTimeout) * time.Second
}

// Backoff returns the broker retry backoff as a duration.
func (b BrokerConfig) Backoff() time.Duration {
	return time.Duration(b.RetryBackoff) * time.Second
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
