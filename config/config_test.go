package config

import (
	"os"
	"path/filepath"
	"testing"
)

const validConfig = `{
  "broker": {
    "base_url": "http://localhost:8080",
    "clock_symbol": "EURUSD"
  },
  "symbols": {
    "forex": ["EURUSD", "GBPUSD"],
    "metals": ["XAUUSD"]
  },
  "symbol_suffix": ".r",
  "timeframes": {
    "H4": {"max_lookback": 200},
    "H1": {"max_lookback": 300},
    "D1": {"max_lookback": 100}
  },
  "fvg_settings": {
    "min_size": {"default": 0.0001, "metals": 0.5}
  },
  "alert_settings": {
    "send_potential_2cr_alerts": true
  }
}`

func writeConfig(t *testing.T, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
}

func TestLoadValidConfig(t *testing.T) {
	writeConfig(t, validConfig)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.BrokerConfig.BaseURL != "http://localhost:8080" {
		t.Errorf("Unexpected base URL %q", cfg.BrokerConfig.BaseURL)
	}
	if cfg.FVGConfig.MinSize["metals"] != 0.5 {
		t.Errorf("Expected metals min size 0.5, got %v", cfg.FVGConfig.MinSize["metals"])
	}
	if !cfg.AlertConfig.SendPotentialAlerts {
		t.Error("Expected potential alerts enabled")
	}

	// Defaults fill in everything the file omitted.
	if cfg.BrokerConfig.RequestTimeout != 10 {
		t.Errorf("Expected default request timeout 10, got %d", cfg.BrokerConfig.RequestTimeout)
	}
	if cfg.FVGConfig.MaxChainDepth != 3 {
		t.Errorf("Expected default chain depth 3, got %d", cfg.FVGConfig.MaxChainDepth)
	}
	if cfg.CacheConfig.MaxSizeBytes != 100*1024*1024 {
		t.Errorf("Expected default cache size 100MB, got %d", cfg.CacheConfig.MaxSizeBytes)
	}
	if cfg.AnalyzerConfig.LowerTFChecks != 2 {
		t.Errorf("Expected default lower TF checks 2, got %d", cfg.AnalyzerConfig.LowerTFChecks)
	}
	if cfg.LoggingConfig.Level != "info" {
		t.Errorf("Expected default log level info, got %q", cfg.LoggingConfig.Level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.json"))
	if _, err := Load(); err == nil {
		t.Fatal("Expected an error for a missing config file")
	}
}

func TestValidateFailures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no symbols", func(c *Config) { c.Symbols = nil }},
		{"no timeframes", func(c *Config) { c.Timeframes = nil }},
		{"no min size", func(c *Config) { c.FVGConfig.MinSize = nil }},
		{"missing default min size", func(c *Config) {
			c.FVGConfig.MinSize = map[string]float64{"metals": 0.5}
		}},
		{"non-positive min size", func(c *Config) {
			c.FVGConfig.MinSize["default"] = 0
		}},
		{"unknown timeframe", func(c *Config) {
			c.Timeframes["H2"] = TimeframeConfig{MaxLookback: 100}
		}},
		{"non-positive lookback", func(c *Config) {
			c.Timeframes["H1"] = TimeframeConfig{MaxLookback: 0}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{
				Symbols:    map[string][]string{"forex": {"EURUSD"}},
				Timeframes: map[string]TimeframeConfig{"H1": {MaxLookback: 300}},
				FVGConfig:  FVGConfig{MinSize: map[string]float64{"default": 0.0001}},
			}
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected a validation error")
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	writeConfig(t, validConfig)
	t.Setenv("BROKER_BASE_URL", "http://override:9000")
	t.Setenv("TELEGRAM_BOT_TOKEN", "token-from-env")
	t.Setenv("BROKER_MOCK_MODE", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.BrokerConfig.BaseURL != "http://override:9000" {
		t.Errorf("Expected env override for base URL, got %q", cfg.BrokerConfig.BaseURL)
	}
	if cfg.NotificationConfig.Telegram.BotToken != "token-from-env" {
		t.Errorf("Expected env override for bot token, got %q", cfg.NotificationConfig.Telegram.BotToken)
	}
	if !cfg.BrokerConfig.MockMode {
		t.Error("Expected mock mode enabled via env")
	}
}

func TestOrderedTimeframes(t *testing.T) {
	cfg := &Config{
		Timeframes: map[string]TimeframeConfig{
			"M15": {MaxLookback: 100},
			"D1":  {MaxLookback: 100},
			"H4":  {MaxLookback: 100},
			"MN1": {MaxLookback: 100},
		},
	}

	got := cfg.OrderedTimeframes()
	want := []string{"MN1", "D1", "H4", "M15"}
	if len(got) != len(want) {
		t.Fatalf("Expected %d timeframes, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestWatchlistSymbols(t *testing.T) {
	cfg := &Config{
		Symbols: map[string][]string{
			"metals": {"XAUUSD"},
			"forex":  {"EURUSD", "GBPUSD"},
		},
		SymbolSuffix: ".r",
	}

	got := cfg.WatchlistSymbols()
	want := []string{"EURUSD.r", "GBPUSD.r", "XAUUSD.r"}
	if len(got) != len(want) {
		t.Fatalf("Expected %d symbols, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestMaxLookbackFallback(t *testing.T) {
	cfg := &Config{Timeframes: map[string]TimeframeConfig{"H1": {MaxLookback: 300}}}
	if got := cfg.MaxLookback("H1"); got != 300 {
		t.Errorf("Expected configured lookback 300, got %d", got)
	}
	if got := cfg.MaxLookback("M5"); got != 100 {
		t.Errorf("Expected fallback lookback 100, got %d", got)
	}
}
