package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"fvg-alert-bot/config"
	"fvg-alert-bot/internal/alertcache"
	"fvg-alert-bot/internal/analyzer"
	"fvg-alert-bot/internal/broker"
	"fvg-alert-bot/internal/market"
	"fvg-alert-bot/internal/notification"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := newLogger(cfg.LoggingConfig)
	logger.Info().Msg("Configuration loaded")

	// Notification channels behind the message-prefix rate limiter.
	limiter := notification.NewRateLimiter(time.Duration(cfg.AlertConfig.RateLimitSeconds) * time.Second)
	notifyManager := notification.NewManager(limiter, cfg.NotificationConfig.Enabled, logger)
	if cfg.NotificationConfig.Telegram.Enabled {
		notifyManager.AddNotifier(notification.NewTelegramNotifier(
			cfg.NotificationConfig.Telegram.BotToken,
			cfg.NotificationConfig.Telegram.ChatID,
			cfg.NotificationConfig.Telegram.Enabled,
		))
		logger.Info().Msg("Telegram notifications enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Market data source: live bridge or mock, optionally fronted by the
	// websocket tick stream for fresher prices.
	var source broker.RatesSource
	if cfg.BrokerConfig.MockMode {
		logger.Warn().Msg("Broker mock mode enabled, serving canned data")
		source = broker.NewMockClient()
	} else {
		client := broker.NewClient(broker.Config{
			BaseURL:    cfg.BrokerConfig.BaseURL,
			APIToken:   cfg.BrokerConfig.APIToken,
			Timeout:    cfg.BrokerConfig.Timeout(),
			MaxRetries: cfg.BrokerConfig.MaxRetries,
			Backoff:    cfg.BrokerConfig.Backoff(),
		}, logger)
		source = client

		if cfg.BrokerConfig.TickStreamURL != "" {
			stream := broker.NewTickStream(cfg.BrokerConfig.TickStreamURL, cfg.WatchlistSymbols(), logger)
			go stream.Run(ctx)
			source = broker.NewStreamingSource(client, stream)
			logger.Info().Str("url", cfg.BrokerConfig.TickStreamURL).Msg("Tick stream enabled")
		}
	}

	clockSymbol := cfg.BrokerConfig.ClockSymbol + cfg.SymbolSuffix
	timeSync := market.NewTimeSync(source, clockSymbol, logger)
	if err := timeSync.ComputeOffset(ctx); err != nil {
		logger.Warn().Err(err).Msg("Broker time offset unavailable, falling back to local clock")
	}

	brokerNow := func() time.Time { return timeSync.Now(context.Background()) }
	alerts := newAlertCache(cfg.CacheConfig, brokerNow, logger)
	defer alerts.Close()

	a, err := analyzer.New(cfg, source, timeSync, alerts, notifyManager, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build analyzer")
	}

	logger.Info().
		Int("symbols", len(cfg.WatchlistSymbols())).
		Strs("timeframes", cfg.OrderedTimeframes()).
		Int("cycle_interval_s", cfg.AnalyzerConfig.CycleInterval).
		Msg("Starting analysis loop")

	a.Run(ctx)
	logger.Info().Msg("Shutdown complete")
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.JSONFormat {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Logger()
}

// newAlertCache picks Redis when configured, otherwise the file store.
func newAlertCache(cfg config.CacheConfig, now func() time.Time, logger zerolog.Logger) alertcache.Cache {
	if cfg.RedisAddr != "" {
		return alertcache.NewRedisCache(cfg.RedisAddr, cfg.RedisDB, now, logger)
	}

	fc, err := alertcache.NewFileCache(cfg.Dir, cfg.MaxSizeBytes, now, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.Dir).Msg("Failed to initialize alert cache")
	}
	return fc
}
