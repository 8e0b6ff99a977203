// Package broker talks to the broker bridge that fronts the trading
// terminal. The bridge exposes candle history and ticks over REST and an
// optional websocket tick stream.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"fvg-alert-bot/internal/circuit"
	"fvg-alert-bot/internal/market"
)

// RatesSource is the market-data dependency consumed by the analyzer.
type RatesSource interface {
	// GetRates returns up to count bars for symbol on timeframe, ordered by
	// strictly increasing time, newest last.
	GetRates(ctx context.Context, symbol string, timeframe market.Timeframe, count int) ([]market.Candle, error)
	LatestTick(ctx context.Context, symbol string) (market.Tick, error)
	SymbolInfo(ctx context.Context, symbol string) (market.SymbolInfo, error)
}

// Client is a REST client for the broker bridge. Every call carries the
// configured request timeout and is retried a bounded number of times with a
// fixed backoff before the error is surfaced to the caller.
type Client struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	breaker    *circuit.Breaker
	logger     zerolog.Logger
}

// Config holds the client settings.
type Config struct {
	BaseURL    string
	APIToken   string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
}

// NewClient creates a broker bridge client.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 5 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiToken:   cfg.APIToken,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff,
		breaker:    circuit.NewBreaker(circuit.DefaultConfig(), logger),
		logger:     logger.With().Str("component", "broker").Logger(),
	}
}

// rate is the wire format for a single bar.
type rate struct {
	Time  int64   `json:"time"` // epoch seconds of the bar open
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

type tickResponse struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Time   int64   `json:"time"`
}

type symbolInfoResponse struct {
	Name  string  `json:"name"`
	Point float64 `json:"point"`
}

// GetRates fetches candle history for a symbol and timeframe.
func (c *Client) GetRates(ctx context.Context, symbol string, timeframe market.Timeframe, count int) ([]market.Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("timeframe", timeframe.String())
	params.Set("count", strconv.Itoa(count))

	var rates []rate
	endpoint := fmt.Sprintf("%s/api/v1/rates?%s", c.baseURL, params.Encode())
	if err := c.getJSON(ctx, endpoint, &rates); err != nil {
		return nil, fmt.Errorf("fetching rates for %s %s: %w", symbol, timeframe, err)
	}

	candles := make([]market.Candle, len(rates))
	for i, r := range rates {
		candles[i] = market.Candle{
			Open:  r.Open,
			High:  r.High,
			Low:   r.Low,
			Close: r.Close,
			Time:  time.Unix(r.Time, 0).UTC(),
		}
	}

	// The bridge is expected to return bars oldest-first, but enforce the
	// ordering contract rather than trusting it.
	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Time.Before(candles[j].Time)
	})
	return candles, nil
}

// LatestTick fetches the most recent quote for a symbol.
func (c *Client) LatestTick(ctx context.Context, symbol string) (market.Tick, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var resp tickResponse
	endpoint := fmt.Sprintf("%s/api/v1/tick?%s", c.baseURL, params.Encode())
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return market.Tick{}, fmt.Errorf("fetching tick for %s: %w", symbol, err)
	}

	return market.Tick{
		Symbol: resp.Symbol,
		Bid:    resp.Bid,
		Ask:    resp.Ask,
		Time:   time.Unix(resp.Time, 0).UTC(),
	}, nil
}

// SymbolInfo fetches symbol metadata.
func (c *Client) SymbolInfo(ctx context.Context, symbol string) (market.SymbolInfo, error) {
	var resp symbolInfoResponse
	endpoint := fmt.Sprintf("%s/api/v1/symbols/%s", c.baseURL, url.PathEscape(symbol))
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return market.SymbolInfo{}, fmt.Errorf("fetching symbol info for %s: %w", symbol, err)
	}
	return market.SymbolInfo{Name: resp.Name, Point: resp.Point}, nil
}

// getJSON performs a GET with retries and decodes the JSON response into out.
// The circuit breaker counts the whole call as one outcome, so transient
// errors absorbed by a retry never trip it.
func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	if err := c.breaker.Allow(); err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff):
			}
		}

		lastErr = c.doGet(ctx, endpoint, out)
		if lastErr == nil {
			c.breaker.RecordSuccess()
			return nil
		}
		c.logger.Warn().Err(lastErr).Int("attempt", attempt).Int("max_retries", c.maxRetries).Msg("broker request failed")
	}

	c.breaker.RecordFailure()
	return fmt.Errorf("after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *Client) doGet(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bridge returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}
