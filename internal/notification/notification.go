// Package notification delivers alert messages to external channels.
package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// AlertType classifies what kind of setup an alert describes.
type AlertType string

const (
	AlertSameTF2CR    AlertType = "same_tf_2cr"
	AlertLowerTF2CR   AlertType = "lower_tf_2cr"
	AlertReentry      AlertType = "reentry"
	AlertPotential2CR AlertType = "potential_2cr"
)

// Alert is one message bound for the notification channels.
type Alert struct {
	Type      AlertType
	Symbol    string
	Timeframe string
	Title     string
	Message   string
	Timestamp time.Time
}

// Notifier is a single delivery channel.
type Notifier interface {
	Send(alert *Alert) error
	Name() string
	IsEnabled() bool
}

// Manager fans one alert out to every enabled channel, after passing the
// rate limiter. Send returns nil only when delivery either succeeded on at
// least one channel or was intentionally suppressed, so callers can gate
// dedup-cache commits on it.
type Manager struct {
	notifiers []Notifier
	limiter   *RateLimiter
	enabled   bool
	logger    zerolog.Logger
}

// NewManager creates a Manager with the given rate limiter.
func NewManager(limiter *RateLimiter, enabled bool, logger zerolog.Logger) *Manager {
	return &Manager{
		notifiers: make([]Notifier, 0),
		limiter:   limiter,
		enabled:   enabled,
		logger:    logger.With().Str("component", "notification").Logger(),
	}
}

// AddNotifier registers a delivery channel.
func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Send delivers the alert to all enabled channels. Rate-limited duplicates
// are dropped silently apart from a debug log.
func (m *Manager) Send(alert *Alert) error {
	if !m.enabled {
		return nil
	}

	if m.limiter != nil && !m.limiter.Allow(alert.Message) {
		m.logger.Debug().Str("symbol", alert.Symbol).Str("type", string(alert.Type)).Msg("Alert suppressed by rate limiter")
		return nil
	}

	delivered := false
	var lastErr error
	for _, n := range m.notifiers {
		if !n.IsEnabled() {
			continue
		}
		if err := n.Send(alert); err != nil {
			m.logger.Error().Err(err).Str("channel", n.Name()).Str("symbol", alert.Symbol).Msg("Alert delivery failed")
			lastErr = err
			continue
		}
		delivered = true
	}

	if delivered || lastErr == nil {
		return nil
	}
	return lastErr
}

// TelegramNotifier sends alerts via the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	enabled  bool
	client   *http.Client
}

// NewTelegramNotifier creates a Telegram notifier. It disables itself when
// credentials are missing.
func NewTelegramNotifier(botToken, chatID string, enabled bool) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		enabled:  enabled && botToken != "" && chatID != "",
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Name() string {
	return "telegram"
}

func (t *TelegramNotifier) IsEnabled() bool {
	return t.enabled
}

func (t *TelegramNotifier) Send(alert *Alert) error {
	if !t.enabled {
		return nil
	}

	message := alert.Message
	if alert.Title != "" {
		message = fmt.Sprintf("*%s*\n\n%s", alert.Title, alert.Message)
	}

	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       message,
		"parse_mode": "Markdown",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)
	resp, err := t.client.Post(url, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}
	return nil
}
