// Package telegram pushes the headline digest to a Telegram chat.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/deusflow/hknews/internal/logger"
	"github.com/deusflow/hknews/internal/metrics"
	"github.com/deusflow/hknews/internal/retry"
)

const (
	DefaultBaseURL = "https://api.telegram.org"

	// Telegram caption max ~1024 chars; keep some slack for entities
	maxCaption = 1000
	maxMessage = 4000
)

type Client struct {
	baseURL    string
	token      string
	chatID     string
	httpClient *http.Client
	retry      retry.RetryConfig
}

type Option func(*Client)

// WithBaseURL points the client at another Bot API host.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

func WithRetry(cfg retry.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

func New(token, chatID string, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		token:      token,
		chatID:     chatID,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retry:      retry.RetryConfig{Retries: 2, Delay: 2 * time.Second, Backoff: true},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendMessage sends an HTML message without link previews.
func (c *Client) SendMessage(ctx context.Context, text string) error {
	if len([]rune(text)) > maxMessage {
		text = string([]rune(text)[:maxMessage])
	}
	return c.send(ctx, "sendMessage", map[string]interface{}{
		"chat_id":                  c.chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	})
}

// SendPhoto sends a photo with an HTML caption.
func (c *Client) SendPhoto(ctx context.Context, photoURL, caption string) error {
	if len([]rune(caption)) > maxCaption {
		caption = string([]rune(caption)[:maxCaption])
	}
	return c.send(ctx, "sendPhoto", map[string]interface{}{
		"chat_id":    c.chatID,
		"photo":      photoURL,
		"caption":    caption,
		"parse_mode": "HTML",
	})
}

func (c *Client) send(ctx context.Context, method string, payload map[string]interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", method, err)
	}

	attempt := 0
	err = retry.WithRetry(ctx, c.retry, func() error {
		attempt++
		err := c.sendOnce(ctx, method, body)
		if err != nil {
			logger.Warn("telegram send failed", "method", method, "attempt", attempt, "error", err)
		}
		return err
	})
	if err != nil {
		return err
	}
	metrics.Global.IncrementTelegramMessagesSent()
	logger.Info("sent to telegram", "method", method, "attempt", attempt)
	return nil
}

func (c *Client) sendOnce(ctx context.Context, method string, body []byte) error {
	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			logger.Warn("failed to close response body", "error", err)
		}
	}(resp.Body)

	if resp.StatusCode == http.StatusOK {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err = fmt.Errorf("telegram API error: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	// bad token, chat or markup will not fix itself
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return retry.Permanent(err)
	}
	return err
}
