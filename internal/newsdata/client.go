// Package newsdata is the client for the newsdata.io "latest" endpoint.
package newsdata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/deusflow/hknews/internal/logger"
	"github.com/deusflow/hknews/internal/metrics"
	"github.com/deusflow/hknews/internal/news"
	"github.com/deusflow/hknews/internal/ratelimit"
	"github.com/deusflow/hknews/internal/retry"
)

const maxBodyBytes = 4 << 20

type Client struct {
	baseURL    string
	apiKey     string
	language   string
	httpClient *http.Client
	timeout    time.Duration
	limiter    *ratelimit.Limiter
	retry      retry.RetryConfig
}

type Option func(*Client)

// WithLimiter charges every request to l.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithRetry sets the retry budget. The default is a single attempt.
func WithRetry(cfg retry.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client. timeout bounds each attempt, not the whole call.
func New(baseURL, apiKey, language string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		language:   language,
		httpClient: &http.Client{},
		timeout:    timeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope is the response shape. On failure results holds an object with
// message and code instead of an article list.
type envelope struct {
	Status       string          `json:"status"`
	TotalResults int             `json:"totalResults"`
	Results      json.RawMessage `json:"results"`
	NextPage     json.RawMessage `json:"nextPage"`
	Message      string          `json:"message"`
}

type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Fetch runs q against the endpoint. A successful call with no articles
// returns an *Error of kind ErrEmptyResult.
func (c *Client) Fetch(ctx context.Context, q news.Query) (news.Payload, error) {
	reqURL, err := c.buildURL(q)
	if err != nil {
		return news.Payload{}, err
	}

	var payload news.Payload
	err = retry.WithRetry(ctx, c.retry, func() error {
		if err := c.wait(ctx); err != nil {
			return retry.Permanent(err)
		}

		p, err := c.fetchOnce(ctx, reqURL)
		if err != nil {
			var upErr *Error
			if errors.As(err, &upErr) && !upErr.retryable() {
				return retry.Permanent(err)
			}
			return err
		}
		payload = p
		return nil
	})
	if err != nil {
		metrics.Global.IncrementUpstreamFailures()
		return news.Payload{}, err
	}
	return payload, nil
}

// wait takes a slot from the limiter. Queuing counts against the attempt
// timeout, so a backed-up limiter fails the attempt instead of stalling it.
func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	waitCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	err := c.limiter.Wait(waitCtx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ratelimit.ErrQuotaExhausted):
		return &Error{Kind: ErrRateLimited, Cause: err}
	case ctx.Err() != nil:
		return err
	default:
		return &Error{Kind: ErrRateLimited, Message: "timed out waiting for a request slot", Cause: err}
	}
}

func (c *Client) buildURL(q news.Query) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	params := u.Query()
	params.Set("apikey", c.apiKey)
	if c.language != "" {
		params.Set("language", c.language)
	}
	if q.Category != "" {
		params.Set("category", q.Category)
	}
	if q.Country != "" {
		params.Set("country", q.Country)
	}
	if q.Keyword != "" {
		params.Set("q", q.Keyword)
	}
	if q.Cursor != "" {
		params.Set("page", q.Cursor)
	}
	u.RawQuery = params.Encode()
	return u.String(), nil
}

func (c *Client) fetchOnce(ctx context.Context, reqURL string) (news.Payload, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return news.Payload{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	metrics.Global.IncrementUpstreamRequests()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return news.Payload{}, &Error{Kind: ErrUpstream, Cause: err}
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			logger.Warn("failed to close response body", "error", err)
		}
	}(resp.Body)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return news.Payload{}, &Error{Kind: ErrUpstream, StatusCode: resp.StatusCode, Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return news.Payload{}, &Error{
			Kind:       classifyStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body),
		}
	}

	return decode(body)
}

func decode(body []byte) (news.Payload, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return news.Payload{}, &Error{Kind: ErrMalformedResponse, Cause: err}
	}

	if env.Status != "success" {
		var eb errorBody
		_ = json.Unmarshal(env.Results, &eb)
		msg := eb.Message
		if msg == "" {
			msg = env.Message
		}
		if env.Status == "" && msg == "" {
			return news.Payload{}, &Error{Kind: ErrMalformedResponse, Message: "missing status"}
		}
		return news.Payload{}, &Error{Kind: classifyCode(eb.Code), Message: msg}
	}

	var raw []json.RawMessage
	if len(env.Results) > 0 && !bytes.Equal(env.Results, []byte("null")) {
		if err := json.Unmarshal(env.Results, &raw); err != nil {
			return news.Payload{}, &Error{Kind: ErrMalformedResponse, Cause: err}
		}
	}
	if len(raw) == 0 {
		return news.Payload{}, &Error{Kind: ErrEmptyResult}
	}

	articles, lastErr := decodeArticles(raw)
	if len(articles) == 0 {
		return news.Payload{}, &Error{Kind: ErrMalformedResponse, Cause: lastErr}
	}
	return news.Payload{Articles: articles, NextCursor: cursor(env.NextPage)}, nil
}

// decodeArticles drops items that do not decode and returns the last
// decoding error seen.
func decodeArticles(raw []json.RawMessage) ([]news.Article, error) {
	articles := make([]news.Article, 0, len(raw))
	var lastErr error
	for i, item := range raw {
		var a news.Article
		if err := json.Unmarshal(item, &a); err != nil {
			logger.Warn("skipping undecodable article", "index", i, "error", err)
			lastErr = err
			continue
		}
		a.Clean()
		articles = append(articles, a)
	}
	return articles, lastErr
}

// cursor accepts nextPage as a string or a number.
func cursor(raw json.RawMessage) string {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func errorMessage(body []byte) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}
	var eb errorBody
	if err := json.Unmarshal(env.Results, &eb); err == nil && eb.Message != "" {
		return eb.Message
	}
	return env.Message
}
