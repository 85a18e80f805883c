// Package notify delivers chat alerts through an incoming webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lance13c/portalwatch/internal/logging"
)

const (
	DefaultAttempts = 3
	DefaultDelay    = 3 * time.Second
	requestTimeout  = 15 * time.Second
)

// Result is the outcome of one Send call.
type Result struct {
	Delivered bool
	Attempts  int
	LastErr   error
}

// Sender delivers a message and reports the outcome instead of failing.
type Sender interface {
	Send(ctx context.Context, message string) Result
}

// Webhook posts {"content": message} to a chat webhook URL.
type Webhook struct {
	url      string
	client   *http.Client
	attempts int
	delay    time.Duration
}

// Option configures a Webhook.
type Option func(*Webhook)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(w *Webhook) { w.client = c }
}

// WithAttempts sets the maximum number of delivery attempts.
func WithAttempts(n int) Option {
	return func(w *Webhook) {
		if n > 0 {
			w.attempts = n
		}
	}
}

// WithDelay sets the pause between failed attempts.
func WithDelay(d time.Duration) Option {
	return func(w *Webhook) {
		if d >= 0 {
			w.delay = d
		}
	}
}

// NewWebhook returns a webhook sender with 3 attempts and a 3s pause.
func NewWebhook(url string, opts ...Option) *Webhook {
	w := &Webhook{
		url:      url,
		client:   &http.Client{Timeout: requestTimeout},
		attempts: DefaultAttempts,
		delay:    DefaultDelay,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

type payload struct {
	Content string `json:"content"`
}

// Send tries to deliver message up to the configured number of attempts.
// It stops at the first success and never returns an error.
func (w *Webhook) Send(ctx context.Context, message string) Result {
	var res Result

	body, err := json.Marshal(payload{Content: message})
	if err != nil {
		res.LastErr = fmt.Errorf("failed to encode payload: %w", err)
		return res
	}

	op := func() error {
		res.Attempts++
		return w.post(ctx, body)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(w.delay), uint64(w.attempts-1)),
		ctx,
	)
	err = backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		logging.Warn("[NOTIFY] attempt %d/%d failed: %v (retrying in %v)", res.Attempts, w.attempts, err, wait)
	})
	if err != nil {
		res.LastErr = err
		logging.Error("[NOTIFY] delivery failed after %d attempt(s): %v", res.Attempts, err)
		return res
	}

	res.Delivered = true
	logging.Info("[NOTIFY] delivered on attempt %d", res.Attempts)
	return res
}

func (w *Webhook) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %s: %s", resp.Status, bytes.TrimSpace(snippet))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
