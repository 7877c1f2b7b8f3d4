package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/use-agent/popharvest/config"
)

// SignatureHeader carries the HMAC-SHA256 of the request body.
const SignatureHeader = "X-Popharvest-Signature"

// Event types.
const (
	EventPopulationCompleted = "population.completed"
	EventPopulationFailed    = "population.failed"
)

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string `json:"type"`
	JobID     string `json:"job_id"`
	URL       string `json:"url"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// Client delivers events with retries. 429 and 5xx responses and
// transport errors are retried with exponential backoff starting at
// InitialBackoff and capped at MaxBackoff.
type Client struct {
	http *resty.Client
	cfg  config.WebhookConfig
}

// New creates a webhook client.
func New(cfg config.WebhookConfig) *Client {
	c := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(cfg.InitialBackoff).
		SetRetryMaxWaitTime(cfg.MaxBackoff).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "Popharvest-Webhook/1.0").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		})
	return &Client{http: c, cfg: cfg}
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a "sha256=<hex>" signature header value.
func Verify(secret string, body []byte, header string) bool {
	want := "sha256=" + Sign(secret, body)
	return hmac.Equal([]byte(want), []byte(header))
}

// Deliver sends an event and waits for the final attempt.
// The body is signed when secret is non-empty.
func (c *Client) Deliver(ctx context.Context, url, secret string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req := c.http.R().SetContext(ctx).SetBody(body)
	if secret != "" {
		req.SetHeader(SignatureHeader, "sha256="+Sign(secret, body))
	}

	resp, err := req.Post(url)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode())
	}
	return nil
}

// DeliverAsync sends an event in the background and logs the outcome.
func (c *Client) DeliverAsync(url, secret string, event *Event) {
	go func() {
		budget := c.cfg.Timeout*time.Duration(c.cfg.MaxRetries+1) + c.cfg.MaxBackoff*time.Duration(c.cfg.MaxRetries)
		ctx, cancel := context.WithTimeout(context.Background(), budget)
		defer cancel()

		if err := c.Deliver(ctx, url, secret, event); err != nil {
			slog.Error("webhook delivery failed",
				"url", url,
				"event", event.Type,
				"job_id", event.JobID,
				"error", err,
			)
			return
		}
		slog.Info("webhook delivered",
			"url", url,
			"event", event.Type,
			"job_id", event.JobID,
		)
	}()
}
