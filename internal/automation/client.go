// Package automation talks to the external workflow engine. Outbound events
// are signed with HMAC-SHA256 in the x-n8n-signature header; inbound results
// must carry the same header.
package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/ombudsman-service/pkg/util/hmacutil"
)

// SignatureHeader carries the hex HMAC of the raw body.
const SignatureHeader = "x-n8n-signature"

// Event is the envelope posted to the automation endpoint.
type Event struct {
	EventType string    `json:"event_type"`
	Payload   any       `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// Client posts events to the automation endpoint.
type Client struct {
	http     *resty.Client
	endpoint string
	secret   string
	logger   *zap.Logger
	now      func() time.Time
}

// NewClient builds a client. An empty endpoint disables delivery.
func NewClient(endpoint, secret string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		http: resty.New().
			SetTimeout(timeout).
			SetRetryCount(0).
			SetHeader("Content-Type", "application/json"),
		endpoint: endpoint,
		secret:   secret,
		logger:   logger,
		now:      time.Now,
	}
}

// Enabled reports whether an endpoint is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.endpoint != ""
}

// Notify posts one event. Callers treat errors as non-fatal.
func (c *Client) Notify(ctx context.Context, eventType string, payload any) error {
	if !c.Enabled() {
		return nil
	}
	body, err := json.Marshal(Event{EventType: eventType, Payload: payload, CreatedAt: c.now().UTC()})
	if err != nil {
		return fmt.Errorf("encode automation event: %w", err)
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader(SignatureHeader, hmacutil.Sign(c.secret, body)).
		SetBody(body).
		Post(c.endpoint)
	if err != nil {
		return fmt.Errorf("post automation event: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("automation endpoint returned %d", resp.StatusCode())
	}
	c.logger.Debug("automation event delivered", zap.String("event_type", eventType))
	return nil
}

// Verify checks an inbound request signed by the automation engine.
func (c *Client) Verify(body []byte, signature string) bool {
	return hmacutil.Verify(c.secret, body, signature)
}
