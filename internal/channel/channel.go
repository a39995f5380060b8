// Package channel delivers outbound replies to citizens. Delivery never
// returns an error: failures come back in the Result so the caller can record
// them on the message row.
package channel

import (
	"context"

	"github.com/spec-kit/ombudsman-service/internal/domain"
)

// ErrNotConfigured is reported for channels without an outbound transport.
const ErrNotConfigured = "channel not configured for outbound"

// Result is the delivery outcome for one message.
type Result struct {
	OK    bool
	Error string
}

// Sender delivers text to the citizen behind a case.
type Sender interface {
	Send(ctx context.Context, c *domain.Case, text string) Result
}

// Router picks the sender registered for the case's channel.
type Router struct {
	senders map[domain.Channel]Sender
}

// NewRouter builds an empty router.
func NewRouter() *Router {
	return &Router{senders: map[domain.Channel]Sender{}}
}

// Register binds a sender to a channel.
func (r *Router) Register(ch domain.Channel, s Sender) *Router {
	r.senders[ch] = s
	return r
}

// Send delegates to the channel's sender.
func (r *Router) Send(ctx context.Context, c *domain.Case, text string) Result {
	s, ok := r.senders[c.Channel]
	if !ok || s == nil {
		return Result{Error: ErrNotConfigured}
	}
	return s.Send(ctx, c, text)
}
