// Package responder wraps the assistant-reply collaborator so that the triage
// session always gets text back, even when the collaborator fails.
package responder

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/HelpLine/internal/backend"
	"github.com/BTreeMap/HelpLine/internal/models"
)

// Fallback replies
const (
	ApologyText    = "Falha momentanea. Tente novamente em instantes."
	EmptyReplyText = "Certo! Me conte um pouco mais..."
)

// DefaultTimeout bounds a single reply.
const DefaultTimeout = 30 * time.Second

// Replier is the assistant-reply collaborator.
type Replier interface {
	Reply(ctx context.Context, messages []models.ChatMessage) (string, error)
}

// Option configures a Responder.
type Option func(*Responder)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Responder) {
		r.timeout = d
	}
}

// Responder adapts a Replier to the never-failing flow.Responder contract.
// Once the reply endpoint reports it does not exist, further calls return the
// apology without contacting it until Reset is called.
type Responder struct {
	replier Replier
	timeout time.Duration

	mu          sync.Mutex
	unavailable bool
}

// New creates a Responder around replier.
func New(replier Replier, opts ...Option) *Responder {
	r := &Responder{replier: replier, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Ask returns the assistant reply, the apology on failure, or a nudge for more
// detail when the reply is empty.
func (r *Responder) Ask(ctx context.Context, messages []models.ChatMessage) string {
	if r.replier == nil || r.Unavailable() {
		return ApologyText
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	reply, err := r.replier.Reply(ctx, messages)
	if err != nil {
		if errors.Is(err, backend.ErrEndpointUnavailable) {
			r.mu.Lock()
			r.unavailable = true
			r.mu.Unlock()
			slog.Warn("Responder.Ask: reply endpoint unavailable, disabling for this session", "error", err)
		} else {
			slog.Error("Responder.Ask: reply failed", "error", err)
		}
		return ApologyText
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return EmptyReplyText
	}
	return reply
}

// Reset clears the unavailable flag. Sessions call it when they start.
func (r *Responder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unavailable = false
}

// Unavailable reports whether the endpoint was found missing.
func (r *Responder) Unavailable() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unavailable
}
