package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/HelpLine/internal/escalation"
	"github.com/BTreeMap/HelpLine/internal/models"
)

// Sender defaults
const (
	DefaultClaimLimit     = 10
	DefaultStaleThreshold = 5 * time.Minute
	DefaultMaxAttempts    = 8
	DefaultCallTimeout    = 15 * time.Second
)

// LinkFormat is appended to a ticket created from a provisional escalation.
const LinkFormat = "Protocolo provisorio %s registrado como %s."

// ErrBackendNotConfigured is returned when no ticket backend is available.
var ErrBackendNotConfigured = errors.New("ticket backend not configured")

// SenderOption configures an OutboxSender.
type SenderOption func(*OutboxSender)

// WithSenderClock overrides the time source.
func WithSenderClock(now func() time.Time) SenderOption {
	return func(s *OutboxSender) {
		s.clock = now
	}
}

// WithMaxAttempts sets how many failures an entry survives before it is marked failed.
func WithMaxAttempts(n int) SenderOption {
	return func(s *OutboxSender) {
		s.maxAttempts = n
	}
}

// WithCallTimeout bounds the backend calls made for one entry.
func WithCallTimeout(d time.Duration) SenderOption {
	return func(s *OutboxSender) {
		s.callTimeout = d
	}
}

// OutboxSender files queued provisional escalations with the ticket service.
type OutboxSender struct {
	repo     Outbox
	identity escalation.IdentityService
	tickets  escalation.TicketService

	clock          func() time.Time
	staleThreshold time.Duration
	claimLimit     int
	maxAttempts    int
	callTimeout    time.Duration
}

// NewOutboxSender creates a sender over repo and the backend services.
func NewOutboxSender(repo Outbox, identity escalation.IdentityService, tickets escalation.TicketService, opts ...SenderOption) *OutboxSender {
	s := &OutboxSender{
		repo:           repo,
		identity:       identity,
		tickets:        tickets,
		clock:          time.Now,
		staleThreshold: DefaultStaleThreshold,
		claimLimit:     DefaultClaimLimit,
		maxAttempts:    DefaultMaxAttempts,
		callTimeout:    DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecoverStale requeues entries stuck in sending after a crash. Call it once at startup.
func (s *OutboxSender) RecoverStale() error {
	n, err := s.repo.RequeueStale(s.clock().Add(-s.staleThreshold))
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("OutboxSender.RecoverStale: requeued stale entries", "count", n)
	}
	return nil
}

// Poll delivers the entries that are due and returns how many were delivered.
func (s *OutboxSender) Poll(ctx context.Context) int {
	now := s.clock()
	entries, err := s.repo.ClaimDue(now, s.claimLimit)
	if err != nil {
		slog.Error("OutboxSender.Poll: claim failed", "error", err)
		return 0
	}

	delivered := 0
	for _, p := range entries {
		ticketID, err := s.deliver(ctx, p)
		if err != nil {
			s.fail(p, now, err)
			continue
		}
		if err := s.repo.MarkDelivered(p.ID, ticketID); err != nil {
			slog.Error("OutboxSender.Poll: mark delivered error", "id", p.ID, "error", err)
			continue
		}
		delivered++
		slog.Info("OutboxSender.Poll: provisional escalation delivered", "protocol", p.Protocol, "ticket_id", ticketID)
	}
	return delivered
}

func (s *OutboxSender) fail(p PendingEscalation, now time.Time, err error) {
	var next *time.Time
	if p.Attempts+1 < s.maxAttempts {
		// Exponential backoff: 10s, 20s, 40s, ...
		t := now.Add(time.Duration(10*(1<<p.Attempts)) * time.Second)
		next = &t
		slog.Warn("OutboxSender.Poll: delivery failed, will retry", "protocol", p.Protocol, "attempt", p.Attempts+1, "next_attempt_at", t, "error", err)
	} else {
		slog.Error("OutboxSender.Poll: delivery failed, giving up", "protocol", p.Protocol, "attempts", p.Attempts+1, "error", err)
	}
	if ferr := s.repo.Fail(p.ID, err.Error(), next); ferr != nil {
		slog.Error("OutboxSender.Poll: fail entry error", "id", p.ID, "error", ferr)
	}
}

func (s *OutboxSender) deliver(ctx context.Context, p PendingEscalation) (string, error) {
	if s.identity == nil || s.tickets == nil {
		return "", ErrBackendNotConfigured
	}
	draft, err := p.Draft()
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	if draft.RequesterID == "" {
		user, err := s.identity.CurrentUser(ctx)
		if err != nil {
			return "", fmt.Errorf("identity lookup: %w", err)
		}
		draft.RequesterID = user.UserID
	}

	created, err := s.tickets.CreateTicket(ctx, draft.Request())
	if err != nil {
		return "", fmt.Errorf("create ticket: %w", err)
	}
	ticketID := created.TicketID.String()
	protocol := created.Protocol.String()
	if protocol == "" {
		protocol = ticketID
	}
	if ticketID == "" {
		if protocol == "" {
			return "", escalation.ErrNoTicketReference
		}
		return ticketID, nil
	}

	link := models.TicketMessage{
		SenderType: models.TicketSenderSistema,
		Content:    fmt.Sprintf(LinkFormat, p.Protocol, protocol),
	}
	if err := s.tickets.AppendTicketMessage(ctx, ticketID, link); err != nil {
		slog.Warn("OutboxSender.deliver: link message failed", "ticket_id", ticketID, "error", err)
		return ticketID, nil
	}
	escalation.SyncMessages(ctx, s.tickets, ticketID, protocol, draft.RequesterID, draft)
	return ticketID, nil
}
