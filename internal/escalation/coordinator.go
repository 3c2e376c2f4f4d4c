// Package escalation turns a triage session into a support ticket.
//
// The coordinator looks up the requester, creates the ticket and mirrors the
// conversation into the ticket thread. When the backend cannot be reached it
// falls back to a provisional protocol so the user always gets a reference.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/HelpLine/internal/flow"
	"github.com/BTreeMap/HelpLine/internal/models"
)

// DefaultTimeout bounds the identity, ticket and message calls of one escalation.
const DefaultTimeout = 15 * time.Second

// User-facing escalation notices.
const (
	ConfirmedFormat      = "Chamado encaminhado. Categoria: %s. Protocolo: %s. Aguarde atendimento aqui."
	ProvisionalFormat    = "Chamado encaminhado. Protocolo provisorio: %s."
	AfterHoursText       = "Fora do horario (08h-18h, seg a sex). Seu chamado sera atendido na proxima janela."
	ForwardedFormat      = "Encaminhado. Categoria: %s. Protocolo: %s."
	HistoryMessagePrefix = "Historico:\n"
)

// ErrNoTicketReference is returned when the ticket service answers without an id or protocol.
var ErrNoTicketReference = errors.New("ticket service returned no ticket reference")

// IdentityService resolves the authenticated requester.
type IdentityService interface {
	CurrentUser(ctx context.Context) (models.User, error)
}

// TicketService creates tickets and appends messages to their threads.
type TicketService interface {
	CreateTicket(ctx context.Context, req models.CreateTicketRequest) (models.CreatedTicket, error)
	AppendTicketMessage(ctx context.Context, ticketID string, msg models.TicketMessage) error
}

// DraftQueue keeps drafts of provisional escalations for later delivery.
type DraftQueue interface {
	Enqueue(protocol string, draft models.TicketDraft) (string, error)
}

// Result describes the outcome of one escalation.
type Result struct {
	TicketID     string
	Protocol     string
	CategoryName string
	Provisional  bool
	AfterHours   bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock overrides the time source used for business hours.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.clock = now
	}
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.timeout = d
	}
}

// WithBusinessHours sets the service window.
func WithBusinessHours(h BusinessHours) Option {
	return func(c *Coordinator) {
		c.hours = h
	}
}

// WithProtocolGenerator sets the provisional protocol generator.
func WithProtocolGenerator(g *ProtocolGenerator) Option {
	return func(c *Coordinator) {
		c.protocols = g
	}
}

// WithDraftQueue enables queueing of provisional escalations.
func WithDraftQueue(q DraftQueue) Option {
	return func(c *Coordinator) {
		c.queue = q
	}
}

// Coordinator files tickets for triage sessions.
type Coordinator struct {
	identity  IdentityService
	tickets   TicketService
	queue     DraftQueue
	protocols *ProtocolGenerator
	hours     BusinessHours
	clock     func() time.Time
	timeout   time.Duration
}

// NewCoordinator creates a coordinator over the identity and ticket services.
func NewCoordinator(identity IdentityService, tickets TicketService, opts ...Option) *Coordinator {
	c := &Coordinator{
		identity: identity,
		tickets:  tickets,
		hours:    DefaultBusinessHours(nil),
		clock:    time.Now,
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.protocols == nil {
		c.protocols = NewProtocolGenerator(c.clock)
	}
	slog.Debug("Coordinator.NewCoordinator: created", "timeout", c.timeout, "queue_set", c.queue != nil)
	return c
}

// Escalate files a ticket for the session. Backend failures never surface as
// errors: they yield a provisional protocol instead. The only errors are
// flow.ErrAlreadyEscalated and flow.ErrEscalationInFlight, returned without
// contacting any service.
func (c *Coordinator) Escalate(ctx context.Context, s *flow.Session) (Result, error) {
	snap, err := s.BeginEscalation()
	if err != nil {
		slog.Debug("Coordinator.Escalate: rejected", "error", err)
		return Result{}, err
	}

	categoryName := CategoryName(snap)
	draft := BuildDraft(snap, categoryName, LevelFor(categoryName))

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.file(callCtx, &draft)
	var notices []string
	if err != nil {
		protocol := c.protocols.Next()
		slog.Warn("Coordinator.Escalate: backend unavailable, using provisional protocol", "protocol", protocol, "error", err)
		res = Result{Protocol: protocol, CategoryName: categoryName, Provisional: true}
		if c.queue != nil {
			if id, qerr := c.queue.Enqueue(protocol, draft); qerr != nil {
				slog.Error("Coordinator.Escalate: failed to queue provisional draft", "protocol", protocol, "error", qerr)
			} else {
				slog.Info("Coordinator.Escalate: provisional draft queued", "protocol", protocol, "outbox_id", id)
			}
		}
		notices = append(notices, fmt.Sprintf(ProvisionalFormat, protocol))
	} else {
		notices = append(notices, fmt.Sprintf(ConfirmedFormat, categoryName, res.Protocol))
	}

	if !c.hours.Open(c.clock()) {
		res.AfterHours = true
		notices = append(notices, AfterHoursText)
	}

	s.CompleteEscalation(flow.EscalationOutcome{
		TicketID:    res.TicketID,
		Protocol:    res.Protocol,
		Provisional: res.Provisional,
	}, notices...)
	return res, nil
}

// file runs identity lookup, ticket creation and message sync in order.
func (c *Coordinator) file(ctx context.Context, draft *models.TicketDraft) (Result, error) {
	if c.identity == nil || c.tickets == nil {
		return Result{}, errors.New("ticket backend not configured")
	}
	user, err := c.identity.CurrentUser(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("identity lookup: %w", err)
	}
	draft.RequesterID = user.UserID

	created, err := c.tickets.CreateTicket(ctx, draft.Request())
	if err != nil {
		return Result{}, fmt.Errorf("create ticket: %w", err)
	}
	ticketID := created.TicketID.String()
	protocol := created.Protocol.String()
	if protocol == "" {
		protocol = ticketID
	}
	if ticketID == "" && protocol == "" {
		return Result{}, ErrNoTicketReference
	}
	slog.Info("Coordinator.file: ticket created", "ticket_id", ticketID, "protocol", protocol, "category", draft.CategoryName)

	if ticketID != "" {
		SyncMessages(ctx, c.tickets, ticketID, protocol, user.UserID, *draft)
	}
	return Result{TicketID: ticketID, Protocol: protocol, CategoryName: draft.CategoryName}, nil
}

// SyncMessages mirrors the conversation into the ticket thread. It is best
// effort: the first failure stops the sync and is only logged.
func SyncMessages(ctx context.Context, tickets TicketService, ticketID, protocol string, requester models.FlexID, draft models.TicketDraft) {
	var msgs []models.TicketMessage
	if draft.LastUserText != "" {
		uid := requester
		msgs = append(msgs, models.TicketMessage{
			SenderType:   models.TicketSenderUser,
			SenderUserID: &uid,
			Content:      draft.LastUserText,
		})
	}
	msgs = append(msgs,
		models.TicketMessage{
			SenderType: models.TicketSenderSistema,
			Content:    fmt.Sprintf(ForwardedFormat, draft.CategoryName, protocol),
		},
		models.TicketMessage{
			SenderType: models.TicketSenderSistema,
			Content:    HistoryMessagePrefix + truncate(draft.History, MaxDescriptionLength),
		},
	)

	for i, m := range msgs {
		if err := tickets.AppendTicketMessage(ctx, ticketID, m); err != nil {
			slog.Warn("Coordinator.SyncMessages: append failed, skipping remaining messages", "ticket_id", ticketID, "sent", i, "error", err)
			return
		}
	}
	slog.Debug("Coordinator.SyncMessages: thread synced", "ticket_id", ticketID, "messages", len(msgs))
}
