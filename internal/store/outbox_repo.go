package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/BTreeMap/HelpLine/internal/models"
)

// OutboxStatus is the lifecycle state of a pending escalation.
type OutboxStatus string

const (
	OutboxStatusQueued    OutboxStatus = "queued"
	OutboxStatusSending   OutboxStatus = "sending"
	OutboxStatusDelivered OutboxStatus = "delivered"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// PendingEscalation is a ticket draft filed under a provisional protocol.
type PendingEscalation struct {
	ID            string       `json:"id"`
	Protocol      string       `json:"protocol"`
	PayloadJSON   string       `json:"payload_json"`
	Status        OutboxStatus `json:"status"`
	Attempts      int          `json:"attempts"`
	NextAttemptAt *time.Time   `json:"next_attempt_at"`
	LockedAt      *time.Time   `json:"locked_at"`
	LastError     string       `json:"last_error"`
	TicketID      string       `json:"ticket_id"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// Draft decodes the stored ticket draft.
func (p PendingEscalation) Draft() (models.TicketDraft, error) {
	var d models.TicketDraft
	if err := json.Unmarshal([]byte(p.PayloadJSON), &d); err != nil {
		return d, fmt.Errorf("decode draft for %s: %w", p.Protocol, err)
	}
	return d, nil
}

// Outbox is the durable queue of provisional escalations.
type Outbox interface {
	// Enqueue stores draft under protocol. Enqueuing a protocol that is
	// already stored returns the existing ID.
	Enqueue(protocol string, draft models.TicketDraft) (string, error)

	// ClaimDue marks up to limit queued entries whose next_attempt_at <= now
	// (or is NULL) as sending and returns them, oldest first.
	ClaimDue(now time.Time, limit int) ([]PendingEscalation, error)

	// MarkDelivered records the ticket created for an entry.
	MarkDelivered(id, ticketID string) error

	// Fail records a delivery failure. A nil nextAttemptAt marks the entry
	// failed for good; otherwise it is queued again for that time.
	Fail(id, errMsg string, nextAttemptAt *time.Time) error

	// RequeueStale resets entries stuck in sending since before staleBefore.
	RequeueStale(staleBefore time.Time) (int, error)

	// List returns every entry, oldest first.
	List() ([]PendingEscalation, error)

	Close() error
}

func encodeDraft(draft models.TicketDraft) (string, error) {
	b, err := json.Marshal(draft)
	if err != nil {
		return "", fmt.Errorf("encode draft: %w", err)
	}
	return string(b), nil
}
