package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/BTreeMap/HelpLine/internal/models"
)

var _ Outbox = (*MemoryStore)(nil)

// MemoryStore is an Outbox that lives for the lifetime of the process.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*PendingEscalation
	order   []string
}

// NewMemoryStore creates an empty in-memory outbox.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*PendingEscalation)}
}

func (s *MemoryStore) Enqueue(protocol string, draft models.TicketDraft) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.order {
		if s.entries[id].Protocol == protocol {
			return id, nil
		}
	}
	payload, err := encodeDraft(draft)
	if err != nil {
		return "", err
	}
	now := time.Now()
	p := &PendingEscalation{
		ID:          newEntryID(),
		Protocol:    protocol,
		PayloadJSON: payload,
		Status:      OutboxStatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.entries[p.ID] = p
	s.order = append(s.order, p.ID)
	return p.ID, nil
}

func (s *MemoryStore) ClaimDue(now time.Time, limit int) ([]PendingEscalation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []PendingEscalation
	for _, id := range s.order {
		if len(out) >= limit {
			break
		}
		p := s.entries[id]
		if p.Status != OutboxStatusQueued || (p.NextAttemptAt != nil && p.NextAttemptAt.After(now)) {
			continue
		}
		locked := now
		p.Status = OutboxStatusSending
		p.LockedAt = &locked
		p.UpdatedAt = now
		out = append(out, *p)
	}
	return out, nil
}

func (s *MemoryStore) MarkDelivered(id, ticketID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("pending escalation %s not found", id)
	}
	p.Status = OutboxStatusDelivered
	p.TicketID = ticketID
	p.LockedAt = nil
	p.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) Fail(id, errMsg string, nextAttemptAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("pending escalation %s not found", id)
	}
	p.Attempts++
	p.LastError = errMsg
	p.LockedAt = nil
	p.UpdatedAt = time.Now()
	if nextAttemptAt == nil {
		p.Status = OutboxStatusFailed
		p.NextAttemptAt = nil
		return nil
	}
	next := *nextAttemptAt
	p.Status = OutboxStatusQueued
	p.NextAttemptAt = &next
	return nil
}

func (s *MemoryStore) RequeueStale(staleBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.entries {
		if p.Status == OutboxStatusSending && p.LockedAt != nil && p.LockedAt.Before(staleBefore) {
			p.Status = OutboxStatusQueued
			p.LockedAt = nil
			p.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) List() ([]PendingEscalation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PendingEscalation, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.entries[id])
	}
	return out, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
