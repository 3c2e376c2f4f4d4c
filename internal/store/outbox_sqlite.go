package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/HelpLine/internal/models"
)

var _ Outbox = (*SQLiteStore)(nil)

func (s *SQLiteStore) Enqueue(protocol string, draft models.TicketDraft) (string, error) {
	var existingID string
	err := s.db.QueryRow(`SELECT id FROM pending_escalations WHERE protocol = ?`, protocol).Scan(&existingID)
	if err == nil {
		slog.Debug("SQLiteStore.Enqueue: protocol already queued", "protocol", protocol, "id", existingID)
		return existingID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("outbox protocol check failed: %w", err)
	}

	payload, err := encodeDraft(draft)
	if err != nil {
		return "", err
	}
	id := newEntryID()
	now := time.Now().UTC()
	_, err = s.db.Exec(
		`INSERT INTO pending_escalations (id, protocol, payload_json, status, attempts, created_at, updated_at)
		 VALUES (?, ?, ?, 'queued', 0, ?, ?)`,
		id, protocol, payload, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("enqueue pending escalation failed: %w", err)
	}
	slog.Debug("SQLiteStore.Enqueue", "id", id, "protocol", protocol)
	return id, nil
}

func (s *SQLiteStore) ClaimDue(now time.Time, limit int) ([]PendingEscalation, error) {
	now = now.UTC()
	rows, err := s.db.Query(
		`SELECT `+pendingColumns+` FROM pending_escalations
		 WHERE status = 'queued' AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
		 ORDER BY created_at ASC LIMIT ?`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due pending escalations failed: %w", err)
	}
	entries, err := collectPending(rows)
	if err != nil {
		return nil, err
	}

	for i := range entries {
		_, err := s.db.Exec(
			`UPDATE pending_escalations SET status = 'sending', locked_at = ?, updated_at = ? WHERE id = ?`,
			now, now, entries[i].ID,
		)
		if err != nil {
			return nil, fmt.Errorf("mark pending escalation sending failed: %w", err)
		}
		entries[i].Status = OutboxStatusSending
		locked := now
		entries[i].LockedAt = &locked
	}
	return entries, nil
}

func (s *SQLiteStore) MarkDelivered(id, ticketID string) error {
	_, err := s.db.Exec(
		`UPDATE pending_escalations SET status = 'delivered', ticket_id = ?, locked_at = NULL, updated_at = ? WHERE id = ?`,
		nilIfEmpty(ticketID), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("mark pending escalation delivered failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Fail(id, errMsg string, nextAttemptAt *time.Time) error {
	now := time.Now().UTC()
	var err error
	if nextAttemptAt == nil {
		_, err = s.db.Exec(
			`UPDATE pending_escalations SET status = 'failed', attempts = attempts + 1, last_error = ?, next_attempt_at = NULL, locked_at = NULL, updated_at = ? WHERE id = ?`,
			errMsg, now, id,
		)
	} else {
		_, err = s.db.Exec(
			`UPDATE pending_escalations SET status = 'queued', attempts = attempts + 1, last_error = ?, next_attempt_at = ?, locked_at = NULL, updated_at = ? WHERE id = ?`,
			errMsg, nextAttemptAt.UTC(), now, id,
		)
	}
	if err != nil {
		return fmt.Errorf("fail pending escalation failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RequeueStale(staleBefore time.Time) (int, error) {
	result, err := s.db.Exec(
		`UPDATE pending_escalations SET status = 'queued', locked_at = NULL, updated_at = ? WHERE status = 'sending' AND locked_at < ?`,
		time.Now().UTC(), staleBefore.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale pending escalations failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		slog.Info("SQLiteStore.RequeueStale", "requeued", n)
	}
	return int(n), nil
}

func (s *SQLiteStore) List() ([]PendingEscalation, error) {
	rows, err := s.db.Query(`SELECT ` + pendingColumns + ` FROM pending_escalations ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list pending escalations failed: %w", err)
	}
	return collectPending(rows)
}
