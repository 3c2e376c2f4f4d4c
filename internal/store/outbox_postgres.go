package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/HelpLine/internal/models"
)

var _ Outbox = (*PostgresStore)(nil)

func (s *PostgresStore) Enqueue(protocol string, draft models.TicketDraft) (string, error) {
	var existingID string
	err := s.db.QueryRow(`SELECT id FROM pending_escalations WHERE protocol = $1`, protocol).Scan(&existingID)
	if err == nil {
		slog.Debug("PostgresStore.Enqueue: protocol already queued", "protocol", protocol, "id", existingID)
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
	now := time.Now()
	_, err = s.db.Exec(
		`INSERT INTO pending_escalations (id, protocol, payload_json, status, attempts, created_at, updated_at)
		 VALUES ($1, $2, $3, 'queued', 0, $4, $5)`,
		id, protocol, payload, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("enqueue pending escalation failed: %w", err)
	}
	slog.Debug("PostgresStore.Enqueue", "id", id, "protocol", protocol)
	return id, nil
}

func (s *PostgresStore) ClaimDue(now time.Time, limit int) ([]PendingEscalation, error) {
	rows, err := s.db.Query(
		`UPDATE pending_escalations SET status = 'sending', locked_at = $1, updated_at = $1
		 WHERE id IN (
		   SELECT id FROM pending_escalations WHERE status = 'queued' AND (next_attempt_at IS NULL OR next_attempt_at <= $1)
		   ORDER BY created_at ASC LIMIT $2
		   FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+pendingColumns,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due pending escalations failed: %w", err)
	}
	return collectPending(rows)
}

func (s *PostgresStore) MarkDelivered(id, ticketID string) error {
	_, err := s.db.Exec(
		`UPDATE pending_escalations SET status = 'delivered', ticket_id = $1, locked_at = NULL, updated_at = $2 WHERE id = $3`,
		nilIfEmpty(ticketID), time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("mark pending escalation delivered failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) Fail(id, errMsg string, nextAttemptAt *time.Time) error {
	status := OutboxStatusQueued
	if nextAttemptAt == nil {
		status = OutboxStatusFailed
	}
	_, err := s.db.Exec(
		`UPDATE pending_escalations SET status = $1, attempts = attempts + 1, last_error = $2, next_attempt_at = $3, locked_at = NULL, updated_at = $4 WHERE id = $5`,
		string(status), errMsg, nextAttemptAt, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("fail pending escalation failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) RequeueStale(staleBefore time.Time) (int, error) {
	result, err := s.db.Exec(
		`UPDATE pending_escalations SET status = 'queued', locked_at = NULL, updated_at = $1 WHERE status = 'sending' AND locked_at < $2`,
		time.Now(), staleBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale pending escalations failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		slog.Info("PostgresStore.RequeueStale", "requeued", n)
	}
	return int(n), nil
}

func (s *PostgresStore) List() ([]PendingEscalation, error) {
	rows, err := s.db.Query(`SELECT ` + pendingColumns + ` FROM pending_escalations ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list pending escalations failed: %w", err)
	}
	return collectPending(rows)
}
