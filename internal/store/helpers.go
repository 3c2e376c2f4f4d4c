package store

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// nilIfEmpty returns nil for empty strings so nullable columns stay NULL.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func newEntryID() string {
	return "esc_" + uuid.NewString()
}

const pendingColumns = `id, protocol, payload_json, status, attempts, next_attempt_at, locked_at, last_error, ticket_id, created_at, updated_at`

// scanPending scans a PendingEscalation from sql.Rows.
func scanPending(rows *sql.Rows) (PendingEscalation, error) {
	var p PendingEscalation
	var lastError, ticketID sql.NullString
	var nextAttemptAt, lockedAt sql.NullTime
	err := rows.Scan(
		&p.ID, &p.Protocol, &p.PayloadJSON, &p.Status, &p.Attempts,
		&nextAttemptAt, &lockedAt, &lastError, &ticketID, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return p, fmt.Errorf("scan pending escalation failed: %w", err)
	}
	p.LastError = lastError.String
	p.TicketID = ticketID.String
	if nextAttemptAt.Valid {
		t := nextAttemptAt.Time
		p.NextAttemptAt = &t
	}
	if lockedAt.Valid {
		t := lockedAt.Time
		p.LockedAt = &t
	}
	return p, nil
}

func collectPending(rows *sql.Rows) ([]PendingEscalation, error) {
	defer rows.Close()
	var out []PendingEscalation
	for rows.Next() {
		p, err := scanPending(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pending escalation iteration failed: %w", err)
	}
	return out, nil
}
