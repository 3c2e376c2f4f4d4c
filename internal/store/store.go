// Package store keeps provisional escalations until the ticket service accepts them.
//
// Backends are in-memory, SQLite and PostgreSQL. Only ticket drafts are
// stored; triage sessions are never persisted.
package store

import (
	"log/slog"
	"strings"
)

// Driver names returned by DetectDSNType.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Opts holds store configuration.
type Opts struct {
	DSN string
}

// Option configures a store.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType returns DriverPostgres for URL or key/value Postgres
// connection strings and DriverSQLite for anything else.
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return DriverPostgres
	case strings.Contains(lower, "host=") || strings.Contains(lower, "dbname="):
		return DriverPostgres
	default:
		return DriverSQLite
	}
}

// Open returns the outbox for dsn. An empty DSN selects the in-memory store.
func Open(dsn string) (Outbox, error) {
	if strings.TrimSpace(dsn) == "" {
		slog.Info("store.Open: using in-memory outbox")
		return NewMemoryStore(), nil
	}
	if DetectDSNType(dsn) == DriverPostgres {
		slog.Info("store.Open: using Postgres outbox")
		return NewPostgresStore(WithPostgresDSN(dsn))
	}
	slog.Info("store.Open: using SQLite outbox", "path", dsn)
	return NewSQLiteStore(WithSQLiteDSN(dsn))
}
