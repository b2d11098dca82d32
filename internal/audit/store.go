// Package audit keeps a local archive of inbound webhook events and their
// outcomes. Operators use it to reconcile events the pipeline had to drop
// (unknown entities, malformed references) without digging through logs.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Event is one recorded webhook delivery.
type Event struct {
	ID            string
	TransactionID string
	State         string
	AmountPaise   int64
	Outcome       string
	Payload       string
	ReceivedAt    time.Time
}

// Store is a SQLite-backed webhook event archive.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New opens the archive database, creating the file and schema if needed.
func New(ctx context.Context, databasePath string, filesystem fs.FS, logger *slog.Logger) (*Store, error) {
	path := strings.TrimSpace(databasePath)
	if path == "" {
		return nil, fmt.Errorf("audit database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure audit dir: %w", err)
	}

	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn = fmt.Sprintf("%s%s_pragma=busy_timeout=10000&_pragma=journal_mode=WAL", dsn, sep)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping audit db: %w", err)
	}

	schema, err := fs.ReadFile(filesystem, "sqlite/001_audit.sql")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("read audit schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, string(schema)); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply audit schema: %w", err)
	}

	return &Store{
		db:     db,
		logger: logger.With("component", "audit"),
	}, nil
}

// Close releases the database connection.
func (s *Store) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

// Record archives a webhook event with its processing outcome.
func (s *Store) Record(ctx context.Context, evt Event) error {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.ReceivedAt.IsZero() {
		evt.ReceivedAt = time.Now()
	}
	const q = `
INSERT INTO webhook_events (id, transaction_id, state, amount_paise, outcome, payload, received_at)
VALUES (?, ?, ?, ?, ?, ?, ?);
`
	_, err := s.db.ExecContext(ctx, q,
		evt.ID,
		evt.TransactionID,
		evt.State,
		evt.AmountPaise,
		evt.Outcome,
		evt.Payload,
		evt.ReceivedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record webhook event: %w", err)
	}
	return nil
}

// ListRecent returns the most recently received events.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT id, transaction_id, state, amount_paise, outcome, payload, received_at
FROM webhook_events
ORDER BY received_at DESC
LIMIT ?;
`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list webhook events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var evt Event
		if err := rows.Scan(&evt.ID, &evt.TransactionID, &evt.State, &evt.AmountPaise, &evt.Outcome, &evt.Payload, &evt.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan webhook event: %w", err)
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate webhook events: %w", err)
	}
	return events, nil
}
