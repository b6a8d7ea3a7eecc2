// Package store provides SQLite-backed persistence for the audit log.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/HeadyMe/heady-mcp-router/internal/models"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store provides access to the router's SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS audit_events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL,
		method TEXT NOT NULL,
		path TEXT NOT NULL,
		client_identity_present INTEGER NOT NULL DEFAULT 0,
		service TEXT,
		tool TEXT,
		outcome TEXT,
		details TEXT,
		timestamp TEXT NOT NULL,
		previous_hash TEXT NOT NULL,
		hash TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_events_type ON audit_events(type);
	CREATE INDEX IF NOT EXISTS idx_audit_events_service ON audit_events(service);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- Audit Operations ---

// AppendAuditEvent inserts ev. An empty ID is filled with a new UUID.
func (s *Store) AppendAuditEvent(ctx context.Context, ev *models.AuditEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_events (id, type, method, path, client_identity_present, service, tool, outcome, details, timestamp, previous_hash, hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, string(ev.Type), ev.Method, ev.Path, ev.ClientIdentityPresent, ev.Service, ev.Tool, ev.Outcome, ev.Details,
		ev.Timestamp.UTC().Format(time.RFC3339Nano), ev.PreviousHash, ev.Hash,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// LastAuditHash returns the hash of the newest event, or "" for an empty log.
func (s *Store) LastAuditHash(ctx context.Context) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `SELECT hash FROM audit_events ORDER BY seq DESC LIMIT 1`).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query last audit hash: %w", err)
	}
	return hash, nil
}

// ListAuditEvents returns the newest limit events in chronological order.
// A limit of 0 or less returns the whole log.
func (s *Store) ListAuditEvents(ctx context.Context, limit int) ([]models.AuditEvent, error) {
	query := `SELECT seq, id, type, method, path, client_identity_present, service, tool, outcome, details, timestamp, previous_hash, hash
		FROM audit_events ORDER BY seq ASC`
	args := []any{}
	if limit > 0 {
		query = `SELECT * FROM (
			SELECT seq, id, type, method, path, client_identity_present, service, tool, outcome, details, timestamp, previous_hash, hash
			FROM audit_events ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []models.AuditEvent
	for rows.Next() {
		var (
			ev                             models.AuditEvent
			seq                            int64
			typ, ts                        string
			service, tool, outcome, detail sql.NullString
		)
		if err := rows.Scan(&seq, &ev.ID, &typ, &ev.Method, &ev.Path, &ev.ClientIdentityPresent,
			&service, &tool, &outcome, &detail, &ts, &ev.PreviousHash, &ev.Hash); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		ev.Type = models.AuditEventType(typ)
		ev.Service = service.String
		ev.Tool = tool.String
		ev.Outcome = outcome.String
		ev.Details = detail.String
		ev.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse audit timestamp %q: %w", ts, err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// CountAuditEvents returns the number of stored events.
func (s *Store) CountAuditEvents(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit events: %w", err)
	}
	return n, nil
}
