package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store persists received events and per-app liveness state.
type Store struct {
	db *sql.DB
}

// Open opens the store at the given SQLite path.
func Open(path string) (*Store, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertBatch stores a bulk payload's events in one transaction. Each event
// gets a time-sortable UUID v7 identifier. payloadSeq is the connector's
// payload counter, kept for traceability back to the sending process.
func (s *Store) InsertBatch(ctx context.Context, appID string, payloadSeq int64, events []string) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert batch: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()

	if err := ensureApp(ctx, tx, appID, now); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (id, app_id, body, payload_seq, received_at) VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, body := range events {
		id := uuid.Must(uuid.NewV7()).String()
		if _, err := stmt.ExecContext(ctx, id, appID, body, payloadSeq, now); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert batch: %w", err)
	}
	return nil
}

// TouchHeartbeat records a heartbeat for the app, creating the app row on
// first contact.
func (s *Store) TouchHeartbeat(ctx context.Context, appID string) error {
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO apps (app_id, first_seen_at, last_heartbeat_at)
		VALUES (?, ?, ?)
		ON CONFLICT(app_id) DO UPDATE SET last_heartbeat_at = excluded.last_heartbeat_at`,
		appID, now, now,
	)
	if err != nil {
		return fmt.Errorf("touch heartbeat: %w", err)
	}
	return nil
}

// MarkAcked records the final acknowledgment for the app.
func (s *Store) MarkAcked(ctx context.Context, appID string) error {
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO apps (app_id, first_seen_at, acked_at)
		VALUES (?, ?, ?)
		ON CONFLICT(app_id) DO UPDATE SET acked_at = excluded.acked_at`,
		appID, now, now,
	)
	if err != nil {
		return fmt.Errorf("mark acked: %w", err)
	}
	return nil
}

// CountEvents returns the number of stored events for the app.
func (s *Store) CountEvents(ctx context.Context, appID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE app_id = ?`, appID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// EventBodies returns the stored event bodies for the app in arrival order.
func (s *Store) EventBodies(ctx context.Context, appID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT body FROM events WHERE app_id = ? ORDER BY received_at ASC, id ASC`, appID,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, body)
	}
	return out, rows.Err()
}

// LastHeartbeat returns the last heartbeat time for the app in Unix
// milliseconds, or 0 when the app has never sent one.
func (s *Store) LastHeartbeat(ctx context.Context, appID string) (int64, error) {
	var ts int64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_heartbeat_at FROM apps WHERE app_id = ?`, appID,
	).Scan(&ts)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("last heartbeat: %w", err)
	}
	return ts, nil
}

// ensureApp creates the app row if it does not exist yet.
func ensureApp(ctx context.Context, tx *sql.Tx, appID string, now int64) error {
	_, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO apps (app_id, first_seen_at) VALUES (?, ?)`,
		appID, now,
	)
	if err != nil {
		return fmt.Errorf("ensure app: %w", err)
	}
	return nil
}
