package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the default event log backend.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("chmod db path: %w", err)
	}
	if err := ApplyMigrations(ctx, db); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) Append(ctx context.Context, events ...StoredEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin append tx: %v", ErrStoreUnavailable, err)
	}
	for _, ev := range events {
		recordedAt := ev.RecordedAt
		if recordedAt.IsZero() {
			recordedAt = time.Now().UTC()
		}
		_, err := tx.ExecContext(ctx, `
INSERT INTO stored_events(originator_id, originator_version, kind, payload, recorded_at)
VALUES (?, ?, ?, ?, ?)
`, ev.OriginatorID.String(), ev.OriginatorVersion, ev.Kind, string(ev.Payload), ts(recordedAt))
		if err != nil {
			tx.Rollback() //nolint:errcheck
			if isUniqueErr(err) {
				return fmt.Errorf("%w: %s@%d", ErrVersionConflict, ev.OriginatorID, ev.OriginatorVersion)
			}
			return fmt.Errorf("insert stored event: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit append tx: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *SQLiteStore) Read(ctx context.Context, originatorID uuid.UUID, fromVersion, toVersion int64) ([]StoredEvent, error) {
	if fromVersion < 1 {
		fromVersion = 1
	}
	query := `
SELECT originator_id, originator_version, kind, payload, recorded_at
FROM stored_events
WHERE originator_id = ? AND originator_version >= ?`
	args := []any{originatorID.String(), fromVersion}
	if toVersion > 0 {
		query += ` AND originator_version <= ?`
		args = append(args, toVersion)
	}
	query += ` ORDER BY originator_version ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stored events: %w", err)
	}
	defer rows.Close()

	out := make([]StoredEvent, 0)
	for rows.Next() {
		ev, err := scanStoredEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iter stored events: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) MaxVersion(ctx context.Context, originatorID uuid.UUID) (int64, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
SELECT MAX(originator_version)
FROM stored_events
WHERE originator_id = ?
`, originatorID.String()).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("query max version: %w", err)
	}
	if !max.Valid {
		return 0, nil
	}
	return max.Int64, nil
}

func (s *SQLiteStore) PutSnapshot(ctx context.Context, snap Snapshot) error {
	recordedAt := snap.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO snapshots(originator_id, originator_version, state, recorded_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(originator_id, originator_version) DO UPDATE SET
	state=excluded.state,
	recorded_at=excluded.recorded_at
`, snap.OriginatorID.String(), snap.OriginatorVersion, string(snap.State), ts(recordedAt))
	if err != nil {
		return fmt.Errorf("put snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LatestSnapshot(ctx context.Context, originatorID uuid.UUID, atOrBelow int64) (Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT originator_id, originator_version, state, recorded_at
FROM snapshots
WHERE originator_id = ? AND originator_version <= ?
ORDER BY originator_version DESC
LIMIT 1
`, originatorID.String(), atOrBelow)

	var (
		snap       Snapshot
		id         string
		state      string
		recordedAt string
	)
	if err := row.Scan(&id, &snap.OriginatorVersion, &state, &recordedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, fmt.Errorf("scan snapshot: %w", err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Snapshot{}, fmt.Errorf("parse snapshot originator_id: %w", err)
	}
	snap.OriginatorID = parsed
	snap.State = json.RawMessage(state)
	snap.RecordedAt, err = parseTS(recordedAt)
	if err != nil {
		return Snapshot{}, fmt.Errorf("parse snapshot recorded_at: %w", err)
	}
	return snap, nil
}

func scanStoredEvent(scanner interface{ Scan(dest ...any) error }) (StoredEvent, error) {
	var (
		ev         StoredEvent
		id         string
		payload    string
		recordedAt string
	)
	if err := scanner.Scan(&id, &ev.OriginatorVersion, &ev.Kind, &payload, &recordedAt); err != nil {
		return StoredEvent{}, fmt.Errorf("scan stored event: %w", err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return StoredEvent{}, fmt.Errorf("parse originator_id: %w", err)
	}
	ev.OriginatorID = parsed
	ev.Payload = json.RawMessage(payload)
	ev.RecordedAt, err = parseTS(recordedAt)
	if err != nil {
		return StoredEvent{}, fmt.Errorf("parse recorded_at: %w", err)
	}
	return ev, nil
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTS(v string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, v)
}

func isUniqueErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: stored_events")
}
