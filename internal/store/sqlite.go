// Package store archives completed sessions and review queue snapshots in
// SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/thorwhalen/pacing/internal/models"
)

// ErrNotFound is returned when a session is not in the archive.
var ErrNotFound = errors.New("session not found")

// SessionRecord is an archived session header.
type SessionRecord struct {
	SessionID   string     `json:"sessionId"`
	PatientID   string     `json:"patientId"`
	ClinicianID string     `json:"clinicianId"`
	SessionType string     `json:"sessionType"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     *time.Time `json:"endTime,omitempty"`
	ArchivedAt  time.Time  `json:"archivedAt"`
	EventCount  int        `json:"eventCount"`
}

// SQLiteStore implements session.Archiver using SQLite.
type SQLiteStore struct {
	db *sql.DB

	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// newID mints an event id. Events sharing a millisecond get increasing ids.
func (s *SQLiteStore) newID(t time.Time) string {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id           TEXT PRIMARY KEY,
		patient_id   TEXT NOT NULL,
		clinician_id TEXT NOT NULL,
		session_type TEXT NOT NULL,
		start_time   TEXT NOT NULL,
		end_time     TEXT,
		archived_at  TEXT NOT NULL,
		event_count  INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_start ON sessions(start_time DESC);

	CREATE TABLE IF NOT EXISTS transcript_events (
		id         TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		seq        INTEGER NOT NULL,
		text       TEXT NOT NULL,
		ts         TEXT NOT NULL,
		confidence REAL NOT NULL,
		speaker_id TEXT,
		is_partial INTEGER NOT NULL DEFAULT 0
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_events_session_seq ON transcript_events(session_id, seq);

	CREATE TABLE IF NOT EXISTS review_items (
		id             TEXT PRIMARY KEY,
		session_id     TEXT,
		event          TEXT NOT NULL,
		flagged_at     TEXT NOT NULL,
		reason         TEXT NOT NULL,
		priority       INTEGER NOT NULL,
		reviewed       INTEGER NOT NULL DEFAULT 0,
		reviewer_notes TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_review_priority ON review_items(reviewed, priority DESC, flagged_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Archive stores a completed session and its transcript. Archiving the same
// session again replaces the earlier copy.
func (s *SQLiteStore) Archive(ctx context.Context, sc models.SessionContext, events []models.TranscriptionEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sc.SessionID); err != nil {
		return fmt.Errorf("replace session: %w", err)
	}

	var endTime *string
	if sc.EndTime != nil {
		v := sc.EndTime.UTC().Format(time.RFC3339Nano)
		endTime = &v
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, patient_id, clinician_id, session_type, start_time, end_time, archived_at, event_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.SessionID, sc.PatientID, sc.ClinicianID, sc.SessionType,
		sc.StartTime.UTC().Format(time.RFC3339Nano), endTime,
		time.Now().UTC().Format(time.RFC3339Nano), len(events),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO transcript_events (id, session_id, seq, text, ts, confidence, speaker_id, is_partial)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare events: %w", err)
	}
	defer stmt.Close()

	for i, ev := range events {
		_, err := stmt.ExecContext(ctx,
			s.newID(ev.Timestamp), sc.SessionID, i, ev.Text,
			ev.Timestamp.UTC().Format(time.RFC3339Nano), ev.Confidence,
			nullString(ev.SpeakerID), boolInt(ev.IsPartial),
		)
		if err != nil {
			return fmt.Errorf("insert event %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// ListSessions returns archived sessions, newest first.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, patient_id, clinician_id, session_type, start_time, end_time, archived_at, event_count
		 FROM sessions ORDER BY start_time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var (
			rec             SessionRecord
			start, archived string
			end             sql.NullString
		)
		if err := rows.Scan(&rec.SessionID, &rec.PatientID, &rec.ClinicianID, &rec.SessionType,
			&start, &end, &archived, &rec.EventCount); err != nil {
			return nil, err
		}
		rec.StartTime, _ = time.Parse(time.RFC3339Nano, start)
		rec.ArchivedAt, _ = time.Parse(time.RFC3339Nano, archived)
		if end.Valid {
			t, _ := time.Parse(time.RFC3339Nano, end.String)
			rec.EndTime = &t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Transcript returns the archived events of a session in order.
func (s *SQLiteStore) Transcript(ctx context.Context, sessionID string) ([]models.TranscriptionEvent, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE id = ?`, sessionID).Scan(&n); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT text, ts, confidence, speaker_id, is_partial
		 FROM transcript_events WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close()

	out := []models.TranscriptionEvent{}
	for rows.Next() {
		var (
			ev      models.TranscriptionEvent
			ts      string
			speaker sql.NullString
			partial int
		)
		if err := rows.Scan(&ev.Text, &ts, &ev.Confidence, &speaker, &partial); err != nil {
			return nil, err
		}
		ev.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		ev.SpeakerID = speaker.String
		ev.IsPartial = partial != 0
		out = append(out, ev)
	}
	return out, rows.Err()
}

// SaveReviewItems upserts a snapshot of the review queue.
func (s *SQLiteStore) SaveReviewItems(ctx context.Context, sessionID string, items []models.ReviewItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO review_items (id, session_id, event, flagged_at, reason, priority, reviewed, reviewer_notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET reviewed = excluded.reviewed, reviewer_notes = excluded.reviewer_notes`)
	if err != nil {
		return fmt.Errorf("prepare review items: %w", err)
	}
	defer stmt.Close()

	for _, item := range items {
		event, err := json.Marshal(item.Event)
		if err != nil {
			return fmt.Errorf("marshal review item %s: %w", item.ID, err)
		}
		_, err = stmt.ExecContext(ctx,
			item.ID, nullString(sessionID), string(event),
			item.FlaggedAt.UTC().Format(time.RFC3339Nano), item.Reason, item.Priority,
			boolInt(item.Reviewed), nullString(item.ReviewerNotes),
		)
		if err != nil {
			return fmt.Errorf("upsert review item %s: %w", item.ID, err)
		}
	}
	return tx.Commit()
}

// ListReviewItems returns stored review items, most urgent first. With
// unreviewedOnly set, reviewed items are skipped.
func (s *SQLiteStore) ListReviewItems(ctx context.Context, unreviewedOnly bool) ([]models.ReviewItem, error) {
	query := `SELECT id, event, flagged_at, reason, priority, reviewed, reviewer_notes FROM review_items`
	if unreviewedOnly {
		query += ` WHERE reviewed = 0`
	}
	query += ` ORDER BY priority DESC, flagged_at`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list review items: %w", err)
	}
	defer rows.Close()

	var out []models.ReviewItem
	for rows.Next() {
		var (
			item     models.ReviewItem
			event    string
			flagged  string
			reviewed int
			notes    sql.NullString
		)
		if err := rows.Scan(&item.ID, &event, &flagged, &item.Reason, &item.Priority, &reviewed, &notes); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(event), &item.Event); err != nil {
			return nil, fmt.Errorf("decode review item %s: %w", item.ID, err)
		}
		item.FlaggedAt, _ = time.Parse(time.RFC3339Nano, flagged)
		item.Reviewed = reviewed != 0
		item.ReviewerNotes = notes.String
		out = append(out, item)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
