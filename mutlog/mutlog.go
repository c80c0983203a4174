// Package mutlog is the durable, append-only mutation log. One row per
// published mutation, keyed by session and ordered by an autoincrement
// sequence number. The log is the sole write path for live edits; it is
// not replayed to late joiners, who start from the session snapshot.
package mutlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/canvas/dbopen"
	"github.com/hazyhaar/canvas/mutation"
)

// Schema creates the mutations table. Rows reference page_sessions and
// disappear with their session; an append for a deleted session fails.
const Schema = `
CREATE TABLE IF NOT EXISTS mutations (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL REFERENCES page_sessions(id) ON DELETE CASCADE,
	actor_id   TEXT NOT NULL,
	user_id    TEXT NOT NULL DEFAULT '',
	type       TEXT NOT NULL,
	payload    TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_mutations_session_seq ON mutations(session_id, seq);
CREATE INDEX IF NOT EXISTS idx_mutations_created ON mutations(created_at);
`

// ErrNoSession is returned when appending to a session that does not exist.
var ErrNoSession = errors.New("mutlog: session does not exist")

// Entry is one stored mutation.
type Entry struct {
	Seq       int64             `json:"seq"`
	SessionID string            `json:"sessionId"`
	UserID    string            `json:"userId,omitempty"`
	Mutation  mutation.Mutation `json:"mutation"`
	CreatedAt int64             `json:"createdAt"`
}

// Store reads and appends mutations.
type Store struct {
	DB *sql.DB
}

// NewStore wraps an opened database that has Schema applied.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

// Append stores m for sessionID as a single-row insert and returns the
// entry with its sequence number. userID is the signed-in user, if any.
func (s *Store) Append(ctx context.Context, sessionID, userID string, m mutation.Mutation) (Entry, error) {
	payload, err := mutation.Encode(m)
	if err != nil {
		return Entry{}, fmt.Errorf("mutlog: encode: %w", err)
	}
	now := time.Now().UnixMilli()
	res, err := dbopen.Exec(ctx, s.DB,
		`INSERT INTO mutations (session_id, actor_id, user_id, type, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, m.ActorID, userID, string(m.Type), string(payload), now)
	if err != nil {
		if dbopen.IsForeignKey(err) {
			return Entry{}, fmt.Errorf("%w: %s", ErrNoSession, sessionID)
		}
		return Entry{}, fmt.Errorf("mutlog: append: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return Entry{}, fmt.Errorf("mutlog: last insert id: %w", err)
	}
	return Entry{Seq: seq, SessionID: sessionID, UserID: userID, Mutation: m, CreatedAt: now}, nil
}

// Since returns up to limit entries of sessionID with seq > after, in log
// order. limit <= 0 means no limit.
func (s *Store) Since(ctx context.Context, sessionID string, after int64, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT seq, session_id, user_id, payload, created_at
		FROM mutations WHERE session_id = ? AND seq > ?
		ORDER BY seq LIMIT ?`, sessionID, after, limit)
	if err != nil {
		return nil, fmt.Errorf("mutlog: since: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Head returns the highest sequence number stored for sessionID, or 0.
func (s *Store) Head(ctx context.Context, sessionID string) (int64, error) {
	var seq int64
	err := s.DB.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM mutations WHERE session_id = ?`, sessionID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("mutlog: head: %w", err)
	}
	return seq, nil
}

// Count returns the number of stored mutations for sessionID.
func (s *Store) Count(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM mutations WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("mutlog: count: %w", err)
	}
	return n, nil
}

// Prune deletes entries older than before and returns how many were
// removed. Snapshots carry the state, so old entries are only history.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := dbopen.Exec(ctx, s.DB, `DELETE FROM mutations WHERE created_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("mutlog: prune: %w", err)
	}
	return res.RowsAffected()
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var e Entry
	var payload string
	if err := rows.Scan(&e.Seq, &e.SessionID, &e.UserID, &payload, &e.CreatedAt); err != nil {
		return Entry{}, fmt.Errorf("mutlog: scan: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), &e.Mutation); err != nil {
		return Entry{}, fmt.Errorf("mutlog: decode seq %d: %w", e.Seq, err)
	}
	return e, nil
}
