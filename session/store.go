package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/canvas/dbopen"
	"github.com/hazyhaar/canvas/layout"
)

// Schema creates the page_sessions table. Apply it before mutlog.Schema,
// which references it.
const Schema = `
CREATE TABLE IF NOT EXISTS page_sessions (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	owner_id   TEXT NOT NULL,
	layout     TEXT NOT NULL DEFAULT '[]',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_page_sessions_owner ON page_sessions(owner_id, created_at DESC);
`

// Session is one collaborative page with its last saved layout.
type Session struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	OwnerID   string        `json:"ownerId"`
	Layout    layout.Layout `json:"layout"`
	CreatedAt int64         `json:"createdAt"`
	UpdatedAt int64         `json:"updatedAt"`
}

// Summary is a Session without its layout, for listings.
type Summary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	OwnerID   string `json:"ownerId"`
	Nodes     int    `json:"nodes"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

// Store persists sessions.
type Store struct {
	DB *sql.DB
}

// NewStore wraps an opened database that has Schema applied.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

// Insert adds s. CreatedAt and UpdatedAt default to now.
func (st *Store) Insert(ctx context.Context, s *Session) error {
	now := time.Now().UnixMilli()
	if s.CreatedAt == 0 {
		s.CreatedAt = now
	}
	if s.UpdatedAt == 0 {
		s.UpdatedAt = now
	}
	if s.Layout == nil {
		s.Layout = layout.Layout{}
	}
	data, err := json.Marshal(s.Layout)
	if err != nil {
		return fmt.Errorf("session: encode layout: %w", err)
	}
	_, err = dbopen.Exec(ctx, st.DB,
		`INSERT INTO page_sessions (id, name, owner_id, layout, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.Name, s.OwnerID, string(data), s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("session: insert: %w", err)
	}
	return nil
}

// Get returns the session with id, or nil if there is none.
func (st *Store) Get(ctx context.Context, id string) (*Session, error) {
	row := st.DB.QueryRowContext(ctx,
		`SELECT id, name, owner_id, layout, created_at, updated_at
		FROM page_sessions WHERE id = ?`, id)
	return scanSession(row)
}

// ListByOwner returns the sessions of ownerID, newest first.
func (st *Store) ListByOwner(ctx context.Context, ownerID string) ([]Summary, error) {
	rows, err := st.DB.QueryContext(ctx,
		`SELECT id, name, owner_id, json_array_length(layout), created_at, updated_at
		FROM page_sessions WHERE owner_id = ?
		ORDER BY created_at DESC, rowid DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("session: list: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ID, &s.Name, &s.OwnerID, &s.Nodes, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("session: scan summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpdateLayout overwrites the stored layout. It reports whether a row was
// updated.
func (st *Store) UpdateLayout(ctx context.Context, id string, l layout.Layout) (bool, error) {
	if l == nil {
		l = layout.Layout{}
	}
	data, err := json.Marshal(l)
	if err != nil {
		return false, fmt.Errorf("session: encode layout: %w", err)
	}
	res, err := dbopen.Exec(ctx, st.DB,
		`UPDATE page_sessions SET layout = ?, updated_at = ? WHERE id = ?`,
		string(data), time.Now().UnixMilli(), id)
	if err != nil {
		return false, fmt.Errorf("session: update layout: %w", err)
	}
	return affected(res)
}

// Rename sets the session name. It reports whether a row was updated.
func (st *Store) Rename(ctx context.Context, id, name string) (bool, error) {
	res, err := dbopen.Exec(ctx, st.DB,
		`UPDATE page_sessions SET name = ?, updated_at = ? WHERE id = ?`,
		name, time.Now().UnixMilli(), id)
	if err != nil {
		return false, fmt.Errorf("session: rename: %w", err)
	}
	return affected(res)
}

// Delete removes the session; its mutation log goes with it.
func (st *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := dbopen.Exec(ctx, st.DB, `DELETE FROM page_sessions WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("session: delete: %w", err)
	}
	return affected(res)
}

// Count returns the number of stored sessions.
func (st *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := st.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM page_sessions`).Scan(&n)
	return n, err
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("session: rows affected: %w", err)
	}
	return n > 0, nil
}

func scanSession(row *sql.Row) (*Session, error) {
	var s Session
	var data string
	err := row.Scan(&s.ID, &s.Name, &s.OwnerID, &data, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: scan: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &s.Layout); err != nil {
		return nil, fmt.Errorf("session: decode layout of %s: %w", s.ID, err)
	}
	if s.Layout == nil {
		s.Layout = layout.Layout{}
	}
	return &s, nil
}
