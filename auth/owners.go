package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/canvas/dbopen"
	"github.com/hazyhaar/canvas/idgen"
)

// OwnersSchema creates the owners table.
const OwnersSchema = `
CREATE TABLE IF NOT EXISTS owners (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	display_name  TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL DEFAULT '',
	provider      TEXT NOT NULL DEFAULT 'local',
	provider_id   TEXT NOT NULL DEFAULT '',
	created_at    INTEGER NOT NULL
);
`

// MinPasswordLen is the shortest accepted password.
const MinPasswordLen = 8

var (
	ErrInvalidCredentials = errors.New("auth: invalid email or password")
	ErrOwnerExists        = errors.New("auth: owner already exists")
	ErrWeakPassword       = fmt.Errorf("auth: password must be at least %d characters", MinPasswordLen)
	ErrInvalidEmail       = errors.New("auth: invalid email")
)

// Owner is an account that can create and own sessions.
type Owner struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Provider    string `json:"provider"`
	CreatedAt   int64  `json:"createdAt"`
}

// Owners stores owner accounts.
type Owners struct {
	DB    *sql.DB
	newID idgen.Generator
	cost  int
}

// NewOwners wraps a database that has OwnersSchema applied.
func NewOwners(db *sql.DB) *Owners {
	return &Owners{DB: db, newID: idgen.Prefixed("usr_", idgen.NanoID(16)), cost: bcrypt.DefaultCost}
}

// WithCost returns a copy using the given bcrypt cost. Tests use
// bcrypt.MinCost.
func (o *Owners) WithCost(cost int) *Owners {
	c := *o
	c.cost = cost
	return &c
}

// Add creates a local owner with a bcrypt password hash.
func (o *Owners) Add(ctx context.Context, email, displayName, password string) (*Owner, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < MinPasswordLen {
		return nil, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), o.cost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}
	ow := &Owner{ID: o.newID(), Email: email, DisplayName: strings.TrimSpace(displayName), Provider: "local", CreatedAt: time.Now().UnixMilli()}
	if err := o.insert(ctx, ow, string(hash), ""); err != nil {
		return nil, err
	}
	return ow, nil
}

// Authenticate checks a local owner's password.
func (o *Owners) Authenticate(ctx context.Context, email, password string) (*Owner, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	row := o.DB.QueryRowContext(ctx,
		`SELECT id, email, display_name, provider, created_at, password_hash
		FROM owners WHERE email = ?`, email)
	var ow Owner
	var hash string
	err = row.Scan(&ow.ID, &ow.Email, &ow.DisplayName, &ow.Provider, &ow.CreatedAt, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("auth: lookup owner: %w", err)
	}
	if hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return &ow, nil
}

// UpsertOAuth returns the owner linked to an OAuth identity, creating it
// on first login. An existing local account with the same email is
// reused.
func (o *Owners) UpsertOAuth(ctx context.Context, provider string, u *OAuthUser) (*Owner, error) {
	email, err := normalizeEmail(u.Email)
	if err != nil {
		return nil, err
	}
	existing, err := o.getBy(ctx, "email", email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	ow := &Owner{ID: o.newID(), Email: email, DisplayName: u.Name, Provider: provider, CreatedAt: time.Now().UnixMilli()}
	if err := o.insert(ctx, ow, "", u.ProviderUserID); err != nil {
		return nil, err
	}
	return ow, nil
}

// Get returns the owner with id, or nil.
func (o *Owners) Get(ctx context.Context, id string) (*Owner, error) {
	return o.getBy(ctx, "id", id)
}

// List returns every owner, oldest first.
func (o *Owners) List(ctx context.Context) ([]*Owner, error) {
	rows, err := o.DB.QueryContext(ctx,
		`SELECT id, email, display_name, provider, created_at FROM owners ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("auth: list owners: %w", err)
	}
	defer rows.Close()
	var out []*Owner
	for rows.Next() {
		var ow Owner
		if err := rows.Scan(&ow.ID, &ow.Email, &ow.DisplayName, &ow.Provider, &ow.CreatedAt); err != nil {
			return nil, fmt.Errorf("auth: scan owner: %w", err)
		}
		out = append(out, &ow)
	}
	return out, rows.Err()
}

// Count returns the number of owners.
func (o *Owners) Count(ctx context.Context) (int, error) {
	var n int
	err := o.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM owners`).Scan(&n)
	return n, err
}

func (o *Owners) getBy(ctx context.Context, column, value string) (*Owner, error) {
	q := `SELECT id, email, display_name, provider, created_at FROM owners WHERE id = ?`
	if column == "email" {
		q = `SELECT id, email, display_name, provider, created_at FROM owners WHERE email = ?`
	}
	var ow Owner
	err := o.DB.QueryRowContext(ctx, q, value).Scan(&ow.ID, &ow.Email, &ow.DisplayName, &ow.Provider, &ow.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("auth: get owner: %w", err)
	}
	return &ow, nil
}

func (o *Owners) insert(ctx context.Context, ow *Owner, hash, providerID string) error {
	_, err := dbopen.Exec(ctx, o.DB,
		`INSERT INTO owners (id, email, display_name, password_hash, provider, provider_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ow.ID, ow.Email, ow.DisplayName, hash, ow.Provider, providerID, ow.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s", ErrOwnerExists, ow.Email)
		}
		return fmt.Errorf("auth: insert owner: %w", err)
	}
	return nil
}

func normalizeEmail(s string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(s))
	if err != nil || addr.Name != "" {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(addr.Address), nil
}
