// Package session manages the lifecycle of collaborative pages: creation,
// snapshot load and save, owner listing, debounced autosave and
// termination. The snapshot in page_sessions is the baseline a joining
// client starts from; live edits travel through the mutation channel.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/hazyhaar/canvas/idgen"
	"github.com/hazyhaar/canvas/layout"
	"github.com/hazyhaar/canvas/mutation"
	"github.com/hazyhaar/canvas/mutlog"
	"github.com/hazyhaar/canvas/observability"
	"github.com/hazyhaar/canvas/sanitize"
)

var (
	// ErrNotFound is returned for unknown or terminated sessions.
	ErrNotFound = errors.New("session: not found")
	// ErrForbidden is returned when a non-owner attempts an owner action.
	ErrForbidden = errors.New("session: owner only")
	// ErrInvalidInput is returned for empty owners or bad names.
	ErrInvalidInput = errors.New("session: invalid input")
)

// DefaultName is given to sessions created without a name.
const DefaultName = "Untitled page"

// MaxNameLen caps session names, in runes.
const MaxNameLen = 200

// Publisher broadcasts owner control mutations (RESET_LAYOUT,
// TERMINATE_SESSION) on a session's channel.
type Publisher interface {
	PublishControl(ctx context.Context, sessionID string, m mutation.Mutation) (mutlog.Entry, error)
}

// Manager implements the session operations on top of a Store.
type Manager struct {
	store  *Store
	pub    Publisher
	events *observability.EventLogger
	logger *slog.Logger
	newID  idgen.Generator
	actor  string
}

// Option configures a Manager.
type Option func(*Manager)

// WithPublisher sets the channel used for TERMINATE_SESSION and
// RESET_LAYOUT broadcasts. Without one, those broadcasts are skipped.
func WithPublisher(p Publisher) Option { return func(m *Manager) { m.pub = p } }

// WithEvents records lifecycle events.
func WithEvents(e *observability.EventLogger) Option { return func(m *Manager) { m.events = e } }

// WithLogger sets the manager logger.
func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.logger = l } }

// WithIDGenerator sets the session id generator.
func WithIDGenerator(g idgen.Generator) Option { return func(m *Manager) { m.newID = g } }

// WithActor sets the actor id stamped on broadcasts the manager itself
// publishes.
func WithActor(actor string) Option { return func(m *Manager) { m.actor = actor } }

// NewManager creates a Manager over store.
func NewManager(store *Store, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		logger: slog.Default(),
		newID:  idgen.Session,
		actor:  "server-" + idgen.ActorID(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Store returns the underlying store.
func (m *Manager) Store() *Store { return m.store }

// Create makes a new session owned by ownerID with an empty layout.
func (m *Manager) Create(ctx context.Context, ownerID, name string) (*Session, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner required", ErrInvalidInput)
	}
	name, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	s := &Session{ID: m.newID(), Name: name, OwnerID: ownerID, Layout: layout.Layout{}}
	if err := m.store.Insert(ctx, s); err != nil {
		return nil, err
	}
	m.logger.Info("session: created", "session_id", s.ID, "owner_id", ownerID)
	m.event(ctx, observability.EventCreated, s.ID, ownerID, nil)
	return s, nil
}

// Load returns the session and its last saved layout.
func (m *Manager) Load(ctx context.Context, id string) (*Session, error) {
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// List returns the sessions owned by ownerID, newest first.
func (m *Manager) List(ctx context.Context, ownerID string) ([]Summary, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner required", ErrInvalidInput)
	}
	return m.store.ListByOwner(ctx, ownerID)
}

// Save overwrites the stored layout wholesale. It does not check
// ownership; callers acting for a user go through SaveAs.
func (m *Manager) Save(ctx context.Context, id string, l layout.Layout) error {
	ok, err := m.store.UpdateLayout(ctx, id, l)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// SaveAs saves l on behalf of requesterID, who must own the session.
func (m *Manager) SaveAs(ctx context.Context, id, requesterID string, l layout.Layout) error {
	if _, err := m.owned(ctx, id, requesterID); err != nil {
		return err
	}
	if err := m.Save(ctx, id, l); err != nil {
		return err
	}
	m.event(ctx, observability.EventSaved, id, requesterID, map[string]any{"nodes": len(l)})
	return nil
}

// Rename changes the session name. Owner only.
func (m *Manager) Rename(ctx context.Context, id, requesterID, name string) error {
	if _, err := m.owned(ctx, id, requesterID); err != nil {
		return err
	}
	name, err := cleanName(name)
	if err != nil {
		return err
	}
	ok, err := m.store.Rename(ctx, id, name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	m.event(ctx, observability.EventRenamed, id, requesterID, map[string]any{"name": name})
	return nil
}

// ResetLayout empties the page for every participant: the snapshot is
// cleared and RESET_LAYOUT is broadcast. Owner only.
func (m *Manager) ResetLayout(ctx context.Context, id, requesterID string) error {
	if _, err := m.owned(ctx, id, requesterID); err != nil {
		return err
	}
	if err := m.Save(ctx, id, layout.Layout{}); err != nil {
		return err
	}
	if m.pub != nil {
		if _, err := m.pub.PublishControl(ctx, id, mutation.Reset(m.actor)); err != nil {
			return fmt.Errorf("session: broadcast reset: %w", err)
		}
	}
	m.logger.Info("session: reset", "session_id", id)
	m.event(ctx, observability.EventReset, id, requesterID, nil)
	return nil
}

// Terminate ends the session for everyone and deletes it. Only the owner
// may terminate. TERMINATE_SESSION is broadcast first on a best-effort
// basis: a failed broadcast is logged and the deletion still happens.
// Deleting the session also deletes its mutation log, so later publishes
// fail with not found. Irreversible.
func (m *Manager) Terminate(ctx context.Context, id, requesterID string) error {
	if _, err := m.owned(ctx, id, requesterID); err != nil {
		return err
	}
	broadcast := m.pub != nil
	if broadcast {
		if _, err := m.pub.PublishControl(ctx, id, mutation.Terminate(m.actor)); err != nil {
			broadcast = false
			m.logger.Warn("session: terminate broadcast failed", "session_id", id, "error", err)
		}
	}
	ok, err := m.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	m.logger.Info("session: terminated", "session_id", id, "broadcast", broadcast)
	m.event(ctx, observability.EventTerminated, id, requesterID, map[string]any{"broadcast": broadcast})
	return nil
}

// NewAutosaver returns an Autosaver for id. Only the owner autosaves, so
// any other requester gets ErrForbidden.
func (m *Manager) NewAutosaver(ctx context.Context, id, requesterID string, cfg AutosaveConfig) (*Autosaver, error) {
	if _, err := m.owned(ctx, id, requesterID); err != nil {
		return nil, err
	}
	return NewAutosaver(m, id, cfg, m.logger), nil
}

// IsOwner reports whether userID owns session id.
func (m *Manager) IsOwner(ctx context.Context, id, userID string) (bool, error) {
	_, err := m.owned(ctx, id, userID)
	if errors.Is(err, ErrForbidden) {
		return false, nil
	}
	return err == nil, err
}

// ShareURL returns the public link for a session under base.
func ShareURL(base, id string) string {
	return strings.TrimRight(base, "/") + "/s/" + url.PathEscape(id)
}

func (m *Manager) owned(ctx context.Context, id, requesterID string) (*Session, error) {
	s, err := m.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if requesterID == "" || s.OwnerID != requesterID {
		return nil, ErrForbidden
	}
	return s, nil
}

func (m *Manager) event(ctx context.Context, typ, id, userID string, details map[string]any) {
	ev := observability.SessionEvent{Type: typ, SessionID: id, UserID: userID, Success: true}
	if details != nil {
		if data, err := json.Marshal(details); err == nil {
			ev.Details = string(data)
		}
	}
	m.events.LogEvent(ctx, ev)
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(sanitize.Text(name))
	if name == "" {
		return DefaultName, nil
	}
	if utf8.RuneCountInString(name) > MaxNameLen {
		return "", fmt.Errorf("%w: name longer than %d characters", ErrInvalidInput, MaxNameLen)
	}
	return name, nil
}
