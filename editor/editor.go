// Package editor is one client instance of a session, the server-side
// equivalent of an editor tab: it holds a reconciled layout, publishes
// local edits to the channel, folds in everyone else's, and autosaves
// the snapshot when the user owns the page.
package editor

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/hazyhaar/canvas/channel"
	"github.com/hazyhaar/canvas/idgen"
	"github.com/hazyhaar/canvas/kit"
	"github.com/hazyhaar/canvas/layout"
	"github.com/hazyhaar/canvas/mutation"
	"github.com/hazyhaar/canvas/mutlog"
	"github.com/hazyhaar/canvas/reconcile"
	"github.com/hazyhaar/canvas/sanitize"
	"github.com/hazyhaar/canvas/session"
)

// ErrUnknownNode is returned by layer operations on a missing node.
var ErrUnknownNode = errors.New("editor: no such node")

// Config identifies the participant.
type Config struct {
	SessionID string
	// UserID is the signed-in user, empty for anonymous participants.
	UserID string
	// Name is shown to other participants.
	Name string
	// Actor defaults to a fresh idgen.ActorID().
	Actor    string
	Autosave session.AutosaveConfig
}

// Client is a joined participant.
type Client struct {
	cfg      Config
	hub      *channel.Hub
	mgr      *session.Manager
	rec      *reconcile.Reconciler
	saver    *session.Autosaver
	owner    bool
	notifier reconcile.Notifier
	logger   *slog.Logger

	mu   sync.Mutex
	sub  *channel.Subscription
	once sync.Once
	done chan struct{}
}

// Option configures a Client.
type Option func(*Client)

// WithNotifier receives termination and transport failure signals.
func WithNotifier(n reconcile.Notifier) Option { return func(c *Client) { c.notifier = n } }

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.logger = l } }

// Open joins a session: it loads the saved snapshot as baseline and
// subscribes to live mutations. Edits published before the subscription
// starts are not replayed.
func Open(ctx context.Context, hub *channel.Hub, mgr *session.Manager, cfg Config, opts ...Option) (*Client, error) {
	if cfg.Actor == "" {
		cfg.Actor = idgen.ActorID()
	}
	c := &Client{
		cfg:      cfg,
		hub:      hub,
		mgr:      mgr,
		notifier: reconcile.NopNotifier{},
		logger:   slog.Default(),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}

	s, err := mgr.Load(ctx, cfg.SessionID)
	if err != nil {
		return nil, err
	}
	c.owner = cfg.UserID != "" && s.OwnerID == cfg.UserID
	if c.owner {
		c.saver = session.NewAutosaver(mgr, s.ID, cfg.Autosave, c.logger)
	}

	recOpts := []reconcile.Option{
		reconcile.WithBaseline(s.Layout),
		reconcile.WithNotifier(clientNotifier{c}),
		reconcile.WithLogger(c.logger),
	}
	if c.saver != nil {
		recOpts = append(recOpts, reconcile.WithOnChange(c.saver.Schedule))
	}
	c.rec = reconcile.New(cfg.Actor, recOpts...)

	peer := channel.Peer{ActorID: cfg.Actor, UserID: cfg.UserID, Name: cfg.Name}
	sub, err := hub.Subscribe(ctx, s.ID, peer, func(e mutlog.Entry) { c.rec.Receive(e.Mutation) })
	if err != nil {
		if c.saver != nil {
			c.saver.Discard()
		}
		return nil, err
	}
	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()
	if c.rec.Terminated() {
		sub.Detach()
	}

	c.logger.Info("editor: joined", "session_id", s.ID, "actor_id", cfg.Actor, "owner", c.owner)
	return c, nil
}

// Actor returns this client's actor id.
func (c *Client) Actor() string { return c.cfg.Actor }

// SessionID returns the joined session.
func (c *Client) SessionID() string { return c.cfg.SessionID }

// Owner reports whether the participant owns the session.
func (c *Client) Owner() bool { return c.owner }

// Layout returns a copy of the current layout.
func (c *Client) Layout() layout.Layout { return c.rec.Layout() }

// Presence lists the participants currently connected.
func (c *Client) Presence() []channel.Peer { return c.hub.Presence(c.cfg.SessionID) }

// Done is closed when the session is terminated.
func (c *Client) Done() <-chan struct{} { return c.done }

// Terminated reports whether the session has ended.
func (c *Client) Terminated() bool { return c.rec.Terminated() }

// Submit applies m locally and publishes it. The local change stays even
// when publishing fails; transport failures are also reported to the
// notifier. Mutations the channel would refuse (owner actions, markup,
// unsafe URLs or styles) are rejected before anything is applied.
func (c *Client) Submit(ctx context.Context, m mutation.Mutation) (mutation.Mutation, error) {
	m = m.WithActor(c.rec.Actor())
	if m.Type == mutation.TypeReset || m.Type.Control() {
		return m, &mutation.ValidationError{Type: m.Type, ID: m.ID, Reason: "use ResetLayout or Terminate", Cause: channel.ErrOwnerAction}
	}
	if err := sanitize.Mutation(m); err != nil {
		return m, err
	}
	m, err := c.rec.Local(m)
	if err != nil {
		return m, err
	}
	if _, err := c.hub.Publish(kit.WithUserID(ctx, c.cfg.UserID), c.cfg.SessionID, m); err != nil {
		if channel.IsTransport(err) {
			c.rec.TransportFailure(err)
		}
		c.logger.Warn("editor: publish failed", "session_id", c.cfg.SessionID, "type", m.Type, "error", err)
		return m, err
	}
	return m, nil
}

// AddComponent creates a node of kind k with a fresh id and default
// styles. parentID may be empty.
func (c *Client) AddComponent(ctx context.Context, k layout.Kind, parentID string) (layout.Node, error) {
	n := layout.NewNode(idgen.NodeID(), k)
	n.ParentID = parentID
	if _, err := c.Submit(ctx, mutation.Add(c.cfg.Actor, n)); err != nil {
		return n, err
	}
	return n, nil
}

// Add inserts n, replacing a node with the same id.
func (c *Client) Add(ctx context.Context, n layout.Node) error {
	_, err := c.Submit(ctx, mutation.Add(c.cfg.Actor, n))
	return err
}

func (c *Client) UpdateStyle(ctx context.Context, id string, p layout.StylePatch) error {
	_, err := c.Submit(ctx, mutation.UpdateStyle(c.cfg.Actor, id, p))
	return err
}

func (c *Client) UpdateContent(ctx context.Context, id string, content layout.Content) error {
	_, err := c.Submit(ctx, mutation.UpdateContent(c.cfg.Actor, id, content))
	return err
}

// PatchContent replaces one content sub-field.
func (c *Client) PatchContent(ctx context.Context, id string, f layout.Field, v string) error {
	_, err := c.Submit(ctx, mutation.PatchContent(c.cfg.Actor, id, f, v))
	return err
}

func (c *Client) UpdateImage(ctx context.Context, id, src string) error {
	_, err := c.Submit(ctx, mutation.UpdateImage(c.cfg.Actor, id, src))
	return err
}

func (c *Client) UpdateLink(ctx context.Context, id, url string) error {
	_, err := c.Submit(ctx, mutation.UpdateLink(c.cfg.Actor, id, url))
	return err
}

// Delete removes the node. Children keep their parentId.
func (c *Client) Delete(ctx context.Context, id string) error {
	_, err := c.Submit(ctx, mutation.Delete(c.cfg.Actor, id))
	return err
}

// Move shifts the node delta places in stacked order.
func (c *Client) Move(ctx context.Context, id string, delta int) error {
	_, err := c.Submit(ctx, mutation.Move(c.cfg.Actor, id, delta))
	return err
}

// BringForward raises the node one layer.
func (c *Client) BringForward(ctx context.Context, id string) error { return c.restack(ctx, id, 1) }

// SendBackward lowers the node one layer.
func (c *Client) SendBackward(ctx context.Context, id string) error { return c.restack(ctx, id, -1) }

func (c *Client) restack(ctx context.Context, id string, delta int) error {
	p, ok := c.rec.Layout().Restack(id, delta)
	if !ok {
		return ErrUnknownNode
	}
	return c.UpdateStyle(ctx, id, p)
}

// ResetLayout clears the page for every participant. Owner only.
func (c *Client) ResetLayout(ctx context.Context) error {
	if !c.owner {
		return session.ErrForbidden
	}
	if err := c.mgr.ResetLayout(ctx, c.cfg.SessionID, c.cfg.UserID); err != nil {
		return err
	}
	c.rec.Reset(layout.Layout{})
	return nil
}

// Terminate ends the session for everyone. Owner only. Pending autosave
// state is dropped since the session is deleted.
func (c *Client) Terminate(ctx context.Context) error {
	if !c.owner {
		return session.ErrForbidden
	}
	if err := c.mgr.Terminate(ctx, c.cfg.SessionID, c.cfg.UserID); err != nil {
		return err
	}
	c.saver.Discard()
	return nil
}

// Close leaves the session. The owner's pending changes are written
// first.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	sub := c.sub
	c.mu.Unlock()
	if sub != nil {
		sub.Detach()
	}
	if c.saver != nil && !c.rec.Terminated() {
		return c.saver.Close(ctx)
	}
	return nil
}

func (c *Client) terminated() {
	if c.saver != nil {
		c.saver.Discard()
	}
	c.mu.Lock()
	sub := c.sub
	c.mu.Unlock()
	if sub != nil {
		sub.Detach()
	}
	c.once.Do(func() { close(c.done) })
	c.logger.Info("editor: session terminated", "session_id", c.cfg.SessionID, "actor_id", c.cfg.Actor)
	c.notifier.SessionTerminated()
}

type clientNotifier struct{ c *Client }

func (n clientNotifier) SessionTerminated()         { n.c.terminated() }
func (n clientNotifier) TransportFailure(err error) { n.c.notifier.TransportFailure(err) }
