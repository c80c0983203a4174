// Package reconcile keeps one client's view of a session layout. Local
// edits apply optimistically; remote mutations from the channel fold in
// as they arrive, skipping the client's own echoes.
//
// Conflicts resolve as last-applied-wins in receipt order. Clients that
// receive concurrent edits in different orders may diverge until the
// next snapshot load.
package reconcile

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hazyhaar/canvas/layout"
	"github.com/hazyhaar/canvas/mutation"
)

// ErrTerminated is returned by Local once the session has ended.
var ErrTerminated = errors.New("reconcile: session terminated")

// Outcome says what Receive did with a mutation.
type Outcome int

const (
	Applied    Outcome = iota // folded into the layout
	Self                      // originated here, already applied
	Ignored                   // unknown type or no-op
	Invalid                   // failed validation, dropped
	Terminated                // TERMINATE_SESSION, or received after it
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Self:
		return "self"
	case Ignored:
		return "ignored"
	case Invalid:
		return "invalid"
	case Terminated:
		return "terminated"
	}
	return "unknown"
}

// Notifier receives session-level signals the user must see.
type Notifier interface {
	// SessionTerminated is called once when the owner ends the session.
	SessionTerminated()
	// TransportFailure is called when a publish or delivery gave up.
	TransportFailure(err error)
}

// NopNotifier ignores every signal.
type NopNotifier struct{}

func (NopNotifier) SessionTerminated()     {}
func (NopNotifier) TransportFailure(error) {}

// Reconciler owns a layout for one actor. It is safe for concurrent use:
// local edits and channel delivery run on different goroutines.
type Reconciler struct {
	actor    string
	notifier Notifier
	onChange func(layout.Layout)
	logger   *slog.Logger

	mu         sync.Mutex
	layout     layout.Layout
	terminated bool

	applied atomic.Int64
	dropped atomic.Int64
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithNotifier sets the receiver of termination and transport signals.
func WithNotifier(n Notifier) Option { return func(r *Reconciler) { r.notifier = n } }

// WithOnChange registers fn to run after every layout change, with the
// new layout. fn runs under the reconciler lock, so calls arrive in
// change order; it must not call back into the Reconciler.
func WithOnChange(fn func(layout.Layout)) Option { return func(r *Reconciler) { r.onChange = fn } }

// WithLogger sets the logger for dropped mutations.
func WithLogger(l *slog.Logger) Option { return func(r *Reconciler) { r.logger = l } }

// WithBaseline installs the starting layout.
func WithBaseline(l layout.Layout) Option { return func(r *Reconciler) { r.layout = l.Clone() } }

// New creates a Reconciler for actor, the id of this client instance.
func New(actor string, opts ...Option) *Reconciler {
	r := &Reconciler{
		actor:    actor,
		notifier: NopNotifier{},
		logger:   slog.Default(),
		layout:   layout.Layout{},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Actor returns the actor id stamped on local mutations.
func (r *Reconciler) Actor() string { return r.actor }

// Layout returns a copy of the current layout.
func (r *Reconciler) Layout() layout.Layout {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.layout.Clone()
}

// Reset replaces the layout with a snapshot, typically the one loaded on
// join.
func (r *Reconciler) Reset(l layout.Layout) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setLocked(l.Clone())
}

// Terminated reports whether the session has ended.
func (r *Reconciler) Terminated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.terminated
}

// Local stamps m with this actor, validates it and applies it to the
// layout. The returned mutation is ready to publish.
func (r *Reconciler) Local(m mutation.Mutation) (mutation.Mutation, error) {
	m = m.WithActor(r.actor)
	if err := mutation.Validate(m); err != nil {
		return m, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminated {
		return m, ErrTerminated
	}
	if next, ok := mutation.Apply(r.layout, m); ok {
		r.setLocked(next)
	}
	return m, nil
}

// Receive folds a mutation delivered by the channel into the layout.
func (r *Reconciler) Receive(m mutation.Mutation) Outcome {
	if m.ActorID == r.actor {
		return Self
	}

	r.mu.Lock()
	if r.terminated {
		r.mu.Unlock()
		return Terminated
	}
	if m.Type == mutation.TypeTerminate {
		r.terminated = true
		r.mu.Unlock()
		r.notifier.SessionTerminated()
		return Terminated
	}
	defer r.mu.Unlock()

	next, ok := mutation.Apply(r.layout, m)
	if !ok {
		if !m.Type.Known() {
			r.logger.Debug("reconcile: unknown mutation type ignored", "type", m.Type, "actor_id", m.ActorID)
		}
		r.dropped.Add(1)
		return Ignored
	}
	r.setLocked(next)
	r.applied.Add(1)
	return Applied
}

// ReceiveRaw decodes and validates a wire message, then calls Receive.
// Malformed input is logged and dropped.
func (r *Reconciler) ReceiveRaw(data []byte) Outcome {
	m, err := mutation.Decode(data)
	if err != nil {
		r.logger.Warn("reconcile: dropped invalid mutation", "error", err)
		r.dropped.Add(1)
		return Invalid
	}
	return r.Receive(m)
}

// TransportFailure forwards a channel failure to the notifier.
func (r *Reconciler) TransportFailure(err error) {
	r.notifier.TransportFailure(err)
}

// Stats returns how many remote mutations were applied and dropped.
func (r *Reconciler) Stats() (applied, dropped int64) {
	return r.applied.Load(), r.dropped.Load()
}

func (r *Reconciler) setLocked(l layout.Layout) {
	r.layout = l
	if r.onChange != nil {
		r.onChange(l.Clone())
	}
}
