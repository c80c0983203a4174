package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/canvas/layout"
)

// Saver persists a full layout snapshot.
type Saver interface {
	Save(ctx context.Context, id string, l layout.Layout) error
}

// AutosaveConfig controls the batching behaviour.
type AutosaveConfig struct {
	// Window is the quiet period after the last change. Default: 1s.
	Window time.Duration `yaml:"window"`
	// MaxWait forces a write when changes keep arriving for this long.
	// 0 means no limit.
	MaxWait time.Duration `yaml:"max_wait"`
	// Timeout bounds each write. Default: 10s.
	Timeout time.Duration `yaml:"timeout"`
}

func (c *AutosaveConfig) defaults() {
	if c.Window <= 0 {
		c.Window = time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}

// Autosaver writes the latest scheduled layout once the window passes
// without further changes. A burst of edits produces a single write that
// carries the final state.
type Autosaver struct {
	saver     Saver
	sessionID string
	cfg       AutosaveConfig
	logger    *slog.Logger

	mu      sync.Mutex
	pending layout.Layout
	dirty   bool
	first   time.Time
	timer   *time.Timer
	gen     uint64
	closed  bool

	// saveMu keeps writes in schedule order.
	saveMu sync.Mutex
	writes atomic.Int64
}

// NewAutosaver creates an Autosaver writing session sessionID through s.
func NewAutosaver(s Saver, sessionID string, cfg AutosaveConfig, logger *slog.Logger) *Autosaver {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Autosaver{saver: s, sessionID: sessionID, cfg: cfg, logger: logger}
}

// Schedule records l as the state to save and (re)starts the window.
// Calls after Close are ignored.
func (a *Autosaver) Schedule(l layout.Layout) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	now := time.Now()
	a.pending = l.Clone()
	if !a.dirty {
		a.first = now
	}
	a.dirty = true

	wait := a.cfg.Window
	if a.cfg.MaxWait > 0 {
		if left := a.cfg.MaxWait - now.Sub(a.first); left < wait {
			wait = max(left, 0)
		}
	}
	if a.timer != nil {
		a.timer.Stop()
	}
	a.gen++
	gen := a.gen
	a.timer = time.AfterFunc(wait, func() { a.fire(gen) })
}

func (a *Autosaver) fire(gen uint64) {
	a.mu.Lock()
	stale := gen != a.gen
	a.mu.Unlock()
	if stale {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Timeout)
	defer cancel()
	if err := a.Flush(ctx); err != nil {
		a.logger.Warn("session: autosave failed", "session_id", a.sessionID, "error", err)
	}
}

// Flush writes the pending state now, if there is one. On failure the
// state stays pending so the next Schedule or Flush retries it.
func (a *Autosaver) Flush(ctx context.Context) error {
	a.saveMu.Lock()
	defer a.saveMu.Unlock()

	a.mu.Lock()
	if !a.dirty {
		a.mu.Unlock()
		return nil
	}
	l := a.pending
	a.dirty = false
	a.pending = nil
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.gen++
	a.mu.Unlock()

	if err := a.saver.Save(ctx, a.sessionID, l); err != nil {
		a.mu.Lock()
		if !a.dirty {
			a.pending, a.dirty, a.first = l, true, time.Now()
		}
		a.mu.Unlock()
		return err
	}
	a.writes.Add(1)
	a.logger.Debug("session: autosaved", "session_id", a.sessionID, "nodes", len(l))
	return nil
}

// Pending reports whether a change is waiting to be written.
func (a *Autosaver) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dirty
}

// Writes returns the number of successful writes.
func (a *Autosaver) Writes() int64 { return a.writes.Load() }

// Close writes any pending state and stops accepting new changes.
func (a *Autosaver) Close(ctx context.Context) error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	return a.Flush(ctx)
}

// Discard drops pending state without writing it and stops the
// Autosaver. Used when the session is gone.
func (a *Autosaver) Discard() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	a.dirty = false
	a.pending = nil
	a.gen++
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}
