// Package channel is the per-session publish/subscribe transport. Publish
// appends a mutation to the durable log and then fans every entry the log
// holds past the session's cursor out to the session's subscribers, so
// each subscriber observes log order even when publishers race.
//
// Delivery is at-least-once while a subscription is attached. Nothing is
// replayed to a new subscription: it starts at the current log head and
// relies on the session snapshot for earlier state.
package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/hazyhaar/canvas/dbopen"
	"github.com/hazyhaar/canvas/kit"
	"github.com/hazyhaar/canvas/mutation"
	"github.com/hazyhaar/canvas/mutlog"
	"github.com/hazyhaar/canvas/watch"
)

// Hub owns the topics of every session served by this process.
type Hub struct {
	log    *mutlog.Store
	logger *slog.Logger

	mu     sync.RWMutex
	topics map[string]*topic
	closed bool

	nextID atomic.Int64

	limit    rate.Limit
	burst    int
	limMu    sync.Mutex
	limiters map[string]*actorLimiter

	attempts     int
	backoff      func(int) time.Duration
	queueSize    int
	slowTimeout  time.Duration
	batchSize    int
	pollInterval time.Duration

	// lifecycleCtx parents delivery so a cancelled publish request does not
	// cut a fan-out short.
	lifecycleCtx    context.Context
	lifecycleCancel context.CancelFunc
	wg              sync.WaitGroup
}

type actorLimiter struct {
	*rate.Limiter
	lastSeen time.Time
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(l *slog.Logger) Option { return func(h *Hub) { h.logger = l } }

// WithRateLimit caps publishes per actor. r <= 0 disables the limit.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(h *Hub) { h.limit, h.burst = r, burst }
}

// WithRetry sets the number of append attempts and the wait before each
// retry.
func WithRetry(attempts int, backoff func(int) time.Duration) Option {
	return func(h *Hub) {
		if attempts > 0 {
			h.attempts = attempts
		}
		if backoff != nil {
			h.backoff = backoff
		}
	}
}

// WithQueueSize sets the per-subscription buffer.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

// WithSlowSubscriberTimeout detaches a subscription whose buffer stays
// full for longer than d. Such a subscriber counts as disconnected.
func WithSlowSubscriberTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.slowTimeout = d
		}
	}
}

// WithPollInterval sets how often Run checks the log for appends made by
// other processes.
func WithPollInterval(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.pollInterval = d
		}
	}
}

// NewHub creates a Hub over the given log.
func NewHub(log *mutlog.Store, opts ...Option) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		log:             log,
		logger:          slog.Default(),
		topics:          make(map[string]*topic),
		limit:           50,
		burst:           100,
		limiters:        make(map[string]*actorLimiter),
		attempts:        dbopen.MaxRetries,
		backoff:         dbopen.Backoff,
		queueSize:       256,
		slowTimeout:     5 * time.Second,
		batchSize:       500,
		pollInterval:    250 * time.Millisecond,
		lifecycleCtx:    ctx,
		lifecycleCancel: cancel,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Publish validates m, appends it to the session log and fans it out.
// The signed-in user, if any, is read from ctx (kit.GetUserID).
// RESET_LAYOUT and TERMINATE_SESSION are refused; see PublishControl.
//
// Errors: *mutation.ValidationError for malformed input, ErrSessionNotFound
// for unknown or terminated sessions, ErrRateLimited, and *TransportError
// once the bounded retry is exhausted.
func (h *Hub) Publish(ctx context.Context, sessionID string, m mutation.Mutation) (mutlog.Entry, error) {
	if ownerAction(m.Type) {
		return mutlog.Entry{}, &mutation.ValidationError{Type: m.Type, ID: m.ID, Reason: "not a participant edit", Cause: ErrOwnerAction}
	}
	return h.publish(ctx, sessionID, m)
}

// PublishControl publishes a RESET_LAYOUT or TERMINATE_SESSION. Only the
// session manager calls it, after checking ownership.
func (h *Hub) PublishControl(ctx context.Context, sessionID string, m mutation.Mutation) (mutlog.Entry, error) {
	if !ownerAction(m.Type) {
		return mutlog.Entry{}, &mutation.ValidationError{Type: m.Type, ID: m.ID, Reason: "not a control mutation"}
	}
	return h.publish(ctx, sessionID, m)
}

func ownerAction(t mutation.Type) bool {
	return t == mutation.TypeReset || t.Control()
}

func (h *Hub) publish(ctx context.Context, sessionID string, m mutation.Mutation) (mutlog.Entry, error) {
	if h.isClosed() {
		return mutlog.Entry{}, ErrClosed
	}
	if err := mutation.Validate(m); err != nil {
		return mutlog.Entry{}, err
	}
	if !h.allow(m.ActorID) {
		return mutlog.Entry{}, ErrRateLimited
	}

	entry, err := h.appendWithRetry(ctx, sessionID, kit.GetUserID(ctx), m)
	if err != nil {
		return mutlog.Entry{}, err
	}

	if err := h.drain(sessionID); err != nil {
		// The entry is durable; the next publish or poll delivers it.
		h.logger.Warn("channel: fan-out deferred", "session_id", sessionID, "seq", entry.Seq, "error", err)
	}
	return entry, nil
}

func (h *Hub) appendWithRetry(ctx context.Context, sessionID, userID string, m mutation.Mutation) (mutlog.Entry, error) {
	var lastErr error
	for i := range h.attempts {
		entry, err := h.log.Append(ctx, sessionID, userID, m)
		if err == nil {
			return entry, nil
		}
		if errors.Is(err, ErrSessionNotFound) {
			return mutlog.Entry{}, err
		}
		if ctx.Err() != nil {
			return mutlog.Entry{}, ctx.Err()
		}
		lastErr = err
		h.logger.Warn("channel: append failed", "session_id", sessionID, "attempt", i+1, "error", err)
		if i < h.attempts-1 {
			if err := dbopen.SleepCtx(ctx, h.backoff(i)); err != nil {
				return mutlog.Entry{}, err
			}
		}
	}
	return mutlog.Entry{}, &TransportError{Op: "publish", SessionID: sessionID, Attempts: h.attempts, Cause: lastErr}
}

func (h *Hub) allow(actor string) bool {
	if h.limit <= 0 {
		return true
	}
	h.limMu.Lock()
	defer h.limMu.Unlock()
	l, ok := h.limiters[actor]
	if !ok {
		l = &actorLimiter{Limiter: rate.NewLimiter(h.limit, h.burst)}
		h.limiters[actor] = l
	}
	l.lastSeen = time.Now()
	return l.Allow()
}

// sweepLimiters forgets actors idle for longer than idle.
func (h *Hub) sweepLimiters(idle time.Duration) {
	cutoff := time.Now().Add(-idle)
	h.limMu.Lock()
	defer h.limMu.Unlock()
	for actor, l := range h.limiters {
		if l.lastSeen.Before(cutoff) {
			delete(h.limiters, actor)
		}
	}
}

// Subscribe registers fn for every mutation appended to sessionID from
// now on. fn runs on a goroutine owned by the subscription, one entry at
// a time, in log order. An actor id holds at most one subscription per
// session; a second one fails with ErrActorInUse.
func (h *Hub) Subscribe(ctx context.Context, sessionID string, peer Peer, fn Handler) (*Subscription, error) {
	if peer.JoinedAt == 0 {
		peer.JoinedAt = time.Now().UnixMilli()
	}
	s := &Subscription{
		id:        h.nextID.Add(1),
		hub:       h,
		SessionID: sessionID,
		Peer:      peer,
		fn:        fn,
		queue:     make(chan mutlog.Entry, h.queueSize),
		done:      make(chan struct{}),
	}

	// Registering under h.mu keeps a concurrent detach from dropping the
	// topic between lookup and add.
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	t, ok := h.topics[sessionID]
	if !ok {
		t = newTopic(sessionID)
		h.topics[sessionID] = t
	}
	s.topic = t
	if !t.add(s) {
		h.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrActorInUse, peer.ActorID)
	}
	h.wg.Add(1)
	h.mu.Unlock()

	t.drainMu.Lock()
	if !t.primed {
		head, err := h.log.Head(ctx, sessionID)
		if err != nil {
			t.drainMu.Unlock()
			h.wg.Done()
			t.remove(s.id)
			h.dropIfEmpty(t)
			return nil, &TransportError{Op: "subscribe", SessionID: sessionID, Attempts: 1, Cause: err}
		}
		t.cursor = head
		t.primed = true
	}
	t.drainMu.Unlock()

	go s.loop(h.lifecycleCtx, &h.wg)

	h.logger.Info("channel: subscribed", "session_id", sessionID, "actor_id", peer.ActorID, "subscribers", t.size())
	return s, nil
}

func (h *Hub) detach(s *Subscription) {
	s.topic.remove(s.id)
	h.dropIfEmpty(s.topic)
	h.logger.Info("channel: detached", "session_id", s.SessionID, "actor_id", s.Peer.ActorID)
}

func (h *Hub) dropIfEmpty(t *topic) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t.size() == 0 && h.topics[t.sessionID] == t {
		delete(h.topics, t.sessionID)
	}
}

func (h *Hub) topic(sessionID string) *topic {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.topics[sessionID]
}

// drain delivers every entry past the topic cursor to its subscribers.
// drainMu serialises drains, so entries leave in log order.
func (h *Hub) drain(sessionID string) error {
	t := h.topic(sessionID)
	if t == nil {
		return nil
	}
	ctx := h.lifecycleCtx

	t.drainMu.Lock()
	defer t.drainMu.Unlock()
	if !t.primed {
		return nil
	}
	for {
		entries, err := h.log.Since(ctx, sessionID, t.cursor, h.batchSize)
		if err != nil {
			return err
		}
		for _, e := range entries {
			for _, s := range t.snapshot() {
				if !s.enqueue(ctx, e, h.slowTimeout) {
					h.logger.Warn("channel: slow subscriber detached", "session_id", sessionID, "actor_id", s.Peer.ActorID)
					s.Detach()
				}
			}
			t.cursor = e.Seq
		}
		if len(entries) < h.batchSize {
			return nil
		}
	}
}

// DrainAll fans out pending entries for every active session.
func (h *Hub) DrainAll(ctx context.Context) error {
	h.mu.RLock()
	ids := make([]string, 0, len(h.topics))
	for id := range h.topics {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	var firstErr error
	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := h.drain(id); err != nil {
			h.logger.Warn("channel: drain failed", "session_id", id, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Run picks up mutations appended by other processes sharing the
// database and sweeps idle rate limiters. It blocks until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	w := watch.New(h.log.DB, watch.Options{
		Interval: h.pollInterval,
		Detector: watch.MaxColumnDetector("mutations", "seq"),
		Logger:   h.logger,
	})
	go w.Run(ctx, func(ctx context.Context, _ int64) error { return h.DrainAll(ctx) })

	sweep := time.NewTicker(time.Minute)
	defer sweep.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			h.sweepLimiters(10 * time.Minute)
		}
	}
}

// Presence lists the peers currently subscribed to sessionID.
func (h *Hub) Presence(sessionID string) []Peer {
	t := h.topic(sessionID)
	if t == nil {
		return nil
	}
	subs := t.snapshot()
	out := make([]Peer, 0, len(subs))
	for _, s := range subs {
		out = append(out, s.Peer)
	}
	return out
}

// Subscribers returns the number of subscriptions for sessionID.
func (h *Hub) Subscribers(sessionID string) int {
	if t := h.topic(sessionID); t != nil {
		return t.size()
	}
	return 0
}

func (h *Hub) isClosed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}

// Close detaches every subscription and waits for their goroutines.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	topics := make([]*topic, 0, len(h.topics))
	for _, t := range h.topics {
		topics = append(topics, t)
	}
	h.mu.Unlock()

	for _, t := range topics {
		for _, s := range t.snapshot() {
			s.Detach()
		}
	}
	h.lifecycleCancel()
	h.wg.Wait()
	return nil
}
