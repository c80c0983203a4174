package channel

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/canvas/mutlog"
)

// Handler receives one log entry. It runs on the subscription goroutine.
type Handler func(e mutlog.Entry)

// Peer describes who holds a subscription.
type Peer struct {
	ActorID  string `json:"actorId"`
	UserID   string `json:"userId,omitempty"`
	Name     string `json:"name,omitempty"`
	JoinedAt int64  `json:"joinedAt"`
}

// Subscription is a live registration returned by Hub.Subscribe.
type Subscription struct {
	id        int64
	hub       *Hub
	topic     *topic
	SessionID string
	Peer      Peer

	fn        Handler
	queue     chan mutlog.Entry
	done      chan struct{}
	once      sync.Once
	delivered atomic.Int64
}

// Detach stops delivery. Entries still queued are dropped. Safe to call
// more than once.
func (s *Subscription) Detach() {
	s.once.Do(func() {
		close(s.done)
		s.hub.detach(s)
	})
}

// Done is closed once the subscription is detached, by the caller, by
// Hub.Close, or because the subscriber fell too far behind.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Delivered returns how many entries the handler has processed.
func (s *Subscription) Delivered() int64 { return s.delivered.Load() }

func (s *Subscription) enqueue(ctx context.Context, e mutlog.Entry, timeout time.Duration) bool {
	select {
	case s.queue <- e:
		return true
	case <-s.done:
		return true
	default:
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case s.queue <- e:
		return true
	case <-s.done:
		return true
	case <-ctx.Done():
		return true
	case <-t.C:
		return false
	}
}

func (s *Subscription) loop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case e := <-s.queue:
			s.fn(e)
			s.delivered.Add(1)
		}
	}
}

type topic struct {
	sessionID string

	// drainMu serialises fan-out; cursor and primed are guarded by it.
	drainMu sync.Mutex
	cursor  int64
	primed  bool

	mu   sync.RWMutex
	subs map[int64]*Subscription
}

func newTopic(sessionID string) *topic {
	return &topic{sessionID: sessionID, subs: make(map[int64]*Subscription)}
}

// add registers s unless another subscription already holds its actor id.
func (t *topic) add(s *Subscription) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, o := range t.subs {
		if o.Peer.ActorID == s.Peer.ActorID {
			return false
		}
	}
	t.subs[s.id] = s
	return true
}

func (t *topic) remove(id int64) {
	t.mu.Lock()
	delete(t.subs, id)
	t.mu.Unlock()
}

func (t *topic) size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}

// snapshot returns subscribers ordered by join order.
func (t *topic) snapshot() []*Subscription {
	t.mu.RLock()
	out := make([]*Subscription, 0, len(t.subs))
	for _, s := range t.subs {
		out = append(out, s)
	}
	t.mu.RUnlock()
	slices.SortFunc(out, func(a, b *Subscription) int { return int(a.id - b.id) })
	return out
}
