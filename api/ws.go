package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/hazyhaar/canvas/channel"
	"github.com/hazyhaar/canvas/idgen"
	"github.com/hazyhaar/canvas/kit"
	"github.com/hazyhaar/canvas/mutation"
	"github.com/hazyhaar/canvas/mutlog"
	"github.com/hazyhaar/canvas/sanitize"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 25 * time.Second
	wsMaxFrame     = 1 << 20
	wsSendBuffer   = 64
	maxActorLen    = 64
)

type outFrame struct {
	data []byte
	last bool
}

// wsConn pumps one websocket. Every write happens on the writer
// goroutine; the reader publishes inbound frames.
type wsConn struct {
	srv       *Server
	conn      *websocket.Conn
	sessionID string
	peer      channel.Peer

	send chan outFrame
	done chan struct{}
	once sync.Once
}

func (c *wsConn) close() {
	c.once.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

func (c *wsConn) enqueue(f outFrame) {
	select {
	case c.send <- f:
	case <-c.done:
	}
}

// handleSubscribe upgrades to a websocket carrying the session's
// mutations. Outbound frames are mutations in wire form; inbound frames
// are mutations to publish, stamped with the connection's actor id.
// Failures come back as {"error": ..., "status": ...} frames.
//
// Query parameters: actor (the client's actor id, generated when absent)
// and name (display name shown in presence). An actor id already
// connected to the session is refused with 409, so one tab cannot take
// over another's id while it is open.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if _, err := s.sessions.Load(ctx, id); err != nil {
		writeError(w, r, err)
		return
	}

	actor := r.URL.Query().Get("actor")
	if actor == "" || len(actor) > maxActorLen {
		actor = idgen.ActorID()
	}
	name := sanitize.Text(r.URL.Query().Get("name"))
	if name == "" {
		name = kit.GetDisplayName(ctx)
	}

	c := &wsConn{
		srv:       s,
		sessionID: id,
		peer:      channel.Peer{ActorID: actor, UserID: kit.GetUserID(ctx), Name: name},
		send:      make(chan outFrame, wsSendBuffer),
		done:      make(chan struct{}),
	}

	sub, err := s.hub.Subscribe(ctx, id, c.peer, func(e mutlog.Entry) {
		data, err := mutation.Encode(e.Mutation)
		if err != nil {
			return
		}
		c.enqueue(outFrame{data: data, last: e.Mutation.Type == mutation.TypeTerminate})
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer func() {
		c.close()
		sub.Detach()
	}()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already answered.
		return
	}
	c.conn = conn

	log := s.logger.With("session_id", id, "actor_id", actor)
	log.Info("api: websocket open")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writeLoop(sub)
	}()
	c.readLoop(context.WithoutCancel(ctx))
	c.close()
	wg.Wait()
	log.Info("api: websocket closed")
}

func (c *wsConn) readLoop(ctx context.Context) {
	c.conn.SetReadLimit(wsMaxFrame)
	c.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))

		// The connection's actor is stamped before validation, so clients
		// may omit actorId.
		var m mutation.Mutation
		if err := json.Unmarshal(data, &m); err != nil {
			c.replyError(&mutation.ValidationError{Reason: "malformed json", Cause: err})
			continue
		}
		pctx := kit.WithTransport(kit.WithUserID(ctx, c.peer.UserID), "ws")
		if _, err := c.srv.publish(pctx, c.sessionID, m.WithActor(c.peer.ActorID)); err != nil {
			c.replyError(err)
			if errors.Is(err, channel.ErrSessionNotFound) {
				return
			}
		}
	}
}

func (c *wsConn) replyError(err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		c.srv.logger.Error("api: websocket publish failed", "session_id", c.sessionID, "error", err)
		msg = "internal error"
	}
	data, _ := json.Marshal(map[string]any{"error": msg, "status": code})
	c.enqueue(outFrame{data: data})
}

func (c *wsConn) writeLoop(sub *channel.Subscription) {
	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	closeWith := func(code int, reason string) {
		deadline := time.Now().Add(wsWriteTimeout)
		c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		c.close()
	}

	for {
		select {
		case <-c.done:
			return
		case <-sub.Done():
			// Detached by the hub: shut down or too far behind.
			closeWith(websocket.CloseTryAgainLater, "subscription ended")
			return
		case f := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, f.data); err != nil {
				c.close()
				return
			}
			if f.last {
				closeWith(websocket.CloseNormalClosure, "session terminated")
				return
			}
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				c.close()
				return
			}
		}
	}
}
