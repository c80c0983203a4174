package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hazyhaar/canvas/channel"
	"github.com/hazyhaar/canvas/layout"
	"github.com/hazyhaar/canvas/mutation"
)

func (e *testEnv) dial(t *testing.T, sessionID, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/api/sessions/" + sessionID + "/ws?" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		code := 0
		if resp != nil {
			code = resp.StatusCode
		}
		t.Fatalf("dial: %v (status %d)", err, code)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var f map[string]any
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("frame %q: %v", data, err)
	}
	return f
}

func TestWebsocket_FanOut(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.owner(t, "ann@example.com")
	s := e.createSession(t, token, "")

	ann := e.dial(t, s.ID, "actor=tab-ann&name=Ann")
	bob := e.dial(t, s.ID, "actor=tab-bob&name=<b>Bob</b>")

	resp := e.do(t, "GET", "/api/sessions/"+s.ID+"/presence", "", nil)
	expect(t, resp, http.StatusOK)
	peers := decodeBody[[]channel.Peer](t, resp)
	if len(peers) != 2 || peers[0].Name != "Ann" || peers[1].Name != "Bob" {
		t.Fatalf("presence = %+v", peers)
	}

	// The frame claims another actor; the connection's actor wins.
	data, _ := mutation.Encode(mutation.Add("spoofed", layout.NewNode("n1", layout.KindText)))
	if err := ann.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatal(err)
	}
	for _, conn := range []*websocket.Conn{bob, ann} {
		f := readFrame(t, conn)
		if f["type"] != string(mutation.TypeAdd) || f["actorId"] != "tab-ann" {
			t.Fatalf("frame = %v", f)
		}
	}

	// HTTP publishes reach websocket subscribers too.
	expect(t, e.do(t, "POST", "/api/sessions/"+s.ID+"/mutations", "", mutation.Delete("tab-http", "n1")), http.StatusAccepted)
	if f := readFrame(t, bob); f["type"] != string(mutation.TypeDelete) || f["id"] != "n1" {
		t.Fatalf("frame = %v", f)
	}
	readFrame(t, ann)

	// A malformed frame is answered with an error frame on that connection only.
	if err := bob.WriteMessage(websocket.TextMessage, []byte(`{"type":"DELETE_COMPONENT"}`)); err != nil {
		t.Fatal(err)
	}
	if f := readFrame(t, bob); f["status"] != float64(http.StatusBadRequest) || f["error"] == "" {
		t.Fatalf("error frame = %v", f)
	}
}

func TestWebsocket_Termination(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.owner(t, "ann@example.com")
	s := e.createSession(t, token, "")
	conn := e.dial(t, s.ID, "actor=tab-1")

	expect(t, e.do(t, "DELETE", "/api/sessions/"+s.ID, token, nil), http.StatusNoContent)

	if f := readFrame(t, conn); f["type"] != string(mutation.TypeTerminate) {
		t.Fatalf("frame = %v", f)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("err = %v, want normal closure", err)
	}

	waitUntil(t, func() bool { return e.hub.Subscribers(s.ID) == 0 })
}

func TestWebsocket_ActorTaken(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.owner(t, "ann@example.com")
	s := e.createSession(t, token, "")

	e.dial(t, s.ID, "actor=tab-ann&name=Ann")
	url := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/api/sessions/" + s.ID + "/ws?actor=tab-ann&name=Mallory"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("second connection with the same actor succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusConflict {
		t.Fatalf("resp = %v", resp)
	}
	if peers := e.hub.Presence(s.ID); len(peers) != 1 || peers[0].Name != "Ann" {
		t.Fatalf("presence = %+v", peers)
	}
}

func TestWebsocket_UnknownSession(t *testing.T) {
	e := newTestEnv(t)
	url := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/api/sessions/missing/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("resp = %v", resp)
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met")
}
