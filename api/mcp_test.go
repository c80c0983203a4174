package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/canvas/channel"
	"github.com/hazyhaar/canvas/mutation"
	"github.com/hazyhaar/canvas/mutlog"
)

var testMCPImpl = &mcp.Implementation{Name: "canvas-test", Version: "0.1.0"}

func mcpSession(t *testing.T, e *testEnv) *mcp.ClientSession {
	t.Helper()
	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = e.srv.MCP().Run(ctx, serverT) }()

	client := mcp.NewClient(testMCPImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) (string, error) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if len(result.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent", name)
	}
	// Tool errors travel as content with IsError set; the client never
	// sees them as a Go error.
	if result.IsError {
		return "", errors.New(tc.Text)
	}
	return tc.Text, nil
}

func TestMCP_AddComponentReachesSubscribers(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.owner(t, "ann@example.com")
	s := e.createSession(t, token, "Landing")

	got := make(chan mutlog.Entry, 1)
	sub, err := e.hub.Subscribe(context.Background(), s.ID, channel.Peer{ActorID: "tab-1"}, func(en mutlog.Entry) { got <- en })
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Detach()

	session := mcpSession(t, e)
	text, err := callTool(t, session, "canvas_add_component", map[string]any{
		"session_id": s.ID, "kind": "Card", "text": "Pro|For teams|Buy",
	})
	if err != nil {
		t.Fatal(err)
	}
	var resp struct {
		Seq  int64 `json:"seq"`
		Node struct {
			ID      string            `json:"id"`
			Content map[string]string `json:"content"`
		} `json:"node"`
	}
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Seq == 0 || resp.Node.Content["title"] != "Pro" || resp.Node.Content["cta"] != "Buy" {
		t.Fatalf("resp = %+v", resp)
	}

	en := <-got
	if en.Mutation.Type != mutation.TypeAdd || en.Mutation.ID != resp.Node.ID {
		t.Fatalf("delivered %+v", en.Mutation)
	}
	if !strings.HasPrefix(en.Mutation.ActorID, "mcp-") {
		t.Fatalf("actor = %q", en.Mutation.ActorID)
	}

	if _, err := callTool(t, session, "canvas_update_content", map[string]any{
		"session_id": s.ID, "node_id": resp.Node.ID, "field": "title", "value": "Team",
	}); err != nil {
		t.Fatal(err)
	}

	text, err = callTool(t, session, "canvas_presence", map[string]any{"session_id": s.ID})
	if err != nil || !strings.Contains(text, "tab-1") {
		t.Fatalf("presence = %s, %v", text, err)
	}
}

func TestMCP_Errors(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.owner(t, "ann@example.com")
	s := e.createSession(t, token, "")
	session := mcpSession(t, e)

	if _, err := callTool(t, session, "canvas_get_session", map[string]any{"session_id": "missing"}); err == nil {
		t.Error("missing session: no tool error")
	}
	if _, err := callTool(t, session, "canvas_add_component", map[string]any{"session_id": s.ID, "kind": "Carousel"}); err == nil || !strings.Contains(err.Error(), "Carousel") {
		t.Errorf("unknown kind: err = %v", err)
	}
	if _, err := callTool(t, session, "canvas_publish", map[string]any{
		"session_id": s.ID, "mutation": map[string]any{"type": "TERMINATE_SESSION"},
	}); err == nil {
		t.Error("terminate through MCP: no tool error")
	}
	if _, err := callTool(t, session, "canvas_export", map[string]any{"session_id": s.ID, "format": "md"}); err != nil {
		t.Errorf("export: %v", err)
	}
}

func TestMCP_RequiresAuth(t *testing.T) {
	e := newTestEnv(t)
	expect(t, e.do(t, "POST", "/mcp", "", map[string]any{"jsonrpc": "2.0", "id": 1, "method": "ping"}), http.StatusUnauthorized)
}
