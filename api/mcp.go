package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/canvas/export"
	"github.com/hazyhaar/canvas/idgen"
	"github.com/hazyhaar/canvas/kit"
	"github.com/hazyhaar/canvas/layout"
	"github.com/hazyhaar/canvas/mutation"
)

// RegisterMCP registers the canvas tools on srv. Tools act as a session
// participant: they read snapshots and publish layout mutations, but
// cannot reset or terminate a session. Published mutations reach live
// participants; the snapshot is written by the owner's autosave.
func (s *Server) RegisterMCP(srv *mcp.Server) {
	actor := "mcp-" + idgen.ActorID()
	s.registerGetSession(srv)
	s.registerPresence(srv)
	s.registerPublish(srv, actor)
	s.registerAddComponent(srv, actor)
	s.registerUpdateContent(srv, actor)
	s.registerExport(srv)
}

// addTool registers endpoint under tool, logging every call.
func (s *Server) addTool(srv *mcp.Server, tool *mcp.Tool, endpoint kit.Endpoint, decode func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error)) {
	kit.RegisterMCPTool(srv, tool, kit.Logging(s.logger, tool.Name)(endpoint), decode)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func decodeArgs[T any](r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var p T
	if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
		return nil, err
	}
	return &kit.MCPDecodeResult{Request: &p}, nil
}

var sessionIDProp = map[string]any{"type": "string", "description": "Session ID"}

func (s *Server) registerGetSession(srv *mcp.Server) {
	type req struct {
		SessionID string `json:"session_id"`
	}
	tool := &mcp.Tool{
		Name:        "canvas_get_session",
		Description: "Load a page session and its last saved layout",
		InputSchema: inputSchema(map[string]any{"session_id": sessionIDProp}, []string{"session_id"}),
	}
	endpoint := func(ctx context.Context, r any) (any, error) {
		return s.sessions.Load(ctx, r.(*req).SessionID)
	}
	s.addTool(srv, tool, endpoint, decodeArgs[req])
}

func (s *Server) registerPresence(srv *mcp.Server) {
	type req struct {
		SessionID string `json:"session_id"`
	}
	tool := &mcp.Tool{
		Name:        "canvas_presence",
		Description: "List the participants currently connected to a session",
		InputSchema: inputSchema(map[string]any{"session_id": sessionIDProp}, []string{"session_id"}),
	}
	endpoint := func(ctx context.Context, r any) (any, error) {
		id := r.(*req).SessionID
		if _, err := s.sessions.Load(ctx, id); err != nil {
			return nil, err
		}
		return map[string]any{"participants": s.hub.Presence(id)}, nil
	}
	s.addTool(srv, tool, endpoint, decodeArgs[req])
}

func (s *Server) registerPublish(srv *mcp.Server, actor string) {
	type req struct {
		SessionID string            `json:"session_id"`
		Mutation  mutation.Mutation `json:"mutation"`
	}
	tool := &mcp.Tool{
		Name:        "canvas_publish",
		Description: "Publish a layout mutation {type, id, data} to a session",
		InputSchema: inputSchema(map[string]any{
			"session_id": sessionIDProp,
			"mutation":   map[string]any{"type": "object", "description": "Mutation with type, id and data"},
		}, []string{"session_id", "mutation"}),
	}
	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		m := p.Mutation
		if m.ActorID == "" {
			m = m.WithActor(actor)
		}
		seq, err := s.publish(ctx, p.SessionID, m)
		if err != nil {
			return nil, err
		}
		return map[string]int64{"seq": seq}, nil
	}
	s.addTool(srv, tool, endpoint, decodeArgs[req])
}

func (s *Server) registerAddComponent(srv *mcp.Server, actor string) {
	type req struct {
		SessionID string `json:"session_id"`
		Kind      string `json:"kind"`
		ParentID  string `json:"parent_id"`
		Text      string `json:"text"`
	}
	kinds := make([]string, len(layout.Kinds))
	for i, k := range layout.Kinds {
		kinds[i] = string(k)
	}
	tool := &mcp.Tool{
		Name:        "canvas_add_component",
		Description: "Add a component with default styles to a session",
		InputSchema: inputSchema(map[string]any{
			"session_id": sessionIDProp,
			"kind":       map[string]any{"type": "string", "enum": kinds},
			"parent_id":  map[string]any{"type": "string", "description": "Section to place the component in"},
			"text":       map[string]any{"type": "string", "description": "Initial text"},
		}, []string{"session_id", "kind"}),
	}
	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		kind := layout.Kind(p.Kind)
		if !kind.Known() {
			return nil, fmt.Errorf("unknown kind %q", p.Kind)
		}
		n := layout.NewNode(idgen.NodeID(), kind)
		n.ParentID = p.ParentID
		if p.Text != "" {
			n.Content = layout.Plain(p.Text).ForKind(kind)
		}
		seq, err := s.publish(ctx, p.SessionID, mutation.Add(actor, n))
		if err != nil {
			return nil, err
		}
		return map[string]any{"seq": seq, "node": n}, nil
	}
	s.addTool(srv, tool, endpoint, decodeArgs[req])
}

func (s *Server) registerUpdateContent(srv *mcp.Server, actor string) {
	type req struct {
		SessionID string `json:"session_id"`
		NodeID    string `json:"node_id"`
		Field     string `json:"field"`
		Value     string `json:"value"`
	}
	tool := &mcp.Tool{
		Name:        "canvas_update_content",
		Description: "Set the text of a component, or one field (title, description, cta) of a composite one",
		InputSchema: inputSchema(map[string]any{
			"session_id": sessionIDProp,
			"node_id":    map[string]any{"type": "string"},
			"field":      map[string]any{"type": "string", "enum": []string{"text", "title", "description", "cta"}},
			"value":      map[string]any{"type": "string"},
		}, []string{"session_id", "node_id", "value"}),
	}
	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		m := mutation.UpdateContent(actor, p.NodeID, layout.Plain(p.Value))
		if p.Field != "" {
			m = mutation.PatchContent(actor, p.NodeID, layout.Field(p.Field), p.Value)
		}
		seq, err := s.publish(ctx, p.SessionID, m)
		if err != nil {
			return nil, err
		}
		return map[string]int64{"seq": seq}, nil
	}
	s.addTool(srv, tool, endpoint, decodeArgs[req])
}

func (s *Server) registerExport(srv *mcp.Server) {
	type req struct {
		SessionID string `json:"session_id"`
		Format    string `json:"format"`
	}
	tool := &mcp.Tool{
		Name:        "canvas_export",
		Description: "Render the saved layout of a session as HTML or Markdown",
		InputSchema: inputSchema(map[string]any{
			"session_id": sessionIDProp,
			"format":     map[string]any{"type": "string", "enum": []string{"html", "md"}},
		}, []string{"session_id"}),
	}
	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		format, err := export.ParseFormat(p.Format)
		if err != nil {
			return nil, err
		}
		sess, err := s.sessions.Load(ctx, p.SessionID)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := export.Write(&buf, format, sess.Name, sess.Layout); err != nil {
			return nil, err
		}
		return map[string]string{"format": string(format), "body": buf.String()}, nil
	}
	s.addTool(srv, tool, endpoint, decodeArgs[req])
}
