package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/canvas/channel"
	"github.com/hazyhaar/canvas/export"
	"github.com/hazyhaar/canvas/kit"
	"github.com/hazyhaar/canvas/layout"
	"github.com/hazyhaar/canvas/mutation"
	"github.com/hazyhaar/canvas/observability"
	"github.com/hazyhaar/canvas/sanitize"
	"github.com/hazyhaar/canvas/session"
	"github.com/hazyhaar/canvas/shield"
)

type sessionResponse struct {
	*session.Session
	ShareURL string `json:"shareUrl"`
	Owner    bool   `json:"owner"`
}

func (s *Server) describe(r *http.Request, sess *session.Session) sessionResponse {
	return sessionResponse{
		Session:  sess,
		ShareURL: session.ShareURL(s.publicURL, sess.ID),
		Owner:    sess.OwnerID != "" && sess.OwnerID == kit.GetUserID(r.Context()),
	}
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.sessions.List(r.Context(), kit.GetUserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []session.Summary{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(w, err)
		return
	}
	sess, err := s.sessions.Create(r.Context(), kit.GetUserID(r.Context()), req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.describe(r, sess))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.describe(r, sess))
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.sessions.Rename(r.Context(), id, kit.GetUserID(r.Context()), req.Name); err != nil {
		writeError(w, r, err)
		return
	}
	s.handleGetSession(w, r)
}

// handleSaveLayout stores a full snapshot. Nodes pass the same checks as
// inbound mutations and are stored as sent.
func (s *Server) handleSaveLayout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Layout layout.Layout `json:"layout"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	snap := make(layout.Layout, 0, len(req.Layout))
	for _, n := range req.Layout {
		if n.ID == "" {
			badRequest(w, errors.New("node without id"))
			return
		}
		if err := sanitize.CheckNode(n); err != nil {
			writeError(w, r, fmt.Errorf("node %s: %w", n.ID, err))
			return
		}
		snap = snap.Add(n)
	}
	id := chi.URLParam(r, "id")
	if err := s.sessions.SaveAs(r.Context(), id, kit.GetUserID(r.Context()), snap); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"nodes": len(snap)})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.ResetLayout(r.Context(), chi.URLParam(r, "id"), kit.GetUserID(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleTerminate(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Terminate(r.Context(), chi.URLParam(r, "id"), kit.GetUserID(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// publish checks m and appends it unchanged to the session channel. The
// sender has already applied m, so anything unsafe is refused rather than
// cleaned. Reset and terminate are owner actions with their own endpoints;
// the hub refuses them here.
func (s *Server) publish(ctx context.Context, sessionID string, m mutation.Mutation) (int64, error) {
	if err := sanitize.Mutation(m); err != nil {
		return 0, err
	}
	entry, err := s.hub.Publish(ctx, sessionID, m)
	if err != nil {
		return 0, err
	}
	return entry.Seq, nil
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var m mutation.Mutation
	if err := decodeJSON(r, &m); err != nil {
		badRequest(w, err)
		return
	}
	seq, err := s.publish(r.Context(), chi.URLParam(r, "id"), m)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int64{"seq": seq})
}

func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.sessions.Load(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	peers := s.hub.Presence(id)
	if peers == nil {
		peers = []channel.Peer{}
	}
	writeJSON(w, http.StatusOK, peers)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		badRequest(w, err)
		return
	}
	sess, err := s.sessions.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	if err := export.Write(w, format, sess.Name, sess.Layout); err != nil {
		shield.GetLogger(r.Context()).Error("api: export failed", "session_id", sess.ID, "error", err)
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ok, err := s.sessions.IsOwner(r.Context(), id, kit.GetUserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		writeError(w, r, session.ErrForbidden)
		return
	}
	events := []observability.SessionEvent{}
	if s.events != nil {
		list, err := s.events.Events(r.Context(), id, queryInt(r, "limit", 50))
		if err != nil {
			writeError(w, r, err)
			return
		}
		if list != nil {
			events = list
		}
	}
	writeJSON(w, http.StatusOK, events)
}

// handleShare sends a share link holder to the editor for that session.
func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.sessions.Load(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	http.Redirect(w, r, EditorPath+id, http.StatusFound)
}
