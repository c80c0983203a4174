package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/hazyhaar/canvas/auth"
	"github.com/hazyhaar/canvas/idgen"
	"github.com/hazyhaar/canvas/shield"
)

type ownerResponse struct {
	*auth.Owner
	Token string `json:"token,omitempty"`
}

// signIn issues a token for o, sets the cookie and returns the token so
// non-browser clients can send it as a Bearer header.
func (s *Server) signIn(w http.ResponseWriter, o *auth.Owner) (string, error) {
	token, err := auth.GenerateToken(s.secret, auth.ClaimsFor(o), auth.TokenTTL)
	if err != nil {
		return "", err
	}
	auth.SetTokenCookie(w, token, "", s.secureCookies)
	return token, nil
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	o, err := s.owners.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	token, err := s.signIn(w, o)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ownerResponse{Owner: o, Token: token})
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	auth.ClearTokenCookie(w, "")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCreateOwner creates an owner account. The first account can
// always be created; later ones need signup enabled.
func (s *Server) handleCreateOwner(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		DisplayName string `json:"displayName"`
		Password    string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	if !s.allowSignup {
		n, err := s.owners.Count(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		if n > 0 {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "signup is closed"})
			return
		}
	}
	o, err := s.owners.Add(r.Context(), req.Email, req.DisplayName, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	token, err := s.signIn(w, o)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.logger.Info("api: owner created", "owner_id", o.ID)
	writeJSON(w, http.StatusCreated, ownerResponse{Owner: o, Token: token})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	c := auth.GetClaims(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{
		"id":          c.UserID,
		"email":       c.Email,
		"displayName": c.DisplayName,
		"provider":    c.AuthProvider,
	})
}

const oauthStateCookie = "canvas_oauth_state"

var newOAuthState = idgen.Hex(16)

func (s *Server) handleGoogleStart(w http.ResponseWriter, r *http.Request) {
	state := newOAuthState()
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/api/auth/google",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.secureCookies,
	})
	http.Redirect(w, r, s.google.AuthCodeURL(state), http.StatusFound)
}

func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(oauthStateCookie)
	state := r.URL.Query().Get("state")
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(c.Value), []byte(state)) != 1 {
		badRequest(w, errors.New("invalid oauth state"))
		return
	}
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Path: "/api/auth/google", MaxAge: -1})

	u, _, err := auth.FetchGoogleUser(r.Context(), s.google, r.URL.Query().Get("code"))
	if err != nil {
		shield.GetLogger(r.Context()).Warn("api: google sign-in failed", "error", err)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "google sign-in failed"})
		return
	}
	o, err := s.owners.UpsertOAuth(r.Context(), "google", u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.signIn(w, o); err != nil {
		writeError(w, r, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}
