package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-opencloud-oauth/oauthapp"
	"github.com/jrsteele09/go-opencloud-oauth/session"
	"github.com/jrsteele09/go-opencloud-oauth/tokenstore"
)

const contentTypeJSON = "application/json; charset=utf-8"

// SessionSummary is what /callback and /sessions/{key} report. It never
// includes token values.
type SessionSummary struct {
	Session   string    `json:"session"`
	State     string    `json:"state"`
	UserID    string    `json:"user_id,omitempty"`
	Username  string    `json:"username,omitempty"`
	Scopes    []string  `json:"scopes,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// Summarize reports rec without its tokens.
func Summarize(rec *tokenstore.Record) SessionSummary {
	return SessionSummary{
		Session:   rec.Key,
		State:     string(rec.State),
		UserID:    rec.UserID,
		Username:  rec.Username,
		Scopes:    rec.Scopes,
		ExpiresAt: rec.ExpiresAt,
	}
}

// LoginHandler starts an authorization and redirects to the consent page.
// The session key comes from the session cookie and is generated otherwise;
// callers never choose it.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := sessionKey(r)
		if key == "" {
			key = uuid.NewString()
		}

		scopes := s.scopes
		if raw := r.URL.Query().Get("scope"); strings.TrimSpace(raw) != "" {
			scopes = strings.Fields(raw)
		}

		auth, err := s.sessions.Begin(r.Context(), key, scopes)
		if err != nil {
			s.writeError(w, "login", err)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookieName,
			Value:    key,
			Path:     "/",
			HttpOnly: true,
			Secure:   getScheme(r) == "https",
			SameSite: http.SameSiteLaxMode,
		})
		http.Redirect(w, r, auth.URL, http.StatusFound)
	}
}

// CallbackHandler completes the authorization the redirect belongs to.
func (s *Server) CallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		state := q.Get("state")
		code := q.Get("code")

		if errorParam := q.Get("error"); errorParam != "" {
			http.Error(w, fmt.Sprintf("Authorization failed: %s - %s", errorParam, q.Get("error_description")), http.StatusBadRequest)
			return
		}
		if code == "" || state == "" {
			http.Error(w, "Missing code or state parameter", http.StatusBadRequest)
			return
		}

		key := sessionKey(r)
		if key == "" {
			http.Error(w, "Missing session cookie", http.StatusBadRequest)
			return
		}

		rec, err := s.sessions.Complete(r.Context(), key, state, code)
		if err != nil {
			s.writeError(w, "callback", err)
			return
		}
		writeJSON(w, http.StatusOK, Summarize(rec))
	}
}

// sessionKey returns the browser's session cookie value, or "".
func sessionKey(r *http.Request) string {
	c, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// SessionHandler reports a session's state.
func (s *Server) SessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := s.sessions.Session(r.Context(), r.PathValue("key"))
		if err != nil {
			s.writeError(w, "session", err)
			return
		}
		writeJSON(w, http.StatusOK, Summarize(rec))
	}
}

// RevokeHandler revokes a session's token pair and reports the final state.
func (s *Server) RevokeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.PathValue("key")
		if err := s.sessions.Revoke(r.Context(), key); err != nil {
			s.writeError(w, "revoke", err)
			return
		}
		rec, err := s.sessions.Session(r.Context(), key)
		if err != nil {
			s.writeError(w, "revoke", err)
			return
		}
		writeJSON(w, http.StatusOK, Summarize(rec))
	}
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// statusFor maps a session or protocol error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrUnknownState),
		errors.Is(err, tokenstore.ErrInvalidKey),
		errors.Is(err, oauthapp.ErrInvalidRequest),
		errors.Is(err, oauthapp.ErrAuthorization),
		errors.Is(err, oauthapp.ErrInvalidGrant),
		errors.Is(err, oauthapp.ErrInvalidIDToken):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, tokenstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, oauthapp.ErrRateLimited):
		return http.StatusServiceUnavailable
	case errors.Is(err, oauthapp.ErrTransport), errors.Is(err, oauthapp.ErrDecode):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("op", op).Msg("request failed")
	} else {
		s.logger.Warn().Err(err).Str("op", op).Int("status", status).Msg("request rejected")
	}
	writeJSON(w, status, map[string]string{
		"error":             http.StatusText(status),
		"error_description": err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
