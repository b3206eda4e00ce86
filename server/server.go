// Package server exposes the browser side of the authorization code flow:
// /login sends the user to the consent page and /callback completes the
// session.
package server

import (
	"net/http"
	"strings"

	"github.com/jrsteele09/go-opencloud-oauth/oauthapp"
	"github.com/jrsteele09/go-opencloud-oauth/session"
	"github.com/rs/zerolog"
)

const SessionCookieName = "opencloud_session"

type Server struct {
	mux      *http.ServeMux
	routes   []string
	sessions *session.Manager
	scopes   []string
	logger   zerolog.Logger
}

type Option func(*Server)

// WithScopes sets the scopes /login requests when the query has none.
func WithScopes(scopes []string) Option {
	return func(s *Server) { s.scopes = oauthapp.NormalizeScopes(scopes) }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

func New(sessions *session.Manager, opts ...Option) *Server {
	s := &Server{
		mux:      http.NewServeMux(),
		sessions: sessions,
		scopes:   []string{"openid", "profile"},
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.initRoutes()
	s.logRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	for _, route := range s.routes {
		method, path, ok := strings.Cut(route, " ")
		if !ok {
			method, path = "", route
		}
		s.logger.Debug().Str("method", method).Str("path", path).Msg("route registered")
	}
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
