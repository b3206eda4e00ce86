package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/jrsteele09/go-opencloud-oauth/flowstate"
	"github.com/jrsteele09/go-opencloud-oauth/internal/authtest"
	"github.com/jrsteele09/go-opencloud-oauth/oauthapp"
	"github.com/jrsteele09/go-opencloud-oauth/server"
	"github.com/jrsteele09/go-opencloud-oauth/session"
	"github.com/jrsteele09/go-opencloud-oauth/tokenstore"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*server.Server, *authtest.Server) {
	t.Helper()

	srv := authtest.New(t)
	app, err := oauthapp.New(oauthapp.Credentials{
		ClientID:     srv.ClientID,
		ClientSecret: srv.ClientSecret,
		RedirectURI:  srv.RedirectURI,
	}, oauthapp.WithEndpoints(oauthapp.EndpointsFromBase(srv.BaseURL())))
	require.NoError(t, err)

	manager := session.NewManager(app, flowstate.NewMemoryStore(), tokenstore.NewMemoryStore())
	return server.New(manager, server.WithScopes([]string{"openid", "profile"})), srv
}

func get(t *testing.T, h http.Handler, target string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// login follows /login to the consent page and returns the callback URL the
// browser would be sent to.
func login(t *testing.T, h http.Handler, srv *authtest.Server, target string) (callback string, cookie *http.Cookie) {
	t.Helper()

	rec := get(t, h, target)
	require.Equal(t, http.StatusFound, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, server.SessionCookieName, cookies[0].Name)
	require.True(t, cookies[0].HttpOnly)

	code, state, err := srv.Approve(rec.Header().Get("Location"))
	require.NoError(t, err)
	return server.RouteCallback + "?" + url.Values{"code": {code}, "state": {state}}.Encode(), cookies[0]
}

func TestLoginAndCallback(t *testing.T) {
	h, srv := newTestServer(t)

	callback, cookie := login(t, h, srv, server.RouteLogin)
	key := cookie.Value
	require.NotEmpty(t, key)

	rec := get(t, h, callback, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var summary server.SessionSummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&summary))
	require.Equal(t, key, summary.Session)
	require.Equal(t, string(tokenstore.Authorized), summary.State)
	require.Equal(t, authtest.DefaultUser.ID, summary.UserID)
	require.Equal(t, []string{"openid", "profile"}, summary.Scopes)
	require.NotContains(t, rec.Body.String(), "token")

	// Replaying the callback fails.
	rec = get(t, h, callback, cookie)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, h, "/sessions/"+key)
	require.Equal(t, http.StatusOK, rec.Code)

	// An authorized session cannot start over.
	rec = get(t, h, server.RouteLogin, cookie)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/sessions/"+key, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	summary = server.SessionSummary{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&summary))
	require.Equal(t, string(tokenstore.Revoked), summary.State)
	require.Zero(t, srv.ActiveGrants())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/sessions/"+key, nil))
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestLogin(t *testing.T) {
	h, _ := newTestServer(t)

	t.Run("generates a session key", func(t *testing.T) {
		rec := get(t, h, server.RouteLogin)
		require.Equal(t, http.StatusFound, rec.Code)
		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		require.NotEmpty(t, cookies[0].Value)
	})

	t.Run("scope override", func(t *testing.T) {
		rec := get(t, h, server.RouteLogin+"?scope="+url.QueryEscape("openid universe-messaging-service:publish"))
		require.Equal(t, http.StatusFound, rec.Code)

		location, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		require.Equal(t, "openid universe-messaging-service:publish", location.Query().Get("scope"))
		require.NotEmpty(t, location.Query().Get("code_challenge"))
	})
}

func TestCallback_Errors(t *testing.T) {
	h, _ := newTestServer(t)

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"denied", server.RouteCallback + "?error=access_denied&error_description=no", http.StatusBadRequest},
		{"missing code", server.RouteCallback + "?state=abc", http.StatusBadRequest},
		{"missing state", server.RouteCallback + "?code=abc", http.StatusBadRequest},
		{"unknown state", server.RouteCallback + "?code=abc&state=forged", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, get(t, h, tt.target).Code)
		})
	}
}

func TestCallback_BoundToSessionCookie(t *testing.T) {
	h, srv := newTestServer(t)

	callback, attacker := login(t, h, srv, server.RouteLogin)

	// The victim has a pending login of their own.
	rec := get(t, h, server.RouteLogin)
	require.Equal(t, http.StatusFound, rec.Code)
	victim := rec.Result().Cookies()[0]
	require.NotEqual(t, attacker.Value, victim.Value)

	t.Run("requires a session cookie", func(t *testing.T) {
		require.Equal(t, http.StatusBadRequest, get(t, h, callback).Code)
	})

	t.Run("rejects another session's state", func(t *testing.T) {
		rec := get(t, h, callback, victim)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.NotContains(t, rec.Body.String(), attacker.Value)

		var summary server.SessionSummary
		rec = get(t, h, "/sessions/"+victim.Value)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&summary))
		require.Equal(t, string(tokenstore.AwaitingCode), summary.State)
		require.Empty(t, summary.UserID)
	})

	t.Run("a rejected state cannot be replayed", func(t *testing.T) {
		require.Equal(t, http.StatusBadRequest, get(t, h, callback, attacker).Code)
	})
}

func TestSession_NotFound(t *testing.T) {
	h, _ := newTestServer(t)
	require.Equal(t, http.StatusNotFound, get(t, h, "/sessions/nobody").Code)
}

func TestHealth(t *testing.T) {
	h, _ := newTestServer(t)
	rec := get(t, h, server.RouteHealth)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
