package oauthapp_test

import (
	"context"
	"testing"

	"github.com/jrsteele09/go-opencloud-oauth/internal/authtest"
	"github.com/jrsteele09/go-opencloud-oauth/oauthapp"
	"github.com/jrsteele09/go-opencloud-oauth/pkce"
	"github.com/stretchr/testify/require"
)

const (
	scopePublish = "universe-messaging-service:publish"
	testState    = "xyz"
)

func newTestApp(t *testing.T, srv *authtest.Server, opts ...oauthapp.Option) *oauthapp.App {
	t.Helper()

	base := []oauthapp.Option{
		oauthapp.WithEndpoints(oauthapp.EndpointsFromBase(srv.BaseURL())),
		oauthapp.WithHTTPClient(srv.Client()),
	}
	app, err := oauthapp.New(oauthapp.Credentials{
		ClientID:     srv.ClientID,
		ClientSecret: srv.ClientSecret,
		RedirectURI:  srv.RedirectURI,
	}, append(base, opts...)...)
	require.NoError(t, err)
	return app
}

// approve runs the consent step and returns the code and the verifier it is
// bound to.
func approve(t *testing.T, app *oauthapp.App, srv *authtest.Server, scopes ...string) (code, verifier string) {
	t.Helper()

	verifier, err := pkce.NewVerifier()
	require.NoError(t, err)

	authURL, err := app.AuthorizationURL(oauthapp.AuthorizationRequest{Scopes: scopes, State: testState, Verifier: verifier})
	require.NoError(t, err)

	code, state, err := srv.Approve(authURL)
	require.NoError(t, err)
	require.Equal(t, testState, state)
	return code, verifier
}

func authorize(t *testing.T, app *oauthapp.App, srv *authtest.Server, scopes ...string) *oauthapp.AccessToken {
	t.Helper()

	code, verifier := approve(t, app, srv, scopes...)
	tok, err := app.Exchange(context.Background(), code, verifier)
	require.NoError(t, err)
	return tok
}

func requireOp(t *testing.T, err error, op string) *oauthapp.Error {
	t.Helper()

	var oerr *oauthapp.Error
	require.ErrorAs(t, err, &oerr)
	require.Equal(t, op, oerr.Op)
	return oerr
}
