package oauthapp_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-opencloud-oauth/internal/authtest"
	"github.com/jrsteele09/go-opencloud-oauth/oauthapp"
	"github.com/jrsteele09/go-opencloud-oauth/pkce"
	"github.com/stretchr/testify/require"
)

func TestExchange(t *testing.T) {
	ctx := context.Background()
	srv := authtest.New(t)
	app := newTestApp(t, srv)

	t.Run("identity from the id token", func(t *testing.T) {
		tok := authorize(t, app, srv, "openid", "profile")

		require.NotEmpty(t, tok.Value)
		require.NotEmpty(t, tok.RefreshToken)
		require.NotEmpty(t, tok.IDToken)
		require.Equal(t, []string{"openid", "profile"}, tok.Scopes)
		require.True(t, tok.HasScope("profile"))
		require.False(t, tok.Expired())
		require.WithinDuration(t, tok.ObtainedAt.Add(15*time.Minute), tok.ExpiresAt, time.Second)

		require.NotNil(t, tok.Identity)
		require.Equal(t, authtest.DefaultUser.ID, tok.Identity.UserID)
		require.Equal(t, authtest.DefaultUser.Username, tok.Identity.Username)
		require.Equal(t, authtest.DefaultUser.DisplayName, tok.Identity.DisplayName)
		require.Equal(t, authtest.DefaultUser.Picture, tok.Identity.HeadshotURI)
		require.True(t, authtest.DefaultUser.CreatedAt.Equal(tok.Identity.CreatedAt))
	})

	t.Run("openid without profile", func(t *testing.T) {
		tok := authorize(t, app, srv, "openid")
		require.NotNil(t, tok.Identity)
		require.Equal(t, authtest.DefaultUser.ID, tok.Identity.UserID)
		require.Empty(t, tok.Identity.Username)
	})

	t.Run("no openid means no identity", func(t *testing.T) {
		tok := authorize(t, app, srv, scopePublish)
		require.Nil(t, tok.Identity)
		require.Empty(t, tok.IDToken)
	})

	t.Run("code is single use", func(t *testing.T) {
		code, verifier := approve(t, app, srv, "openid")

		_, err := app.Exchange(ctx, code, verifier)
		require.NoError(t, err)

		_, err = app.Exchange(ctx, code, verifier)
		require.ErrorIs(t, err, oauthapp.ErrAuthorization)
		oerr := requireOp(t, err, "exchange")
		require.Equal(t, http.StatusBadRequest, oerr.StatusCode)
		require.Equal(t, "invalid_grant", oerr.Code)
	})

	t.Run("verifier mismatch", func(t *testing.T) {
		code, _ := approve(t, app, srv, "openid")
		other, err := pkce.NewVerifier()
		require.NoError(t, err)

		_, err = app.Exchange(ctx, code, other)
		require.ErrorIs(t, err, oauthapp.ErrAuthorization)
	})

	t.Run("empty code", func(t *testing.T) {
		before := srv.TokenRequests()
		_, err := app.Exchange(ctx, " ", "")
		require.ErrorIs(t, err, oauthapp.ErrInvalidRequest)
		require.Equal(t, before, srv.TokenRequests())
	})

	t.Run("server failure is not retried", func(t *testing.T) {
		code, verifier := approve(t, app, srv, "openid")
		srv.FailTokenRequests(http.StatusServiceUnavailable)
		before := srv.TokenRequests()

		_, err := app.Exchange(ctx, code, verifier)
		require.ErrorIs(t, err, oauthapp.ErrTransport)
		require.Equal(t, before+1, srv.TokenRequests())
	})

	t.Run("rate limited", func(t *testing.T) {
		code, verifier := approve(t, app, srv, "openid")
		srv.FailTokenRequests(http.StatusTooManyRequests)

		_, err := app.Exchange(ctx, code, verifier)
		require.ErrorIs(t, err, oauthapp.ErrRateLimited)
	})
}

func TestExchange_ClientAuthentication(t *testing.T) {
	ctx := context.Background()
	srv := authtest.New(t)

	t.Run("wrong secret", func(t *testing.T) {
		app, err := oauthapp.New(oauthapp.Credentials{
			ClientID:     srv.ClientID,
			ClientSecret: "not-the-secret",
			RedirectURI:  srv.RedirectURI,
		}, oauthapp.WithEndpoints(oauthapp.EndpointsFromBase(srv.BaseURL())))
		require.NoError(t, err)

		code, verifier := approve(t, app, srv, "openid")
		_, err = app.Exchange(ctx, code, verifier)
		require.ErrorIs(t, err, oauthapp.ErrAuthorization)
		require.Equal(t, "invalid_client", requireOp(t, err, "exchange").Code)
	})

	t.Run("public client needs a verifier", func(t *testing.T) {
		app, err := oauthapp.New(oauthapp.Credentials{
			ClientID:    srv.ClientID,
			RedirectURI: srv.RedirectURI,
		}, oauthapp.WithEndpoints(oauthapp.EndpointsFromBase(srv.BaseURL())))
		require.NoError(t, err)

		_, err = app.Exchange(ctx, "some-code", "")
		require.ErrorIs(t, err, oauthapp.ErrInvalidRequest)

		tok := authorize(t, app, srv, "openid")
		require.NotNil(t, tok.Identity)
	})
}

func TestExchange_UntrustedIDToken(t *testing.T) {
	srv := authtest.New(t)

	endpoints := oauthapp.EndpointsFromBase(srv.BaseURL())
	endpoints.Issuer = "https://issuer.example.com/oauth/"
	app := newTestApp(t, srv, oauthapp.WithEndpoints(endpoints))

	code, verifier := approve(t, app, srv, "openid", "profile")
	tok, err := app.Exchange(context.Background(), code, verifier)
	require.ErrorIs(t, err, oauthapp.ErrInvalidIDToken)

	// The pair is still usable and must be persisted or revoked.
	require.NotNil(t, tok)
	require.Nil(t, tok.Identity)
	require.NotEmpty(t, tok.RefreshToken)
	require.NoError(t, tok.RevokeRefreshToken(context.Background()))
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	srv := authtest.New(t)
	app := newTestApp(t, srv)

	t.Run("rotates the pair", func(t *testing.T) {
		tok := authorize(t, app, srv, "openid", "profile")

		next, err := app.Refresh(ctx, tok.RefreshToken)
		require.NoError(t, err)
		require.NotEqual(t, tok.Value, next.Value)
		require.NotEqual(t, tok.RefreshToken, next.RefreshToken)
		require.Equal(t, tok.Scopes, next.Scopes)
		require.Nil(t, next.Identity)
		require.Empty(t, next.IDToken)

		_, err = app.Refresh(ctx, tok.RefreshToken)
		require.ErrorIs(t, err, oauthapp.ErrInvalidGrant)

		_, err = tok.UserInfo(ctx)
		require.ErrorIs(t, err, oauthapp.ErrTokenExpired)

		identity, err := next.UserInfo(ctx)
		require.NoError(t, err)
		require.Equal(t, authtest.DefaultUser.ID, identity.UserID)
	})

	t.Run("concurrent refresh of one token", func(t *testing.T) {
		tok := authorize(t, app, srv, "openid")

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := range errs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = app.Refresh(ctx, tok.RefreshToken)
			}()
		}
		wg.Wait()

		var succeeded, rejected int
		for _, err := range errs {
			switch {
			case err == nil:
				succeeded++
			case oauthErrIs(err, oauthapp.ErrInvalidGrant):
				rejected++
			}
		}
		require.Equal(t, 1, succeeded)
		require.Equal(t, 1, rejected)
	})

	t.Run("unknown outcome", func(t *testing.T) {
		tok := authorize(t, app, srv, "openid")
		srv.FailTokenRequests(http.StatusBadGateway)

		_, err := app.Refresh(ctx, tok.RefreshToken)
		require.ErrorIs(t, err, oauthapp.ErrRefreshOutcomeUnknown)
		require.ErrorIs(t, err, oauthapp.ErrTransport)
	})

	t.Run("server_error code under a 4xx status", func(t *testing.T) {
		tok := authorize(t, app, srv, "openid")
		srv.FailTokenRequests(http.StatusBadRequest)

		_, err := app.Refresh(ctx, tok.RefreshToken)
		require.ErrorIs(t, err, oauthapp.ErrRefreshOutcomeUnknown)
		require.NotErrorIs(t, err, oauthapp.ErrInvalidGrant)
		require.Equal(t, "server_error", requireOp(t, err, "refresh").Code)
	})

	t.Run("canceled before sending", func(t *testing.T) {
		tok := authorize(t, app, srv, "openid")
		sent := srv.TokenRequests()

		canceled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := app.Refresh(canceled, tok.RefreshToken)
		require.ErrorIs(t, err, oauthapp.ErrTransport)
		require.ErrorIs(t, err, context.Canceled)
		require.NotErrorIs(t, err, oauthapp.ErrRefreshOutcomeUnknown)
		require.Equal(t, sent, srv.TokenRequests())

		_, err = app.Refresh(ctx, tok.RefreshToken)
		require.NoError(t, err)
	})

	t.Run("unreachable server", func(t *testing.T) {
		dead := newTestApp(t, srv, oauthapp.WithEndpoints(oauthapp.EndpointsFromBase("http://127.0.0.1:1/oauth/")))
		_, err := dead.Refresh(ctx, "whatever")
		require.ErrorIs(t, err, oauthapp.ErrRefreshOutcomeUnknown)
	})

	t.Run("expired refresh token", func(t *testing.T) {
		tok := authorize(t, app, srv, "openid")
		srv.Advance(authtest.RefreshTokenLifetime + time.Hour)
		t.Cleanup(func() { srv.Advance(-(authtest.RefreshTokenLifetime + time.Hour)) })

		_, err := app.Refresh(ctx, tok.RefreshToken)
		require.ErrorIs(t, err, oauthapp.ErrInvalidGrant)
	})

	t.Run("empty token", func(t *testing.T) {
		_, err := app.Refresh(ctx, "")
		require.ErrorIs(t, err, oauthapp.ErrInvalidRequest)
	})
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	srv := authtest.New(t)
	app := newTestApp(t, srv)

	t.Run("by refresh token", func(t *testing.T) {
		tok := authorize(t, app, srv, "openid", scopePublish)

		require.NoError(t, tok.RevokeRefreshToken(ctx))

		_, err := tok.Resources(ctx)
		require.ErrorIs(t, err, oauthapp.ErrTokenExpired)

		_, err = app.Refresh(ctx, tok.RefreshToken)
		require.ErrorIs(t, err, oauthapp.ErrInvalidGrant)

		err = tok.RevokeRefreshToken(ctx)
		require.ErrorIs(t, err, oauthapp.ErrInvalidGrant)
	})

	t.Run("by access token", func(t *testing.T) {
		tok := authorize(t, app, srv, "openid")

		require.NoError(t, tok.Revoke(ctx))

		_, err := app.Refresh(ctx, tok.RefreshToken)
		require.ErrorIs(t, err, oauthapp.ErrInvalidGrant)
	})

	t.Run("empty token", func(t *testing.T) {
		require.ErrorIs(t, app.Revoke(ctx, ""), oauthapp.ErrInvalidRequest)
	})
}

func oauthErrIs(err, kind error) bool {
	oerr, ok := err.(*oauthapp.Error)
	return ok && oerr.Kind == kind
}
