package oauthapp

import (
	"context"
	"slices"
	"strings"

	"github.com/jrsteele09/go-opencloud-oauth/oauthmodel"
	"github.com/jrsteele09/go-opencloud-oauth/pkce"
	"golang.org/x/oauth2"
)

// Exchange trades an authorization code for a token pair. verifier must be
// the PKCE verifier used to build the authorization URL, or empty. Either a
// verifier or the client secret is required.
//
// The code is single use; failures are never retried. When the ID token
// fails verification the token pair is still returned, together with an
// ErrInvalidIDToken error, so the refresh token can be persisted.
func (a *App) Exchange(ctx context.Context, code, verifier string) (*AccessToken, error) {
	const op = "exchange"

	if strings.TrimSpace(code) == "" {
		return nil, invalidRequest(op, "authorization code is required")
	}
	if verifier == "" && a.creds.ClientSecret == "" {
		return nil, invalidRequest(op, "a client secret or a code verifier is required")
	}

	var opts []oauth2.AuthCodeOption
	if verifier != "" {
		if err := pkce.Validate(verifier); err != nil {
			return nil, &Error{Kind: ErrInvalidRequest, Op: op, Err: err}
		}
		opts = append(opts, oauth2.VerifierOption(verifier))
	}

	tok, err := a.oauthConfig.Exchange(a.clientContext(ctx), code, opts...)
	if err != nil {
		return nil, a.tokenEndpointError(op, err, ErrAuthorization, ErrTransport)
	}

	at := a.newAccessToken(tok)
	if at.IDToken == "" {
		return at, nil
	}
	if at.Scopes != nil && !slices.Contains(at.Scopes, oauthmodel.ScopeOpenID) {
		a.logger.Warn().Msg("ignoring id_token on a token without the openid scope")
		return at, nil
	}

	identity, err := a.verifyIDToken(ctx, at.IDToken)
	if err != nil {
		a.logger.Warn().Err(err).Msg("id_token verification failed")
		return at, &Error{Kind: ErrInvalidIDToken, Op: op, Err: err}
	}
	at.Identity = identity
	return at, nil
}

// Refresh trades a refresh token for a new pair. The old pair is invalid
// afterwards and the caller must persist the new refresh token. The result
// never carries Identity.
//
// Refresh is never retried. A failure matching ErrRefreshOutcomeUnknown may
// have consumed the token server side.
func (a *App) Refresh(ctx context.Context, refreshToken string) (*AccessToken, error) {
	const op = "refresh"

	if strings.TrimSpace(refreshToken) == "" {
		return nil, invalidRequest(op, "refresh token is required")
	}
	// Nothing was sent yet, so the token is known to be unspent.
	if err := ctx.Err(); err != nil {
		return nil, &Error{Kind: ErrTransport, Op: op, Err: err}
	}

	src := a.oauthConfig.TokenSource(a.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, a.tokenEndpointError(op, err, ErrInvalidGrant, ErrRefreshOutcomeUnknown)
	}

	at := a.newAccessToken(tok)
	at.IDToken = ""
	return at, nil
}

// Revoke invalidates the pair that token (access or refresh) belongs to.
// Revoking an already revoked token fails with ErrInvalidGrant.
func (a *App) Revoke(ctx context.Context, token string) error {
	const op = "revoke"

	if strings.TrimSpace(token) == "" {
		return invalidRequest(op, "token is required")
	}

	form := a.clientForm()
	form.Set("token", token)
	return a.postForm(ctx, op, a.endpoints.RevokeURL, form, revokeFailure, nil)
}
