package oauthapp

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-opencloud-oauth/oauthmodel"
)

// verifyIDToken checks the ES256 signature against the cached certs, the
// issuer, the audience and the expiry, then maps the claims.
func (a *App) verifyIDToken(ctx context.Context, raw string) (*Identity, error) {
	idToken, err := a.idVerifier.Verify(oidc.ClientContext(ctx, a.httpClient), raw)
	if err != nil {
		return nil, fmt.Errorf("verify id token: %w", err)
	}

	var claims oauthmodel.UserInfoResponse
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("decode id token claims: %w", err)
	}
	if claims.Subject() == "" {
		return nil, fmt.Errorf("id token has no subject")
	}
	return identityFromClaims(claims), nil
}
