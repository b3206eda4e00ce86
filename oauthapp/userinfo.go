package oauthapp

import (
	"context"
	"slices"

	"github.com/jrsteele09/go-opencloud-oauth/oauthmodel"
)

// UserInfo fetches the identity claims for the token's user. Tokens
// produced by Refresh need this to learn who they belong to.
func (t *PartialToken) UserInfo(ctx context.Context) (*Identity, error) {
	const op = "userinfo"

	if t.scopes != nil && !slices.Contains(t.scopes, oauthmodel.ScopeOpenID) {
		return nil, &Error{Kind: ErrInsufficientScope, Op: op, Scope: oauthmodel.ScopeOpenID}
	}
	if err := t.usable(op); err != nil {
		return nil, err
	}

	var claims oauthmodel.UserInfoResponse
	if err := t.app.getBearer(ctx, op, t.app.endpoints.UserInfoURL, t.Value, bearerFailure, &claims); err != nil {
		return nil, err
	}
	if claims.Subject() == "" {
		return nil, &Error{Kind: ErrDecode, Op: op, Description: "userinfo response has no subject"}
	}
	return identityFromClaims(claims), nil
}
