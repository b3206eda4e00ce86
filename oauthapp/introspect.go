package oauthapp

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/jrsteele09/go-opencloud-oauth/oauthmodel"
)

// TokenInfo is the server's view of a token.
type TokenInfo struct {
	Active    bool
	ID        string
	ClientID  uint64
	UserID    string
	Scopes    []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Introspect asks the server whether the token is active and what it grants.
func (t *PartialToken) Introspect(ctx context.Context) (*TokenInfo, error) {
	const op = "introspect"

	form := t.app.clientForm()
	form.Set("token", t.Value)

	var resp oauthmodel.IntrospectionResponse
	if err := t.app.postForm(ctx, op, t.app.endpoints.IntrospectURL, form, bearerFailure, &resp); err != nil {
		return nil, err
	}

	info := &TokenInfo{
		Active: resp.Active,
		ID:     resp.JTI,
		UserID: resp.Sub,
		Scopes: strings.Fields(resp.Scope),
	}
	if resp.ClientID != "" {
		id, err := strconv.ParseUint(resp.ClientID, 10, 64)
		if err != nil {
			return nil, &Error{Kind: ErrDecode, Op: op, Err: err}
		}
		info.ClientID = id
	}
	if resp.Iat > 0 {
		info.IssuedAt = time.Unix(resp.Iat, 0).UTC()
	}
	if resp.Exp > 0 {
		info.ExpiresAt = time.Unix(resp.Exp, 0).UTC()
	}
	return info, nil
}
