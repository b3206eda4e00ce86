package oauthapp

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jrsteele09/go-opencloud-oauth/oauthmodel"
	"golang.org/x/oauth2"
)

// PartialToken is an access token bound to the App that obtained it. It can
// call every resource the user authorized but carries no refresh token.
type PartialToken struct {
	// Value is the opaque bearer string.
	Value string

	app       *App
	scopes    []string  // nil when unknown
	expiresAt time.Time // zero when unknown
}

// AccessToken is the result of an exchange or refresh.
type AccessToken struct {
	PartialToken

	RefreshToken string
	TokenType    string
	Scopes       []string
	ObtainedAt   time.Time
	ExpiresAt    time.Time

	// Identity is set only after an exchange that granted openid. Tokens
	// produced by Refresh never carry it; use UserInfo.
	Identity *Identity

	// IDToken is the raw id_token, if one was returned.
	IDToken string
}

// Identity holds the user's identity claims.
type Identity struct {
	UserID      string
	Username    string
	DisplayName string
	ProfileURI  string
	HeadshotURI string
	CreatedAt   time.Time
}

func identityFromClaims(c oauthmodel.UserInfoResponse) *Identity {
	id := &Identity{
		UserID:      c.Subject(),
		Username:    c.PreferredUsername,
		DisplayName: c.Nickname,
		ProfileURI:  c.Profile,
		HeadshotURI: c.Picture,
	}
	if id.DisplayName == "" {
		id.DisplayName = c.Name
	}
	if c.CreatedAt > 0 {
		id.CreatedAt = time.Unix(c.CreatedAt, 0).UTC()
	}
	return id
}

func (a *App) newAccessToken(tok *oauth2.Token) *AccessToken {
	now := a.now()

	lifetime := expiresIn(tok)
	if lifetime <= 0 {
		lifetime = oauthmodel.AccessTokenLifetimeSeconds * time.Second
	}

	var scopes []string
	if raw, ok := tok.Extra("scope").(string); ok {
		scopes = strings.Fields(raw)
	}

	at := &AccessToken{
		PartialToken: PartialToken{
			Value:     tok.AccessToken,
			app:       a,
			scopes:    scopes,
			expiresAt: now.Add(lifetime),
		},
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Scopes:       scopes,
		ObtainedAt:   now,
		ExpiresAt:    now.Add(lifetime),
	}
	if raw, ok := tok.Extra("id_token").(string); ok {
		at.IDToken = raw
	}
	return at
}

// expiresIn reads the lifetime from the raw response. tok.Expiry is anchored
// to the wall clock, which the App's clock may not follow.
func expiresIn(tok *oauth2.Token) time.Duration {
	var seconds int64
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		seconds = int64(v)
	case string:
		seconds, _ = strconv.ParseInt(v, 10, 64)
	}
	if seconds <= 0 {
		seconds = tok.ExpiresIn
	}
	return time.Duration(seconds) * time.Second
}

// Expired reports whether the access token is past its lifetime.
func (t *AccessToken) Expired() bool {
	return t.PartialToken.expired()
}

// HasScope reports whether scope was granted.
func (t *AccessToken) HasScope(scope string) bool {
	return slices.Contains(t.Scopes, scope)
}

// RevokeRefreshToken revokes the pair through its refresh token.
func (t *AccessToken) RevokeRefreshToken(ctx context.Context) error {
	return t.app.Revoke(ctx, t.RefreshToken)
}

func (t *AccessToken) String() string {
	user := "<none>"
	if t.Identity != nil {
		user = t.Identity.UserID
	}
	return fmt.Sprintf("AccessToken(token=%q user=%s expires_at=%s)", redact(t.Value), user, t.ExpiresAt.Format(time.RFC3339))
}

func (t *PartialToken) expired() bool {
	return !t.expiresAt.IsZero() && !t.app.now().Before(t.expiresAt)
}

// usable fails locally when the token is known to be expired.
func (t *PartialToken) usable(op string) error {
	if t.expired() {
		return &Error{Kind: ErrTokenExpired, Op: op, Description: "access token lifetime elapsed"}
	}
	return nil
}

// Revoke revokes the token pair this access token belongs to.
func (t *PartialToken) Revoke(ctx context.Context) error {
	return t.app.Revoke(ctx, t.Value)
}

// HTTPClient returns a client that authorizes every request with this token.
func (t *PartialToken) HTTPClient(ctx context.Context) *http.Client {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: t.Value, TokenType: "Bearer"})
	return oauth2.NewClient(t.app.clientContext(ctx), src)
}

func (t *PartialToken) String() string {
	return fmt.Sprintf("PartialToken(token=%q)", redact(t.Value))
}

func redact(token string) string {
	if len(token) <= 6 {
		return "..."
	}
	return token[:6] + "..."
}

// RestoreToken rebuilds a PartialToken from persisted values so local expiry
// and scope checks keep working. Zero expiresAt and nil scopes mean unknown.
func (a *App) RestoreToken(accessToken string, scopes []string, expiresAt time.Time) *PartialToken {
	return &PartialToken{app: a, Value: accessToken, scopes: scopes, expiresAt: expiresAt}
}

// GrantedScopes returns the granted scopes, or nil when unknown.
func (t *PartialToken) GrantedScopes() []string {
	return t.scopes
}

// Expiry returns the local expiry, or the zero time when unknown.
func (t *PartialToken) Expiry() time.Time {
	return t.expiresAt
}
