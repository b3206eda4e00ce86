package authtest

import (
	"crypto/rand"
	"encoding/hex"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-opencloud-oauth/oauthmodel"
)

const (
	tokenBytes           = 32
	AccessTokenLifetime  = oauthmodel.AccessTokenLifetimeSeconds * time.Second
	RefreshTokenLifetime = 90 * 24 * time.Hour
	IDTokenLifetime      = time.Hour
)

// pendingCode is an issued, unredeemed authorization code.
type pendingCode struct {
	redirectURI   string
	scopes        []string
	codeChallenge string
	issuedAt      time.Time
}

// grant is one live token pair.
type grant struct {
	id           string
	accessToken  string
	refreshToken string
	scopes       []string
	issuedAt     time.Time
	// refreshIssuedAt survives rotation; the refresh lifetime is not extended.
	refreshIssuedAt time.Time
}

func (g *grant) hasScope(scope string) bool {
	return slices.Contains(g.scopes, scope)
}

func (g *grant) scope() string {
	return strings.Join(g.scopes, oauthmodel.ScopeDelimiter)
}

// grantsResources reports whether the user picked any account or experience,
// which only happens when something beyond identity scopes was requested.
func (g *grant) grantsResources() bool {
	for _, s := range g.scopes {
		if s != oauthmodel.ScopeOpenID && s != oauthmodel.ScopeProfile {
			return true
		}
	}
	return false
}

func randomToken() string {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

func newGrant(scopes []string, now time.Time) *grant {
	return &grant{
		id:              uuid.NewString(),
		accessToken:     randomToken(),
		refreshToken:    randomToken(),
		scopes:          scopes,
		issuedAt:        now,
		refreshIssuedAt: now,
	}
}
