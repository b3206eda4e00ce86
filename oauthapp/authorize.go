package oauthapp

import (
	"slices"
	"strings"

	"github.com/jrsteele09/go-opencloud-oauth/pkce"
	"golang.org/x/oauth2"
)

// AuthorizationRequest describes one consent request.
type AuthorizationRequest struct {
	// Scopes must contain at least one non-blank scope.
	Scopes []string

	// State is echoed back verbatim on the redirect. Optional.
	State string

	// Verifier enables PKCE. The same verifier must be passed to Exchange.
	Verifier string
}

// AuthorizationURL builds the consent page URL the user is redirected to.
func (a *App) AuthorizationURL(req AuthorizationRequest) (string, error) {
	scopes := NormalizeScopes(req.Scopes)
	if len(scopes) == 0 {
		return "", invalidRequest("authorize", "at least one scope is required")
	}

	var opts []oauth2.AuthCodeOption
	if req.Verifier != "" {
		if err := pkce.Validate(req.Verifier); err != nil {
			return "", &Error{Kind: ErrInvalidRequest, Op: "authorize", Err: err}
		}
		opts = append(opts, oauth2.S256ChallengeOption(req.Verifier))
	}

	cfg := a.oauthConfig
	cfg.Scopes = scopes
	return cfg.AuthCodeURL(req.State, opts...), nil
}

// NormalizeScopes trims, deduplicates and sorts scopes so the same set
// always produces the same scope parameter.
func NormalizeScopes(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		out = append(out, strings.Fields(s)...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}
