package oauthmodel

// TokenRequest holds the form parameters of a token endpoint request.
type TokenRequest struct {
	// GrantType selects the flow: authorization_code or refresh_token.
	GrantType GrantType

	// ClientID identifies the application (numeric, sent as a decimal string).
	ClientID string

	// ClientSecret is the secret credential for confidential clients.
	// Required: No when a PKCE code_verifier is sent instead
	// Security: Never log or expose this value
	ClientSecret string

	// RedirectURI must equal the redirect_uri sent to the authorize endpoint.
	// Required: Yes (only for authorization_code grant)
	RedirectURI string

	// Code is the authorization code received on the redirect.
	// Usage: Exchanged once for tokens, then becomes invalid
	Code string

	// CodeVerifier is the PKCE code verifier that matches the code_challenge.
	// Validation: Server compares SHA256(code_verifier) with stored code_challenge
	CodeVerifier string

	// RefreshToken is the token being rotated (only for refresh_token grant).
	RefreshToken string
}

// TokenTypeHint is the optional revoke/introspect hint about which kind of
// token is being presented.
type TokenTypeHint string

const (
	AccessTokenHint  TokenTypeHint = "access_token"
	RefreshTokenHint TokenTypeHint = "refresh_token"
)
