package oauthmodel

// TokenResponse represents the response from the token endpoint.
// Returned for both the authorization_code and refresh_token grants.
type TokenResponse struct {
	// AccessToken is the opaque bearer token used to access protected resources.
	// Usage: Include in Authorization header: "Bearer <access_token>"
	// Lifespan: 15 minutes, fixed server-side
	AccessToken string `json:"access_token"`

	// RefreshToken is the single-use token used to obtain a new token pair.
	// Lifespan: 6 months rolling from last use
	// Security: Rotates on each use; the caller must persist the newest one
	RefreshToken string `json:"refresh_token,omitempty"`

	// TokenType indicates how to use the access token (always "Bearer").
	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the lifetime in seconds of the access token.
	// Example: 899
	ExpiresIn int `json:"expires_in,omitempty"`

	// IDToken is the OpenID Connect ID token (ES256 signed JWT).
	// Only present: After an authorization_code exchange that granted "openid"
	IDToken string `json:"id_token,omitempty"`

	// Scope is the space separated list of granted scopes.
	// Note: May be less than requested if the user declined some scopes
	Scope string `json:"scope,omitempty"`
}

// ErrorResponse is the OAuth2 error body returned by every endpoint.
type ErrorResponse struct {
	// Error is the machine readable error code.
	// Example: "invalid_grant", "invalid_client", "insufficient_scope"
	Error string `json:"error"`

	// ErrorDescription is a human readable explanation.
	ErrorDescription string `json:"error_description,omitempty"`

	// Scope names the missing scope when Error is "insufficient_scope".
	Scope string `json:"scope,omitempty"`
}
