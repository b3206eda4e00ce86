package oauthmodel

// ResponseType represents the OAuth 2.0 response type.
// Determines what is returned from the authorization endpoint.
type ResponseType string

const (
	// CodeResponseType indicates the authorization code flow.
	// The consent page redirects back with a single-use code that must be
	// exchanged at the token endpoint.
	// Example: /oauth/v1/authorize?response_type=code&client_id=...
	CodeResponseType ResponseType = "code"
)

// CodeMethodType represents the PKCE (Proof Key for Code Exchange) challenge method.
type CodeMethodType string

const (
	// CodeMethodTypeS256 indicates SHA-256 hashing is used for the code challenge.
	// Client sends: code_challenge = BASE64URL(SHA256(code_verifier))
	// Server validates: SHA256(provided code_verifier) == stored code_challenge
	// The platform only accepts S256.
	CodeMethodTypeS256 CodeMethodType = "S256"
)

// GrantType represents the OAuth 2.0 grant type used at the token endpoint.
type GrantType string

const (
	// AuthorizationCodeGrant exchanges an authorization code for tokens.
	// Token request includes: code, client_id, client_secret, redirect_uri, code_verifier (if PKCE)
	// Returns: access_token, refresh_token, id_token (if openid was granted)
	AuthorizationCodeGrant GrantType = "authorization_code"

	// RefreshTokenGrant exchanges a refresh token for a new token pair.
	// Token request includes: refresh_token, client_id, client_secret
	// Returns: new access_token and rotated refresh_token, never an id_token
	// The presented refresh token is consumed whether or not the caller sees the response.
	RefreshTokenGrant GrantType = "refresh_token"
)

// Scopes understood by the identity endpoints. Resource scopes
// (e.g. "universe-datastores.objects:read") are opaque to this package.
const (
	// ScopeOpenID grants the user id and makes the token endpoint return an id_token.
	ScopeOpenID = "openid"

	// ScopeProfile adds username, display name and headshot to identity claims.
	ScopeProfile = "profile"
)

// ScopeDelimiter joins scopes in the scope query/form parameter.
const ScopeDelimiter = " "

// AccessTokenLifetimeSeconds is the fixed server-side lifetime of an access token.
// Used when the token response omits expires_in.
const AccessTokenLifetimeSeconds = 15 * 60
