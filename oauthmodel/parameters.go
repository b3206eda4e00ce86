package oauthmodel

// AuthorizationParameters holds the query parameters of the consent page URL.
type AuthorizationParameters struct {
	// ClientID identifies the application requesting authorization.
	// Required: Yes
	ClientID string

	// ResponseType specifies what the authorization endpoint should return.
	// Required: Yes
	// Example: "code" (only supported value)
	ResponseType ResponseType

	// RedirectURI is where the authorization response will be sent.
	// Required: Yes
	// Security: Must exactly match the registered URI to prevent open redirects
	RedirectURI string

	// Scope specifies the permissions being requested, space separated.
	// Required: Yes
	// Example: "openid profile universe-messaging-service:publish"
	Scope string

	// State is an opaque value echoed back verbatim on the redirect.
	// Required: Recommended (CSRF protection and flow correlation)
	State string

	// CodeChallenge is the PKCE challenge derived from code_verifier.
	// Example: BASE64URL(SHA256(code_verifier))
	// Length: 43 characters when using S256
	CodeChallenge string

	// CodeChallengeMethod specifies how code_challenge was derived.
	// Required: Yes if code_challenge is provided
	CodeChallengeMethod CodeMethodType
}
