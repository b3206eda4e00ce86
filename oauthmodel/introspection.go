package oauthmodel

// IntrospectionResponse is the body of the token introspection endpoint.
// When Active is false the remaining fields may be missing.
type IntrospectionResponse struct {
	Active    bool   `json:"active"`
	JTI       string `json:"jti,omitempty"`        // Unique token id
	ClientID  string `json:"client_id,omitempty"`  // Application the token belongs to
	Sub       string `json:"sub,omitempty"`        // User id
	Scope     string `json:"scope,omitempty"`      // Space separated granted scopes
	Exp       int64  `json:"exp,omitempty"`        // Expiry (unix seconds)
	Iat       int64  `json:"iat,omitempty"`        // Issued at (unix seconds)
	TokenType string `json:"token_type,omitempty"` // access_token or refresh_token
}
