package oauthmodel

// UserInfoResponse is the body of the userinfo endpoint. The same claim
// names appear in the ID token.
type UserInfoResponse struct {
	// Sub is the user id. Present whenever "openid" was granted.
	Sub string `json:"sub"`

	// ID duplicates Sub on some responses.
	ID string `json:"id,omitempty"`

	// PreferredUsername is the account username ("profile" scope).
	PreferredUsername string `json:"preferred_username,omitempty"`

	// Nickname is the display name ("profile" scope).
	Nickname string `json:"nickname,omitempty"`

	// Name is the display name as rendered by the platform.
	Name string `json:"name,omitempty"`

	// Profile is the URL of the user's profile page.
	Profile string `json:"profile,omitempty"`

	// Picture is the headshot thumbnail URL.
	Picture string `json:"picture,omitempty"`

	// CreatedAt is the account creation time in unix seconds.
	CreatedAt int64 `json:"created_at,omitempty"`
}

// Subject returns the user id, preferring "sub".
func (u UserInfoResponse) Subject() string {
	if u.Sub != "" {
		return u.Sub
	}
	return u.ID
}
