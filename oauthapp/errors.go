package oauthapp

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every failure returned by this package matches exactly one of
// these with errors.Is.
var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrAuthorization     = errors.New("authorization failed")
	ErrInvalidGrant      = errors.New("invalid grant")
	ErrTokenExpired      = errors.New("token expired")
	ErrInsufficientScope = errors.New("insufficient scope")
	ErrTransport         = errors.New("transport failure")
	ErrRateLimited       = errors.New("rate limited")
	ErrDecode            = errors.New("malformed response")
	ErrInvalidIDToken    = errors.New("invalid id token")
)

var (
	// ErrRefreshOutcomeUnknown marks a refresh whose request may have reached
	// the server. The refresh token may already be consumed; do not retry blindly.
	ErrRefreshOutcomeUnknown = fmt.Errorf("%w: refresh outcome unknown", ErrTransport)

	// ErrNoResourcesGranted is returned by Resources under ResourcesRequireGrant
	// when the user granted no account or experience.
	ErrNoResourcesGranted = fmt.Errorf("%w: no resources granted", ErrInsufficientScope)
)

// Error describes a failed operation. Kind is one of the Err* values above.
type Error struct {
	Kind        error
	Op          string // exchange, refresh, revoke, resources, userinfo, introspect
	StatusCode  int    // 0 when no response was received
	Code        string // OAuth2 "error" field
	Description string // OAuth2 "error_description" field
	Scope       string // missing scope for insufficient_scope
	Err         error  // underlying cause
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("opencloud oauth")
	if e.Op != "" {
		b.WriteString(" " + e.Op)
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	switch {
	case e.Code != "" && e.Description != "":
		b.WriteString(": " + e.Code + " - " + e.Description)
	case e.Code != "":
		b.WriteString(": " + e.Code)
	case e.Description != "":
		b.WriteString(": " + e.Description)
	}
	if e.Scope != "" {
		fmt.Fprintf(&b, " (missing scope %q)", e.Scope)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func invalidRequest(op, format string, args ...any) error {
	return &Error{Kind: ErrInvalidRequest, Op: op, Description: fmt.Sprintf(format, args...)}
}
