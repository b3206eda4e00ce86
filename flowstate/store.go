// Package flowstate keeps the PKCE verifier of each in-flight authorization
// between the redirect to the consent page and the callback. Entries are
// single use and expire.
package flowstate

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL bounds how long a user may take on the consent page.
const DefaultTTL = 10 * time.Minute

var (
	ErrNotFound     = errors.New("flow state not found")
	ErrInvalidState = errors.New("flow state key cannot be empty")
	ErrInvalidTTL   = errors.New("flow state ttl must be positive")
)

// Pending is an authorization that is waiting for its callback.
type Pending struct {
	SessionKey string    `json:"session_key"`
	Verifier   string    `json:"verifier"`
	Scopes     []string  `json:"scopes"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store persists pending flows keyed by the OAuth state parameter.
type Store interface {
	// Save stores p under state until ttl elapses.
	Save(ctx context.Context, state string, p *Pending, ttl time.Duration) error
	// Take returns and removes the flow stored under state. Expired or
	// already taken states return ErrNotFound.
	Take(ctx context.Context, state string) (*Pending, error)
}

func validate(state string, p *Pending, ttl time.Duration) error {
	if state == "" {
		return ErrInvalidState
	}
	if p == nil {
		return errors.New("pending flow cannot be nil")
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	return nil
}

func (p *Pending) clone() *Pending {
	c := *p
	c.Scopes = append([]string(nil), p.Scopes...)
	return &c
}
