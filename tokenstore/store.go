// Package tokenstore persists one record per authorization session: its
// lifecycle state and the current token pair.
package tokenstore

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound   = errors.New("session record not found")
	ErrInvalidKey = errors.New("session key is required")
)

// State is where a session is in its lifecycle.
type State string

const (
	Unauthorized        State = "unauthorized"
	AwaitingCode        State = "awaiting_code"
	Authorized          State = "authorized"
	Revoked             State = "revoked"
	NeedsReconciliation State = "needs_reconciliation"
)

// Record is the persisted form of a session.
type Record struct {
	Key   string `json:"key"`
	State State  `json:"state"`

	// UserID is learned from the ID token on the first exchange.
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`

	// RefreshToken is the only value needed to resume a session; it is
	// replaced on every refresh.
	RefreshToken string    `json:"refresh_token,omitempty"`
	AccessToken  string    `json:"access_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	Scopes       []string  `json:"scopes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	c := *r
	c.Scopes = append([]string(nil), r.Scopes...)
	return &c
}

// ClearTokens forgets the token pair.
func (r *Record) ClearTokens() {
	r.RefreshToken = ""
	r.AccessToken = ""
	r.ExpiresAt = time.Time{}
}

// Store persists session records.
type Store interface {
	Get(ctx context.Context, key string) (*Record, error)
	Put(ctx context.Context, r *Record) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]*Record, error)
}
