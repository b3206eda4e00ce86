// Package session drives one authorization per session key through its
// lifecycle:
//
//	unauthorized -> Begin -> awaiting_code -> Complete -> authorized
//	authorized -> Refresh -> authorized
//	authorized -> Revoke -> revoked
//
// A refresh whose outcome is unknown parks the session in
// needs_reconciliation until it is re-authorized or revoked. Revoked is
// terminal; Forget clears it.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-opencloud-oauth/flowstate"
	"github.com/jrsteele09/go-opencloud-oauth/oauthapp"
	"github.com/jrsteele09/go-opencloud-oauth/pkce"
	"github.com/jrsteele09/go-opencloud-oauth/tokenstore"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DefaultRefreshSkew refreshes access tokens this long before they expire.
const DefaultRefreshSkew = 30 * time.Second

// refreshTimeout bounds a shared refresh, including the store writes.
const refreshTimeout = time.Minute

var (
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrUnknownState      = errors.New("unknown or expired authorization state")
)

// Authorization is a started consent request.
type Authorization struct {
	URL   string
	State string
}

// Manager is safe for concurrent use.
type Manager struct {
	app     *oauthapp.App
	flows   flowstate.Store
	records tokenstore.Store

	flowTTL     time.Duration
	refreshSkew time.Duration
	logger      zerolog.Logger
	now         func() time.Time

	refreshes singleflight.Group
	locks     keyedMutex
}

// keyedMutex serializes work per session key. An entry lives only while a
// holder or waiter references it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

type Option func(*Manager)

// WithFlowTTL bounds how long Complete accepts a state after Begin.
func WithFlowTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.flowTTL = ttl
		}
	}
}

func WithRefreshSkew(d time.Duration) Option {
	return func(m *Manager) { m.refreshSkew = d }
}

func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func NewManager(app *oauthapp.App, flows flowstate.Store, records tokenstore.Store, opts ...Option) *Manager {
	m := &Manager{
		app:         app,
		flows:       flows,
		records:     records,
		flowTTL:     flowstate.DefaultTTL,
		refreshSkew: DefaultRefreshSkew,
		logger:      zerolog.Nop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) lock(key string) func() {
	return m.locks.lock(key)
}

// load returns the record for key, or a fresh unauthorized one.
func (m *Manager) load(ctx context.Context, key string) (*tokenstore.Record, error) {
	rec, err := m.records.Get(ctx, key)
	if errors.Is(err, tokenstore.ErrNotFound) {
		now := m.now()
		return &tokenstore.Record{Key: key, State: tokenstore.Unauthorized, CreatedAt: now, UpdatedAt: now}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %q: %w", key, err)
	}
	return rec, nil
}

func (m *Manager) save(ctx context.Context, rec *tokenstore.Record) error {
	rec.UpdatedAt = m.now()
	if err := m.records.Put(ctx, rec); err != nil {
		return fmt.Errorf("save session %q: %w", rec.Key, err)
	}
	return nil
}

func invalidTransition(op string, from tokenstore.State) error {
	return fmt.Errorf("%w: cannot %s a session that is %s", ErrInvalidTransition, op, from)
}

// State reports where the session is. Unknown keys are unauthorized.
func (m *Manager) State(ctx context.Context, key string) (tokenstore.State, error) {
	rec, err := m.load(ctx, key)
	if err != nil {
		return "", err
	}
	return rec.State, nil
}

// Session returns a copy of the stored record.
func (m *Manager) Session(ctx context.Context, key string) (*tokenstore.Record, error) {
	return m.records.Get(ctx, key)
}

// Begin starts an authorization for key and returns the consent URL.
// Starting again while awaiting a code supersedes the earlier request's
// record, but its state stays redeemable until it expires.
func (m *Manager) Begin(ctx context.Context, key string, scopes []string) (*Authorization, error) {
	if key == "" {
		return nil, tokenstore.ErrInvalidKey
	}
	unlock := m.lock(key)
	defer unlock()

	rec, err := m.load(ctx, key)
	if err != nil {
		return nil, err
	}
	switch rec.State {
	case tokenstore.Unauthorized, tokenstore.AwaitingCode, tokenstore.NeedsReconciliation:
	default:
		return nil, invalidTransition("begin", rec.State)
	}

	verifier, err := pkce.NewVerifier()
	if err != nil {
		return nil, err
	}
	state := uuid.NewString()
	scopes = oauthapp.NormalizeScopes(scopes)

	authURL, err := m.app.AuthorizationURL(oauthapp.AuthorizationRequest{Scopes: scopes, State: state, Verifier: verifier})
	if err != nil {
		return nil, err
	}

	pending := &flowstate.Pending{SessionKey: key, Verifier: verifier, Scopes: scopes, CreatedAt: m.now()}
	if err := m.flows.Save(ctx, state, pending, m.flowTTL); err != nil {
		return nil, fmt.Errorf("save flow state: %w", err)
	}

	rec.State = tokenstore.AwaitingCode
	rec.Scopes = scopes
	if err := m.save(ctx, rec); err != nil {
		return nil, err
	}

	m.logger.Info().Str("session", key).Strs("scopes", scopes).Msg("authorization started")
	return &Authorization{URL: authURL, State: state}, nil
}

// Complete redeems the callback's state and code for the session key that
// delivered them. Each state is accepted once, and only for the key that
// began it; a mismatch still consumes the state.
func (m *Manager) Complete(ctx context.Context, key, state, code string) (*tokenstore.Record, error) {
	if key == "" {
		return nil, tokenstore.ErrInvalidKey
	}
	pending, err := m.flows.Take(ctx, state)
	if errors.Is(err, flowstate.ErrNotFound) || errors.Is(err, flowstate.ErrInvalidState) {
		return nil, ErrUnknownState
	}
	if err != nil {
		return nil, fmt.Errorf("take flow state: %w", err)
	}
	if pending.SessionKey != key {
		m.logger.Warn().Str("session", key).Msg("authorization state belongs to another session")
		return nil, ErrUnknownState
	}

	unlock := m.lock(pending.SessionKey)
	defer unlock()

	rec, err := m.load(ctx, pending.SessionKey)
	if err != nil {
		return nil, err
	}
	if rec.State != tokenstore.AwaitingCode {
		return nil, invalidTransition("complete", rec.State)
	}

	tok, err := m.app.Exchange(ctx, code, pending.Verifier)
	if err != nil {
		if tok != nil {
			// An unverified identity is never bound to a session.
			if rerr := tok.RevokeRefreshToken(ctx); rerr != nil {
				m.logger.Warn().Err(rerr).Str("session", rec.Key).Msg("failed to revoke unverified token pair")
			}
		}
		rec.State = tokenstore.Unauthorized
		rec.ClearTokens()
		if serr := m.save(ctx, rec); serr != nil {
			return nil, errors.Join(err, serr)
		}
		return nil, err
	}

	rec.State = tokenstore.Authorized
	applyToken(rec, tok)
	if tok.Identity != nil {
		rec.UserID = tok.Identity.UserID
		rec.Username = tok.Identity.Username
	}
	if err := m.save(ctx, rec); err != nil {
		return nil, err
	}

	m.logger.Info().Str("session", rec.Key).Str("user_id", rec.UserID).Msg("authorization completed")
	return rec.Clone(), nil
}

func applyToken(rec *tokenstore.Record, tok *oauthapp.AccessToken) {
	rec.AccessToken = tok.Value
	rec.RefreshToken = tok.RefreshToken
	rec.ExpiresAt = tok.ExpiresAt
	if tok.Scopes != nil {
		rec.Scopes = tok.Scopes
	}
}

// Refresh rotates the session's token pair. Concurrent calls for one key
// share a single request, so the refresh token is consumed once. The shared
// request outlives a caller that gives up; it is bounded by refreshTimeout.
func (m *Manager) Refresh(ctx context.Context, key string) (*tokenstore.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := m.refreshes.DoChan(key, func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return m.refresh(shared, key)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*tokenstore.Record).Clone(), nil
	}
}

func (m *Manager) refresh(ctx context.Context, key string) (*tokenstore.Record, error) {
	unlock := m.lock(key)
	defer unlock()

	rec, err := m.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if rec.State != tokenstore.Authorized {
		return nil, invalidTransition("refresh", rec.State)
	}

	tok, err := m.app.Refresh(ctx, rec.RefreshToken)
	switch {
	case errors.Is(err, oauthapp.ErrRefreshOutcomeUnknown):
		m.logger.Error().Err(err).Str("session", key).Msg("refresh outcome unknown; session needs reconciliation")
		rec.State = tokenstore.NeedsReconciliation
		return nil, errors.Join(err, m.save(ctx, rec))
	case errors.Is(err, oauthapp.ErrInvalidGrant):
		m.logger.Warn().Err(err).Str("session", key).Msg("refresh token rejected; session is unauthorized")
		rec.State = tokenstore.Unauthorized
		rec.ClearTokens()
		return nil, errors.Join(err, m.save(ctx, rec))
	case err != nil:
		return nil, err
	}

	applyToken(rec, tok)
	if err := m.save(ctx, rec); err != nil {
		// The old pair is already gone server side.
		m.logger.Error().Err(err).Str("session", key).Msg("rotated token pair was not persisted")
		return nil, err
	}

	m.logger.Debug().Str("session", key).Time("expires_at", rec.ExpiresAt).Msg("session refreshed")
	return rec, nil
}

// Revoke revokes the session's token pair. A pair the server no longer
// knows counts as revoked.
func (m *Manager) Revoke(ctx context.Context, key string) error {
	unlock := m.lock(key)
	defer unlock()

	rec, err := m.load(ctx, key)
	if err != nil {
		return err
	}
	switch rec.State {
	case tokenstore.Authorized, tokenstore.NeedsReconciliation:
	default:
		return invalidTransition("revoke", rec.State)
	}

	if err := m.app.Revoke(ctx, rec.RefreshToken); err != nil && !errors.Is(err, oauthapp.ErrInvalidGrant) {
		return err
	}

	rec.State = tokenstore.Revoked
	rec.ClearTokens()
	if err := m.save(ctx, rec); err != nil {
		return err
	}

	m.logger.Info().Str("session", key).Msg("session revoked")
	return nil
}

// Token returns a usable access token for the session, refreshing first when
// it is about to expire.
func (m *Manager) Token(ctx context.Context, key string) (*oauthapp.PartialToken, error) {
	rec, err := m.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if rec.State != tokenstore.Authorized {
		return nil, invalidTransition("use", rec.State)
	}

	if !m.now().Add(m.refreshSkew).Before(rec.ExpiresAt) {
		if rec, err = m.Refresh(ctx, key); err != nil {
			return nil, err
		}
	}
	return m.app.RestoreToken(rec.AccessToken, rec.Scopes, rec.ExpiresAt), nil
}

// Forget deletes the session record, returning the key to unauthorized.
func (m *Manager) Forget(ctx context.Context, key string) error {
	unlock := m.lock(key)
	defer unlock()
	return m.records.Delete(ctx, key)
}
