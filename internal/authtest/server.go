// Package authtest runs an in-process authorization server that behaves like
// the Open Cloud OAuth endpoints: single use codes, PKCE, rotating refresh
// tokens, ES256 ID tokens and the token resources endpoint.
package authtest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-opencloud-oauth/oauthmodel"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultClientID     uint64 = 3141592653589793
	DefaultClientSecret        = "RBX-test-client-secret"
	DefaultRedirectURI         = "http://localhost:8080/callback"

	basePath = "/oauth/"
)

// User is the account that approves every authorization request.
type User struct {
	ID          string
	Username    string
	DisplayName string
	Picture     string
	CreatedAt   time.Time
}

var DefaultUser = User{
	ID:          "1234567",
	Username:    "builderman",
	DisplayName: "Builderman",
	Picture:     "https://tr.rbxcdn.com/headshot.png",
	CreatedAt:   time.Date(2006, time.February, 27, 0, 0, 0, 0, time.UTC),
}

// Server is a fake authorization server. All methods are safe for
// concurrent use.
type Server struct {
	URL          string
	ClientID     uint64
	ClientSecret string
	RedirectURI  string

	httpServer *httptest.Server
	secretHash []byte
	key        *signingKey
	user       User
	resources  oauthmodel.ResourcesResponse

	mu            sync.Mutex
	offset        time.Duration
	codes         map[string]*pendingCode
	access        map[string]*grant
	refresh       map[string]*grant
	tokenRequests int
	tokenFailures []int
}

type Option func(*Server)

func WithClientSecret(secret string) Option {
	return func(s *Server) { s.ClientSecret = secret }
}

func WithRedirectURI(uri string) Option {
	return func(s *Server) { s.RedirectURI = uri }
}

func WithUser(u User) Option {
	return func(s *Server) { s.user = u }
}

// WithResources sets what the resources endpoint returns for grants that
// requested more than identity scopes.
func WithResources(r oauthmodel.ResourcesResponse) Option {
	return func(s *Server) { s.resources = r }
}

// New starts a server and closes it when the test ends.
func New(t testing.TB, opts ...Option) *Server {
	t.Helper()

	s := &Server{
		ClientID:     DefaultClientID,
		ClientSecret: DefaultClientSecret,
		RedirectURI:  DefaultRedirectURI,
		user:         DefaultUser,
		resources:    DefaultResources(),
		codes:        make(map[string]*pendingCode),
		access:       make(map[string]*grant),
		refresh:      make(map[string]*grant),
	}
	for _, opt := range opts {
		opt(s)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(s.ClientSecret), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("authtest: hash client secret: %v", err)
	}
	s.secretHash = hash

	key, err := newSigningKey()
	if err != nil {
		t.Fatalf("authtest: %v", err)
	}
	s.key = key

	s.httpServer = httptest.NewServer(s.routes())
	s.URL = s.httpServer.URL
	t.Cleanup(s.httpServer.Close)
	return s
}

// DefaultResources grants one experience owned by DefaultUser and the user's
// own creator account.
func DefaultResources() oauthmodel.ResourcesResponse {
	return oauthmodel.ResourcesResponse{
		ResourceInfos: []oauthmodel.ResourceInfo{{
			Owner: oauthmodel.ResourceOwner{ID: DefaultUser.ID, Type: oauthmodel.OwnerTypeUser},
			Resources: oauthmodel.ResourceSet{
				Universe: &oauthmodel.ResourceIDs{IDs: []string{"4799471"}},
				Creator:  &oauthmodel.ResourceIDs{IDs: []string{oauthmodel.CreatorOwnerUser}},
			},
		}},
	}
}

// BaseURL is the OAuth base URL, which is also the ID token issuer.
func (s *Server) BaseURL() string {
	return s.URL + basePath
}

// Client returns an HTTP client that trusts the server.
func (s *Server) Client() *http.Client {
	return s.httpServer.Client()
}

// Advance moves the server clock forward.
func (s *Server) Advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offset += d
}

func (s *Server) now() time.Time {
	return time.Now().Add(s.offset)
}

// FailTokenRequests makes the next token endpoint calls respond with the
// given statuses, in order, without touching any grant.
func (s *Server) FailTokenRequests(statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenFailures = append(s.tokenFailures, statuses...)
}

// TokenRequests counts calls to the token endpoint.
func (s *Server) TokenRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenRequests
}

// ActiveGrants counts live token pairs.
func (s *Server) ActiveGrants() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.refresh)
}

// Approve plays the user consenting to authURL and returns the code and
// state the browser would be redirected with.
func (s *Server) Approve(authURL string) (code, state string, err error) {
	u, err := url.Parse(authURL)
	if err != nil {
		return "", "", err
	}
	location, err := s.authorize(u.Query())
	if err != nil {
		return "", "", err
	}
	redirect, err := url.Parse(location)
	if err != nil {
		return "", "", err
	}
	q := redirect.Query()
	return q.Get("code"), q.Get("state"), nil
}

func (s *Server) clientIDString() string {
	return strconv.FormatUint(s.ClientID, 10)
}

func (s *Server) String() string {
	return fmt.Sprintf("authtest.Server(%s)", s.URL)
}
