// Package oauthapp is an OAuth2 client for the Open Cloud authorization
// server. It builds consent URLs, exchanges authorization codes, refreshes and
// revokes token pairs, and resolves the resources and identity a user granted.
//
// An App holds no per-user state; callers persist refresh tokens and pending
// PKCE verifiers themselves (see the session package).
package oauthapp

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

const (
	DefaultBaseURL     = "https://apis.roblox.com/oauth/"
	DefaultUserAgent   = "go-opencloud-oauth/1.0"
	DefaultHTTPTimeout = 10 * time.Second
)

// Credentials identify a registered application. ClientSecret may be empty
// for PKCE-only use.
type Credentials struct {
	ClientID     uint64 `validate:"required"`
	ClientSecret string
	RedirectURI  string `validate:"required,url"`
}

// Endpoints are the authorization server URLs.
type Endpoints struct {
	AuthorizeURL  string `validate:"required,url"`
	TokenURL      string `validate:"required,url"`
	RevokeURL     string `validate:"required,url"`
	IntrospectURL string `validate:"required,url"`
	ResourcesURL  string `validate:"required,url"`
	UserInfoURL   string `validate:"required,url"`
	CertsURL      string `validate:"required,url"`
	Issuer        string `validate:"required,url"`
}

// EndpointsFromBase derives every endpoint from the server's OAuth base URL,
// e.g. "https://apis.roblox.com/oauth/". The base is also the ID token issuer.
func EndpointsFromBase(base string) Endpoints {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return Endpoints{
		AuthorizeURL:  base + "v1/authorize",
		TokenURL:      base + "v1/token",
		RevokeURL:     base + "v1/token/revoke",
		IntrospectURL: base + "v1/token/introspect",
		ResourcesURL:  base + "v1/token/resources",
		UserInfoURL:   base + "v1/userinfo",
		CertsURL:      base + "v1/certs",
		Issuer:        base,
	}
}

// DefaultEndpoints returns the production endpoints.
func DefaultEndpoints() Endpoints {
	return EndpointsFromBase(DefaultBaseURL)
}

// ResourcePolicy decides what Resources returns when the user granted no
// account or experience.
type ResourcePolicy int

const (
	// ResourcesAllowEmpty returns empty sets.
	ResourcesAllowEmpty ResourcePolicy = iota
	// ResourcesRequireGrant returns ErrNoResourcesGranted.
	ResourcesRequireGrant
)

// ParseResourcePolicy accepts "allow-empty" and "require-grant".
func ParseResourcePolicy(s string) (ResourcePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "allow-empty":
		return ResourcesAllowEmpty, nil
	case "require-grant":
		return ResourcesRequireGrant, nil
	}
	return ResourcesAllowEmpty, fmt.Errorf("unknown resource policy %q", s)
}

func (p ResourcePolicy) String() string {
	if p == ResourcesRequireGrant {
		return "require-grant"
	}
	return "allow-empty"
}

// App is a configured OAuth2 application. It is safe for concurrent use.
type App struct {
	creds          Credentials
	endpoints      Endpoints
	httpClient     *http.Client
	userAgent      string
	logger         zerolog.Logger
	resourcePolicy ResourcePolicy
	now            func() time.Time

	oauthConfig oauth2.Config
	idVerifier  *oidc.IDTokenVerifier
}

type Option func(*App)

// WithHTTPClient sets the client used for every request. Its Timeout bounds
// each call.
func WithHTTPClient(c *http.Client) Option {
	return func(a *App) {
		if c != nil {
			a.httpClient = c
		}
	}
}

func WithEndpoints(e Endpoints) Option {
	return func(a *App) { a.endpoints = e }
}

func WithLogger(l zerolog.Logger) Option {
	return func(a *App) { a.logger = l }
}

func WithUserAgent(ua string) Option {
	return func(a *App) {
		if ua != "" {
			a.userAgent = ua
		}
	}
}

func WithResourcePolicy(p ResourcePolicy) Option {
	return func(a *App) { a.resourcePolicy = p }
}

// WithClock overrides time.Now for token expiry and ID token validation.
func WithClock(now func() time.Time) Option {
	return func(a *App) {
		if now != nil {
			a.now = now
		}
	}
}

// New validates the credentials and endpoints and returns an App.
func New(creds Credentials, opts ...Option) (*App, error) {
	a := &App{
		creds:      creds,
		endpoints:  DefaultEndpoints(),
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
		userAgent:  DefaultUserAgent,
		logger:     zerolog.Nop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}

	validate := validator.New()
	if err := validate.Struct(a.creds); err != nil {
		return nil, fmt.Errorf("%w: credentials: %v", ErrInvalidRequest, err)
	}
	if err := validate.Struct(a.endpoints); err != nil {
		return nil, fmt.Errorf("%w: endpoints: %v", ErrInvalidRequest, err)
	}

	a.httpClient = withUserAgent(a.httpClient, a.userAgent)

	clientID := strconv.FormatUint(a.creds.ClientID, 10)
	a.oauthConfig = oauth2.Config{
		ClientID:     clientID,
		ClientSecret: a.creds.ClientSecret,
		RedirectURL:  a.creds.RedirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:  a.endpoints.AuthorizeURL,
			TokenURL: a.endpoints.TokenURL,
			// Auto-detection re-sends a failed request with the other style;
			// codes and refresh tokens are single use.
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	keySet := oidc.NewRemoteKeySet(oidc.ClientContext(context.Background(), a.httpClient), a.endpoints.CertsURL)
	a.idVerifier = oidc.NewVerifier(a.endpoints.Issuer, keySet, &oidc.Config{
		ClientID:             clientID,
		SupportedSigningAlgs: []string{oidc.ES256},
		Now:                  a.now,
	})

	return a, nil
}

func (a *App) ClientID() uint64 {
	return a.creds.ClientID
}

func (a *App) RedirectURI() string {
	return a.creds.RedirectURI
}

func (a *App) Endpoints() Endpoints {
	return a.endpoints
}

func (a *App) String() string {
	return fmt.Sprintf("oauthapp.App(id=%d redirect_uri=%q)", a.creds.ClientID, a.creds.RedirectURI)
}

// FromAccessTokenString wraps a stored access token string. The result has
// no known expiry or scopes, so expiry is only detected by the server.
func (a *App) FromAccessTokenString(accessToken string) *PartialToken {
	return &PartialToken{app: a, Value: accessToken}
}

// clientContext makes golang.org/x/oauth2 use the app's HTTP client.
func (a *App) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
}

// clientForm returns the client authentication form fields.
func (a *App) clientForm() url.Values {
	form := url.Values{}
	form.Set("client_id", strconv.FormatUint(a.creds.ClientID, 10))
	if a.creds.ClientSecret != "" {
		form.Set("client_secret", a.creds.ClientSecret)
	}
	return form
}
