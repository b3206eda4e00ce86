package oauthapp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-opencloud-oauth/oauthmodel"
	"golang.org/x/oauth2"
)

const maxResponseBytes = 1 << 20

type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(r)
	}
	r = r.Clone(r.Context())
	r.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(r)
}

// withUserAgent returns a copy of c whose requests carry ua.
func withUserAgent(c *http.Client, ua string) *http.Client {
	base := c.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	wrapped := *c
	wrapped.Transport = &userAgentTransport{base: base, userAgent: ua}
	return &wrapped
}

// failure maps a non-2xx response to an error kind.
type failure struct {
	rejected     error // other 4xx
	unauthorized error // 401 without a more specific code
}

var (
	bearerFailure = failure{rejected: ErrAuthorization, unauthorized: ErrTokenExpired}
	revokeFailure = failure{rejected: ErrInvalidGrant, unauthorized: ErrInvalidGrant}
)

func (f failure) classify(status int, code string) error {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status >= 500, code == oauthmodel.ErrorCodeServerError:
		return ErrTransport
	case code == oauthmodel.ErrorCodeInsufficientScope:
		return ErrInsufficientScope
	case code == oauthmodel.ErrorCodeInvalidClient:
		return ErrAuthorization
	case status == http.StatusUnauthorized, code == oauthmodel.ErrorCodeInvalidToken:
		return f.unauthorized
	case status >= 400:
		return f.rejected
	}
	return ErrTransport
}

func (a *App) postForm(ctx context.Context, op, endpoint string, form url.Values, f failure, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return &Error{Kind: ErrInvalidRequest, Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return a.do(op, req, f, out)
}

func (a *App) getBearer(ctx context.Context, op, endpoint, token string, f failure, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &Error{Kind: ErrInvalidRequest, Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	return a.do(op, req, f, out)
}

func (a *App) do(op string, req *http.Request, f failure, out any) error {
	resp, err := a.httpClient.Do(req)
	if err != nil {
		a.logger.Debug().Err(err).Str("op", op).Str("endpoint", req.URL.Path).Msg("request failed")
		return &Error{Kind: ErrTransport, Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &Error{Kind: ErrTransport, Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	a.logger.Debug().Str("op", op).Str("endpoint", req.URL.Path).Int("status", resp.StatusCode).Msg("request completed")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var oauthErr oauthmodel.ErrorResponse
		_ = json.Unmarshal(body, &oauthErr)
		return &Error{
			Kind:        f.classify(resp.StatusCode, oauthErr.Error),
			Op:          op,
			StatusCode:  resp.StatusCode,
			Code:        oauthErr.Error,
			Description: oauthErr.ErrorDescription,
			Scope:       oauthErr.Scope,
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Kind: ErrDecode, Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	return nil
}

// tokenEndpointError maps a golang.org/x/oauth2 token endpoint failure.
// rejected is the kind for a 4xx other than invalid_client; unreachable is
// the kind when no usable response arrived.
func (a *App) tokenEndpointError(op string, err error, rejected, unreachable error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) || re.Response == nil {
		a.logger.Debug().Err(err).Str("op", op).Msg("token request failed")
		return &Error{Kind: unreachable, Op: op, Err: err}
	}

	code, description := re.ErrorCode, re.ErrorDescription
	if code == "" {
		var oauthErr oauthmodel.ErrorResponse
		if json.Unmarshal(re.Body, &oauthErr) == nil {
			code, description = oauthErr.Error, oauthErr.ErrorDescription
		}
	}

	status := re.Response.StatusCode
	a.logger.Debug().Str("op", op).Int("status", status).Str("code", code).Msg("token request rejected")

	f := failure{rejected: rejected, unauthorized: rejected}
	kind := f.classify(status, code)
	if errors.Is(kind, ErrTransport) {
		kind = unreachable
	}

	return &Error{
		Kind:        kind,
		Op:          op,
		StatusCode:  status,
		Code:        code,
		Description: description,
	}
}
