package authtest

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-opencloud-oauth/oauthmodel"
	"golang.org/x/crypto/bcrypt"
)

const contentTypeJSON = "application/json; charset=utf-8"

var errInvalidClient = errors.New("client authentication failed")

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+basePath+"v1/authorize", s.handleAuthorize)
	mux.HandleFunc("POST "+basePath+"v1/token", s.handleToken)
	mux.HandleFunc("POST "+basePath+"v1/token/revoke", s.handleRevoke)
	mux.HandleFunc("POST "+basePath+"v1/token/introspect", s.handleIntrospect)
	mux.HandleFunc("POST "+basePath+"v1/token/resources", s.handleResources)
	mux.HandleFunc("GET "+basePath+"v1/userinfo", s.handleUserInfo)
	mux.HandleFunc("GET "+basePath+"v1/certs", s.handleCerts)
	return mux
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	location, err := s.authorize(r.URL.Query())
	if err != nil {
		http.Error(w, "Invalid authorization request: "+err.Error(), http.StatusBadRequest)
		return
	}
	http.Redirect(w, r, location, http.StatusFound)
}

// authorize validates an authorization request, issues a code and returns
// the redirect location.
func (s *Server) authorize(q url.Values) (string, error) {
	get := q.Get

	switch {
	case get("client_id") != s.clientIDString():
		return "", errors.New("unknown client_id")
	case get("redirect_uri") != s.RedirectURI:
		return "", errors.New("redirect_uri does not match the registered uri")
	case get("response_type") != string(oauthmodel.CodeResponseType):
		return "", errors.New("unsupported response_type")
	case strings.TrimSpace(get("scope")) == "":
		return "", errors.New("scope is required")
	}

	challenge := get("code_challenge")
	if challenge != "" && get("code_challenge_method") != string(oauthmodel.CodeMethodTypeS256) {
		return "", errors.New("only S256 code challenges are supported")
	}

	code := randomToken()
	s.mu.Lock()
	s.codes[code] = &pendingCode{
		redirectURI:   s.RedirectURI,
		scopes:        strings.Fields(get("scope")),
		codeChallenge: challenge,
		issuedAt:      s.now(),
	}
	s.mu.Unlock()

	redirect, err := url.Parse(s.RedirectURI)
	if err != nil {
		return "", err
	}
	params := redirect.Query()
	params.Set("code", code)
	if state := get("state"); state != "" {
		params.Set("state", state)
	}
	redirect.RawQuery = params.Encode()
	return redirect.String(), nil
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSONError(w, oauthmodel.ErrorCodeInvalidRequest, "Failed to parse form data", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokenRequests++
	if len(s.tokenFailures) > 0 {
		status := s.tokenFailures[0]
		s.tokenFailures = s.tokenFailures[1:]
		writeJSONError(w, oauthmodel.ErrorCodeServerError, "injected failure", status)
		return
	}

	req := oauthmodel.TokenRequest{
		GrantType:    oauthmodel.GrantType(r.PostFormValue("grant_type")),
		ClientID:     r.PostFormValue("client_id"),
		ClientSecret: r.PostFormValue("client_secret"),
		RedirectURI:  r.PostFormValue("redirect_uri"),
		Code:         r.PostFormValue("code"),
		CodeVerifier: r.PostFormValue("code_verifier"),
		RefreshToken: r.PostFormValue("refresh_token"),
	}

	var (
		g   *grant
		err error
	)
	switch req.GrantType {
	case oauthmodel.AuthorizationCodeGrant:
		g, err = s.redeemCode(req)
	case oauthmodel.RefreshTokenGrant:
		g, err = s.rotate(req)
	default:
		writeJSONError(w, "unsupported_grant_type", "grant_type must be authorization_code or refresh_token", http.StatusBadRequest)
		return
	}
	if errors.Is(err, errInvalidClient) {
		writeJSONError(w, oauthmodel.ErrorCodeInvalidClient, err.Error(), http.StatusUnauthorized)
		return
	}
	if err != nil {
		writeJSONError(w, oauthmodel.ErrorCodeInvalidGrant, err.Error(), http.StatusBadRequest)
		return
	}

	resp := oauthmodel.TokenResponse{
		AccessToken:  g.accessToken,
		RefreshToken: g.refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(AccessTokenLifetime.Seconds()),
		Scope:        g.scope(),
	}
	if req.GrantType == oauthmodel.AuthorizationCodeGrant && g.hasScope(oauthmodel.ScopeOpenID) {
		idToken, err := s.idToken(g)
		if err != nil {
			writeJSONError(w, oauthmodel.ErrorCodeServerError, err.Error(), http.StatusInternalServerError)
			return
		}
		resp.IDToken = idToken
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, resp)
}

// authenticateClient checks client_id and, when sent, client_secret.
// Requests without a secret must prove possession some other way.
func (s *Server) authenticateClient(clientID, secret string) error {
	if clientID != s.clientIDString() {
		return errInvalidClient
	}
	if secret == "" {
		return nil
	}
	if bcrypt.CompareHashAndPassword(s.secretHash, []byte(secret)) != nil {
		return errInvalidClient
	}
	return nil
}

func (s *Server) redeemCode(req oauthmodel.TokenRequest) (*grant, error) {
	if err := s.authenticateClient(req.ClientID, req.ClientSecret); err != nil {
		return nil, err
	}
	if req.ClientSecret == "" && req.CodeVerifier == "" {
		return nil, errInvalidClient
	}

	pending, ok := s.codes[req.Code]
	if !ok {
		return nil, errors.New("authorization code is invalid or already used")
	}
	delete(s.codes, req.Code)

	if req.RedirectURI != pending.redirectURI {
		return nil, errors.New("redirect_uri does not match the authorization request")
	}
	if pending.codeChallenge != "" || req.CodeVerifier != "" {
		if s256(req.CodeVerifier) != pending.codeChallenge {
			return nil, errors.New("code_verifier does not match the code_challenge")
		}
	}

	g := newGrant(pending.scopes, s.now())
	s.access[g.accessToken] = g
	s.refresh[g.refreshToken] = g
	return g, nil
}

func (s *Server) rotate(req oauthmodel.TokenRequest) (*grant, error) {
	if err := s.authenticateClient(req.ClientID, req.ClientSecret); err != nil {
		return nil, err
	}

	old, ok := s.refresh[req.RefreshToken]
	if !ok {
		return nil, errors.New("refresh token is invalid")
	}
	s.revokeGrant(old)

	if s.now().Sub(old.refreshIssuedAt) > RefreshTokenLifetime {
		return nil, errors.New("refresh token has expired")
	}

	g := newGrant(old.scopes, s.now())
	g.refreshIssuedAt = old.refreshIssuedAt
	s.access[g.accessToken] = g
	s.refresh[g.refreshToken] = g
	return g, nil
}

func (s *Server) revokeGrant(g *grant) {
	delete(s.access, g.accessToken)
	delete(s.refresh, g.refreshToken)
}

func (s *Server) idToken(g *grant) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"iss": s.BaseURL(),
		"sub": s.user.ID,
		"aud": s.clientIDString(),
		"iat": now.Unix(),
		"exp": now.Add(IDTokenLifetime).Unix(),
		"jti": g.id,
	}
	if g.hasScope(oauthmodel.ScopeProfile) {
		for k, v := range s.profileClaims() {
			claims[k] = v
		}
	}
	return s.key.sign(claims)
}

func (s *Server) profileClaims() map[string]any {
	return map[string]any{
		"preferred_username": s.user.Username,
		"nickname":           s.user.DisplayName,
		"name":               s.user.DisplayName,
		"profile":            "https://www.roblox.com/users/" + s.user.ID + "/profile",
		"picture":            s.user.Picture,
		"created_at":         s.user.CreatedAt.Unix(),
	}
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSONError(w, oauthmodel.ErrorCodeInvalidRequest, "Failed to parse form data", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.authenticateClient(r.PostFormValue("client_id"), r.PostFormValue("client_secret")); err != nil {
		writeJSONError(w, oauthmodel.ErrorCodeInvalidClient, err.Error(), http.StatusUnauthorized)
		return
	}

	token := r.PostFormValue("token")
	g, ok := s.refresh[token]
	if !ok {
		g, ok = s.access[token]
	}
	if !ok {
		writeJSONError(w, oauthmodel.ErrorCodeInvalidGrant, "token is invalid or already revoked", http.StatusBadRequest)
		return
	}
	s.revokeGrant(g)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleIntrospect(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSONError(w, oauthmodel.ErrorCodeInvalidRequest, "Failed to parse form data", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.authenticateClient(r.PostFormValue("client_id"), r.PostFormValue("client_secret")); err != nil {
		writeJSONError(w, oauthmodel.ErrorCodeInvalidClient, err.Error(), http.StatusUnauthorized)
		return
	}

	g, ok := s.liveAccess(r.PostFormValue("token"))
	if !ok {
		writeJSON(w, oauthmodel.IntrospectionResponse{Active: false})
		return
	}
	writeJSON(w, oauthmodel.IntrospectionResponse{
		Active:    true,
		JTI:       g.id,
		ClientID:  s.clientIDString(),
		Sub:       s.user.ID,
		Scope:     g.scope(),
		Iat:       g.issuedAt.Unix(),
		Exp:       g.issuedAt.Add(AccessTokenLifetime).Unix(),
		TokenType: "access_token",
	})
}

func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSONError(w, oauthmodel.ErrorCodeInvalidRequest, "Failed to parse form data", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.authenticateClient(r.PostFormValue("client_id"), r.PostFormValue("client_secret")); err != nil {
		writeJSONError(w, oauthmodel.ErrorCodeInvalidClient, err.Error(), http.StatusUnauthorized)
		return
	}

	g, ok := s.liveAccess(r.PostFormValue("token"))
	if !ok {
		writeJSONError(w, oauthmodel.ErrorCodeInvalidToken, "access token is invalid or expired", http.StatusUnauthorized)
		return
	}
	if !g.grantsResources() {
		writeJSON(w, oauthmodel.ResourcesResponse{ResourceInfos: []oauthmodel.ResourceInfo{}})
		return
	}
	writeJSON(w, s.resources)
}

func (s *Server) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		writeJSONError(w, oauthmodel.ErrorCodeInvalidToken, "bearer token required", http.StatusUnauthorized)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.liveAccess(token)
	if !ok {
		writeJSONError(w, oauthmodel.ErrorCodeInvalidToken, "access token is invalid or expired", http.StatusUnauthorized)
		return
	}
	if !g.hasScope(oauthmodel.ScopeOpenID) {
		w.Header().Set("Content-Type", contentTypeJSON)
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(oauthmodel.ErrorResponse{
			Error:            oauthmodel.ErrorCodeInsufficientScope,
			ErrorDescription: "the openid scope is required",
			Scope:            oauthmodel.ScopeOpenID,
		})
		return
	}

	claims := map[string]any{"sub": s.user.ID, "id": s.user.ID}
	if g.hasScope(oauthmodel.ScopeProfile) {
		for k, v := range s.profileClaims() {
			claims[k] = v
		}
	}
	writeJSON(w, claims)
}

func (s *Server) handleCerts(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=3600")
	writeJSON(w, s.key.jwks())
}

// liveAccess returns the grant for an unexpired access token. Callers hold mu.
func (s *Server) liveAccess(token string) (*grant, bool) {
	g, ok := s.access[token]
	if !ok || s.now().Sub(g.issuedAt) >= AccessTokenLifetime {
		return nil, false
	}
	return g, true
}

func s256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}
