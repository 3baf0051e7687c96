package sandbox

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// tokenExpirySkew is the safety margin before a cached token's expiry at
// which a refresh is triggered, matching the control plane's guidance.
const tokenExpirySkew = 5 * time.Minute

// Credential is a short-lived bearer token. It never leaves the provider
// and the execution clients; callers of the router never see it.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// valid reports whether the credential can still be used at the given time.
// A zero ExpiresAt means the token does not expire (static API keys).
func (c Credential) valid(now time.Time, skew time.Duration) bool {
	if c.Token == "" {
		return false
	}
	if c.ExpiresAt.IsZero() {
		return true
	}
	return now.Before(c.ExpiresAt.Add(-skew))
}

// TokenSource fetches a credential from a backend's credential source.
type TokenSource interface {
	Fetch(ctx context.Context) (Credential, error)
}

// StaticTokenSource serves a fixed API key that never expires.
type StaticTokenSource struct {
	token string
}

// NewStaticTokenSource creates a token source around a configured API key.
func NewStaticTokenSource(token string) *StaticTokenSource {
	return &StaticTokenSource{token: token}
}

// Fetch returns the configured key.
func (s *StaticTokenSource) Fetch(context.Context) (Credential, error) {
	if s.token == "" {
		return Credential{}, AuthFailuref("api key not configured")
	}
	return Credential{Token: s.token}, nil
}

// ClientCredentialsTokenSource obtains tokens from an OAuth2 token endpoint
// using the client-credentials grant.
type ClientCredentialsTokenSource struct {
	httpClient   *http.Client
	tokenURL     string
	clientID     string
	clientSecret string
	scope        string
	now          func() time.Time
}

// NewClientCredentialsTokenSource creates a client-credentials token source.
func NewClientCredentialsTokenSource(httpClient *http.Client, tokenURL, clientID, clientSecret, scope string) *ClientCredentialsTokenSource {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ClientCredentialsTokenSource{
		httpClient:   httpClient,
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		scope:        scope,
		now:          time.Now,
	}
}

// Fetch requests a fresh token from the configured token endpoint.
func (s *ClientCredentialsTokenSource) Fetch(ctx context.Context) (Credential, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {s.clientID},
		"client_secret": {s.clientSecret},
	}
	if s.scope != "" {
		form.Set("scope", s.scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Credential{}, AuthFailuref("building token request failed").WithDetail(err.Error())
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Credential{}, AuthFailuref("credential source unreachable").WithDetail(err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Credential{}, AuthFailuref("reading token response failed").WithDetail(err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		return Credential{}, AuthFailuref("credential source rejected the request (HTTP %d)", resp.StatusCode).WithDetail(string(body))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.AccessToken == "" {
		return Credential{}, AuthFailuref("credential source returned an unexpected response").WithDetail(string(body))
	}

	cred := Credential{Token: payload.AccessToken}
	if payload.ExpiresIn > 0 {
		cred.ExpiresAt = s.now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	}
	return cred, nil
}

// CredentialProvider caches bearer tokens per backend type. Concurrent
// callers for the same backend share one in-flight fetch.
type CredentialProvider struct {
	logger *zap.Logger

	mu      sync.Mutex
	sources map[BackendType]TokenSource
	cache   map[BackendType]Credential

	group singleflight.Group
	skew  time.Duration
	now   func() time.Time
}

// NewCredentialProvider creates a provider over the given token sources.
func NewCredentialProvider(logger *zap.Logger, sources map[BackendType]TokenSource) *CredentialProvider {
	if sources == nil {
		sources = make(map[BackendType]TokenSource)
	}
	return &CredentialProvider{
		logger:  logger,
		sources: sources,
		cache:   make(map[BackendType]Credential),
		skew:    tokenExpirySkew,
		now:     time.Now,
	}
}

// Token returns a valid credential for the backend, fetching only when the
// cache is empty or within the expiry skew.
func (p *CredentialProvider) Token(ctx context.Context, t BackendType) (Credential, error) {
	p.mu.Lock()
	src, ok := p.sources[t]
	if !ok {
		p.mu.Unlock()
		return Credential{}, AuthFailuref("no credential source configured for backend %q", string(t))
	}
	if cred, ok := p.cache[t]; ok && cred.valid(p.now(), p.skew) {
		p.mu.Unlock()
		p.logger.Debug("using cached token", zap.String("backend", string(t)))
		return cred, nil
	}
	p.mu.Unlock()

	v, err, _ := p.group.Do(string(t), func() (any, error) {
		// A concurrent caller may have refilled the cache while we waited.
		p.mu.Lock()
		if cred, ok := p.cache[t]; ok && cred.valid(p.now(), p.skew) {
			p.mu.Unlock()
			return cred, nil
		}
		p.mu.Unlock()

		start := p.now()
		cred, fetchErr := src.Fetch(ctx)
		if fetchErr != nil {
			return Credential{}, fetchErr
		}

		p.mu.Lock()
		p.cache[t] = cred
		p.mu.Unlock()

		p.logger.Info("token obtained",
			zap.String("backend", string(t)),
			zap.Int64("auth_ms", p.now().Sub(start).Milliseconds()),
			zap.Time("expires_at", cred.ExpiresAt))
		return cred, nil
	})
	if err != nil {
		return Credential{}, err
	}
	return v.(Credential), nil
}
