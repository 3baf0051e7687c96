package sandbox

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// countingTokenSource implements TokenSource for testing
type countingTokenSource struct {
	fetches atomic.Int64
	delay   time.Duration
	cred    Credential
	err     error
}

func (s *countingTokenSource) Fetch(context.Context) (Credential, error) {
	s.fetches.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return Credential{}, s.err
	}
	return s.cred, nil
}

func TestCredentialProviderToken(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("CachesWithinValidity", func(t *testing.T) {
		source := &countingTokenSource{cred: Credential{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}}
		provider := NewCredentialProvider(logger, map[BackendType]TokenSource{BackendACA: source})

		for range 3 {
			cred, err := provider.Token(context.Background(), BackendACA)
			require.NoError(t, err)
			assert.Equal(t, "tok", cred.Token)
		}
		assert.Equal(t, int64(1), source.fetches.Load())
	})

	t.Run("RefreshesWithinSkew", func(t *testing.T) {
		source := &countingTokenSource{cred: Credential{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}}
		provider := NewCredentialProvider(logger, map[BackendType]TokenSource{BackendACA: source})

		_, err := provider.Token(context.Background(), BackendACA)
		require.NoError(t, err)

		// Jump to just inside the skew window: the cached token no longer counts.
		provider.now = func() time.Time { return time.Now().Add(time.Hour - time.Minute) }
		source.cred = Credential{Token: "tok2", ExpiresAt: time.Now().Add(2 * time.Hour)}

		cred, err := provider.Token(context.Background(), BackendACA)
		require.NoError(t, err)
		assert.Equal(t, "tok2", cred.Token)
		assert.Equal(t, int64(2), source.fetches.Load())
	})

	t.Run("StaticKeyNeverExpires", func(t *testing.T) {
		source := &countingTokenSource{cred: Credential{Token: "api-key"}}
		provider := NewCredentialProvider(logger, map[BackendType]TokenSource{BackendE2B: source})

		_, err := provider.Token(context.Background(), BackendE2B)
		require.NoError(t, err)
		provider.now = func() time.Time { return time.Now().Add(24 * time.Hour) }
		_, err = provider.Token(context.Background(), BackendE2B)
		require.NoError(t, err)
		assert.Equal(t, int64(1), source.fetches.Load())
	})

	t.Run("SingleFlight", func(t *testing.T) {
		source := &countingTokenSource{
			delay: 50 * time.Millisecond,
			cred:  Credential{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)},
		}
		provider := NewCredentialProvider(logger, map[BackendType]TokenSource{BackendACA: source})

		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				cred, err := provider.Token(context.Background(), BackendACA)
				assert.NoError(t, err)
				assert.Equal(t, "tok", cred.Token)
			}()
		}
		wg.Wait()
		assert.Equal(t, int64(1), source.fetches.Load())
	})

	t.Run("NoSourceConfigured", func(t *testing.T) {
		provider := NewCredentialProvider(logger, nil)
		_, err := provider.Token(context.Background(), BackendDaytona)
		require.Error(t, err)
		assert.Equal(t, OutcomeAuthFailure, Classify(err))
	})

	t.Run("FetchFailureIsAuthFailure", func(t *testing.T) {
		source := &countingTokenSource{err: AuthFailuref("rejected")}
		provider := NewCredentialProvider(logger, map[BackendType]TokenSource{BackendACA: source})
		_, err := provider.Token(context.Background(), BackendACA)
		require.Error(t, err)
		assert.Equal(t, OutcomeAuthFailure, Classify(err))
	})
}

func TestStaticTokenSource(t *testing.T) {
	t.Run("ConfiguredKey", func(t *testing.T) {
		cred, err := NewStaticTokenSource("key").Fetch(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "key", cred.Token)
		assert.True(t, cred.ExpiresAt.IsZero())
	})

	t.Run("MissingKey", func(t *testing.T) {
		_, err := NewStaticTokenSource("").Fetch(context.Background())
		require.Error(t, err)
		assert.Equal(t, OutcomeAuthFailure, Classify(err))
	})
}

func TestClientCredentialsTokenSource(t *testing.T) {
	t.Run("FetchesToken", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
			assert.Equal(t, "client", r.PostForm.Get("client_id"))
			assert.Equal(t, "https://dynamicsessions.io/.default", r.PostForm.Get("scope"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":3600}`))
		}))
		defer server.Close()

		source := NewClientCredentialsTokenSource(server.Client(), server.URL, "client", "secret", "https://dynamicsessions.io/.default")
		cred, err := source.Fetch(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "tok", cred.Token)
		assert.WithinDuration(t, time.Now().Add(time.Hour), cred.ExpiresAt, time.Minute)
	})

	t.Run("RejectedRequest", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
		}))
		defer server.Close()

		source := NewClientCredentialsTokenSource(server.Client(), server.URL, "client", "bad", "")
		_, err := source.Fetch(context.Background())
		require.Error(t, err)
		assert.Equal(t, OutcomeAuthFailure, Classify(err))
	})

	t.Run("MalformedResponse", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("not json"))
		}))
		defer server.Close()

		source := NewClientCredentialsTokenSource(server.Client(), server.URL, "client", "secret", "")
		_, err := source.Fetch(context.Background())
		require.Error(t, err)
		assert.Equal(t, OutcomeAuthFailure, Classify(err))
	})
}
