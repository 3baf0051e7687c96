package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// remoteClient carries the shared machinery of the HTTP-based backends:
// bearer auth, the single-retry transient-failure policy, and raw response
// handling. The per-family clients embed it and add their own endpoints and
// envelope parsing.
type remoteClient struct {
	logger *zap.Logger
	desc   Descriptor
	creds  *CredentialProvider
	http   *http.Client
}

func newRemoteClient(logger *zap.Logger, desc Descriptor, creds *CredentialProvider, httpClient *http.Client) remoteClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return remoteClient{logger: logger, desc: desc, creds: creds, http: httpClient}
}

// authHeader resolves the Authorization header value, or "" for unauthenticated
// backends.
func (c *remoteClient) authHeader(ctx context.Context) (string, error) {
	if c.desc.AuthScheme != AuthBearer {
		return "", nil
	}
	cred, err := c.creds.Token(ctx, c.desc.Type)
	if err != nil {
		return "", err
	}
	return "Bearer " + cred.Token, nil
}

// post issues one POST and retries at most once, and only for failures where
// the snippet cannot have run: connection-level errors, or 5xx responses
// carrying no captured output. Auth errors and 4xx are never retried, and
// neither is anything after output has been observed, because executed code
// is not idempotent.
func (c *remoteClient) post(ctx context.Context, url string, body []byte, contentType string) ([]byte, error) {
	auth, err := c.authHeader(ctx)
	if err != nil {
		return nil, err
	}

	var respBody []byte
	attempt := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(BackendErrorf("building request failed").WithDetail(err.Error()))
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return backoff.Permanent(Timeoutf("execution timed out"))
			}
			// Nothing reached the backend; safe to retry once.
			c.logger.Warn("request failed, may retry",
				zap.String("backend", string(c.desc.Type)), zap.Error(err))
			return BackendErrorf("backend unreachable").WithDetail(err.Error())
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(BackendErrorf("reading response failed").WithDetail(err.Error()))
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return backoff.Permanent(AuthFailuref("backend rejected credentials (HTTP %d)", resp.StatusCode).WithDetail(string(raw)))
		case resp.StatusCode >= 500:
			if containsOutput(raw) {
				// The snippet already produced output; re-running it could
				// repeat side effects.
				return backoff.Permanent(BackendErrorf("backend failed after partial execution (HTTP %d)", resp.StatusCode).WithDetail(string(raw)))
			}
			c.logger.Warn("backend returned server error, may retry",
				zap.String("backend", string(c.desc.Type)), zap.Int("status", resp.StatusCode))
			return BackendErrorf("backend error (HTTP %d)", resp.StatusCode).WithDetail(string(raw))
		case resp.StatusCode >= 400:
			return backoff.Permanent(BackendErrorf("backend rejected the request (HTTP %d)", resp.StatusCode).WithDetail(string(raw)))
		}

		respBody = raw
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(newRetryBackOff(), 1), ctx)
	if err := backoff.Retry(attempt, policy); err != nil {
		if ctx.Err() == context.DeadlineExceeded && Classify(err) != OutcomeTimeout {
			return nil, Timeoutf("execution timed out")
		}
		return nil, err
	}
	return respBody, nil
}

// delete issues a single DELETE for session teardown. No retry: teardown is
// best effort and backends reap on their own.
func (c *remoteClient) delete(ctx context.Context, url string) error {
	auth, err := c.authHeader(ctx)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return BackendErrorf("building teardown request failed").WithDetail(err.Error())
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return BackendErrorf("teardown request failed").WithDetail(err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusNotFound {
		raw, _ := io.ReadAll(resp.Body)
		return BackendErrorf("teardown rejected (HTTP %d)", resp.StatusCode).WithDetail(string(raw))
	}
	return nil
}

func newRetryBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = time.Second
	return b
}

// containsOutput reports whether a failure response already carries captured
// output in any of the known envelope shapes, meaning the snippet may have
// started executing.
func containsOutput(raw []byte) bool {
	var probe struct {
		Properties struct {
			Stdout string `json:"stdout"`
		} `json:"properties"`
		Logs struct {
			Stdout []string `json:"stdout"`
		} `json:"logs"`
		Result string `json:"result"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.Properties.Stdout != "" || len(probe.Logs.Stdout) > 0 || probe.Result != ""
}
