package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ACAClient executes code in Azure Container Apps dynamic sessions. Sessions
// are identified by the caller's key and reused across executions; the pool
// retires idle sessions server-side.
type ACAClient struct {
	remoteClient
}

// NewACAClient creates a dynamic-sessions execution client.
func NewACAClient(logger *zap.Logger, desc Descriptor, creds *CredentialProvider, httpClient *http.Client) *ACAClient {
	return &ACAClient{remoteClient: newRemoteClient(logger, desc, creds, httpClient)}
}

// CreateSession derives the pool identifier for the key. The pool provisions
// the session itself on first execute, so no network call happens here.
func (c *ACAClient) CreateSession(_ context.Context, key string) (string, error) {
	id := sessionIdentifier(key)
	c.logger.Info("aca session ready",
		zap.String("session_key", key),
		zap.String("identifier", id))
	return id, nil
}

// Execute runs the assembled payload synchronously in the session.
func (c *ACAClient) Execute(ctx context.Context, sess *Session, payload Payload) (Result, error) {
	start := time.Now()
	executeURL := fmt.Sprintf("%s/code/execute?api-version=%s&identifier=%s",
		strings.TrimRight(c.desc.Endpoint, "/"),
		url.QueryEscape(c.desc.APIVersion),
		url.QueryEscape(sess.RemoteID))

	c.logger.Info("aca execution starting", zap.String("session_key", sess.Key))

	raw, err := c.post(ctx, executeURL, payload.Body, payload.ContentType)
	if err != nil {
		return Result{}, err
	}

	// Expected shape: {"properties": {"result": ..., "stdout": ..., "stderr": ...}}
	var envelope struct {
		Properties *struct {
			Result *string `json:"result"`
			Stdout string  `json:"stdout"`
			Stderr string  `json:"stderr"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Properties == nil {
		return Result{}, BackendErrorf("unexpected response shape from dynamic sessions").WithDetail(string(raw))
	}

	props := envelope.Properties
	res := Result{
		Stdout:     props.Stdout,
		Stderr:     props.Stderr,
		DurationMs: time.Since(start).Milliseconds(),
		Outcome:    OutcomeSuccess,
	}
	if props.Result != nil {
		res.ReturnValue = *props.Result
	}
	if res.Stdout == "" && res.ReturnValue == "" && res.Stderr != "" {
		res.Outcome = OutcomeBackendError
	}

	c.logger.Info("aca execution finished",
		zap.String("session_key", sess.Key),
		zap.Int64("execute_ms", res.DurationMs))
	return res, nil
}

// CloseSession is a no-op: the pool reaps idle sessions server-side.
func (c *ACAClient) CloseSession(context.Context, *Session) error {
	return nil
}

// sessionIdentifier turns a caller-chosen key into a pool-safe identifier.
func sessionIdentifier(key string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), " ", "-")
}
