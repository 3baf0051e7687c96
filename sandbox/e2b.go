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

// e2bDefaultTemplate is the sandbox template used for created sandboxes.
const e2bDefaultTemplate = "base"

// E2BClient executes code in E2B cloud sandboxes. Sandboxes are created per
// execution and killed on release; there is no session reuse.
type E2BClient struct {
	remoteClient
}

// NewE2BClient creates an E2B execution client.
func NewE2BClient(logger *zap.Logger, desc Descriptor, creds *CredentialProvider, httpClient *http.Client) *E2BClient {
	return &E2BClient{remoteClient: newRemoteClient(logger, desc, creds, httpClient)}
}

// CreateSession provisions a fresh sandbox and returns its identifier.
func (c *E2BClient) CreateSession(ctx context.Context, key string) (string, error) {
	start := time.Now()
	c.logger.Info("e2b sandbox creating", zap.String("session_key", key))

	body, err := json.Marshal(struct {
		TemplateID string `json:"templateID"`
		TimeoutSec int    `json:"timeout"`
	}{
		TemplateID: e2bDefaultTemplate,
		TimeoutSec: c.desc.DefaultTimeoutMs / 1000,
	})
	if err != nil {
		return "", BackendErrorf("encoding sandbox create payload failed").WithDetail(err.Error())
	}

	raw, err := c.post(ctx, c.baseURL()+"/sandboxes", body, jsonContentType)
	if err != nil {
		return "", err
	}

	var created struct {
		SandboxID string `json:"sandboxID"`
	}
	if err := json.Unmarshal(raw, &created); err != nil || created.SandboxID == "" {
		return "", BackendErrorf("unexpected sandbox create response").WithDetail(string(raw))
	}

	c.logger.Info("e2b sandbox created",
		zap.String("session_key", key),
		zap.String("sandbox_id", created.SandboxID),
		zap.Int64("create_ms", time.Since(start).Milliseconds()))
	return created.SandboxID, nil
}

// Execute runs the assembled payload in the sandbox's code interpreter.
func (c *E2BClient) Execute(ctx context.Context, sess *Session, payload Payload) (Result, error) {
	start := time.Now()
	executeURL := fmt.Sprintf("%s/sandboxes/%s/code", c.baseURL(), url.PathEscape(sess.RemoteID))

	c.logger.Info("e2b execution starting", zap.String("session_key", sess.Key))

	raw, err := c.post(ctx, executeURL, payload.Body, payload.ContentType)
	if err != nil {
		return Result{}, err
	}

	// Expected shape: {"logs": {"stdout": [...], "stderr": [...]},
	// "error": {"name": ..., "value": ...}, "text": ...}
	var envelope struct {
		Logs *struct {
			Stdout []string `json:"stdout"`
			Stderr []string `json:"stderr"`
		} `json:"logs"`
		Error *struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"error"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || (envelope.Logs == nil && envelope.Error == nil) {
		return Result{}, BackendErrorf("unexpected execution response").WithDetail(string(raw))
	}

	res := Result{
		ReturnValue: envelope.Text,
		DurationMs:  time.Since(start).Milliseconds(),
		Outcome:     OutcomeSuccess,
	}
	if envelope.Logs != nil {
		res.Stdout = strings.Join(envelope.Logs.Stdout, "")
		res.Stderr = strings.Join(envelope.Logs.Stderr, "")
	}
	if envelope.Error != nil {
		res.Outcome = OutcomeBackendError
		res.Stderr = envelope.Error.Name + ": " + envelope.Error.Value
	}

	c.logger.Info("e2b execution finished",
		zap.String("session_key", sess.Key),
		zap.Int64("execute_ms", res.DurationMs))
	return res, nil
}

// CloseSession kills the sandbox.
func (c *E2BClient) CloseSession(ctx context.Context, sess *Session) error {
	err := c.delete(ctx, fmt.Sprintf("%s/sandboxes/%s", c.baseURL(), url.PathEscape(sess.RemoteID)))
	if err == nil {
		c.logger.Info("e2b sandbox closed", zap.String("sandbox_id", sess.RemoteID))
	}
	return err
}

func (c *E2BClient) baseURL() string {
	return strings.TrimRight(c.desc.Endpoint, "/")
}
