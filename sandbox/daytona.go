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

// DaytonaClient executes code in Daytona sandboxes. Like E2B, sandboxes are
// created per execution and deleted on release.
type DaytonaClient struct {
	remoteClient
}

// NewDaytonaClient creates a Daytona execution client.
func NewDaytonaClient(logger *zap.Logger, desc Descriptor, creds *CredentialProvider, httpClient *http.Client) *DaytonaClient {
	return &DaytonaClient{remoteClient: newRemoteClient(logger, desc, creds, httpClient)}
}

// CreateSession provisions a fresh sandbox and returns its identifier.
func (c *DaytonaClient) CreateSession(ctx context.Context, key string) (string, error) {
	start := time.Now()
	c.logger.Info("daytona sandbox creating", zap.String("session_key", key))

	raw, err := c.post(ctx, c.baseURL()+"/sandbox", []byte("{}"), jsonContentType)
	if err != nil {
		return "", err
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &created); err != nil || created.ID == "" {
		return "", BackendErrorf("unexpected sandbox create response").WithDetail(string(raw))
	}

	c.logger.Info("daytona sandbox created",
		zap.String("session_key", key),
		zap.String("sandbox_id", created.ID),
		zap.Int64("create_ms", time.Since(start).Milliseconds()))
	return created.ID, nil
}

// Execute runs the assembled payload through the sandbox's code-run toolbox.
func (c *DaytonaClient) Execute(ctx context.Context, sess *Session, payload Payload) (Result, error) {
	start := time.Now()
	executeURL := fmt.Sprintf("%s/toolbox/%s/process/code-run", c.baseURL(), url.PathEscape(sess.RemoteID))

	c.logger.Info("daytona execution starting", zap.String("session_key", sess.Key))

	raw, err := c.post(ctx, executeURL, payload.Body, payload.ContentType)
	if err != nil {
		return Result{}, err
	}

	// Expected shape: {"exitCode": <int>, "result": <string>}
	var envelope struct {
		ExitCode *int   `json:"exitCode"`
		Result   string `json:"result"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.ExitCode == nil {
		return Result{}, BackendErrorf("unexpected execution response").WithDetail(string(raw))
	}

	res := Result{
		DurationMs: time.Since(start).Milliseconds(),
		Outcome:    OutcomeSuccess,
	}
	if *envelope.ExitCode != 0 {
		res.Outcome = OutcomeBackendError
		res.Stderr = fmt.Sprintf("exit code %d: %s", *envelope.ExitCode, envelope.Result)
	} else {
		res.Stdout = envelope.Result
	}

	c.logger.Info("daytona execution finished",
		zap.String("session_key", sess.Key),
		zap.Int("exit_code", *envelope.ExitCode),
		zap.Int64("execute_ms", res.DurationMs))
	return res, nil
}

// CloseSession deletes the sandbox.
func (c *DaytonaClient) CloseSession(ctx context.Context, sess *Session) error {
	err := c.delete(ctx, fmt.Sprintf("%s/sandbox/%s", c.baseURL(), url.PathEscape(sess.RemoteID)))
	if err == nil {
		c.logger.Info("daytona sandbox cleaned up", zap.String("sandbox_id", sess.RemoteID))
	}
	return err
}

func (c *DaytonaClient) baseURL() string {
	return strings.TrimRight(c.desc.Endpoint, "/")
}
