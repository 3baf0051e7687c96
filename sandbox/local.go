package sandbox

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Runner is the in-process computation invoked by the local backend. It
// receives the request parameters and returns the produced output.
type Runner func(ctx context.Context, params map[string]string) (string, error)

// LocalClient runs the computation in-process with no network hop and no
// isolation. Development and testing only.
type LocalClient struct {
	logger *zap.Logger
	runner Runner
}

// NewLocalClient creates a local execution client. A nil runner falls back
// to a deterministic parameter report.
func NewLocalClient(logger *zap.Logger, runner Runner) *LocalClient {
	if runner == nil {
		runner = defaultRunner
	}
	return &LocalClient{logger: logger, runner: runner}
}

// CreateSession returns a synthetic identifier. Local execution is stateless;
// every call gets a fresh session.
func (c *LocalClient) CreateSession(_ context.Context, key string) (string, error) {
	_ = key
	return uuid.NewString(), nil
}

// Execute invokes the runner with the request parameters.
func (c *LocalClient) Execute(ctx context.Context, sess *Session, payload Payload) (Result, error) {
	start := time.Now()
	c.logger.Info("local execution starting", zap.String("session_key", sess.Key))

	out, err := c.runner(ctx, payload.Params)
	duration := time.Since(start).Milliseconds()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return Result{}, Timeoutf("local execution timed out")
		}
		return Result{
			Stderr:     err.Error(),
			DurationMs: duration,
			Outcome:    OutcomeBackendError,
		}, nil
	}

	c.logger.Info("local execution finished",
		zap.String("session_key", sess.Key),
		zap.Int64("execute_ms", duration))
	return Result{
		Stdout:     out,
		DurationMs: duration,
		Outcome:    OutcomeSuccess,
	}, nil
}

// CloseSession is a no-op for local sessions.
func (c *LocalClient) CloseSession(context.Context, *Session) error {
	return nil
}

// defaultRunner reports the request parameters deterministically. Real
// deployments inject the computation via WithLocalRunner.
func defaultRunner(_ context.Context, params map[string]string) (string, error) {
	if len(params) == 0 {
		return "(no parameters)", nil
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, params[k])
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
