package sandbox

import (
	"context"
	"time"
)

// BackendType identifies one concrete execution environment.
type BackendType string

// Supported backend types.
const (
	BackendLocal   BackendType = "local"
	BackendACA     BackendType = "aca"
	BackendE2B     BackendType = "e2b"
	BackendDaytona BackendType = "daytona"
)

// Request represents one logical execution request. It is supplied by the
// caller and never mutated by the router.
type Request struct {
	// SessionKey is the caller-chosen identity of the sandbox session. It is
	// the unit of session reuse and of the one-execution-at-a-time guarantee.
	SessionKey string
	// Parameters are substituted into the configured code template.
	Parameters map[string]string
	// TimeoutMs bounds the whole execution. Zero means the backend default.
	TimeoutMs int
}

// Outcome classifies how an execution ended.
type Outcome string

// Execution outcomes.
const (
	OutcomeSuccess      Outcome = "success"
	OutcomeBackendError Outcome = "backend_error"
	OutcomeTimeout      Outcome = "timeout"
	OutcomeAuthFailure  Outcome = "auth_failure"
	OutcomeConfigError  Outcome = "config_error"
)

// Result is the normalized outcome of one execution call.
type Result struct {
	Stdout      string
	Stderr      string
	ReturnValue string
	DurationMs  int64
	Outcome     Outcome
}

// Payload is the backend-shaped execution payload produced by Assemble.
type Payload struct {
	// Code is the rendered code template.
	Code string
	// Body is the wire body for remote backends, already in the envelope
	// shape the backend expects.
	Body        []byte
	ContentType string
	// Params are retained for the in-process local backend, which runs a Go
	// function instead of interpreting Code.
	Params map[string]string
}

// SessionState tracks where a session is in its lifecycle.
type SessionState string

// Session states. An absent session has no Session value at all.
const (
	StateCreating  SessionState = "creating"
	StateReady     SessionState = "ready"
	StateExecuting SessionState = "executing"
)

// Session is a backend-side execution context. It is owned exclusively by
// the SessionManager; no other component mutates it.
type Session struct {
	Key        string
	Backend    BackendType
	State      SessionState
	CreatedAt  time.Time
	LastUsedAt time.Time
	// RemoteID is the backend-assigned session identifier, opaque to us.
	RemoteID string
}

// Client performs the backend-specific calls for one backend family.
// Implementations must be safe for concurrent use; the SessionManager
// guarantees only that calls for the same session key never overlap.
type Client interface {
	// CreateSession provisions a session and returns its remote identifier.
	CreateSession(ctx context.Context, key string) (string, error)
	// Execute runs an assembled payload in the given session.
	Execute(ctx context.Context, sess *Session, payload Payload) (Result, error)
	// CloseSession tears the session down. Best effort: backends also reap
	// idle sessions server-side.
	CloseSession(ctx context.Context, sess *Session) error
}
