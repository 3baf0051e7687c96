package sandbox

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/isdmx/coderouter/config"
)

// Router is the public entry point of the execution pipeline. It resolves
// the backend, drives session acquisition, payload assembly, execution and
// normalization, and always returns a string.
type Router struct {
	logger   *zap.Logger
	registry *Registry
	creds    *CredentialProvider
	sessions *SessionManager
	clients  map[BackendType]Client
	template *Template
}

type routerOptions struct {
	httpClient *http.Client
	runner     Runner
	clients    map[BackendType]Client
	sources    map[BackendType]TokenSource
}

// RouterOption customizes router construction.
type RouterOption func(*routerOptions)

// WithHTTPClient sets the HTTP client shared by the remote backends.
func WithHTTPClient(httpClient *http.Client) RouterOption {
	return func(o *routerOptions) { o.httpClient = httpClient }
}

// WithLocalRunner sets the computation the local backend executes.
func WithLocalRunner(runner Runner) RouterOption {
	return func(o *routerOptions) { o.runner = runner }
}

// WithClient overrides the execution client for one backend type.
func WithClient(t BackendType, client Client) RouterOption {
	return func(o *routerOptions) { o.clients[t] = client }
}

// WithTokenSource overrides the credential source for one backend type.
func WithTokenSource(t BackendType, source TokenSource) RouterOption {
	return func(o *routerOptions) { o.sources[t] = source }
}

// NewRouter builds a router from configuration.
func NewRouter(logger *zap.Logger, cfg *config.Config, opts ...RouterOption) (*Router, error) {
	o := &routerOptions{
		httpClient: &http.Client{},
		clients:    make(map[BackendType]Client),
		sources:    make(map[BackendType]TokenSource),
	}
	for _, opt := range opts {
		opt(o)
	}

	registry, err := NewRegistry(cfg)
	if err != nil {
		return nil, err
	}

	template, err := NewTemplate(cfg.Router.CodeTemplate)
	if err != nil {
		return nil, err
	}

	sources := make(map[BackendType]TokenSource)
	for name, backend := range cfg.Backends {
		if !backend.Enabled || backend.Auth != string(AuthBearer) {
			continue
		}
		t := BackendType(name)
		switch {
		case backend.APIKey != "":
			sources[t] = NewStaticTokenSource(backend.APIKey)
		case backend.TokenURL != "":
			sources[t] = NewClientCredentialsTokenSource(o.httpClient,
				backend.TokenURL, backend.ClientID, backend.ClientSecret, backend.Scope)
		}
	}
	for t, source := range o.sources {
		sources[t] = source
	}

	creds := NewCredentialProvider(logger, sources)

	clients := make(map[BackendType]Client)
	for _, t := range registry.Types() {
		if client, ok := o.clients[t]; ok {
			clients[t] = client
			continue
		}
		desc, _ := registry.Resolve(t)
		client, err := newClient(logger, desc, creds, o.httpClient, o.runner)
		if err != nil {
			return nil, err
		}
		clients[t] = client
	}

	return &Router{
		logger:   logger,
		registry: registry,
		creds:    creds,
		sessions: NewSessionManager(logger),
		clients:  clients,
		template: template,
	}, nil
}

// Backends returns the registered backend types.
func (r *Router) Backends() []BackendType {
	return r.registry.Types()
}

// Run executes one request and always returns a string: every failure below
// this point is classified and rendered by the normalizer. An unknown
// sandbox type is rejected before any session or credential machinery is
// touched.
func (r *Router) Run(ctx context.Context, sandboxType string, req Request) (out string) {
	runID := uuid.NewString()
	var desc Descriptor
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("panic during execution",
				zap.String("run_id", runID),
				zap.String("backend", sandboxType),
				zap.Any("panic", rec))
			out = NormalizeError(desc, BackendErrorf("internal error"))
		}
	}()

	resolved, err := r.registry.Resolve(BackendType(sandboxType))
	if err != nil {
		r.logger.Warn("unknown sandbox type",
			zap.String("run_id", runID),
			zap.String("backend", sandboxType))
		return NormalizeError(desc, err)
	}
	desc = resolved

	if req.SessionKey == "" {
		return NormalizeError(desc, ConfigErrorf("session key must not be empty"))
	}

	client, ok := r.clients[desc.Type]
	if !ok {
		return NormalizeError(desc, ConfigErrorf("no execution client for backend %q", string(desc.Type)))
	}

	timeout := time.Duration(req.TimeoutMs) * time.Millisecond
	if req.TimeoutMs <= 0 {
		timeout = time.Duration(desc.DefaultTimeoutMs) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	sess, err := r.sessions.Acquire(ctx, desc, client, req.SessionKey)
	if err != nil {
		r.logFailure(runID, desc, req, err)
		return NormalizeError(desc, err)
	}
	// Release runs on every exit path; outcome decides whether the session
	// survives for reuse.
	outcome := OutcomeBackendError
	defer func() { r.sessions.Release(desc, client, sess, outcome) }()

	payload, err := Assemble(desc, r.template, req)
	if err != nil {
		outcome = Classify(err)
		r.logFailure(runID, desc, req, err)
		return NormalizeError(desc, err)
	}

	res, err := client.Execute(ctx, sess, payload)
	if err != nil {
		outcome = Classify(err)
		r.logFailure(runID, desc, req, err)
		return NormalizeError(desc, err)
	}
	outcome = res.Outcome

	r.logger.Info("execution complete",
		zap.String("run_id", runID),
		zap.String("backend", string(desc.Type)),
		zap.String("session_key", req.SessionKey),
		zap.String("outcome", string(outcome)),
		zap.Int64("total_ms", time.Since(start).Milliseconds()))
	return Normalize(desc, res)
}

func (r *Router) logFailure(runID string, desc Descriptor, req Request, err error) {
	detail := ""
	var e *Error
	if errors.As(err, &e) {
		detail = e.Detail
	}
	r.logger.Error("execution failed",
		zap.String("run_id", runID),
		zap.String("backend", string(desc.Type)),
		zap.String("session_key", req.SessionKey),
		zap.String("outcome", string(Classify(err))),
		zap.String("detail", detail),
		zap.Error(err))
}
