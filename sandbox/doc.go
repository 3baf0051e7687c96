// Package sandbox routes code-execution requests to isolated backends.
//
// The sandbox package implements the execution router for running generated
// code in one of several interchangeable environments: an in-process local
// runner (trusted, for development) or a remote, authenticated, session-based
// sandbox service (Azure Container Apps dynamic sessions, E2B, Daytona).
//
// The package owns the full execution pipeline: backend resolution, bearer
// token acquisition, session lifecycle, payload assembly, the remote call
// with timeout and retry, and normalization of heterogeneous responses into
// a single string. The Router is the public entry point; it never returns an
// error to its caller, only a result or diagnostic string.
//
// Usage:
//
//	router, err := sandbox.NewRouter(logger, cfg)
//	out := router.Run(ctx, "aca", sandbox.Request{
//	    SessionKey: "weather-new-york",
//	    Parameters: map[string]string{"destination": "New York"},
//	})
package sandbox
