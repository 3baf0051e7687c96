// Package main is the entry point for the coderouter MCP server.
//
// The coderouter server exposes a multi-backend sandboxed code-execution
// router over the Model Context Protocol: requests are dispatched to an
// in-process local runner or to a remote session-based sandbox service
// (Azure Container Apps dynamic sessions, E2B, Daytona), with bearer-token
// authentication, per-key session reuse, and fail-soft error handling.
//
// The application uses Uber's fx framework for dependency injection and
// lifecycle management, with zap for structured logging and viper for
// configuration.
package main
