// Package config provides application configuration management.
//
// The config package handles loading and validation of the application's
// configuration from YAML files and environment variables. It covers server
// settings, logging, the router's code template, and per-backend sandbox
// settings (endpoints, auth scheme, credential sources, timeouts).
//
// Usage:
//
//	cfg, err := config.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Default backend: %s\n", cfg.Router.DefaultBackend)
package config
