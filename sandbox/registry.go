package sandbox

import (
	"sort"
	"time"

	"github.com/isdmx/coderouter/config"
)

// AuthScheme selects how a backend authenticates its calls.
type AuthScheme string

// Auth schemes.
const (
	AuthNone   AuthScheme = "none"
	AuthBearer AuthScheme = "bearer"
)

// Descriptor is the static per-backend record. Immutable after the registry
// is built.
type Descriptor struct {
	Type                 BackendType
	Endpoint             string
	AuthScheme           AuthScheme
	APIVersion           string
	DefaultTimeoutMs     int
	SupportsSessionReuse bool
	// IdleTTL is how long an unused session is trusted before the router
	// forgets it locally and lets the backend recreate it.
	IdleTTL time.Duration
	// Marker prefixes successful output so the caller can tell which
	// environment produced it.
	Marker string
}

// markers are the backend-identifying prefixes shown to the caller.
var markers = map[BackendType]string{
	BackendLocal:   "🏠 [Local Execution]",
	BackendACA:     "☁️ [Azure Container Apps Sandbox]",
	BackendE2B:     "🔒 [E2B Sandbox]",
	BackendDaytona: "🔒 [Daytona Sandbox]",
}

// Registry maps sandbox types to their descriptors. Populated once at
// startup and read-only thereafter, so no locking is required.
type Registry struct {
	descriptors map[BackendType]Descriptor
}

// NewRegistry builds the registry from configuration. Backends that are
// enabled but missing required settings fail here with a config error rather
// than at first use.
func NewRegistry(cfg *config.Config) (*Registry, error) {
	r := &Registry{descriptors: make(map[BackendType]Descriptor)}
	for name, backend := range cfg.Backends {
		if !backend.Enabled {
			continue
		}
		t := BackendType(name)
		desc := Descriptor{
			Type:                 t,
			Endpoint:             backend.Endpoint,
			AuthScheme:           AuthScheme(backend.Auth),
			APIVersion:           backend.APIVersion,
			DefaultTimeoutMs:     backend.TimeoutMs,
			SupportsSessionReuse: backend.SessionReuse,
			IdleTTL:              backend.IdleTTL(),
			Marker:               markers[t],
		}
		if t != BackendLocal {
			if desc.Endpoint == "" {
				return nil, ConfigErrorf("backend %q is enabled but has no endpoint configured", name)
			}
			if desc.AuthScheme == AuthBearer && backend.APIKey == "" && backend.TokenURL == "" {
				return nil, ConfigErrorf("backend %q requires an api_key or a token_url credential source", name)
			}
		}
		r.descriptors[t] = desc
	}
	return r, nil
}

// Resolve returns the descriptor for a sandbox type.
func (r *Registry) Resolve(t BackendType) (Descriptor, error) {
	desc, ok := r.descriptors[t]
	if !ok {
		return Descriptor{}, ConfigErrorf("unknown sandbox type: %q", string(t))
	}
	return desc, nil
}

// Types returns the registered backend types in stable order.
func (r *Registry) Types() []BackendType {
	types := make([]BackendType, 0, len(r.descriptors))
	for t := range r.descriptors {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
