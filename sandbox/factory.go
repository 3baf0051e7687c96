package sandbox

import (
	"net/http"

	"go.uber.org/zap"
)

// newClient creates the appropriate execution client for a backend descriptor.
func newClient(logger *zap.Logger, desc Descriptor, creds *CredentialProvider, httpClient *http.Client, runner Runner) (Client, error) {
	switch desc.Type {
	case BackendLocal:
		return NewLocalClient(logger, runner), nil
	case BackendACA:
		return NewACAClient(logger, desc, creds, httpClient), nil
	case BackendE2B:
		return NewE2BClient(logger, desc, creds, httpClient), nil
	case BackendDaytona:
		return NewDaytonaClient(logger, desc, creds, httpClient), nil
	default:
		return nil, ConfigErrorf("unsupported backend: %s", string(desc.Type))
	}
}
