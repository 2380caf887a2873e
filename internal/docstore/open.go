package docstore

import (
	"fmt"
	"time"
)

const (
	BackendHTTP   = "http"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Options selects and configures a backend.
type Options struct {
	Backend   string
	BaseURL   string
	AuthToken string
	Timeout   time.Duration
	DataDir   string
}

// Open returns the Store for opts.Backend.
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case BackendHTTP, "":
		if opts.BaseURL == "" {
			return nil, fmt.Errorf("document store base URL is required for the %s backend", BackendHTTP)
		}
		return NewHTTPStore(opts.BaseURL, opts.AuthToken, opts.Timeout), nil
	case BackendSQLite:
		return OpenSQLite(opts.DataDir)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown document store backend %q", opts.Backend)
	}
}
