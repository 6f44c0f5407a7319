package tracking

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/mlbridge-io/mlbridge/pkg/api"
)

// Opener constructs a Store for a parsed tracking URI. Backend packages
// register one per scheme from their init.
type Opener func(ctx context.Context, u *url.URL) (Store, error)

var (
	openersMu sync.RWMutex
	openers   = make(map[string]Opener)
)

// RegisterScheme makes a backend available to Open under the given URI
// scheme. It panics when the scheme is already taken, which is a programming
// error in package init.
func RegisterScheme(scheme string, o Opener) {
	openersMu.Lock()
	defer openersMu.Unlock()
	if scheme == "" || o == nil {
		panic("tracking: RegisterScheme with empty scheme or nil opener")
	}
	if _, dup := openers[scheme]; dup {
		panic("tracking: scheme " + scheme + " already registered")
	}
	openers[scheme] = o
}

// Open dispatches a tracking URI to its backend:
//
//	http://, https://      REST client (also the "databricks" keyword)
//	file://, plain paths   handled by a registered "file" opener
//	memory://              in-memory store
//	postgres://            PostgreSQL store
//
// Backend packages must be imported (usually blank) for their scheme to be
// registered. Credentials for REST backends come from the environment; use
// NewClient with WithCredentials for explicit ones.
func Open(ctx context.Context, uri string) (Store, error) {
	if uri == "" {
		return nil, api.NewConfigurationError("tracking URI is empty")
	}
	if uri == "databricks" || strings.HasPrefix(uri, "databricks://") {
		return NewClient(uri)
	}

	u, err := url.Parse(uri)
	if err != nil {
		return nil, api.NewConfigurationError("invalid tracking URI %q: %s", uri, err)
	}

	scheme := u.Scheme
	if scheme == "" {
		// A plain path is the local file layout.
		scheme = "file"
		u = &url.URL{Scheme: "file", Path: uri}
	}

	if scheme == "http" || scheme == "https" {
		return NewClient(uri)
	}

	openersMu.RLock()
	opener, ok := openers[scheme]
	openersMu.RUnlock()
	if !ok {
		return nil, api.NewConfigurationError(
			"unsupported tracking URI scheme %q (is the backend package imported?)", scheme)
	}
	return opener(ctx, u)
}
