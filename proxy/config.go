package proxy

import (
	"net/http"

	"github.com/papercomputeco/devserve/pkg/config"
)

// Config is the dev proxy configuration.
type Config struct {
	// Rules maps a path prefix, or a "^"-prefixed regular expression, to
	// the rule requests matching it are forwarded with.
	Rules map[string]config.ProxyRule

	// Transport is an optional round tripper used for every route.
	// Used in tests to point routes at an httptest server's client.
	// When nil, each route gets a clone of http.DefaultTransport.
	Transport http.RoundTripper
}
