package server

import (
	"net/http"

	"github.com/papercomputeco/devserve/pkg/config"
	"github.com/papercomputeco/devserve/pkg/plugin"
)

// DefaultExtensions are tried, in order, when a module request names a
// file without an extension. Plugin extensions are appended to these.
var DefaultExtensions = []string{".mjs", ".js", ".ts", ".jsx", ".tsx", ".json"}

// DeniedFiles are base name patterns (path.Match syntax, matched
// case-insensitively) that are never served from the project root. Config
// file names from config.FileNames are denied as well.
var DeniedFiles = []string{".env", ".env.*", "*.pem", "*.crt"}

// Options tunes a Server beyond what the config file declares.
type Options struct {
	// Registry supplies the plugins the config can activate.
	// Defaults to plugin.Default().
	Registry *plugin.Registry

	// AliasCacheSize bounds the alias resolution cache.
	AliasCacheSize int

	// ProxyTransport overrides the proxy's round tripper. Used in tests.
	ProxyTransport http.RoundTripper

	// Overrides is applied to every config Watch loads before it is
	// swapped in, so command line overrides survive a reload.
	Overrides func(*config.Config) error
}
