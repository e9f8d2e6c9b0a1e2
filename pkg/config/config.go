// Package config holds the declarative dev server configuration: which
// plugins are active, how symbolic path aliases resolve, and which URL
// prefixes are proxied to another origin.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	// DefaultHost is the interface the dev server binds to when none is configured.
	DefaultHost = "localhost"

	// DefaultPort is the dev server port when none is configured.
	DefaultPort = 5173

	// DefaultEnvPrefix filters which .env keys are exposed to clients.
	DefaultEnvPrefix = "DEVSERVE_"

	// DefaultMode is used to pick mode-specific .env files.
	DefaultMode = "development"
)

// Config is the dev server configuration record.
type Config struct {
	// Root is the absolute directory of the configuration file. Relative
	// alias targets and served files are resolved against it.
	Root string `json:"root" toml:"-" yaml:"-"`

	// Plugins is the ordered list of plugin activation tokens.
	Plugins []string `json:"plugins" toml:"plugins" yaml:"plugins"`

	Resolve ResolveConfig `json:"resolve" toml:"resolve" yaml:"resolve"`
	Server  ServerConfig  `json:"server" toml:"server" yaml:"server"`

	// Mode selects mode-specific .env files (e.g. "development").
	Mode string `json:"mode,omitempty" toml:"mode" yaml:"mode"`

	// EnvPrefix filters which loaded env keys end up in Env.
	EnvPrefix string `json:"envPrefix,omitempty" toml:"envPrefix" yaml:"envPrefix"`

	// LogLevel is one of debug, info, warn, error or silent.
	LogLevel string `json:"logLevel,omitempty" toml:"logLevel" yaml:"logLevel"`

	// Env holds prefix-filtered variables loaded from .env files.
	Env map[string]string `json:"env,omitempty" toml:"-" yaml:"-"`
}

// ResolveConfig configures module resolution.
type ResolveConfig struct {
	// Alias maps a symbolic prefix (e.g. "@") to a directory path.
	Alias map[string]string `json:"alias" toml:"alias" yaml:"alias"`
}

// ServerConfig configures the development server.
type ServerConfig struct {
	Host string `json:"host,omitempty" toml:"host" yaml:"host"`
	Port int    `json:"port,omitempty" toml:"port" yaml:"port"`

	// Proxy maps a URL path prefix (or a "^"-prefixed regular expression)
	// to a forwarding rule.
	Proxy map[string]ProxyRule `json:"proxy" toml:"proxy" yaml:"proxy"`
}

// Default returns the stock configuration rooted at dir: the vue plugin,
// "@" aliased to dir/src, and /api proxied to http://localhost:8080.
func Default(dir string) *Config {
	root, err := filepath.Abs(dir)
	if err != nil {
		root = filepath.Clean(dir)
	}

	return &Config{
		Root:    root,
		Plugins: []string{"vue"},
		Resolve: ResolveConfig{
			Alias: map[string]string{
				"@": "src",
			},
		},
		Server: ServerConfig{
			Host: DefaultHost,
			Port: DefaultPort,
			Proxy: map[string]ProxyRule{
				"/api": {Target: "http://localhost:8080"},
			},
		},
		Mode:      DefaultMode,
		EnvPrefix: DefaultEnvPrefix,
		LogLevel:  "info",
	}
}

// applyDefaults fills zero-valued optional fields.
func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Mode == "" {
		c.Mode = DefaultMode
	}
	if c.EnvPrefix == "" {
		c.EnvPrefix = DefaultEnvPrefix
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Resolve.Alias == nil {
		c.Resolve.Alias = map[string]string{}
	}
	if c.Server.Proxy == nil {
		c.Server.Proxy = map[string]ProxyRule{}
	}
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// ResolveAliases maps every alias key to an absolute path. Relative
// targets are joined onto Root, so the result never depends on the
// process working directory.
func (c *Config) ResolveAliases() (map[string]string, error) {
	if !filepath.IsAbs(c.Root) {
		return nil, fmt.Errorf("config root %q is not absolute", c.Root)
	}

	resolved := make(map[string]string, len(c.Resolve.Alias))
	for key, target := range c.Resolve.Alias {
		if key == "" {
			return nil, fmt.Errorf("alias key must not be empty")
		}
		if filepath.IsAbs(target) {
			resolved[key] = filepath.Clean(target)
			continue
		}
		resolved[key] = filepath.Join(c.Root, target)
	}

	return resolved, nil
}

// CheckAliasTargets verifies that every resolved alias target is an
// existing directory.
func (c *Config) CheckAliasTargets() error {
	resolved, err := c.ResolveAliases()
	if err != nil {
		return err
	}

	var errs []error
	for _, key := range sortedKeys(resolved) {
		path := resolved[key]
		info, err := os.Stat(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("alias %q: %w", key, err))
			continue
		}
		if !info.IsDir() {
			errs = append(errs, fmt.Errorf("alias %q: %s is not a directory", key, path))
		}
	}

	return errors.Join(errs...)
}

// Validate reports every shape error in the configuration.
func (c *Config) Validate() error {
	var errs []error

	for i, p := range c.Plugins {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, fmt.Errorf("plugins[%d]: empty plugin name", i))
		}
	}

	for key := range c.Resolve.Alias {
		if key == "" {
			errs = append(errs, errors.New("resolve.alias: empty alias key"))
		}
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port: %d out of range", c.Server.Port))
	}

	for _, key := range sortedKeys(c.Server.Proxy) {
		if err := validateProxyRule(key, c.Server.Proxy[key]); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func validateProxyRule(key string, rule ProxyRule) error {
	if key == "" {
		return errors.New("server.proxy: empty path key")
	}
	if strings.HasPrefix(key, "^") {
		if _, err := regexp.Compile(key); err != nil {
			return fmt.Errorf("server.proxy[%q]: invalid pattern: %w", key, err)
		}
	} else if !strings.HasPrefix(key, "/") {
		return fmt.Errorf("server.proxy[%q]: path prefix must start with \"/\"", key)
	}

	target, err := url.Parse(rule.Target)
	if err != nil {
		return fmt.Errorf("server.proxy[%q]: invalid target: %w", key, err)
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return fmt.Errorf("server.proxy[%q]: target %q must be an absolute http(s) origin", key, rule.Target)
	}
	if target.Host == "" {
		return fmt.Errorf("server.proxy[%q]: target %q has no host", key, rule.Target)
	}

	if rule.Rewrite != nil {
		if rule.Rewrite.From == "" {
			return fmt.Errorf("server.proxy[%q]: rewrite pattern must not be empty", key)
		}
		if _, err := regexp.Compile(rule.Rewrite.From); err != nil {
			return fmt.Errorf("server.proxy[%q]: invalid rewrite pattern: %w", key, err)
		}
	}

	return nil
}

// Fingerprint returns a SHA-256 over the canonical JSON encoding of the
// record. Loading the same declaration twice yields the same fingerprint.
func (c *Config) Fingerprint() (string, error) {
	// encoding/json sorts map keys, which makes this canonical.
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encoding config for fingerprint: %w", err)
	}

	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:]), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
