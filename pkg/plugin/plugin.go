// Package plugin maps plugin activation tokens from the config to
// implementations that extend what the dev server knows how to serve.
package plugin

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrUnknownPlugin is returned when a token names no registered plugin.
	ErrUnknownPlugin = errors.New("unknown plugin")

	// ErrDuplicatePlugin is returned when a token is activated twice.
	ErrDuplicatePlugin = errors.New("duplicate plugin")
)

// Plugin extends the dev server's module pipeline.
type Plugin interface {
	// Name is the activation token used in the config.
	Name() string

	// Extensions lists file extensions (with the leading dot) the plugin
	// makes resolvable.
	Extensions() []string

	// ContentTypes maps extensions to the Content-Type they are served with.
	ContentTypes() map[string]string
}

// Registry holds the plugins available for activation.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]Plugin)}
}

// Default returns a registry holding the built-in plugins.
func Default() *Registry {
	r := NewRegistry()
	r.Register(Vue())
	return r
}

// Register adds p, replacing any plugin with the same name.
func (r *Registry) Register(p Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins[p.Name()] = p
}

// Names returns the registered plugin names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names()
}

func (r *Registry) names() []string {
	names := make([]string, 0, len(r.plugins))
	for name := range r.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Activate returns the plugins named by tokens, in token order.
func (r *Registry) Activate(tokens []string) ([]Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	active := make([]Plugin, 0, len(tokens))
	seen := make(map[string]bool, len(tokens))
	for _, token := range tokens {
		if seen[token] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicatePlugin, token)
		}
		p, ok := r.plugins[token]
		if !ok {
			return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownPlugin, token, strings.Join(r.names(), ", "))
		}
		seen[token] = true
		active = append(active, p)
	}

	return active, nil
}

// ContentTypes merges the content types of plugins. Later plugins win.
func ContentTypes(plugins []Plugin) map[string]string {
	types := make(map[string]string)
	for _, p := range plugins {
		for ext, ct := range p.ContentTypes() {
			types[ext] = ct
		}
	}
	return types
}

// Extensions returns the extensions contributed by plugins, deduplicated,
// in activation order.
func Extensions(plugins []Plugin) []string {
	var exts []string
	seen := make(map[string]bool)
	for _, p := range plugins {
		for _, ext := range p.Extensions() {
			if !seen[ext] {
				seen[ext] = true
				exts = append(exts, ext)
			}
		}
	}
	return exts
}
