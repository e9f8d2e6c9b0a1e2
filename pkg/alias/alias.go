// Package alias resolves import specifiers that begin with a symbolic
// prefix (e.g. "@/components/App.vue") to absolute filesystem paths.
package alias

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of resolved specifiers kept in memory.
const DefaultCacheSize = 1024

// Entry is a single alias: a symbolic key and the absolute directory it stands for.
type Entry struct {
	Key    string `json:"key"`
	Target string `json:"target"`
}

// Resolver maps specifiers through an alias table. It is safe for
// concurrent use.
type Resolver struct {
	entries []Entry
	cache   *lru.Cache[string, string]
}

// New creates a Resolver from a table of already-resolved absolute targets,
// such as the output of config.Config.ResolveAliases.
func New(table map[string]string, cacheSize int) (*Resolver, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}

	entries := make([]Entry, 0, len(table))
	for key, target := range table {
		if key == "" {
			return nil, fmt.Errorf("alias key must not be empty")
		}
		if !filepath.IsAbs(target) {
			return nil, fmt.Errorf("alias %q: target %q is not absolute", key, target)
		}
		entries = append(entries, Entry{Key: key, Target: filepath.Clean(target)})
	}

	// Longest key first so "@components" wins over "@"; ties broken
	// lexically to keep the order stable.
	sort.Slice(entries, func(i, j int) bool {
		if len(entries[i].Key) != len(entries[j].Key) {
			return len(entries[i].Key) > len(entries[j].Key)
		}
		return entries[i].Key < entries[j].Key
	})

	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating alias cache: %w", err)
	}

	return &Resolver{
		entries: entries,
		cache:   cache,
	}, nil
}

// Resolve returns the absolute path for specifier. A key matches when the
// specifier equals it or continues with "/" after it. The second return
// value is false when no alias matches.
func (r *Resolver) Resolve(specifier string) (string, bool) {
	if path, ok := r.cache.Get(specifier); ok {
		return path, true
	}

	for _, e := range r.entries {
		rest, ok := matchKey(specifier, e.Key)
		if !ok {
			continue
		}

		path := e.Target
		if rest != "" {
			path = filepath.Join(e.Target, filepath.FromSlash(rest))
		}
		r.cache.Add(specifier, path)
		return path, true
	}

	return "", false
}

// Match returns the entry that would resolve specifier.
func (r *Resolver) Match(specifier string) (Entry, bool) {
	for _, e := range r.entries {
		if _, ok := matchKey(specifier, e.Key); ok {
			return e, true
		}
	}
	return Entry{}, false
}

// Entries returns the alias table in matching order.
func (r *Resolver) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Within reports whether path stays inside the target of entry after
// resolution. Specifiers like "@/../../etc/passwd" fail this check.
func Within(entry Entry, path string) bool {
	rel, err := filepath.Rel(entry.Target, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func matchKey(specifier, key string) (string, bool) {
	if specifier == key {
		return "", true
	}
	if strings.HasPrefix(specifier, key+"/") {
		return strings.TrimPrefix(specifier, key+"/"), true
	}
	return "", false
}
