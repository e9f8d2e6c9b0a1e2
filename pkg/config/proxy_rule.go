package config

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ProxyRule forwards matching requests to Target. It decodes either from a
// bare origin string ("http://localhost:8080") or from an options record.
type ProxyRule struct {
	// Target is the origin requests are forwarded to (scheme://host:port).
	Target string `json:"target" yaml:"target"`

	// ChangeOrigin rewrites the Host header to the target host.
	// The inbound Host is preserved when false.
	ChangeOrigin bool `json:"changeOrigin,omitempty" yaml:"changeOrigin"`

	// Rewrite replaces matches of From in the request path with To.
	Rewrite *RewriteRule `json:"rewrite,omitempty" yaml:"rewrite"`

	// Secure controls TLS certificate verification for https targets.
	// Nil means verify.
	Secure *bool `json:"secure,omitempty" yaml:"secure"`

	// Headers are set on every forwarded request.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers"`
}

// RewriteRule is a regular expression path rewrite.
type RewriteRule struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// proxyRuleOptions are the keys accepted in the record form.
var proxyRuleOptions = []string{"target", "changeOrigin", "rewrite", "secure", "headers"}

// proxyRuleFields breaks the UnmarshalJSON/UnmarshalYAML recursion.
type proxyRuleFields ProxyRule

// IsSecure reports whether TLS certificates of the target are verified.
func (r ProxyRule) IsSecure() bool {
	return r.Secure == nil || *r.Secure
}

// IsShorthand reports whether the rule carries nothing beyond its target,
// i.e. it is the bare string form.
func (r ProxyRule) IsShorthand() bool {
	return !r.ChangeOrigin && r.Rewrite == nil && r.Secure == nil && len(r.Headers) == 0
}

func (r ProxyRule) MarshalJSON() ([]byte, error) {
	if r.IsShorthand() {
		return json.Marshal(r.Target)
	}
	return json.Marshal(proxyRuleFields(r))
}

func (r *ProxyRule) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		*r = ProxyRule{}
		return json.Unmarshal(data, &r.Target)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key := range raw {
		if err := checkOption(key); err != nil {
			return err
		}
	}

	var fields proxyRuleFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*r = ProxyRule(fields)
	return nil
}

func (r *ProxyRule) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*r = ProxyRule{}
		return value.Decode(&r.Target)
	}

	if value.Kind == yaml.MappingNode {
		for i := 0; i < len(value.Content); i += 2 {
			if err := checkOption(value.Content[i].Value); err != nil {
				return err
			}
		}
	}

	var fields proxyRuleFields
	if err := value.Decode(&fields); err != nil {
		return err
	}
	*r = ProxyRule(fields)
	return nil
}

func checkOption(key string) error {
	for _, known := range proxyRuleOptions {
		if key == known {
			return nil
		}
	}
	return fmt.Errorf("unknown proxy rule option %q", key)
}

// UnmarshalTOML implements toml.Unmarshaler. BurntSushi/toml hands over
// the already-decoded primitive: a string or a table.
func (r *ProxyRule) UnmarshalTOML(data any) error {
	*r = ProxyRule{}

	switch v := data.(type) {
	case string:
		r.Target = v
		return nil
	case map[string]any:
		return r.fromTable(v)
	default:
		return fmt.Errorf("proxy rule must be a string or a table, got %T", data)
	}
}

func (r *ProxyRule) fromTable(table map[string]any) error {
	for key, raw := range table {
		switch key {
		case "target":
			s, ok := raw.(string)
			if !ok {
				return fmt.Errorf("proxy rule target must be a string, got %T", raw)
			}
			r.Target = s
		case "changeOrigin":
			b, ok := raw.(bool)
			if !ok {
				return fmt.Errorf("proxy rule changeOrigin must be a boolean, got %T", raw)
			}
			r.ChangeOrigin = b
		case "secure":
			b, ok := raw.(bool)
			if !ok {
				return fmt.Errorf("proxy rule secure must be a boolean, got %T", raw)
			}
			r.Secure = &b
		case "rewrite":
			t, ok := raw.(map[string]any)
			if !ok {
				return fmt.Errorf("proxy rule rewrite must be a table, got %T", raw)
			}
			rewrite := &RewriteRule{}
			for field, value := range t {
				s, ok := value.(string)
				if !ok {
					return fmt.Errorf("proxy rule rewrite.%s must be a string, got %T", field, value)
				}
				switch field {
				case "from":
					rewrite.From = s
				case "to":
					rewrite.To = s
				default:
					return fmt.Errorf("unknown proxy rule rewrite option %q", field)
				}
			}
			r.Rewrite = rewrite
		case "headers":
			t, ok := raw.(map[string]any)
			if !ok {
				return fmt.Errorf("proxy rule headers must be a table, got %T", raw)
			}
			r.Headers = make(map[string]string, len(t))
			for name, value := range t {
				s, ok := value.(string)
				if !ok {
					return fmt.Errorf("proxy rule header %q must be a string, got %T", name, value)
				}
				r.Headers[name] = s
			}
		default:
			return checkOption(key)
		}
	}

	return nil
}
