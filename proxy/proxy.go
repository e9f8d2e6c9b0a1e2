// Package proxy forwards development server requests whose path matches a
// configured prefix to another origin.
package proxy

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/devserve/pkg/config"
)

// Proxy is an HTTP reverse proxy that routes by path prefix. Routes are
// immutable after New; build a new Proxy to change them.
type Proxy struct {
	routes []*route
	logger *zap.Logger
}

type route struct {
	key          string
	prefix       string
	pattern      *regexp.Regexp
	rule         config.ProxyRule
	target       *url.URL
	reverseProxy *httputil.ReverseProxy
}

// Route describes a configured forwarding rule.
type Route struct {
	Key    string `json:"key"`
	Target string `json:"target"`
}

// New creates a Proxy with one route per rule. Plain prefixes are matched
// longest first, then "^" patterns in lexical order. The first match wins.
func New(cfg Config, logger *zap.Logger) (*Proxy, error) {
	p := &Proxy{logger: logger}

	keys := make([]string, 0, len(cfg.Rules))
	for key := range cfg.Rules {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		ri, rj := isPattern(keys[i]), isPattern(keys[j])
		if ri != rj {
			return !ri
		}
		if !ri && len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	for _, key := range keys {
		rt, err := p.newRoute(key, cfg.Rules[key], cfg.Transport)
		if err != nil {
			return nil, err
		}
		p.routes = append(p.routes, rt)
	}

	return p, nil
}

func (p *Proxy) newRoute(key string, rule config.ProxyRule, transport http.RoundTripper) (*route, error) {
	target, err := url.Parse(rule.Target)
	if err != nil {
		return nil, fmt.Errorf("proxy %q: invalid target URL: %w", key, err)
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, fmt.Errorf("proxy %q: target must use http or https (got %q)", key, target.Scheme)
	}
	if target.Host == "" {
		return nil, fmt.Errorf("proxy %q: target %q has no host", key, rule.Target)
	}

	rt := &route{
		key:    key,
		rule:   rule,
		target: target,
	}

	if isPattern(key) {
		rt.pattern, err = regexp.Compile(key)
		if err != nil {
			return nil, fmt.Errorf("proxy %q: invalid pattern: %w", key, err)
		}
	} else {
		rt.prefix = key
	}

	var rewrite *regexp.Regexp
	if rule.Rewrite != nil {
		rewrite, err = regexp.Compile(rule.Rewrite.From)
		if err != nil {
			return nil, fmt.Errorf("proxy %q: invalid rewrite pattern: %w", key, err)
		}
	}

	rt.reverseProxy = &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			req.URL.Scheme = target.Scheme
			req.URL.Host = target.Host

			if rewrite != nil {
				req.URL.Path = rewrite.ReplaceAllString(req.URL.Path, rule.Rewrite.To)
				req.URL.RawPath = ""
			}
			if target.Path != "" && target.Path != "/" {
				req.URL.Path = joinPath(target.Path, req.URL.Path)
				req.URL.RawPath = ""
			}
			if target.RawQuery != "" {
				if req.URL.RawQuery == "" {
					req.URL.RawQuery = target.RawQuery
				} else {
					req.URL.RawQuery = target.RawQuery + "&" + req.URL.RawQuery
				}
			}

			// The inbound Host is forwarded unless changeOrigin asks otherwise
			if rule.ChangeOrigin {
				req.Host = target.Host
			}

			for name, value := range rule.Headers {
				req.Header.Set(name, value)
			}

			// Remove hop-by-hop headers
			req.Header.Del("Proxy-Connection")
			req.Header.Del("Proxy-Authenticate")
			req.Header.Del("Proxy-Authorization")
		},
		ErrorHandler: p.errorHandler(key),
	}

	switch {
	case transport != nil:
		rt.reverseProxy.Transport = transport
	case target.Scheme == "https" && !rule.IsSecure():
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via secure=false
		rt.reverseProxy.Transport = t
	default:
		rt.reverseProxy.Transport = http.DefaultTransport.(*http.Transport).Clone()
	}

	return rt, nil
}

// Routes returns the configured routes in matching order.
func (p *Proxy) Routes() []Route {
	out := make([]Route, 0, len(p.routes))
	for _, rt := range p.routes {
		out = append(out, Route{Key: rt.key, Target: rt.rule.Target})
	}
	return out
}

// Match reports whether path is handled by the proxy.
func (p *Proxy) Match(path string) bool {
	return p.find(path) != nil
}

func (p *Proxy) find(path string) *route {
	for _, rt := range p.routes {
		if rt.pattern != nil {
			if rt.pattern.MatchString(path) {
				return rt
			}
			continue
		}
		if strings.HasPrefix(path, rt.prefix) {
			return rt
		}
	}
	return nil
}

// ServeHTTP implements http.Handler. Requests that match no route get a 404.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	rt := p.find(r.URL.Path)
	if rt == nil {
		http.NotFound(w, r)
		return
	}

	lw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
	rt.reverseProxy.ServeHTTP(lw, r)

	p.logger.Debug("proxied request",
		zap.String("method", r.Method),
		zap.String("path", r.URL.RequestURI()),
		zap.String("route", rt.key),
		zap.String("target", rt.rule.Target),
		zap.Int("status", lw.statusCode),
		zap.Duration("duration", time.Since(startTime)),
	)
}

// Handler returns a fiber handler that forwards matching requests and
// passes every other request to the next handler.
func (p *Proxy) Handler() fiber.Handler {
	forward := adaptor.HTTPHandler(p)

	return func(c *fiber.Ctx) error {
		if !p.Match(c.Path()) {
			return c.Next()
		}
		return forward(c)
	}
}

// errorHandler answers with 502 when the target cannot be reached. The
// request is never served from anywhere else.
func (p *Proxy) errorHandler(key string) func(http.ResponseWriter, *http.Request, error) {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		p.logger.Error("proxy upstream request failed",
			zap.String("route", key),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprintf(w, "proxy error: %v\n", err)
	}
}

func isPattern(key string) bool {
	return strings.HasPrefix(key, "^")
}

func joinPath(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *loggingResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *loggingResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
