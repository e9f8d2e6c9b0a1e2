// Package server is the development server: it forwards proxied prefixes
// to their target origin and serves everything else from the project root,
// resolving aliased paths on the way.
package server

import (
	"errors"
	"fmt"
	"mime"
	"net"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/etag"
	"go.uber.org/zap"

	"github.com/papercomputeco/devserve/pkg/alias"
	"github.com/papercomputeco/devserve/pkg/config"
	"github.com/papercomputeco/devserve/pkg/plugin"
	"github.com/papercomputeco/devserve/proxy"
)

// InternalPrefix is the path prefix of the dev server's own endpoints.
const InternalPrefix = "/__devserve"

// Server is the development server.
type Server struct {
	opts   Options
	logger *zap.Logger
	app    *fiber.App
	state  atomic.Pointer[state]
}

// state is everything derived from one loaded config. It is replaced as a
// whole on reload and never mutated.
type state struct {
	cfg          *config.Config
	fingerprint  string
	plugins      []plugin.Plugin
	extensions   []string
	contentTypes map[string]string
	aliases      *alias.Resolver
	proxy        *proxy.Proxy
	proxyHandler fiber.Handler
}

// New creates a Server for cfg. It fails when the config is invalid, names
// an unknown plugin, or aliases a directory that does not exist.
func New(cfg *config.Config, opts Options, logger *zap.Logger) (*Server, error) {
	if opts.Registry == nil {
		opts.Registry = plugin.Default()
	}
	if opts.AliasCacheSize <= 0 {
		opts.AliasCacheSize = alias.DefaultCacheSize
	}

	s := &Server{
		opts:   opts,
		logger: logger,
	}

	st, err := s.buildState(cfg)
	if err != nil {
		return nil, err
	}
	s.state.Store(st)

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		StreamRequestBody:     true,
	})

	app.Get(InternalPrefix+"/health", s.handleHealth)
	app.Get(InternalPrefix+"/config", s.handleConfig)
	app.Get(InternalPrefix+"/env", s.handleEnv)

	// Proxy rules take precedence over local files
	app.Use(s.handleProxy)

	app.Get("/*", etag.New(), s.handleModule)

	s.app = app
	return s, nil
}

func (s *Server) buildState(cfg *config.Config) (*state, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.CheckAliasTargets(); err != nil {
		return nil, fmt.Errorf("unresolvable alias: %w", err)
	}

	plugins, err := s.opts.Registry.Activate(cfg.Plugins)
	if err != nil {
		return nil, fmt.Errorf("activating plugins: %w", err)
	}

	table, err := cfg.ResolveAliases()
	if err != nil {
		return nil, err
	}
	aliases, err := alias.New(table, s.opts.AliasCacheSize)
	if err != nil {
		return nil, err
	}

	p, err := proxy.New(proxy.Config{
		Rules:     cfg.Server.Proxy,
		Transport: s.opts.ProxyTransport,
	}, s.logger)
	if err != nil {
		return nil, fmt.Errorf("creating proxy: %w", err)
	}

	extensions := append([]string{}, DefaultExtensions...)
	for _, ext := range plugin.Extensions(plugins) {
		if !contains(extensions, ext) {
			extensions = append(extensions, ext)
		}
	}

	fingerprint, err := cfg.Fingerprint()
	if err != nil {
		return nil, err
	}

	return &state{
		cfg:          cfg,
		fingerprint:  fingerprint,
		plugins:      plugins,
		extensions:   extensions,
		contentTypes: plugin.ContentTypes(plugins),
		aliases:      aliases,
		proxy:        p,
		proxyHandler: p.Handler(),
	}, nil
}

// Config returns the active configuration.
func (s *Server) Config() *config.Config {
	return s.state.Load().cfg
}

// Reload swaps in cfg. On error the active config is kept.
func (s *Server) Reload(cfg *config.Config) error {
	fingerprint, err := cfg.Fingerprint()
	if err != nil {
		return err
	}
	if fingerprint == s.state.Load().fingerprint {
		s.logger.Debug("config unchanged, skipping reload")
		return nil
	}

	st, err := s.buildState(cfg)
	if err != nil {
		return err
	}
	s.state.Store(st)

	s.logger.Info("config reloaded",
		zap.String("fingerprint", truncate(st.fingerprint, 12)),
		zap.Int("proxy_routes", len(st.proxy.Routes())),
		zap.Int("aliases", len(st.aliases.Entries())),
	)
	return nil
}

// Run starts the server on the configured host and port.
func (s *Server) Run() error {
	cfg := s.Config()
	s.logger.Info("starting dev server",
		zap.String("listen", cfg.Addr()),
		zap.String("root", cfg.Root),
	)
	return s.app.Listen(cfg.Addr())
}

// RunWithListener starts the server on an existing listener.
func (s *Server) RunWithListener(listener net.Listener) error {
	s.logger.Info("starting dev server",
		zap.String("listen", listener.Addr().String()),
		zap.String("root", s.Config().Root),
	)
	return s.app.Listener(listener)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(map[string]string{
		"status":      "ok",
		"fingerprint": s.state.Load().fingerprint,
	})
}

// ConfigResponse is the active configuration with its derived state.
type ConfigResponse struct {
	Config      *config.Config `json:"config"`
	Fingerprint string         `json:"fingerprint"`
	Plugins     []string       `json:"plugins"`
	Aliases     []alias.Entry  `json:"aliases"`
	Proxy       []proxy.Route  `json:"proxy"`
}

func (s *Server) handleConfig(c *fiber.Ctx) error {
	st := s.state.Load()

	names := make([]string, 0, len(st.plugins))
	for _, p := range st.plugins {
		names = append(names, p.Name())
	}

	return c.JSON(ConfigResponse{
		Config:      st.cfg,
		Fingerprint: st.fingerprint,
		Plugins:     names,
		Aliases:     st.aliases.Entries(),
		Proxy:       st.proxy.Routes(),
	})
}

func (s *Server) handleEnv(c *fiber.Ctx) error {
	env := s.state.Load().cfg.Env
	if env == nil {
		env = map[string]string{}
	}
	return c.JSON(env)
}

func (s *Server) handleProxy(c *fiber.Ctx) error {
	return s.state.Load().proxyHandler(c)
}

// handleModule serves a file from the project root. Paths whose first
// segment is an alias key are resolved through the alias table.
func (s *Server) handleModule(c *fiber.Ctx) error {
	st := s.state.Load()

	reqPath, err := url.PathUnescape(c.Path())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("invalid path")
	}
	reqPath = path.Clean("/" + reqPath)

	if denied(path.Base(reqPath)) {
		s.logger.Debug("refusing denied file", zap.String("path", reqPath))
		return c.Status(fiber.StatusNotFound).SendString("not found")
	}

	file, ok := s.locate(st, reqPath)
	if !ok && path.Ext(reqPath) == "" && acceptsHTML(c.Get(fiber.HeaderAccept)) {
		// History API fallback for client-side routes
		file, ok = regularFile(filepath.Join(st.cfg.Root, "index.html"))
	}
	if !ok {
		s.logger.Debug("module not found", zap.String("path", reqPath))
		return c.Status(fiber.StatusNotFound).SendString("not found")
	}

	data, err := os.ReadFile(file)
	if err != nil {
		s.logger.Error("failed to read module", zap.String("file", file), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).SendString("failed to read file")
	}

	c.Set(fiber.HeaderContentType, contentType(st, file))
	c.Set(fiber.HeaderCacheControl, "no-cache")
	return c.Send(data)
}

// locate maps a cleaned request path to a file on disk.
func (s *Server) locate(st *state, reqPath string) (string, bool) {
	specifier := strings.TrimPrefix(reqPath, "/")

	base := st.cfg.Root
	candidate := filepath.Join(st.cfg.Root, filepath.FromSlash(specifier))

	if entry, ok := st.aliases.Match(specifier); ok {
		resolved, _ := st.aliases.Resolve(specifier)
		if !alias.Within(entry, resolved) {
			return "", false
		}
		base = entry.Target
		candidate = resolved
	}

	info, err := os.Stat(candidate)
	if err == nil && info.IsDir() {
		return regularFile(filepath.Join(candidate, "index.html"))
	}
	if err == nil {
		if denied(filepath.Base(candidate)) {
			return "", false
		}
		return candidate, true
	}
	if !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("failed to stat module", zap.String("file", candidate), zap.Error(err))
		return "", false
	}

	if filepath.Ext(candidate) == "" && candidate != base {
		for _, ext := range st.extensions {
			if file, ok := regularFile(candidate + ext); ok && !denied(filepath.Base(file)) {
				return file, true
			}
		}
	}

	return "", false
}

// denied reports whether a file with this base name must never be served.
func denied(name string) bool {
	name = strings.ToLower(name)
	for _, pattern := range DeniedFiles {
		if ok, _ := path.Match(pattern, name); ok {
			return true
		}
	}
	return contains(config.FileNames, name)
}

// acceptsHTML reports whether an Accept header asks for a document. An
// absent header does not.
func acceptsHTML(accept string) bool {
	return strings.Contains(accept, fiber.MIMETextHTML) || strings.Contains(accept, "*/*")
}

func regularFile(path string) (string, bool) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return path, true
}

func contentType(st *state, file string) string {
	ext := strings.ToLower(filepath.Ext(file))
	if ct, ok := st.contentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return fiber.MIMEOctetStream
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
