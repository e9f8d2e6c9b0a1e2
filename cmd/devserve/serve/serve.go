package servecmder

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/devserve/pkg/config"
	"github.com/papercomputeco/devserve/pkg/logger"
	"github.com/papercomputeco/devserve/server"
)

const serveLongDesc string = `Start the development server.

Requests whose path matches a server.proxy rule are forwarded to the
rule's target with path and query intact. Every other request is served
from the directory holding the config file, with alias prefixes such as
"/@/" resolved through resolve.alias.

Without --config, the current directory is searched for a devserve
config file; if none exists the built-in defaults are used.

Examples:
  devserve serve
  devserve serve --config web/devserve.config.toml --port 3000
  devserve serve --mode staging --watch=false`

const serveShortDesc string = "Start the development server"

type serveCommander struct {
	configPath string
	host       string
	port       int
	mode       string
	debug      bool
	watch      bool
}

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.configPath, "config", "c", "", "Path to the config file")
	cmd.Flags().StringVar(&cmder.host, "host", "", "Interface to listen on (overrides server.host)")
	cmd.Flags().IntVarP(&cmder.port, "port", "p", 0, "Port to listen on (overrides server.port)")
	cmd.Flags().StringVarP(&cmder.mode, "mode", "m", "", "Mode used to pick .env files (overrides mode)")
	cmd.Flags().BoolVar(&cmder.debug, "debug", false, "Enable debug logging")
	cmd.Flags().BoolVar(&cmder.watch, "watch", true, "Reload when the config file changes")

	return cmd
}

func (c *serveCommander) run(ctx context.Context, cmd *cobra.Command) error {
	startTime := time.Now()

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("could not determine working directory: %w", err)
	}

	cfg, path, err := config.LoadOrDefault(c.configPath, cwd)
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}

	overrides := c.overrides(cmd.Flags().Changed)
	if err := overrides(cfg); err != nil {
		return err
	}

	log, err := logger.NewLoggerWithLevel(cfg.LogLevel, c.debug)
	if err != nil {
		return err
	}
	defer log.Sync()

	if path == "" {
		log.Info("no config file found, using defaults", zap.String("root", cfg.Root))
	} else {
		log.Debug("loaded config", zap.String("path", path))
	}

	srv, err := server.New(cfg, server.Options{Overrides: overrides}, log)
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("could not listen on %s: %w", cfg.Addr(), err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if c.watch && path != "" {
		go func() {
			if err := srv.Watch(ctx, path); err != nil {
				log.Warn("config watcher stopped", zap.Error(err))
			}
		}()
	}

	go func() {
		<-ctx.Done()
		if err := srv.Shutdown(); err != nil {
			log.Warn("shutdown failed", zap.Error(err))
		}
	}()

	out := cmd.OutOrStdout()
	fmt.Fprint(out, renderBanner(cfg, listener.Addr().String(), time.Since(startTime), isTerminal(out)))

	if err := srv.RunWithListener(listener); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("dev server failed: %w", err)
	}
	return nil
}

// overrides returns a function applying the flags the user set to a loaded
// config. The server runs it again on every reload.
func (c *serveCommander) overrides(changed func(name string) bool) func(*config.Config) error {
	mode, host, port := changed("mode"), changed("host"), changed("port")

	return func(cfg *config.Config) error {
		if mode {
			cfg.Mode = c.mode
			env, err := config.LoadEnv(cfg.Root, cfg.Mode, cfg.EnvPrefix)
			if err != nil {
				return fmt.Errorf("could not load env for mode %s: %w", cfg.Mode, err)
			}
			cfg.Env = env
		}
		if host {
			cfg.Server.Host = c.host
		}
		if port {
			cfg.Server.Port = c.port
		}
		return nil
	}
}
