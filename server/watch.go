package server

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/papercomputeco/devserve/pkg/config"
)

// reloadDelay coalesces the bursts of events editors emit for one save.
const reloadDelay = 100 * time.Millisecond

// Watch reloads the config at path whenever it changes, until ctx is done.
// Options.Overrides runs on every loaded config. A config that fails to load or validate is logged and the active one is
// kept.
func (s *Server) Watch(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors often replace the file instead of
	// writing it, which drops a watch on the file itself.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	s.logger.Debug("watching config", zap.String("path", abs))

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(reloadDelay)
			fire = timer.C

		case <-fire:
			fire = nil
			s.reloadFrom(abs)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

func (s *Server) reloadFrom(path string) {
	cfg, err := config.Load(path)
	if err != nil {
		s.logger.Error("failed to load changed config, keeping previous", zap.Error(err))
		return
	}
	if s.opts.Overrides != nil {
		if err := s.opts.Overrides(cfg); err != nil {
			s.logger.Error("failed to apply overrides to changed config, keeping previous", zap.Error(err))
			return
		}
	}
	if err := s.Reload(cfg); err != nil {
		s.logger.Error("failed to apply changed config, keeping previous", zap.Error(err))
	}
}
