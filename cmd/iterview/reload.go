package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 200 * time.Millisecond

// watchSettings calls reload whenever the settings file at path is written,
// created or renamed into place. The parent directory is watched because
// editors usually replace the file instead of writing it in place. It blocks
// until ctx is done. A missing directory disables reloading.
func watchSettings(ctx context.Context, path string, logger *slog.Logger, reload func()) error {
	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); err != nil {
		logger.Debug("settings reload disabled", slog.String("dir", dir), slog.String("error", err.Error()))
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return err
	}

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(reloadDebounce)
			fire = timer.C
		case <-fire:
			timer, fire = nil, nil
			reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("settings watcher error", slog.String("error", err.Error()))
		}
	}
}

// reloadFunc re-reads the settings and applies what can change live.
func (a *app) reloadFunc(path string, getenv func(string) string, overrides func(*Config), swapper *handlerSwapper) func() {
	return func() {
		next, err := loadConfig(path, getenv)
		if err == nil {
			overrides(&next)
			err = next.Validate()
		}
		if err != nil {
			a.logger.Warn("settings reload rejected", slog.String("error", err.Error()))
			return
		}

		d := a.applyReload(next, swapper)
		if d.empty() {
			return
		}
		a.logger.Info("settings reloaded",
			slog.Bool("log_level", d.LogLevelChanged),
			slog.Bool("reduced_motion", d.ReducedMotionChanged),
			slog.Bool("panel", d.PanelChanged),
		)
		if len(d.RestartNeeded) > 0 {
			a.logger.Warn("restart required to apply settings", slog.Any("fields", d.RestartNeeded))
		}
	}
}
