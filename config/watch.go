package config

import (
	"context"
	"path/filepath"

	"github.com/facebookgo/stackerr"
	"github.com/fsnotify/fsnotify"

	"github.com/skipor/nemcache/log"
)

// Watch calls onChange with reloaded config on every config file change, until ctx is done.
// Directory is watched, so editors that replace file by rename are supported.
// Reload and watcher errors are passed to onChange with nil config.
func Watch(ctx context.Context, path string, onChange func(*Config, error)) (err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return stackerr.Wrap(err)
	}
	defer w.Close()
	path = filepath.Clean(path)
	err = w.Add(filepath.Dir(path))
	if err != nil {
		return stackerr.Wrap(err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			onChange(nil, stackerr.Wrap(err))
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			onChange(Load(path))
		}
	}
}

// WatchLogLevel applies log level of changed config to level.
func WatchLogLevel(ctx context.Context, l log.Logger, path string, level log.AtomicLevel) error {
	return Watch(ctx, path, func(conf *Config, err error) {
		if err != nil {
			l.Warnf("Config reload failed: %v", err)
			return
		}
		lvl, err := log.LevelFromString(conf.LogLevel)
		if err != nil {
			l.Warnf("Config reload failed: %v", err)
			return
		}
		level.SetLevel(lvl)
		l.Infof("Log level changed to %v.", lvl)
	})
}
