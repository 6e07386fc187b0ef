package commands

import (
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/tgmirror/tgmirror/internal/logger"
	"github.com/tgmirror/tgmirror/pkg/config"
)

// watchConfig watches the active config file and applies log-level changes
// without a restart. Other settings still require a restart; changing them
// live would mean re-dialing every session. Returns a stop function.
func watchConfig(configFile string) (func(), error) {
	path := configFile
	if path == "" {
		if !config.DefaultConfigExists() {
			// Running on defaults, nothing to watch.
			return func() {}, nil
		}
		path = config.GetDefaultConfigPath()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory: editors replace files on save, which drops a
	// watch installed on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name != path {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				cfg, err := config.Load(path)
				if err != nil {
					logger.Warn("config reload skipped", logger.KeyError, err)
					continue
				}
				logger.SetLevel(strings.ToUpper(cfg.Logging.Level))
				logger.Info("log level reloaded", "level", strings.ToUpper(cfg.Logging.Level))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watch error", logger.KeyError, err)
			}
		}
	}()

	return func() {
		close(done)
		_ = watcher.Close()
	}, nil
}
