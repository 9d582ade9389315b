package config

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher reloads the configuration when its file changes on disk. Only
// policy and loop sections are safe to apply at runtime; the callback
// receives the full reloaded config and decides what to pick up.
type Watcher struct {
	loader   *Loader
	onReload func(*Config)

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher creates a config watcher. onReload is called with each
// successfully reloaded and validated config.
func NewWatcher(loader *Loader, onReload func(*Config)) *Watcher {
	return &Watcher{
		loader:   loader,
		onReload: onReload,
	}
}

// Start begins watching the config file's directory. Watching the directory
// rather than the file survives editors that replace the file on save.
func (w *Watcher) Start() error {
	path := w.loader.GetConfigPath()
	if path == "" {
		return fmt.Errorf("no config path to watch")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	w.mu.Lock()
	w.watcher = fsw
	w.done = make(chan struct{})
	w.mu.Unlock()

	go w.loop(fsw, path)

	log.Info().Str("path", path).Msg("Watching configuration for changes")
	return nil
}

func (w *Watcher) loop(fsw *fsnotify.Watcher, path string) {
	defer close(w.done)

	for {
		select {
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			cfg, err := w.loader.Load()
			if err != nil {
				// Keep running on the previous config
				log.Error().Err(err).Msg("Ignoring invalid configuration reload")
				continue
			}

			log.Info().Msg("Configuration reloaded")
			if w.onReload != nil {
				w.onReload(cfg)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Config watcher error")
		}
	}
}

// Stop stops watching
func (w *Watcher) Stop() {
	w.mu.Lock()
	fsw := w.watcher
	done := w.done
	w.watcher = nil
	w.mu.Unlock()

	if fsw != nil {
		fsw.Close()
		<-done
	}
}
