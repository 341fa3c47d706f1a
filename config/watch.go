package config

import (
	"context"
	"os"
	"time"
)

// Watcher polls the file mtime periodically and invokes the callback on change.
// Used where fsnotify is unavailable.
type Watcher struct {
	Path     string
	Interval time.Duration
	// OnError receives load failures; nil drops them.
	OnError func(error)
}

// Start begins polling; callback receives latest config on change.
// The mtime seen at start is the baseline, so an unchanged file never fires.
func (w Watcher) Start(ctx context.Context, onUpdate func(AppConfig)) error {
	if w.Interval <= 0 {
		w.Interval = 2 * time.Second
	}
	var lastMod time.Time
	if info, err := readFileInfo(w.Path); err == nil {
		lastMod = info.ModTime()
	}
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			info, err := readFileInfo(w.Path)
			if err != nil {
				continue
			}
			if !info.ModTime().After(lastMod) {
				continue
			}
			lastMod = info.ModTime()
			cfg, err := LoadWithEnvOverrides(w.Path)
			if err != nil {
				if w.OnError != nil {
					w.OnError(err)
				}
				continue
			}
			if onUpdate != nil {
				onUpdate(cfg)
			}
		}
	}
}

// readFileInfo is extracted for testing/mocking.
var readFileInfo = func(path string) (info interface{ ModTime() time.Time }, err error) {
	return os.Stat(path)
}
