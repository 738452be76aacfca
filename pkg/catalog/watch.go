package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/provisio/provisio/pkg/engine"
)

// reloadDebounce coalesces the event bursts editors produce on save.
const reloadDebounce = 500 * time.Millisecond

// Watch reloads the catalog whenever the file at path changes and hands
// each successfully loaded catalog to onChange. A reload that fails is
// logged and dropped; the previous catalog stays in effect. Watch
// returns immediately; watching stops when ctx is cancelled or
// StopWatching is called.
func (l *Loader) Watch(ctx context.Context, path string, onChange func(*Catalog)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.watcher != nil {
		return engine.NewInternalError("catalog watch already running", nil)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return engine.NewCatalogError("starting catalog watcher", err)
	}

	// Watch the directory, not the file: editors that save by renaming a
	// temp file onto the target would otherwise drop the watch.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return engine.NewCatalogError(fmt.Sprintf("watching %s", dir), err)
	}

	// The goroutine reads the watcher it is handed, never the field:
	// StopWatching nils the field under the lock, and closing the watcher
	// ends the loop through the closed channels.
	l.watcher = watcher
	go l.processEvents(ctx, watcher, path, onChange)

	l.logger.Info().Str("path", path).Msg("Watching catalog for changes")
	return nil
}

// StopWatching closes the file watcher and cancels any pending reload.
// A later Watch may start a fresh watcher.
func (l *Loader) StopWatching() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.watcher != nil {
		l.watcher.Close()
		l.watcher = nil
	}
	if l.debounce != nil {
		l.debounce.Stop()
		l.debounce = nil
	}
}

func (l *Loader) processEvents(ctx context.Context, watcher *fsnotify.Watcher, path string, onChange func(*Catalog)) {
	base := filepath.Base(path)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			l.logger.Debug().
				Str("event", event.Op.String()).
				Str("path", event.Name).
				Msg("Catalog file changed")
			l.scheduleReload(ctx, path, onChange)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error().Err(err).Msg("Catalog watcher error")

		case <-ctx.Done():
			l.StopWatching()
			return
		}
	}
}

func (l *Loader) scheduleReload(ctx context.Context, path string, onChange func(*Catalog)) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// An event pulled off the channel just before the watcher stopped
	// must not arm a reload for after the stop.
	if l.watcher == nil {
		return
	}

	if l.debounce != nil {
		l.debounce.Stop()
	}
	l.debounce = time.AfterFunc(reloadDebounce, func() {
		l.triggerReload(ctx, path, onChange)
	})
}

func (l *Loader) triggerReload(ctx context.Context, path string, onChange func(*Catalog)) {
	cat, err := l.Load(ctx, path)
	if err != nil {
		l.logger.Error().Err(err).Str("path", path).Msg("Catalog reload failed, keeping previous catalog")
		return
	}
	onChange(cat)
}
