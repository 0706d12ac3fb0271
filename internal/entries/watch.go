package entries

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before a changed file is reloaded.
const DefaultDebounce = 500 * time.Millisecond

// Watch reloads the entries file whenever it changes and passes the result
// to fn. It returns once the watcher is running; events are processed until
// ctx is cancelled.
//
// The parent directory is watched rather than the file so editors that save
// by renaming a temporary file are picked up. Bursts of events within the
// debounce window cause a single reload. A file that fails to load is
// logged and fn is not called.
//
// Parameters:
//   - ctx: Stops the watcher when cancelled
//   - path: Entries file to watch
//   - debounce: Quiet period before reloading (DefaultDebounce if <= 0)
//   - fn: Receives the freshly loaded entries
//   - logger: Receives load and watcher errors
func Watch(ctx context.Context, path string, debounce time.Duration, fn func([]Entry), logger Logger) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = noopLogger{}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving entries path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close() //nolint:errcheck // Best effort cleanup
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	go processEvents(ctx, watcher, abs, debounce, fn, logger)

	logger.Info("watching entries file", "path", abs)
	return nil
}

// processEvents debounces events for target and triggers reloads.
func processEvents(ctx context.Context, watcher *fsnotify.Watcher, target string, debounce time.Duration, fn func([]Entry), logger Logger) {
	defer watcher.Close() //nolint:errcheck // Nothing to do on close failure

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			logger.Debug("entries file changed", "op", event.Op.String())
			timer.Reset(debounce)

		case <-timer.C:
			loaded, err := LoadFile(target)
			if err != nil {
				logger.Error("reloading entries file", "path", target, "error", err)
				continue
			}
			fn(loaded)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Error("entries watcher error", "error", err)
		}
	}
}
