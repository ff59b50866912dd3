package patch

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"exeskin/parallel"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 200 * time.Millisecond

// watch patches src once and then again after every change to one of the
// sources, until ctx is done. Failed runs are logged and watching goes on.
func (c *CLICmd) watch(ctx context.Context, pool *parallel.Pool, src []byte) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			slog.Error("could not close watcher", "error", err)
		}
	}()

	debounce := c.debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	// Directories are watched rather than files so that editors replacing
	// a file by rename are noticed.
	watched := make(map[string]bool)
	run := func() {
		clear(watched)
		for _, file := range c.sources() {
			watched[filepath.Clean(file)] = true
			if err := watcher.Add(filepath.Dir(file)); err != nil {
				slog.Error("could not watch folder", "dir", filepath.Dir(file), "error", err)
			}
		}

		if err := c.patch(pool, src); err != nil {
			slog.Error("patch failed", "error", err)
		}
		slog.Info("watching", "files", len(watched))
	}

	run()

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("watch has ended")
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !watched[filepath.Clean(event.Name)] || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			slog.Debug("changed", "file", event.Name, "op", event.Op.String())
			timer.Reset(debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("watch error", "error", err)
		case <-timer.C:
			run()
		}
	}
}
