package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long Watch waits for writes to settle.
const DefaultDebounce = 2 * time.Second

// Watch reloads the store whenever a local provider data file is written
// or replaced. It blocks until ctx is done. Downloaded files are not
// watched.
func (s *Service) Watch(ctx context.Context, debounce time.Duration) error {
	files := dataFiles(s.cfg.Providers)
	if len(files) == 0 {
		slog.Info("no local data files to watch")
		<-ctx.Done()
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer w.Close()

	// Directories are watched so files replaced by rename are still seen.
	dirs := make(map[string]bool)
	for f := range files {
		dir := filepath.Dir(f)
		if dirs[dir] {
			continue
		}
		if err := w.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		dirs[dir] = true
	}
	slog.Info("watching data files", "files", len(files), "dirs", len(dirs))

	pending := time.NewTimer(debounce)
	pending.Stop()
	defer pending.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !files[filepath.Clean(ev.Name)] || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			slog.Debug("data file changed", "file", ev.Name, "op", ev.Op.String())
			pending.Reset(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("file watcher error", "error", err)
		case <-pending.C:
			if err := s.Reload(ctx); err != nil {
				slog.Error("reload failed, keeping current store", "error", err)
			}
		}
	}
}

// dataFiles extracts the absolute paths of local files named in provider
// specs. Every non-flag option argument is treated as a file.
func dataFiles(specs []string) map[string]bool {
	files := make(map[string]bool)
	for _, spec := range specs {
		fields := strings.Fields(spec)
		if len(fields) < 2 {
			continue
		}
		for _, arg := range fields[1:] {
			if strings.HasPrefix(arg, "-") {
				continue
			}
			if u, err := url.Parse(arg); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
				continue
			}
			abs, err := filepath.Abs(arg)
			if err != nil {
				continue
			}
			files[abs] = true
		}
	}
	return files
}
