package policy

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Reloader re-reads a policy file into an Engine. A failed load leaves the
// active rule set in place.
type Reloader struct {
	path   string
	engine *Engine
	log    *slog.Logger
}

// NewReloader binds a policy file to an engine.
func NewReloader(path string, engine *Engine, log *slog.Logger) *Reloader {
	if log == nil {
		log = slog.Default()
	}
	return &Reloader{path: path, engine: engine, log: log.With("component", "policy")}
}

// Path returns the watched policy file.
func (r *Reloader) Path() string { return r.path }

// Reload loads the file and swaps it in on success.
func (r *Reloader) Reload() (*RuleSet, error) {
	rs, err := LoadFile(r.path)
	if err != nil {
		r.log.Error("policy reload failed, keeping active rules", "path", r.path, "error", err)
		return nil, err
	}
	r.engine.Swap(rs)
	r.log.Info("policy reloaded", "path", r.path, "rules", rs.Len())
	return rs, nil
}

// Watch reloads the policy whenever its file is written or recreated, until
// ctx is done. The parent directory is watched so editors that save by
// renaming a temp file over the original are picked up.
func (r *Reloader) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create policy watcher: %w", err)
	}
	defer w.Close()

	target := filepath.Clean(r.path)
	if err := w.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}
	r.log.Debug("watching policy", "path", target)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				_, _ = r.Reload()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			r.log.Warn("policy watcher error", "error", err)
		}
	}
}
