package policy

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher reloads a policy file on change and swaps the parsed registry
// into a Store atomically. A failed reload keeps the previous registry
// and logs the error; in-flight requests are never exposed to a partial
// policy set.
type Watcher struct {
	store *Store
	path  string
	log   *logrus.Logger
}

// NewWatcher creates a watcher for the given policy file.
func NewWatcher(store *Store, path string, log *logrus.Logger) *Watcher {
	if log == nil {
		log = logrus.New()
	}
	return &Watcher{store: store, path: path, log: log}
}

// Run watches the policy file until the context is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.path); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("policy file watcher error")
		}
	}
}

func (w *Watcher) reload() {
	reg, err := LoadFile(w.path)
	if err != nil {
		w.log.WithError(err).WithField("path", w.path).
			Error("policy reload failed, keeping previous registry")
		return
	}
	w.store.Swap(reg)
	w.log.WithFields(logrus.Fields{
		"path":       w.path,
		"generation": reg.Generation(),
		"roles":      len(reg.roles),
		"policies":   len(reg.policies),
	}).Info("policy registry reloaded")
}
