package adapters

import (
	"context"

	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"
)

// SourceWatcher turns filesystem changes under the manifest root into refresh
// triggers for the reconciliation loop. External events enter the loop the
// same way scheduled ticks do.
type SourceWatcher struct {
	root    string
	notify  func()
	logger  logr.Logger
	watcher *fsnotify.Watcher
}

// NewSourceWatcher constructs a watcher over root that invokes notify on any
// write, create, remove, or rename below it.
func NewSourceWatcher(root string, notify func(), logger logr.Logger) (*SourceWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(root); err != nil {
		watcher.Close()
		return nil, err
	}
	return &SourceWatcher{root: root, notify: notify, logger: logger, watcher: watcher}, nil
}

// Start blocks forwarding events until the context is cancelled. It satisfies
// the controller-runtime Runnable contract so the manager owns its lifecycle.
func (sourceWatcher *SourceWatcher) Start(ctx context.Context) error {
	defer sourceWatcher.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, open := <-sourceWatcher.watcher.Events:
			if !open {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				sourceWatcher.logger.V(1).Info("manifest root changed", "path", event.Name, "op", event.Op.String())
				sourceWatcher.notify()
			}
		case err, open := <-sourceWatcher.watcher.Errors:
			if !open {
				return nil
			}
			sourceWatcher.logger.Error(err, "manifest watch error")
		}
	}
}
