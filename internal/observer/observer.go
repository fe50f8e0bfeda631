// Package observer watches a local source tree and turns file writes into
// file-change events, enqueued exactly like events arriving over HTTP.
package observer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cortex-mentor/cortex/pkg/errors"
	"github.com/cortex-mentor/cortex/pkg/events"
	"github.com/cortex-mentor/cortex/pkg/logging"
	"github.com/cortex-mentor/cortex/pkg/queue"
)

// Enqueuer is the slice of the task queue the observer needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, task string, payload interface{}) error
}

// ignoredDirs are never watched or reported.
var ignoredDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	".idea":        true,
	"vendor":       true,
}

// maxContentBytes caps how much file content travels with an event.
const maxContentBytes = 64 * 1024

// Observer recursively watches root and emits file-change events.
type Observer struct {
	root  string
	tasks Enqueuer
}

func New(root string, tasks Enqueuer) *Observer {
	return &Observer{root: root, tasks: tasks}
}

// Run watches until ctx is canceled.
func (o *Observer) Run(ctx context.Context) error {
	logger := logging.GetLogger()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, errors.ServiceUnavailable, "failed to create filesystem watcher")
	}
	defer watcher.Close()

	if err := o.watchTree(watcher, o.root); err != nil {
		return err
	}
	logger.Info(ctx, "Observing %s for file changes", o.root)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			o.handle(ctx, watcher, event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error(ctx, "Watcher error: %v", err)
		}
	}
}

// watchTree registers root and every non-ignored subdirectory.
func (o *Observer) watchTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if ignoredDirs[d.Name()] {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return errors.Wrap(err, errors.ServiceUnavailable, "failed to watch directory")
		}
		return nil
	})
}

func (o *Observer) handle(ctx context.Context, watcher *fsnotify.Watcher, fsEvent fsnotify.Event) {
	logger := logging.GetLogger()

	if o.ignored(fsEvent.Name) {
		return
	}

	// New directories join the watch; they carry no event of their own.
	if fsEvent.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(fsEvent.Name); err == nil && info.IsDir() {
			if err := o.watchTree(watcher, fsEvent.Name); err != nil {
				logger.Warn(ctx, "Failed to watch new directory %s: %v", fsEvent.Name, err)
			}
			return
		}
	}

	event, ok := o.toEvent(fsEvent)
	if !ok {
		return
	}

	if err := o.tasks.Enqueue(ctx, queue.TaskComprehendEvent, event); err != nil {
		logger.Error(ctx, "Failed to enqueue file change for %s: %v", event.FilePath, err)
		return
	}
	logger.Info(ctx, "Enqueued %s event for %s", event.ChangeType, event.FilePath)
}

// toEvent maps a filesystem notification to the event union.
func (o *Observer) toEvent(fsEvent fsnotify.Event) (*events.FileChangeEvent, bool) {
	var change events.ChangeType
	switch {
	case fsEvent.Op.Has(fsnotify.Create):
		change = events.ChangeAdded
	case fsEvent.Op.Has(fsnotify.Write):
		change = events.ChangeModified
	case fsEvent.Op.Has(fsnotify.Remove), fsEvent.Op.Has(fsnotify.Rename):
		change = events.ChangeDeleted
	default:
		return nil, false
	}

	rel, err := filepath.Rel(o.root, fsEvent.Name)
	if err != nil {
		rel = fsEvent.Name
	}

	event := &events.FileChangeEvent{
		EventType:  events.KindFileChange,
		FilePath:   filepath.ToSlash(rel),
		ChangeType: change,
		Timestamp:  time.Now().UTC(),
	}

	if change != events.ChangeDeleted {
		if content, err := os.ReadFile(fsEvent.Name); err == nil {
			if len(content) > maxContentBytes {
				content = content[:maxContentBytes]
			}
			event.Content = string(content)
		}
	}
	return event, true
}

func (o *Observer) ignored(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if ignoredDirs[part] {
			return true
		}
	}
	return false
}
