// Package watch turns filesystem events under the working directory
// into file-change notification batches for deployments where the
// backend emits no change stream of its own. Version-control metadata
// directories are skipped; the consumer is expected to debounce, so
// events are forwarded as they arrive.
package watch

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// ErrWatcherClosed is returned for operations on a closed watcher.
var ErrWatcherClosed = errors.New("watcher is closed")

// metadataDirs are directory names never watched or reported.
var metadataDirs = map[string]bool{
	".git": true,
	".hg":  true,
	".jj":  true,
	".svn": true,
}

// Watcher watches a working directory tree and emits batches of
// changed file paths.
type Watcher struct {
	root   string
	fsw    *fsnotify.Watcher
	events chan []string
	log    *logrus.Entry
	done   chan struct{}
	closed atomic.Bool
}

// New creates a watcher over the working directory and begins
// delivering events.
func New(root string, log *logrus.Entry) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:   filepath.Clean(root),
		fsw:    fsw,
		events: make(chan []string, 64),
		log:    log,
		done:   make(chan struct{}),
	}

	if err := w.addTree(w.root); err != nil {
		fsw.Close()
		return nil, err
	}

	go w.loop()
	return w, nil
}

// Events returns the stream of changed-path batches.
func (w *Watcher) Events() <-chan []string {
	return w.events
}

// Close stops the watcher. Safe to call more than once.
func (w *Watcher) Close() error {
	if w.closed.Swap(true) {
		return nil
	}
	close(w.done)
	return w.fsw.Close()
}

// addTree watches the directory and every non-metadata subdirectory.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if metadataDirs[d.Name()] {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// loop forwards filesystem events as single-path batches and extends
// the watch into newly created directories.
func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.ignored(event.Name) {
				continue
			}
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						w.log.WithError(err).WithField("dir", event.Name).Warn("watch new directory")
					}
					continue
				}
			}
			// Block until the consumer takes the batch; a dropped
			// event would leave the path stale with nothing to retry.
			select {
			case w.events <- []string{event.Name}:
			case <-w.done:
				return
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("filesystem watch error")
		}
	}
}

// ignored reports whether the path sits under a metadata directory.
func (w *Watcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return true
	}
	for rel != "." && rel != string(filepath.Separator) {
		if metadataDirs[filepath.Base(rel)] {
			return true
		}
		parent := filepath.Dir(rel)
		if parent == rel {
			break
		}
		rel = parent
	}
	return false
}
