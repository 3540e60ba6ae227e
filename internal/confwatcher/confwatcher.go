// Package confwatcher contains a configuration watcher.
package confwatcher

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	defaultMinInterval = 1 * time.Second
	additionalWait     = 10 * time.Millisecond
)

// ConfWatcher is a configuration file watcher.
// The parent directory is watched, in order to detect files
// that are replaced atomically or through symlinks.
type ConfWatcher struct {
	FilePath    string
	MinInterval time.Duration

	inner        *fsnotify.Watcher
	absolutePath string
	watchedPath  string

	// in
	terminate chan struct{}

	// out
	signal chan struct{}
	done   chan struct{}
}

// Initialize initializes a ConfWatcher.
func (w *ConfWatcher) Initialize() error {
	if w.MinInterval == 0 {
		w.MinInterval = defaultMinInterval
	}

	if _, err := os.Stat(w.FilePath); err != nil {
		return err
	}

	var err error
	w.inner, err = fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// use absolute paths to support Darwin
	w.absolutePath, _ = filepath.Abs(w.FilePath)

	err = w.inner.Add(filepath.Dir(w.absolutePath))
	if err != nil {
		w.inner.Close() //nolint:errcheck
		return err
	}

	w.watchedPath, _ = filepath.EvalSymlinks(w.absolutePath)

	w.terminate = make(chan struct{})
	w.signal = make(chan struct{})
	w.done = make(chan struct{})

	go w.run()

	return nil
}

// Close closes a ConfWatcher.
func (w *ConfWatcher) Close() {
	close(w.terminate)
	<-w.done
}

// changed returns whether an event modified the watched file.
func (w *ConfWatcher) changed(event fsnotify.Event) bool {
	currentPath, _ := filepath.EvalSymlinks(w.absolutePath)

	// file was removed; the next write or create event triggers a reload
	if currentPath == "" {
		w.watchedPath = ""
		return false
	}

	// symlink target was replaced, or the file was re-created
	if currentPath != w.watchedPath {
		w.watchedPath = currentPath
		return true
	}

	eventPath, _ := filepath.Abs(event.Name)
	eventPath, _ = filepath.EvalSymlinks(eventPath)

	return eventPath == currentPath &&
		(event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create))
}

func (w *ConfWatcher) run() {
	defer close(w.done)

	var lastCalled time.Time

outer:
	for {
		select {
		case event := <-w.inner.Events:
			if time.Since(lastCalled) < w.MinInterval || !w.changed(event) {
				continue
			}

			// wait some additional time to allow the writer to complete its job
			time.Sleep(additionalWait)

			lastCalled = time.Now()

			select {
			case w.signal <- struct{}{}:
			case <-w.terminate:
				break outer
			}

		case <-w.inner.Errors:
			break outer

		case <-w.terminate:
			break outer
		}
	}

	close(w.signal)
	w.inner.Close() //nolint:errcheck
}

// Watch returns a channel that is called after the configuration file has changed.
func (w *ConfWatcher) Watch() chan struct{} {
	return w.signal
}
