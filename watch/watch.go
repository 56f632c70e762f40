// Copyright © 2024 The rapidls authors

// Package watch reports changes to RAPID source files below a set of
// paths. Bursts of file system events are coalesced into one callback.
package watch

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("rapidls.watch")

// Option configures a Watcher.
type Option func(*Watcher)

// WithFilter limits reported changes to files for which include returns
// true. Without a filter every file is reported.
func WithFilter(include func(path string) bool) Option {
	return func(w *Watcher) { w.include = include }
}

// WithSkipDir stops the watcher from descending into directories for which
// skip returns true.
func WithSkipDir(skip func(path string) bool) Option {
	return func(w *Watcher) { w.skipDir = skip }
}

// Watcher watches directories and calls onChange with the files that
// changed once events have been quiet for the debounce delay.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	debounce  time.Duration
	include   func(string) bool
	skipDir   func(string) bool
	onChange  func([]string)

	callbackMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]struct{}
	timer     *time.Timer
	closed    bool

	started bool
	done    chan struct{}
}

// New creates a watcher. onChange must not be nil.
func New(debounce time.Duration, onChange func(paths []string), opts ...Option) (*Watcher, error) {
	if onChange == nil {
		return nil, os.ErrInvalid
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fsWatcher: fsw,
		debounce:  debounce,
		include:   func(string) bool { return true },
		skipDir:   func(string) bool { return false },
		onChange:  onChange,
		pending:   make(map[string]struct{}),
		done:      make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	return w, nil
}

// Watch starts watching paths. A directory is watched recursively. A file
// is watched through its parent directory.
func (w *Watcher) Watch(paths []string) error {
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			if err := w.fsWatcher.Add(filepath.Dir(path)); err != nil {
				return err
			}
			continue
		}
		if err := w.watchRecursive(path); err != nil {
			return err
		}
	}

	w.started = true
	go w.run()
	return nil
}

func (w *Watcher) watchRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.skipDir(path) {
			return filepath.SkipDir
		}
		log.Debugf("watching %s", path)
		return w.fsWatcher.Add(path)
	})
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Errorf("watcher error: %v", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if w.skipDir(event.Name) {
				return
			}
			if err := w.watchRecursive(event.Name); err != nil {
				log.Warningf("failed to watch new directory %s: %v", event.Name, err)
				return
			}
			w.enqueueExistingFiles(event.Name)
			return
		}
	}
	if !w.include(event.Name) {
		return
	}
	if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.scheduleChange(event.Name)
	}
}

func (w *Watcher) scheduleChange(path string) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	if w.closed {
		return
	}

	w.pending[path] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flushChanges)
}

func (w *Watcher) flushChanges() {
	w.pendingMu.Lock()
	if w.closed {
		w.pendingMu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for path := range w.pending {
		paths = append(paths, path)
	}
	w.pending = make(map[string]struct{})
	w.pendingMu.Unlock()

	if len(paths) == 0 {
		return
	}
	sort.Strings(paths)
	w.callbackMu.Lock()
	defer w.callbackMu.Unlock()
	w.onChange(paths)
}

// enqueueExistingFiles reports files that appeared in a new directory
// before it was added to the watch list.
func (w *Watcher) enqueueExistingFiles(root string) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if w.include(path) {
			w.scheduleChange(path)
		}
		return nil
	})
}

// Close stops the watcher. Pending changes are discarded.
func (w *Watcher) Close() error {
	w.pendingMu.Lock()
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.pendingMu.Unlock()

	err := w.fsWatcher.Close()
	if w.started {
		<-w.done
	}
	return err
}
