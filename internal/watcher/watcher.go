// Package watcher turns noisy filesystem events under the source tree into a
// minimal ordered stream of rebuild triggers, debouncing rapid multi-file
// saves into a single trigger.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// FileWatcher watches a source tree for qualifying changes with debouncing.
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	debouncer *debouncer
	filters   []FileFilter
	handlers  []ChangeHandler
	errorFns  []ErrorHandler
	mutex     sync.RWMutex
}

// ChangeEvent represents one qualifying file change.
type ChangeEvent struct {
	Type    EventType
	Path    string
	ModTime time.Time
}

// EventType represents the type of file change.
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// FileFilter reports whether a path qualifies for watching.
type FileFilter func(path string) bool

// ChangeHandler receives one debounced batch of changes.
type ChangeHandler func(events []ChangeEvent) error

// ErrorHandler receives watcher backend errors. The watch loop keeps
// running regardless; handlers decide whether to degrade the session.
type ErrorHandler func(err error)

// New creates a file watcher with the given debounce window.
func New(debounce time.Duration) (*FileWatcher, error) {
	return newWithTimer(debounce, realAfterFunc)
}

// newWithTimer injects the timer constructor so debounce behavior is
// testable without wall-clock waits.
func newWithTimer(debounce time.Duration, afterFunc timerFactory) (*FileWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &FileWatcher{
		watcher:   fsWatcher,
		debouncer: newDebouncer(debounce, afterFunc),
	}, nil
}

// AddFilter adds a qualifying filter; all filters must pass.
func (fw *FileWatcher) AddFilter(filter FileFilter) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.filters = append(fw.filters, filter)
}

// AddHandler adds a debounced-batch handler.
func (fw *FileWatcher) AddHandler(handler ChangeHandler) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.handlers = append(fw.handlers, handler)
}

// AddErrorHandler adds a backend-error handler.
func (fw *FileWatcher) AddErrorHandler(handler ErrorHandler) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.errorFns = append(fw.errorFns, handler)
}

// AddRecursive watches root and every subdirectory passing the filters.
func (fw *FileWatcher) AddRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if !fw.allow(path) {
			return filepath.SkipDir
		}
		return fw.watcher.Add(path)
	})
}

// Start launches the watch and dispatch loops. They exit when ctx is done.
func (fw *FileWatcher) Start(ctx context.Context) {
	go fw.debouncer.run(ctx)
	go fw.dispatchLoop(ctx)
	go fw.watchLoop(ctx)
}

// Stop stops the watcher and releases its resources.
func (fw *FileWatcher) Stop() error {
	fw.debouncer.stop()
	return fw.watcher.Close()
}

func (fw *FileWatcher) allow(path string) bool {
	fw.mutex.RLock()
	defer fw.mutex.RUnlock()
	for _, filter := range fw.filters {
		if !filter(path) {
			return false
		}
	}
	return true
}

func (fw *FileWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleFsnotifyEvent(event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("watcher backend error", "error", err)
			fw.mutex.RLock()
			errorFns := fw.errorFns
			fw.mutex.RUnlock()
			for _, handler := range errorFns {
				handler(err)
			}
		}
	}
}

func (fw *FileWatcher) handleFsnotifyEvent(event fsnotify.Event) {
	if !fw.allow(event.Name) {
		return
	}

	// Newly created directories must be added to the watch set.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := fw.AddRecursive(event.Name); err != nil {
				log.Warn("failed to watch new directory", "path", event.Name, "error", err)
			}
			return
		}
	}

	var eventType EventType
	switch {
	case event.Op&fsnotify.Create != 0:
		eventType = EventTypeCreated
	case event.Op&fsnotify.Write != 0:
		eventType = EventTypeModified
	case event.Op&fsnotify.Remove != 0:
		eventType = EventTypeDeleted
	case event.Op&fsnotify.Rename != 0:
		eventType = EventTypeRenamed
	default:
		return
	}

	change := ChangeEvent{Type: eventType, Path: event.Name}
	if info, err := os.Stat(event.Name); err == nil {
		change.ModTime = info.ModTime()
	}
	fw.debouncer.add(change)
}

func (fw *FileWatcher) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case events := <-fw.debouncer.output:
			fw.mutex.RLock()
			handlers := fw.handlers
			fw.mutex.RUnlock()
			for _, handler := range handlers {
				if err := handler(events); err != nil {
					log.Warn("change handler error", "error", err)
				}
			}
		}
	}
}

// ContentFilter accepts the file types folio recognizes as preview inputs,
// plus directories (which must pass so they can be watched). An extensionless
// path that is not a directory on disk does not qualify.
func ContentFilter(path string) bool {
	switch filepath.Ext(path) {
	case ".md", ".css", ".json":
		return true
	case "":
		info, err := os.Stat(path)
		return err == nil && info.IsDir()
	default:
		return false
	}
}

// NoDotDirFilter rejects paths inside dot-directories (.git, .cache, ...).
func NoDotDirFilter(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if len(part) > 1 && strings.HasPrefix(part, ".") {
			return false
		}
	}
	return true
}

// ExcludeDirsFilter rejects paths under any of the named directories; used
// for the scratch tree and configured build-artifact directories.
func ExcludeDirsFilter(dirs ...string) FileFilter {
	return func(path string) bool {
		slashed := filepath.ToSlash(path)
		for _, dir := range dirs {
			if dir == "" {
				continue
			}
			needle := filepath.ToSlash(dir)
			if slashed == needle || strings.HasPrefix(slashed, needle+"/") || strings.Contains(slashed, "/"+needle+"/") {
				return false
			}
		}
		return true
	}
}
