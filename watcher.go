package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

type watchEventKind string

const (
	watchFileChanged  watchEventKind = "file-changed"
	watchFilesUpdated watchEventKind = "files-updated"
)

// watchEvent is what the watcher reports to the controller. Root identifies
// the watch that produced it so events from a replaced root can be dropped.
type watchEvent struct {
	kind  watchEventKind
	root  string
	path  string
	files FileSet
}

// watcherManager owns the single active directory watcher
type watcherManager struct {
	mu       sync.Mutex
	current  *fsnotify.Watcher
	root     string
	cancel   context.CancelFunc
	ignore   ignoreMatcher
	scanOpts scanOptions
}

func newWatcherManager(ignore ignoreMatcher, opts scanOptions) *watcherManager {
	return &watcherManager{ignore: ignore, scanOpts: opts}
}

// stopLocked tears down the active watcher. Caller holds m.mu.
func (m *watcherManager) stopLocked() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.current != nil {
		if err := m.current.Close(); err != nil {
			log.Printf("Failed to close watcher: %v", err)
		}
		m.current = nil
	}
	m.root = ""
}

// watchDirectory replaces any existing watcher with one on rootDir and its
// subdirectories. notify is called from the watcher goroutine.
func (m *watcherManager) watchDirectory(rootDir string, notify func(watchEvent)) error {
	m.mu.Lock()

	// Stop existing watcher (under lock)
	m.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		cancel()
		m.cancel = nil
		m.mu.Unlock()
		return fmt.Errorf("create watcher: %w", err)
	}
	m.current = watcher

	if err := watcher.Add(rootDir); err != nil {
		m.stopLocked()
		m.mu.Unlock()
		return fmt.Errorf("watch %s: %w", rootDir, err)
	}

	// Unlock before slow directory walk
	m.mu.Unlock()

	dirsToWatch := collectDirectories(rootDir, m.ignore)

	m.mu.Lock()
	defer m.mu.Unlock()

	// Another call won the race, abandon this setup
	if m.current != watcher {
		if closeErr := watcher.Close(); closeErr != nil {
			log.Printf("Failed to close abandoned watcher: %v", closeErr)
		}
		cancel()
		return fmt.Errorf("watcher setup cancelled (replaced during walk)")
	}

	dw := &directoryWatch{
		root:     rootDir,
		watcher:  watcher,
		ignore:   m.ignore,
		scanOpts: m.scanOpts,
		notify:   notify,
		dirs:     map[string]bool{rootDir: true},
	}
	for _, dir := range dirsToWatch {
		dw.add(dir)
	}

	m.root = rootDir
	log.WithFields(log.Fields{"root": rootDir, "dirs": len(dw.dirs)}).Info("Watching directory")
	go dw.run(ctx)
	return nil
}

func (m *watcherManager) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

// active reports whether a watcher is installed
func (m *watcherManager) active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil
}

// watchedRoot returns the root of the active watcher, or ""
func (m *watcherManager) watchedRoot() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.root
}

// collectDirectories returns the non-ignored directories below rootDir.
// Unreadable directories are skipped.
func collectDirectories(rootDir string, ignore ignoreMatcher) []string {
	var dirs []string
	filepath.WalkDir(rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Printf("Warning: Cannot walk %s: %v", path, err)
			if d != nil && d.IsDir() && path != rootDir {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() || path == rootDir {
			return nil
		}
		if ignore.ignored(rootDir, path) {
			return filepath.SkipDir
		}
		dirs = append(dirs, path)
		return nil
	})
	return dirs
}

// directoryWatch is the state of one running watch. Only the run goroutine
// touches dirs once run has started.
type directoryWatch struct {
	root     string
	watcher  *fsnotify.Watcher
	ignore   ignoreMatcher
	scanOpts scanOptions
	notify   func(watchEvent)
	dirs     map[string]bool
}

func (d *directoryWatch) add(dir string) {
	if err := d.watcher.Add(dir); err != nil {
		log.Printf("Warning: Cannot watch directory %s: %v", dir, err)
		return
	}
	d.dirs[dir] = true
}

func (d *directoryWatch) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			d.handle(ctx, event)
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Directory watcher error: %v", err)
		}
	}
}

func (d *directoryWatch) handle(ctx context.Context, event fsnotify.Event) {
	if d.ignore.ignored(d.root, event.Name) {
		return
	}

	switch {
	case event.Has(fsnotify.Create):
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			d.add(event.Name)
			for _, dir := range collectDirectories(event.Name, d.ignore) {
				d.add(dir)
			}
			d.rescan(ctx, "directory created", event.Name)
			return
		}
		if isMarkdownFile(event.Name) {
			d.rescan(ctx, "added", event.Name)
			// Atomic saves show up as a create of the existing name
			d.emit(ctx, watchEvent{kind: watchFileChanged, root: d.root, path: event.Name})
		}

	case event.Has(fsnotify.Write):
		if isMarkdownFile(event.Name) {
			log.Debugf("Markdown file modified: %s", event.Name)
			d.emit(ctx, watchEvent{kind: watchFileChanged, root: d.root, path: event.Name})
		}

	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		if d.dirs[event.Name] {
			delete(d.dirs, event.Name)
			d.rescan(ctx, "directory removed", event.Name)
			return
		}
		if isMarkdownFile(event.Name) {
			d.rescan(ctx, "removed", event.Name)
		}
	}
}

// rescan lists the whole root again. The result replaces the file set
// outright rather than patching it.
func (d *directoryWatch) rescan(ctx context.Context, reason, path string) {
	log.WithFields(log.Fields{"path": path, "reason": reason}).Info("Rescanning for markdown files")
	files, err := scanMarkdownFiles(d.root, d.scanOpts)
	if err != nil {
		log.Printf("Warning: rescan of %s failed: %v", d.root, err)
		return
	}
	d.emit(ctx, watchEvent{kind: watchFilesUpdated, root: d.root, files: files})
}

func (d *directoryWatch) emit(ctx context.Context, evt watchEvent) {
	if ctx.Err() != nil {
		return
	}
	d.notify(evt)
}
