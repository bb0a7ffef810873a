package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

// app wires the host side together: scanner, watcher, controller and the
// event hub the display listens on.
type app struct {
	// openMu keeps the watched root and the controller's root in step
	openMu  sync.Mutex
	cfg     Config
	store   *configStore
	ctrl    *controller
	watcher *watcherManager
	hub     *hub
	cancel  context.CancelFunc
}

func newApp(cfg Config, store *configStore) *app {
	h := newHub()
	var settings settingsStore
	if store != nil {
		settings = store
	}
	return &app{
		cfg:     cfg,
		store:   store,
		ctrl:    newController(osFileReader{}, renderMarkdown, settings, h),
		watcher: newWatcherManager(newIgnoreMatcher(cfg.WatchIgnore), scanOptions{skipHidden: cfg.SkipHidden}),
		hub:     h,
	}
}

// start runs the controller until close is called or ctx ends
func (a *app) start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	go a.ctrl.run(ctx)
}

func (a *app) close() {
	if root := a.watcher.watchedRoot(); root != "" {
		log.Debugf("Stopping watcher on %s", root)
	}
	a.watcher.close()
	if a.cancel != nil {
		a.cancel()
		<-a.ctrl.done
	}
}

// openFolder scans dir, replaces the watcher and hands the file set to the
// controller. It returns the resolved root.
func (a *app) openFolder(dir string) (string, error) {
	root, err := resolveDirectory(dir)
	if err != nil {
		return "", err
	}

	a.openMu.Lock()
	defer a.openMu.Unlock()

	files, err := scanMarkdownFiles(root, scanOptions{skipHidden: a.cfg.SkipHidden})
	if err != nil {
		return "", err
	}

	if err := a.watcher.watchDirectory(root, a.ctrl.watchEvent); err != nil {
		// Browsing still works without live updates
		log.Printf("Warning: live updates disabled for %s: %v", root, err)
	}

	a.ctrl.openFolder(root, files)
	return root, nil
}

// resolveDirectory expands ~, makes dir absolute and resolves symlinks.
// The result must be a directory.
func resolveDirectory(dir string) (string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return "", fmt.Errorf("no directory given")
	}

	if dir == "~" || strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		dir = filepath.Join(home, strings.TrimPrefix(dir, "~"))
	}

	abs, err := filepath.Abs(filepath.Clean(dir))
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("path does not exist: %w", err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("cannot access %s: %w", resolved, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s: %w", resolved, errNotDirectory)
	}
	return resolved, nil
}
