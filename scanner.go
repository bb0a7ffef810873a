package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

// scanOptions tunes directory discovery
type scanOptions struct {
	// skipHidden drops dotfiles and dot-directories, matching the watcher's
	// ignore rule. Off by default.
	skipHidden bool
}

// scanMarkdownFiles lists every Markdown file reachable from rootDir.
// Subdirectories that cannot be read are logged and skipped; only a root that
// is not a readable directory is an error.
func scanMarkdownFiles(rootDir string, opts scanOptions) (FileSet, error) {
	info, err := os.Stat(rootDir)
	if err != nil {
		return nil, fmt.Errorf("cannot access %s: %w", rootDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", rootDir, errNotDirectory)
	}
	if _, err := os.ReadDir(rootDir); err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", rootDir, err)
	}

	var files []FileEntry
	visited := make(map[string]bool)
	stack := []string{rootDir}

	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		resolved, err := filepath.EvalSymlinks(dir)
		if err != nil {
			log.Printf("Warning: Skipping unresolvable directory %s: %v", dir, err)
			continue
		}
		if visited[resolved] {
			continue
		}
		visited[resolved] = true

		entries, err := os.ReadDir(dir)
		if err != nil {
			log.WithFields(log.Fields{"dir": dir, "error": err}).Warn("Skipping unreadable directory")
			continue
		}

		for _, entry := range entries {
			name := entry.Name()
			if opts.skipHidden && strings.HasPrefix(name, ".") {
				continue
			}
			fullPath := filepath.Join(dir, name)

			mode := entry.Type()
			if mode&os.ModeSymlink != 0 {
				target, err := os.Stat(fullPath)
				if err != nil {
					log.Debugf("Skipping broken symlink: %s", fullPath)
					continue
				}
				mode = target.Mode().Type()
			}

			switch {
			case mode.IsDir():
				stack = append(stack, fullPath)
			case mode.IsRegular() && isMarkdownFile(name):
				files = append(files, newFileEntry(rootDir, fullPath))
			}
		}
	}

	return normalizeFileSet(files), nil
}
