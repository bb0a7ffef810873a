package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	log "github.com/sirupsen/logrus"
)

// hiddenPattern matches dotfiles and dot-directories
const hiddenPattern = ".*"

// ignoreMatcher decides which watcher events to drop. Patterns are matched
// against each path segment below the root, so ".*" hides dot entries at any
// depth and "drafts" hides every directory named drafts.
type ignoreMatcher struct {
	patterns []string
	globs    []glob.Glob
}

// newIgnoreMatcher compiles the hidden-entry rule plus any extra patterns.
// Patterns containing a path separator or failing to compile are skipped.
func newIgnoreMatcher(extra []string) ignoreMatcher {
	var m ignoreMatcher
	for _, p := range append([]string{hiddenPattern}, extra...) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if strings.ContainsAny(p, `/\`) {
			log.Printf("Warning: ignore pattern contains path separator (ignored): %s", p)
			continue
		}
		g, err := glob.Compile(p, '/')
		if err != nil {
			log.Printf("Warning: Invalid ignore pattern '%s': %v", p, err)
			continue
		}
		m.patterns = append(m.patterns, p)
		m.globs = append(m.globs, g)
	}
	return m
}

// matchName reports whether a single path segment is ignored
func (m ignoreMatcher) matchName(name string) bool {
	for _, g := range m.globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// ignored reports whether path (absolute, under rootDir) is ignored.
// Segments above rootDir are not considered.
func (m ignoreMatcher) ignored(rootDir, path string) bool {
	rel, err := filepath.Rel(rootDir, path)
	if err != nil || rel == "." {
		return false
	}
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if seg == ".." || m.matchName(seg) {
			return true
		}
	}
	return false
}

func (m ignoreMatcher) String() string {
	return fmt.Sprintf("%v", m.patterns)
}
