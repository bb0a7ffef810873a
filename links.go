package main

import (
	"net/url"
	"strings"
)

// isInternalLink reports whether href points at a Markdown document the
// viewer should open itself rather than hand to the browser.
func isInternalLink(href string) bool {
	target := strings.ToLower(cleanLinkTarget(href))
	if target == "" || strings.Contains(target, "://") || strings.HasPrefix(target, "mailto:") {
		return false
	}
	return strings.HasSuffix(target, ".md") || strings.HasSuffix(target, ".markdown")
}

// cleanLinkTarget strips the fragment, query and a leading "./" and decodes
// percent escapes.
func cleanLinkTarget(href string) string {
	target := strings.TrimSpace(href)
	if i := strings.IndexAny(target, "#?"); i >= 0 {
		target = target[:i]
	}
	if decoded, err := url.PathUnescape(target); err == nil {
		target = decoded
	}
	target = strings.ReplaceAll(target, `\`, "/")
	for strings.HasPrefix(target, "./") {
		target = target[2:]
	}
	return target
}

// resolveLink finds the entry a link refers to. Candidates are tried by
// exact name, then relative path suffix, then exact relative path.
func resolveLink(files FileSet, href string) (FileEntry, bool) {
	target := cleanLinkTarget(href)
	if target == "" {
		return FileEntry{}, false
	}

	matchers := []func(FileEntry) bool{
		func(f FileEntry) bool { return f.Name == target },
		func(f FileEntry) bool { return strings.HasSuffix(f.RelativePath, target) },
		func(f FileEntry) bool { return f.RelativePath == target },
	}
	for _, match := range matchers {
		for _, f := range files {
			if match(f) {
				return f, true
			}
		}
	}
	return FileEntry{}, false
}
