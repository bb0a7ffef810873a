package main

import (
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// markdownExt is the only extension the scanner and watcher recognize.
const markdownExt = ".md"

// FileEntry describes one Markdown file under the browse root.
// Identity is the absolute Path; entries are never modified after creation.
type FileEntry struct {
	Name         string `json:"name"`
	Path         string `json:"path"`
	RelativePath string `json:"relativePath"`
	Directory    string `json:"directory"`
}

// FileSet is a list of entries sorted by RelativePath with unique Paths.
type FileSet []FileEntry

func isMarkdownFile(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), markdownExt)
}

// newFileEntry builds an entry for absPath relative to rootDir
func newFileEntry(rootDir, absPath string) FileEntry {
	relPath := absPath
	if rel, err := filepath.Rel(rootDir, absPath); err == nil {
		relPath = rel
	}
	relPath = filepath.ToSlash(relPath)

	return FileEntry{
		Name:         path.Base(relPath),
		Path:         absPath,
		RelativePath: relPath,
		Directory:    path.Dir(relPath),
	}
}

// normalizeFileSet sorts by relative path and drops repeated absolute paths.
func normalizeFileSet(files []FileEntry) FileSet {
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].RelativePath < files[j].RelativePath
	})

	seen := make(map[string]bool, len(files))
	out := make(FileSet, 0, len(files))
	for _, f := range files {
		if seen[f.Path] {
			continue
		}
		seen[f.Path] = true
		out = append(out, f)
	}
	return out
}

// find returns the entry with the given absolute path
func (fs FileSet) find(absPath string) (FileEntry, bool) {
	for _, f := range fs {
		if f.Path == absPath {
			return f, true
		}
	}
	return FileEntry{}, false
}

func (fs FileSet) contains(absPath string) bool {
	_, ok := fs.find(absPath)
	return ok
}

func (fs FileSet) clone() FileSet {
	if fs == nil {
		return nil
	}
	out := make(FileSet, len(fs))
	copy(out, fs)
	return out
}
