package main

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
)

// renderFileTree renders files grouped by directory. Directories are sorted
// by name; entries keep the order they have in files, so search results stay
// ranked within each group. current marks the selected entry.
func renderFileTree(files FileSet, current string) string {
	var buf bytes.Buffer

	if len(files) == 0 {
		buf.WriteString(`<div class="tree-empty">No Markdown files</div>`)
		return buf.String()
	}

	groups := make(map[string][]FileEntry)
	var dirs []string
	for _, f := range files {
		if _, ok := groups[f.Directory]; !ok {
			dirs = append(dirs, f.Directory)
		}
		groups[f.Directory] = append(groups[f.Directory], f)
	}
	sort.Strings(dirs)

	for _, dir := range dirs {
		buf.WriteString(`<div class="tree-item">`)
		if dir != "." {
			buf.WriteString(fmt.Sprintf(`<div class="tree-node"><span class="tree-directory" onclick="toggleDir(this)" data-path="%s"><span class="expand-icon">▼</span><span class="dir-name">%s</span></span></div>`,
				template.HTMLEscapeString(dir), template.HTMLEscapeString(dir)))
		}
		buf.WriteString(`<div class="tree-children">`)
		for _, f := range groups[dir] {
			class := "tree-file"
			if f.Path == current {
				class += " active"
			}
			buf.WriteString(fmt.Sprintf(`<div class="tree-node"><span class="%s"><a href="#" data-path="%s" title="%s">%s</a></span></div>`,
				class,
				template.HTMLEscapeString(f.Path),
				template.HTMLEscapeString(f.RelativePath),
				template.HTMLEscapeString(f.Name)))
		}
		buf.WriteString(`</div></div>`)
	}
	return buf.String()
}
