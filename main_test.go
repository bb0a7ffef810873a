package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRenderMarkdown tests markdown rendering with GFM features
func TestRenderMarkdown(t *testing.T) {
	tests := []struct {
		name           string
		content        string
		wantContain    []string
		wantNotContain []string
	}{
		{
			name:        "top-level heading",
			content:     testMarkdownHi,
			wantContain: []string{"<h1", "Hi</h1>"},
		},
		{
			name:        "basic markdown",
			content:     testMarkdownHeader,
			wantContain: []string{"<h1", "Hello World", "<strong>test</strong>"},
		},
		{
			name:        "GFM table",
			content:     testMarkdownTable,
			wantContain: []string{"<table", "<th>A</th>", "<th>B</th>", "<td>1</td>", "<td>2</td>"},
		},
		{
			name:        "code block with language",
			content:     testMarkdownCode,
			wantContain: []string{"func", "main", `class="chroma"`},
		},
		{
			name:        "autolink",
			content:     testMarkdownAutolink,
			wantContain: []string{"<a", "https://example.com"},
		},
		{
			name:        "heading with auto ID",
			content:     "# Test Heading",
			wantContain: []string{"<h1", `id="test-heading"`, "Test Heading"},
		},
		{
			name:        "strikethrough (GFM)",
			content:     testMarkdownStrikethrough,
			wantContain: []string{"<del>deleted</del>"},
		},
		{
			name:        "task list (GFM)",
			content:     testMarkdownTaskList,
			wantContain: []string{"checkbox", "checked"},
		},
		{
			name:        "hard wraps",
			content:     "line one\nline two",
			wantContain: []string{"<br>"},
		},
		{
			name:        "complex document",
			content:     testMarkdownComplex,
			wantContain: []string{"<ul>", "<em>italic</em>", `href="https://example.com"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			html, err := renderMarkdown([]byte(tt.content))
			require.NoError(t, err)

			for _, want := range tt.wantContain {
				assert.Contains(t, html, want)
			}
			for _, notWant := range tt.wantNotContain {
				assert.NotContains(t, html, notWant)
			}
		})
	}
}

func TestNewMarkdownRenderer(t *testing.T) {
	md := newMarkdownRenderer()
	require.NotNil(t, md)

	var buf bytes.Buffer
	require.NoError(t, md.Convert([]byte("# Test\n\nHello **world**"), &buf))
	assert.Contains(t, buf.String(), "<h1")
	assert.Contains(t, buf.String(), "<strong>world</strong>")
}

func TestChromaCSS(t *testing.T) {
	light, err := chromaCSS(lightCodeStyle)
	require.NoError(t, err)
	assert.Contains(t, light, ".chroma")

	dark, err := chromaCSS(darkCodeStyle)
	require.NoError(t, err)
	assert.NotEqual(t, light, dark)

	// Unknown styles fall back instead of failing
	fallback, err := chromaCSS("no-such-style")
	require.NoError(t, err)
	assert.Contains(t, fallback, ".chroma")
}

func TestExportHTML(t *testing.T) {
	doc, err := exportHTML("notes.md", []byte(testMarkdownHeader), renderMarkdown)
	require.NoError(t, err)

	html := string(doc)
	assert.True(t, strings.HasPrefix(html, "<!DOCTYPE html>"))
	assert.Contains(t, html, "<title>notes.md</title>")
	assert.Contains(t, html, exportMarkdownCSS)
	assert.Contains(t, html, "max-width: 980px")
	assert.Contains(t, html, "padding: 45px")
	assert.Contains(t, html, ".chroma")
	assert.Contains(t, html, `<body class="markdown-body">`)
	assert.Contains(t, html, "<strong>test</strong>")
	assert.Contains(t, html, "</html>")
}

func TestExportHTML_EscapesTitle(t *testing.T) {
	doc, err := exportHTML("<script>.md", []byte(testMarkdownSimple), renderMarkdown)
	require.NoError(t, err)
	assert.NotContains(t, string(doc), "<title><script>")
	assert.Contains(t, string(doc), "&lt;script&gt;.md")
}

func TestExportHTML_RenderError(t *testing.T) {
	_, err := exportHTML("bad.md", []byte("BROKEN"), failingRender)
	assert.ErrorIs(t, err, errRenderBroken)
}

func TestExportFileName(t *testing.T) {
	tests := map[string]string{
		"notes.md":          "notes.html",
		"README.MD":         "README.html",
		"/abs/path/todo.md": "todo.html",
		"plain":             "plain.html",
	}
	for in, want := range tests {
		assert.Equal(t, want, exportFileName(in), in)
	}
}

func TestIsInternalLink(t *testing.T) {
	tests := []struct {
		href string
		want bool
	}{
		{"other.md", true},
		{"./docs/Guide.MD", true},
		{"notes.markdown", true},
		{"page.md#section", true},
		{"page.md?plain=1", true},
		{"https://example.com/readme.md", false},
		{"mailto:someone@example.com", false},
		{"image.png", false},
		{"#heading", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.href, func(t *testing.T) {
			assert.Equal(t, tt.want, isInternalLink(tt.href))
		})
	}
}

func TestResolveLink(t *testing.T) {
	files := testFileSet("/root", "guide.md", "docs/guide.md", "docs/api/reference.md", "my notes.md")

	tests := []struct {
		name   string
		href   string
		want   string
		wantOK bool
	}{
		{"exact name, first in list order", "guide.md", "docs/guide.md", true},
		{"suffix of relative path", "api/reference.md", "docs/api/reference.md", true},
		{"exact relative path", "docs/guide.md", "docs/guide.md", true},
		{"dot slash and fragment", "./reference.md#usage", "docs/api/reference.md", true},
		{"percent escapes", "my%20notes.md", "my notes.md", true},
		{"missing", "nowhere.md", "", false},
		{"empty", "#top", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := resolveLink(files, tt.href)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got.RelativePath)
			}
		})
	}
}

func TestRenderFileTree(t *testing.T) {
	files := testFileSet("/root", "b/two.md", "a/one.md", "top.md", "a/<x>.md")

	html := renderFileTree(files, "/root/a/one.md")

	assert.Contains(t, html, `data-path="/root/a/one.md"`)
	assert.Contains(t, html, `class="tree-file active"`)
	assert.Contains(t, html, `<span class="dir-name">a</span>`)
	assert.Contains(t, html, "&lt;x&gt;.md")
	assert.NotContains(t, html, "<x>")

	// Root files come first, then directories by name
	top := strings.Index(html, "top.md")
	a := strings.Index(html, "one.md")
	b := strings.Index(html, "two.md")
	assert.Less(t, top, a)
	assert.Less(t, a, b)
}

func TestRenderFileTree_KeepsOrderWithinGroup(t *testing.T) {
	files := FileSet{
		newFileEntry("/root", "/root/docs/zeta.md"),
		newFileEntry("/root", "/root/docs/alpha.md"),
	}
	html := renderFileTree(files, "")
	assert.Less(t, strings.Index(html, "zeta.md"), strings.Index(html, "alpha.md"))
}

func TestRenderFileTree_Empty(t *testing.T) {
	assert.Contains(t, renderFileTree(nil, ""), "No Markdown files")
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		size int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1024 * 1024, "1.0 MB"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatSize(tt.size))
		})
	}
}

func TestBreadcrumb(t *testing.T) {
	assert.Equal(t, []string{"docs", "api", "reference.md"}, breadcrumb("docs/api/reference.md"))
	assert.Nil(t, breadcrumb(""))
}

// TestFileExists tests the fileExists helper function
func TestFileExists(t *testing.T) {
	testDir := t.TempDir()
	existing := createTestMarkdownFile(t, testDir, "test.md", testMarkdownSimple)

	assert.True(t, fileExists(existing))
	assert.True(t, fileExists(testDir))
	assert.False(t, fileExists(filepath.Join(testDir, "nonexistent.md")))
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config-dir", t.TempDir()}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCLI_Ls(t *testing.T) {
	testDir := t.TempDir()
	createTestMarkdownFile(t, testDir, "a/one.md", testMarkdownHi)
	createTestMarkdownFile(t, testDir, "b/two.md", testMarkdownSimple)
	createTestMarkdownFile(t, testDir, "readme.txt", "plain")

	out, err := runCLI(t, "ls", testDir)
	require.NoError(t, err)
	assert.Equal(t, "a/one.md\nb/two.md\n", out)
}

func TestCLI_Search(t *testing.T) {
	testDir := t.TempDir()
	createTestMarkdownFile(t, testDir, "readme.md", testMarkdownSimple)
	createTestMarkdownFile(t, testDir, "guide/install.md", testMarkdownSimple)

	out, err := runCLI(t, "search", testDir, "readne")
	require.NoError(t, err)
	assert.Equal(t, "readme.md\n", out)
}

func TestCLI_Export(t *testing.T) {
	testDir := t.TempDir()
	src := createTestMarkdownFile(t, testDir, "notes.md", testMarkdownHeader)

	out, err := runCLI(t, "export", src)
	require.NoError(t, err)

	want := filepath.Join(testDir, "notes.html")
	assert.Equal(t, want+"\n", out)
	doc, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Contains(t, string(doc), "<strong>test</strong>")

	custom := filepath.Join(testDir, "out.html")
	_, err = runCLI(t, "export", src, "-o", custom)
	require.NoError(t, err)
	assert.True(t, fileExists(custom))
}

func TestCLI_Theme(t *testing.T) {
	configDir := t.TempDir()
	run := func(args ...string) string {
		cmd := newRootCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs(append([]string{"--config-dir", configDir}, args...))
		require.NoError(t, cmd.Execute())
		return out.String()
	}

	assert.Equal(t, "light\n", run("theme"))
	assert.Equal(t, "dark\n", run("theme", "dark"))
	assert.Equal(t, "dark\n", run("theme"))

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config-dir", configDir, "theme", "purple"})
	assert.Error(t, cmd.Execute())
}

func TestCLI_Version(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "markview dev")
}

func TestCLI_LsNotADirectory(t *testing.T) {
	file := createTestMarkdownFile(t, t.TempDir(), "x.md", testMarkdownSimple)
	_, err := runCLI(t, "ls", file)
	assert.ErrorIs(t, err, errNotDirectory)
}
