package main

import (
	"bytes"
	"fmt"
	"html/template"
	"path/filepath"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

const (
	lightCodeStyle = "github"
	darkCodeStyle  = "monokai"

	// Stylesheet referenced by exported documents
	exportMarkdownCSS = "https://cdnjs.cloudflare.com/ajax/libs/github-markdown-css/5.4.0/github-markdown-light.min.css"
)

// renderFunc converts Markdown source to an HTML fragment
type renderFunc func(source []byte) (string, error)

// newMarkdownRenderer creates a configured goldmark renderer
func newMarkdownRenderer() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Typographer,
			highlighting.NewHighlighting(
				highlighting.WithFormatOptions(
					chromahtml.WithClasses(true),
				),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithUnsafe(),
		),
	)
}

// renderMarkdown is the default renderFunc. Each call builds its own goldmark
// instance so concurrent renders share nothing.
func renderMarkdown(source []byte) (string, error) {
	var buf bytes.Buffer
	if err := newMarkdownRenderer().Convert(source, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// chromaCSS returns the class-based stylesheet for a chroma style
func chromaCSS(styleName string) (string, error) {
	style := styles.Get(styleName)
	if style == nil {
		style = styles.Fallback
	}
	return writeChromaCSS(style)
}

func writeChromaCSS(style *chroma.Style) (string, error) {
	var buf bytes.Buffer
	formatter := chromahtml.New(chromahtml.WithClasses(true))
	if err := formatter.WriteCSS(&buf, style); err != nil {
		return "", fmt.Errorf("write %s stylesheet: %w", style.Name, err)
	}
	return buf.String(), nil
}

var exportTmpl = template.Must(template.New("export").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <link rel="stylesheet" href="{{.MarkdownCSS}}">
    <style>
        body { box-sizing: border-box; min-width: 200px; max-width: 980px; margin: 0 auto; padding: 45px; }
{{.CodeCSS}}
    </style>
</head>
<body class="markdown-body">
{{.Content}}
</body>
</html>
`))

type exportTemplateData struct {
	Title       string
	MarkdownCSS string
	CodeCSS     template.CSS
	Content     template.HTML
}

// exportHTML renders source into a standalone HTML document titled name
func exportHTML(name string, source []byte, render renderFunc) ([]byte, error) {
	content, err := render(source)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", name, err)
	}
	codeCSS, err := chromaCSS(lightCodeStyle)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	err = exportTmpl.Execute(&buf, exportTemplateData{
		Title:       name,
		MarkdownCSS: exportMarkdownCSS,
		CodeCSS:     template.CSS(codeCSS),
		Content:     template.HTML(content),
	})
	if err != nil {
		return nil, fmt.Errorf("export template: %w", err)
	}
	return buf.Bytes(), nil
}

// exportFileName maps notes.md to notes.html
func exportFileName(name string) string {
	base := filepath.Base(name)
	if strings.HasSuffix(strings.ToLower(base), markdownExt) {
		base = base[:len(base)-len(markdownExt)]
	}
	return base + ".html"
}
