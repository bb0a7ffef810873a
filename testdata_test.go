package main

// Markdown fixtures shared by the tests
const (
	testMarkdownSimple = "# Test"
	testMarkdownHi     = "# Hi"
	testMarkdownHeader = "# Hello World\n\nThis is a **test**."

	// GFM features
	testMarkdownTable         = "| A | B |\n|---|---|\n| 1 | 2 |"
	testMarkdownCode          = "```go\nfunc main() {}\n```"
	testMarkdownStrikethrough = "~~deleted~~"
	testMarkdownTaskList      = "- [x] Done\n- [ ] Todo"
	testMarkdownAutolink      = "https://example.com"

	testMarkdownModified = "# Modified Content"

	testMarkdownComplex = `# Complex Document

This has:
- Lists
- **Bold** and *italic*
- [Links](https://example.com)

` + "```go\nfunc test() {}\n```"

	// Paths a client must never be able to read
	testPathTraversal = "../../../etc/passwd"
	testPathEtc       = "/etc/passwd"
)
