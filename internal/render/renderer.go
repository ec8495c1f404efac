// Package render converts the ordered source content files into the HTML
// body of the entry document. The Renderer interface is the seam the preview
// and build paths share; the built-in Markdown renderer covers the content
// grammar folio recognizes.
package render

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/folioview/folio/internal/manifest"
)

// Diagnostic is a non-fatal problem found while rendering. The preview path
// reports diagnostics to connected clients; the build path fails on them.
type Diagnostic struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Renderer turns the source tree plus manifest into HTML.
type Renderer interface {
	Render(sourceDir string, doc *manifest.Document) (string, []Diagnostic, error)
}

// Markdown is the built-in renderer for .md content files.
type Markdown struct{}

// Render converts each content file in manifest order into HTML sections.
// When the manifest lists no files, all .md files in sourceDir are rendered
// in name order. Missing listed files produce a diagnostic, not an error.
func (Markdown) Render(sourceDir string, doc *manifest.Document) (string, []Diagnostic, error) {
	files := doc.Files
	if len(files) == 0 {
		entries, err := os.ReadDir(sourceDir)
		if err != nil {
			return "", nil, fmt.Errorf("reading source directory: %w", err)
		}
		for _, entry := range entries {
			if !entry.IsDir() && filepath.Ext(entry.Name()) == ".md" {
				files = append(files, entry.Name())
			}
		}
		sort.Strings(files)
	}

	var sections []string
	var diags []Diagnostic
	for _, name := range files {
		data, err := os.ReadFile(filepath.Join(sourceDir, filepath.FromSlash(name)))
		if err != nil {
			diags = append(diags, Diagnostic{Path: name, Message: "content file not found"})
			continue
		}
		sections = append(sections, fmt.Sprintf("<section data-source=%q>\n%s</section>", name, toHTML(string(data))))
	}
	return strings.Join(sections, "\n"), diags, nil
}

// toHTML performs the Markdown-to-HTML conversion folio supports: ATX
// headings, fenced code blocks, unordered lists, and paragraphs. Identical
// input yields byte-identical output.
func toHTML(src string) string {
	var out strings.Builder
	lines := strings.Split(strings.ReplaceAll(src, "\r\n", "\n"), "\n")

	var paragraph []string
	var inList, inCode bool

	flushParagraph := func() {
		if len(paragraph) > 0 {
			out.WriteString("<p>" + html.EscapeString(strings.Join(paragraph, " ")) + "</p>\n")
			paragraph = nil
		}
	}
	closeList := func() {
		if inList {
			out.WriteString("</ul>\n")
			inList = false
		}
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") {
			flushParagraph()
			closeList()
			if inCode {
				out.WriteString("</code></pre>\n")
			} else {
				out.WriteString("<pre><code>")
			}
			inCode = !inCode
			continue
		}
		if inCode {
			out.WriteString(html.EscapeString(line) + "\n")
			continue
		}

		switch {
		case trimmed == "":
			flushParagraph()
			closeList()
		case strings.HasPrefix(trimmed, "#"):
			flushParagraph()
			closeList()
			level := 0
			for level < len(trimmed) && trimmed[level] == '#' && level < 6 {
				level++
			}
			text := strings.TrimSpace(trimmed[level:])
			out.WriteString(fmt.Sprintf("<h%d>%s</h%d>\n", level, html.EscapeString(text), level))
		case strings.HasPrefix(trimmed, "- "):
			flushParagraph()
			if !inList {
				out.WriteString("<ul>\n")
				inList = true
			}
			out.WriteString("<li>" + html.EscapeString(trimmed[2:]) + "</li>\n")
		default:
			closeList()
			paragraph = append(paragraph, trimmed)
		}
	}
	flushParagraph()
	closeList()
	if inCode {
		out.WriteString("</code></pre>\n")
	}
	return out.String()
}
