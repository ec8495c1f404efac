package render

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folioview/folio/internal/manifest"
)

func TestRenderFollowsManifestOrder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.md"), []byte("# Second"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("# First"), 0o644))

	doc := &manifest.Document{Files: []string{"b.md", "a.md"}}
	html, diags, err := Markdown{}.Render(dir, doc)
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.Less(t, strings.Index(html, "Second"), strings.Index(html, "First"))
}

func TestRenderMissingListedFileIsDiagnosticNotError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("hello"), 0o644))

	doc := &manifest.Document{Files: []string{"a.md", "gone.md"}}
	html, diags, err := Markdown{}.Render(dir, doc)
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, "gone.md", diags[0].Path)
	assert.Contains(t, html, "hello")
}

func TestRenderDefaultsToNameOrder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "02.md"), []byte("two"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "01.md"), []byte("one"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "style.css"), []byte("p{}"), 0o644))

	html, diags, err := Markdown{}.Render(dir, &manifest.Document{})
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.Less(t, strings.Index(html, "one"), strings.Index(html, "two"))
	assert.NotContains(t, html, "p{}")
}

func TestRenderIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	src := "# Title\n\npara one\npara one continued\n\n- item\n\n```\ncode <b>\n```\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte(src), 0o644))

	first, _, err := Markdown{}.Render(dir, &manifest.Document{})
	require.NoError(t, err)
	second, _, err := Markdown{}.Render(dir, &manifest.Document{})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestToHTMLEscapesContent(t *testing.T) {
	html := toHTML("# <script>\n\nx < y & z")
	assert.Contains(t, html, "&lt;script&gt;")
	assert.Contains(t, html, "x &lt; y &amp; z")
	assert.NotContains(t, html, "<script>")
}
