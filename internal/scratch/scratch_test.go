package scratch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folioview/folio/internal/render"
)

func newPopulated(t *testing.T, sourceFiles map[string]string) *Dir {
	t.Helper()
	sourceDir := t.TempDir()
	for name, content := range sourceFiles {
		path := filepath.Join(sourceDir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	d, err := New(render.Markdown{})
	require.NoError(t, err)
	t.Cleanup(d.Remove)
	require.NoError(t, d.Populate(sourceDir))
	return d
}

func TestNewGeneratesUniqueNames(t *testing.T) {
	a, err := New(render.Markdown{})
	require.NoError(t, err)
	defer a.Remove()
	b, err := New(render.Markdown{})
	require.NoError(t, err)
	defer b.Remove()

	assert.NotEqual(t, a.Path, b.Path)
	assert.Contains(t, filepath.Base(a.Path), "folio-preview-")
}

func TestPopulateCopiesRecognizedFilesOnly(t *testing.T) {
	d := newPopulated(t, map[string]string{
		"intro.md":                  "# Intro",
		"styles/main.css":           "body {}",
		"folio.config.json":         `{"title": "Book"}`,
		"book.pdf":                  "binary",
		".git/config":               "vcs",
		"node_modules/pkg/index.md": "dep",
	})

	assert.FileExists(t, filepath.Join(d.Path, "intro.md"))
	assert.FileExists(t, filepath.Join(d.Path, "styles", "main.css"))
	assert.FileExists(t, filepath.Join(d.Path, "folio.config.json"))
	assert.NoFileExists(t, filepath.Join(d.Path, "book.pdf"))
	assert.NoDirExists(t, filepath.Join(d.Path, ".git"))
	assert.NoDirExists(t, filepath.Join(d.Path, "node_modules"))

	// Preview runtime assets land in the scratch root.
	assert.FileExists(t, filepath.Join(d.Path, "livereload.js"))
	assert.FileExists(t, filepath.Join(d.Path, "preview.css"))
}

func TestRegenerateProducesSelfContainedEntryDocument(t *testing.T) {
	d := newPopulated(t, map[string]string{
		"intro.md":          "# Welcome",
		"main.css":          `@import "colors.css";` + "\nh1 { margin: 0; }",
		"colors.css":        "body { color: navy; }",
		"folio.config.json": `{"title": "Guide", "styles": ["main.css"], "files": ["intro.md"]}`,
	})

	diags, err := d.Regenerate()
	require.NoError(t, err)
	assert.Empty(t, diags)

	data, err := os.ReadFile(filepath.Join(d.Path, EntryDocument))
	require.NoError(t, err)
	page := string(data)
	assert.Contains(t, page, "<title>Guide</title>")
	assert.Contains(t, page, "color: navy", "imports are flattened and embedded")
	assert.NotContains(t, page, "@import")
	assert.Contains(t, page, "<h1>Welcome</h1>")
	assert.Contains(t, page, "livereload.js")
}

func TestPopulateRemovesDeletedSourceFiles(t *testing.T) {
	sourceDir := t.TempDir()
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(sourceDir, name), []byte(content), 0o644))
	}
	write("keep.md", "# Keep")
	write("gone.md", "# Gone")
	write("folio.config.json", `{"files": ["keep.md", "gone.md"]}`)

	d, err := New(render.Markdown{})
	require.NoError(t, err)
	t.Cleanup(d.Remove)
	require.NoError(t, d.Populate(sourceDir))
	_, err = d.Regenerate()
	require.NoError(t, err)

	// Delete a content file and sync again, the way a rebuild does.
	require.NoError(t, os.Remove(filepath.Join(sourceDir, "gone.md")))
	write("folio.config.json", `{"files": ["keep.md"]}`)
	require.NoError(t, d.Populate(sourceDir))
	diags, err := d.Regenerate()
	require.NoError(t, err)
	assert.Empty(t, diags)

	assert.NoFileExists(t, filepath.Join(d.Path, "gone.md"))
	data, err := os.ReadFile(filepath.Join(d.Path, EntryDocument))
	require.NoError(t, err)
	page := string(data)
	assert.Contains(t, page, "<h1>Keep</h1>")
	assert.NotContains(t, page, "Gone", "deleted content must leave the preview")

	// Generated files survive the sync.
	assert.FileExists(t, filepath.Join(d.Path, "livereload.js"))
	assert.FileExists(t, filepath.Join(d.Path, "preview.css"))
}

func TestRegenerateReportsMissingImportAsDiagnostic(t *testing.T) {
	d := newPopulated(t, map[string]string{
		"intro.md":          "# Welcome",
		"main.css":          `@import "ghost.css";`,
		"folio.config.json": `{"styles": ["main.css"], "files": ["intro.md"]}`,
	})

	diags, err := d.Regenerate()
	require.NoError(t, err, "missing imports are non-fatal in preview")
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Message, "ghost.css")
	assert.FileExists(t, filepath.Join(d.Path, EntryDocument))
}

func TestRegenerateIsIdempotent(t *testing.T) {
	d := newPopulated(t, map[string]string{
		"intro.md":          "# Welcome\n\nsome text",
		"folio.config.json": `{"title": "Guide"}`,
	})

	_, err := d.Regenerate()
	require.NoError(t, err)
	first, err := os.ReadFile(filepath.Join(d.Path, EntryDocument))
	require.NoError(t, err)

	_, err = d.Regenerate()
	require.NoError(t, err)
	second, err := os.ReadFile(filepath.Join(d.Path, EntryDocument))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRemoveIsIdempotent(t *testing.T) {
	d, err := New(render.Markdown{})
	require.NoError(t, err)

	d.Remove()
	assert.NoDirExists(t, d.Path)
	d.Remove() // second removal must not panic or log-level escalate
}

func TestScratchNameHasTimestampAndSuffix(t *testing.T) {
	d, err := New(render.Markdown{})
	require.NoError(t, err)
	defer d.Remove()

	parts := strings.Split(filepath.Base(d.Path), "-")
	require.GreaterOrEqual(t, len(parts), 4)
	assert.Len(t, parts[len(parts)-1], 8, "random suffix")
}
