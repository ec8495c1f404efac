package buildpath

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folioview/folio/internal/render"
	"github.com/folioview/folio/internal/typeset"
)

type recordingEngine struct {
	entryPath  string
	outputPath string
}

func (e *recordingEngine) Typeset(_ context.Context, entryPath, outputPath string) error {
	e.entryPath = entryPath
	e.outputPath = outputPath
	return os.WriteFile(outputPath, []byte("%PDF"), 0o644)
}

func writeSource(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestRunTypesetsCleanSource(t *testing.T) {
	source := writeSource(t, map[string]string{
		"intro.md":          "# Hello",
		"folio.config.json": `{"title": "Book", "files": ["intro.md"]}`,
	})
	output := t.TempDir()

	engine := &recordingEngine{}
	err := Run(context.Background(), Options{
		SourceDir: source,
		OutputDir: output,
		Renderer:  render.Markdown{},
		Engine:    engine,
	})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(output, "book.pdf"))
	assert.Contains(t, engine.entryPath, "index.html")
}

func TestRunFailsFatallyOnMissingImport(t *testing.T) {
	// The preview path serves this same input with a non-fatal diagnostic;
	// the build path must refuse it.
	source := writeSource(t, map[string]string{
		"intro.md":          "# Hello",
		"main.css":          `@import "ghost.css";`,
		"folio.config.json": `{"styles": ["main.css"], "files": ["intro.md"]}`,
	})

	engine := &recordingEngine{}
	err := Run(context.Background(), Options{
		SourceDir: source,
		OutputDir: t.TempDir(),
		Renderer:  render.Markdown{},
		Engine:    engine,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost.css")
	assert.Empty(t, engine.entryPath, "typesetter must not run on a failed build")
}

func TestRunCommandEngineMissingCommand(t *testing.T) {
	err := typeset.Command{}.Typeset(context.Background(), "in.html", "out.pdf")
	assert.Error(t, err)
}
