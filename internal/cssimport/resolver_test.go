package cssimport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSS(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFlattenInlinesLocalImports(t *testing.T) {
	dir := t.TempDir()
	writeCSS(t, dir, "colors.css", "body { color: navy; }")
	main := writeCSS(t, dir, "main.css", `@import "colors.css";`+"\nh1 { margin: 0; }")

	result := Flatten(`@import "colors.css";`+"\nh1 { margin: 0; }", main)
	assert.Empty(t, result.Warnings)
	assert.Contains(t, result.Flattened, "color: navy")
	assert.NotContains(t, result.Flattened, "@import")
}

func TestFlattenNestedImports(t *testing.T) {
	dir := t.TempDir()
	writeCSS(t, dir, "base.css", "p { line-height: 1.4; }")
	writeCSS(t, dir, "theme.css", `@import url(base.css);`)
	main := writeCSS(t, dir, "main.css", `@import "theme.css";`)

	result := Flatten(`@import "theme.css";`, main)
	assert.Empty(t, result.Warnings)
	assert.Contains(t, result.Flattened, "line-height")
}

func TestFlattenMissingImportWarnsAndContinues(t *testing.T) {
	dir := t.TempDir()
	main := writeCSS(t, dir, "main.css", `@import "ghost.css";`+"\nh1 { margin: 0; }")

	result := Flatten(`@import "ghost.css";`+"\nh1 { margin: 0; }", main)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "ghost.css")
	assert.Contains(t, result.Flattened, "h1 { margin: 0; }")
}

func TestFlattenBreaksImportCycles(t *testing.T) {
	dir := t.TempDir()
	writeCSS(t, dir, "a.css", `@import "b.css";`+"\n.a {}")
	writeCSS(t, dir, "b.css", `@import "a.css";`+"\n.b {}")
	main := writeCSS(t, dir, "main.css", `@import "a.css";`)

	result := Flatten(`@import "a.css";`, main)
	assert.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Flattened, ".a {}")
}

func TestFlattenLeavesRemoteImportsAlone(t *testing.T) {
	main := filepath.Join(t.TempDir(), "main.css")
	text := `@import url(https://fonts.example/serif.css);`
	result := Flatten(text, main)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, text, result.Flattened)
}
