package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestWriterCreatesDocumentFromNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), Filename)
	w := NewWriter(path)
	defer w.Close()

	require.NoError(t, w.Update(map[string]any{"title": "My Book"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "My Book", gjson.GetBytes(data, "title").String())
	assert.NoError(t, ValidateBytes(data))
}

func TestWriterOrdering(t *testing.T) {
	path := filepath.Join(t.TempDir(), Filename)
	w := NewWriter(path)
	defer w.Close()

	// Issue three updates without awaiting between them; arrival order must
	// win, so the last enqueued title is the one on disk.
	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		title := fmt.Sprintf("%d", i+1)
		idx := i
		task := map[string]any{"title": title}
		// Enqueue synchronously to pin arrival order, await concurrently.
		done := w.enqueue(task)
		go func() {
			defer wg.Done()
			errs[idx] = <-done
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "3", gjson.GetBytes(data, "title").String())
	assert.NoError(t, ValidateBytes(data))
}

func TestWriterRejectsInvalidUpdateWithoutTouchingDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), Filename)
	w := NewWriter(path)
	defer w.Close()

	require.NoError(t, w.Update(map[string]any{"title": "Before"}))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	err = w.Update(map[string]any{"pageFormat": "tabloid"})
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after, "rejected update must leave the file byte-identical")
}

func TestWriterFailureDoesNotStallQueue(t *testing.T) {
	path := filepath.Join(t.TempDir(), Filename)
	w := NewWriter(path)
	defer w.Close()

	require.Error(t, w.Update(map[string]any{"pageFormat": "bogus"}))
	require.NoError(t, w.Update(map[string]any{"title": "Recovered"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Recovered", gjson.GetBytes(data, "title").String())
}

func TestWriterPreservesFailedTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, Filename)
	w := newWriter(path, func(tempPath, targetPath string) error {
		return errors.New("disk full")
	})
	defer w.Close()

	err := w.Update(map[string]any{"title": "Lost"})
	var failure *WriteFailure
	require.ErrorAs(t, err, &failure)
	assert.True(t, strings.HasSuffix(failure.FailedPath, ".failed"))
	assert.Contains(t, err.Error(), ".failed")

	// The forensic file exists and no orphan temp files remain.
	_, statErr := os.Stat(failure.FailedPath)
	require.NoError(t, statErr)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.False(t, strings.HasSuffix(entry.Name(), ".tmp"), "orphan temp file: %s", entry.Name())
	}
}

func TestLoadMissingManifestYieldsEmptyDocument(t *testing.T) {
	doc, err := Load(filepath.Join(t.TempDir(), Filename))
	require.NoError(t, err)
	assert.Equal(t, &Document{}, doc)
}

func TestRawHelpers(t *testing.T) {
	raw := []byte(`{"title": "Guide", "files": ["intro.md", "body.md"]}`)
	assert.Equal(t, "Guide", TitleOf(raw))
	assert.Equal(t, []string{"intro.md", "body.md"}, FilesOf(raw))
}
