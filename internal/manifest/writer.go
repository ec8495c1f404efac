package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/tidwall/sjson"
)

// ValidationError reports an update rejected by the manifest schema. The
// on-disk document is untouched.
type ValidationError struct {
	Reason error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("manifest update rejected: %v", e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Reason }

// WriteFailure reports an update that failed after its temporary file was
// written. The temp file is preserved under FailedPath for inspection; the
// on-disk document remains the last committed version.
type WriteFailure struct {
	FailedPath string
	Reason     error
}

func (e *WriteFailure) Error() string {
	return fmt.Sprintf("manifest write failed (preserved at %s): %v", e.FailedPath, e.Reason)
}

func (e *WriteFailure) Unwrap() error { return e.Reason }

// Writer serializes all mutations of one manifest file. Updates are queued
// on a single worker and execute strictly in arrival order; a failed update
// does not block or fail the ones queued behind it.
type Writer struct {
	path  string
	queue chan updateTask

	// commit is swappable so tests can force the final write step to fail.
	commit func(tempPath, targetPath string) error

	closeOnce sync.Once
	done      chan struct{}
}

type updateTask struct {
	changes map[string]any
	result  chan error
}

// NewWriter creates a writer for the manifest at path and starts its worker.
func NewWriter(path string) *Writer {
	return newWriter(path, os.Rename)
}

func newWriter(path string, commit func(tempPath, targetPath string) error) *Writer {
	w := &Writer{
		path:   path,
		queue:  make(chan updateTask, 16),
		commit: commit,
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Writer) run() {
	for task := range w.queue {
		task.result <- w.apply(task.changes)
	}
	close(w.done)
}

// Update enqueues a partial change set. Keys are manifest field paths in
// gjson syntax ("title", "files", "styles.-1"); values replace or extend the
// current document. The call blocks until its turn in the queue completes.
func (w *Writer) Update(changes map[string]any) error {
	return <-w.enqueue(changes)
}

// enqueue places the change set on the worker queue and returns the channel
// its result will arrive on. Arrival order is queue order.
func (w *Writer) enqueue(changes map[string]any) <-chan error {
	task := updateTask{changes: changes, result: make(chan error, 1)}
	w.queue <- task
	return task.result
}

// Close stops accepting updates and waits for queued ones to drain.
func (w *Writer) Close() {
	w.closeOnce.Do(func() { close(w.queue) })
	<-w.done
}

func (w *Writer) apply(changes map[string]any) error {
	current, err := os.ReadFile(w.path)
	if os.IsNotExist(err) {
		current = []byte("{}")
	} else if err != nil {
		return fmt.Errorf("reading manifest: %w", err)
	}

	merged, err := mergeChanges(current, changes)
	if err != nil {
		return &ValidationError{Reason: err}
	}
	if err := ValidateBytes(merged); err != nil {
		return &ValidationError{Reason: err}
	}

	tempPath := fmt.Sprintf("%s.%s.tmp", w.path, uuid.NewString())
	if err := os.WriteFile(tempPath, merged, 0o644); err != nil {
		return fmt.Errorf("writing manifest temp file: %w", err)
	}

	if err := w.commit(tempPath, w.path); err != nil {
		failedPath := w.path + ".failed"
		if renameErr := os.Rename(tempPath, failedPath); renameErr != nil {
			failedPath = tempPath
		}
		return &WriteFailure{FailedPath: failedPath, Reason: err}
	}
	return nil
}

// mergeChanges applies the partial changes to the raw document and re-indents
// it so identical inputs always produce byte-identical output.
func mergeChanges(current []byte, changes map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(changes))
	for key := range changes {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	merged := current
	var err error
	for _, key := range keys {
		merged, err = sjson.SetBytes(merged, key, changes[key])
		if err != nil {
			return nil, fmt.Errorf("merging field %q: %w", key, err)
		}
	}

	var indented bytes.Buffer
	if err := json.Indent(&indented, merged, "", "  "); err != nil {
		return nil, fmt.Errorf("formatting manifest: %w", err)
	}
	indented.WriteByte('\n')
	return indented.Bytes(), nil
}

// WriteInitial creates a fresh manifest at path from doc. Used by project
// scaffolding only; live mutations go through Update.
func WriteInitial(path string, doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	data = append(data, '\n')
	if err := ValidateBytes(data); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating manifest directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
