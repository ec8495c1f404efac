// Package buildpath is the non-preview path: it assembles the entry document
// once and hands it to the typesetting engine. Unlike the preview session,
// renderer and stylesheet diagnostics are fatal here.
package buildpath

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/folioview/folio/internal/render"
	"github.com/folioview/folio/internal/scratch"
	"github.com/folioview/folio/internal/typeset"
)

// Options configures one build.
type Options struct {
	SourceDir string
	OutputDir string
	Renderer  render.Renderer
	Engine    typeset.Engine
}

// Run produces <output>/book.pdf from the source tree. Any regeneration
// diagnostic aborts the build.
func Run(ctx context.Context, opts Options) error {
	dir, err := scratch.New(opts.Renderer)
	if err != nil {
		return err
	}
	defer dir.Remove()

	if err := dir.Populate(opts.SourceDir); err != nil {
		return err
	}
	diags, err := dir.Regenerate()
	if err != nil {
		return err
	}
	if len(diags) > 0 {
		messages := make([]string, 0, len(diags))
		for _, diag := range diags {
			messages = append(messages, fmt.Sprintf("%s: %s", diag.Path, diag.Message))
		}
		return fmt.Errorf("build failed with %d diagnostic(s):\n%s",
			len(diags), strings.Join(messages, "\n"))
	}

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	entry := filepath.Join(dir.Path, scratch.EntryDocument)
	output := filepath.Join(opts.OutputDir, "book.pdf")
	if err := opts.Engine.Typeset(ctx, entry, output); err != nil {
		return err
	}
	log.Info("build complete", "output", output)
	return nil
}
