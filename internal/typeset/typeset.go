// Package typeset invokes the external typesetting engine that turns the
// generated entry document into a PDF. Only the build path uses it; the
// preview session never typesets.
package typeset

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/charmbracelet/log"
)

// Engine renders one entry document to a PDF at outputPath.
type Engine interface {
	Typeset(ctx context.Context, entryPath, outputPath string) error
}

// Command runs a configured external command, appending the entry document
// path and output path as the final two arguments.
type Command struct {
	Argv []string
}

func (c Command) Typeset(ctx context.Context, entryPath, outputPath string) error {
	if len(c.Argv) == 0 {
		return fmt.Errorf("no typeset command configured")
	}
	args := append(append([]string{}, c.Argv[1:]...), entryPath, outputPath)
	cmd := exec.CommandContext(ctx, c.Argv[0], args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		log.Error("typeset command failed", "command", c.Argv[0], "error", err)
		return fmt.Errorf("typeset command %s: %w: %s", c.Argv[0], err, out)
	}
	log.Info("typeset complete", "output", outputPath)
	return nil
}
