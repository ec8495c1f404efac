// Package scratch maintains the disposable working copy a preview session
// serves from: a uniquely named directory holding the recognized source
// files, the preview runtime assets, and the generated entry document.
package scratch

import (
	"embed"
	"fmt"
	"html"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/folioview/folio/internal/cssimport"
	"github.com/folioview/folio/internal/manifest"
	"github.com/folioview/folio/internal/render"
)

//go:embed assets/*
var runtimeAssets embed.FS

// EntryDocument is the generated self-contained preview page.
const EntryDocument = "index.html"

// copiedExtensions are the source file types a scratch copy recognizes.
var copiedExtensions = map[string]bool{".md": true, ".css": true, ".json": true}

// skippedDirs are version-control and dependency directories never copied.
var skippedDirs = map[string]bool{"node_modules": true, "dist": true, "output": true}

// runtimeAssetNames are the preview runtime files placed at the scratch root;
// they survive pruning because they have no source counterpart.
var runtimeAssetNames = func() map[string]bool {
	names := make(map[string]bool)
	entries, err := fs.ReadDir(runtimeAssets, "assets")
	if err != nil {
		panic(fmt.Sprintf("embedded runtime assets unreadable: %v", err))
	}
	for _, entry := range entries {
		names[entry.Name()] = true
	}
	return names
}()

// Dir is one session's scratch directory.
type Dir struct {
	Path     string
	renderer render.Renderer
}

// New creates a uniquely named scratch directory under the system temp dir.
// The name carries a timestamp plus random suffix so concurrent sessions on
// one machine never collide.
func New(renderer render.Renderer) (*Dir, error) {
	name := fmt.Sprintf("folio-preview-%s-%s",
		time.Now().UTC().Format("20060102T150405"), uuid.NewString()[:8])
	path := filepath.Join(os.TempDir(), name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating scratch directory: %w", err)
	}
	return &Dir{Path: path, renderer: renderer}, nil
}

// Populate synchronizes the scratch directory with the source tree: the
// recognized source files are copied in, scratch copies whose source
// counterpart vanished are removed, and the preview runtime assets are
// placed at the root. After Populate the copied tree mirrors the current
// source tree exactly.
func (d *Dir) Populate(sourceDir string) error {
	copied := make(map[string]bool)
	err := filepath.Walk(sourceDir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			base := filepath.Base(path)
			if path != sourceDir && (strings.HasPrefix(base, ".") || skippedDirs[base]) {
				return filepath.SkipDir
			}
			return nil
		}
		if !copiedExtensions[filepath.Ext(path)] {
			return nil
		}
		rel, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}
		copied[rel] = true
		dest := filepath.Join(d.Path, rel)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(dest, data, 0o644)
	})
	if err != nil {
		return fmt.Errorf("copying source tree: %w", err)
	}

	if err := d.prune(copied); err != nil {
		return fmt.Errorf("pruning deleted source files: %w", err)
	}

	return fs.WalkDir(runtimeAssets, "assets", func(path string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return err
		}
		data, err := runtimeAssets.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(d.Path, filepath.Base(path)), data, 0o644)
	})
}

// prune removes scratch copies whose source counterpart no longer exists.
// The entry document and the runtime assets are generated, not copied, and
// are left alone.
func (d *Dir) prune(copied map[string]bool) error {
	return filepath.Walk(d.Path, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.Path, path)
		if err != nil {
			return err
		}
		if rel == EntryDocument || runtimeAssetNames[rel] {
			return nil
		}
		if !copiedExtensions[filepath.Ext(path)] {
			return nil
		}
		if !copied[rel] {
			return os.Remove(path)
		}
		return nil
	})
}

// Regenerate produces the entry document from the current manifest and the
// copied source tree. Identical inputs yield byte-identical output. The
// returned diagnostics are non-fatal (missing content files, unresolvable
// stylesheet imports); err reports failures that prevented generation.
func (d *Dir) Regenerate() ([]render.Diagnostic, error) {
	doc, err := manifest.Load(filepath.Join(d.Path, manifest.Filename))
	if err != nil {
		return nil, err
	}

	body, diags, err := d.renderer.Render(d.Path, doc)
	if err != nil {
		return diags, err
	}

	styles, styleDiags := d.flattenStyles(doc)
	diags = append(diags, styleDiags...)

	title := doc.Title
	if title == "" {
		title = "folio preview"
	}

	var page strings.Builder
	page.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&page, "<title>%s</title>\n", html.EscapeString(title))
	page.WriteString("<link rel=\"stylesheet\" href=\"preview.css\">\n")
	if styles != "" {
		fmt.Fprintf(&page, "<style>\n%s\n</style>\n", styles)
	}
	page.WriteString("</head>\n<body>\n")
	page.WriteString(body)
	page.WriteString("\n<script src=\"livereload.js\"></script>\n</body>\n</html>\n")

	if err := os.WriteFile(filepath.Join(d.Path, EntryDocument), []byte(page.String()), 0o644); err != nil {
		return diags, fmt.Errorf("writing entry document: %w", err)
	}
	return diags, nil
}

func (d *Dir) flattenStyles(doc *manifest.Document) (string, []render.Diagnostic) {
	var flattened []string
	var diags []render.Diagnostic
	for _, name := range doc.Styles {
		path := filepath.Join(d.Path, filepath.FromSlash(name))
		data, err := os.ReadFile(path)
		if err != nil {
			diags = append(diags, render.Diagnostic{Path: name, Message: "stylesheet not found"})
			continue
		}
		result := cssimport.Flatten(string(data), path)
		for _, warning := range result.Warnings {
			diags = append(diags, render.Diagnostic{Path: name, Message: warning})
		}
		flattened = append(flattened, strings.TrimRight(result.Flattened, "\n"))
	}
	return strings.Join(flattened, "\n"), diags
}

// Remove deletes the scratch directory. Removing an already-removed
// directory is a no-op; removal failures are logged, not returned.
func (d *Dir) Remove() {
	if err := os.RemoveAll(d.Path); err != nil {
		log.Warn("failed to remove scratch directory", "path", d.Path, "error", err)
	}
}
