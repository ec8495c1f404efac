// Package cssimport flattens @import statements in stylesheets so the
// generated entry document can embed one self-contained style block.
package cssimport

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// importPattern matches @import "x.css";, @import 'x.css'; and
// @import url(x.css); forms. External (http/https) imports are left alone.
var importPattern = regexp.MustCompile(`@import\s+(?:url\(\s*)?["']?([^"')\s;]+)["']?\s*\)?\s*;`)

// Result carries the flattened stylesheet and any diagnostics produced while
// resolving imports. Warnings are non-fatal; the preview path reports them
// and keeps going, the build path treats them as errors.
type Result struct {
	Flattened string
	Warnings  []string
}

// Flatten inlines every local @import reachable from the stylesheet text,
// resolving relative references against the originating path. A missing
// import target produces a warning naming the target and an empty inline;
// an import cycle is broken with a warning.
func Flatten(text, originPath string) Result {
	r := &resolver{visited: make(map[string]bool)}
	flattened := r.flatten(text, originPath)
	return Result{Flattened: flattened, Warnings: r.warnings}
}

type resolver struct {
	visited  map[string]bool
	warnings []string
}

func (r *resolver) flatten(text, originPath string) string {
	return importPattern.ReplaceAllStringFunc(text, func(match string) string {
		target := importPattern.FindStringSubmatch(match)[1]
		if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
			return match
		}

		resolved := filepath.Join(filepath.Dir(originPath), filepath.FromSlash(target))
		if r.visited[resolved] {
			r.warnings = append(r.warnings, fmt.Sprintf("import cycle at %s, skipping", target))
			return ""
		}

		data, err := os.ReadFile(resolved)
		if err != nil {
			r.warnings = append(r.warnings, fmt.Sprintf("missing import %s", target))
			return ""
		}

		r.visited[resolved] = true
		inlined := r.flatten(string(data), resolved)
		delete(r.visited, resolved)
		return inlined
	})
}
