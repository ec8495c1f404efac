// Package validation provides path security checks for the control API,
// preventing directory traversal outside the permitted root.
package validation

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrPathSecurity marks requests rejected for escaping the permitted root.
// The wrapped message is client-safe and carries no filesystem detail.
var ErrPathSecurity = errors.New("path not permitted")

// PathSecurityError reports a rejected path input. The message exposed to
// clients never includes resolved filesystem paths.
type PathSecurityError struct {
	Input string
}

func (e *PathSecurityError) Error() string {
	return fmt.Sprintf("path %q is outside the permitted root", e.Input)
}

func (e *PathSecurityError) Unwrap() error { return ErrPathSecurity }

// ResolveWithin resolves a client-supplied relative path against root and
// returns the absolute path, rejecting any input that would land outside
// root. Traversal sequences are rejected before any filesystem access.
func ResolveWithin(root, input string) (string, error) {
	if strings.Contains(input, "..") {
		return "", &PathSecurityError{Input: input}
	}
	if filepath.IsAbs(input) {
		return "", &PathSecurityError{Input: input}
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving permitted root: %w", err)
	}

	resolved := filepath.Join(absRoot, filepath.FromSlash(input))
	rel, err := filepath.Rel(absRoot, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &PathSecurityError{Input: input}
	}
	return resolved, nil
}
