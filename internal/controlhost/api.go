package controlhost

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/folioview/folio/internal/manifest"
	"github.com/folioview/folio/internal/session"
	"github.com/folioview/folio/internal/validation"
	"github.com/folioview/folio/internal/version"
)

type apiError struct {
	Error string `json:"error"`
	// FailedPath is set for write failures that preserved a forensic file.
	FailedPath string `json:"failed_path,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Warn("failed to encode response", "error", err)
	}
}

func (h *Host) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"state":   h.controller.State().String(),
		"clients": h.controller.ClientCount(),
		"version": version.Get(),
	}
	if sess := h.controller.Session(); sess != nil {
		status["source"] = sess.SourceDir
		status["content_port"] = sess.Port()
		// Title and file order come straight off the raw manifest bytes; a
		// malformed manifest must not break the status endpoint.
		if raw, err := os.ReadFile(filepath.Join(sess.SourceDir, manifest.Filename)); err == nil {
			status["title"] = manifest.TitleOf(raw)
			status["files"] = manifest.FilesOf(raw)
		}
	}
	writeJSON(w, http.StatusOK, status)
}

// handleFolders lists navigable directories under the permitted root. The
// optional path query parameter is relative to the root; traversal outside
// it is rejected before any filesystem access.
func (h *Host) handleFolders(w http.ResponseWriter, r *http.Request) {
	rel := r.URL.Query().Get("path")
	resolved, err := validation.ResolveWithin(h.cfg.Source.Root, rel)
	if err != nil {
		h.writeError(w, err)
		return
	}

	entries, err := os.ReadDir(resolved)
	if err != nil {
		writeJSON(w, http.StatusNotFound, apiError{Error: "directory not readable"})
		return
	}

	folders := make([]string, 0)
	hasManifest := false
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() && !strings.HasPrefix(name, ".") {
			folders = append(folders, name)
		}
		if name == manifest.Filename {
			hasManifest = true
		}
	}
	sort.Strings(folders)

	writeJSON(w, http.StatusOK, map[string]any{
		"path":         filepath.ToSlash(rel),
		"folders":      folders,
		"has_manifest": hasManifest,
	})
}

type switchRequest struct {
	Path string `json:"path"`
}

func (h *Host) handleSwitch(w http.ResponseWriter, r *http.Request) {
	var req switchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid request body"})
		return
	}

	resolved, err := validation.ResolveWithin(h.cfg.Source.Root, req.Path)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.controller.SwitchFolder(r.Context(), resolved); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"switched": filepath.ToSlash(req.Path)})
}

type heartbeatRequest struct {
	ClientID string `json:"clientId"`
}

func (h *Host) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ClientID == "" {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "clientId required"})
		return
	}
	h.controller.ClientConnected(req.ClientID)
	writeJSON(w, http.StatusOK, map[string]any{"clients": h.controller.ClientCount()})
}

type manifestUpdateRequest struct {
	Changes map[string]any `json:"changes"`
}

// handleManifestUpdate mutates the live session's manifest through its
// serialized writer. The watcher picks the manifest change up and rebuilds.
func (h *Host) handleManifestUpdate(w http.ResponseWriter, r *http.Request) {
	sess := h.controller.Session()
	if sess == nil {
		writeJSON(w, http.StatusConflict, apiError{Error: "no active session"})
		return
	}

	var req manifestUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Changes) == 0 {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "changes required"})
		return
	}

	writer := h.writerFor(filepath.Join(sess.SourceDir, manifest.Filename))
	if err := writer.Update(req.Changes); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": true})
}

// writerFor returns the serialized writer for a manifest path, creating it
// on first use. One writer exists per path for the host's lifetime.
func (h *Host) writerFor(path string) *manifest.Writer {
	h.writersMu.Lock()
	defer h.writersMu.Unlock()
	if w, ok := h.writers[path]; ok {
		return w
	}
	w := manifest.NewWriter(path)
	h.writers[path] = w
	return w
}

// handleRebuild triggers a regeneration by hand; the escape hatch for
// degraded sessions whose watcher gave up.
func (h *Host) handleRebuild(w http.ResponseWriter, r *http.Request) {
	if h.controller.Session() == nil {
		writeJSON(w, http.StatusConflict, apiError{Error: "no active session"})
		return
	}
	h.controller.RequestRebuild()
	writeJSON(w, http.StatusAccepted, map[string]any{"rebuild": "scheduled"})
}

// writeError maps component errors onto API responses. Path security
// rejections expose no filesystem detail; write failures name the preserved
// .failed file.
func (h *Host) writeError(w http.ResponseWriter, err error) {
	var pathErr *validation.PathSecurityError
	if errors.As(err, &pathErr) {
		writeJSON(w, http.StatusBadRequest, apiError{Error: pathErr.Error()})
		return
	}
	var writeFailure *manifest.WriteFailure
	if errors.As(err, &writeFailure) {
		writeJSON(w, http.StatusInternalServerError, apiError{
			Error:      writeFailure.Error(),
			FailedPath: writeFailure.FailedPath,
		})
		return
	}
	var validationErr *manifest.ValidationError
	if errors.As(err, &validationErr) {
		writeJSON(w, http.StatusUnprocessableEntity, apiError{Error: validationErr.Error()})
		return
	}
	var startupErr *session.StartupError
	if errors.As(err, &startupErr) {
		writeJSON(w, http.StatusBadGateway, apiError{Error: startupErr.Error()})
		return
	}
	writeJSON(w, http.StatusInternalServerError, apiError{Error: err.Error()})
}
