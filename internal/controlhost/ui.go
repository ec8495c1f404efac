package controlhost

import (
	_ "embed"
	"net/http"
)

//go:embed ui.html
var controlPage []byte

// handleUI serves the embedded control page: folder browser, switch button,
// session status. Everything it does goes through the JSON API.
func (h *Host) handleUI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(controlPage)
}
