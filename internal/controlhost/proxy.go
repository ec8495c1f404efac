package controlhost

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
)

// contentWait bounds how long a proxied request waits for the content
// server to come back during a folder switch before answering 503.
var contentWait = 2 * time.Second

// awaitContent resolves the content server address, queueing briefly while
// a restart is in flight.
func (h *Host) awaitContent(ctx context.Context) (string, bool) {
	deadline := time.Now().Add(contentWait)
	for {
		if addr, ok := h.controller.ContentAddr(); ok {
			return addr, true
		}
		if ctx.Err() != nil || time.Now().After(deadline) {
			return "", false
		}
		select {
		case <-ctx.Done():
			return "", false
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// handleProxy forwards plain HTTP requests to the content server. During a
// restart window requests wait briefly, then receive a retry-safe response
// rather than hanging.
func (h *Host) handleProxy(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.awaitContent(r.Context())
	if !ok {
		h.writeStarting(w)
		return
	}

	target := &url.URL{Scheme: "http", Host: addr}
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Debug("proxy error", "path", r.URL.Path, "error", err)
		h.writeStarting(w)
	}
	proxy.ServeHTTP(w, r)
}

// writeStarting is the bounded, retry-safe answer while no content server
// is reachable.
func (h *Host) writeStarting(w http.ResponseWriter) {
	w.Header().Set("Retry-After", "1")
	writeJSON(w, http.StatusServiceUnavailable, apiError{Error: "preview is starting, retry shortly"})
}

// handleReloadBridge relays the live-reload channel at the transport level:
// the upgrade request is written through verbatim and bytes are copied in
// both directions until either side closes. The control host never parses
// channel payloads.
func (h *Host) handleReloadBridge(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.awaitContent(r.Context())
	if !ok {
		h.writeStarting(w)
		return
	}

	backend, err := net.DialTimeout("tcp", addr, contentWait)
	if err != nil {
		log.Warn("live-reload bridge dial failed", "error", err)
		h.writeStarting(w)
		return
	}

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		backend.Close()
		http.Error(w, "upgrade not supported", http.StatusInternalServerError)
		return
	}
	client, clientBuf, err := hijacker.Hijack()
	if err != nil {
		backend.Close()
		log.Warn("live-reload bridge hijack failed", "error", err)
		return
	}

	if err := r.Write(backend); err != nil {
		client.Close()
		backend.Close()
		return
	}

	go relay(backend, clientBuf.Reader, client)
	go relay(client, backend, backend)
}

// relay copies one direction of the bridge, closing both ends when it stops.
func relay(dst net.Conn, src io.Reader, other net.Conn) {
	_, _ = io.Copy(dst, src)
	dst.Close()
	other.Close()
}
