// Package controlhost is the externally reachable endpoint of a preview:
// it serves the control UI and JSON API under /api/, bridges the live-reload
// channel to the content server without parsing its payloads, and
// reverse-proxies every other request to the content server.
package controlhost

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/folioview/folio/internal/config"
	"github.com/folioview/folio/internal/contentserver"
	"github.com/folioview/folio/internal/manifest"
	"github.com/folioview/folio/internal/session"
)

// APIPrefix is the path prefix handled locally by the control host.
const APIPrefix = "/api/"

// Host is the control host process: one externally visible HTTP server.
type Host struct {
	cfg        *config.Config
	controller *session.Controller

	httpServer *http.Server
	listener   net.Listener

	// writers serialize manifest mutations, one per manifest path; entries
	// outlive folder switches so queued updates keep their ordering.
	writersMu sync.Mutex
	writers   map[string]*manifest.Writer

	shutdownOnce sync.Once
}

// New creates a control host in front of the given controller.
func New(cfg *config.Config, controller *session.Controller) *Host {
	h := &Host{cfg: cfg, controller: controller, writers: make(map[string]*manifest.Writer)}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", h.handleStatus)
	mux.HandleFunc("GET /api/folders", h.handleFolders)
	mux.HandleFunc("POST /api/switch", h.handleSwitch)
	mux.HandleFunc("POST /api/heartbeat", h.handleHeartbeat)
	mux.HandleFunc("POST /api/manifest", h.handleManifestUpdate)
	mux.HandleFunc("POST /api/rebuild", h.handleRebuild)
	mux.HandleFunc("GET /api/ui", h.handleUI)
	mux.HandleFunc(contentserver.ReloadPath, h.handleReloadBridge)
	mux.HandleFunc("/", h.handleProxy)

	h.httpServer = &http.Server{Handler: h.logRequests(mux)}
	return h
}

// Start binds the configured control port and serves until ctx is done or
// Shutdown is called. The bound port survives folder switches.
func (h *Host) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", h.cfg.Server.Host, h.cfg.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding control port %s: %w", addr, err)
	}
	h.listener = listener
	log.Info("control host listening", "addr", addr)

	go func() {
		<-ctx.Done()
		_ = h.Shutdown(context.Background())
	}()

	if err := h.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("control host: %w", err)
	}
	return nil
}

// Addr returns the bound listener address. Valid after Start.
func (h *Host) Addr() string {
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}

// Shutdown stops the control host. Safe to call more than once.
func (h *Host) Shutdown(ctx context.Context) error {
	var err error
	h.shutdownOnce.Do(func() {
		err = h.httpServer.Shutdown(ctx)
	})
	return err
}

func (h *Host) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		if strings.HasPrefix(r.URL.Path, APIPrefix) {
			log.Debug("api request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
		}
	})
}
