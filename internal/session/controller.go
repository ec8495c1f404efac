package session

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/folioview/folio/internal/config"
	"github.com/folioview/folio/internal/contentserver"
	"github.com/folioview/folio/internal/render"
	"github.com/folioview/folio/internal/scratch"
	"github.com/folioview/folio/internal/watcher"
)

// Controller orchestrates the single live session: start, folder switch,
// shutdown, and the client-presence-driven auto-shutdown timer.
type Controller struct {
	cfg      *config.Config
	renderer render.Renderer

	mu      sync.Mutex
	session *Session
	state   State
	// generation increments on every teardown; in-flight rebuilds compare
	// against it and discard superseded results.
	generation int

	rebuildMu    sync.Mutex
	rebuildState rebuildState
	// rebuildDone is non-nil while a rebuild loop is running and closes when
	// it exits; guarded by rebuildMu.
	rebuildDone chan struct{}
	// rebuildRun executes one rebuild; tests substitute it to pin timing.
	rebuildRun func()
	// newWatcher constructs the file watcher; tests substitute it to force
	// degraded startup.
	newWatcher func(debounce time.Duration) (*watcher.FileWatcher, error)

	presence *presence

	watcherErrMu  sync.Mutex
	watcherErrors int

	// exit runs after an orderly auto-shutdown; the default terminates the
	// process. Tests substitute it.
	exit func()
}

// NewController creates a controller. No session is live until Start.
func NewController(cfg *config.Config, renderer render.Renderer) *Controller {
	c := &Controller{
		cfg:      cfg,
		renderer: renderer,
		state:    StateStopped,
		exit:     func() { os.Exit(0) },
	}
	c.rebuildRun = c.runOneRebuild
	c.newWatcher = watcher.New
	c.presence = newPresence(cfg.Preview, c.autoShutdown)
	return c
}

// SetExitFunc replaces the process-exit hook run after auto-shutdown.
func (c *Controller) SetExitFunc(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exit = fn
}

// State reports the controller's lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns the live session, or nil when stopped.
func (c *Controller) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// ContentAddr returns the content server address for proxying. ok is false
// while no session is serving (stopped or mid-switch).
func (c *Controller) ContentAddr() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || (c.state != StateRunning && c.state != StateDegraded) {
		return "", false
	}
	return c.session.Content.Addr(), true
}

// Start provisions a session for sourceDir: scratch directory, initial
// regeneration, content server, file watcher. Failures are fatal, clean up
// everything provisioned so far, and propagate as *StartupError.
func (c *Controller) Start(ctx context.Context, sourceDir string) error {
	c.mu.Lock()
	if c.session != nil {
		c.mu.Unlock()
		return &StartupError{Stage: "precondition", Err: fmt.Errorf("a session is already live")}
	}
	c.state = StateStarting
	c.mu.Unlock()

	sess, err := c.provision(ctx, sourceDir)
	if err != nil {
		c.mu.Lock()
		c.state = StateStopped
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.session = sess
	// startWatcher may already have degraded the session; only a still-
	// starting one becomes running.
	if c.state == StateStarting {
		c.state = StateRunning
	}
	c.mu.Unlock()

	c.presence.start(ctx)
	log.Info("session started", "source", sourceDir, "port", sess.Port(), "scratch", sess.Scratch.Path)
	return nil
}

// provision builds a complete session or returns a StartupError with all
// partial resources released.
func (c *Controller) provision(ctx context.Context, sourceDir string) (*Session, error) {
	info, err := os.Stat(sourceDir)
	if err != nil || !info.IsDir() {
		if err == nil {
			err = fmt.Errorf("%s is not a directory", sourceDir)
		}
		return nil, &StartupError{Stage: "source directory", Err: err}
	}

	dir, err := scratch.New(c.renderer)
	if err != nil {
		return nil, &StartupError{Stage: "scratch directory", Err: err}
	}
	if err := dir.Populate(sourceDir); err != nil {
		dir.Remove()
		return nil, &StartupError{Stage: "source copy", Err: err}
	}
	diags, err := dir.Regenerate()
	if err != nil {
		dir.Remove()
		return nil, &StartupError{Stage: "initial regeneration", Err: err}
	}
	for _, diag := range diags {
		log.Warn("regeneration diagnostic", "path", diag.Path, "message", diag.Message)
	}

	content := contentserver.New(dir.Path)
	if err := content.Start(ctx, c.cfg.Preview.StartupTimeout); err != nil {
		dir.Remove()
		return nil, &StartupError{Stage: "content server", Err: err}
	}

	sess := &Session{SourceDir: sourceDir, Scratch: dir, Content: content}
	c.startWatcher(ctx, sess)
	return sess, nil
}

// startWatcher attaches a file watcher to the session. Watcher failures
// never kill the session; they degrade it instead.
func (c *Controller) startWatcher(ctx context.Context, sess *Session) {
	fw, err := c.newWatcher(c.cfg.Preview.Debounce)
	if err != nil {
		log.Error("file watcher unavailable, session degraded", "error", err)
		c.setDegraded()
		return
	}

	fw.AddFilter(watcher.ContentFilter)
	fw.AddFilter(watcher.NoDotDirFilter)
	excluded := append([]string{sess.Scratch.Path}, c.cfg.Source.IgnoreDirs...)
	fw.AddFilter(watcher.ExcludeDirsFilter(excluded...))

	fw.AddHandler(func(events []watcher.ChangeEvent) error {
		for _, event := range events {
			log.Debug("file changed", "path", event.Path, "type", event.Type.String())
		}
		c.watcherErrMu.Lock()
		c.watcherErrors = 0
		c.watcherErrMu.Unlock()
		c.RequestRebuild()
		return nil
	})
	fw.AddErrorHandler(func(err error) {
		c.watcherErrMu.Lock()
		c.watcherErrors++
		failures := c.watcherErrors
		c.watcherErrMu.Unlock()
		if failures >= c.cfg.Preview.MaxWatcherErrors {
			log.Error("watcher failed repeatedly, session degraded; trigger rebuilds manually",
				"failures", failures)
			c.setDegraded()
		}
	})

	if err := fw.AddRecursive(sess.SourceDir); err != nil {
		log.Error("cannot watch source tree, session degraded", "error", err)
		_ = fw.Stop()
		c.setDegraded()
		return
	}

	watchCtx, cancel := context.WithCancel(ctx)
	fw.Start(watchCtx)
	sess.Watcher = fw
	sess.watchCancel = cancel
}

func (c *Controller) setDegraded() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateRunning || c.state == StateStarting {
		c.state = StateDegraded
	}
}

// SwitchFolder tears the current session down completely, then starts a new
// one on newSourceDir. The control port stays bound throughout; at no point
// are two content servers alive. Any failure lands in the stopped state
// with everything released.
func (c *Controller) SwitchFolder(ctx context.Context, newSourceDir string) error {
	c.mu.Lock()
	old := c.session
	if old == nil {
		c.mu.Unlock()
		return &StartupError{Stage: "folder switch", Err: fmt.Errorf("no active session")}
	}
	c.session = nil
	c.state = StateStarting
	c.generation++
	c.mu.Unlock()

	c.teardown(ctx, old)

	if err := c.startReplacement(ctx, newSourceDir); err != nil {
		c.mu.Lock()
		c.state = StateStopped
		c.mu.Unlock()
		return err
	}
	log.Info("switched folder", "source", newSourceDir)
	return nil
}

func (c *Controller) startReplacement(ctx context.Context, sourceDir string) error {
	sess, err := c.provision(ctx, sourceDir)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.session = sess
	if c.state == StateStarting {
		c.state = StateRunning
	}
	c.mu.Unlock()
	return nil
}

// teardown stops a session in the required order: watcher first, then any
// in-flight rebuild drains (its result already superseded), then the
// content server, then the scratch directory.
func (c *Controller) teardown(ctx context.Context, sess *Session) {
	if sess.Watcher != nil {
		sess.watchCancel()
		if err := sess.Watcher.Stop(); err != nil {
			log.Warn("watcher stop failed", "error", err)
		}
	}

	// Drain the in-flight rebuild, if any. A loop that starts after the
	// session pointer was cleared sees no session and exits immediately, so
	// the snapshot taken here covers every rebuild that can still touch this
	// session's scratch directory.
	c.rebuildMu.Lock()
	done := c.rebuildDone
	c.rebuildMu.Unlock()
	if done != nil {
		<-done
	}

	if err := sess.Content.Shutdown(ctx); err != nil {
		log.Warn("content server shutdown failed", "error", err)
	}
	sess.Scratch.Remove()
}

// Shutdown performs an orderly shutdown of the live session, leaving the
// controller in the stopped state. Safe to call with no session live.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	sess := c.session
	c.session = nil
	c.state = StateStopped
	c.generation++
	c.mu.Unlock()

	c.presence.stop()
	if sess == nil {
		return nil
	}
	c.teardown(ctx, sess)
	log.Info("session stopped", "source", sess.SourceDir)
	return nil
}

// autoShutdown fires when the grace period elapses with no clients left.
func (c *Controller) autoShutdown() {
	log.Info("no clients connected, shutting down",
		"grace", c.cfg.Preview.ShutdownGrace)
	if err := c.Shutdown(context.Background()); err != nil {
		log.Warn("auto-shutdown teardown error", "error", err)
	}
	c.mu.Lock()
	exit := c.exit
	c.mu.Unlock()
	exit()
}

// ClientConnected records a heartbeat from a browser tab. A heartbeat after
// a gap counts as a reconnect and cancels any pending shutdown timer.
func (c *Controller) ClientConnected(id string) {
	c.presence.heartbeat(id)
}

// ClientDisconnected removes a client; when the set becomes empty the
// grace-period timer is armed.
func (c *Controller) ClientDisconnected(id string) {
	c.presence.disconnect(id)
}

// ClientCount reports the connected-client set size.
func (c *Controller) ClientCount() int {
	return c.presence.count()
}
