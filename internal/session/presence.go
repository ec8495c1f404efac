package session

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/folioview/folio/internal/config"
)

// presence tracks the connected-client set. A client is a browser tab
// identified by the opaque id it sends with each heartbeat; missing enough
// heartbeat intervals counts as a disconnect. When the set becomes empty a
// grace-period timer arms; if it fires with the set still empty the
// controller performs an orderly shutdown.
type presence struct {
	cfg     config.PreviewConfig
	onEmpty func()

	mu        sync.Mutex
	lastSeen  map[string]time.Time
	graceTime *time.Timer
	started   bool
	stopped   bool
	cancel    context.CancelFunc
}

func newPresence(cfg config.PreviewConfig, onEmpty func()) *presence {
	return &presence{
		cfg:      cfg,
		onEmpty:  onEmpty,
		lastSeen: make(map[string]time.Time),
	}
}

// start launches the heartbeat reaper. Idempotent.
func (p *presence) start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	reapCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	go p.reap(reapCtx)
}

func (p *presence) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	if p.cancel != nil {
		p.cancel()
	}
	if p.graceTime != nil {
		p.graceTime.Stop()
		p.graceTime = nil
	}
}

// heartbeat records the client as alive and cancels any pending shutdown
// timer. A heartbeat from an unknown id is a connect (or reconnect).
func (p *presence) heartbeat(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	if _, known := p.lastSeen[id]; !known {
		log.Debug("client connected", "client", id)
	}
	p.lastSeen[id] = time.Now()
	if p.graceTime != nil {
		p.graceTime.Stop()
		p.graceTime = nil
		log.Debug("shutdown timer canceled", "client", id)
	}
}

func (p *presence) disconnect(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, known := p.lastSeen[id]; !known {
		return
	}
	delete(p.lastSeen, id)
	log.Debug("client disconnected", "client", id)
	p.armIfEmptyLocked()
}

func (p *presence) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.lastSeen)
}

// reap expires clients that missed too many heartbeat intervals.
func (p *presence) reap(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-time.Duration(p.cfg.MissedHeartbeats) * p.cfg.HeartbeatInterval)
			p.mu.Lock()
			for id, seen := range p.lastSeen {
				if seen.Before(cutoff) {
					delete(p.lastSeen, id)
					log.Debug("client timed out", "client", id)
				}
			}
			p.armIfEmptyLocked()
			p.mu.Unlock()
		}
	}
}

// armIfEmptyLocked arms the grace timer when the set just became empty.
// Callers hold p.mu.
func (p *presence) armIfEmptyLocked() {
	if p.stopped || len(p.lastSeen) > 0 || p.graceTime != nil {
		return
	}
	log.Debug("client set empty, arming shutdown timer", "grace", p.cfg.ShutdownGrace)
	p.graceTime = time.AfterFunc(p.cfg.ShutdownGrace, func() {
		p.mu.Lock()
		fire := !p.stopped && len(p.lastSeen) == 0
		p.graceTime = nil
		p.mu.Unlock()
		if fire {
			p.onEmpty()
		}
	})
}
