package session

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
)

// rebuildState is the coalescer's execution state. At most one rebuild runs
// at a time; at most one more may be queued behind it.
type rebuildState int

const (
	rebuildIdle rebuildState = iota
	rebuildRunning
	rebuildRunningQueued
)

// RequestRebuild schedules a regeneration. Requests arriving while one is
// executing collapse into a single queued follow-up; the queue never grows
// past one.
func (c *Controller) RequestRebuild() {
	c.rebuildMu.Lock()
	defer c.rebuildMu.Unlock()

	switch c.rebuildState {
	case rebuildIdle:
		done := make(chan struct{})
		c.rebuildState = rebuildRunning
		c.rebuildDone = done
		go c.rebuildLoop(done)
	case rebuildRunning:
		c.rebuildState = rebuildRunningQueued
	case rebuildRunningQueued:
		// Already one queued; bounded, eventually consistent.
	}
}

func (c *Controller) rebuildLoop(done chan struct{}) {
	defer close(done)
	for {
		c.rebuildRun()

		c.rebuildMu.Lock()
		if c.rebuildState == rebuildRunningQueued {
			c.rebuildState = rebuildRunning
			c.rebuildMu.Unlock()
			continue
		}
		c.rebuildState = rebuildIdle
		if c.rebuildDone == done {
			c.rebuildDone = nil
		}
		c.rebuildMu.Unlock()
		return
	}
}

func (c *Controller) runOneRebuild() {
	c.mu.Lock()
	sess := c.session
	generation := c.generation
	c.mu.Unlock()
	if sess == nil {
		return
	}

	if err := sess.Scratch.Populate(sess.SourceDir); err != nil {
		c.finishRebuild(sess, generation, &RegenerationError{Err: err}, nil)
		return
	}
	diags, err := sess.Scratch.Regenerate()
	if err != nil {
		c.finishRebuild(sess, generation, &RegenerationError{Err: err}, nil)
		return
	}
	messages := make([]string, 0, len(diags))
	for _, diag := range diags {
		messages = append(messages, fmt.Sprintf("%s: %s", diag.Path, diag.Message))
	}
	c.finishRebuild(sess, generation, nil, messages)
}

// finishRebuild publishes the rebuild outcome unless a folder switch or
// shutdown superseded it, in which case the result is discarded.
func (c *Controller) finishRebuild(sess *Session, generation int, rebuildErr error, diagnostics []string) {
	c.mu.Lock()
	superseded := c.generation != generation
	c.mu.Unlock()
	if superseded {
		log.Debug("discarding superseded rebuild result")
		return
	}

	if rebuildErr != nil {
		log.Error("rebuild failed", "error", rebuildErr)
		sess.Content.NotifyBuildError(rebuildErr.Error())
		return
	}

	for _, message := range diagnostics {
		log.Warn("rebuild diagnostic", "detail", message)
	}
	if len(diagnostics) > 0 {
		sess.Content.NotifyBuildError("diagnostics:\n" + strings.Join(diagnostics, "\n"))
	}
	sess.Content.NotifyReload()
	log.Debug("rebuild complete")
}
