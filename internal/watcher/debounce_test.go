package watcher

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manualClock is a timerFactory whose timers only fire when the test says so.
type manualClock struct {
	mu     sync.Mutex
	armed  func()
	resets int
}

type manualTimer struct {
	clock *manualClock
	fn    func()
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.clock.armed == nil {
		return false
	}
	t.clock.armed = nil
	return true
}

func (c *manualClock) afterFunc(_ time.Duration, f func()) stoppableTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.armed = f
	c.resets++
	return &manualTimer{clock: c, fn: f}
}

// fire runs the armed timer, as if the debounce window elapsed quietly.
func (c *manualClock) fire() {
	c.mu.Lock()
	armed := c.armed
	c.armed = nil
	c.mu.Unlock()
	if armed != nil {
		armed()
	}
}

func TestDebouncerCoalescesBurstIntoOneBatch(t *testing.T) {
	clock := &manualClock{}
	d := newDebouncer(300*time.Millisecond, clock.afterFunc)

	for i := 0; i < 25; i++ {
		d.absorb(ChangeEvent{Type: EventTypeModified, Path: fmt.Sprintf("ch%02d.md", i%5)})
	}
	clock.fire()

	select {
	case batch := <-d.output:
		assert.Len(t, batch, 5, "events deduplicate by path")
	default:
		t.Fatal("expected one batch after the window elapsed")
	}

	select {
	case <-d.output:
		t.Fatal("burst must produce exactly one batch")
	default:
	}
}

func TestDebouncerRestartsWindowPerEvent(t *testing.T) {
	clock := &manualClock{}
	d := newDebouncer(300*time.Millisecond, clock.afterFunc)

	d.absorb(ChangeEvent{Path: "a.md"})
	d.absorb(ChangeEvent{Path: "b.md"})
	d.absorb(ChangeEvent{Path: "c.md"})
	assert.Equal(t, 3, clock.resets, "every event rearms the timer")
}

func TestDebouncerQuietWindowWithNoEventsProducesNothing(t *testing.T) {
	clock := &manualClock{}
	d := newDebouncer(300*time.Millisecond, clock.afterFunc)

	clock.fire()
	select {
	case <-d.output:
		t.Fatal("no events, no batch")
	default:
	}
}

func TestDebouncerSecondBurstProducesSecondBatch(t *testing.T) {
	clock := &manualClock{}
	d := newDebouncer(300*time.Millisecond, clock.afterFunc)

	d.absorb(ChangeEvent{Path: "a.md"})
	clock.fire()
	d.absorb(ChangeEvent{Path: "a.md"})
	clock.fire()

	require.Len(t, drain(d.output), 2)
}

func drain(ch chan []ChangeEvent) [][]ChangeEvent {
	var batches [][]ChangeEvent
	for {
		select {
		case batch := <-ch:
			batches = append(batches, batch)
		default:
			return batches
		}
	}
}
