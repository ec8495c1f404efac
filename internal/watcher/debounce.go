package watcher

import (
	"context"
	"sync"
	"time"
)

// stoppableTimer is the slice of *time.Timer the debouncer needs.
type stoppableTimer interface {
	Stop() bool
}

// timerFactory abstracts time.AfterFunc; tests substitute a manual clock.
type timerFactory func(d time.Duration, f func()) stoppableTimer

// realAfterFunc adapts time.AfterFunc to the timerFactory shape.
func realAfterFunc(d time.Duration, f func()) stoppableTimer {
	return time.AfterFunc(d, f)
}

// debouncer groups rapid file changes: each qualifying event restarts the
// window; a batch fires only when the window elapses quietly.
type debouncer struct {
	delay     time.Duration
	afterFunc timerFactory
	events    chan ChangeEvent
	output    chan []ChangeEvent
	timer     stoppableTimer
	pending   []ChangeEvent
	mutex     sync.Mutex
}

func newDebouncer(delay time.Duration, afterFunc timerFactory) *debouncer {
	return &debouncer{
		delay:     delay,
		afterFunc: afterFunc,
		events:    make(chan ChangeEvent, 100),
		output:    make(chan []ChangeEvent, 10),
	}
}

func (d *debouncer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-d.events:
			d.absorb(event)
		}
	}
}

func (d *debouncer) add(event ChangeEvent) {
	select {
	case d.events <- event:
	default:
		// Channel full; the pending batch already guarantees a rebuild.
	}
}

func (d *debouncer) absorb(event ChangeEvent) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.pending = append(d.pending, event)
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = d.afterFunc(d.delay, d.flush)
}

func (d *debouncer) flush() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if len(d.pending) == 0 {
		return
	}

	// Deduplicate by path, keeping the latest event for each.
	byPath := make(map[string]ChangeEvent, len(d.pending))
	order := make([]string, 0, len(d.pending))
	for _, event := range d.pending {
		if _, seen := byPath[event.Path]; !seen {
			order = append(order, event.Path)
		}
		byPath[event.Path] = event
	}
	batch := make([]ChangeEvent, 0, len(order))
	for _, path := range order {
		batch = append(batch, byPath[path])
	}

	select {
	case d.output <- batch:
	default:
	}
	d.pending = d.pending[:0]
}

func (d *debouncer) stop() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
}
