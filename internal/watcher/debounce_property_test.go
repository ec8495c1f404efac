package watcher

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestDebounceProperties validates the coalescing contract over arbitrary
// event bursts, using the manual clock so no wall-clock time passes.
func TestDebounceProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1712)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("a burst inside one window yields exactly one batch", prop.ForAll(
		func(eventCount int, pathCount int) bool {
			if pathCount > eventCount {
				pathCount = eventCount
			}
			clock := &manualClock{}
			d := newDebouncer(300*time.Millisecond, clock.afterFunc)

			for i := 0; i < eventCount; i++ {
				d.absorb(ChangeEvent{Type: EventTypeModified, Path: fmt.Sprintf("file%03d.md", i%pathCount)})
			}
			clock.fire()

			batches := drain(d.output)
			return len(batches) == 1 && len(batches[0]) == pathCount
		},
		gen.IntRange(1, 80),
		gen.IntRange(1, 40),
	))

	properties.Property("distinct quiet windows yield one batch each", prop.ForAll(
		func(windows int) bool {
			clock := &manualClock{}
			d := newDebouncer(300*time.Millisecond, clock.afterFunc)

			for i := 0; i < windows; i++ {
				d.absorb(ChangeEvent{Type: EventTypeModified, Path: "chapter.md"})
				clock.fire()
			}
			return len(drain(d.output)) == windows
		},
		gen.IntRange(1, 8),
	))

	properties.TestingRun(t)
}
