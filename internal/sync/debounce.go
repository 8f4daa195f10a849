package sync

import (
	"sync"
	"time"
)

// Debouncer coalesces rapid repeated triggers for the same key into a
// single callback run after a quiet interval. Refetch scheduling and
// search input both go through it, bounding query rate: N triggers
// within one window run fn exactly once.
type Debouncer struct {
	interval time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{
		interval: interval,
		timers:   make(map[string]*time.Timer),
	}
}

// Trigger schedules fn to run after the debounce interval. A trigger
// for a key with a pending run resets that key's timer; the latest fn
// wins.
func (d *Debouncer) Trigger(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if timer, ok := d.timers[key]; ok {
		timer.Stop()
	}
	d.timers[key] = time.AfterFunc(d.interval, func() {
		d.mu.Lock()
		delete(d.timers, key)
		d.mu.Unlock()
		fn()
	})
}

// Stop cancels every pending run.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, timer := range d.timers {
		timer.Stop()
		delete(d.timers, key)
	}
}
