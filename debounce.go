package pagecache

import (
	"sync"
	"time"
)

// debouncer holds at most one pending callback. Arming again cancels the
// previous callback if it has not started yet.
type debouncer struct {
	mu    sync.Mutex
	timer *time.Timer
}

// Arm schedules fn after delay. cancelled reports whether a pending callback
// was prevented from running.
func (d *debouncer) Arm(delay time.Duration, fn func()) (cancelled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		cancelled = d.timer.Stop()
	}
	d.timer = time.AfterFunc(delay, fn)
	return cancelled
}

// Stop cancels the pending callback, reporting whether one was cancelled.
func (d *debouncer) Stop() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer == nil {
		return false
	}
	stopped := d.timer.Stop()
	d.timer = nil
	return stopped
}
