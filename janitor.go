package pagecache

import (
	"context"
	"sync"
	"time"
)

// Janitor runs maintenance tasks on a fixed interval until closed. Neither
// cache evicts by age on its own; a Janitor is the usual way to do it.
type Janitor struct {
	tasks  []func()
	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewJanitor starts running tasks every interval. A non-positive interval
// returns a Janitor that never runs; Close is still safe.
func NewJanitor(interval time.Duration, tasks ...func()) *Janitor {
	j := &Janitor{tasks: tasks}
	if interval <= 0 || len(tasks) == 0 {
		return j
	}
	j.ticker = time.NewTicker(interval)
	j.stopCh = make(chan struct{})
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		for {
			select {
			case <-j.ticker.C:
				j.RunOnce()
			case <-j.stopCh:
				return
			}
		}
	}()
	return j
}

// RunOnce runs every task synchronously.
func (j *Janitor) RunOnce() {
	for _, t := range j.tasks {
		t()
	}
}

func (j *Janitor) Close() {
	j.once.Do(func() {
		if j.stopCh != nil {
			close(j.stopCh)
			j.ticker.Stop() // stop ticker before waiting
			j.wg.Wait()
		}
	})
}

// ExpireTask evicts expired byte cache entries.
func ExpireTask(c ByteCache) func() {
	return func() { c.EvictExpired(context.Background()) }
}

// CleanupTask runs Preloader.Cleanup around the page reported by current.
func CleanupTask(p Preloader, current func() int, keepRange int) func() {
	return func() {
		if page := current(); page > 0 {
			p.Cleanup(page, keepRange)
		}
	}
}
