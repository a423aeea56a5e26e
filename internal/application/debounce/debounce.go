// Package debounce schedules keyed tasks that are replaced by newer tasks of the same key.
package debounce

import (
	"sort"
	"sync"
	"time"
)

// DefaultDelay is the idle window before a field is re-validated.
const DefaultDelay = 300 * time.Millisecond

// Scheduler runs fn after delay unless a later Schedule or Cancel for the same key supersedes it.
type Scheduler interface {
	Schedule(key string, delay time.Duration, fn func())
	Cancel(key string)
	Stop()
}

// RealScheduler is backed by time.AfterFunc.
type RealScheduler struct {
	mu      sync.Mutex
	timers  map[string]*realTask
	gen     uint64
	stopped bool
}

type realTask struct {
	timer *time.Timer
	gen   uint64
}

// NewRealScheduler creates a wall-clock scheduler.
func NewRealScheduler() *RealScheduler {
	return &RealScheduler{timers: map[string]*realTask{}}
}

// Schedule replaces the pending task of key.
func (s *RealScheduler) Schedule(key string, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if old, ok := s.timers[key]; ok {
		old.timer.Stop()
	}
	s.gen++
	task := &realTask{gen: s.gen}
	task.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		cur, ok := s.timers[key]
		if !ok || cur.gen != task.gen {
			s.mu.Unlock()
			return
		}
		delete(s.timers, key)
		s.mu.Unlock()
		fn()
	})
	s.timers[key] = task
}

// Cancel drops the pending task of key.
func (s *RealScheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[key]; ok {
		t.timer.Stop()
		delete(s.timers, key)
	}
}

// Stop cancels every pending task and rejects new ones.
func (s *RealScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, t := range s.timers {
		t.timer.Stop()
		delete(s.timers, k)
	}
	s.stopped = true
}

// VirtualClock is a Scheduler driven by Advance.
type VirtualClock struct {
	mu      sync.Mutex
	now     time.Time
	seq     uint64
	pending map[string]virtualTask
}

type virtualTask struct {
	due time.Time
	seq uint64
	fn  func()
}

// NewVirtualClock starts a virtual clock at start.
func NewVirtualClock(start time.Time) *VirtualClock {
	return &VirtualClock{now: start, pending: map[string]virtualTask{}}
}

// Now returns the virtual time.
func (c *VirtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Schedule replaces the pending task of key.
func (c *VirtualClock) Schedule(key string, delay time.Duration, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.pending[key] = virtualTask{due: c.now.Add(delay), seq: c.seq, fn: fn}
}

// Cancel drops the pending task of key.
func (c *VirtualClock) Cancel(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, key)
}

// Stop drops every pending task.
func (c *VirtualClock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = map[string]virtualTask{}
}

// Pending reports the number of scheduled tasks.
func (c *VirtualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Advance moves the clock forward by d and runs due tasks in due-time order.
// Tasks run without the clock lock held, so they may schedule again.
func (c *VirtualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		key, task, ok := c.nextDue(target)
		if !ok {
			c.now = target
			c.mu.Unlock()
			return
		}
		delete(c.pending, key)
		c.now = task.due
		c.mu.Unlock()
		task.fn()
	}
}

// nextDue returns the earliest task due at or before target. Caller holds mu.
func (c *VirtualClock) nextDue(target time.Time) (string, virtualTask, bool) {
	keys := make([]string, 0, len(c.pending))
	for k, t := range c.pending {
		if !t.due.After(target) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return "", virtualTask{}, false
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := c.pending[keys[i]], c.pending[keys[j]]
		if a.due.Equal(b.due) {
			return a.seq < b.seq
		}
		return a.due.Before(b.due)
	})
	return keys[0], c.pending[keys[0]], true
}

var (
	_ Scheduler = (*RealScheduler)(nil)
	_ Scheduler = (*VirtualClock)(nil)
)
