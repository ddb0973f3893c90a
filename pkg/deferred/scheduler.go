// Package deferred runs keyed callbacks after a delay.
//
// Scheduling a key that already has a pending task supersedes it. Every
// scheduling gets a new stamp; a callback whose stamp is no longer current
// when its timer fires does nothing, so a timer that escaped Stop cannot run
// an outdated task.
package deferred

import (
	"sync"
	"time"
)

// Stamp identifies one scheduling of a key.
type Stamp uint64

type task struct {
	stamp Stamp
	timer *time.Timer
}

type Scheduler struct {
	mu      sync.Mutex
	next    Stamp
	tasks   map[string]*task
	stopped bool
	wg      sync.WaitGroup
}

func NewScheduler() *Scheduler {
	return &Scheduler{tasks: make(map[string]*task)}
}

// Schedule runs fn once after delay unless the key is rescheduled or
// cancelled first. It returns the stamp of this scheduling, or zero when the
// scheduler is stopped.
func (s *Scheduler) Schedule(key string, delay time.Duration, fn func(Stamp)) Stamp {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return 0
	}
	if prev, ok := s.tasks[key]; ok {
		prev.timer.Stop()
	}

	s.next++
	stamp := s.next
	t := &task{stamp: stamp}
	t.timer = time.AfterFunc(delay, func() { s.fire(key, stamp, fn) })
	s.tasks[key] = t
	return stamp
}

func (s *Scheduler) fire(key string, stamp Stamp, fn func(Stamp)) {
	s.mu.Lock()
	current, ok := s.tasks[key]
	if !ok || current.stamp != stamp || s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.tasks, key)
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	fn(stamp)
}

// Cancel drops the pending task of key. It reports whether one was pending.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[key]
	if !ok {
		return false
	}
	t.timer.Stop()
	delete(s.tasks, key)
	return true
}

// Current returns the stamp of the pending task of key.
func (s *Scheduler) Current(key string) (Stamp, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[key]
	if !ok {
		return 0, false
	}
	return t.stamp, true
}

func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Stop cancels every pending task and waits for running callbacks to return.
// Callbacks must not call Stop.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for key, t := range s.tasks {
		t.timer.Stop()
		delete(s.tasks, key)
	}
	s.mu.Unlock()

	s.wg.Wait()
}
