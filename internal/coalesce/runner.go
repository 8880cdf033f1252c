// Package coalesce provides a debounced, serialized task runner: bursts
// of triggers collapse into a single execution, and triggers arriving
// while an execution is in flight coalesce into exactly one follow-up
// execution instead of running concurrently.
package coalesce

import (
	"sync"
	"time"
)

// DefaultDelay is the debounce window used when none is configured.
const DefaultDelay = 300 * time.Millisecond

// Runner debounces and serializes executions of a single task.
//
// Trigger arms a timer; further triggers inside the window reset it.
// When the window elapses the task runs once on its own goroutine.
// Triggers arriving during a run are remembered and produce exactly one
// follow-up run after the current one completes.
//
// Thread-safety: all methods are safe for concurrent use. The task is
// never invoked concurrently with itself.
type Runner struct {
	mu      sync.Mutex
	cond    *sync.Cond
	delay   time.Duration
	task    func()
	timer   *time.Timer
	seq     uint64 // invalidates stale timer callbacks
	armed   bool
	running bool
	rerun   bool
	stopped bool
}

// NewRunner creates a runner for the given task.
// A non-positive delay falls back to DefaultDelay.
func NewRunner(delay time.Duration, task func()) *Runner {
	if delay <= 0 {
		delay = DefaultDelay
	}
	r := &Runner{delay: delay, task: task}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Trigger schedules the task to run after the debounce delay.
// If a run is in flight, a single follow-up run is scheduled instead.
func (r *Runner) Trigger() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return
	}

	if r.running {
		r.rerun = true
		return
	}

	r.armed = true
	r.seq++
	currentSeq := r.seq

	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.delay, func() {
		r.fire(currentSeq)
	})
}

// Flush runs the task immediately if a trigger is pending, cancelling
// the armed timer. It blocks until the run (and any coalesced follow-up)
// completes.
func (r *Runner) Flush() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	if r.armed && !r.running {
		r.armed = false
		r.seq++
		if r.timer != nil {
			r.timer.Stop()
			r.timer = nil
		}
		r.running = true
		go r.loop()
	}
	r.mu.Unlock()

	r.Wait()
}

// fire is the timer callback for one armed trigger.
func (r *Runner) fire(seq uint64) {
	r.mu.Lock()
	if r.stopped || !r.armed || r.seq != seq {
		r.mu.Unlock()
		return
	}
	r.armed = false
	r.timer = nil
	if r.running {
		// A run started between arming and firing. Coalesce.
		r.rerun = true
		r.mu.Unlock()
		return
	}
	r.running = true
	r.mu.Unlock()

	r.loop()
}

// loop executes the task, repeating once per coalesced rerun request.
func (r *Runner) loop() {
	for {
		r.task()

		r.mu.Lock()
		if r.rerun && !r.stopped {
			r.rerun = false
			r.mu.Unlock()
			continue
		}
		r.running = false
		r.cond.Broadcast()
		r.mu.Unlock()
		return
	}
}

// Wait blocks until no run is in flight and no trigger is armed.
// Triggers arriving after Wait returns are not covered.
func (r *Runner) Wait() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.running || r.armed {
		if r.armed && !r.running {
			// Sleep off the debounce window instead of spinning.
			r.mu.Unlock()
			time.Sleep(r.delay / 4)
			r.mu.Lock()
			continue
		}
		r.cond.Wait()
	}
}

// Stop cancels any armed trigger and prevents future runs.
// A run already in flight completes; its coalesced rerun is dropped.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopped = true
	r.armed = false
	r.rerun = false
	r.seq++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.cond.Broadcast()
}

// IsPending returns true if a trigger is armed or a run is in flight.
func (r *Runner) IsPending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.armed || r.running
}
