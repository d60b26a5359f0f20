package core

import (
	"context"
	"sync"
	"time"
)

// PathState is the debounce state of one watched path.
type PathState int

const (
	StateIdle PathState = iota
	StateQueued
	StateRunning
	// StateRunningQueued is Running with one successor job recorded.
	StateRunningQueued
)

func (s PathState) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateRunning:
		return "running"
	case StateRunningQueued:
		return "running+queued"
	default:
		return "idle"
	}
}

// DispatchFunc runs one job for path and returns after its terminal event
// has been published.
type DispatchFunc func(ctx context.Context, path string)

type pathSlot struct {
	mu    sync.Mutex
	state PathState
	timer *time.Timer
	gen   uint64
}

// Scheduler coalesces change notifications into at most one in-flight job
// per path. Each path has its own lock; the slots map lock is only held for
// lookup and insert.
type Scheduler struct {
	ctx      context.Context
	window   time.Duration
	dispatch DispatchFunc

	mu    sync.Mutex
	slots map[string]*pathSlot

	lifeMu sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler. window is the quiet period a queued path
// waits for before its job starts; zero dispatches immediately.
func NewScheduler(ctx context.Context, window time.Duration, dispatch DispatchFunc) *Scheduler {
	return &Scheduler{
		ctx:      ctx,
		window:   window,
		dispatch: dispatch,
		slots:    make(map[string]*pathSlot),
	}
}

// Notify records a change for path.
func (s *Scheduler) Notify(path string) {
	if s.ctx.Err() != nil {
		return
	}
	sl := s.slot(path)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	switch sl.state {
	case StateIdle:
		sl.state = StateQueued
		s.arm(path, sl)
	case StateQueued:
		// restart the quiet period so the burst collapses into one job
		s.arm(path, sl)
	case StateRunning:
		sl.state = StateRunningQueued
	case StateRunningQueued:
		// a successor is already recorded
	}
}

// State reports the current state of path.
func (s *Scheduler) State(path string) PathState {
	s.mu.Lock()
	sl, ok := s.slots[path]
	s.mu.Unlock()
	if !ok {
		return StateIdle
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.state
}

// Wait stops dispatching new jobs and blocks until running ones return.
func (s *Scheduler) Wait() {
	s.lifeMu.Lock()
	s.closed = true
	s.lifeMu.Unlock()

	s.mu.Lock()
	for _, sl := range s.slots {
		sl.mu.Lock()
		if sl.timer != nil {
			sl.timer.Stop()
			sl.timer = nil
		}
		if sl.state == StateQueued {
			sl.state = StateIdle
		}
		sl.mu.Unlock()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Scheduler) slot(path string) *pathSlot {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[path]
	if !ok {
		sl = &pathSlot{}
		s.slots[path] = sl
	}
	return sl
}

// arm starts (or restarts) the quiet period for a queued path. Caller holds sl.mu.
func (s *Scheduler) arm(path string, sl *pathSlot) {
	sl.gen++
	if sl.timer != nil {
		sl.timer.Stop()
		sl.timer = nil
	}
	if s.window <= 0 {
		s.startLocked(path, sl)
		return
	}
	gen := sl.gen
	sl.timer = time.AfterFunc(s.window, func() { s.fire(path, sl, gen) })
}

func (s *Scheduler) fire(path string, sl *pathSlot, gen uint64) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.state != StateQueued || sl.gen != gen {
		return
	}
	sl.timer = nil
	s.startLocked(path, sl)
}

// startLocked moves a queued path to Running and launches its job. Caller
// holds sl.mu.
func (s *Scheduler) startLocked(path string, sl *pathSlot) {
	if !s.track() {
		sl.state = StateIdle
		return
	}
	sl.state = StateRunning
	go s.run(path, sl)
}

func (s *Scheduler) track() bool {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.closed || s.ctx.Err() != nil {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Scheduler) run(path string, sl *pathSlot) {
	defer s.wg.Done()
	s.dispatch(s.ctx, path)
	s.complete(path, sl)
}

func (s *Scheduler) complete(path string, sl *pathSlot) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.state == StateRunningQueued && s.ctx.Err() == nil {
		sl.state = StateQueued
		s.arm(path, sl)
		return
	}
	sl.state = StateIdle
}
