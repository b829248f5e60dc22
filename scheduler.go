package arena

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// ErrSchedulerStopped is returned to tick waiters when the scheduler stops.
var ErrSchedulerStopped = errors.New("arena: scheduler stopped")

// DefaultTickRate is the fixed simulation step, 20 ticks per second.
const DefaultTickRate = 50 * time.Millisecond

// Scheduler runs systems on a fixed tick, one stage after another.
//
// All systems run on the scheduler goroutine, so a World touched only by
// systems needs no locking.
type Scheduler struct {
	name   string
	logger *slog.Logger

	// Loop management
	loops   [stageCount][]*loopState
	loopsMu sync.RWMutex

	waiters *waiterQueue

	// Execution state
	running      atomic.Bool
	stopped      atomic.Bool
	stopCh       chan struct{}
	doneCh       chan struct{}
	shutdownOnce sync.Once
	onFatal      func(error)
	afterTick    func(time.Duration)

	// Tick tracking
	tickRate   time.Duration
	lastTick   time.Time
	tickNumber atomic.Uint64
	tickMu     sync.Mutex
}

// loopState tracks the state of a single loop system.
type loopState struct {
	name     string
	system   Runnable
	interval time.Duration
	lastRun  time.Time
	nextRun  time.Time
}

// ShouldRun checks if the loop should run at the given time.
func (l *loopState) ShouldRun(now time.Time) bool {
	if l.interval == 0 {
		return true
	}
	return !now.Before(l.nextRun)
}

// MarkRun updates the last run time and schedules the next run.
func (l *loopState) MarkRun(now time.Time) {
	l.lastRun = now
	if l.interval > 0 {
		// Drift-free timing
		l.nextRun = l.nextRun.Add(l.interval)
		if l.nextRun.Before(now) {
			// Catch up if we're behind
			l.nextRun = now.Add(l.interval)
		}
	}
}

// NewScheduler creates a stopped scheduler ticking every tickRate.
func NewScheduler(name string, tickRate time.Duration, logger *slog.Logger) *Scheduler {
	if tickRate <= 0 {
		tickRate = DefaultTickRate
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		name:     name,
		logger:   logger,
		waiters:  newWaiterQueue(),
		tickRate: tickRate,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// TickRate returns the fixed simulation step.
func (s *Scheduler) TickRate() time.Duration {
	return s.tickRate
}

// TickNumber returns the number of completed ticks.
func (s *Scheduler) TickNumber() uint64 {
	return s.tickNumber.Load()
}

// Running reports whether the tick loop is active.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Start begins the scheduler's tick loop.
func (s *Scheduler) Start() {
	if s.stopped.Load() || s.running.Swap(true) {
		return
	}
	go s.tickLoop()
}

// Stop shuts the tick loop down and releases all tick waiters.
// A stopped scheduler cannot be restarted.
func (s *Scheduler) Stop() {
	if s.stopped.Swap(true) {
		return
	}
	if s.running.Swap(false) {
		close(s.stopCh)
		<-s.doneCh
	}
	s.waiters.ReleaseAll()
}

// tickLoop is the main scheduler loop.
func (s *Scheduler) tickLoop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.tickRate)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return

		case now := <-ticker.C:
			s.Step(now)
		}
	}
}

// Step executes one tick synchronously. Tests drive the simulation with it
// instead of Start.
func (s *Scheduler) Step(now time.Time) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	n := s.tickNumber.Load() + 1
	s.lastTick = now
	t := Tick{Number: n, Delta: s.tickRate, Now: now}

	s.loopsMu.RLock()
	loops := s.loops
	s.loopsMu.RUnlock()

	for stage := Before; stage < stageCount; stage++ {
		for _, loop := range loops[stage] {
			if !loop.ShouldRun(now) {
				continue
			}
			s.runLoop(loop, t)
			loop.MarkRun(now)
		}
	}

	s.tickNumber.Store(n)
	if s.afterTick != nil {
		s.afterTick(time.Since(now))
	}
	s.waiters.ReleaseDue(n)
}

// runLoop executes a single system with panic recovery.
func (s *Scheduler) runLoop(loop *loopState, t Tick) {
	defer func() {
		if r := recover(); r != nil {
			s.handleSystemPanic(loop.name, r)
		}
	}()
	loop.system.Run(t)
}

// AddLoop registers a system. Systems in the same stage run in registration order.
// Interval of 0 means the system runs every tick.
func (s *Scheduler) AddLoop(name string, sys Runnable, interval time.Duration, stage Stage) {
	if stage < Before || stage >= stageCount {
		panic(fmt.Sprintf("arena: invalid stage %d for system %s", stage, name))
	}

	s.loopsMu.Lock()
	defer s.loopsMu.Unlock()

	state := &loopState{
		name:     name,
		system:   sys,
		interval: interval,
		nextRun:  time.Now(),
	}

	// Copy on write so a running Step keeps its snapshot.
	next := make([]*loopState, len(s.loops[stage]), len(s.loops[stage])+1)
	copy(next, s.loops[stage])
	s.loops[stage] = append(next, state)
}

// WaitTicks blocks until n more ticks have completed or ctx is done.
func (s *Scheduler) WaitTicks(ctx context.Context, n int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n <= 0 {
		return nil
	}
	if s.stopped.Load() {
		return ErrSchedulerStopped
	}

	w := &tickWaiter{
		at:   s.tickNumber.Load() + uint64(n),
		done: make(chan struct{}),
	}
	if !s.waiters.Push(w) {
		return ErrSchedulerStopped
	}

	select {
	case <-w.done:
		if s.tickNumber.Load() < w.at {
			return ErrSchedulerStopped
		}
		return nil
	case <-ctx.Done():
		w.cancelled.Store(true)
		return ctx.Err()
	}
}

func (s *Scheduler) handleSystemPanic(name string, recovered any) {
	err := fmt.Errorf("arena: panic in system %s: %v\n%s", name, recovered, debug.Stack())
	s.shutdownOnce.Do(func() {
		s.logger.Error("arena: system panicked, stopping scheduler",
			"scheduler", s.name,
			"system", name,
			"error", err)
		go func() {
			s.Stop()
			if s.onFatal != nil {
				s.onFatal(err)
			}
		}()
	})
}
