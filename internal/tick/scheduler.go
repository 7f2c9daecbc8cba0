// Package tick implements the TickScheduler and GameLoop (spec.md §4.7):
// the monotonic tick counter, its single auto-advance worker, and the
// per-tick pipeline of draining commands, running systems and logic
// units, and optionally sampling snapshots.
package tick

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/anvil-platform/simnode/internal/errs"
	"github.com/anvil-platform/simnode/internal/metrics"
)

// Runner is the single method the scheduler drives once per tick.
// GameLoop implements this.
type Runner interface {
	RunTick(tick uint64)
}

// Scheduler is the TickScheduler: a monotonic counter plus an optional
// single auto-advance worker, grounded on the teacher's manager-driven
// controller loop shape but reduced to one dedicated goroutine per
// container, matching spec.md §9's "coroutine-like auto-advance → a
// dedicated worker thread per container, stopped cooperatively."
type Scheduler struct {
	containerLabel string
	current        uint64
	runner         Runner

	mu       sync.Mutex
	running  atomic.Bool
	cancel   context.CancelFunc
	group    *errgroup.Group
	tickLock sync.Mutex // serializes advance() against concurrent callers
}

// NewScheduler creates a scheduler that invokes runner.RunTick once per
// advance.
func NewScheduler(containerLabel string, runner Runner) *Scheduler {
	return &Scheduler{containerLabel: containerLabel, runner: runner}
}

// Current returns the current tick value without advancing it.
func (s *Scheduler) Current() uint64 {
	return atomic.LoadUint64(&s.current)
}

// Advance increments the tick counter and runs one GameLoop pass,
// blocking the caller for the duration of that tick.
func (s *Scheduler) Advance() uint64 {
	s.tickLock.Lock()
	defer s.tickLock.Unlock()

	tick := atomic.AddUint64(&s.current, 1)
	start := time.Now()
	s.runner.RunTick(tick)
	metrics.TickDurationSeconds.WithLabelValues(s.containerLabel).Observe(time.Since(start).Seconds())
	metrics.TicksAdvancedTotal.WithLabelValues(s.containerLabel).Inc()
	return tick
}

// IsAuto reports whether the auto-advance worker is currently running.
func (s *Scheduler) IsAuto() bool {
	return s.running.Load()
}

// StartAuto launches a single worker advancing the tick at fixed
// intervalMs. Idempotent: a second call while already running is a
// no-op.
func (s *Scheduler) StartAuto(intervalMs int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return nil
	}
	if intervalMs <= 0 {
		return errs.New(errs.InvalidArgument, "tick scheduler: intervalMs must be positive")
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)
	s.cancel = cancel
	s.group = group
	s.running.Store(true)

	group.Go(func() error {
		ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				s.Advance()
			}
		}
	})
	return nil
}

// StopAuto terminates the auto-advance worker before its next scheduled
// wake; any tick already in progress completes uninterrupted. Idempotent.
func (s *Scheduler) StopAuto() {
	s.mu.Lock()
	if !s.running.Load() {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	group := s.group
	s.running.Store(false)
	s.mu.Unlock()

	cancel()
	_ = group.Wait()
}
