// Package schedule runs a tick handler at a fixed interval, one invocation at
// a time.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

var (
	// ErrAlreadyStarted is returned by Start on a running scheduler
	ErrAlreadyStarted = errors.New("scheduler already started")
	// ErrInvalidInterval is returned by Start for a non-positive interval
	ErrInvalidInterval = errors.New("interval must be positive")
)

// TickFunc is invoked on every tick. ctx is cancelled when the scheduler stops.
type TickFunc func(ctx context.Context) error

// Scheduler fires a TickFunc every interval. Ticks run on a single goroutine;
// ticks and triggers that arrive while one is running collapse into at most
// one pending run.
type Scheduler struct {
	clock  clockwork.Clock
	logger *slog.Logger

	pending chan struct{} // capacity 1, never replaced

	mu      sync.Mutex // guards running and cancel
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a stopped scheduler
func New(clock clockwork.Clock, logger *slog.Logger) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		clock:   clock,
		logger:  logger,
		pending: make(chan struct{}, 1),
	}
}

// Start begins firing onTick every interval. The first tick fires after one
// full interval.
func (s *Scheduler) Start(interval time.Duration, onTick TickFunc) error {
	if interval <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInterval, interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyStarted
	}

	// drop triggers requested while stopped
	select {
	case <-s.pending:
	default:
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true

	ticker := s.clock.NewTicker(interval)

	s.wg.Add(2)
	go s.feed(ctx, ticker)
	go s.loop(ctx, onTick)

	s.logger.Debug("scheduler started", "interval", interval)
	return nil
}

// Trigger requests a run as soon as the current one (if any) finishes
func (s *Scheduler) Trigger() {
	s.enqueue()
}

// Stop halts the scheduler and waits for an in-flight tick to finish.
// Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.running = false
	s.logger.Debug("scheduler stopped")
}

// feed turns ticker ticks into pending runs
func (s *Scheduler) feed(ctx context.Context, ticker clockwork.Ticker) {
	defer s.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.enqueue()
		}
	}
}

func (s *Scheduler) loop(ctx context.Context, onTick TickFunc) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.pending:
			if ctx.Err() != nil {
				return
			}
			if err := safeTick(ctx, onTick); err != nil {
				s.logger.Error("tick failed", "error", err)
			}
		}
	}
}

func (s *Scheduler) enqueue() {
	select {
	case s.pending <- struct{}{}:
	default:
		s.logger.Debug("run already pending, coalescing")
	}
}

// safeTick runs fn, turning a panic into an error
func safeTick(ctx context.Context, fn TickFunc) (err error) {
	defer func() {
		if p := recover(); p != nil {
			if perr, ok := p.(error); ok {
				err = fmt.Errorf("panic: %w", perr)
			} else {
				err = fmt.Errorf("panic: %v", p)
			}
		}
	}()

	return fn(ctx)
}
