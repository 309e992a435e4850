package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"trade-settlement-go/internal/settlement"

	"go.uber.org/zap"
)

var ErrAlreadyStarted = errors.New("scheduler already started")

// Resolver runs one resolution sweep. *settlement.Engine implements it.
type Resolver interface {
	ResolveDueTrades(ctx context.Context, now time.Time) (settlement.SweepResult, error)
}

// Lease decides whether this process should run the sweep for the current tick.
// It only thins out duplicate work across replicas; settlement stays correct without it.
type Lease interface {
	Acquire(ctx context.Context) (bool, error)
}

// State is the observable state of the scheduler.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// Trigger names what started a sweep.
type Trigger string

const (
	TriggerTimer  Trigger = "timer"
	TriggerManual Trigger = "manual"
)

// Scheduler owns the ticker that drives ResolveDueTrades and exposes an on-demand
// trigger. Timer and manual sweeps may overlap.
type Scheduler struct {
	logger   *zap.Logger
	resolver Resolver
	interval time.Duration
	now      func() time.Time
	lease    Lease
	metrics  *Metrics

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	inFlight atomic.Int32
}

// Option customises a Scheduler.
type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithLease(lease Lease) Option {
	return func(s *Scheduler) { s.lease = lease }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// New creates a scheduler that sweeps every interval once started.
func New(logger *zap.Logger, resolver Resolver, interval time.Duration, opts ...Option) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("scheduler interval must be positive, got %s", interval)
	}
	s := &Scheduler{
		logger:   logger.Named("scheduler"),
		resolver: resolver,
		interval: interval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	return s, nil
}

// Start launches the ticking loop. It stops when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return ErrAlreadyStarted
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(loopCtx, s.done)

	s.logger.Info("Scheduler started", zap.Duration("interval", s.interval))
	return nil
}

// Stop halts the loop and waits for a timer sweep in progress to return.
// It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
	s.logger.Info("Scheduler stopped")
}

// Started reports whether the ticking loop is active.
func (s *Scheduler) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done != nil
}

// State reports running while any sweep, timer or manual, is in progress.
func (s *Scheduler) State() State {
	if s.inFlight.Load() > 0 {
		return StateRunning
	}
	return StateIdle
}

// Trigger runs a sweep immediately on the caller's goroutine.
func (s *Scheduler) Trigger(ctx context.Context) (settlement.SweepResult, error) {
	return s.sweep(ctx, TriggerManual)
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if s.lease != nil {
		ok, err := s.lease.Acquire(ctx)
		switch {
		case err != nil:
			s.logger.Warn("Sweep lease unavailable, sweeping anyway", zap.Error(err))
		case !ok:
			s.logger.Debug("Sweep lease held elsewhere, skipping tick")
			s.metrics.leaseSkips.Inc()
			return
		}
	}
	// Errors are logged in sweep; the next tick retries.
	_, _ = s.sweep(ctx, TriggerTimer)
}

func (s *Scheduler) sweep(ctx context.Context, trigger Trigger) (res settlement.SweepResult, err error) {
	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sweep panicked: %v", r)
		}
		elapsed := time.Since(start)
		s.metrics.observe(trigger, res, err, elapsed)

		l := s.logger.With(zap.String("trigger", string(trigger)), zap.Duration("elapsed", elapsed))
		if err != nil {
			l.Error("Sweep failed", zap.Error(err))
			return
		}
		if res.Examined > 0 {
			l.Info("Sweep finished",
				zap.Int("examined", res.Examined),
				zap.Int("resolved", res.Resolved),
				zap.Int("failed", res.Failed))
		}
	}()

	return s.resolver.ResolveDueTrades(ctx, s.now())
}
