// Package scheduler runs digest passes on a fixed interval.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"builderpulse/notification-service/internal/digest"
	"builderpulse/notification-service/internal/logger"
	"builderpulse/notification-service/internal/metrics"
)

// ErrBusy is returned by RunNow while another pass is in flight.
var ErrBusy = errors.New("digest pass already running")

// State of the scheduler's pass slot.
type State int32

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// Runner runs one digest pass. *digest.Runner implements it.
type Runner interface {
	RunOnce(ctx context.Context) (digest.Summary, error)
}

// Locker guards a pass against other instances. Acquire returns
// ErrLockHeld when someone else owns the lock.
type Locker interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// Scheduler wraps robfig/cron and owns the digest loop. At most one pass runs
// at a time, whether started by the timer or by RunNow.
type Scheduler struct {
	runner   Runner
	locker   Locker
	interval time.Duration
	log      *zap.SugaredLogger
	metrics  *metrics.Metrics

	state atomic.Int32

	mu     sync.Mutex
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithLocker makes each pass obtain l first.
func WithLocker(l Locker) Option { return func(s *Scheduler) { s.locker = l } }

// WithMetrics records skipped passes.
func WithMetrics(m *metrics.Metrics) Option { return func(s *Scheduler) { s.metrics = m } }

// New returns a Scheduler firing every interval, floored at one minute.
func New(runner Runner, interval time.Duration, log *zap.SugaredLogger, opts ...Option) *Scheduler {
	if interval < time.Minute {
		interval = time.Minute
	}
	s := &Scheduler{
		runner:   runner,
		interval: interval,
		log:      log.Named("scheduler"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// State reports whether a pass is in flight.
func (s *Scheduler) State() State { return State(s.state.Load()) }

// Start registers the cron entry and starts the loop. The first pass runs one
// interval after Start. Passes inherit ctx; Stop cancels it.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("scheduler already started")
	}

	cronLog := logger.CronLogger{L: s.log}
	c := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := c.AddFunc(spec, s.tick); err != nil {
		return errors.Wrap(err, "cron.AddFunc")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron = c
	c.Start()

	// Parent cancellation stops the timer too, not just the running pass.
	go func(ctx context.Context) {
		<-ctx.Done()
		c.Stop()
	}(s.ctx)
	s.log.Infow("digest scheduler started", "spec", spec)
	return nil
}

// Stop halts the timer, cancels an in-flight pass and waits for it to return
// or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.mu.Unlock()
	if c == nil {
		return nil
	}

	cancel()
	done := c.Stop()
	select {
	case <-done.Done():
		s.log.Infow("digest scheduler stopped")
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for digest pass to stop")
	}
}

// RunNow runs one pass on the caller's goroutine. It returns ErrBusy when a
// pass is already running and ErrLockHeld when another instance holds the
// lock.
func (s *Scheduler) RunNow(ctx context.Context) (digest.Summary, error) {
	return s.runPass(ctx)
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	sum, err := s.runPass(ctx)
	switch {
	case errors.Is(err, ErrBusy), errors.Is(err, ErrLockHeld):
		s.log.Infow("digest pass skipped", "reason", err.Error())
	case err != nil:
		s.log.Errorw("digest pass failed", "err", err,
			"contractors", sum.ContractorsProcessed, "emails", sum.EmailsSent)
	}
}

func (s *Scheduler) runPass(ctx context.Context) (digest.Summary, error) {
	if !s.state.CompareAndSwap(int32(Idle), int32(Running)) {
		s.metrics.DigestSkipped()
		return digest.Summary{}, ErrBusy
	}
	defer s.state.Store(int32(Idle))

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx)
		if err != nil {
			if errors.Is(err, ErrLockHeld) {
				s.metrics.DigestSkipped()
			}
			return digest.Summary{}, err
		}
		defer release()
	}

	return s.runner.RunOnce(ctx)
}
