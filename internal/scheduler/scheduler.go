// Package scheduler triggers automatic sync passes on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/sho7650/social-bridge/internal/core"
	"github.com/sho7650/social-bridge/internal/logger"
)

// Named frequencies and the cron expressions they stand for
var named = map[string]string{
	"hourly":     "0 * * * *",
	"twicedaily": "0 */12 * * *",
	"daily":      "0 0 * * *",
	"weekly":     "0 0 * * 0",
}

const retryAfter = 30 * time.Second

// CronFor maps a frequency name or a raw cron expression to a validated cron expression
func CronFor(frequency string) (string, error) {
	f := strings.TrimSpace(frequency)
	if f == "" {
		f = "hourly"
	}
	if expr, ok := named[strings.ToLower(f)]; ok {
		return expr, nil
	}
	if !gronx.IsValid(f) {
		return "", fmt.Errorf("invalid sync frequency %q", frequency)
	}
	return f, nil
}

// Runner performs one scheduled pass
type Runner interface {
	RunAll(ctx context.Context) (core.SyncSummary, error)
}

// RunnerFunc adapts a function to Runner
type RunnerFunc func(ctx context.Context) (core.SyncSummary, error)

func (f RunnerFunc) RunAll(ctx context.Context) (core.SyncSummary, error) { return f(ctx) }

// Scheduler wakes at each cron tick and runs a pass. Ticks that arrive while
// a pass is still running in another process are rejected by the sync lock.
type Scheduler struct {
	runner Runner
	log    *slog.Logger
	now    func() time.Time
	after  func(time.Duration) <-chan time.Time

	mu    sync.Mutex
	expr  string
	reset chan struct{}
}

// Option configures a Scheduler
type Option func(*Scheduler)

func WithLogger(l *slog.Logger) Option { return func(s *Scheduler) { s.log = l } }

// WithClock replaces time.Now and time.After
func WithClock(now func() time.Time, after func(time.Duration) <-chan time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
		s.after = after
	}
}

// New creates a scheduler for frequency, see CronFor
func New(runner Runner, frequency string, opts ...Option) (*Scheduler, error) {
	expr, err := CronFor(frequency)
	if err != nil {
		return nil, err
	}
	s := &Scheduler{
		runner: runner,
		now:    time.Now,
		after:  time.After,
		expr:   expr,
		reset:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logger.Or(s.log)
	return s, nil
}

// Expression returns the active cron expression
func (s *Scheduler) Expression() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expr
}

// SetFrequency swaps the schedule; a waiting loop recomputes its next tick
func (s *Scheduler) SetFrequency(frequency string) error {
	expr, err := CronFor(frequency)
	if err != nil {
		return err
	}

	s.mu.Lock()
	changed := expr != s.expr
	s.expr = expr
	s.mu.Unlock()

	if changed {
		s.log.Info("sync_schedule_changed", "cron", expr)
		select {
		case s.reset <- struct{}{}:
		default:
		}
	}
	return nil
}

// Next returns the first tick strictly after t
func (s *Scheduler) Next(t time.Time) (time.Time, error) {
	return gronx.NextTickAfter(s.Expression(), t.UTC(), false)
}

// Start runs the schedule loop in a goroutine. Returns a cancel func.
func (s *Scheduler) Start(ctx context.Context) context.CancelFunc {
	ctx2, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.loop(ctx2)
	}()
	s.log.Info("sync_scheduler_started", "cron", s.Expression())
	return func() {
		cancel()
		<-done
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	for {
		next, err := s.Next(s.now())
		if err != nil {
			s.log.Error("sync_nexttick_failed", "cron", s.Expression(), "error", err)
			select {
			case <-ctx.Done():
				s.log.Info("sync_scheduler_stopping")
				return
			case <-s.after(retryAfter):
			}
			continue
		}

		select {
		case <-ctx.Done():
			s.log.Info("sync_scheduler_stopping")
			return
		case <-s.reset:
			continue
		case <-s.after(next.Sub(s.now())):
			s.RunOnce(ctx)
		}
	}
}

// RunOnce triggers one pass and logs its outcome. Failures are logged only.
func (s *Scheduler) RunOnce(ctx context.Context) {
	summary, err := s.runner.RunAll(ctx)
	switch {
	case core.IsKind(err, core.KindSyncInProgress):
		s.log.Info("sync_tick_skipped", "reason", "sync_in_progress")
	case err != nil:
		s.log.Error("sync_tick_failed", "error", err)
	default:
		s.log.Debug("sync_tick_done", "run_id", summary.RunID, "errors", summary.ErrorCount)
	}
}
