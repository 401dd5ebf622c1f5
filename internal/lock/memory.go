package lock

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sho7650/social-bridge/internal/logger"
)

// MemoryLock is a process-wide lock held in memory
type MemoryLock struct {
	mu         sync.Mutex
	holder     *Holder
	staleAfter time.Duration
	now        func() time.Time
	log        *slog.Logger
}

// Option configures a lock backend
type Option func(*options)

type options struct {
	staleAfter time.Duration
	now        func() time.Time
	log        *slog.Logger
}

// WithStaleAfter overrides DefaultStaleAfter
func WithStaleAfter(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.staleAfter = d
		}
	}
}

// WithClock injects the time source
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the logger used for stale-lock events
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

func buildOptions(opts []Option) options {
	o := options{staleAfter: DefaultStaleAfter, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	o.log = logger.Or(o.log)
	return o
}

var _ Service = (*MemoryLock)(nil)

// NewMemoryLock creates an in-process lock
func NewMemoryLock(opts ...Option) *MemoryLock {
	o := buildOptions(opts)
	return &MemoryLock{staleAfter: o.staleAfter, now: o.now, log: o.log}
}

func (m *MemoryLock) TryAcquire(ctx context.Context, owner string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.holder != nil {
		if !staleAt(*m.holder, now, m.staleAfter) {
			return false, nil
		}
		m.log.Warn("sync_lock_stale_cleared", "previous_owner", m.holder.Owner, "age", m.holder.Age(now).String())
	}
	m.holder = &Holder{Owner: owner, AcquiredAt: now}
	return true, nil
}

func (m *MemoryLock) Release(ctx context.Context, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.holder == nil {
		return nil
	}
	if m.holder.Owner != owner {
		return ErrNotHolder
	}
	m.holder = nil
	return nil
}

func (m *MemoryLock) IsStale(ctx context.Context, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.holder != nil && staleAt(*m.holder, now, m.staleAfter), nil
}

func (m *MemoryLock) Holder(ctx context.Context) (Holder, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.holder == nil {
		return Holder{}, false, nil
	}
	return *m.holder, true, nil
}
