package lock

import (
	"context"
	"log/slog"
	"time"
)

// Rows is the shared table a DatabaseLock lives in
type Rows interface {
	AcquireLock(ctx context.Context, name, owner string, at, staleBefore time.Time) (bool, error)
	ReleaseLock(ctx context.Context, name, owner string) (bool, error)
	LockHolder(ctx context.Context, name string) (owner string, acquiredAt time.Time, held bool, err error)
}

// DatabaseLock keeps the lock in the interaction database, so every process
// opening that database contends for the same row.
type DatabaseLock struct {
	rows       Rows
	name       string
	staleAfter time.Duration
	now        func() time.Time
	log        *slog.Logger
}

var _ Service = (*DatabaseLock)(nil)

// NewDatabaseLock creates a lock stored under name
func NewDatabaseLock(rows Rows, name string, opts ...Option) *DatabaseLock {
	o := buildOptions(opts)
	if name == "" {
		name = DefaultKey
	}
	return &DatabaseLock{rows: rows, name: name, staleAfter: o.staleAfter, now: o.now, log: o.log}
}

func (d *DatabaseLock) TryAcquire(ctx context.Context, owner string) (bool, error) {
	now := d.now()
	prev, held, err := d.Holder(ctx)
	if err != nil {
		return false, err
	}
	if held && !staleAt(prev, now, d.staleAfter) {
		return false, nil
	}

	// the row may have changed since the read; the conditional upsert decides
	ok, err := d.rows.AcquireLock(ctx, d.name, owner, now, now.Add(-d.staleAfter))
	if err != nil {
		return false, err
	}
	if ok && held {
		d.log.Warn("sync_lock_stale_cleared", "previous_owner", prev.Owner, "age", prev.Age(now).String())
	}
	return ok, nil
}

func (d *DatabaseLock) Release(ctx context.Context, owner string) error {
	released, err := d.rows.ReleaseLock(ctx, d.name, owner)
	if err != nil || released {
		return err
	}
	_, held, err := d.Holder(ctx)
	if err != nil {
		return err
	}
	if held {
		return ErrNotHolder
	}
	return nil
}

func (d *DatabaseLock) IsStale(ctx context.Context, now time.Time) (bool, error) {
	h, held, err := d.Holder(ctx)
	if err != nil {
		return false, err
	}
	return held && staleAt(h, now, d.staleAfter), nil
}

func (d *DatabaseLock) Holder(ctx context.Context) (Holder, bool, error) {
	owner, at, held, err := d.rows.LockHolder(ctx, d.name)
	if err != nil || !held {
		return Holder{}, false, err
	}
	return Holder{Owner: owner, AcquiredAt: at}, true, nil
}
