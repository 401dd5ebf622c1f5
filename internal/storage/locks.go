package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AcquireLock takes the named lock for owner when it is free or was last
// acquired at or before staleBefore. Times are kept as unix milliseconds so
// every process compares them the same way.
func (s *sqlStore) AcquireLock(ctx context.Context, name, owner string, at, staleBefore time.Time) (bool, error) {
	if !s.IsReady() {
		return false, fmt.Errorf("storage not ready")
	}

	query := s.dialect.rebind(`
		INSERT INTO sync_locks (lock_key, owner, acquired_at) VALUES (?, ?, ?)
		ON CONFLICT (lock_key) DO UPDATE SET owner = excluded.owner, acquired_at = excluded.acquired_at
		WHERE sync_locks.acquired_at <= ?`)
	res, err := s.db.ExecContext(ctx, query, name, owner, at.UnixMilli(), staleBefore.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read lock result: %w", err)
	}
	return n > 0, nil
}

// ReleaseLock deletes the named lock if owner holds it and reports whether it did
func (s *sqlStore) ReleaseLock(ctx context.Context, name, owner string) (bool, error) {
	if !s.IsReady() {
		return false, fmt.Errorf("storage not ready")
	}

	res, err := s.db.ExecContext(ctx, s.dialect.rebind(`DELETE FROM sync_locks WHERE lock_key = ? AND owner = ?`), name, owner)
	if err != nil {
		return false, fmt.Errorf("failed to release lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read release result: %w", err)
	}
	return n > 0, nil
}

// LockHolder returns the owner of the named lock, held is false when it is free
func (s *sqlStore) LockHolder(ctx context.Context, name string) (owner string, acquiredAt time.Time, held bool, err error) {
	if !s.IsReady() {
		return "", time.Time{}, false, fmt.Errorf("storage not ready")
	}

	var ms int64
	err = s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT owner, acquired_at FROM sync_locks WHERE lock_key = ?`), name).Scan(&owner, &ms)
	if err == sql.ErrNoRows {
		return "", time.Time{}, false, nil
	}
	if err != nil {
		return "", time.Time{}, false, fmt.Errorf("failed to read lock: %w", err)
	}
	return owner, time.UnixMilli(ms).UTC(), true, nil
}
