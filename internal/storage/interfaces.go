package storage

import (
	"context"
	"time"

	"github.com/sho7650/social-bridge/internal/core"
)

// InteractionStore is the dedup/merge store for canonical interactions
type InteractionStore interface {
	// Lifecycle
	Initialize(ctx context.Context) error
	Close() error
	IsReady() bool

	// Interaction operations
	Upsert(ctx context.Context, interaction *core.Interaction) (core.UpsertResult, error)
	QueryByContentItem(ctx context.Context, query core.InteractionQuery) ([]core.Interaction, error)
	CountByContentItem(ctx context.Context, query core.InteractionQuery) (int, error)

	// Run summary operations
	SaveSyncSummary(ctx context.Context, summary core.SyncSummary) error
	GetLastSyncSummary(ctx context.Context) (*core.SyncSummary, error)

	// Shared lock rows
	AcquireLock(ctx context.Context, name, owner string, at, staleBefore time.Time) (bool, error)
	ReleaseLock(ctx context.Context, name, owner string) (bool, error)
	LockHolder(ctx context.Context, name string) (owner string, acquiredAt time.Time, held bool, err error)
}

// Driver names accepted by Open
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open returns an uninitialized store for the configured driver
func Open(driver, path, dsn string) (InteractionStore, error) {
	switch driver {
	case "", DriverSQLite:
		return NewSQLiteStorage(path), nil
	case DriverPostgres:
		return NewPostgresStorage(dsn), nil
	default:
		return nil, errUnknownDriver(driver)
	}
}
