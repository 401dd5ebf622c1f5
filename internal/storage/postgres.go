package storage

import (
	"context"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStorage implements InteractionStore on PostgreSQL through the pgx stdlib driver
type PostgresStorage struct {
	dsn string
	sqlStore
}

// Ensure PostgresStorage implements InteractionStore
var _ InteractionStore = (*PostgresStorage)(nil)

// NewPostgresStorage creates a new PostgreSQL storage instance
func NewPostgresStorage(dsn string) *PostgresStorage {
	return &PostgresStorage{
		dsn:      dsn,
		sqlStore: sqlStore{dialect: postgresDialect},
	}
}

// Initialize connects and applies pending migrations
func (s *PostgresStorage) Initialize(ctx context.Context) error {
	if s.dsn == "" {
		return fmt.Errorf("database url cannot be empty")
	}
	return s.open(ctx, s.dsn)
}
