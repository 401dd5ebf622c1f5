package storage

import (
	"context"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStorage implements InteractionStore using SQLite
type SQLiteStorage struct {
	dbPath string
	sqlStore
}

// Ensure SQLiteStorage implements InteractionStore
var _ InteractionStore = (*SQLiteStorage)(nil)

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) *SQLiteStorage {
	return &SQLiteStorage{
		dbPath:   dbPath,
		sqlStore: sqlStore{dialect: sqliteDialect},
	}
}

// Initialize opens the database file and applies pending migrations
func (s *SQLiteStorage) Initialize(ctx context.Context) error {
	if s.dbPath == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	return s.open(ctx, s.dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_foreign_keys=ON&_txlock=immediate")
}
