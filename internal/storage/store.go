package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sho7650/social-bridge/internal/core"
)

const lastRunKey = "last_run"

// sqlStore holds the SQL shared by the SQLite and PostgreSQL backends.
// db is set once before ready flips and is never cleared.
type sqlStore struct {
	db      *sql.DB
	dialect dialect
	ready   atomic.Bool
	now     func() time.Time
}

// open connects, tunes the pool and brings the schema up to date
func (s *sqlStore) open(ctx context.Context, dsn string) error {
	if s.ready.Load() {
		return fmt.Errorf("storage already initialized")
	}
	db, err := sql.Open(s.dialect.driver, dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if err := newMigrationManager(db, s.dialect).MigrateUp(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	s.db = db
	if s.now == nil {
		s.now = time.Now
	}
	s.ready.Store(true)
	return nil
}

// Close closes the database connection. Closing twice is a no-op.
func (s *sqlStore) Close() error {
	if !s.ready.CompareAndSwap(true, false) {
		return nil
	}
	return s.db.Close()
}

// IsReady returns whether the storage is ready for operations
func (s *sqlStore) IsReady() bool {
	return s.ready.Load()
}

// Migrations exposes the schema migration manager for operator tooling
func (s *sqlStore) Migrations() (*MigrationManager, error) {
	if !s.IsReady() {
		return nil, fmt.Errorf("storage not ready")
	}
	return newMigrationManager(s.db, s.dialect), nil
}

// Upsert inserts a new interaction or refreshes an existing comment.
// Likes and shares are immutable once stored.
func (s *sqlStore) Upsert(ctx context.Context, interaction *core.Interaction) (core.UpsertResult, error) {
	if !s.IsReady() {
		return "", fmt.Errorf("storage not ready")
	}
	if interaction == nil {
		return "", fmt.Errorf("interaction cannot be nil")
	}
	if err := interaction.Validate(); err != nil {
		return "", fmt.Errorf("invalid interaction: %w", err)
	}

	dataJSON, err := json.Marshal(interaction.Data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal interaction data: %w", err)
	}
	now := s.now().UTC()
	occurredAt := interaction.OccurredAt.UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	insert := s.dialect.rebind(`
		INSERT INTO interactions (
			content_item_id, platform, interaction_type, interaction_id,
			interaction_data, occurred_at, local_comment_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (platform, interaction_id) DO NOTHING`)

	res, err := tx.ExecContext(ctx, insert,
		interaction.ContentItemID, interaction.Platform, string(interaction.Type), interaction.InteractionID,
		string(dataJSON), occurredAt, interaction.LocalCommentID, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert interaction: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("failed to read insert result: %w", err)
	}

	result := core.UpsertInserted
	if inserted == 0 {
		// The stored row's type decides mutability, not the incoming one
		update := s.dialect.rebind(`
			UPDATE interactions SET interaction_data = ?, occurred_at = ?, updated_at = ?
			WHERE platform = ? AND interaction_id = ? AND interaction_type = 'comment'`)

		res, err := tx.ExecContext(ctx, update, string(dataJSON), occurredAt, now, interaction.Platform, interaction.InteractionID)
		if err != nil {
			return "", fmt.Errorf("failed to update interaction: %w", err)
		}
		updated, err := res.RowsAffected()
		if err != nil {
			return "", fmt.Errorf("failed to read update result: %w", err)
		}
		result = core.UpsertUnchanged
		if updated > 0 {
			result = core.UpsertUpdated
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}
	return result, nil
}

func (s *sqlStore) where(query core.InteractionQuery) (string, []interface{}) {
	conditions := []string{"content_item_id = ?"}
	args := []interface{}{query.ContentItemID}

	if query.Platform != "" {
		conditions = append(conditions, "platform = ?")
		args = append(args, query.Platform)
	}
	if query.Type != "" {
		conditions = append(conditions, "interaction_type = ?")
		args = append(args, string(query.Type))
	}
	if query.UnlinkedOnly {
		conditions = append(conditions, "local_comment_id = 0")
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// QueryByContentItem returns matching interactions, newest first
func (s *sqlStore) QueryByContentItem(ctx context.Context, query core.InteractionQuery) ([]core.Interaction, error) {
	if !s.IsReady() {
		return nil, fmt.Errorf("storage not ready")
	}

	where, args := s.where(query)
	sqlQuery := `SELECT content_item_id, platform, interaction_type, interaction_id,
		interaction_data, occurred_at, local_comment_id FROM interactions` + where +
		" ORDER BY occurred_at DESC, id DESC"
	if query.Limit > 0 {
		sqlQuery += " LIMIT ?"
		args = append(args, query.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(sqlQuery), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := []core.Interaction{}
	for rows.Next() {
		var (
			item     core.Interaction
			itemType string
			dataJSON string
		)
		if err := rows.Scan(&item.ContentItemID, &item.Platform, &itemType, &item.InteractionID,
			&dataJSON, &item.OccurredAt, &item.LocalCommentID); err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}
		item.Type = core.InteractionType(itemType)
		item.OccurredAt = item.OccurredAt.UTC()
		if err := json.Unmarshal([]byte(dataJSON), &item.Data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal interaction data: %w", err)
		}
		results = append(results, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return results, nil
}

// CountByContentItem counts what QueryByContentItem would return for the same query
func (s *sqlStore) CountByContentItem(ctx context.Context, query core.InteractionQuery) (int, error) {
	if !s.IsReady() {
		return 0, fmt.Errorf("storage not ready")
	}

	where, args := s.where(query)
	var count int
	if err := s.db.QueryRowContext(ctx, s.dialect.rebind("SELECT COUNT(*) FROM interactions"+where), args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count interactions: %w", err)
	}
	if query.Limit > 0 && count > query.Limit {
		count = query.Limit
	}
	return count, nil
}

// SaveSyncSummary overwrites the retained summary with the latest pass
func (s *sqlStore) SaveSyncSummary(ctx context.Context, summary core.SyncSummary) error {
	if !s.IsReady() {
		return fmt.Errorf("storage not ready")
	}

	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal sync summary: %w", err)
	}

	query := s.dialect.rebind(`
		INSERT INTO sync_states (state_key, completed_at, summary) VALUES (?, ?, ?)
		ON CONFLICT (state_key) DO UPDATE SET completed_at = excluded.completed_at, summary = excluded.summary`)
	if _, err := s.db.ExecContext(ctx, query, lastRunKey, summary.CompletedAt.UTC(), string(summaryJSON)); err != nil {
		return fmt.Errorf("failed to save sync summary: %w", err)
	}
	return nil
}

// GetLastSyncSummary returns the latest summary, nil when no pass has completed
func (s *sqlStore) GetLastSyncSummary(ctx context.Context) (*core.SyncSummary, error) {
	if !s.IsReady() {
		return nil, fmt.Errorf("storage not ready")
	}

	var summaryJSON string
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT summary FROM sync_states WHERE state_key = ?`), lastRunKey).Scan(&summaryJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get sync summary: %w", err)
	}

	var summary core.SyncSummary
	if err := json.Unmarshal([]byte(summaryJSON), &summary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sync summary: %w", err)
	}
	return &summary, nil
}
