package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sho7650/social-bridge/internal/core"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func comment(item int64, id, content string, at time.Time) *core.Interaction {
	return &core.Interaction{
		Platform:      "bluesky",
		ContentItemID: item,
		Type:          core.InteractionComment,
		InteractionID: id,
		Data: core.InteractionData{
			AuthorName: "Carol",
			AuthorURL:  "https://bsky.app/profile/carol.bsky.social",
			Content:    content,
		},
		OccurredAt: at,
	}
}

func like(item int64, platform, id string, at time.Time) *core.Interaction {
	return &core.Interaction{
		Platform:      platform,
		ContentItemID: item,
		Type:          core.InteractionLike,
		InteractionID: id,
		Data:          core.InteractionData{AuthorName: "Dave", Content: "Liked this post"},
		OccurredAt:    at,
	}
}

// runStoreSuite exercises the InteractionStore contract against one backend
func runStoreSuite(t *testing.T, newStore func(t *testing.T) InteractionStore) {
	ctx := context.Background()

	t.Run("Insert then re-insert is idempotent", func(t *testing.T) {
		store := newStore(t)

		res, err := store.Upsert(ctx, like(1, "bluesky", "l-1", base))
		require.NoError(t, err)
		assert.Equal(t, core.UpsertInserted, res)

		for i := 0; i < 3; i++ {
			res, err = store.Upsert(ctx, like(1, "bluesky", "l-1", base))
			require.NoError(t, err)
			assert.Equal(t, core.UpsertUnchanged, res)
		}

		count, err := store.CountByContentItem(ctx, core.InteractionQuery{ContentItemID: 1})
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("Comments are updated in place", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Upsert(ctx, comment(2, "c-1", "first draft", base))
		require.NoError(t, err)

		edited := comment(2, "c-1", "edited text", base.Add(time.Minute))
		res, err := store.Upsert(ctx, edited)
		require.NoError(t, err)
		assert.Equal(t, core.UpsertUpdated, res)

		items, err := store.QueryByContentItem(ctx, core.InteractionQuery{ContentItemID: 2})
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "edited text", items[0].Data.Content)
		assert.True(t, items[0].OccurredAt.Equal(base.Add(time.Minute)))
	})

	t.Run("Likes and shares are immutable", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Upsert(ctx, like(3, "mastodon", "favourite_1_2", base))
		require.NoError(t, err)

		changed := like(3, "mastodon", "favourite_1_2", base.Add(time.Hour))
		changed.Data.AuthorName = "Someone Else"
		res, err := store.Upsert(ctx, changed)
		require.NoError(t, err)
		assert.Equal(t, core.UpsertUnchanged, res)

		items, err := store.QueryByContentItem(ctx, core.InteractionQuery{ContentItemID: 3})
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "Dave", items[0].Data.AuthorName)
		assert.True(t, items[0].OccurredAt.Equal(base))
	})

	t.Run("Stored type decides mutability", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Upsert(ctx, like(4, "bluesky", "shared-id", base))
		require.NoError(t, err)

		res, err := store.Upsert(ctx, comment(4, "shared-id", "now a comment?", base))
		require.NoError(t, err)
		assert.Equal(t, core.UpsertUnchanged, res)
	})

	t.Run("Same interaction id on another platform is distinct", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Upsert(ctx, like(5, "bluesky", "x", base))
		require.NoError(t, err)
		res, err := store.Upsert(ctx, like(5, "mastodon", "x", base))
		require.NoError(t, err)
		assert.Equal(t, core.UpsertInserted, res)
	})

	t.Run("Query orders newest first and filters", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Upsert(ctx, comment(6, "c-old", "old", base))
		require.NoError(t, err)
		_, err = store.Upsert(ctx, comment(6, "c-new", "new", base.Add(2*time.Hour)))
		require.NoError(t, err)
		_, err = store.Upsert(ctx, like(6, "mastodon", "l-mid", base.Add(time.Hour)))
		require.NoError(t, err)
		_, err = store.Upsert(ctx, comment(7, "c-other", "other item", base))
		require.NoError(t, err)

		all, err := store.QueryByContentItem(ctx, core.InteractionQuery{ContentItemID: 6})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "c-new", all[0].InteractionID)
		assert.Equal(t, "l-mid", all[1].InteractionID)
		assert.Equal(t, "c-old", all[2].InteractionID)

		filters := []core.InteractionQuery{
			{ContentItemID: 6},
			{ContentItemID: 6, Platform: "bluesky"},
			{ContentItemID: 6, Type: core.InteractionLike},
			{ContentItemID: 6, Platform: "mastodon", Type: core.InteractionComment},
			{ContentItemID: 6, UnlinkedOnly: true},
			{ContentItemID: 6, Limit: 2},
			{ContentItemID: 99},
		}
		for _, q := range filters {
			items, err := store.QueryByContentItem(ctx, q)
			require.NoError(t, err)
			count, err := store.CountByContentItem(ctx, q)
			require.NoError(t, err)
			assert.Equal(t, len(items), count, fmt.Sprintf("%+v", q))
		}

		comments, err := store.QueryByContentItem(ctx, core.InteractionQuery{ContentItemID: 6, Type: core.InteractionComment})
		require.NoError(t, err)
		assert.Len(t, comments, 2)
		for _, c := range comments {
			assert.Equal(t, core.InteractionComment, c.Type)
		}
	})

	t.Run("Linked interactions are excluded from unlinked queries", func(t *testing.T) {
		store := newStore(t)

		linked := comment(8, "c-linked", "linked", base)
		linked.LocalCommentID = 77
		_, err := store.Upsert(ctx, linked)
		require.NoError(t, err)
		_, err = store.Upsert(ctx, comment(8, "c-free", "free", base))
		require.NoError(t, err)

		items, err := store.QueryByContentItem(ctx, core.InteractionQuery{ContentItemID: 8, UnlinkedOnly: true})
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "c-free", items[0].InteractionID)
	})

	t.Run("Concurrent upserts keep one row", func(t *testing.T) {
		store := newStore(t)

		var wg sync.WaitGroup
		results := make(chan core.UpsertResult, 10)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := store.Upsert(ctx, like(9, "bluesky", "race", base))
				if assert.NoError(t, err) {
					results <- res
				}
			}()
		}
		wg.Wait()
		close(results)

		inserted := 0
		for res := range results {
			if res == core.UpsertInserted {
				inserted++
			}
		}
		assert.Equal(t, 1, inserted)

		count, err := store.CountByContentItem(ctx, core.InteractionQuery{ContentItemID: 9})
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("Invalid interactions are rejected", func(t *testing.T) {
		store := newStore(t)

		bad := like(10, "bluesky", "", base)
		_, err := store.Upsert(ctx, bad)
		assert.Error(t, err)

		_, err = store.Upsert(ctx, nil)
		assert.Error(t, err)
	})

	t.Run("Only the latest summary is retained", func(t *testing.T) {
		store := newStore(t)

		got, err := store.GetLastSyncSummary(ctx)
		require.NoError(t, err)
		assert.Nil(t, got)

		first := core.SyncSummary{RunID: "r1", Trigger: core.TriggerScheduled, StartedAt: base, CompletedAt: base.Add(time.Second), PlatformsProcessed: 2, ErrorCount: 1}
		second := core.SyncSummary{
			RunID: "r2", Trigger: core.TriggerManual, StartedAt: base.Add(time.Hour), CompletedAt: base.Add(time.Hour + time.Second),
			PlatformsProcessed: 1, NewInteractions: 4,
			PerPlatform: map[string]core.PlatformRunStats{"bluesky": {ItemsProcessed: 1, Inserted: 4}},
		}
		require.NoError(t, store.SaveSyncSummary(ctx, first))
		require.NoError(t, store.SaveSyncSummary(ctx, second))

		got, err = store.GetLastSyncSummary(ctx)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "r2", got.RunID)
		assert.Equal(t, core.TriggerManual, got.Trigger)
		assert.Equal(t, 4, got.PerPlatform["bluesky"].Inserted)
		assert.Zero(t, got.ErrorCount)
	})

	t.Run("Lock row is taken by one owner until stale", func(t *testing.T) {
		store := newStore(t)
		staleBefore := base.Add(-10 * time.Minute)

		ok, err := store.AcquireLock(ctx, "sync", "daemon", base, staleBefore)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.AcquireLock(ctx, "sync", "cli", base.Add(9*time.Minute), staleBefore.Add(9*time.Minute))
		require.NoError(t, err)
		assert.False(t, ok)

		owner, at, held, err := store.LockHolder(ctx, "sync")
		require.NoError(t, err)
		assert.True(t, held)
		assert.Equal(t, "daemon", owner)
		assert.True(t, at.Equal(base))

		released, err := store.ReleaseLock(ctx, "sync", "cli")
		require.NoError(t, err)
		assert.False(t, released)

		ok, err = store.AcquireLock(ctx, "sync", "cli", base.Add(10*time.Minute), base)
		require.NoError(t, err)
		assert.True(t, ok, "a holder acquired at the stale boundary is replaced")

		released, err = store.ReleaseLock(ctx, "sync", "cli")
		require.NoError(t, err)
		assert.True(t, released)

		_, _, held, err = store.LockHolder(ctx, "sync")
		require.NoError(t, err)
		assert.False(t, held)
	})

	t.Run("Closed store refuses work", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Close())
		assert.False(t, store.IsReady())

		_, err := store.Upsert(ctx, like(11, "bluesky", "x", base))
		assert.Error(t, err)
		_, err = store.QueryByContentItem(ctx, core.InteractionQuery{ContentItemID: 11})
		assert.Error(t, err)
	})
}
