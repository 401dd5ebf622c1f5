package merger

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sho7650/social-bridge/internal/content"
	"github.com/sho7650/social-bridge/internal/core"
	"github.com/sho7650/social-bridge/internal/logger"
	"github.com/sho7650/social-bridge/internal/platforms/bluesky"
	"github.com/sho7650/social-bridge/internal/platforms/mastodon"
	"github.com/sho7650/social-bridge/internal/plugins"
	"github.com/sho7650/social-bridge/internal/storage"
)

type visibilitySetting struct {
	mu  sync.Mutex
	vis core.Visibility
}

func (v *visibilitySetting) Get() core.Visibility {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.vis
}

func (v *visibilitySetting) Set(vis core.Visibility) {
	v.mu.Lock()
	v.vis = vis
	v.mu.Unlock()
}

type fixture struct {
	svc      *Service
	store    storage.InteractionStore
	vis      *visibilitySetting
	mastodon *mastodon.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "merge.db"))
	require.NoError(t, store.Initialize(ctx))
	t.Cleanup(func() { _ = store.Close() })

	bsky := bluesky.New()
	require.NoError(t, bsky.Configure(map[string]interface{}{"handle": "me.bsky.social", "app_password": "pw"}))
	masto := mastodon.New()
	require.NoError(t, masto.Configure(map[string]interface{}{"instance_url": "https://mastodon.social", "access_token": "tok"}))

	registry := plugins.NewRegistry(logger.Discard())
	require.NoError(t, registry.Register(bsky))
	require.NoError(t, registry.Register(masto))

	src, err := content.NewStaticSource([]core.ContentItem{
		{ID: 42, URLs: map[string]string{
			"bluesky":  "https://bsky.app/profile/me.bsky.social/post/3kf5xigv4kd2r",
			"mastodon": "https://mastodon.social/@me/109501347585025040",
		}},
		{ID: 43, URLs: map[string]string{"bluesky": "https://bsky.app/profile/me.bsky.social/post/other"}},
	})
	require.NoError(t, err)

	vis := &visibilitySetting{vis: core.DefaultVisibility()}
	return &fixture{
		svc:      NewService(store, src, registry, vis.Get, logger.Discard()),
		store:    store,
		vis:      vis,
		mastodon: masto,
	}
}

func (f *fixture) seed(t *testing.T, interactions ...core.Interaction) {
	t.Helper()
	for i := range interactions {
		_, err := f.store.Upsert(context.Background(), &interactions[i])
		require.NoError(t, err)
	}
}

func stored(platform string, itemID int64, typ core.InteractionType, id, content string, at time.Time) core.Interaction {
	return core.Interaction{
		Platform:      platform,
		ContentItemID: itemID,
		Type:          typ,
		InteractionID: id,
		Data:          core.InteractionData{AuthorName: "Someone", AuthorURL: "https://example.com/" + id, Content: content},
		OccurredAt:    at,
	}
}

func TestService_GetMergedComments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	f.seed(t,
		stored("bluesky", 42, core.InteractionComment, "at://c1", "Great post", base),
		stored("bluesky", 42, core.InteractionLike, "like1", "Liked this post on Bluesky", base.Add(time.Minute)),
		stored("mastodon", 42, core.InteractionComment, "https://m/1", "From the fediverse", base.Add(2*time.Minute)),
		stored("bluesky", 43, core.InteractionComment, "at://c9", "other item", base),
	)
	native := []core.NativeComment{{ID: "n1", Author: "Host", Content: "Great post", Date: base}}

	t.Run("Duplicate text is not repeated", func(t *testing.T) {
		merged, err := f.svc.GetMergedComments(ctx, 42, native)
		require.NoError(t, err)
		require.Len(t, merged, 3)

		assert.Equal(t, "Liked this post on Bluesky", merged[0].Content)
		assert.Equal(t, "Someone via Bluesky", merged[0].Author)
		assert.Equal(t, "From the fediverse", merged[1].Content)
		assert.Equal(t, "Someone via Mastodon", merged[1].Author)
		assert.Equal(t, "n1", merged[2].ID)
	})

	t.Run("Visibility is read on every call", func(t *testing.T) {
		f.vis.Set(core.Visibility{Comment: true, Share: true, Like: false})
		merged, err := f.svc.GetMergedComments(ctx, 42, native)
		require.NoError(t, err)
		assert.Len(t, merged, 2)

		f.vis.Set(core.DefaultVisibility())
		merged, err = f.svc.GetMergedComments(ctx, 42, native)
		require.NoError(t, err)
		assert.Len(t, merged, 3)
	})

	t.Run("Unconfigured platforms are left out", func(t *testing.T) {
		require.NoError(t, f.mastodon.Configure(map[string]interface{}{}))
		defer func() {
			_ = f.mastodon.Configure(map[string]interface{}{"instance_url": "https://mastodon.social", "access_token": "tok"})
		}()

		merged, err := f.svc.GetMergedComments(ctx, 42, native)
		require.NoError(t, err)
		assert.Len(t, merged, 2)
	})

	t.Run("Unknown content item", func(t *testing.T) {
		_, err := f.svc.GetMergedComments(ctx, 7, native)
		assert.ErrorIs(t, err, core.ErrInvalidContentItem)
	})
}

func TestService_CommentCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	f.seed(t,
		stored("bluesky", 42, core.InteractionComment, "at://c1", "a", base),
		stored("bluesky", 42, core.InteractionLike, "like1", "Liked", base),
		stored("mastodon", 42, core.InteractionShare, "reblog_1_2", "boosted", base),
	)

	count, err := f.svc.CommentCount(ctx, 42, 5)
	require.NoError(t, err)
	assert.Equal(t, 8, count)

	count, err = f.svc.CommentCount(ctx, 43, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestService_GetInteractions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	f.seed(t,
		stored("bluesky", 42, core.InteractionComment, "at://c1", "older", base),
		stored("bluesky", 42, core.InteractionComment, "at://c2", "newer", base.Add(time.Hour)),
		stored("bluesky", 42, core.InteractionLike, "like1", "Liked", base.Add(2*time.Hour)),
		stored("mastodon", 42, core.InteractionComment, "https://m/1", "masto", base),
	)

	t.Run("All platforms newest first", func(t *testing.T) {
		all, err := f.svc.GetInteractions(ctx, 42, "", "")
		require.NoError(t, err)
		require.Len(t, all, 4)
		assert.Equal(t, "like1", all[0].InteractionID)
	})

	t.Run("Filtered by platform and type", func(t *testing.T) {
		comments, err := f.svc.GetInteractions(ctx, 42, "bluesky", core.InteractionComment)
		require.NoError(t, err)
		require.Len(t, comments, 2)
		assert.Equal(t, "newer", comments[0].Data.Content)
		assert.Equal(t, "older", comments[1].Data.Content)
	})

	t.Run("Likes listing", func(t *testing.T) {
		likes, err := f.svc.GetInteractions(ctx, 42, "bluesky", core.InteractionLike)
		require.NoError(t, err)
		assert.Len(t, likes, 1)
	})

	t.Run("Errors", func(t *testing.T) {
		_, err := f.svc.GetInteractions(ctx, 999, "", "")
		assert.ErrorIs(t, err, core.ErrInvalidContentItem)

		_, err = f.svc.GetInteractions(ctx, 42, "friendster", "")
		assert.ErrorIs(t, err, core.ErrInvalidPlatform)

		_, err = f.svc.GetInteractions(ctx, 42, "", "poke")
		assert.ErrorIs(t, err, ErrInvalidType)
	})
}
