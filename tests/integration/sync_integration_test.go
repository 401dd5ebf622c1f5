package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sho7650/social-bridge/internal/app"
	"github.com/sho7650/social-bridge/internal/config"
	"github.com/sho7650/social-bridge/internal/core"
	"github.com/sho7650/social-bridge/internal/logger"
)

const (
	blueskyPost  = "https://bsky.app/profile/me.bsky.social/post/3kf5xigv4kd2r"
	mastodonPath = "/@me/109501347585025040"
	statusID     = "109501347585025040"
)

// fakeNetwork serves the small slice of the Bluesky XRPC and Mastodon REST
// APIs the sync pass reads.
type fakeNetwork struct {
	bluesky  *httptest.Server
	mastodon *httptest.Server

	mu         sync.Mutex
	replyText  string
	blueskyErr int
}

func newFakeNetwork(t *testing.T) *fakeNetwork {
	t.Helper()
	f := &fakeNetwork{replyText: "Great write-up!"}

	pds := http.NewServeMux()
	pds.HandleFunc("/xrpc/com.atproto.server.createSession", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"accessJwt":"jwt","did":"did:plc:me","handle":"me.bsky.social"}`))
	})
	pds.HandleFunc("/xrpc/app.bsky.feed.getPostThread", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		code := f.blueskyErr
		f.mu.Unlock()
		if code != 0 {
			w.WriteHeader(code)
			return
		}
		_, _ = w.Write([]byte(`{"thread":{"post":{"uri":"at://me/app.bsky.feed.post/3kf5xigv4kd2r","author":{"handle":"me.bsky.social"},"record":{"text":"root"}},
			"replies":[{"post":{"uri":"at://alice/app.bsky.feed.post/r1","author":{"handle":"alice.bsky.social","displayName":"Alice"},
				"record":{"text":"Thanks for sharing","createdAt":"2024-03-01T10:00:00Z"},"indexedAt":"2024-03-01T10:00:01Z"},
				"replies":[{"post":{"uri":"at://bob/app.bsky.feed.post/r2","author":{"handle":"bob.bsky.social"},
					"record":{"text":"Agreed","createdAt":"2024-03-01T11:00:00Z"}}}]}]}}`))
	})
	pds.HandleFunc("/xrpc/app.bsky.feed.getLikes", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"likes":[{"createdAt":"2024-03-01T12:00:00Z","actor":{"handle":"carol.bsky.social"}}]}`))
	})
	pds.HandleFunc("/xrpc/app.bsky.feed.getRepostedBy", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"repostedBy":[{"handle":"dave.bsky.social","displayName":"Dave"}]}`))
	})
	f.bluesky = httptest.NewServer(pds)
	t.Cleanup(f.bluesky.Close)

	inst := http.NewServeMux()
	inst.HandleFunc("/api/v1/accounts/verify_credentials", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"1","acct":"me"}`))
	})
	inst.HandleFunc("/api/v1/statuses/"+statusID, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"` + statusID + `","content":"<p>root</p>"}`))
	})
	inst.HandleFunc("/api/v1/statuses/"+statusID+"/context", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		text := f.replyText
		f.mu.Unlock()
		reply := map[string]interface{}{
			"id":             "200",
			"uri":            "https://m.example/users/frank/statuses/200",
			"in_reply_to_id": statusID,
			"created_at":     "2024-03-02T09:00:00Z",
			"content":        "<p>" + text + "</p>",
			"account":        map[string]string{"id": "21", "username": "frank", "acct": "frank@m.example", "display_name": "Frank"},
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"ancestors": []interface{}{}, "descendants": []interface{}{reply}})
	})
	inst.HandleFunc("/api/v1/statuses/"+statusID+"/favourited_by", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"31","username":"gina","url":"https://m.example/@gina"}]`))
	})
	inst.HandleFunc("/api/v1/statuses/"+statusID+"/reblogged_by", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"32","username":"hal","display_name":"Hal"}]`))
	})
	f.mastodon = httptest.NewServer(inst)
	t.Cleanup(f.mastodon.Close)

	return f
}

func (f *fakeNetwork) config(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Global.Database.Path = filepath.Join(t.TempDir(), "bridge.db")
	cfg.Platforms = map[string]config.PlatformConfig{
		"bluesky": {Enabled: true, Settings: map[string]interface{}{
			"handle": "me.bsky.social", "app_password": "pw", "service_url": f.bluesky.URL,
		}},
		"mastodon": {Enabled: true, Settings: map[string]interface{}{
			"instance_url": f.mastodon.URL, "access_token": "secret",
		}},
	}
	cfg.ContentItems = []core.ContentItem{{
		ID:    42,
		Title: "Launch post",
		URLs:  map[string]string{"bluesky": blueskyPost, "mastodon": f.mastodon.URL + mastodonPath},
	}}
	return &cfg
}

func TestSyncPass_EndToEnd(t *testing.T) {
	ctx := context.Background()
	fake := newFakeNetwork(t)
	cfg := fake.config(t)

	a, err := app.Build(ctx, cfg, logger.Discard())
	require.NoError(t, err)
	defer a.Close()

	summary, err := a.Orchestrator.RunAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.PlatformsProcessed)
	assert.Equal(t, 7, summary.NewInteractions)
	assert.Equal(t, 0, summary.ErrorCount)
	assert.Equal(t, 4, summary.PerPlatform["bluesky"].Inserted)
	assert.Equal(t, 3, summary.PerPlatform["mastodon"].Inserted)

	t.Run("Second pass inserts nothing", func(t *testing.T) {
		again, err := a.Orchestrator.RunAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, again.NewInteractions)
		assert.Equal(t, 0, again.ErrorCount)
	})

	t.Run("Edited reply is updated in place", func(t *testing.T) {
		fake.mu.Lock()
		fake.replyText = "Great write-up, bookmarked"
		fake.mu.Unlock()

		result, err := a.Orchestrator.ManualSync(ctx, 42, "mastodon")
		require.NoError(t, err)
		assert.Equal(t, 0, result.Summary.NewInteractions)
		assert.Empty(t, result.Errors)

		comments, err := a.Merger.GetInteractions(ctx, 42, "mastodon", core.InteractionComment)
		require.NoError(t, err)
		require.Len(t, comments, 1)
		assert.Equal(t, "Great write-up, bookmarked", comments[0].Data.Content)
		assert.Equal(t, "https://m.example/users/frank/statuses/200", comments[0].InteractionID)
	})

	t.Run("Pass is rejected while the lock is held", func(t *testing.T) {
		ok, err := a.Lock.TryAcquire(ctx, "other-process")
		require.NoError(t, err)
		require.True(t, ok)
		defer func() { _ = a.Lock.Release(ctx, "other-process") }()

		_, err = a.Orchestrator.RunAll(ctx)
		assert.True(t, core.IsKind(err, core.KindSyncInProgress))
	})

	t.Run("Platform failure does not abort the pass", func(t *testing.T) {
		fake.mu.Lock()
		fake.blueskyErr = http.StatusInternalServerError
		fake.mu.Unlock()
		defer func() {
			fake.mu.Lock()
			fake.blueskyErr = 0
			fake.mu.Unlock()
		}()

		summary, err := a.Orchestrator.RunAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.PerPlatform["bluesky"].Errors)
		assert.Equal(t, 1, summary.PerPlatform["mastodon"].ItemsProcessed)

		stored, err := a.Merger.GetInteractions(ctx, 42, "bluesky", "")
		require.NoError(t, err)
		assert.Len(t, stored, 4, "earlier interactions survive a failed fetch")
	})
}

func TestMergedComments_OverHTTP(t *testing.T) {
	ctx := context.Background()
	fake := newFakeNetwork(t)
	cfg := fake.config(t)

	a, err := app.Build(ctx, cfg, logger.Discard())
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Orchestrator.RunAll(ctx)
	require.NoError(t, err)

	ts := httptest.NewServer(a.HTTPServer().Handler())
	defer ts.Close()

	native := []core.NativeComment{
		{ID: "1", Author: "Owner", Content: "Thanks for sharing"},
	}
	merged := postMerged(t, ts.URL, native)

	// the Bluesky reply with the same text as a native comment is hidden
	assert.Len(t, merged, 6+1)
	assert.Equal(t, "Owner", merged[len(merged)-1].Author)
	for _, c := range merged[:len(merged)-1] {
		assert.True(t, c.Synthetic)
		assert.NotEqual(t, "Thanks for sharing", c.Content)
	}

	var authors []string
	for _, c := range merged {
		authors = append(authors, c.Author)
	}
	assert.Contains(t, authors, "Frank via Mastodon")
	assert.Contains(t, authors, "bob.bsky.social via Bluesky")

	t.Run("Visibility follows reloaded config", func(t *testing.T) {
		next := *cfg
		next.Display.CommentTypes = core.Visibility{Comment: true}
		require.NoError(t, a.ApplyConfig(&next))

		merged := postMerged(t, ts.URL, native)
		for _, c := range merged[:len(merged)-1] {
			assert.Equal(t, core.InteractionComment, c.InteractionType)
		}
		assert.Len(t, merged, 2+1)
	})

	t.Run("Count includes every unlinked interaction", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/v1/comments/42/count?native=1")
		require.NoError(t, err)
		defer resp.Body.Close()

		var out struct {
			Data map[string]int `json:"data"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		assert.Equal(t, 8, out.Data["count"])
	})

	t.Run("Last run is reported", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/v1/sync/last")
		require.NoError(t, err)
		defer resp.Body.Close()

		var out struct {
			Success bool             `json:"success"`
			Data    core.SyncSummary `json:"data"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		assert.True(t, out.Success)
		assert.Equal(t, core.TriggerScheduled, out.Data.Trigger)
		assert.Equal(t, 7, out.Data.NewInteractions)
	})
}

func postMerged(t *testing.T, baseURL string, native []core.NativeComment) []core.MergedComment {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{"comments": native})
	require.NoError(t, err)

	resp, err := http.Post(baseURL+"/v1/comments/42/merged", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Data []core.MergedComment `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out.Data
}
