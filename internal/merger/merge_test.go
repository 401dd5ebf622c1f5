package merger

import (
	"hash/crc32"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sho7650/social-bridge/internal/core"
)

var when = time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)

func interaction(typ core.InteractionType, id, author, authorURL, content string) core.Interaction {
	return core.Interaction{
		Platform:      "bluesky",
		ContentItemID: 42,
		Type:          typ,
		InteractionID: id,
		Data:          core.InteractionData{AuthorName: author, AuthorURL: authorURL, Content: content},
		OccurredAt:    when,
	}
}

func TestPseudoID(t *testing.T) {
	id := PseudoID("https://bsky.app/profile/alice", "hello")
	expected := strconv.FormatUint(uint64(crc32.ChecksumIEEE([]byte("https://bsky.app/profile/alicehello"))), 10)
	assert.Equal(t, expected, id)
	assert.Equal(t, id, PseudoID("https://bsky.app/profile/alice", "hello"), "stable across calls")
	assert.NotEqual(t, id, PseudoID("https://bsky.app/profile/alice", "hello!"))
}

func TestMerge(t *testing.T) {
	native := []core.NativeComment{
		{ID: "n1", Author: "Host", Content: "Great post", Date: when},
	}

	t.Run("No interactions returns native unchanged", func(t *testing.T) {
		merged := Merge("Bluesky", native, nil, core.DefaultVisibility())
		require.Len(t, merged, 1)
		assert.Equal(t, native[0], merged[0].NativeComment)
		assert.False(t, merged[0].Synthetic)
	})

	t.Run("Exact text match is not duplicated", func(t *testing.T) {
		merged := Merge("Bluesky", native, []core.Interaction{
			interaction(core.InteractionComment, "c1", "Alice", "https://a", "Great post"),
		}, core.DefaultVisibility())
		require.Len(t, merged, 1)
		assert.Equal(t, "n1", merged[0].ID)
	})

	t.Run("Near match is not deduplicated", func(t *testing.T) {
		merged := Merge("Bluesky", native, []core.Interaction{
			interaction(core.InteractionComment, "c1", "Alice", "https://a", "Great post "),
		}, core.DefaultVisibility())
		assert.Len(t, merged, 2)
	})

	t.Run("Only the matching interaction is skipped", func(t *testing.T) {
		merged := Merge("Bluesky", native, []core.Interaction{
			interaction(core.InteractionComment, "c1", "Alice", "https://a", "Great post"),
			interaction(core.InteractionComment, "c2", "Bob", "https://b", "Nice"),
		}, core.DefaultVisibility())
		require.Len(t, merged, 2)
		assert.Equal(t, "Nice", merged[0].Content)
		assert.Equal(t, "n1", merged[1].ID)
	})

	t.Run("Synthesized entries come first in discovery order", func(t *testing.T) {
		merged := Merge("Bluesky", native, []core.Interaction{
			interaction(core.InteractionComment, "c1", "Alice", "https://a", "one"),
			interaction(core.InteractionShare, "s1", "", "https://b", "Bob reposted this post on Bluesky"),
			interaction(core.InteractionLike, "l1", "Cy", "https://c", "Liked this post on Bluesky"),
		}, core.DefaultVisibility())
		require.Len(t, merged, 4)

		assert.Equal(t, "one", merged[0].Content)
		assert.Equal(t, "Alice via Bluesky", merged[0].Author)
		assert.Equal(t, "comment", merged[0].Type)
		assert.Equal(t, PseudoID("https://a", "one"), merged[0].ID)
		assert.True(t, merged[0].Synthetic)
		assert.Equal(t, when, merged[0].Date)

		assert.Equal(t, "Social User via Bluesky", merged[1].Author)
		assert.Equal(t, "pingback", merged[1].Type)
		assert.Equal(t, core.InteractionShare, merged[1].InteractionType)

		assert.Equal(t, "comment", merged[2].Type)
		assert.Equal(t, "n1", merged[3].ID)
	})

	t.Run("Visibility filters by type", func(t *testing.T) {
		interactions := []core.Interaction{
			interaction(core.InteractionComment, "c1", "Alice", "https://a", "one"),
			interaction(core.InteractionLike, "l1", "Cy", "https://c", "Liked this post on Bluesky"),
		}
		merged := Merge("Bluesky", native, interactions, core.Visibility{Comment: true})
		require.Len(t, merged, 2)
		assert.Equal(t, "one", merged[0].Content)

		merged = Merge("Bluesky", native, interactions, core.Visibility{})
		assert.Len(t, merged, 1)
	})

	t.Run("Linked interactions are ignored", func(t *testing.T) {
		linked := interaction(core.InteractionComment, "c1", "Alice", "https://a", "one")
		linked.LocalCommentID = 9
		merged := Merge("Bluesky", native, []core.Interaction{linked}, core.DefaultVisibility())
		assert.Len(t, merged, 1)
	})

	t.Run("Empty content never matches", func(t *testing.T) {
		withEmpty := []core.NativeComment{{ID: "n2", Content: ""}}
		merged := Merge("Bluesky", withEmpty, []core.Interaction{
			interaction(core.InteractionComment, "c1", "Alice", "https://a", ""),
		}, core.DefaultVisibility())
		assert.Len(t, merged, 2)
	})

	t.Run("Input slices are not modified", func(t *testing.T) {
		in := []core.NativeComment{{ID: "n1", Content: "x"}}
		_ = Merge("Bluesky", in, []core.Interaction{
			interaction(core.InteractionComment, "c1", "A", "https://a", "y"),
		}, core.DefaultVisibility())
		assert.Equal(t, []core.NativeComment{{ID: "n1", Content: "x"}}, in)
	})
}
