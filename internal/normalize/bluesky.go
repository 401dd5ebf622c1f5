package normalize

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sho7650/social-bridge/internal/core"
	"github.com/sho7650/social-bridge/internal/platforms/bluesky"
)

const BlueskyPlatform = bluesky.PlatformID

// DecodeBluesky handles replies (post views), likes and repost actors
func DecodeBluesky(rec core.RawRecord, capturedAt time.Time) (core.Interaction, error) {
	typ, err := TypeOf(rec.Kind)
	if err != nil {
		return core.Interaction{}, malformed(BlueskyPlatform, rec.Kind, "%v", err)
	}

	switch rec.Kind {
	case core.KindReply:
		var post bluesky.PostView
		if err := json.Unmarshal(rec.Payload, &post); err != nil {
			return core.Interaction{}, malformed(BlueskyPlatform, rec.Kind, "failed to decode post: %v", err)
		}
		if post.URI == "" || post.Author.Handle == "" {
			return core.Interaction{}, malformed(BlueskyPlatform, rec.Kind, "post is missing uri or author handle")
		}
		return core.Interaction{
			Type:          typ,
			InteractionID: post.URI,
			Data:          blueskyData(post.Author, StripMarkup(post.Record.Text), rec.Payload),
			OccurredAt:    parseTime(post.IndexedAt, post.Record.CreatedAt),
		}, nil

	case core.KindLike:
		var like bluesky.Like
		if err := json.Unmarshal(rec.Payload, &like); err != nil {
			return core.Interaction{}, malformed(BlueskyPlatform, rec.Kind, "failed to decode like: %v", err)
		}
		if like.Actor.Handle == "" {
			return core.Interaction{}, malformed(BlueskyPlatform, rec.Kind, "like is missing actor handle")
		}
		id := like.CreatedAt + "_" + like.Actor.Handle
		if like.CreatedAt == "" {
			id = fmt.Sprintf("like_%s_%s", rec.Ref.PostID, like.Actor.Handle)
		}
		return core.Interaction{
			Type:          typ,
			InteractionID: id,
			Data:          blueskyData(like.Actor, "Liked this post on Bluesky", rec.Payload),
			OccurredAt:    parseTime(like.CreatedAt, like.IndexedAt),
		}, nil

	default:
		var actor bluesky.ProfileView
		if err := json.Unmarshal(rec.Payload, &actor); err != nil {
			return core.Interaction{}, malformed(BlueskyPlatform, rec.Kind, "failed to decode actor: %v", err)
		}
		if actor.Handle == "" {
			return core.Interaction{}, malformed(BlueskyPlatform, rec.Kind, "repost is missing actor handle")
		}
		name := firstNonEmpty(actor.DisplayName, actor.Handle)
		return core.Interaction{
			Type:          typ,
			InteractionID: fmt.Sprintf("repost_%s_%s", rec.Ref.PostID, actor.Handle),
			Data:          blueskyData(actor, name+" reposted this post on Bluesky", rec.Payload),
			OccurredAt:    capturedAt,
		}, nil
	}
}

func blueskyData(actor bluesky.ProfileView, content string, raw json.RawMessage) core.InteractionData {
	return core.InteractionData{
		AuthorName:   firstNonEmpty(actor.DisplayName, actor.Handle),
		AuthorURL:    bluesky.ProfileURL(actor.Handle),
		AuthorAvatar: actor.Avatar,
		Content:      content,
		Raw:          raw,
	}
}
