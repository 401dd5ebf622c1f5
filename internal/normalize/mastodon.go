package normalize

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sho7650/social-bridge/internal/core"
	"github.com/sho7650/social-bridge/internal/platforms/mastodon"
)

const MastodonPlatform = mastodon.PlatformID

// DecodeMastodon handles descendant statuses and favourite/reblog account wrappers
func DecodeMastodon(rec core.RawRecord, capturedAt time.Time) (core.Interaction, error) {
	typ, err := TypeOf(rec.Kind)
	if err != nil {
		return core.Interaction{}, malformed(MastodonPlatform, rec.Kind, "%v", err)
	}

	if rec.Kind == core.KindReply {
		var status mastodon.Status
		if err := json.Unmarshal(rec.Payload, &status); err != nil {
			return core.Interaction{}, malformed(MastodonPlatform, rec.Kind, "failed to decode status: %v", err)
		}
		id := firstNonEmpty(status.URI, status.ID)
		if id == "" {
			return core.Interaction{}, malformed(MastodonPlatform, rec.Kind, "status has no id")
		}
		return core.Interaction{
			Type:          typ,
			InteractionID: id,
			Data:          mastodonData(status.Account, rec.Ref, StripMarkup(status.Content), rec.Payload),
			OccurredAt:    parseTime(status.CreatedAt),
		}, nil
	}

	var engagement mastodon.Engagement
	if err := json.Unmarshal(rec.Payload, &engagement); err != nil {
		return core.Interaction{}, malformed(MastodonPlatform, rec.Kind, "failed to decode engagement: %v", err)
	}
	var account mastodon.Account
	if err := json.Unmarshal(engagement.Account, &account); err != nil {
		return core.Interaction{}, malformed(MastodonPlatform, rec.Kind, "failed to decode account: %v", err)
	}
	if account.ID == "" {
		return core.Interaction{}, malformed(MastodonPlatform, rec.Kind, "account has no id")
	}
	statusID := firstNonEmpty(engagement.StatusID, rec.Ref.PostID)
	name := firstNonEmpty(account.DisplayName, account.Username)

	if rec.Kind == core.KindLike {
		return core.Interaction{
			Type:          typ,
			InteractionID: fmt.Sprintf("favourite_%s_%s", statusID, account.ID),
			Data:          mastodonData(account, rec.Ref, "Liked this post on Mastodon", engagement.Account),
			OccurredAt:    capturedAt,
		}, nil
	}
	return core.Interaction{
		Type:          typ,
		InteractionID: fmt.Sprintf("reblog_%s_%s", statusID, account.ID),
		Data:          mastodonData(account, rec.Ref, name+" boosted this post on Mastodon", engagement.Account),
		OccurredAt:    capturedAt,
	}, nil
}

func mastodonData(account mastodon.Account, ref core.PostRef, content string, raw json.RawMessage) core.InteractionData {
	url := account.URL
	if url == "" {
		url = mastodon.ProfileURL(firstNonEmpty(account.Acct, account.Username), ref.InstanceURL)
	}
	return core.InteractionData{
		AuthorName:   firstNonEmpty(account.DisplayName, account.Username),
		AuthorURL:    url,
		AuthorAvatar: account.Avatar,
		Content:      content,
		Raw:          raw,
	}
}
