package merger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sho7650/social-bridge/internal/content"
	"github.com/sho7650/social-bridge/internal/core"
	"github.com/sho7650/social-bridge/internal/logger"
)

// ErrInvalidType is returned for an interaction type filter outside comment, like and share
var ErrInvalidType = errors.New("unknown interaction type")

// Store is the read side of the interaction store
type Store interface {
	QueryByContentItem(ctx context.Context, query core.InteractionQuery) ([]core.Interaction, error)
	CountByContentItem(ctx context.Context, query core.InteractionQuery) (int, error)
}

// Platforms lists the platforms whose interactions are shown
type Platforms interface {
	Active() []core.Platform
	Lookup(id string) (core.Platform, error)
}

// VisibilityFunc returns the current per-type visibility. It is called on
// every read so settings changes apply immediately.
type VisibilityFunc func() core.Visibility

// Service answers the read-path operations over the store
type Service struct {
	store      Store
	content    content.Source
	platforms  Platforms
	visibility VisibilityFunc
	log        *slog.Logger
}

// NewService creates a merger service. A nil visibility shows every type.
func NewService(store Store, src content.Source, platforms Platforms, visibility VisibilityFunc, log *slog.Logger) *Service {
	if visibility == nil {
		visibility = core.DefaultVisibility
	}
	return &Service{
		store:      store,
		content:    src,
		platforms:  platforms,
		visibility: visibility,
		log:        logger.Or(log),
	}
}

// GetMergedComments overlays the unlinked interactions of every configured
// platform registered for the item onto native.
func (s *Service) GetMergedComments(ctx context.Context, contentItemID int64, native []core.NativeComment) ([]core.MergedComment, error) {
	platforms, err := s.sources(ctx, contentItemID)
	if err != nil {
		return nil, err
	}
	vis := s.visibility()

	var synthesized []core.MergedComment
	for _, p := range platforms {
		interactions, err := s.store.QueryByContentItem(ctx, core.InteractionQuery{
			ContentItemID: contentItemID,
			Platform:      p.ID(),
			UnlinkedOnly:  true,
		})
		if err != nil {
			return nil, err
		}
		synthesized = append(synthesized, Synthesize(p.Name(), native, interactions, vis)...)
	}

	out := make([]core.MergedComment, 0, len(synthesized)+len(native))
	out = append(out, synthesized...)
	for _, n := range native {
		out = append(out, core.MergedComment{NativeComment: n})
	}
	return out, nil
}

// CommentCount adds the unlinked stored interactions of every configured
// platform registered for the item to nativeCount.
func (s *Service) CommentCount(ctx context.Context, contentItemID int64, nativeCount int) (int, error) {
	platforms, err := s.sources(ctx, contentItemID)
	if err != nil {
		return 0, err
	}

	total := nativeCount
	for _, p := range platforms {
		n, err := s.store.CountByContentItem(ctx, core.InteractionQuery{
			ContentItemID: contentItemID,
			Platform:      p.ID(),
			UnlinkedOnly:  true,
		})
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// GetInteractions lists stored interactions for an item, newest first.
// Empty platformID or typ means no filter.
func (s *Service) GetInteractions(ctx context.Context, contentItemID int64, platformID string, typ core.InteractionType) ([]core.Interaction, error) {
	if _, err := s.content.Get(ctx, contentItemID); err != nil {
		return nil, err
	}
	if platformID != "" {
		if _, err := s.platforms.Lookup(platformID); err != nil {
			return nil, err
		}
	}
	if typ != "" && !typ.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidType, typ)
	}

	return s.store.QueryByContentItem(ctx, core.InteractionQuery{
		ContentItemID: contentItemID,
		Platform:      platformID,
		Type:          typ,
	})
}

// sources returns the configured platforms with a URL registered for the item
func (s *Service) sources(ctx context.Context, contentItemID int64) ([]core.Platform, error) {
	item, err := s.content.Get(ctx, contentItemID)
	if err != nil {
		return nil, err
	}

	var out []core.Platform
	for _, p := range s.platforms.Active() {
		if item.URLFor(p.ID()) == "" {
			continue
		}
		if err := p.CheckConfiguration(); err != nil {
			s.log.Debug("merge_platform_skipped", "platform", p.ID(), "error", err)
			continue
		}
		out = append(out, p)
	}
	return out, nil
}
