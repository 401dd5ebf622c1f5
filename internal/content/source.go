// Package content exposes the host system's content items and the platform
// URLs registered for them.
package content

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sho7650/social-bridge/internal/core"
)

// Source is the read-only view of content items used by the orchestrator and merger
type Source interface {
	Get(ctx context.Context, id int64) (core.ContentItem, error)
	List(ctx context.Context) ([]core.ContentItem, error)
}

// StaticSource serves content items held in memory, typically from configuration.
// Replace swaps the whole set atomically on config reload.
type StaticSource struct {
	mu    sync.RWMutex
	items map[int64]core.ContentItem
}

// NewStaticSource builds a source from a list of items
func NewStaticSource(items []core.ContentItem) (*StaticSource, error) {
	s := &StaticSource{}
	if err := s.Replace(items); err != nil {
		return nil, err
	}
	return s, nil
}

// Replace validates items and swaps them in
func (s *StaticSource) Replace(items []core.ContentItem) error {
	next := make(map[int64]core.ContentItem, len(items))
	for _, item := range items {
		if item.ID <= 0 {
			return fmt.Errorf("content item id must be positive, got %d", item.ID)
		}
		if _, dup := next[item.ID]; dup {
			return fmt.Errorf("duplicate content item id %d", item.ID)
		}
		urls := make(map[string]string, len(item.URLs))
		for platform, u := range item.URLs {
			if u != "" {
				urls[platform] = u
			}
		}
		item.URLs = urls
		next[item.ID] = item
	}

	s.mu.Lock()
	s.items = next
	s.mu.Unlock()
	return nil
}

// Get returns one item, INVALID_CONTENT_ITEM when it does not exist
func (s *StaticSource) Get(ctx context.Context, id int64) (core.ContentItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return core.ContentItem{}, core.Errorf(core.KindInvalidContentItem, "", "get_content_item", "content item %d not found", id)
	}
	return item, nil
}

// List returns every item ordered by ID
func (s *StaticSource) List(ctx context.Context) ([]core.ContentItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.ContentItem, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// WithURLFor filters items to those registered on platform
func WithURLFor(items []core.ContentItem, platform string) []core.ContentItem {
	var out []core.ContentItem
	for _, item := range items {
		if item.URLFor(platform) != "" {
			out = append(out, item)
		}
	}
	return out
}
