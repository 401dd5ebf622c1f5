package normalize

import (
	"fmt"
	"sync"
	"time"

	"github.com/sho7650/social-bridge/internal/core"
)

// DecodeFunc converts one platform's raw record into a canonical interaction.
// It must be pure: identical input yields identical output.
type DecodeFunc func(rec core.RawRecord, capturedAt time.Time) (core.Interaction, error)

// Normalizer dispatches raw records to per-platform decoders
type Normalizer struct {
	mu       sync.RWMutex
	decoders map[string]DecodeFunc
}

// New creates an empty normalizer
func New() *Normalizer {
	return &Normalizer{decoders: make(map[string]DecodeFunc)}
}

// Default returns a normalizer with the Bluesky and Mastodon decoders registered
func Default() *Normalizer {
	n := New()
	n.Register(BlueskyPlatform, DecodeBluesky)
	n.Register(MastodonPlatform, DecodeMastodon)
	return n
}

// Register installs the decoder for a platform, replacing any previous one
func (n *Normalizer) Register(platform string, fn DecodeFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.decoders[platform] = fn
}

// Normalize converts rec. The content item is left for the caller to attach.
func (n *Normalizer) Normalize(rec core.RawRecord, capturedAt time.Time) (core.Interaction, error) {
	n.mu.RLock()
	fn, ok := n.decoders[rec.Platform]
	n.mu.RUnlock()
	if !ok {
		return core.Interaction{}, core.Errorf(core.KindInvalidPlatform, rec.Platform, "normalize", "no decoder registered")
	}

	interaction, err := fn(rec, capturedAt.UTC())
	if err != nil {
		return core.Interaction{}, err
	}
	interaction.Platform = rec.Platform
	if interaction.OccurredAt.IsZero() {
		interaction.OccurredAt = capturedAt.UTC()
	}
	return interaction, nil
}

// TypeOf maps a raw record kind onto the canonical interaction type
func TypeOf(kind core.RecordKind) (core.InteractionType, error) {
	switch kind {
	case core.KindReply:
		return core.InteractionComment, nil
	case core.KindLike:
		return core.InteractionLike, nil
	case core.KindRepost:
		return core.InteractionShare, nil
	}
	return "", fmt.Errorf("unknown record kind %q", kind)
}

// parseTime accepts RFC 3339 timestamps with or without fractional seconds
func parseTime(values ...string) time.Time {
	for _, v := range values {
		if v == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func malformed(platform string, kind core.RecordKind, format string, args ...interface{}) error {
	return core.Errorf(core.KindMalformedResponse, platform, "normalize "+string(kind), format, args...)
}
