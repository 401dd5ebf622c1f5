package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// InteractionType classifies an upstream engagement
type InteractionType string

const (
	InteractionComment InteractionType = "comment"
	InteractionLike    InteractionType = "like"
	InteractionShare   InteractionType = "share"
)

// Valid reports whether t is one of the known interaction types
func (t InteractionType) Valid() bool {
	switch t {
	case InteractionComment, InteractionLike, InteractionShare:
		return true
	}
	return false
}

// Mutable reports whether stored records of this type are refreshed on re-sync
func (t InteractionType) Mutable() bool {
	return t == InteractionComment
}

// InteractionData is the structured payload stored alongside an interaction
type InteractionData struct {
	AuthorName   string          `json:"author_name"`
	AuthorURL    string          `json:"author_url"`
	AuthorAvatar string          `json:"author_avatar,omitempty"`
	Content      string          `json:"content"`
	Raw          json.RawMessage `json:"raw,omitempty"`
}

// Interaction is the canonical record of one upstream comment, like, or repost
type Interaction struct {
	Platform       string          `json:"platform"`
	ContentItemID  int64           `json:"content_item_id"`
	Type           InteractionType `json:"interaction_type"`
	InteractionID  string          `json:"interaction_id"`
	Data           InteractionData `json:"data"`
	OccurredAt     time.Time       `json:"occurred_at"`
	LocalCommentID int64           `json:"local_comment_id"`
}

// Validate checks if Interaction has required fields
func (i *Interaction) Validate() error {
	if i.Platform == "" {
		return fmt.Errorf("interaction platform cannot be empty")
	}
	if i.InteractionID == "" {
		return fmt.Errorf("interaction ID cannot be empty")
	}
	if i.ContentItemID <= 0 {
		return fmt.Errorf("interaction content item ID must be positive, got %d", i.ContentItemID)
	}
	if !i.Type.Valid() {
		return fmt.Errorf("interaction type must be 'comment', 'like', or 'share', got: %s", i.Type)
	}
	if i.OccurredAt.IsZero() {
		return fmt.Errorf("interaction occurred_at cannot be zero")
	}
	return nil
}

// UpsertResult reports what an idempotent upsert did
type UpsertResult string

const (
	UpsertInserted  UpsertResult = "inserted"
	UpsertUpdated   UpsertResult = "updated"
	UpsertUnchanged UpsertResult = "unchanged"
)

// InteractionQuery filters interactions attached to one content item
type InteractionQuery struct {
	ContentItemID int64
	Platform      string
	Type          InteractionType
	UnlinkedOnly  bool
	Limit         int
}

// PostRef identifies a post on a platform
type PostRef struct {
	Platform    string `json:"platform"`
	URL         string `json:"url"`
	Author      string `json:"author,omitempty"`
	PostID      string `json:"post_id"`
	InstanceURL string `json:"instance_url,omitempty"`
	Username    string `json:"username,omitempty"`
}

// RecordKind tells the normalizer which upstream shape a raw record carries
type RecordKind string

const (
	KindReply  RecordKind = "reply"
	KindLike   RecordKind = "like"
	KindRepost RecordKind = "repost"
)

// RawRecord is one upstream record as returned by a platform client
type RawRecord struct {
	Platform string          `json:"platform"`
	Kind     RecordKind      `json:"kind"`
	Ref      PostRef         `json:"ref"`
	Depth    int             `json:"depth,omitempty"`
	Payload  json.RawMessage `json:"payload"`
}

// ThreadPayload is a post plus its flattened reply tree
type ThreadPayload struct {
	Ref       PostRef         `json:"ref"`
	Root      json.RawMessage `json:"root,omitempty"`
	Replies   []RawRecord     `json:"replies"`
	Truncated bool            `json:"truncated"`
}

// Token is a bearer credential valid for one orchestration pass
type Token struct {
	Value     string
	Subject   string
	ExpiresAt time.Time
}

// ContentItem is a local unit of published material with its registered platform URLs
type ContentItem struct {
	ID    int64             `yaml:"id" json:"id"`
	Title string            `yaml:"title" json:"title,omitempty"`
	URLs  map[string]string `yaml:"urls" json:"urls"`
}

// URLFor returns the registered URL for a platform, empty when none
func (c ContentItem) URLFor(platform string) string {
	if c.URLs == nil {
		return ""
	}
	return c.URLs[platform]
}

// NativeComment is a comment owned by the host content system
type NativeComment struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	AuthorURL string    `json:"author_url,omitempty"`
	Content   string    `json:"content"`
	Date      time.Time `json:"date"`
	Type      string    `json:"type,omitempty"`
}

// MergedComment is an entry of the unified read-time comment list
type MergedComment struct {
	NativeComment
	Platform        string          `json:"platform,omitempty"`
	InteractionType InteractionType `json:"interaction_type,omitempty"`
	Avatar          string          `json:"avatar,omitempty"`
	Synthetic       bool            `json:"synthetic"`
}

// Visibility toggles which interaction types appear in merged lists
type Visibility struct {
	Comment bool `yaml:"comment" json:"comment"`
	Share   bool `yaml:"share" json:"share"`
	Like    bool `yaml:"like" json:"like"`
}

// DefaultVisibility shows every interaction type
func DefaultVisibility() Visibility {
	return Visibility{Comment: true, Share: true, Like: true}
}

// Allows reports whether interactions of type t are visible
func (v Visibility) Allows(t InteractionType) bool {
	switch t {
	case InteractionComment:
		return v.Comment
	case InteractionShare:
		return v.Share
	case InteractionLike:
		return v.Like
	}
	return false
}

// SyncTrigger records what started an orchestration pass
type SyncTrigger string

const (
	TriggerScheduled SyncTrigger = "scheduled"
	TriggerManual    SyncTrigger = "manual"
)

// PlatformRunStats holds per-platform counters of one pass
type PlatformRunStats struct {
	ItemsProcessed int  `json:"items_processed"`
	Inserted       int  `json:"inserted"`
	Updated        int  `json:"updated"`
	Unchanged      int  `json:"unchanged"`
	Errors         int  `json:"errors"`
	Skipped        bool `json:"skipped,omitempty"`
}

// SyncSummary is the retained record of the latest orchestration pass
type SyncSummary struct {
	RunID               string                      `json:"run_id"`
	Trigger             SyncTrigger                 `json:"trigger"`
	StartedAt           time.Time                   `json:"started_at"`
	CompletedAt         time.Time                   `json:"completed_at"`
	PlatformsProcessed  int                         `json:"platforms_processed"`
	ItemsProcessed      int                         `json:"items_processed"`
	NewInteractions     int                         `json:"new_interactions"`
	UpdatedInteractions int                         `json:"updated_interactions"`
	ErrorCount          int                         `json:"error_count"`
	PerPlatform         map[string]PlatformRunStats `json:"per_platform,omitempty"`
}

// Duration returns how long the pass took
func (s SyncSummary) Duration() time.Duration {
	if s.CompletedAt.IsZero() {
		return 0
	}
	return s.CompletedAt.Sub(s.StartedAt)
}
