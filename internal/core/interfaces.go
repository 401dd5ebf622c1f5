package core

import (
	"context"
)

// SyncCapable is the fetch side of a platform client
type SyncCapable interface {
	ID() string
	Name() string

	// ResolvePostReference parses a public post URL without touching the network
	ResolvePostReference(rawURL string) (PostRef, error)
	Authenticate(ctx context.Context) (Token, error)
	FetchThread(ctx context.Context, ref PostRef) (ThreadPayload, error)
	FetchLikes(ctx context.Context, ref PostRef) ([]RawRecord, error)
	FetchReposts(ctx context.Context, ref PostRef) ([]RawRecord, error)
}

// Configurable is the credential side of a platform client
type Configurable interface {
	Configure(settings map[string]interface{}) error
	CheckConfiguration() error
}

// SessionResetter drops credentials cached during a pass
type SessionResetter interface {
	ResetSession()
}

// Platform is a fully capable platform client
type Platform interface {
	SyncCapable
	Configurable
}

// PlatformMetadata describes a registered platform
type PlatformMetadata struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
}

// Validate checks if PlatformMetadata is valid
func (p *PlatformMetadata) Validate() error {
	if p.ID == "" {
		return Errorf(KindConfiguration, "", "validate", "platform id cannot be empty")
	}
	if p.Name == "" {
		return Errorf(KindConfiguration, p.ID, "validate", "platform name cannot be empty")
	}
	return nil
}

// Describer is implemented by platforms that publish metadata
type Describer interface {
	Metadata() PlatformMetadata
}

// MetadataOf returns a platform's metadata, derived from ID and Name when it publishes none
func MetadataOf(p SyncCapable) PlatformMetadata {
	if d, ok := p.(Describer); ok {
		return d.Metadata()
	}
	return PlatformMetadata{ID: p.ID(), Name: p.Name()}
}
