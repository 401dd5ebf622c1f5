package plugins

import (
	"context"
	"fmt"
	"sync"

	"github.com/sho7650/social-bridge/internal/core"
)

// mockPlatform is a shared mock implementation for testing
type mockPlatform struct {
	id string

	mu           sync.Mutex
	config       map[string]interface{}
	configureErr func(map[string]interface{}) error
	configured   int
}

func newMockPlatform(id string) *mockPlatform {
	return &mockPlatform{id: id}
}

func (p *mockPlatform) ID() string   { return p.id }
func (p *mockPlatform) Name() string { return "Mock " + p.id }

func (p *mockPlatform) ResolvePostReference(rawURL string) (core.PostRef, error) {
	return core.PostRef{Platform: p.id, URL: rawURL, PostID: "1"}, nil
}

func (p *mockPlatform) Authenticate(ctx context.Context) (core.Token, error) {
	return core.Token{Value: "token"}, nil
}

func (p *mockPlatform) FetchThread(ctx context.Context, ref core.PostRef) (core.ThreadPayload, error) {
	return core.ThreadPayload{Ref: ref}, nil
}

func (p *mockPlatform) FetchLikes(ctx context.Context, ref core.PostRef) ([]core.RawRecord, error) {
	return nil, nil
}

func (p *mockPlatform) FetchReposts(ctx context.Context, ref core.PostRef) ([]core.RawRecord, error) {
	return nil, nil
}

func (p *mockPlatform) Configure(settings map[string]interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.configured++
	if p.configureErr != nil {
		if err := p.configureErr(settings); err != nil {
			return err
		}
	}
	p.config = settings
	return nil
}

func (p *mockPlatform) CheckConfiguration() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.config["token"] == nil || p.config["token"] == "" {
		return core.Errorf(core.KindConfiguration, p.id, "check", "token is required")
	}
	return nil
}

func (p *mockPlatform) token() interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.config["token"]
}

func rejectToken(bad string) func(map[string]interface{}) error {
	return func(settings map[string]interface{}) error {
		if settings["token"] == bad {
			return fmt.Errorf("token %q rejected", bad)
		}
		return nil
	}
}
