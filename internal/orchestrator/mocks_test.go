package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sho7650/social-bridge/internal/core"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakePayload is the record shape understood by decodeFake
type fakePayload struct {
	ID     string `json:"id"`
	Author string `json:"author"`
	Text   string `json:"text"`
}

// fakePlatform serves canned records for URLs of the form fake://post/{id}
type fakePlatform struct {
	id string

	mu         sync.Mutex
	configured bool
	authErr    error
	threadErr  map[string]error
	replies    map[string][]fakePayload
	likes      map[string][]fakePayload
	reposts    map[string][]fakePayload
	fetches    int
	resets     int
	onFetch    func()
}

func newFakePlatform(id string) *fakePlatform {
	return &fakePlatform{
		id:         id,
		configured: true,
		threadErr:  make(map[string]error),
		replies:    make(map[string][]fakePayload),
		likes:      make(map[string][]fakePayload),
		reposts:    make(map[string][]fakePayload),
	}
}

func (p *fakePlatform) ID() string   { return p.id }
func (p *fakePlatform) Name() string { return strings.ToUpper(p.id) }

func (p *fakePlatform) ResolvePostReference(rawURL string) (core.PostRef, error) {
	postID, ok := strings.CutPrefix(rawURL, "fake://post/")
	if !ok || postID == "" {
		return core.PostRef{}, core.Errorf(core.KindInvalidURL, p.id, "resolve", "unrecognized url %q", rawURL)
	}
	return core.PostRef{Platform: p.id, URL: rawURL, PostID: postID}, nil
}

func (p *fakePlatform) Authenticate(ctx context.Context) (core.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.authErr != nil {
		return core.Token{}, p.authErr
	}
	return core.Token{Value: "token"}, nil
}

func (p *fakePlatform) FetchThread(ctx context.Context, ref core.PostRef) (core.ThreadPayload, error) {
	p.mu.Lock()
	p.fetches++
	hook := p.onFetch
	err := p.threadErr[ref.PostID]
	replies := p.replies[ref.PostID]
	p.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return core.ThreadPayload{}, err
	}
	return core.ThreadPayload{Ref: ref, Replies: p.records(ref, core.KindReply, replies)}, nil
}

func (p *fakePlatform) FetchLikes(ctx context.Context, ref core.PostRef) ([]core.RawRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.records(ref, core.KindLike, p.likes[ref.PostID]), nil
}

func (p *fakePlatform) FetchReposts(ctx context.Context, ref core.PostRef) ([]core.RawRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.records(ref, core.KindRepost, p.reposts[ref.PostID]), nil
}

func (p *fakePlatform) records(ref core.PostRef, kind core.RecordKind, payloads []fakePayload) []core.RawRecord {
	out := make([]core.RawRecord, 0, len(payloads))
	for _, pl := range payloads {
		raw, _ := json.Marshal(pl)
		out = append(out, core.RawRecord{Platform: p.id, Kind: kind, Ref: ref, Payload: raw})
	}
	return out
}

func (p *fakePlatform) Configure(settings map[string]interface{}) error { return nil }

func (p *fakePlatform) CheckConfiguration() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.configured {
		return core.Errorf(core.KindConfiguration, p.id, "check", "credentials missing")
	}
	return nil
}

func (p *fakePlatform) ResetSession() {
	p.mu.Lock()
	p.resets++
	p.mu.Unlock()
}

func (p *fakePlatform) fetchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetches
}

func (p *fakePlatform) resetCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resets
}

// decodeFake is the normalizer decoder for fakePlatform records
func decodeFake(rec core.RawRecord, capturedAt time.Time) (core.Interaction, error) {
	var pl fakePayload
	if err := json.Unmarshal(rec.Payload, &pl); err != nil || pl.ID == "" {
		return core.Interaction{}, core.Errorf(core.KindMalformedResponse, rec.Platform, "normalize", "bad fake record")
	}
	types := map[core.RecordKind]core.InteractionType{
		core.KindReply:  core.InteractionComment,
		core.KindLike:   core.InteractionLike,
		core.KindRepost: core.InteractionShare,
	}
	return core.Interaction{
		Type:          types[rec.Kind],
		InteractionID: fmt.Sprintf("%s_%s", rec.Kind, pl.ID),
		Data:          core.InteractionData{AuthorName: pl.Author, Content: pl.Text},
		OccurredAt:    capturedAt,
	}, nil
}

// mockStore is a testify mock of storage.InteractionStore
type mockStore struct {
	mock.Mock
}

func (m *mockStore) Initialize(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *mockStore) Close() error                         { return m.Called().Error(0) }
func (m *mockStore) IsReady() bool                        { return m.Called().Bool(0) }

func (m *mockStore) Upsert(ctx context.Context, interaction *core.Interaction) (core.UpsertResult, error) {
	args := m.Called(ctx, interaction)
	return args.Get(0).(core.UpsertResult), args.Error(1)
}

func (m *mockStore) QueryByContentItem(ctx context.Context, query core.InteractionQuery) ([]core.Interaction, error) {
	args := m.Called(ctx, query)
	return args.Get(0).([]core.Interaction), args.Error(1)
}

func (m *mockStore) CountByContentItem(ctx context.Context, query core.InteractionQuery) (int, error) {
	args := m.Called(ctx, query)
	return args.Int(0), args.Error(1)
}

func (m *mockStore) SaveSyncSummary(ctx context.Context, summary core.SyncSummary) error {
	return m.Called(ctx, summary).Error(0)
}

func (m *mockStore) GetLastSyncSummary(ctx context.Context) (*core.SyncSummary, error) {
	args := m.Called(ctx)
	summary, _ := args.Get(0).(*core.SyncSummary)
	return summary, args.Error(1)
}

func (m *mockStore) AcquireLock(ctx context.Context, name, owner string, at, staleBefore time.Time) (bool, error) {
	args := m.Called(ctx, name, owner, at, staleBefore)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) ReleaseLock(ctx context.Context, name, owner string) (bool, error) {
	args := m.Called(ctx, name, owner)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) LockHolder(ctx context.Context, name string) (string, time.Time, bool, error) {
	args := m.Called(ctx, name)
	return args.String(0), args.Get(1).(time.Time), args.Bool(2), args.Error(3)
}
