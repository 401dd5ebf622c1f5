package bluesky

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/sho7650/social-bridge/internal/core"
	"github.com/sho7650/social-bridge/internal/platforms/transport"
)

const (
	PlatformID        = "bluesky"
	PlatformName      = "Bluesky"
	DefaultServiceURL = "https://bsky.social"

	// MaxThreadDepth bounds how deep the reply tree is walked
	MaxThreadDepth = 5
	pageSize       = 100
)

var postURLPattern = regexp.MustCompile(`^https?://(?:www\.)?bsky\.app/profile/([^/?#]+)/post/([^/?#]+)/?(?:[?#].*)?$`)

// Client talks to a Bluesky PDS over XRPC
type Client struct {
	mu          sync.Mutex
	handle      string
	appPassword string
	serviceURL  string
	transport   *transport.Client
	session     *core.Token
}

// Option configures a Client
type Option func(*Client)

// WithTransport replaces the default transport
func WithTransport(t *transport.Client) Option {
	return func(c *Client) { c.transport = t }
}

// WithServiceURL points the client at a different PDS
func WithServiceURL(u string) Option {
	return func(c *Client) { c.serviceURL = strings.TrimRight(u, "/") }
}

// New creates an unconfigured Bluesky client
func New(opts ...Option) *Client {
	c := &Client{serviceURL: DefaultServiceURL}
	for _, opt := range opts {
		opt(c)
	}
	if c.transport == nil {
		c.transport = transport.New(PlatformID, transport.Options{})
	}
	return c
}

var _ core.Platform = (*Client)(nil)
var _ core.SessionResetter = (*Client)(nil)

func (c *Client) ID() string   { return PlatformID }
func (c *Client) Name() string { return PlatformName }

// Metadata describes the platform for the registry
func (c *Client) Metadata() core.PlatformMetadata {
	return core.PlatformMetadata{
		ID:          PlatformID,
		Name:        PlatformName,
		Version:     "1.0.0",
		Description: "Bluesky replies, likes and reposts via XRPC",
	}
}

// Configure applies handle, app_password and service_url settings
func (c *Client) Configure(settings map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handle = stringSetting(settings, "handle")
	c.appPassword = stringSetting(settings, "app_password")
	if u := stringSetting(settings, "service_url"); u != "" {
		parsed, err := url.Parse(u)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return core.Errorf(core.KindConfiguration, PlatformID, "configure", "invalid service_url %q", u)
		}
		c.serviceURL = strings.TrimRight(u, "/")
	}
	c.session = nil
	return nil
}

// CheckConfiguration reports CONFIGURATION_ERROR when credentials are missing
func (c *Client) CheckConfiguration() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handle == "" || c.appPassword == "" {
		return core.Errorf(core.KindConfiguration, PlatformID, "check configuration", "handle and app_password are required")
	}
	return nil
}

// ResolvePostReference parses https://bsky.app/profile/{author}/post/{id}
func (c *Client) ResolvePostReference(rawURL string) (core.PostRef, error) {
	m := postURLPattern.FindStringSubmatch(strings.TrimSpace(rawURL))
	if m == nil {
		return core.PostRef{}, core.Errorf(core.KindInvalidURL, PlatformID, "resolve post reference", "not a Bluesky post URL: %q", rawURL)
	}
	return core.PostRef{
		Platform: PlatformID,
		URL:      rawURL,
		Author:   m[1],
		PostID:   m[2],
	}, nil
}

// Authenticate creates a session once and reuses it until ResetSession
func (c *Client) Authenticate(ctx context.Context) (core.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return *c.session, nil
	}
	if c.handle == "" || c.appPassword == "" {
		return core.Token{}, core.Errorf(core.KindConfiguration, PlatformID, "authenticate", "handle and app_password are required")
	}

	var resp sessionResponse
	err := c.transport.PostJSON(ctx, "authenticate", c.serviceURL+"/xrpc/com.atproto.server.createSession",
		sessionRequest{Identifier: c.handle, Password: c.appPassword}, "", &resp)
	if err != nil {
		switch core.KindOf(err) {
		case core.KindTransient, core.KindRateLimited:
			return core.Token{}, err
		}
		return core.Token{}, core.NewSyncError(core.KindAuthFailed, PlatformID, "authenticate", err)
	}
	if resp.AccessJwt == "" {
		return core.Token{}, core.Errorf(core.KindAuthFailed, PlatformID, "authenticate", "session response carried no access token")
	}

	c.session = &core.Token{Value: resp.AccessJwt, Subject: resp.DID}
	return *c.session, nil
}

// ResetSession forgets the cached session so the next pass logs in again
func (c *Client) ResetSession() {
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
}

// FetchThread returns the post and its replies flattened in pre-order, at most MaxThreadDepth deep
func (c *Client) FetchThread(ctx context.Context, ref core.PostRef) (core.ThreadPayload, error) {
	token, err := c.Authenticate(ctx)
	if err != nil {
		return core.ThreadPayload{}, err
	}

	query := url.Values{
		"uri":   {atURI(ref)},
		"depth": {fmt.Sprint(MaxThreadDepth)},
	}
	var resp threadResponse
	if err := c.transport.GetJSON(ctx, "fetch thread", c.endpoint("app.bsky.feed.getPostThread"), query, token.Value, &resp); err != nil {
		return core.ThreadPayload{}, err
	}
	if resp.Thread == nil {
		return core.ThreadPayload{}, core.Errorf(core.KindMalformedResponse, PlatformID, "fetch thread", "response has no thread")
	}
	if resp.Thread.NotFound || resp.Thread.Blocked || len(resp.Thread.Post) == 0 {
		return core.ThreadPayload{}, core.Errorf(core.KindNotFound, PlatformID, "fetch thread", "post %s is unavailable", atURI(ref))
	}

	payload := core.ThreadPayload{Ref: ref, Root: resp.Thread.Post}
	payload.Replies, payload.Truncated = flattenReplies(ref, resp.Thread.Replies)
	return payload, nil
}

type pending struct {
	node  *threadNode
	depth int
}

// flattenReplies walks the reply tree with an explicit stack
func flattenReplies(ref core.PostRef, top []threadNode) ([]core.RawRecord, bool) {
	var out []core.RawRecord
	truncated := false

	stack := make([]pending, 0, len(top))
	for i := len(top) - 1; i >= 0; i-- {
		stack = append(stack, pending{node: &top[i], depth: 1})
	}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if cur.node.NotFound || cur.node.Blocked || len(cur.node.Post) == 0 {
			continue
		}
		out = append(out, core.RawRecord{
			Platform: PlatformID,
			Kind:     core.KindReply,
			Ref:      ref,
			Depth:    cur.depth,
			Payload:  cur.node.Post,
		})

		if len(cur.node.Replies) == 0 {
			continue
		}
		if cur.depth >= MaxThreadDepth {
			truncated = true
			continue
		}
		for i := len(cur.node.Replies) - 1; i >= 0; i-- {
			stack = append(stack, pending{node: &cur.node.Replies[i], depth: cur.depth + 1})
		}
	}
	return out, truncated
}

// FetchLikes returns the first page of likes
func (c *Client) FetchLikes(ctx context.Context, ref core.PostRef) ([]core.RawRecord, error) {
	token, err := c.Authenticate(ctx)
	if err != nil {
		return nil, err
	}

	var resp likesResponse
	query := url.Values{"uri": {atURI(ref)}, "limit": {fmt.Sprint(pageSize)}}
	if err := c.transport.GetJSON(ctx, "fetch likes", c.endpoint("app.bsky.feed.getLikes"), query, token.Value, &resp); err != nil {
		return nil, err
	}

	records := make([]core.RawRecord, 0, len(resp.Likes))
	for _, like := range resp.Likes {
		records = append(records, core.RawRecord{Platform: PlatformID, Kind: core.KindLike, Ref: ref, Payload: like})
	}
	return records, nil
}

// FetchReposts returns the first page of reposting actors
func (c *Client) FetchReposts(ctx context.Context, ref core.PostRef) ([]core.RawRecord, error) {
	token, err := c.Authenticate(ctx)
	if err != nil {
		return nil, err
	}

	var resp repostedByResponse
	query := url.Values{"uri": {atURI(ref)}, "limit": {fmt.Sprint(pageSize)}}
	if err := c.transport.GetJSON(ctx, "fetch reposts", c.endpoint("app.bsky.feed.getRepostedBy"), query, token.Value, &resp); err != nil {
		return nil, err
	}

	records := make([]core.RawRecord, 0, len(resp.RepostedBy))
	for _, actor := range resp.RepostedBy {
		records = append(records, core.RawRecord{Platform: PlatformID, Kind: core.KindRepost, Ref: ref, Payload: actor})
	}
	return records, nil
}

func (c *Client) endpoint(method string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serviceURL + "/xrpc/" + method
}

func atURI(ref core.PostRef) string {
	return "at://" + ref.Author + "/app.bsky.feed.post/" + ref.PostID
}

// ProfileURL builds the public profile link for a handle
func ProfileURL(handle string) string {
	return "https://bsky.app/profile/" + handle
}

func stringSetting(settings map[string]interface{}, key string) string {
	if v, ok := settings[key]; ok {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
