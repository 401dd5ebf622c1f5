package mastodon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/sho7650/social-bridge/internal/core"
	"github.com/sho7650/social-bridge/internal/platforms/transport"
)

const (
	PlatformID   = "mastodon"
	PlatformName = "Mastodon"

	// MaxThreadDepth bounds how many reply levels below the status are kept
	MaxThreadDepth = 5
	pageSize       = 100
)

// statusURLPattern matches the web form /@{user}/{id} and the ActivityPub
// form /users/{user}/statuses/{id}
var statusURLPattern = regexp.MustCompile(`^(https?://[^/?#]+)/(?:@([^/?#]+)|users/([^/?#]+)/statuses)/([0-9]+)/?(?:[?#].*)?$`)

// Client reads statuses and engagement from Mastodon instances
type Client struct {
	mu          sync.Mutex
	instanceURL string
	accessToken string
	transport   *transport.Client
	verified    *core.Token
}

// Option configures a Client
type Option func(*Client)

// WithTransport replaces the default transport
func WithTransport(t *transport.Client) Option {
	return func(c *Client) { c.transport = t }
}

// New creates an unconfigured Mastodon client
func New(opts ...Option) *Client {
	c := &Client{}
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
		Description: "Mastodon replies, favourites and boosts via the REST API",
	}
}

// Configure applies instance_url and access_token settings
func (c *Client) Configure(settings map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	instance := stringSetting(settings, "instance_url")
	if instance != "" {
		parsed, err := url.Parse(instance)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return core.Errorf(core.KindConfiguration, PlatformID, "configure", "invalid instance_url %q", instance)
		}
	}
	c.instanceURL = strings.TrimRight(instance, "/")
	c.accessToken = stringSetting(settings, "access_token")
	c.verified = nil
	return nil
}

// CheckConfiguration reports CONFIGURATION_ERROR when the instance or token is missing
func (c *Client) CheckConfiguration() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.instanceURL == "" || c.accessToken == "" {
		return core.Errorf(core.KindConfiguration, PlatformID, "check configuration", "instance_url and access_token are required")
	}
	return nil
}

// ResolvePostReference parses https://{instance}/@{user}/{status id} or
// https://{instance}/users/{user}/statuses/{status id}
func (c *Client) ResolvePostReference(rawURL string) (core.PostRef, error) {
	m := statusURLPattern.FindStringSubmatch(strings.TrimSpace(rawURL))
	if m == nil {
		return core.PostRef{}, core.Errorf(core.KindInvalidURL, PlatformID, "resolve post reference", "not a Mastodon status URL: %q", rawURL)
	}
	username := m[2]
	if username == "" {
		username = m[3]
	}
	return core.PostRef{
		Platform:    PlatformID,
		URL:         rawURL,
		InstanceURL: m[1],
		Username:    username,
		PostID:      m[4],
	}, nil
}

// Authenticate verifies the access token against the configured instance once per pass
func (c *Client) Authenticate(ctx context.Context) (core.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.verified != nil {
		return *c.verified, nil
	}
	if c.instanceURL == "" || c.accessToken == "" {
		return core.Token{}, core.Errorf(core.KindConfiguration, PlatformID, "authenticate", "instance_url and access_token are required")
	}

	var account Account
	err := c.transport.GetJSON(ctx, "authenticate", c.instanceURL+"/api/v1/accounts/verify_credentials", nil, c.accessToken, &account)
	if err != nil {
		switch core.KindOf(err) {
		case core.KindTransient, core.KindRateLimited:
			return core.Token{}, err
		}
		return core.Token{}, core.NewSyncError(core.KindAuthFailed, PlatformID, "authenticate", err)
	}

	c.verified = &core.Token{Value: c.accessToken, Subject: account.Acct}
	return *c.verified, nil
}

// ResetSession forces token verification on the next pass
func (c *Client) ResetSession() {
	c.mu.Lock()
	c.verified = nil
	c.mu.Unlock()
}

// bearerFor sends the token only to the instance it was issued by
func (c *Client) bearerFor(ref core.PostRef, token core.Token) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sameHost(ref.InstanceURL, c.instanceURL) {
		return token.Value
	}
	return ""
}

// FetchThread loads the status and its descendants, dropping replies deeper than MaxThreadDepth
func (c *Client) FetchThread(ctx context.Context, ref core.PostRef) (core.ThreadPayload, error) {
	token, err := c.Authenticate(ctx)
	if err != nil {
		return core.ThreadPayload{}, err
	}
	bearer := c.bearerFor(ref, token)

	var root json.RawMessage
	if err := c.transport.GetJSON(ctx, "fetch status", statusEndpoint(ref, ""), nil, bearer, &root); err != nil {
		return core.ThreadPayload{}, err
	}

	var ctxResp contextResponse
	if err := c.transport.GetJSON(ctx, "fetch context", statusEndpoint(ref, "/context"), nil, bearer, &ctxResp); err != nil {
		return core.ThreadPayload{}, err
	}

	payload := core.ThreadPayload{Ref: ref, Root: root}
	payload.Replies, payload.Truncated, err = boundDescendants(ref, ctxResp.Descendants)
	if err != nil {
		return core.ThreadPayload{}, err
	}
	return payload, nil
}

// boundDescendants assigns depths from in_reply_to_id links. The API lists parents before children.
func boundDescendants(ref core.PostRef, descendants []json.RawMessage) ([]core.RawRecord, bool, error) {
	depths := map[string]int{ref.PostID: 0}
	out := make([]core.RawRecord, 0, len(descendants))
	truncated := false

	for _, raw := range descendants {
		var s statusRef
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, false, core.NewSyncError(core.KindMalformedResponse, PlatformID, "fetch context", fmt.Errorf("failed to decode descendant: %w", err))
		}
		depth := 1
		if s.InReplyToID != nil {
			if parent, ok := depths[*s.InReplyToID]; ok {
				depth = parent + 1
			}
		}
		depths[s.ID] = depth
		if depth > MaxThreadDepth {
			truncated = true
			continue
		}
		out = append(out, core.RawRecord{
			Platform: PlatformID,
			Kind:     core.KindReply,
			Ref:      ref,
			Depth:    depth,
			Payload:  raw,
		})
	}
	return out, truncated, nil
}

// FetchLikes returns the first page of favouriting accounts
func (c *Client) FetchLikes(ctx context.Context, ref core.PostRef) ([]core.RawRecord, error) {
	return c.fetchAccounts(ctx, ref, "fetch favourites", "/favourited_by", core.KindLike)
}

// FetchReposts returns the first page of boosting accounts
func (c *Client) FetchReposts(ctx context.Context, ref core.PostRef) ([]core.RawRecord, error) {
	return c.fetchAccounts(ctx, ref, "fetch reblogs", "/reblogged_by", core.KindRepost)
}

func (c *Client) fetchAccounts(ctx context.Context, ref core.PostRef, op, suffix string, kind core.RecordKind) ([]core.RawRecord, error) {
	token, err := c.Authenticate(ctx)
	if err != nil {
		return nil, err
	}

	var accounts []json.RawMessage
	query := url.Values{"limit": {fmt.Sprint(pageSize)}}
	if err := c.transport.GetJSON(ctx, op, statusEndpoint(ref, suffix), query, c.bearerFor(ref, token), &accounts); err != nil {
		return nil, err
	}

	records := make([]core.RawRecord, 0, len(accounts))
	for _, account := range accounts {
		payload, err := json.Marshal(Engagement{StatusID: ref.PostID, Account: account})
		if err != nil {
			return nil, core.NewSyncError(core.KindMalformedResponse, PlatformID, op, err)
		}
		records = append(records, core.RawRecord{Platform: PlatformID, Kind: kind, Ref: ref, Payload: payload})
	}
	return records, nil
}

func statusEndpoint(ref core.PostRef, suffix string) string {
	return strings.TrimRight(ref.InstanceURL, "/") + "/api/v1/statuses/" + url.PathEscape(ref.PostID) + suffix
}

func sameHost(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return ua.Host != "" && strings.EqualFold(ua.Host, ub.Host)
}

// ProfileURL maps "user@instance" to https://instance/@user. Bare names resolve against fallbackInstance.
func ProfileURL(acct, fallbackInstance string) string {
	acct = strings.TrimPrefix(acct, "@")
	if user, host, ok := strings.Cut(acct, "@"); ok && host != "" {
		return "https://" + host + "/@" + user
	}
	return strings.TrimRight(fallbackInstance, "/") + "/@" + acct
}

func stringSetting(settings map[string]interface{}, key string) string {
	if v, ok := settings[key]; ok {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
