package bluesky

import "encoding/json"

// ProfileView is the actor shape embedded in posts, likes and repost lists
type ProfileView struct {
	DID         string `json:"did"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
}

// PostRecord is the app.bsky.feed.post record body
type PostRecord struct {
	Text      string `json:"text"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// PostView is a hydrated post as returned by getPostThread
type PostView struct {
	URI       string      `json:"uri"`
	CID       string      `json:"cid"`
	Author    ProfileView `json:"author"`
	Record    PostRecord  `json:"record"`
	IndexedAt string      `json:"indexedAt,omitempty"`
}

// Like is one entry of getLikes
type Like struct {
	IndexedAt string      `json:"indexedAt,omitempty"`
	CreatedAt string      `json:"createdAt,omitempty"`
	Actor     ProfileView `json:"actor"`
}

type sessionRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type sessionResponse struct {
	AccessJwt string `json:"accessJwt"`
	DID       string `json:"did"`
	Handle    string `json:"handle"`
}

// threadNode covers threadViewPost, notFoundPost and blockedPost
type threadNode struct {
	Type     string          `json:"$type"`
	Post     json.RawMessage `json:"post,omitempty"`
	NotFound bool            `json:"notFound,omitempty"`
	Blocked  bool            `json:"blocked,omitempty"`
	Replies  []threadNode    `json:"replies,omitempty"`
}

type threadResponse struct {
	Thread *threadNode `json:"thread"`
}

type likesResponse struct {
	URI    string            `json:"uri"`
	Likes  []json.RawMessage `json:"likes"`
	Cursor string            `json:"cursor,omitempty"`
}

type repostedByResponse struct {
	URI        string            `json:"uri"`
	RepostedBy []json.RawMessage `json:"repostedBy"`
	Cursor     string            `json:"cursor,omitempty"`
}
