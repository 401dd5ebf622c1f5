package mastodon

import "encoding/json"

// Account is the Mastodon account entity
type Account struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Acct        string `json:"acct"`
	DisplayName string `json:"display_name"`
	URL         string `json:"url"`
	Avatar      string `json:"avatar"`
}

// Status is the subset of the status entity used for replies
type Status struct {
	ID          string  `json:"id"`
	URI         string  `json:"uri"`
	URL         string  `json:"url"`
	InReplyToID *string `json:"in_reply_to_id"`
	CreatedAt   string  `json:"created_at"`
	Content     string  `json:"content"`
	Account     Account `json:"account"`
}

// Engagement wraps an account that favourited or reblogged a status.
// Account lists carry no per-event id, so the status id is kept for key derivation.
type Engagement struct {
	StatusID string          `json:"status_id"`
	Account  json.RawMessage `json:"account"`
}

type contextResponse struct {
	Ancestors   []json.RawMessage `json:"ancestors"`
	Descendants []json.RawMessage `json:"descendants"`
}

type statusRef struct {
	ID          string  `json:"id"`
	InReplyToID *string `json:"in_reply_to_id"`
}
