package blenderkit

import (
	"context"
	"fmt"
)

type commentForm struct {
	Form struct {
		Timestamp    string `json:"timestamp"`
		SecurityHash string `json:"securityHash"`
	} `json:"form"`
}

// CreateComment posts a comment on an asset on behalf of the configured
// account. The server requires a two-step handshake: fetch the comment form
// for its timestamp and security hash, then post the comment with both.
func (c *Client) CreateComment(ctx context.Context, assetBaseID, comment string, replyTo int) error {
	var form commentForm
	formURL := c.apiURL("/comments/asset-comment/" + assetBaseID + "/")
	if err := c.doJSON(ctx, "GET", formURL, nil, &form); err != nil {
		return fmt.Errorf("fetch comment form: %w", err)
	}
	if form.Form.Timestamp == "" || form.Form.SecurityHash == "" {
		return fmt.Errorf("comment form for %s missing timestamp or security hash", assetBaseID)
	}

	payload := map[string]any{
		"name":          "",
		"email":         "",
		"url":           "",
		"followup":      replyTo > 0,
		"reply_to":      replyTo,
		"honeypot":      "",
		"content_type":  "assets.uuidasset",
		"object_pk":     assetBaseID,
		"timestamp":     form.Form.Timestamp,
		"security_hash": form.Form.SecurityHash,
		"comment":       comment,
	}
	if err := c.doJSON(ctx, "POST", c.apiURL("/comments/comment/"), payload, nil); err != nil {
		return fmt.Errorf("create comment: %w", err)
	}
	return nil
}
