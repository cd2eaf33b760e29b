package webui

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	archerrors "github.com/harunnryd/archivist/internal/errors"
)

// GetChatInfo looks a chat up with the primary token, then each fallback
// credential in order. The first successful answer wins. NotFound is only
// returned when every credential that was tried answered with a definitive
// not-found and every credential provider could be read; any other failure
// makes the result Unavailable.
func (c *Client) GetChatInfo(ctx context.Context, chatID string) (*ChatInfo, LookupStatus) {
	creds, complete := c.credentials(ctx)
	path := "/api/v1/chats/" + url.PathEscape(chatID)

	notFound := 0
	for _, cred := range creds {
		var info ChatInfo
		err := c.do(ctx, http.MethodGet, path, cred.Token, nil, "", &info)
		if err == nil {
			if info.ID == "" {
				info.ID = chatID
			}
			return &info, Found
		}
		if ctx.Err() != nil {
			return nil, Unavailable
		}
		if archerrors.IsCategory(err, archerrors.ErrNotFound) {
			notFound++
			continue
		}
		slog.Debug("Chat lookup failed", "chat_id", chatID, "credential", cred.Label, "error", err)
	}

	if notFound > 0 && notFound == len(creds) {
		if !complete {
			slog.Warn("Chat not found with partial credentials, treating as unavailable", "chat_id", chatID)
			return nil, Unavailable
		}
		return nil, NotFound
	}
	return nil, Unavailable
}

// credentials returns the primary token plus every fallback. complete is
// false when a provider failed, so the list may be missing the owner's token.
func (c *Client) credentials(ctx context.Context) (creds []Credential, complete bool) {
	out := []Credential{{Label: "primary", Token: c.token}}
	seen := map[string]struct{}{c.token: {}}
	complete = true

	for _, provider := range c.fallbacks {
		creds, err := provider.Credentials(ctx)
		if err != nil {
			slog.Warn("Credential provider failed", "error", err)
			complete = false
			continue
		}
		for _, cred := range creds {
			if _, dup := seen[cred.Token]; dup || cred.Token == "" {
				continue
			}
			seen[cred.Token] = struct{}{}
			out = append(out, cred)
		}
	}
	return out, complete
}
