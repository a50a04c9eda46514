// Package webapp builds hand-off links into the companion web application.
package webapp

import (
	"fmt"
	"net/url"
	"strings"
)

// LinkBuilder renders deep links that carry the user's identity and display
// name into the web app.
type LinkBuilder struct {
	baseURL string
}

// NewLinkBuilder constructs a LinkBuilder for the configured web app URL.
func NewLinkBuilder(baseURL string) *LinkBuilder {
	return &LinkBuilder{baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/")}
}

// Handoff returns the hand-off URL embedding the user id and the URL-escaped
// display name. Parameters are laid out by hand to keep telegram_user_id
// first, matching what the web app documents.
func (b *LinkBuilder) Handoff(userID int64, displayName string) string {
	return fmt.Sprintf("%s?telegram_user_id=%d&custom_name=%s",
		b.baseURL, userID, escapeName(displayName))
}

// escapeName percent-encodes a display name for the query string. Spaces
// become %20, not +, which is the form the web app parses.
func escapeName(name string) string {
	return strings.ReplaceAll(url.QueryEscape(name), "+", "%20")
}
