// ABOUTME: Markdown rendering and sanitization for member-authored content
// ABOUTME: Everything a member typed passes through here before display

package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

var (
	// ugcPolicy allows the formatting tags markdown produces.
	ugcPolicy = bluemonday.UGCPolicy()

	// strictPolicy strips all markup. Used for message content, display
	// names, and plain-text previews.
	strictPolicy = bluemonday.StrictPolicy()
)

// Markdown converts member-authored markdown to sanitized HTML. Script tags,
// javascript: links, and other unsafe markup never survive.
func Markdown(content string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(content), &buf); err != nil {
		return "", fmt.Errorf("converting markdown: %w", err)
	}
	return ugcPolicy.Sanitize(buf.String()), nil
}

// Sanitize strips all HTML from member input. Used for stored message
// content and profile fields.
func Sanitize(input string) string {
	return strictPolicy.Sanitize(input)
}

// Preview produces a single-line plain-text excerpt of at most n runes for
// last-message display. Markup is stripped first; truncation appends an
// ellipsis.
func Preview(content string, n int) string {
	plain := strictPolicy.Sanitize(content)
	if i := strings.IndexAny(plain, "\r\n"); i >= 0 {
		plain = plain[:i]
	}
	plain = strings.TrimSpace(plain)

	runes := []rune(plain)
	if n > 0 && len(runes) > n {
		return strings.TrimSpace(string(runes[:n])) + "…"
	}
	return plain
}
