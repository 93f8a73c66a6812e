package feed

import (
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	policyOnce sync.Once
	policy     *bluemonday.Policy
)

// sanitizePolicy builds the §4.2 allow-list sanitizer once and reuses it:
// tags {a, abbr, b, blockquote, br, code, em, figcaption, figure, h1..h6,
// hr, i, img, li, ol, p, pre, s, span, strike, strong, sub, sup, table,
// tbody, td, th, thead, tr, u, ul, video, audio, source}; schemes
// {http, https, mailto} only.
func sanitizePolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		p := bluemonday.NewPolicy()
		p.AllowStandardURLs()
		p.AllowURLSchemes("http", "https", "mailto")
		p.AllowAttrs("class").Globally()

		p.AllowElements("abbr", "b", "blockquote", "br", "code", "em",
			"figcaption", "figure", "h1", "h2", "h3", "h4", "h5", "h6",
			"hr", "i", "li", "ol", "p", "pre", "s", "span", "strike",
			"strong", "sub", "sup", "table", "tbody", "td", "th",
			"thead", "tr", "u", "ul")

		p.AllowAttrs("href", "title", "rel").OnElements("a")
		p.AllowElements("a")

		p.AllowAttrs("src", "alt", "title", "width", "height").OnElements("img")
		p.AllowElements("img")

		p.AllowAttrs("src", "poster", "controls", "width", "height").OnElements("video")
		p.AllowElements("video")

		p.AllowAttrs("src", "controls").OnElements("audio")
		p.AllowElements("audio")

		p.AllowAttrs("src", "type").OnElements("source")
		p.AllowElements("source")

		policy = p
	})
	return policy
}

// SanitizeHTML runs html through the allow-list sanitizer, producing the
// trusted content.html value. Only sanitized output must ever be
// persisted.
func SanitizeHTML(html string) string {
	if html == "" {
		return ""
	}
	return strings.TrimSpace(sanitizePolicy().Sanitize(html))
}

// StripToText reduces sanitized html to the content.text rendering by
// removing all tags.
func StripToText(sanitizedHTML string) string {
	if sanitizedHTML == "" {
		return ""
	}
	return strings.TrimSpace(bluemonday.StrictPolicy().Sanitize(sanitizedHTML))
}
