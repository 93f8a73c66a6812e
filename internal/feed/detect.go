// Package feed detects feed variants and normalizes them into a single
// uniform item representation (C2 of the specification).
package feed

import (
	"bytes"
	"strings"

	"github.com/sparrowreader/microsub/internal/model"
)

// DetectType classifies a fetched body as one of the known feed
// variants. Content-Type is authoritative when unambiguous; otherwise
// the body is sniffed.
func DetectType(body []byte, contentType string) model.FeedKind {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "application/feed+json"):
		return model.KindJSONFeed
	case strings.Contains(ct, "application/atom+xml"):
		return model.KindAtom
	case strings.Contains(ct, "application/json"):
		if looksLikeActivityPub(body) {
			return model.KindActivityPub
		}
		if looksLikeJSONFeed(body) {
			return model.KindJSONFeed
		}
		return model.KindUnknown
	case strings.Contains(ct, "text/html"):
		return model.KindHFeed
	}
	return sniffBody(body)
}

func sniffBody(body []byte) model.FeedKind {
	trimmed := bytes.TrimSpace(body)
	switch {
	case len(trimmed) == 0:
		return model.KindUnknown
	case bytes.Contains(trimmed[:min(len(trimmed), 4096)], []byte(`xmlns="http://www.w3.org/2005/Atom"`)):
		return model.KindAtom
	case hasPrefixFold(trimmed, "<?xml") && bytes.Contains(trimmed[:min(len(trimmed), 4096)], []byte("<feed")):
		return model.KindAtom
	case containsFold(trimmed[:min(len(trimmed), 2048)], "<rss") || containsFold(trimmed[:min(len(trimmed), 2048)], "<rdf:rdf"):
		return model.KindRSS
	case trimmed[0] == '{':
		if looksLikeActivityPub(trimmed) {
			return model.KindActivityPub
		}
		if looksLikeJSONFeed(trimmed) {
			return model.KindJSONFeed
		}
		return model.KindUnknown
	case hasPrefixFold(trimmed, "<!doctype html") || containsFold(trimmed[:min(len(trimmed), 512)], "<html"):
		return model.KindHFeed
	default:
		return model.KindUnknown
	}
}

func looksLikeJSONFeed(body []byte) bool {
	return bytes.Contains(body, []byte("jsonfeed.org"))
}

func looksLikeActivityPub(body []byte) bool {
	return bytes.Contains(body, []byte("@context")) &&
		(bytes.Contains(body, []byte(`"type":"Group"`)) ||
			bytes.Contains(body, []byte(`"type": "Group"`)) ||
			bytes.Contains(body, []byte(`"inbox"`)))
}

func hasPrefixFold(b []byte, prefix string) bool {
	if len(b) < len(prefix) {
		return false
	}
	return strings.EqualFold(string(b[:len(prefix)]), prefix)
}

func containsFold(b []byte, sub string) bool {
	return strings.Contains(strings.ToLower(string(b)), strings.ToLower(sub))
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
