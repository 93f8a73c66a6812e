package feed

import (
	"bytes"
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sparrowreader/microsub/internal/fetch"
	"github.com/sparrowreader/microsub/internal/mf2"
	"github.com/sparrowreader/microsub/internal/model"
)

// Candidate is a discovered feed: its URL, declared kind, and a
// human-readable title when one could be read off the <link> element or
// the page itself.
type Candidate struct {
	URL   string
	Kind  string
	Title string
}

// Discover resolves a user-supplied URL to one or more candidate feeds,
// for the Microsub `follow`/`search` actions. If the URL is
// already a feed, it is the sole candidate. If it is an HTML page, its
// <link rel="alternate"> feed declarations are surfaced instead.
func Discover(ctx context.Context, f *fetch.Fetcher, rawURL string, timeout time.Duration) ([]Candidate, error) {
	result, err := f.Fetch(ctx, rawURL, fetch.Validators{}, timeout)
	if err != nil {
		return nil, err
	}

	kind := DetectType(result.Body, result.ContentType)
	if kind != model.KindHFeed && kind != model.KindUnknown {
		return []Candidate{{URL: rawURL, Kind: string(kind)}}, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(result.Body))
	if err != nil {
		return []Candidate{{URL: rawURL, Kind: string(model.KindHFeed)}}, nil
	}

	var candidates []Candidate
	doc.Find(`link[rel="alternate"]`).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}
		typ := strings.ToLower(sel.AttrOr("type", ""))
		var k string
		switch {
		case strings.Contains(typ, "atom"):
			k = string(model.KindAtom)
		case strings.Contains(typ, "rss"):
			k = string(model.KindRSS)
		case strings.Contains(typ, "json"):
			k = string(model.KindJSONFeed)
		default:
			return
		}
		candidates = append(candidates, Candidate{URL: resolveAgainst(rawURL, href), Kind: k, Title: sel.AttrOr("title", "")})
	})

	if len(candidates) == 0 {
		// No declared alternates: the page itself may be an h-feed.
		if len(mf2.FindEntries(doc)) > 0 {
			return []Candidate{{URL: rawURL, Kind: string(model.KindHFeed)}}, nil
		}
		return nil, nil
	}
	return candidates, nil
}

func resolveAgainst(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
