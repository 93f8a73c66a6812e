package feed

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sparrowreader/microsub/internal/mf2"
	"github.com/sparrowreader/microsub/internal/model"
)

// ParseHFeed discovers an h-feed at the document root or one level deep;
// if none is found, every root-level h-entry is treated as belonging to
// a synthetic feed (§4.2).
func ParseHFeed(body []byte, feedURL string) (*ParsedFeed, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	out := &ParsedFeed{Kind: model.KindHFeed, Title: strings.TrimSpace(doc.Find("title").First().Text())}

	entries := mf2.FindEntries(doc)
	pageCard := mf2.FindPageCard(doc)

	items := make([]NormalizedItem, 0, len(entries))
	for _, root := range entries {
		e := mf2.ParseEntry(root)
		items = append(items, normalizeMF2Entry(e, pageCard, feedURL))
	}
	out.Items = finalize(items, feedURL)
	return out, nil
}

func normalizeMF2Entry(e mf2.Entry, pageCard *mf2.Card, feedURL string) NormalizedItem {
	ni := NormalizedItem{
		Type:       "entry",
		URL:        resolveRef(feedURL, e.URL),
		Name:       e.Name,
		Summary:    e.Summary,
		Category:   e.Category,
		LikeOf:     resolveRefs(feedURL, e.LikeOf),
		RepostOf:   resolveRefs(feedURL, e.RepostOf),
		BookmarkOf: resolveRefs(feedURL, e.BookmarkOf),
		InReplyTo:  resolveRefs(feedURL, e.InReplyTo),
		Photo:      resolveRefs(feedURL, e.Photo),
		Video:      resolveRefs(feedURL, e.Video),
		Audio:      resolveRefs(feedURL, e.Audio),
	}
	if e.ContentHTML != "" {
		ni.Content = model.Content{HTML: e.ContentHTML}
	}
	if t, ok := ParsePublished(e.Published); ok {
		ni.Published, ni.HasPublished = t, true
	}
	if t, ok := ParsePublished(e.Updated); ok {
		ni.Updated, ni.HasUpdated = t, true
	}
	author := e.Author
	if author == nil {
		author = pageCard
	}
	if author != nil && (author.Name != "" || author.URL != "") {
		ni.Author = &model.Author{Name: author.Name, URL: resolveRef(feedURL, author.URL), Photo: resolveRef(feedURL, author.Photo)}
	}
	return ni
}

func resolveRef(base, ref string) string {
	if ref == "" {
		return ""
	}
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

func resolveRefs(base string, refs []string) []string {
	if len(refs) == 0 {
		return nil
	}
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = resolveRef(base, r)
	}
	return dedupe(out)
}

// ActivityPubRejected is returned when DetectType classifies a body as
// ActivityPub: this engine reads feeds, not ActivityPub actor/collection
// documents, but most ActivityPub publishers also expose a feed.
type ActivityPubRejected struct {
	Suggestion string
}

func (e *ActivityPubRejected) Error() string {
	return fmt.Sprintf("activitypub documents are not a supported feed format; try %s", e.Suggestion)
}

// RejectActivityPub builds the ActivityPubRejected error for feedURL,
// suggesting the conventional {origin}/feed/ path.
func RejectActivityPub(feedURL string) error {
	u, err := url.Parse(feedURL)
	suggestion := feedURL
	if err == nil {
		origin := &url.URL{Scheme: u.Scheme, Host: u.Host}
		suggestion = origin.String() + "/feed/"
	}
	return &ActivityPubRejected{Suggestion: suggestion}
}
