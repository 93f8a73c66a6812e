// Package mf2 extracts the small subset of microformats2 this system
// needs: h-entry/h-feed/h-card properties, scanned directly off the
// parsed HTML tree rather than through a full mf2 parser, since the
// properties consumed (§4.2, §4.8) are a fixed, known set.
package mf2

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Entry is the subset of h-entry (or h-event/h-review, which share the
// properties this system reads) properties the parser and webmention
// verifier consume.
type Entry struct {
	Name       string
	Summary    string
	ContentHTML string
	URL        string
	Published  string
	Updated    string
	Photo      []string
	Video      []string
	Audio      []string
	Category   []string
	LikeOf     []string
	RepostOf   []string
	BookmarkOf []string
	InReplyTo  []string
	Author     *Card
}

// Card is the subset of h-card properties consumed.
type Card struct {
	Name  string
	URL   string
	Photo string
}

// hasClass reports whether sel carries class token want.
func hasClass(sel *goquery.Selection, want string) bool {
	for _, c := range strings.Fields(sel.AttrOr("class", "")) {
		if c == want {
			return true
		}
	}
	return false
}

// isRoot reports whether sel itself declares one of the given root
// classes (h-entry, h-feed, h-card, ...).
func isRoot(sel *goquery.Selection, roots ...string) bool {
	for _, r := range roots {
		if hasClass(sel, r) {
			return true
		}
	}
	return false
}

// findProps finds descendants of root carrying a class with the given
// prefix (e.g. "p-", "u-", "e-", "dt-"), but does not descend into a
// nested microformat root — those properties belong to the nested
// object, not this one.
func findProps(root *goquery.Selection, prefix string) []*goquery.Selection {
	var out []*goquery.Selection
	rootNode := root.Get(0)
	root.Find("*").Each(func(_ int, sel *goquery.Selection) {
		// Skip if this node is inside a deeper microformat root than
		// `root` itself: that property belongs to the nested object.
		nested := false
		sel.Parents().EachWithBreak(func(_ int, p *goquery.Selection) bool {
			if p.Get(0) == rootNode {
				return false
			}
			if isRoot(p, "h-entry", "h-feed", "h-card", "h-event", "h-review", "h-cite") {
				nested = true
				return false
			}
			return true
		})
		if nested {
			return
		}
		for _, c := range strings.Fields(sel.AttrOr("class", "")) {
			if strings.HasPrefix(c, prefix) {
				out = append(out, sel)
				return
			}
		}
	})
	return out
}

func propNamed(root *goquery.Selection, prefix, name string) *goquery.Selection {
	var found *goquery.Selection
	for _, sel := range findProps(root, prefix) {
		for _, c := range strings.Fields(sel.AttrOr("class", "")) {
			if c == prefix+name {
				found = sel
			}
		}
		if found != nil {
			break
		}
	}
	return found
}

func propsNamed(root *goquery.Selection, prefix, name string) []*goquery.Selection {
	var found []*goquery.Selection
	for _, sel := range findProps(root, prefix) {
		for _, c := range strings.Fields(sel.AttrOr("class", "")) {
			if c == prefix+name {
				found = append(found, sel)
			}
		}
	}
	return found
}

func urlValue(sel *goquery.Selection) string {
	if sel == nil {
		return ""
	}
	if href, ok := sel.Attr("href"); ok {
		return href
	}
	if src, ok := sel.Attr("src"); ok {
		return src
	}
	return strings.TrimSpace(sel.Text())
}

func textValue(sel *goquery.Selection) string {
	if sel == nil {
		return ""
	}
	if title, ok := sel.Attr("title"); ok && sel.Is("time,data,abbr") {
		return title
	}
	return strings.TrimSpace(sel.Text())
}

func htmlValue(sel *goquery.Selection) string {
	if sel == nil {
		return ""
	}
	h, _ := sel.Html()
	return h
}

// FindEntries locates h-entry roots at or one level below doc's top, as
// used by h-feed discovery: within an explicit h-feed if present,
// otherwise every root-level h-entry.
func FindEntries(doc *goquery.Document) []*goquery.Selection {
	var feeds []*goquery.Selection
	doc.Find(".h-feed").Each(func(_ int, sel *goquery.Selection) {
		feeds = append(feeds, sel)
	})
	if len(feeds) > 0 {
		var entries []*goquery.Selection
		for _, f := range feeds {
			f.Find(".h-entry").Each(func(_ int, sel *goquery.Selection) {
				entries = append(entries, sel)
			})
		}
		return entries
	}
	var entries []*goquery.Selection
	doc.Find(".h-entry").Each(func(_ int, sel *goquery.Selection) {
		entries = append(entries, sel)
	})
	return entries
}

// ParseEntry extracts the properties of Entry from an h-entry root.
func ParseEntry(root *goquery.Selection) Entry {
	e := Entry{
		Name:        textValue(propNamed(root, "p-", "name")),
		Summary:     textValue(propNamed(root, "p-", "summary")),
		ContentHTML: htmlValue(propNamed(root, "e-", "content")),
		URL:         urlValue(propNamed(root, "u-", "url")),
		Published:   textValue(propNamed(root, "dt-", "published")),
		Updated:     textValue(propNamed(root, "dt-", "updated")),
	}
	for _, s := range propsNamed(root, "u-", "photo") {
		e.Photo = append(e.Photo, urlValue(s))
	}
	for _, s := range propsNamed(root, "u-", "video") {
		e.Video = append(e.Video, urlValue(s))
	}
	for _, s := range propsNamed(root, "u-", "audio") {
		e.Audio = append(e.Audio, urlValue(s))
	}
	for _, s := range propsNamed(root, "p-", "category") {
		e.Category = append(e.Category, textValue(s))
	}
	for _, s := range propsNamed(root, "u-", "like-of") {
		e.LikeOf = append(e.LikeOf, urlValue(s))
	}
	for _, s := range propsNamed(root, "u-", "repost-of") {
		e.RepostOf = append(e.RepostOf, urlValue(s))
	}
	for _, s := range propsNamed(root, "u-", "bookmark-of") {
		e.BookmarkOf = append(e.BookmarkOf, urlValue(s))
	}
	for _, s := range propsNamed(root, "u-", "in-reply-to") {
		e.InReplyTo = append(e.InReplyTo, urlValue(s))
	}
	if card := propNamed(root, "p-", "author"); card != nil {
		e.Author = parseCardFrom(card)
	}
	return e
}

func parseCardFrom(sel *goquery.Selection) *Card {
	if isRoot(sel, "h-card") {
		card := &Card{
			Name:  textValue(propNamed(sel, "p-", "name")),
			URL:   urlValue(propNamed(sel, "u-", "url")),
			Photo: urlValue(propNamed(sel, "u-", "photo")),
		}
		// Implied url: an h-card on <a>/<area> with no u-url uses its href.
		if card.URL == "" && sel.Is("a,area") {
			card.URL = sel.AttrOr("href", "")
		}
		return card
	}
	inner := sel.Find(".h-card").First()
	if inner.Length() > 0 {
		return &Card{
			Name:  textValue(propNamed(inner, "p-", "name")),
			URL:   urlValue(propNamed(inner, "u-", "url")),
			Photo: urlValue(propNamed(inner, "u-", "photo")),
		}
	}
	name := textValue(sel)
	if name == "" {
		return nil
	}
	return &Card{Name: name, URL: urlValue(sel)}
}

// FindPageCard finds a page-level h-card, used as an author fallback
// when an h-entry has no p-author of its own.
func FindPageCard(doc *goquery.Document) *Card {
	sel := doc.Find(".h-card").First()
	if sel.Length() == 0 {
		return nil
	}
	return &Card{
		Name:  textValue(propNamed(sel, "p-", "name")),
		URL:   urlValue(propNamed(sel, "u-", "url")),
		Photo: urlValue(propNamed(sel, "u-", "photo")),
	}
}
