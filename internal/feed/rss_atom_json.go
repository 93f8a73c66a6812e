package feed

import (
	"encoding/json"
	"regexp"

	"github.com/mmcdole/gofeed"
	"github.com/sparrowreader/microsub/internal/model"
)

// parser is shared across calls; gofeed.Parser is safe for concurrent use
// once constructed since it holds no per-parse mutable state.
var parser = gofeed.NewParser()

// ParseDelegated parses an RSS, Atom, or JSON Feed body by handing the
// bytes to the general-purpose gofeed parser, then maps gofeed's relaxed
// item shape onto the normalized schema: computing UID, sanitizing
// content, and splitting media by kind — logic specific to this store
// that the delegated library does not and should not own.
func ParseDelegated(body []byte, feedURL string, kind model.FeedKind) (*ParsedFeed, error) {
	gf, err := parser.ParseString(string(body))
	if err != nil {
		return nil, err
	}

	out := &ParsedFeed{Kind: kind, Title: gf.Title}
	if gf.Image != nil {
		out.Photo = gf.Image.URL
	}
	out.Hub, out.Self = extractHubSelf(body, kind)

	items := make([]NormalizedItem, 0, len(gf.Items))
	for _, gi := range gf.Items {
		items = append(items, normalizeGofeedItem(gi))
	}
	out.Items = finalize(items, feedURL)
	return out, nil
}

func normalizeGofeedItem(gi *gofeed.Item) NormalizedItem {
	ni := NormalizedItem{
		Type: "entry",
		URL:  gi.Link,
		Name: gi.Title,
		GUID: gi.GUID,
	}

	if gi.PublishedParsed != nil {
		ni.Published, ni.HasPublished = *gi.PublishedParsed, true
	} else if gi.Published != "" {
		if t, ok := ParsePublished(gi.Published); ok {
			ni.Published, ni.HasPublished = t, true
		}
	}
	if gi.UpdatedParsed != nil {
		ni.Updated, ni.HasUpdated = *gi.UpdatedParsed, true
	} else if gi.Updated != "" {
		if t, ok := ParsePublished(gi.Updated); ok {
			ni.Updated, ni.HasUpdated = t, true
		}
	}

	if gi.Author != nil && gi.Author.Name != "" {
		ni.Author = &model.Author{Name: gi.Author.Name}
	} else if len(gi.Authors) > 0 && gi.Authors[0].Name != "" {
		ni.Author = &model.Author{Name: gi.Authors[0].Name}
	}

	html := gi.Content
	if html == "" {
		html = gi.Description
	}
	ni.Content = model.Content{HTML: html}
	ni.Summary = gi.Description
	if ni.Summary == html {
		ni.Summary = ""
	}

	for _, c := range gi.Categories {
		if c != "" {
			ni.Category = append(ni.Category, c)
		}
	}

	enclosures := make([]struct{ URL, MIMEType string }, 0, len(gi.Enclosures)+1)
	for _, e := range gi.Enclosures {
		enclosures = append(enclosures, struct{ URL, MIMEType string }{e.URL, e.Type})
	}
	if gi.Image != nil && gi.Image.URL != "" {
		enclosures = append(enclosures, struct{ URL, MIMEType string }{gi.Image.URL, "image/*"})
	}
	if gi.Custom != nil {
		if banner, ok := gi.Custom["banner_image"]; ok && banner != "" {
			enclosures = append(enclosures, struct{ URL, MIMEType string }{banner, "image/*"})
		}
	}
	ni.Photo, ni.Video, ni.Audio = splitEnclosuresByKind(enclosures)

	return ni
}

var hubLinkRe = regexp.MustCompile(`(?i)<(?:atom:)?link\s+([^>]*rel=["']?hub["']?[^>]*)/?>`)
var selfLinkRe = regexp.MustCompile(`(?i)<(?:atom:)?link\s+([^>]*rel=["']?self["']?[^>]*)/?>`)
var hrefAttrRe = regexp.MustCompile(`(?i)href=["']([^"']+)["']`)

// extractHubSelf performs a tolerant scan for atom:link rel="hub"/rel="self"
// elements (RSS/Atom) and the JSON Feed hubs array, mirroring the
// case/quote tolerance used for the Link header in the fetcher.
func extractHubSelf(body []byte, kind model.FeedKind) (hub, self string) {
	if kind == model.KindJSONFeed {
		var jf struct {
			Hubs []struct {
				URL string `json:"url"`
			} `json:"hubs"`
		}
		if json.Unmarshal(body, &jf) == nil && len(jf.Hubs) > 0 {
			hub = jf.Hubs[0].URL
		}
		return hub, ""
	}
	if m := hubLinkRe.FindSubmatch(body); m != nil {
		if h := hrefAttrRe.FindSubmatch(m[1]); h != nil {
			hub = string(h[1])
		}
	}
	if m := selfLinkRe.FindSubmatch(body); m != nil {
		if h := hrefAttrRe.FindSubmatch(m[1]); h != nil {
			self = string(h[1])
		}
	}
	return hub, self
}
