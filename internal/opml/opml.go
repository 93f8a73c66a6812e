// Package opml imports and exports channel/feed subscriptions as OPML
// 2.0, going through the same createChannel/createFeed idempotency
// invariants as any other subscription write (§6).
package opml

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sparrowreader/microsub/internal/store"
)

// OPML is the root of an OPML document.
type OPML struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    Head     `xml:"head"`
	Body    Body     `xml:"body"`
}

// Head contains OPML metadata.
type Head struct {
	Title       string `xml:"title,omitempty"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

// Body contains the outlines.
type Body struct {
	Outlines []Outline `xml:"outline"`
}

// Outline represents a single outline element (channel or feed).
type Outline struct {
	Text     string    `xml:"text,attr"`
	Title    string    `xml:"title,attr,omitempty"`
	Type     string    `xml:"type,attr,omitempty"`
	XMLURL   string    `xml:"xmlUrl,attr,omitempty"`
	HTMLURL  string    `xml:"htmlUrl,attr,omitempty"`
	Outlines []Outline `xml:"outline,omitempty"`
}

// feedPathSuffixes are stripped from a feed URL to guess its site's
// human-facing URL for htmlUrl, per §6.
var feedPathSuffixes = []string{"/feed", "/rss", "/atom.xml", "/rss.xml", "/feed.xml", "/index.xml", ".rss", ".atom"}

func siteURLFromFeedURL(feedURL string) string {
	for _, suf := range feedPathSuffixes {
		if strings.HasSuffix(feedURL, suf) {
			return strings.TrimSuffix(feedURL, suf)
		}
	}
	return feedURL
}

// Parse decodes an OPML document into one outline per top-level
// channel, each containing its feed outlines.
func Parse(r io.Reader) ([]Outline, error) {
	var doc OPML
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode opml: %w", err)
	}
	return doc.Body.Outlines, nil
}

// Export builds an OPML 2.0 document with one outline per channel,
// containing one <outline type="rss"> per feed.
func Export(title string, channels []Outline) ([]byte, error) {
	doc := OPML{
		Version: "2.0",
		Head:    Head{Title: title, DateCreated: time.Now().Format(time.RFC1123Z)},
		Body:    Body{Outlines: channels},
	}
	output, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), output...), nil
}

// Import walks a parsed OPML document: each top-level outline becomes a
// channel (created if a same-named one doesn't already exist for
// owner), and each of its xmlUrl children becomes a feed within that
// channel, through CreateChannel/CreateFeed so re-importing the same
// file is a no-op.
func Import(ctx context.Context, st *store.SQLStore, owner string, r io.Reader) (int, error) {
	outlines, err := Parse(r)
	if err != nil {
		return 0, err
	}

	existing, err := st.ListChannels(ctx, owner)
	if err != nil {
		return 0, err
	}
	byName := make(map[string]string, len(existing))
	for _, ch := range existing {
		byName[ch.Name] = ch.ID
	}

	imported := 0
	for _, top := range outlines {
		name := top.Text
		if name == "" {
			name = top.Title
		}
		if name == "" {
			name = "Imported"
		}

		if top.XMLURL != "" {
			// A bare feed at the top level with no enclosing channel
			// outline: file it under a catch-all channel.
			channelID, ok := byName["Imported"]
			if !ok {
				ch, err := st.CreateChannel(ctx, owner, "Imported")
				if err != nil {
					return imported, err
				}
				channelID, byName["Imported"] = ch.ID, ch.ID
			}
			if _, isNew, err := st.CreateFeed(ctx, channelID, top.XMLURL); err == nil && isNew {
				imported++
			}
			continue
		}

		channelID, ok := byName[name]
		if !ok {
			ch, err := st.CreateChannel(ctx, owner, name)
			if err != nil {
				return imported, err
			}
			channelID = ch.ID
			byName[name] = channelID
		}
		for _, feedOutline := range top.Outlines {
			if feedOutline.XMLURL == "" {
				continue
			}
			if _, isNew, err := st.CreateFeed(ctx, channelID, feedOutline.XMLURL); err == nil && isNew {
				imported++
			}
		}
	}
	return imported, nil
}

// ExportAll builds the OPML document for every one of owner's channels
// and their feeds, except the notifications channel.
func ExportAll(ctx context.Context, st *store.SQLStore, owner string) ([]byte, error) {
	channels, err := st.ListChannels(ctx, owner)
	if err != nil {
		return nil, err
	}
	var outlines []Outline
	for _, ch := range channels {
		if ch.IsNotifications() {
			continue
		}
		feeds, err := st.ListFeedsByChannel(ctx, ch.ID)
		if err != nil {
			return nil, err
		}
		channelOutline := Outline{Text: ch.Name, Title: ch.Name}
		for _, f := range feeds {
			channelOutline.Outlines = append(channelOutline.Outlines, Outline{
				Text:    f.Title,
				Title:   f.Title,
				Type:    "rss",
				XMLURL:  f.URL,
				HTMLURL: siteURLFromFeedURL(f.URL),
			})
		}
		outlines = append(outlines, channelOutline)
	}
	return Export(owner+"'s subscriptions", outlines)
}
