package feed

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/samber/lo"
	"github.com/sparrowreader/microsub/internal/model"
)

// NormalizedItem is the format-agnostic entry schema every parser
// variant (RSS, Atom, JSON Feed, h-feed) emits into.
type NormalizedItem struct {
	Type       string
	URL        string
	Name       string
	Published  time.Time
	HasPublished bool
	Updated    time.Time
	HasUpdated bool
	Author     *model.Author
	Content    model.Content
	Summary    string
	Category   []string
	Photo      []string
	Video      []string
	Audio      []string
	LikeOf     []string
	RepostOf   []string
	BookmarkOf []string
	InReplyTo  []string

	// SourceFeedURL and GUID feed UID derivation; GUID is the raw
	// feed-supplied identifier before the guid ?? url ?? name fallback.
	SourceFeedURL string
	GUID          string

	UID string // populated by finalize
}

// ParsedFeed is the result of parsing one fetched body: feed-level
// metadata plus the normalized items it contained.
type ParsedFeed struct {
	Kind  model.FeedKind
	Title string
	Photo string
	Hub   string
	Self  string
	Items []NormalizedItem
}

// finalize records the feed URL, computes the UID, and sanitizes
// content.html (deriving content.text from it when empty) for every
// parser variant, so each variant implementation only needs to fill the
// format-specific fields above. Published times are left as parsed.
func finalize(items []NormalizedItem, feedURL string) []NormalizedItem {
	for i := range items {
		it := &items[i]
		it.SourceFeedURL = feedURL
		sourceID := SourceID(it.GUID, it.URL, it.Name)
		it.UID = UID(feedURL, sourceID)
		if it.Content.HTML != "" {
			it.Content.HTML = SanitizeHTML(it.Content.HTML)
			if it.Content.Text == "" {
				it.Content.Text = StripToText(it.Content.HTML)
			}
		}
	}
	return items
}

// ParsePublished parses a date with the fallbacks in §4.2: explicit
// "YYYY-MM-DD HH:MM[:SS]" with implicit UTC, delegating the long tail of
// feed date formats to a lenient general-purpose parser. An unparseable
// or empty value yields ok=false (published absent).
func ParsePublished(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t, true
		}
	}
	if t, err := dateparse.ParseAny(raw); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// splitEnclosuresByKind buckets enclosure/media URLs into photo/video/audio
// by their declared MIME type, deduplicating by URL within each bucket.
func splitEnclosuresByKind(enclosures []struct{ URL, MIMEType string }) (photo, video, audio []string) {
	for _, e := range enclosures {
		switch {
		case strings.HasPrefix(e.MIMEType, "image/"):
			photo = append(photo, e.URL)
		case strings.HasPrefix(e.MIMEType, "video/"):
			video = append(video, e.URL)
		case strings.HasPrefix(e.MIMEType, "audio/"):
			audio = append(audio, e.URL)
		}
	}
	return dedupe(photo), dedupe(video), dedupe(audio)
}

func dedupe(urls []string) []string {
	if len(urls) == 0 {
		return nil
	}
	return lo.Uniq(urls)
}
