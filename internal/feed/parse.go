package feed

import (
	"fmt"

	"github.com/sparrowreader/microsub/internal/model"
)

// Parse is a pure function from (FeedKind, bytes) to a ParsedFeed,
// dispatching to the variant-specific parser (§9 "dynamic dispatch on
// format").
func Parse(body []byte, feedURL string, kind model.FeedKind) (*ParsedFeed, error) {
	switch kind {
	case model.KindRSS, model.KindAtom, model.KindJSONFeed:
		return ParseDelegated(body, feedURL, kind)
	case model.KindHFeed:
		return ParseHFeed(body, feedURL)
	case model.KindActivityPub:
		return nil, RejectActivityPub(feedURL)
	default:
		return nil, fmt.Errorf("unrecognized feed format at %s", feedURL)
	}
}
