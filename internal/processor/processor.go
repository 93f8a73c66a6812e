// Package processor is the glue between a single feed's fetch and its
// effect on the store: fetch, parse, filter, insert, tier update (C7 of
// the specification, §4.6).
package processor

import (
	"context"
	"log"
	"regexp"
	"time"

	"github.com/sparrowreader/microsub/internal/errs"
	"github.com/sparrowreader/microsub/internal/feed"
	"github.com/sparrowreader/microsub/internal/fetch"
	"github.com/sparrowreader/microsub/internal/model"
	"github.com/sparrowreader/microsub/internal/store"
	"github.com/sparrowreader/microsub/internal/tier"
)

// HubSubscriber is the seam the WebSub package fills in: when a feed's
// Link headers or JSON Feed body advertise a hub, the processor asks
// the subscriber to (re)subscribe rather than importing the websub
// package directly (it would otherwise be a package cycle, since the
// websub package itself calls back into the processor on delivery).
type HubSubscriber interface {
	EnsureSubscribed(ctx context.Context, f *model.Feed, hub, topic string) error
}

// Processor runs the Fetcher -> Parser -> filter -> Store pipeline for
// one feed at a time; callers (the scheduler, the WebSub receiver)
// provide their own concurrency.
type Processor struct {
	Fetcher      *fetch.Fetcher
	Store        *store.SQLStore
	Subscriber   HubSubscriber // optional
	FetchTimeout time.Duration
}

// New builds a Processor.
func New(fetcher *fetch.Fetcher, st *store.SQLStore, subscriber HubSubscriber, fetchTimeout time.Duration) *Processor {
	return &Processor{Fetcher: fetcher, Store: st, Subscriber: subscriber, FetchTimeout: fetchTimeout}
}

// ProcessFeed performs one poll cycle against f: fetch, tier update,
// persistence. Returns the number of genuinely new items persisted.
func (p *Processor) ProcessFeed(ctx context.Context, f *model.Feed) (int, error) {
	now := time.Now()
	validators := fetch.Validators{ETag: f.ETag, LastModified: f.LastModified}

	result, err := p.Fetcher.Fetch(ctx, f.URL, validators, p.FetchTimeout)
	switch {
	case err == fetch.ErrNotModified:
		p.applyTier(ctx, f, now, tier.Update{CurrentTier: f.Tier, Unmodified: f.Unmodified, HasNewItems: false})
		_ = p.Store.UpdateFeedAfterFetch(ctx, f)
		_ = p.Store.UpdateFeedStatus(ctx, f.ID, true, "")
		return 0, nil
	case err != nil:
		p.applyTier(ctx, f, now, tier.Update{CurrentTier: f.Tier, Unmodified: f.Unmodified, HasNewItems: false, FetchError: true})
		_ = p.Store.UpdateFeedAfterFetch(ctx, f)
		_ = p.Store.UpdateFeedStatus(ctx, f.ID, false, err.Error())
		return 0, errs.Upstreamf(err, "fetch %s", f.URL)
	}

	kind := feed.DetectType(result.Body, result.ContentType)
	parsed, perr := feed.Parse(result.Body, f.URL, kind)
	if perr != nil {
		p.applyTier(ctx, f, now, tier.Update{CurrentTier: f.Tier, Unmodified: f.Unmodified, HasNewItems: false, FetchError: true})
		_ = p.Store.UpdateFeedAfterFetch(ctx, f)
		_ = p.Store.UpdateFeedStatus(ctx, f.ID, false, perr.Error())
		return 0, errs.Upstreamf(perr, "parse %s", f.URL)
	}

	newCount, err := p.ingest(ctx, f, parsed.Items)
	if err != nil {
		return newCount, err
	}

	f.ETag, f.LastModified = result.ETag, result.LastModified
	if parsed.Title != "" {
		f.Title = parsed.Title
	}
	if parsed.Photo != "" {
		f.Photo = parsed.Photo
	}
	p.applyTier(ctx, f, now, tier.Update{CurrentTier: f.Tier, Unmodified: f.Unmodified, HasNewItems: newCount > 0})
	if err := p.Store.UpdateFeedAfterFetch(ctx, f); err != nil {
		return newCount, err
	}
	if err := p.Store.UpdateFeedStatus(ctx, f.ID, true, ""); err != nil {
		return newCount, err
	}
	if newCount > 0 {
		_ = p.Store.IncrementItemCount(ctx, f.ID, newCount)
	}

	if p.Subscriber != nil {
		hub, topic := result.Hub, result.Self
		if hub == "" {
			hub, topic = parsed.Hub, parsed.Self
		}
		if topic == "" {
			topic = f.URL
		}
		if hub != "" && (f.WebSub == nil || f.WebSub.Hub != hub) {
			if err := p.Subscriber.EnsureSubscribed(ctx, f, hub, topic); err != nil {
				log.Printf("processor: websub subscribe for %s failed: %v", f.URL, err)
			}
		}
	}

	return newCount, nil
}

// ProcessDelivered ingests a WebSub-pushed body directly, skipping the
// Fetcher and the tier update: per §4.7, "the push path does not alter
// tier". Still runs Processor steps 3-6 (parse, filter, insert).
func (p *Processor) ProcessDelivered(ctx context.Context, f *model.Feed, body []byte, contentType string) (int, error) {
	kind := feed.DetectType(body, contentType)
	parsed, err := feed.Parse(body, f.URL, kind)
	if err != nil {
		return 0, errs.Upstreamf(err, "parse pushed body for %s", f.URL)
	}
	newCount, err := p.ingest(ctx, f, parsed.Items)
	if newCount > 0 {
		_ = p.Store.IncrementItemCount(ctx, f.ID, newCount)
	}
	return newCount, err
}

// ingest runs the filter check and inserts each item, skipping those
// whose author is blocked or whose source is muted for the feed's
// owner. It does not itself implement mute/block storage; it consults
// the Store (C5) inline with each item (§4 data flow: Filter check
// before Item Store insert).
func (p *Processor) ingest(ctx context.Context, f *model.Feed, items []feed.NormalizedItem) (int, error) {
	ch, err := p.Store.GetChannel(ctx, f.ChannelID)
	if err != nil {
		return 0, err
	}

	newCount := 0
	for _, ni := range items {
		it := toModelItem(ni, f)

		if muted, err := p.Store.IsMuted(ctx, ch.Owner, f.ChannelID, it.Source.URL); err == nil && muted {
			continue
		}
		if it.Author != nil && it.Author.URL != "" {
			if blocked, err := p.Store.IsBlocked(ctx, ch.Owner, it.Author.URL); err == nil && blocked {
				continue
			}
		}
		if matchesExcludeFilter(ch.Filter, it) || !passesRegexFilter(ch.Filter, it) {
			continue
		}

		created, err := p.Store.AddItem(ctx, it)
		if err != nil {
			log.Printf("processor: add item %s: %v", it.UID, err)
			continue
		}
		if created {
			newCount++
		}
	}
	return newCount, nil
}

// passesRegexFilter reports whether it survives the channel's exclude
// regex: compiled once per item against the joined name, summary,
// content.text and content.html, case-insensitive. An empty pattern or
// an invalid pattern fails open (the item passes).
func passesRegexFilter(filter model.FilterSettings, it *model.Item) bool {
	if filter.ExcludeRegex == "" {
		return true
	}
	re, err := regexp.Compile("(?i)" + filter.ExcludeRegex)
	if err != nil {
		return true
	}
	haystack := it.Name + " " + it.Summary + " " + it.Content.Text + " " + it.Content.HTML
	return !re.MatchString(haystack)
}

func matchesExcludeFilter(filter model.FilterSettings, it *model.Item) bool {
	kind := it.InteractionKind()
	for _, excluded := range filter.ExcludeTypes {
		if excluded == kind {
			return true
		}
	}
	return false
}

func toModelItem(ni feed.NormalizedItem, f *model.Feed) *model.Item {
	it := &model.Item{
		ChannelID:  f.ChannelID,
		FeedID:     f.ID,
		UID:        ni.UID,
		URL:        ni.URL,
		Type:       ni.Type,
		Name:       ni.Name,
		Summary:    ni.Summary,
		Content:    ni.Content,
		Author:     ni.Author,
		Category:   ni.Category,
		Photo:      ni.Photo,
		Video:      ni.Video,
		Audio:      ni.Audio,
		LikeOf:     ni.LikeOf,
		RepostOf:   ni.RepostOf,
		BookmarkOf: ni.BookmarkOf,
		InReplyTo:  ni.InReplyTo,
		Source:     model.ItemSource{URL: ni.URL, FeedURL: ni.SourceFeedURL},
		CreatedAt:  time.Now(),
	}
	if ni.HasPublished {
		it.Published = ni.Published
	} else {
		it.Published = time.Now()
	}
	if ni.HasUpdated {
		it.Updated = ni.Updated
	}
	return it
}

func (p *Processor) applyTier(ctx context.Context, f *model.Feed, now time.Time, u tier.Update) {
	res := tier.CalculateNewTier(now, u)
	f.Tier, f.Unmodified, f.NextFetchAt = res.Tier, res.Unmodified, res.NextFetch
}
