// Package webmention verifies and persists inbound webmentions (C9 of
// the specification, §4.8): confirm the source actually links to the
// target, classify the interaction type by precedence, and upsert a
// notification item keyed by (source, target).
package webmention

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sparrowreader/microsub/internal/errs"
	"github.com/sparrowreader/microsub/internal/feed"
	"github.com/sparrowreader/microsub/internal/fetch"
	"github.com/sparrowreader/microsub/internal/mf2"
	"github.com/sparrowreader/microsub/internal/model"
	"github.com/sparrowreader/microsub/internal/store"
)

// Verifier fetches a webmention's source and confirms/classifies it
// before persisting it as a notification.
type Verifier struct {
	Fetcher *fetch.Fetcher
	Store   *store.SQLStore
	Timeout time.Duration
}

// New builds a Verifier.
func New(f *fetch.Fetcher, st *store.SQLStore, timeout time.Duration) *Verifier {
	return &Verifier{Fetcher: f, Store: st, Timeout: timeout}
}

// Verify fetches source and confirms it references target, tolerating
// a trailing-slash mismatch. On success it classifies the interaction
// and upserts a notification into owner's notifications channel; on
// failure to confirm, nothing is persisted and no error is surfaced
// back to the sender beyond the caller's already-sent 202 (§4.8, §7).
func (v *Verifier) Verify(ctx context.Context, owner, source, target string) error {
	ctx, cancel := context.WithTimeout(ctx, v.Timeout)
	defer cancel()

	result, err := v.Fetcher.Fetch(ctx, source, fetch.Validators{}, v.Timeout)
	if err != nil {
		return errs.Upstreamf(err, "fetch webmention source %s", source)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(result.Body))
	if err != nil {
		return errs.Upstreamf(err, "parse webmention source %s", source)
	}

	if !referencesTarget(doc, target) {
		return errs.Validationf("source %s does not reference target %s", source, target)
	}

	entry, author := extractEntry(doc, target)
	notifType := classify(entry, target)

	ch, err := v.Store.EnsureNotificationsChannel(ctx, owner)
	if err != nil {
		return err
	}

	sanitizedHTML := feed.SanitizeHTML(entry.ContentHTML)
	contentText := entry.Summary
	if contentText == "" {
		contentText = feed.StripToText(sanitizedHTML)
	}

	it := &model.Item{
		Type:        "entry",
		URL:         source,
		Name:        entry.Name,
		Content:     model.Content{HTML: sanitizedHTML, Text: contentText},
		Summary:     entry.Summary,
		Source:      model.ItemSource{URL: source},
		NotifSource: source,
		NotifTarget: target,
		NotifType:   notifType,
		CreatedAt:   time.Now(),
	}
	if author != nil {
		it.Author = &model.Author{Name: author.Name, URL: author.URL, Photo: author.Photo}
	}
	if it.Content.HTML == "" {
		it.Content.HTML = entry.Name
	}

	_, err = v.Store.UpsertNotification(ctx, ch.ID, it)
	return err
}

// Retract removes a previously persisted webmention when the source no
// longer references the target.
func (v *Verifier) Retract(ctx context.Context, owner, source, target string) error {
	ch, err := v.Store.EnsureNotificationsChannel(ctx, owner)
	if err != nil {
		return err
	}
	return v.Store.DeleteNotification(ctx, ch.ID, source, target)
}

// referencesTarget reports whether the page links to target anywhere,
// ignoring a trailing-slash-only difference.
func referencesTarget(doc *goquery.Document, target string) bool {
	want1, want2 := target, strings.TrimSuffix(target, "/")
	if want2 == want1 {
		want2 = target + "/"
	}
	found := false
	doc.Find("a[href], img[src]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		if href == "" {
			href, _ = sel.Attr("src")
		}
		if href == want1 || href == want2 {
			found = true
			return false
		}
		return true
	})
	return found
}

// extractEntry picks the h-entry most likely to be the mentioning
// entry (the first one that references target, falling back to the
// first h-entry on the page), and an author card for it.
func extractEntry(doc *goquery.Document, target string) (mf2.Entry, *mf2.Card) {
	entries := mf2.FindEntries(doc)
	var best *mf2.Entry
	for _, root := range entries {
		e := mf2.ParseEntry(root)
		if referencesAny(e, target) {
			best = &e
			break
		}
	}
	if best == nil && len(entries) > 0 {
		e := mf2.ParseEntry(entries[0])
		best = &e
	}
	if best == nil {
		return mf2.Entry{}, mf2.FindPageCard(doc)
	}
	author := best.Author
	if author == nil {
		author = mf2.FindPageCard(doc)
	}
	return *best, author
}

func referencesAny(e mf2.Entry, target string) bool {
	for _, list := range [][]string{e.LikeOf, e.RepostOf, e.BookmarkOf, e.InReplyTo} {
		for _, u := range list {
			if u == target {
				return true
			}
		}
	}
	return false
}

// classify applies the interaction-type precedence from §4.8: like-of
// > repost-of > bookmark-of > in-reply-to > mention.
func classify(e mf2.Entry, target string) model.NotificationType {
	switch {
	case containsURL(e.LikeOf, target):
		return model.NotificationLike
	case containsURL(e.RepostOf, target):
		return model.NotificationRepost
	case containsURL(e.BookmarkOf, target):
		return model.NotificationBookmark
	case containsURL(e.InReplyTo, target):
		return model.NotificationReply
	default:
		return model.NotificationMention
	}
}

func containsURL(list []string, target string) bool {
	for _, u := range list {
		if u == target {
			return true
		}
	}
	return false
}
