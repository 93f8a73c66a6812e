// Package model defines the shared data structures for channels, feeds,
// items and the ancillary mute/block lists.
package model

import "time"

// FeedKind is the tagged sum of formats the parser can detect and read.
type FeedKind string

const (
	KindRSS         FeedKind = "rss"
	KindAtom        FeedKind = "atom"
	KindJSONFeed    FeedKind = "jsonfeed"
	KindHFeed       FeedKind = "hfeed"
	KindActivityPub FeedKind = "activitypub"
	KindUnknown     FeedKind = "unknown"
)

// InteractionKind is the classified interaction type of an item, derived
// from its interaction reference arrays.
type InteractionKind string

const (
	InteractionLike     InteractionKind = "like"
	InteractionRepost   InteractionKind = "repost"
	InteractionBookmark InteractionKind = "bookmark"
	InteractionReply    InteractionKind = "reply"
	InteractionRSVP     InteractionKind = "rsvp"
	InteractionCheckin  InteractionKind = "checkin"
	InteractionPost     InteractionKind = "post"
)

// NotificationType is the verified-mention classification persisted on
// notification entries.
type NotificationType string

const (
	NotificationMention  NotificationType = "mention"
	NotificationReply    NotificationType = "reply"
	NotificationLike     NotificationType = "like"
	NotificationRepost   NotificationType = "repost"
	NotificationBookmark NotificationType = "bookmark"
)

// NotificationsExternalID is the reserved external id for the per-owner
// notifications channel. Exactly one channel per owner carries it.
const NotificationsExternalID = "notifications"

// NotificationsOrder is the pinned display order of the notifications channel.
const NotificationsOrder = -1

// FilterSettings holds the per-channel content filter configuration.
type FilterSettings struct {
	ExcludeTypes []InteractionKind
	ExcludeRegex string
}

// Channel is a user-named grouping of feed subscriptions with an
// associated timeline and filter rules.
type Channel struct {
	ID         string
	ExternalID string
	Owner      string
	Name       string
	Order      int
	Filter     FilterSettings
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsNotifications reports whether c is the owner's notifications channel.
func (c Channel) IsNotifications() bool {
	return c.ExternalID == NotificationsExternalID
}

// WebSubState tracks a feed's WebSub subscription lifecycle.
type WebSubState struct {
	Hub          string
	Topic        string
	Secret       string
	LeaseSeconds int
	ExpiresAt    time.Time
	Pending      bool
}

// FeedStatus is the health state of a subscription as last observed by
// the processor.
type FeedStatus string

const (
	FeedActive FeedStatus = "active"
	FeedError  FeedStatus = "error"
)

// Feed is a subscription record tying a channel to an external feed URL
// and its polling state.
type Feed struct {
	ID                string
	ChannelID         string
	URL               string
	Title             string
	Photo             string
	Tier              int
	Unmodified        int
	NextFetchAt       time.Time
	LastFetchedAt     time.Time
	ETag              string
	LastModified      string
	Status            FeedStatus
	LastError         string
	LastErrorAt       time.Time
	ConsecutiveErrors int
	ItemCount         int
	WebSub            *WebSubState
	CreatedAt         time.Time
}

// Author is the attributed author of an item, when the source supplies one.
type Author struct {
	Name  string
	URL   string
	Photo string
}

// Content holds both the sanitized HTML rendering and the plain-text
// rendering of an item's body.
type Content struct {
	Text string
	HTML string
}

// ItemSource records the originating URL and feed URL of an item, used
// for mute matching and provenance display.
type ItemSource struct {
	URL     string
	FeedURL string
}

// Item is a single normalized entry from a feed, with stable uid and
// sanitized content. Notifications are items living in the owner's
// notifications channel with NotifSource/NotifTarget/NotifType set.
type Item struct {
	ID         string
	ChannelID  string
	FeedID     string // empty for push-only (e.g. notification) items
	UID        string
	URL        string
	Type       string
	Name       string
	Summary    string
	Content    Content
	Published  time.Time
	Updated    time.Time
	Author     *Author
	Category   []string
	Photo      []string
	Video      []string
	Audio      []string
	LikeOf     []string
	RepostOf   []string
	BookmarkOf []string
	InReplyTo  []string
	Source     ItemSource
	ReadBy     []string
	Stripped   bool
	CreatedAt  time.Time

	// Notification-only fields, populated only for items in the
	// notifications channel that arrived via webmention.
	NotifSource string
	NotifTarget string
	NotifType   NotificationType
}

// InteractionKind computes the interaction classification used by the
// type filter, checking like, repost, bookmark and reply in that order.
func (it *Item) InteractionKind() InteractionKind {
	switch {
	case len(it.LikeOf) > 0:
		return InteractionLike
	case len(it.RepostOf) > 0:
		return InteractionRepost
	case len(it.BookmarkOf) > 0:
		return InteractionBookmark
	case len(it.InReplyTo) > 0:
		return InteractionReply
	case it.Type == "rsvp":
		return InteractionRSVP
	case it.Type == "checkin":
		return InteractionCheckin
	default:
		return InteractionPost
	}
}

// IsReadBy reports whether owner has read this item.
func (it *Item) IsReadBy(owner string) bool {
	for _, o := range it.ReadBy {
		if o == owner {
			return true
		}
	}
	return false
}

// Strip reduces it to its dedup skeleton in place: content, author,
// category, media, interaction and source fields are cleared; id,
// channel, feed id, uid, timestamps, notification fields and read
// state survive.
func (it *Item) Strip() {
	it.URL = ""
	it.Type = ""
	it.Name = ""
	it.Summary = ""
	it.Content = Content{}
	it.Author = nil
	it.Category = nil
	it.Photo, it.Video, it.Audio = nil, nil, nil
	it.LikeOf, it.RepostOf, it.BookmarkOf, it.InReplyTo = nil, nil, nil, nil
	it.Source = ItemSource{}
	it.Stripped = true
}

// Mute suppresses items matching a source URL, either globally
// (Channel == "") or scoped to one channel.
type Mute struct {
	ID      string
	Owner   string
	URL     string
	Channel string // empty means global
}

// Block suppresses all items authored by AuthorURL, always global.
type Block struct {
	ID        string
	Owner     string
	AuthorURL string
}

// Cursor is the decoded form of an opaque timeline pagination token:
// (published, id) as used by the primary published DESC, id DESC sort.
type Cursor struct {
	T time.Time
	I string
}
