package api

import (
	"time"

	"github.com/sparrowreader/microsub/internal/model"
)

// toJF2 renders it in the jf2 surface: §3's fields with hyphenated
// keys, ISO-8601 timestamps, and the _id/_is_read/_source metadata
// triplet.
func toJF2(it model.Item, owner string) map[string]interface{} {
	out := map[string]interface{}{
		"type":      "entry",
		"_id":       it.ID,
		"_is_read":  it.IsReadBy(owner),
		"_source":   map[string]string{"url": it.Source.URL, "feed-url": it.Source.FeedURL},
		"url":       it.URL,
		"published": it.Published.UTC().Format(time.RFC3339),
	}
	if it.Type != "" {
		out["type"] = it.Type
	}
	if it.Name != "" {
		out["name"] = it.Name
	}
	if it.Summary != "" {
		out["summary"] = it.Summary
	}
	if it.Content.HTML != "" || it.Content.Text != "" {
		content := map[string]string{}
		if it.Content.HTML != "" {
			content["html"] = it.Content.HTML
		}
		if it.Content.Text != "" {
			content["text"] = it.Content.Text
		}
		out["content"] = content
	}
	if !it.Updated.IsZero() {
		out["updated"] = it.Updated.UTC().Format(time.RFC3339)
	}
	if it.Author != nil {
		out["author"] = map[string]string{"name": it.Author.Name, "url": it.Author.URL, "photo": it.Author.Photo}
	}
	if len(it.Category) > 0 {
		out["category"] = it.Category
	}
	if len(it.Photo) > 0 {
		out["photo"] = it.Photo
	}
	if len(it.Video) > 0 {
		out["video"] = it.Video
	}
	if len(it.Audio) > 0 {
		out["audio"] = it.Audio
	}
	if len(it.LikeOf) > 0 {
		out["like-of"] = it.LikeOf
	}
	if len(it.RepostOf) > 0 {
		out["repost-of"] = it.RepostOf
	}
	if len(it.BookmarkOf) > 0 {
		out["bookmark-of"] = it.BookmarkOf
	}
	if len(it.InReplyTo) > 0 {
		out["in-reply-to"] = it.InReplyTo
	}
	if it.NotifSource != "" {
		out["wm-source"] = it.NotifSource
		out["wm-target"] = it.NotifTarget
		out["wm-property"] = notifWMProperty(it.NotifType)
	}
	return out
}

func notifWMProperty(t model.NotificationType) string {
	switch t {
	case model.NotificationLike:
		return "like-of"
	case model.NotificationRepost:
		return "repost-of"
	case model.NotificationBookmark:
		return "bookmark-of"
	case model.NotificationReply:
		return "in-reply-to"
	default:
		return "mention-of"
	}
}

func feedDescriptor(f model.Feed) map[string]interface{} {
	return map[string]interface{}{
		"_id":   f.ID,
		"type":  "feed",
		"url":   f.URL,
		"name":  f.Title,
		"photo": f.Photo,
	}
}
