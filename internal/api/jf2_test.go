package api

import (
	"testing"
	"time"

	"github.com/sparrowreader/microsub/internal/model"
)

func TestToJF2MapsCoreFieldsAndReadState(t *testing.T) {
	it := model.Item{
		ID:        "item-1",
		Type:      "entry",
		URL:       "https://example.com/post/1",
		Name:      "Hello",
		Published: time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC),
		Source:    model.ItemSource{URL: "https://example.com/post/1", FeedURL: "https://example.com/feed.xml"},
		ReadBy:    []string{"alice"},
	}

	out := toJF2(it, "alice")
	if out["_id"] != "item-1" {
		t.Errorf("_id = %v", out["_id"])
	}
	if out["_is_read"] != true {
		t.Errorf("_is_read = %v, want true for alice", out["_is_read"])
	}
	if out["name"] != "Hello" {
		t.Errorf("name = %v", out["name"])
	}
	if out["published"] != "2026-03-03T10:00:00Z" {
		t.Errorf("published = %v", out["published"])
	}
}

func TestToJF2IsUnreadForOtherOwner(t *testing.T) {
	it := model.Item{ID: "item-1", ReadBy: []string{"alice"}}
	out := toJF2(it, "bob")
	if out["_is_read"] != false {
		t.Errorf("_is_read = %v, want false for bob", out["_is_read"])
	}
}

func TestToJF2OmitsEmptyOptionalFields(t *testing.T) {
	it := model.Item{ID: "item-1"}
	out := toJF2(it, "alice")
	for _, key := range []string{"name", "summary", "content", "author", "category", "photo", "like-of", "wm-source"} {
		if _, ok := out[key]; ok {
			t.Errorf("expected %q to be omitted when empty, got %v", key, out[key])
		}
	}
}

func TestToJF2IncludesHyphenatedInteractionKeys(t *testing.T) {
	it := model.Item{
		ID:     "item-1",
		LikeOf: []string{"https://example.com/liked"},
	}
	out := toJF2(it, "alice")
	likeOf, ok := out["like-of"].([]string)
	if !ok || len(likeOf) != 1 || likeOf[0] != "https://example.com/liked" {
		t.Errorf("like-of = %v", out["like-of"])
	}
}

func TestToJF2SetsWebmentionPropertyByNotificationType(t *testing.T) {
	cases := map[model.NotificationType]string{
		model.NotificationLike:     "like-of",
		model.NotificationRepost:   "repost-of",
		model.NotificationBookmark: "bookmark-of",
		model.NotificationReply:    "in-reply-to",
		model.NotificationMention:  "mention-of",
	}
	for notifType, want := range cases {
		it := model.Item{ID: "n-1", NotifSource: "https://example.com/a", NotifTarget: "https://example.com/b", NotifType: notifType}
		out := toJF2(it, "alice")
		if got := out["wm-property"]; got != want {
			t.Errorf("notification type %v: wm-property = %v, want %v", notifType, got, want)
		}
	}
}
