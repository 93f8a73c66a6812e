package model

import "testing"

func TestInteractionKindPrecedence(t *testing.T) {
	cases := []struct {
		name string
		item Item
		want InteractionKind
	}{
		{"like wins over everything", Item{LikeOf: []string{"https://a.example"}, RepostOf: []string{"https://b.example"}}, InteractionLike},
		{"repost wins over bookmark and reply", Item{RepostOf: []string{"https://a.example"}, BookmarkOf: []string{"https://b.example"}, InReplyTo: []string{"https://c.example"}}, InteractionRepost},
		{"bookmark wins over reply", Item{BookmarkOf: []string{"https://a.example"}, InReplyTo: []string{"https://b.example"}}, InteractionBookmark},
		{"reply when nothing else matches", Item{InReplyTo: []string{"https://a.example"}}, InteractionReply},
		{"rsvp type", Item{Type: "rsvp"}, InteractionRSVP},
		{"checkin type", Item{Type: "checkin"}, InteractionCheckin},
		{"plain post by default", Item{}, InteractionPost},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.item.InteractionKind(); got != c.want {
				t.Errorf("InteractionKind() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestIsReadBy(t *testing.T) {
	it := Item{ReadBy: []string{"alice", "bob"}}
	if !it.IsReadBy("alice") {
		t.Error("expected alice to have read the item")
	}
	if it.IsReadBy("carol") {
		t.Error("expected carol to not have read the item")
	}
}

func TestStripClearsContentButKeepsIdentity(t *testing.T) {
	it := Item{
		ID: "1", ChannelID: "c1", FeedID: "f1", UID: "uid-1", ReadBy: []string{"alice"},
		URL: "https://example.com/post", Name: "Hello", Summary: "a summary",
		Content: Content{Text: "body text", HTML: "<p>body text</p>"},
		Author:  &Author{Name: "Alice"},
		Category: []string{"tech"}, Photo: []string{"https://example.com/a.jpg"},
		LikeOf: []string{"https://example.com/liked"},
		Source: ItemSource{URL: "https://example.com/post"},
	}
	it.Strip()

	if it.URL != "" || it.Name != "" || it.Summary != "" {
		t.Errorf("expected content fields cleared, got %+v", it)
	}
	if it.Content != (Content{}) {
		t.Errorf("expected Content cleared, got %+v", it.Content)
	}
	if it.Author != nil {
		t.Error("expected Author cleared")
	}
	if it.Category != nil || it.Photo != nil || it.LikeOf != nil {
		t.Error("expected array fields cleared")
	}
	if it.Source != (ItemSource{}) {
		t.Errorf("expected Source cleared, got %+v", it.Source)
	}
	if !it.Stripped {
		t.Error("expected Stripped to be set to true")
	}
	if it.ID != "1" || it.ChannelID != "c1" || it.FeedID != "f1" || it.UID != "uid-1" {
		t.Error("expected identity fields to survive stripping")
	}
	if !it.IsReadBy("alice") {
		t.Error("expected read state to survive stripping")
	}
}

func TestChannelIsNotifications(t *testing.T) {
	notif := Channel{ExternalID: NotificationsExternalID}
	if !notif.IsNotifications() {
		t.Error("expected the notifications external id to be recognized")
	}
	other := Channel{ExternalID: "tech"}
	if other.IsNotifications() {
		t.Error("expected a regular channel to not be classified as notifications")
	}
}
