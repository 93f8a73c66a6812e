package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sparrowreader/microsub/internal/model"
)

func openTestStore(t *testing.T) *SQLStore {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db")
	s, err := Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetChannel(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ch, err := s.CreateChannel(ctx, "alice", "Tech")
	if err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}
	if ch.Owner != "alice" || ch.Name != "Tech" {
		t.Fatalf("channel = %+v", ch)
	}

	got, err := s.GetChannel(ctx, ch.ID)
	if err != nil {
		t.Fatalf("GetChannel: %v", err)
	}
	if got.ID != ch.ID {
		t.Errorf("GetChannel returned id %q, want %q", got.ID, ch.ID)
	}
}

func TestEnsureNotificationsChannelIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.EnsureNotificationsChannel(ctx, "alice")
	if err != nil {
		t.Fatalf("EnsureNotificationsChannel: %v", err)
	}
	second, err := s.EnsureNotificationsChannel(ctx, "alice")
	if err != nil {
		t.Fatalf("EnsureNotificationsChannel (again): %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected the same notifications channel, got %s and %s", first.ID, second.ID)
	}
	if !second.IsNotifications() {
		t.Error("expected IsNotifications to be true")
	}
}

func TestCreateFeedIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ch, err := s.CreateChannel(ctx, "alice", "Tech")
	if err != nil {
		t.Fatal(err)
	}

	first, isNew, err := s.CreateFeed(ctx, ch.ID, "https://example.com/feed.xml")
	if err != nil {
		t.Fatalf("CreateFeed: %v", err)
	}
	if !isNew {
		t.Error("expected the first CreateFeed call to report isNew=true")
	}

	second, isNew, err := s.CreateFeed(ctx, ch.ID, "https://example.com/feed.xml")
	if err != nil {
		t.Fatalf("CreateFeed (again): %v", err)
	}
	if isNew {
		t.Error("expected the second CreateFeed call to report isNew=false")
	}
	if first.ID != second.ID {
		t.Errorf("expected the same feed record, got %s and %s", first.ID, second.ID)
	}
}

func TestGetFeedsToFetchOnlyReturnsDueFeeds(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ch, err := s.CreateChannel(ctx, "alice", "Tech")
	if err != nil {
		t.Fatal(err)
	}
	f, _, err := s.CreateFeed(ctx, ch.ID, "https://example.com/feed.xml")
	if err != nil {
		t.Fatal(err)
	}

	due, err := s.GetFeedsToFetch(ctx, time.Now().Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("GetFeedsToFetch: %v", err)
	}
	if len(due) != 1 || due[0].ID != f.ID {
		t.Fatalf("due = %+v, want exactly the new feed", due)
	}

	notYetDue, err := s.GetFeedsToFetch(ctx, time.Now().Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("GetFeedsToFetch (past): %v", err)
	}
	if len(notYetDue) != 0 {
		t.Fatalf("expected no feeds due an hour in the past, got %+v", notYetDue)
	}
}

func TestAddItemDedupsByChannelAndUID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ch, err := s.CreateChannel(ctx, "alice", "Tech")
	if err != nil {
		t.Fatal(err)
	}

	it := &model.Item{ChannelID: ch.ID, UID: "uid-1", URL: "https://example.com/post/1", Name: "Hello", Published: time.Now()}
	created, err := s.AddItem(ctx, it)
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if !created {
		t.Error("expected the first AddItem to create a row")
	}

	dup := &model.Item{ChannelID: ch.ID, UID: "uid-1", URL: "https://example.com/post/1-different", Name: "Hello again", Published: time.Now()}
	created, err = s.AddItem(ctx, dup)
	if err != nil {
		t.Fatalf("AddItem (dup): %v", err)
	}
	if created {
		t.Error("expected a duplicate (channel, uid) to be silently skipped")
	}
}

func TestGetTimelineOrdersNewestFirstAndPaginates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ch, err := s.CreateChannel(ctx, "alice", "Tech")
	if err != nil {
		t.Fatal(err)
	}

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		it := &model.Item{
			ChannelID: ch.ID,
			UID:       "uid-" + string(rune('a'+i)),
			URL:       "https://example.com/post/" + string(rune('a'+i)),
			Name:      "Post",
			Published: base.Add(time.Duration(i) * time.Hour),
		}
		if _, err := s.AddItem(ctx, it); err != nil {
			t.Fatal(err)
		}
	}

	page, err := s.GetTimeline(ctx, ch.ID, TimelineQuery{Limit: 2, Owner: "alice", ShowRead: true})
	if err != nil {
		t.Fatalf("GetTimeline: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(page.Items))
	}
	if !page.Items[0].Published.After(page.Items[1].Published) {
		t.Errorf("expected newest-first ordering, got %v then %v", page.Items[0].Published, page.Items[1].Published)
	}
	if page.AfterCursor == "" {
		t.Error("expected an after-cursor since more items remain")
	}

	cursor, err := DecodeCursor(page.AfterCursor)
	if err != nil {
		t.Fatalf("DecodeCursor: %v", err)
	}
	nextPage, err := s.GetTimeline(ctx, ch.ID, TimelineQuery{Limit: 10, Owner: "alice", ShowRead: true, After: &cursor})
	if err != nil {
		t.Fatalf("GetTimeline (after cursor): %v", err)
	}
	if len(nextPage.Items) != 3 {
		t.Fatalf("got %d items after cursor, want 3 remaining", len(nextPage.Items))
	}
}

func TestGetTimelineHidesReadItemsByDefault(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ch, err := s.CreateChannel(ctx, "alice", "Tech")
	if err != nil {
		t.Fatal(err)
	}
	it := &model.Item{ChannelID: ch.ID, UID: "uid-1", URL: "https://example.com/post/1", Name: "Hello", Published: time.Now()}
	if _, err := s.AddItem(ctx, it); err != nil {
		t.Fatal(err)
	}

	if _, err := s.MarkRead(ctx, ch.ID, []string{it.UID}, "alice"); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}

	unread, err := s.GetTimeline(ctx, ch.ID, TimelineQuery{Limit: 10, Owner: "alice", ShowRead: false})
	if err != nil {
		t.Fatalf("GetTimeline: %v", err)
	}
	if len(unread.Items) != 0 {
		t.Fatalf("expected the read item to be hidden, got %d items", len(unread.Items))
	}

	all, err := s.GetTimeline(ctx, ch.ID, TimelineQuery{Limit: 10, Owner: "alice", ShowRead: true})
	if err != nil {
		t.Fatalf("GetTimeline (show read): %v", err)
	}
	if len(all.Items) != 1 {
		t.Fatalf("expected the read item to still show with ShowRead=true, got %d items", len(all.Items))
	}
	if !all.Items[0].IsReadBy("alice") {
		t.Error("expected IsReadBy(alice) to be true after MarkRead")
	}
}

func TestMarkReadThenMarkUnreadRoundTrips(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ch, err := s.CreateChannel(ctx, "alice", "Tech")
	if err != nil {
		t.Fatal(err)
	}
	it := &model.Item{ChannelID: ch.ID, UID: "uid-1", URL: "https://example.com/post/1", Published: time.Now()}
	if _, err := s.AddItem(ctx, it); err != nil {
		t.Fatal(err)
	}

	n, err := s.MarkRead(ctx, ch.ID, []string{it.UID}, "alice")
	if err != nil || n != 1 {
		t.Fatalf("MarkRead: n=%d err=%v", n, err)
	}
	n, err = s.MarkUnread(ctx, ch.ID, []string{it.UID}, "alice")
	if err != nil || n != 1 {
		t.Fatalf("MarkUnread: n=%d err=%v", n, err)
	}

	page, err := s.GetTimeline(ctx, ch.ID, TimelineQuery{Limit: 10, Owner: "alice", ShowRead: false})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected the item to be unread again, got %d unread items", len(page.Items))
	}
}

func TestMuteAndBlockLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Mute(ctx, "alice", "https://spammy.example/", ""); err != nil {
		t.Fatalf("Mute: %v", err)
	}
	muted, err := s.IsMuted(ctx, "alice", "any-channel", "https://spammy.example/")
	if err != nil || !muted {
		t.Fatalf("IsMuted = %v, %v, want true", muted, err)
	}
	if err := s.Unmute(ctx, "alice", "https://spammy.example/", ""); err != nil {
		t.Fatalf("Unmute: %v", err)
	}
	muted, err = s.IsMuted(ctx, "alice", "any-channel", "https://spammy.example/")
	if err != nil || muted {
		t.Fatalf("IsMuted after unmute = %v, %v, want false", muted, err)
	}

	if err := s.Block(ctx, "alice", "https://troll.example/"); err != nil {
		t.Fatalf("Block: %v", err)
	}
	blocked, err := s.IsBlocked(ctx, "alice", "https://troll.example/")
	if err != nil || !blocked {
		t.Fatalf("IsBlocked = %v, %v, want true", blocked, err)
	}
}

func TestSearchItemsRanksByWeightedFieldMatch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ch, err := s.CreateChannel(ctx, "alice", "Tech")
	if err != nil {
		t.Fatal(err)
	}

	titleMatch := &model.Item{ChannelID: ch.ID, UID: "uid-title", Name: "golang concurrency patterns", Published: time.Now()}
	bodyMatch := &model.Item{ChannelID: ch.ID, UID: "uid-body", Name: "unrelated", Content: model.Content{Text: "a brief mention of golang here"}, Published: time.Now()}
	if _, err := s.AddItem(ctx, titleMatch); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddItem(ctx, bodyMatch); err != nil {
		t.Fatal(err)
	}

	results, err := s.SearchItems(ctx, ch.ID, "golang", 10)
	if err != nil {
		t.Fatalf("SearchItems: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].UID != "uid-title" {
		t.Errorf("expected the name match to rank first, got %s first", results[0].UID)
	}
}

func TestCleanupChannelOwnerStripsBeyondRetentionWindow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ch, err := s.CreateChannel(ctx, "alice", "Tech")
	if err != nil {
		t.Fatal(err)
	}
	f, _, err := s.CreateFeed(ctx, ch.ID, "https://example.com/feed.xml")
	if err != nil {
		t.Fatal(err)
	}

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var uids []string
	for i := 0; i < 3; i++ {
		uid := "uid-" + string(rune('a'+i))
		it := &model.Item{ChannelID: ch.ID, FeedID: f.ID, UID: uid, Name: "Post", Published: base.Add(time.Duration(i) * time.Hour)}
		if _, err := s.AddItem(ctx, it); err != nil {
			t.Fatal(err)
		}
		uids = append(uids, uid)
	}
	if _, err := s.MarkRead(ctx, ch.ID, uids, "alice"); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}

	if err := s.CleanupChannelOwner(ctx, ch.ID, "alice", 1); err != nil {
		t.Fatalf("CleanupChannelOwner: %v", err)
	}

	// GetTimeline never returns stripped skeletons, so count them directly.
	var strippedCount int
	if err := s.db.GetContext(ctx, &strippedCount, s.rebind(`SELECT COUNT(*) FROM items WHERE channel_id = ? AND stripped = ?`), ch.ID, true); err != nil {
		t.Fatal(err)
	}
	if strippedCount != 2 {
		t.Errorf("expected 2 of 3 read items to be stripped beyond the retention window of 1, got %d", strippedCount)
	}
}
