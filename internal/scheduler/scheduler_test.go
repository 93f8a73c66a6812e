package scheduler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/sparrowreader/microsub/internal/fetch"
	"github.com/sparrowreader/microsub/internal/processor"
	"github.com/sparrowreader/microsub/internal/store"
)

const testRSS = `<?xml version="1.0"?>
<rss version="2.0"><channel>
	<title>Example Feed</title>
	<item>
		<title>First post</title>
		<link>https://example.com/posts/1</link>
		<guid>https://example.com/posts/1</guid>
		<pubDate>Mon, 02 Mar 2026 10:00:00 GMT</pubDate>
	</item>
</channel></rss>`

func newTestScheduler(t *testing.T) (*Scheduler, *store.SQLStore) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	f := fetch.New("test-agent", nil)
	p := processor.New(f, st, nil, 5*time.Second)
	return New(st, p, 2, time.Minute, time.Hour), st
}

func TestRefreshFeedNowInsertsItemsAndAdvancesNextFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(testRSS))
	}))
	defer srv.Close()

	sched, st := newTestScheduler(t)
	ctx := context.Background()

	ch, err := st.CreateChannel(ctx, "alice", "Tech")
	if err != nil {
		t.Fatal(err)
	}
	feedRecord, _, err := st.CreateFeed(ctx, ch.ID, srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	originalNextFetch := feedRecord.NextFetchAt

	sched.RefreshFeedNow(ctx, feedRecord)

	if !feedRecord.NextFetchAt.After(originalNextFetch) {
		t.Errorf("NextFetchAt = %v, want later than %v after a successful fetch with new items", feedRecord.NextFetchAt, originalNextFetch)
	}

	page, err := st.GetTimeline(ctx, ch.ID, store.TimelineQuery{Limit: 10, Owner: "alice", ShowRead: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("timeline has %d items, want 1", len(page.Items))
	}
}

func TestTickSkipsWhenAlreadyTicking(t *testing.T) {
	sched, _ := newTestScheduler(t)
	if !sched.ticking.TryLock() {
		t.Fatal("expected to acquire the ticking lock for the test setup")
	}
	defer sched.ticking.Unlock()

	// tick() should observe the held lock and return immediately rather
	// than blocking, since a real tick never reenters while one is
	// already running.
	done := make(chan struct{})
	go func() {
		sched.tick()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("tick() did not return promptly while already locked")
	}
}

func TestFeedLocksReturnsSameMutexForSameFeedID(t *testing.T) {
	fl := newFeedLocks()
	a := fl.lockFor("feed-1")
	b := fl.lockFor("feed-1")
	if a != b {
		t.Error("expected the same feed id to yield the same mutex")
	}
	c := fl.lockFor("feed-2")
	if a == c {
		t.Error("expected different feed ids to yield different mutexes")
	}
}
