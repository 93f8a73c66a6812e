package feed

import "testing"

func TestUIDIsStableAndFixedLength(t *testing.T) {
	a := UID("https://example.com/feed.xml", "guid-1")
	b := UID("https://example.com/feed.xml", "guid-1")
	if a != b {
		t.Fatalf("UID is not deterministic: %s != %s", a, b)
	}
	if len(a) != 24 {
		t.Fatalf("UID length = %d, want 24", len(a))
	}
}

func TestUIDDiffersBySourceID(t *testing.T) {
	a := UID("https://example.com/feed.xml", "guid-1")
	b := UID("https://example.com/feed.xml", "guid-2")
	if a == b {
		t.Fatalf("distinct source ids produced the same uid: %s", a)
	}
}

func TestUIDDiffersByFeedURL(t *testing.T) {
	a := UID("https://example.com/feed.xml", "guid-1")
	b := UID("https://other.example.com/feed.xml", "guid-1")
	if a == b {
		t.Fatalf("distinct feed urls produced the same uid: %s", a)
	}
}
