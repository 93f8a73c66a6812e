package feed

import (
	"testing"

	"github.com/sparrowreader/microsub/internal/model"
)

func TestDetectTypeByContentType(t *testing.T) {
	cases := []struct {
		contentType string
		body        string
		want        model.FeedKind
	}{
		{"application/atom+xml", "", model.KindAtom},
		{"application/feed+json", "", model.KindJSONFeed},
		{"text/html; charset=utf-8", "<html></html>", model.KindHFeed},
		{"application/json", `{"version":"https://jsonfeed.org/version/1"}`, model.KindJSONFeed},
	}
	for _, c := range cases {
		if got := DetectType([]byte(c.body), c.contentType); got != c.want {
			t.Errorf("DetectType(%q, %q) = %v, want %v", c.body, c.contentType, got, c.want)
		}
	}
}

func TestDetectTypeSniffsRSS(t *testing.T) {
	body := `<?xml version="1.0"?><rss version="2.0"><channel><title>Example</title></channel></rss>`
	if got := DetectType([]byte(body), ""); got != model.KindRSS {
		t.Errorf("DetectType sniffed %v, want rss", got)
	}
}

func TestDetectTypeSniffsAtom(t *testing.T) {
	body := `<?xml version="1.0"?><feed xmlns="http://www.w3.org/2005/Atom"><title>Example</title></feed>`
	if got := DetectType([]byte(body), ""); got != model.KindAtom {
		t.Errorf("DetectType sniffed %v, want atom", got)
	}
}

func TestDetectTypeSniffsJSONFeed(t *testing.T) {
	body := `{"version":"https://jsonfeed.org/version/1.1","title":"Example","items":[]}`
	if got := DetectType([]byte(body), ""); got != model.KindJSONFeed {
		t.Errorf("DetectType sniffed %v, want jsonfeed", got)
	}
}

func TestDetectTypeSniffsActivityPub(t *testing.T) {
	body := `{"@context":"https://www.w3.org/ns/activitystreams","type":"Group","inbox":"https://example.com/inbox"}`
	if got := DetectType([]byte(body), ""); got != model.KindActivityPub {
		t.Errorf("DetectType sniffed %v, want activitypub", got)
	}
}

func TestDetectTypeSniffsHTML(t *testing.T) {
	body := `<!DOCTYPE html><html><body><div class="h-feed"></div></body></html>`
	if got := DetectType([]byte(body), ""); got != model.KindHFeed {
		t.Errorf("DetectType sniffed %v, want hfeed", got)
	}
}

func TestDetectTypeUnknownForEmptyBody(t *testing.T) {
	if got := DetectType([]byte(""), ""); got != model.KindUnknown {
		t.Errorf("DetectType(empty) = %v, want unknown", got)
	}
}
