package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetchReturnsBodyAndValidators(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"abc123"`)
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	f := New("test-agent", nil)
	result, err := f.Fetch(context.Background(), srv.URL, Validators{}, time.Second)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(result.Body) != "hello" {
		t.Errorf("Body = %q", result.Body)
	}
	if result.ETag != `"abc123"` {
		t.Errorf("ETag = %q", result.ETag)
	}
}

func TestFetchReturnsErrNotModifiedOn304(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	f := New("test-agent", nil)
	_, err := f.Fetch(context.Background(), srv.URL, Validators{ETag: `"abc"`}, time.Second)
	if err != ErrNotModified {
		t.Errorf("err = %v, want ErrNotModified", err)
	}
}

func TestFetchSendsConditionalHeaders(t *testing.T) {
	var gotIfNoneMatch, gotIfModifiedSince string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIfNoneMatch = r.Header.Get("If-None-Match")
		gotIfModifiedSince = r.Header.Get("If-Modified-Since")
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	f := New("test-agent", nil)
	_, _ = f.Fetch(context.Background(), srv.URL, Validators{ETag: `"abc"`, LastModified: "Tue, 03 Mar 2026 10:00:00 GMT"}, time.Second)
	if gotIfNoneMatch != `"abc"` {
		t.Errorf("If-None-Match = %q", gotIfNoneMatch)
	}
	if gotIfModifiedSince != "Tue, 03 Mar 2026 10:00:00 GMT" {
		t.Errorf("If-Modified-Since = %q", gotIfModifiedSince)
	}
}

func TestFetchReturnsHTTPErrorOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := New("test-agent", nil)
	_, err := f.Fetch(context.Background(), srv.URL, Validators{}, time.Second)
	httpErr, ok := err.(*HTTPError)
	if !ok {
		t.Fatalf("err = %v (%T), want *HTTPError", err, err)
	}
	if httpErr.Status != http.StatusInternalServerError {
		t.Errorf("Status = %d", httpErr.Status)
	}
}

func TestParseLinkHeaderExtractsHubAndSelf(t *testing.T) {
	values := []string{
		`<https://hub.example/>; rel="hub", <https://example.com/feed.xml>; rel="self"`,
	}
	hub, self := ParseLinkHeader(values)
	if hub != "https://hub.example/" {
		t.Errorf("hub = %q", hub)
	}
	if self != "https://example.com/feed.xml" {
		t.Errorf("self = %q", self)
	}
}

func TestParseLinkHeaderToleratesCaseAndMultipleValues(t *testing.T) {
	values := []string{
		`<https://hub.example/>; REL="HUB"`,
		`<https://example.com/feed.xml>; rel=self`,
	}
	hub, self := ParseLinkHeader(values)
	if hub != "https://hub.example/" {
		t.Errorf("hub = %q", hub)
	}
	if self != "https://example.com/feed.xml" {
		t.Errorf("self = %q", self)
	}
}

func TestParseLinkHeaderEmptyWhenAbsent(t *testing.T) {
	hub, self := ParseLinkHeader(nil)
	if hub != "" || self != "" {
		t.Errorf("hub=%q self=%q, want both empty", hub, self)
	}
}
