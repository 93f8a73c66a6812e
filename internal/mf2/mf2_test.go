package mf2

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return doc
}

func TestFindEntriesWithinExplicitHFeed(t *testing.T) {
	doc := mustDoc(t, `<html><body>
		<div class="h-feed">
			<div class="h-entry"><p class="p-name">One</p></div>
			<div class="h-entry"><p class="p-name">Two</p></div>
		</div>
		<div class="h-entry"><p class="p-name">Outside</p></div>
	</body></html>`)

	entries := FindEntries(doc)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2 (only those inside the h-feed)", len(entries))
	}
}

func TestFindEntriesFallsBackToRootLevel(t *testing.T) {
	doc := mustDoc(t, `<html><body>
		<div class="h-entry"><p class="p-name">One</p></div>
		<div class="h-entry"><p class="p-name">Two</p></div>
	</body></html>`)

	entries := FindEntries(doc)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
}

func TestParseEntryExtractsCoreProperties(t *testing.T) {
	doc := mustDoc(t, `<html><body>
		<div class="h-entry">
			<p class="p-name">Hello</p>
			<p class="p-summary">A short summary</p>
			<div class="e-content"><p>Full body</p></div>
			<a class="u-url" href="https://example.com/post/1">permalink</a>
			<time class="dt-published" datetime="2026-03-03T10:00:00Z">Mar 3</time>
		</div>
	</body></html>`)

	entry := ParseEntry(doc.Find(".h-entry").First())
	if entry.Name != "Hello" {
		t.Errorf("Name = %q, want Hello", entry.Name)
	}
	if entry.Summary != "A short summary" {
		t.Errorf("Summary = %q", entry.Summary)
	}
	if entry.URL != "https://example.com/post/1" {
		t.Errorf("URL = %q", entry.URL)
	}
	if !strings.Contains(entry.ContentHTML, "Full body") {
		t.Errorf("ContentHTML = %q, want it to contain Full body", entry.ContentHTML)
	}
}

func TestParseEntryExtractsLikeOfAndAuthor(t *testing.T) {
	doc := mustDoc(t, `<html><body>
		<div class="h-entry">
			<a class="u-like-of" href="https://example.com/liked-post"></a>
			<a class="p-author h-card" href="https://alice.example/">
				<span class="p-name">Alice</span>
			</a>
		</div>
	</body></html>`)

	entry := ParseEntry(doc.Find(".h-entry").First())
	if len(entry.LikeOf) != 1 || entry.LikeOf[0] != "https://example.com/liked-post" {
		t.Errorf("LikeOf = %v", entry.LikeOf)
	}
	if entry.Author == nil {
		t.Fatal("expected an author card")
	}
	if entry.Author.Name != "Alice" {
		t.Errorf("Author.Name = %q, want Alice", entry.Author.Name)
	}
	if entry.Author.URL != "https://alice.example/" {
		t.Errorf("Author.URL = %q", entry.Author.URL)
	}
}

func TestParseEntryDoesNotLeakNestedMicroformatProperties(t *testing.T) {
	doc := mustDoc(t, `<html><body>
		<div class="h-entry">
			<p class="p-name">Outer</p>
			<div class="h-cite">
				<p class="p-name">Inner citation, not the outer name</p>
			</div>
		</div>
	</body></html>`)

	entry := ParseEntry(doc.Find(".h-entry").First())
	if entry.Name != "Outer" {
		t.Errorf("Name = %q, want Outer (nested h-cite's p-name should not win)", entry.Name)
	}
}

func TestFindPageCardReturnsNilWhenAbsent(t *testing.T) {
	doc := mustDoc(t, `<html><body><p>no cards here</p></body></html>`)
	if FindPageCard(doc) != nil {
		t.Fatal("expected no page card")
	}
}
