package store

import (
	"testing"
	"time"

	"github.com/sparrowreader/microsub/internal/model"
)

func TestEncodeDecodeCursorRoundTrips(t *testing.T) {
	published := time.Date(2026, 3, 4, 12, 30, 0, 123000000, time.UTC)
	c := model.Cursor{T: published, I: "item-abc123"}

	token := EncodeCursor(c)
	if token == "" {
		t.Fatal("EncodeCursor returned empty token")
	}

	decoded, err := DecodeCursor(token)
	if err != nil {
		t.Fatalf("DecodeCursor: %v", err)
	}
	if !decoded.T.Equal(c.T) {
		t.Errorf("T = %v, want %v", decoded.T, c.T)
	}
	if decoded.I != c.I {
		t.Errorf("I = %q, want %q", decoded.I, c.I)
	}
}

func TestDecodeCursorRejectsMalformedToken(t *testing.T) {
	if _, err := DecodeCursor("not-valid-base64url!!"); err == nil {
		t.Fatal("expected an error decoding a malformed token")
	}
}

func TestDecodeCursorRejectsValidBase64NonJSON(t *testing.T) {
	// "aGVsbG8" decodes to the ASCII bytes "hello", which isn't JSON.
	if _, err := DecodeCursor("aGVsbG8"); err == nil {
		t.Fatal("expected an error decoding base64 that isn't JSON")
	}
}
