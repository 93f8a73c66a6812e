package websub

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func sign256(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func sign1(secret string, body []byte) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	return "sha1=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignatureAcceptsValidSHA256(t *testing.T) {
	body := []byte(`<rss><channel></channel></rss>`)
	sig := sign256("top-secret", body)
	if !verifySignature("top-secret", body, sig, "") {
		t.Fatal("expected a valid sha256 signature to verify")
	}
}

func TestVerifySignatureAcceptsValidSHA1Fallback(t *testing.T) {
	body := []byte(`<rss><channel></channel></rss>`)
	sig := sign1("top-secret", body)
	if !verifySignature("top-secret", body, "", sig) {
		t.Fatal("expected a valid sha1 signature to verify when no sha256 header is present")
	}
}

func TestVerifySignaturePrefersSHA256OverSHA1(t *testing.T) {
	body := []byte(`hello world`)
	good256 := sign256("top-secret", body)
	bad1 := sign1("wrong-secret", body)
	if !verifySignature("top-secret", body, good256, bad1) {
		t.Fatal("a valid sha256 signature should verify even alongside a mismatched sha1 header")
	}
}

func TestVerifySignatureRejectsWrongSecret(t *testing.T) {
	body := []byte(`hello world`)
	sig := sign256("top-secret", body)
	if verifySignature("a-different-secret", body, sig, "") {
		t.Fatal("expected verification to fail with the wrong secret")
	}
}

func TestVerifySignatureRejectsTamperedBody(t *testing.T) {
	sig := sign256("top-secret", []byte("original body"))
	if verifySignature("top-secret", []byte("tampered body"), sig, "") {
		t.Fatal("expected verification to fail against a tampered body")
	}
}

func TestVerifySignatureRejectsMissingHeaders(t *testing.T) {
	if verifySignature("top-secret", []byte("hello"), "", "") {
		t.Fatal("expected verification to fail when no signature header is present")
	}
}
