package security

import (
	"errors"
	"strings"
	"testing"
)

const testKey = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="

func TestSealerRoundTrip(t *testing.T) {
	sealer, err := NewSealer(testKey)
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}

	token, err := sealer.Seal("hash-key-123", "MS1234567")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if strings.Contains(token, "hash-key-123") {
		t.Fatalf("sealed value leaks plaintext: %s", token)
	}

	plain, err := sealer.Open(token, "MS1234567")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if plain != "hash-key-123" {
		t.Fatalf("unexpected plaintext %q", plain)
	}

	again, _ := sealer.Seal("hash-key-123", "MS1234567")
	if again == token {
		t.Fatalf("expected random nonce to change ciphertext")
	}
}

func TestSealerRejectsWrongMerchantAndTampering(t *testing.T) {
	sealer, err := NewSealer(testKey)
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}
	token, _ := sealer.Seal("iv", "MS1")

	if _, err := sealer.Open(token, "MS2"); !errors.Is(err, ErrInvalidSealedValue) {
		t.Fatalf("expected invalid sealed value for wrong merchant, got %v", err)
	}
	if _, err := sealer.Open("plain-text", "MS1"); !errors.Is(err, ErrInvalidSealedValue) {
		t.Fatalf("expected invalid sealed value for missing prefix, got %v", err)
	}
	tampered := []byte(token)
	mid := len(tampered) / 2
	if tampered[mid] == 'A' {
		tampered[mid] = 'B'
	} else {
		tampered[mid] = 'A'
	}
	if _, err := sealer.Open(string(tampered), "MS1"); !errors.Is(err, ErrInvalidSealedValue) {
		t.Fatalf("expected invalid sealed value for tampered token, got %v", err)
	}
}

func TestNewSealerValidatesKey(t *testing.T) {
	if _, err := NewSealer("not-base64!"); err == nil {
		t.Fatal("expected decode error")
	}
	if _, err := NewSealer("c2hvcnQ="); err == nil {
		t.Fatal("expected short key error")
	}
}

func TestMaskMerchantID(t *testing.T) {
	cases := map[string]string{
		"MS1234567": "MS*****67",
		"ABCD":      "****",
		"AB":        "**",
		"":          "",
		"MS12345":   "MS***45",
	}
	for in, want := range cases {
		if got := MaskMerchantID(in); got != want {
			t.Fatalf("MaskMerchantID(%q) = %q, want %q", in, got, want)
		}
	}
}
