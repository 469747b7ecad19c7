package submitonce

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

func TestTokenGeneratorRoundTrip(t *testing.T) {
	now := time.UnixMilli(1700000000000).UTC()
	gen := newTokenGeneratorWithRand(fixedClock{now: now}, bytes.NewReader(bytes.Repeat([]byte{0x42}, 64)))

	id, err := gen.New("user@example.com")
	if err != nil {
		t.Fatalf("new id: %v", err)
	}

	email, issuedAt, token, err := ParseRequestID(id)
	if err != nil {
		t.Fatalf("parse id: %v", err)
	}
	if email != "user@example.com" {
		t.Fatalf("expected email round-trip, got %q", email)
	}
	if !issuedAt.Equal(now) {
		t.Fatalf("expected issue time %v, got %v", now, issuedAt)
	}
	if token == "" || strings.ContainsRune(token, '-') {
		t.Fatalf("expected dash-free token, got %q", token)
	}
}

func TestTokenGeneratorDashedEmail(t *testing.T) {
	now := time.UnixMilli(1700000000000).UTC()
	gen := newTokenGeneratorWithRand(fixedClock{now: now}, bytes.NewReader(bytes.Repeat([]byte{0x11}, 64)))

	id, err := gen.New("first-last@sub-domain.example.com")
	if err != nil {
		t.Fatalf("new id: %v", err)
	}

	email, _, _, err := ParseRequestID(id)
	if err != nil {
		t.Fatalf("parse id: %v", err)
	}
	if email != "first-last@sub-domain.example.com" {
		t.Fatalf("expected dashed email to survive, got %q", email)
	}
}

func TestTokenGeneratorUnique(t *testing.T) {
	gen := NewTokenGenerator(SystemClock{})

	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id, err := gen.New("user@example.com")
		if err != nil {
			t.Fatalf("new id: %v", err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
}

func TestParseRequestIDInvalid(t *testing.T) {
	cases := []string{
		"nodashes",
		"user@example.com",
		"user@example.com-abc-123",
		"user@example.com--3k9z",
		"user@example.com-1700000000000-",
		"user@example.com-1700000000000-UPPER",
		"user@example.com-1700000000000-to-ken",
		"not-an-address-1700000000000-3k9z",
		"-1700000000000-3k9z",
		"user@example.com-+1700000000000-3k9z",
		"user@example.com-0-3k9z",
	}
	for _, value := range cases {
		if err := ValidateRequestID(value); err == nil {
			t.Fatalf("expected error for %q", value)
		}
	}
}

func TestParseRequestIDEmpty(t *testing.T) {
	if err := ValidateRequestID(""); err != ErrRequestIDRequired {
		t.Fatalf("expected ErrRequestIDRequired, got %v", err)
	}
}
