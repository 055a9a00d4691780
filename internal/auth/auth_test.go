package auth

import (
	"errors"
	"testing"
	"time"
)

func TestJWTGateRoundTrip(t *testing.T) {
	g, err := NewJWTGate("s3cret", time.Minute)
	if err != nil {
		t.Fatalf("NewJWTGate() error = %v", err)
	}
	token, err := g.IssueToken("alice")
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	got, err := g.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got != "alice" {
		t.Fatalf("Validate() = %q, want alice", got)
	}
}

func TestJWTGateRejectsExpired(t *testing.T) {
	g, _ := NewJWTGate("s3cret", time.Minute)
	base := time.Now()
	g.now = func() time.Time { return base }
	token, err := g.IssueToken("alice")
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	g.now = func() time.Time { return base.Add(2 * time.Minute) }
	if _, err := g.Validate(token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Validate() error = %v, want ErrUnauthorized", err)
	}
}

func TestJWTGateRejectsForeignSignature(t *testing.T) {
	a, _ := NewJWTGate("one", time.Minute)
	b, _ := NewJWTGate("two", time.Minute)
	token, _ := a.IssueToken("alice")
	if _, err := b.Validate(token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Validate() error = %v, want ErrUnauthorized", err)
	}
	if _, err := b.Validate(""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Validate(empty) error = %v, want ErrUnauthorized", err)
	}
	if _, err := b.Validate("not.a.jwt"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Validate(garbage) error = %v, want ErrUnauthorized", err)
	}
}

func TestNewJWTGateRequiresSecret(t *testing.T) {
	if _, err := NewJWTGate("  ", 0); err == nil {
		t.Fatalf("NewJWTGate() should fail without a secret")
	}
	g, _ := NewJWTGate("x", 0)
	if g.ttl != DefaultTokenTTL {
		t.Fatalf("ttl = %v, want %v", g.ttl, DefaultTokenTTL)
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":   "abc",
		"bearer  xyz ": "xyz",
		"Basic abc":    "",
		"":             "",
	}
	for in, want := range cases {
		if got := BearerToken(in); got != want {
			t.Fatalf("BearerToken(%q) = %q, want %q", in, got, want)
		}
	}
}
