package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestAuthenticator(t *testing.T) *Authenticator {
	t.Helper()
	a, err := NewAuthenticator("test-secret", time.Hour, 4)
	if err != nil {
		t.Fatalf("NewAuthenticator returned error: %v", err)
	}
	return a
}

func TestNewAuthenticatorRequiresSecret(t *testing.T) {
	if _, err := NewAuthenticator("", time.Hour, 10); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	a := newTestAuthenticator(t)

	hash, err := a.HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	if hash == "s3cret" {
		t.Fatal("hash must not equal the plaintext password")
	}
	if err := a.VerifyPassword(hash, "s3cret"); err != nil {
		t.Fatalf("VerifyPassword rejected the correct password: %v", err)
	}
	if err := a.VerifyPassword(hash, "wrong"); err == nil {
		t.Fatal("VerifyPassword accepted a wrong password")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	a := newTestAuthenticator(t)
	accountID := uuid.New()

	token, err := a.IssueToken(accountID, "admin")
	if err != nil {
		t.Fatalf("IssueToken returned error: %v", err)
	}

	claims, err := a.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken returned error: %v", err)
	}
	if claims.AccountID != accountID {
		t.Fatalf("expected account id %s, got %s", accountID, claims.AccountID)
	}
	if claims.Role != "admin" {
		t.Fatalf("expected role admin, got %q", claims.Role)
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	a := newTestAuthenticator(t)
	other, err := NewAuthenticator("other-secret", time.Hour, 4)
	if err != nil {
		t.Fatalf("NewAuthenticator returned error: %v", err)
	}

	token, err := other.IssueToken(uuid.New(), "customer")
	if err != nil {
		t.Fatalf("IssueToken returned error: %v", err)
	}
	if _, err := a.ParseToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	a, err := NewAuthenticator("test-secret", -time.Hour, 4)
	if err != nil {
		t.Fatalf("NewAuthenticator returned error: %v", err)
	}
	// NewAuthenticator clamps non-positive TTLs, so craft expiry directly.
	a.tokenTTL = -time.Hour

	token, err := a.IssueToken(uuid.New(), "customer")
	if err != nil {
		t.Fatalf("IssueToken returned error: %v", err)
	}
	if _, err := a.ParseToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	a := newTestAuthenticator(t)
	if _, err := a.ParseToken("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
