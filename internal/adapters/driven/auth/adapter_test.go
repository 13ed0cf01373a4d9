package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/custodia-labs/marginalia/internal/core/domain"
)

func testClaims(subject string, kind domain.AuthorKind, ttl time.Duration) *domain.TokenClaims {
	now := time.Now()
	return &domain.TokenClaims{
		Subject:    subject,
		AuthorKind: kind,
		IssuedAt:   now.Unix(),
		ExpiresAt:  now.Add(ttl).Unix(),
	}
}

func TestNewAdapterWithCost(t *testing.T) {
	adapter := NewAdapterWithCost("test-secret", 4)
	if adapter.bcryptCost != 4 {
		t.Errorf("expected bcrypt cost 4, got %d", adapter.bcryptCost)
	}
	if string(adapter.jwtSecret) != "test-secret" {
		t.Error("expected jwt secret to be set")
	}
}

func TestHashKey(t *testing.T) {
	adapter := NewAdapterWithCost("secret", 4) // Low cost for faster tests

	hash1, err := adapter.HashKey("key-123")
	if err != nil {
		t.Fatalf("failed to hash key: %v", err)
	}
	hash2, _ := adapter.HashKey("key-123")

	if hash1 == "key-123" {
		t.Error("hash should not equal plaintext key")
	}
	if hash1 == hash2 {
		t.Error("expected different hashes for same key (due to salt)")
	}
}

func TestVerifyKey(t *testing.T) {
	adapter := NewAdapterWithCost("secret", 4)
	hash, _ := adapter.HashKey("correct")

	if !adapter.VerifyKey("correct", hash) {
		t.Error("expected key verification to succeed")
	}
	if adapter.VerifyKey("wrong", hash) {
		t.Error("expected key verification to fail for wrong key")
	}
	if adapter.VerifyKey("correct", "not-a-valid-hash") {
		t.Error("expected verification to fail for invalid hash")
	}
}

func TestGenerateToken_RequiresSubject(t *testing.T) {
	adapter := NewAdapter("secret")

	_, err := adapter.GenerateToken(testClaims("", domain.AuthorKindHuman, time.Hour))
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestParseToken_RoundTrip(t *testing.T) {
	adapter := NewAdapter("test-jwt-secret")

	for _, kind := range []domain.AuthorKind{domain.AuthorKindHuman, domain.AuthorKindAgent} {
		t.Run(string(kind), func(t *testing.T) {
			original := testClaims("reviewer", kind, time.Hour)

			token, err := adapter.GenerateToken(original)
			if err != nil {
				t.Fatalf("failed to generate token: %v", err)
			}
			if strings.Count(token, ".") != 2 {
				t.Errorf("expected JWT with 3 parts, got %q", token)
			}

			parsed, err := adapter.ParseToken(token)
			if err != nil {
				t.Fatalf("failed to parse token: %v", err)
			}
			if *parsed != *original {
				t.Errorf("expected %+v, got %+v", original, parsed)
			}
		})
	}
}

func TestParseToken_DefaultsToHuman(t *testing.T) {
	adapter := NewAdapter("secret")

	token, _ := adapter.GenerateToken(testClaims("someone", "", time.Hour))
	parsed, err := adapter.ParseToken(token)
	if err != nil {
		t.Fatalf("failed to parse token: %v", err)
	}
	if parsed.AuthorKind != domain.AuthorKindHuman {
		t.Errorf("expected human author kind, got %q", parsed.AuthorKind)
	}
}

func TestParseToken_Expired(t *testing.T) {
	adapter := NewAdapter("test-jwt-secret")

	token, _ := adapter.GenerateToken(testClaims("reviewer", domain.AuthorKindHuman, -2*time.Hour))

	if _, err := adapter.ParseToken(token); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	token, _ := NewAdapter("secret-1").GenerateToken(testClaims("reviewer", domain.AuthorKindHuman, time.Hour))

	if _, err := NewAdapter("secret-2").ParseToken(token); err == nil {
		t.Error("expected error when parsing token with wrong secret")
	}
}

func TestParseToken_WrongIssuer(t *testing.T) {
	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "someone-else",
		Subject:   "reviewer",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	token, err := foreign.SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}

	if _, err := NewAdapter("secret").ParseToken(token); err == nil {
		t.Error("expected error for foreign issuer")
	}
}

func TestParseToken_Malformed(t *testing.T) {
	adapter := NewAdapter("test-secret")

	for _, tc := range []string{"", "not-a-jwt", "only.two.parts.missing", "header.payload"} {
		if _, err := adapter.ParseToken(tc); err == nil {
			t.Errorf("expected error for malformed token: %q", tc)
		}
	}
}

func TestIssue(t *testing.T) {
	adapter := NewAdapter("secret")

	token, claims, err := adapter.Issue("bot", domain.AuthorKindAgent, time.Hour)
	if err != nil {
		t.Fatalf("failed to issue: %v", err)
	}
	if claims.ExpiresAt-claims.IssuedAt != int64(time.Hour/time.Second) {
		t.Errorf("unexpected lifetime: %d", claims.ExpiresAt-claims.IssuedAt)
	}

	parsed, err := adapter.ParseToken(token)
	if err != nil {
		t.Fatalf("failed to parse issued token: %v", err)
	}
	if parsed.Subject != "bot" || parsed.AuthorKind != domain.AuthorKindAgent {
		t.Errorf("unexpected claims: %+v", parsed)
	}
}

func BenchmarkParseToken(b *testing.B) {
	adapter := NewAdapter("test-secret")
	token, _ := adapter.GenerateToken(testClaims("reviewer", domain.AuthorKindHuman, time.Hour))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = adapter.ParseToken(token)
	}
}
