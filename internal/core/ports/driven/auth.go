package driven

import "github.com/custodia-labs/marginalia/internal/core/domain"

// AuthAdapter issues and verifies collaborator tokens.
type AuthAdapter interface {
	// HashKey generates a bcrypt hash of an API key
	HashKey(key string) (string, error)

	// VerifyKey checks an API key against a stored hash
	VerifyKey(key, hash string) bool

	// GenerateToken creates a signed token from claims
	GenerateToken(claims *domain.TokenClaims) (string, error)

	// ParseToken validates a token and extracts its claims
	ParseToken(token string) (*domain.TokenClaims, error)
}
