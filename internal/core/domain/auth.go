package domain

// TokenClaims identifies the collaborator behind an API request or a
// remote connection.
type TokenClaims struct {
	Subject    string     `json:"sub"`
	AuthorKind AuthorKind `json:"author_kind"`
	IssuedAt   int64      `json:"iat"`
	ExpiresAt  int64      `json:"exp"`
}
