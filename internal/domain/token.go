package domain

import "time"

// TokenKind distingue los tres propósitos de tokens de un solo uso.
type TokenKind string

const (
	TokenKindEmailVerification TokenKind = "email_verification"
	TokenKindPasswordReset     TokenKind = "password_reset"
	TokenKindEmailChange       TokenKind = "email_change"
)

// Token es el registro persistido de un token de un solo uso. Nunca guarda
// el valor crudo, solo el hash de búsqueda derivado.
type Token struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Kind        TokenKind  `json:"kind"`
	HashedToken string     `json:"-"`
	NewEmail    string     `json:"-"`
	ExpiresAt   time.Time  `json:"expires_at"`
	UsedAt      *time.Time `json:"used_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
