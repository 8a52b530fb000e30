package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"authcore/internal/domain"
)

// TokenRepository persiste tokens de un solo uso. Las filas nunca se borran:
// la tabla funciona como un ledger de auditoría, solo se marca used_at.
type TokenRepository interface {
	Insert(ctx context.Context, token domain.Token) error
	// Consume transiciona la fila de abierta a usada con un único UPDATE
	// condicional. Si la fila no existe, ya se usó o expiró, devuelve
	// pgx.ErrNoRows sin distinguir la causa. Bajo concurrencia solo una
	// llamada puede ganar la transición.
	Consume(ctx context.Context, hashedToken string, kind domain.TokenKind, now time.Time) (domain.Token, error)
	// InvalidateActive marca usadas todas las filas abiertas del usuario
	// para un propósito, garantizando a lo sumo un token verificable por
	// usuario y propósito cuando se emite uno nuevo.
	InvalidateActive(ctx context.Context, userID string, kind domain.TokenKind, now time.Time) error
}

// PgTokenRepository implementa TokenRepository usando pgxpool.
type PgTokenRepository struct {
	pool *pgxpool.Pool
}

func NewPgTokenRepository(pool *pgxpool.Pool) *PgTokenRepository {
	return &PgTokenRepository{pool: pool}
}

func (r *PgTokenRepository) Insert(ctx context.Context, token domain.Token) error {
	const query = `
		INSERT INTO auth_tokens (id, user_id, kind, hashed_token, new_email, expires_at, used_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		token.ID,
		token.UserID,
		token.Kind,
		token.HashedToken,
		token.NewEmail,
		token.ExpiresAt,
		token.UsedAt,
		token.CreatedAt,
	)
	return err
}

func (r *PgTokenRepository) Consume(ctx context.Context, hashedToken string, kind domain.TokenKind, now time.Time) (domain.Token, error) {
	const query = `
		UPDATE auth_tokens
		SET used_at = $3
		WHERE hashed_token = $1 AND kind = $2 AND used_at IS NULL AND expires_at > $3
		RETURNING id, user_id, kind, hashed_token, new_email, expires_at, used_at, created_at
	`
	var t domain.Token
	err := r.pool.QueryRow(ctx, query, hashedToken, kind, now).Scan(
		&t.ID,
		&t.UserID,
		&t.Kind,
		&t.HashedToken,
		&t.NewEmail,
		&t.ExpiresAt,
		&t.UsedAt,
		&t.CreatedAt,
	)
	if err != nil {
		return domain.Token{}, err
	}
	return t, nil
}

func (r *PgTokenRepository) InvalidateActive(ctx context.Context, userID string, kind domain.TokenKind, now time.Time) error {
	const query = `
		UPDATE auth_tokens
		SET used_at = $3
		WHERE user_id = $1 AND kind = $2 AND used_at IS NULL
	`
	_, err := r.pool.Exec(ctx, query, userID, kind, now)
	return err
}
