package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"authcore/internal/domain"
	"authcore/internal/repository"
)

// SessionVersionGuard invalida en O(1) todas las sesiones previas de un
// usuario: cada mutación de credenciales incrementa session_version, y
// cualquier sesión que lleve una versión distinta deja de ser vigente.
type SessionVersionGuard struct {
	users repository.UserRepository
}

func NewSessionVersionGuard(users repository.UserRepository) *SessionVersionGuard {
	return &SessionVersionGuard{users: users}
}

// IsCurrent compara la versión presentada contra la almacenada. Cualquier
// discrepancia, en cualquier dirección, invalida la sesión.
func (g *SessionVersionGuard) IsCurrent(presented, stored int64) bool {
	return presented == stored
}

// Check carga la versión autoritativa del usuario y la compara con la que
// trae la sesión. Usuario inexistente cuenta como sesión no vigente.
func (g *SessionVersionGuard) Check(ctx context.Context, userID string, presented int64) (domain.User, bool, error) {
	user, err := g.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return user, g.IsCurrent(presented, user.SessionVersion), nil
}
