package port

import (
	"context"
	"time"

	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/core/domain"
)

// LoginSessionRepository persists QR login sessions.
//
// MarkScanned, ConfirmLogin, and MarkConfirmed are conditional updates
// guarded on the expected prior status and on the session not being expired.
// When the guard does not hold (another caller won the race, or the TTL
// elapsed between read and write) they return repository.ErrConflict without
// mutating anything.
type LoginSessionRepository interface {
	Create(ctx context.Context, session domain.LoginSession) error
	GetByToken(ctx context.Context, token string) (*domain.LoginSession, error)
	MarkScanned(ctx context.Context, token string, at time.Time) error
	ConfirmLogin(ctx context.Context, token string, userID int64, userInfo []byte, at time.Time) error
	MarkConfirmed(ctx context.Context, token string, at time.Time) error
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
