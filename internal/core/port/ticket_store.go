package port

import (
	"context"
	"time"

	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/core/domain"
)

// TicketStore keeps the revocable counterpart of issued session JWTs in a
// TTL keyed store. A missing ticket means the token is revoked or expired.
type TicketStore interface {
	Store(ctx context.Context, ticket domain.LoginTicket, ttl time.Duration) error
	Get(ctx context.Context, id string) (*domain.LoginTicket, error)
	Delete(ctx context.Context, id string) error
}
