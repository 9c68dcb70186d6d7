package port

import (
	"context"

	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/core/domain"
)

// RoleRepository handles role lookup and user-role bindings.
type RoleRepository interface {
	List(ctx context.Context) ([]domain.Role, error)
	GetByCode(ctx context.Context, code string) (*domain.Role, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Role, error)
	// BindToUser inserts the user-role link. A duplicate binding surfaces
	// repository.ErrConflict.
	BindToUser(ctx context.Context, binding domain.UserRole) error
}

// UserRepository resolves identities referenced by confirm requests.
type UserRepository interface {
	GetByID(ctx context.Context, userID int64) (*domain.User, error)
}
