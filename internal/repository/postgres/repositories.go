package postgres

import "github.com/jackc/pgx/v5/pgxpool"

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	LoginSessions *LoginSessionRepository
	Roles         *RoleRepository
	Users         *UserRepository
	Tx            *TxManager
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		LoginSessions: NewLoginSessionRepository(pool),
		Roles:         NewRoleRepository(pool),
		Users:         NewUserRepository(pool),
		Tx:            NewTxManager(pool),
	}
}
