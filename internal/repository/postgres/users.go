package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/core/domain"
	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/core/port"
	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/repository"
)

// UserRepository resolves identities for confirm requests.
type UserRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewUserRepository constructs a PostgreSQL-backed user repository.
func NewUserRepository(exec pgExecutor) *UserRepository {
	repo := &UserRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// GetByID fetches a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, userID int64) (*domain.User, error) {
	stmt, args, err := r.builder.
		Select("id", "username", "created_at").
		From("brew.users").
		Where(squirrel.Eq{"id": userID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	var user domain.User
	row := executorFrom(ctx, r.exec).QueryRow(ctx, stmt, args...)
	if err := row.Scan(&user.ID, &user.Username, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	return &user, nil
}

var _ port.UserRepository = (*UserRepository)(nil)
