package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/core/domain"
	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/core/port"
	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/repository"
)

// RoleRepository implements role catalog and binding persistence.
type RoleRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewRoleRepository constructs a PostgreSQL-backed role repository.
func NewRoleRepository(exec pgExecutor) *RoleRepository {
	repo := &RoleRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// List retrieves all roles sorted by code.
func (r *RoleRepository) List(ctx context.Context) ([]domain.Role, error) {
	stmt, args, err := r.builder.
		Select("id", "code", "name", "description", "exclusive", "created_at").
		From("brew.roles").
		OrderBy("code ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list roles sql: %w", err)
	}

	rows, err := executorFrom(ctx, r.exec).Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query roles: %w", err)
	}
	defer rows.Close()

	roles := make([]domain.Role, 0)
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, *role)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}

	return roles, nil
}

// GetByCode retrieves a role by its unique code.
func (r *RoleRepository) GetByCode(ctx context.Context, code string) (*domain.Role, error) {
	stmt, args, err := r.builder.
		Select("id", "code", "name", "description", "exclusive", "created_at").
		From("brew.roles").
		Where(squirrel.Eq{"code": code}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select role sql: %w", err)
	}

	row := executorFrom(ctx, r.exec).QueryRow(ctx, stmt, args...)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("scan role: %w", err)
	}

	return role, nil
}

// ListByUser retrieves the roles bound to a user.
func (r *RoleRepository) ListByUser(ctx context.Context, userID int64) ([]domain.Role, error) {
	stmt, args, err := r.builder.
		Select("r.id", "r.code", "r.name", "r.description", "r.exclusive", "r.created_at").
		From("brew.roles AS r").
		Join("brew.user_roles AS ur ON ur.role_id = r.id").
		Where(squirrel.Eq{"ur.user_id": userID}).
		OrderBy("r.code ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list user roles sql: %w", err)
	}

	rows, err := executorFrom(ctx, r.exec).Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query user roles: %w", err)
	}
	defer rows.Close()

	roles := make([]domain.Role, 0)
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user role: %w", err)
		}
		roles = append(roles, *role)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user roles: %w", err)
	}

	return roles, nil
}

// BindToUser inserts the user-role link with its area scope. Duplicate
// bindings surface repository.ErrConflict via the unique constraint on
// (user_id, role_id).
func (r *RoleRepository) BindToUser(ctx context.Context, binding domain.UserRole) error {
	assignedAt := binding.AssignedAt
	if assignedAt.IsZero() {
		assignedAt = time.Now().UTC()
	}

	stmt, args, err := r.builder.Insert("brew.user_roles").
		Columns("user_id", "role_id", "province", "city", "district", "street", "assigned_at").
		Values(
			binding.UserID,
			binding.RoleID,
			optionalString(binding.Area.Province),
			optionalString(binding.Area.City),
			optionalString(binding.Area.District),
			optionalString(binding.Area.Street),
			assignedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert user role sql: %w", err)
	}

	if _, err := executorFrom(ctx, r.exec).Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert user role: %w", err)
	}

	return nil
}

func scanRole(row pgx.Row) (*domain.Role, error) {
	var (
		role        domain.Role
		description sql.NullString
	)

	if err := row.Scan(&role.ID, &role.Code, &role.Name, &description, &role.Exclusive, &role.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	role.Description = nullableStringPtr(description)

	return &role, nil
}

var _ port.RoleRepository = (*RoleRepository)(nil)
