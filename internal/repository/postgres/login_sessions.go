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

// LoginSessionRepository implements port.LoginSessionRepository backed by
// PostgreSQL. The scan/confirm transitions are single conditional UPDATEs
// guarded on the expected prior status and on expiry, so concurrent callers
// race safely: exactly one statement affects a row.
type LoginSessionRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewLoginSessionRepository constructs a repository backed by any executor
// that satisfies pgExecutor.
func NewLoginSessionRepository(exec pgExecutor) *LoginSessionRepository {
	repo := &LoginSessionRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// Create persists a new login session.
func (r *LoginSessionRepository) Create(ctx context.Context, session domain.LoginSession) error {
	stmt, args, err := r.builder.Insert("brew.qr_login_sessions").
		Columns(
			"token",
			"status",
			"role_code",
			"province",
			"city",
			"district",
			"street",
			"user_id",
			"user_info",
			"created_at",
			"expires_at",
			"scanned_at",
			"confirmed_at",
		).
		Values(
			session.Token,
			int(session.Status),
			optionalString(session.RoleCode),
			optionalString(session.Area.Province),
			optionalString(session.Area.City),
			optionalString(session.Area.District),
			optionalString(session.Area.Street),
			optionalInt64(session.UserID),
			session.UserInfo,
			session.CreatedAt,
			session.ExpiresAt,
			nil,
			nil,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert login session sql: %w", err)
	}

	if _, err := executorFrom(ctx, r.exec).Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert login session: %w", err)
	}

	return nil
}

// GetByToken fetches a session by its token.
func (r *LoginSessionRepository) GetByToken(ctx context.Context, token string) (*domain.LoginSession, error) {
	stmt, args, err := r.builder.
		Select(
			"token",
			"status",
			"role_code",
			"province",
			"city",
			"district",
			"street",
			"user_id",
			"user_info",
			"created_at",
			"expires_at",
			"scanned_at",
			"confirmed_at",
		).
		From("brew.qr_login_sessions").
		Where(squirrel.Eq{"token": token}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select login session sql: %w", err)
	}

	row := executorFrom(ctx, r.exec).QueryRow(ctx, stmt, args...)
	session, err := scanLoginSession(row)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("scan login session: %w", err)
	}

	return session, nil
}

// MarkScanned performs the UNSCANNED -> SCANNED conditional transition.
func (r *LoginSessionRepository) MarkScanned(ctx context.Context, token string, at time.Time) error {
	stmt := `
        UPDATE brew.qr_login_sessions
           SET status = $2, scanned_at = $3
         WHERE token = $1
           AND status = $4
           AND expires_at > $3
    `

	tag, err := executorFrom(ctx, r.exec).Exec(ctx, stmt,
		token,
		int(domain.LoginStatusScanned),
		at.UTC(),
		int(domain.LoginStatusUnscanned),
	)
	if err != nil {
		return fmt.Errorf("mark login session scanned: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrConflict
	}

	return nil
}

// ConfirmLogin performs the SCANNED -> CONFIRMED conditional transition,
// binding the confirming identity and its opaque payload in the same
// statement so neither is ever observed without the other.
func (r *LoginSessionRepository) ConfirmLogin(ctx context.Context, token string, userID int64, userInfo []byte, at time.Time) error {
	stmt := `
        UPDATE brew.qr_login_sessions
           SET status = $2, user_id = $3, user_info = $4, confirmed_at = $5
         WHERE token = $1
           AND status = $6
           AND expires_at > $5
    `

	tag, err := executorFrom(ctx, r.exec).Exec(ctx, stmt,
		token,
		int(domain.LoginStatusConfirmed),
		userID,
		userInfo,
		at.UTC(),
		int(domain.LoginStatusScanned),
	)
	if err != nil {
		return fmt.Errorf("confirm login session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrConflict
	}

	return nil
}

// MarkConfirmed advances SCANNED -> CONFIRMED without recording a login
// result. Used by the role-bind-only confirm variant.
func (r *LoginSessionRepository) MarkConfirmed(ctx context.Context, token string, at time.Time) error {
	stmt := `
        UPDATE brew.qr_login_sessions
           SET status = $2, confirmed_at = $3
         WHERE token = $1
           AND status = $4
           AND expires_at > $3
    `

	tag, err := executorFrom(ctx, r.exec).Exec(ctx, stmt,
		token,
		int(domain.LoginStatusConfirmed),
		at.UTC(),
		int(domain.LoginStatusScanned),
	)
	if err != nil {
		return fmt.Errorf("mark login session confirmed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrConflict
	}

	return nil
}

// DeleteExpired removes sessions whose validity window has passed.
func (r *LoginSessionRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := executorFrom(ctx, r.exec).Exec(ctx,
		"DELETE FROM brew.qr_login_sessions WHERE expires_at <= $1",
		cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired login sessions: %w", err)
	}

	return tag.RowsAffected(), nil
}

func scanLoginSession(row pgx.Row) (*domain.LoginSession, error) {
	var (
		session     domain.LoginSession
		status      int
		roleCode    sql.NullString
		province    sql.NullString
		city        sql.NullString
		district    sql.NullString
		street      sql.NullString
		userID      sql.NullInt64
		userInfo    []byte
		scannedAt   sql.NullTime
		confirmedAt sql.NullTime
	)

	if err := row.Scan(
		&session.Token,
		&status,
		&roleCode,
		&province,
		&city,
		&district,
		&street,
		&userID,
		&userInfo,
		&session.CreatedAt,
		&session.ExpiresAt,
		&scannedAt,
		&confirmedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	session.Status = domain.LoginStatus(status)
	session.RoleCode = nullableStringPtr(roleCode)
	session.Area = domain.AreaScope{
		Province: nullableStringPtr(province),
		City:     nullableStringPtr(city),
		District: nullableStringPtr(district),
		Street:   nullableStringPtr(street),
	}
	session.UserID = nullableInt64Ptr(userID)
	session.UserInfo = userInfo
	session.ScannedAt = nullableTimePtr(scannedAt)
	session.ConfirmedAt = nullableTimePtr(confirmedAt)

	return &session, nil
}

var _ port.LoginSessionRepository = (*LoginSessionRepository)(nil)
