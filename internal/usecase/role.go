package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/core/domain"
	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/core/port"
	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/repository"
)

var (
	// ErrRoleNotFound indicates the requested role code is not in the catalog.
	ErrRoleNotFound = errors.New("role not found")
	// ErrRoleAlreadyBound indicates an exclusive role the user already holds.
	ErrRoleAlreadyBound = errors.New("role already bound to user")
	// ErrUserNotFound is returned when binding a role to an unknown user.
	ErrUserNotFound = errors.New("user not found")
)

// RoleService manages the role catalog and user-role bindings.
type RoleService struct {
	roles  port.RoleRepository
	users  port.UserRepository
	events port.EventPublisher
	logger *zap.Logger
}

// NewRoleService constructs a RoleService.
func NewRoleService(roles port.RoleRepository, users port.UserRepository, events port.EventPublisher, logger *zap.Logger) *RoleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoleService{roles: roles, users: users, events: events, logger: logger}
}

// ListRoles returns the full role catalog.
func (s *RoleService) ListRoles(ctx context.Context) ([]domain.Role, error) {
	return s.roles.List(ctx)
}

// GetRole resolves a role by its code.
func (s *RoleService) GetRole(ctx context.Context, code string) (*domain.Role, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrRoleNotFound
	}

	role, err := s.roles.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("lookup role %q: %w", code, err)
	}

	return role, nil
}

// ListUserRoles returns the roles currently bound to a user.
func (s *RoleService) ListUserRoles(ctx context.Context, userID int64) ([]domain.Role, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user %d: %w", userID, err)
	}

	return s.roles.ListByUser(ctx, userID)
}

// BindRole attaches the role identified by code to the user, recording the
// area scope captured from the QR session. Binding an exclusive role the
// user already holds is rejected; rebinding a non-exclusive role is a no-op.
func (s *RoleService) BindRole(ctx context.Context, userID int64, roleCode string, area domain.AreaScope) (*domain.Role, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user %d: %w", userID, err)
	}

	role, err := s.GetRole(ctx, roleCode)
	if err != nil {
		return nil, err
	}

	if role.Exclusive {
		held, err := s.roles.ListByUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("list roles for user %d: %w", userID, err)
		}
		for _, existing := range held {
			if existing.ID == role.ID {
				return nil, ErrRoleAlreadyBound
			}
		}
	}

	binding := domain.UserRole{
		UserID: userID,
		RoleID: role.ID,
		Area:   area,
	}

	if err := s.roles.BindToUser(ctx, binding); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// Unique constraint caught a concurrent duplicate. For exclusive
			// roles that is a rejection; otherwise the binding already holds.
			if role.Exclusive {
				return nil, ErrRoleAlreadyBound
			}
			return role, nil
		}
		return nil, fmt.Errorf("bind role %q to user %d: %w", roleCode, userID, err)
	}

	s.publishRoleBound(ctx, userID, role.Code, area)

	s.logger.Info("role bound to user",
		zap.Int64("user_id", userID),
		zap.String("role", role.Code),
	)

	return role, nil
}

func (s *RoleService) publishRoleBound(ctx context.Context, userID int64, roleCode string, area domain.AreaScope) {
	if s.events == nil {
		return
	}
	event := domain.RoleBoundEvent{
		EventID:  uuid.NewString(),
		UserID:   userID,
		RoleCode: roleCode,
		Area:     area,
		BoundAt:  time.Now().UTC(),
	}
	if err := s.events.PublishRoleBound(ctx, event); err != nil {
		s.logger.Warn("publish role bound event failed", zap.Error(err))
	}
}
