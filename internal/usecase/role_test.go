package usecase

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/core/domain"
	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/repository"
)

type memoryRoleRepository struct {
	roles    []domain.Role
	bindings map[int64][]int64
	bindErr  error
}

func newMemoryRoleRepository(roles ...domain.Role) *memoryRoleRepository {
	return &memoryRoleRepository{roles: roles, bindings: make(map[int64][]int64)}
}

func (r *memoryRoleRepository) List(context.Context) ([]domain.Role, error) {
	return r.roles, nil
}

func (r *memoryRoleRepository) GetByCode(_ context.Context, code string) (*domain.Role, error) {
	for _, role := range r.roles {
		if role.Code == code {
			copy := role
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memoryRoleRepository) ListByUser(_ context.Context, userID int64) ([]domain.Role, error) {
	var held []domain.Role
	for _, roleID := range r.bindings[userID] {
		for _, role := range r.roles {
			if role.ID == roleID {
				held = append(held, role)
			}
		}
	}
	return held, nil
}

func (r *memoryRoleRepository) BindToUser(_ context.Context, binding domain.UserRole) error {
	if r.bindErr != nil {
		return r.bindErr
	}
	for _, roleID := range r.bindings[binding.UserID] {
		if roleID == binding.RoleID {
			return repository.ErrConflict
		}
	}
	r.bindings[binding.UserID] = append(r.bindings[binding.UserID], binding.RoleID)
	return nil
}

func newTestRoleService(t *testing.T, repo *memoryRoleRepository) *RoleService {
	t.Helper()
	users := &staticUserRepository{users: map[int64]domain.User{
		7: {ID: 7, Username: "mobile-user"},
	}}
	return NewRoleService(repo, users, nil, zaptest.NewLogger(t))
}

func TestBindRole(t *testing.T) {
	repo := newMemoryRoleRepository(
		domain.Role{ID: 1, Code: "farmer", Name: "Farmer", Exclusive: true},
		domain.Role{ID: 2, Code: "observer", Name: "Observer"},
	)
	svc := newTestRoleService(t, repo)

	role, err := svc.BindRole(context.Background(), 7, "farmer", domain.AreaScope{})
	if err != nil {
		t.Fatalf("BindRole returned error: %v", err)
	}
	if role.Code != "farmer" {
		t.Fatalf("unexpected role: %s", role.Code)
	}

	held, err := svc.ListUserRoles(context.Background(), 7)
	if err != nil {
		t.Fatalf("ListUserRoles returned error: %v", err)
	}
	if len(held) != 1 || held[0].Code != "farmer" {
		t.Fatalf("unexpected held roles: %v", held)
	}
}

func TestBindRoleExclusiveRejectsRebind(t *testing.T) {
	repo := newMemoryRoleRepository(
		domain.Role{ID: 1, Code: "farmer", Name: "Farmer", Exclusive: true},
	)
	svc := newTestRoleService(t, repo)
	ctx := context.Background()

	if _, err := svc.BindRole(ctx, 7, "farmer", domain.AreaScope{}); err != nil {
		t.Fatalf("first bind failed: %v", err)
	}
	if _, err := svc.BindRole(ctx, 7, "farmer", domain.AreaScope{}); !errors.Is(err, ErrRoleAlreadyBound) {
		t.Fatalf("expected ErrRoleAlreadyBound, got %v", err)
	}
}

func TestBindRoleNonExclusiveRebindIsIdempotent(t *testing.T) {
	repo := newMemoryRoleRepository(
		domain.Role{ID: 2, Code: "observer", Name: "Observer"},
	)
	svc := newTestRoleService(t, repo)
	ctx := context.Background()

	if _, err := svc.BindRole(ctx, 7, "observer", domain.AreaScope{}); err != nil {
		t.Fatalf("first bind failed: %v", err)
	}

	// The duplicate surfaces as a conflict from the store but the caller
	// sees success because the binding already holds.
	role, err := svc.BindRole(ctx, 7, "observer", domain.AreaScope{})
	if err != nil {
		t.Fatalf("rebind returned error: %v", err)
	}
	if role.Code != "observer" {
		t.Fatalf("unexpected role: %s", role.Code)
	}
}

func TestBindRoleUnknownRole(t *testing.T) {
	svc := newTestRoleService(t, newMemoryRoleRepository())

	if _, err := svc.BindRole(context.Background(), 7, "ghost", domain.AreaScope{}); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}
}

func TestBindRoleUnknownUser(t *testing.T) {
	repo := newMemoryRoleRepository(domain.Role{ID: 1, Code: "farmer"})
	svc := newTestRoleService(t, repo)

	if _, err := svc.BindRole(context.Background(), 999, "farmer", domain.AreaScope{}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestGetRoleTrimsCode(t *testing.T) {
	repo := newMemoryRoleRepository(domain.Role{ID: 1, Code: "farmer", Name: "Farmer"})
	svc := newTestRoleService(t, repo)

	role, err := svc.GetRole(context.Background(), "  farmer  ")
	if err != nil {
		t.Fatalf("GetRole returned error: %v", err)
	}
	if role.Code != "farmer" {
		t.Fatalf("unexpected role: %s", role.Code)
	}

	if _, err := svc.GetRole(context.Background(), "   "); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound for blank code, got %v", err)
	}
}
