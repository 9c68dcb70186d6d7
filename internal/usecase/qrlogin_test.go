package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/core/domain"
	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/repository"
)

// memorySessionStore mimics the conditional-update semantics of the real
// repository: transitions only succeed from the expected prior status on a
// live session, and losers observe repository.ErrConflict.
type memorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*domain.LoginSession
}

func newMemorySessionStore() *memorySessionStore {
	return &memorySessionStore{sessions: make(map[string]*domain.LoginSession)}
}

func (s *memorySessionStore) Create(_ context.Context, session domain.LoginSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.Token]; exists {
		return repository.ErrConflict
	}
	copy := session
	s.sessions[session.Token] = &copy
	return nil
}

func (s *memorySessionStore) GetByToken(_ context.Context, token string) (*domain.LoginSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[token]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *session
	return &copy, nil
}

func (s *memorySessionStore) MarkScanned(_ context.Context, token string, at time.Time) error {
	return s.transition(token, domain.LoginStatusUnscanned, at, func(session *domain.LoginSession) {
		session.Status = domain.LoginStatusScanned
		session.ScannedAt = &at
	})
}

func (s *memorySessionStore) ConfirmLogin(_ context.Context, token string, userID int64, userInfo []byte, at time.Time) error {
	return s.transition(token, domain.LoginStatusScanned, at, func(session *domain.LoginSession) {
		session.Status = domain.LoginStatusConfirmed
		session.UserID = &userID
		session.UserInfo = userInfo
		session.ConfirmedAt = &at
	})
}

func (s *memorySessionStore) MarkConfirmed(_ context.Context, token string, at time.Time) error {
	return s.transition(token, domain.LoginStatusScanned, at, func(session *domain.LoginSession) {
		session.Status = domain.LoginStatusConfirmed
		session.ConfirmedAt = &at
	})
}

func (s *memorySessionStore) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for token, session := range s.sessions {
		if !session.ExpiresAt.After(cutoff) {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed, nil
}

func (s *memorySessionStore) transition(token string, expected domain.LoginStatus, at time.Time, apply func(*domain.LoginSession)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[token]
	if !ok {
		return repository.ErrNotFound
	}
	if session.Status != expected || !session.ExpiresAt.After(at) {
		return repository.ErrConflict
	}
	apply(session)
	return nil
}

type staticUserRepository struct {
	users map[int64]domain.User
}

func (r *staticUserRepository) GetByID(_ context.Context, userID int64) (*domain.User, error) {
	user, ok := r.users[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := user
	return &copy, nil
}

type recordingBinder struct {
	mu       sync.Mutex
	err      error
	bindings []string
}

func (b *recordingBinder) BindRole(_ context.Context, userID int64, roleCode string, _ domain.AreaScope) (*domain.Role, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	b.bindings = append(b.bindings, roleCode)
	return &domain.Role{ID: 1, Code: roleCode}, nil
}

type passthroughTx struct{}

func (passthroughTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type staticRenderer struct {
	err error
}

func (r staticRenderer) RenderPNG(string) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	return []byte{0x89, 'P', 'N', 'G'}, nil
}

func newTestQrService(t *testing.T, store *memorySessionStore, binder *recordingBinder, at time.Time) *QrLoginService {
	t.Helper()

	users := &staticUserRepository{users: map[int64]domain.User{
		7: {ID: 7, Username: "mobile-user"},
	}}

	svc := NewQrLoginService(
		store,
		users,
		binder,
		staticRenderer{},
		nil,
		passthroughTx{},
		QrLoginConfig{TTL: 5 * time.Minute},
		zaptest.NewLogger(t),
	)
	return svc.WithClock(func() time.Time { return at })
}

func TestQrLoginHappyPath(t *testing.T) {
	store := newMemorySessionStore()
	binder := &recordingBinder{}
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestQrService(t, store, binder, now)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateQrInput{})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if created.Token == "" {
		t.Fatal("expected non-empty token")
	}
	if !strings.Contains(created.Content, "token="+created.Token) {
		t.Fatalf("content missing token: %s", created.Content)
	}
	if !strings.HasPrefix(created.Image, "data:image/png;base64,") {
		t.Fatalf("unexpected image prefix: %.40s", created.Image)
	}
	if got := created.ExpiresAt; !got.Equal(now.Add(5 * time.Minute)) {
		t.Fatalf("unexpected expiry: %v", got)
	}

	view, err := svc.Query(ctx, created.Token)
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if view.State != domain.SessionUnscanned {
		t.Fatalf("expected unscanned, got %v", view.State)
	}

	if err := svc.Scan(ctx, created.Token); err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}

	view, _ = svc.Query(ctx, created.Token)
	if view.State != domain.SessionScanned {
		t.Fatalf("expected scanned, got %v", view.State)
	}

	result, err := svc.Confirm(ctx, created.Token, 7, map[string]any{"nickname": "brewer"})
	if err != nil {
		t.Fatalf("Confirm returned error: %v", err)
	}
	if result.RoleBound {
		t.Fatal("roleless session must not bind a role")
	}
	if len(binder.bindings) != 0 {
		t.Fatalf("unexpected bindings: %v", binder.bindings)
	}

	view, _ = svc.Query(ctx, created.Token)
	if view.State != domain.SessionConfirmed {
		t.Fatalf("expected confirmed, got %v", view.State)
	}
	if view.UserID == nil || *view.UserID != 7 {
		t.Fatalf("expected user 7 on confirmed view, got %v", view.UserID)
	}
	if !strings.Contains(string(view.UserInfo), "brewer") {
		t.Fatalf("expected user info payload, got %s", view.UserInfo)
	}
}

func TestQrLoginQueryUnknownToken(t *testing.T) {
	store := newMemorySessionStore()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestQrService(t, store, &recordingBinder{}, now)

	view, err := svc.Query(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if view.State != domain.SessionNotFound {
		t.Fatalf("expected not found, got %v", view.State)
	}
	if view.StatusCode() != domain.StatusCodeNotFound {
		t.Fatalf("unexpected status code: %d", view.StatusCode())
	}
}

func TestQrLoginExpiryIsTerminal(t *testing.T) {
	store := newMemorySessionStore()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestQrService(t, store, &recordingBinder{}, now)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateQrInput{})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	// Move past the TTL.
	svc.WithClock(func() time.Time { return now.Add(6 * time.Minute) })

	if err := svc.Scan(ctx, created.Token); !errors.Is(err, ErrQrExpired) {
		t.Fatalf("expected ErrQrExpired, got %v", err)
	}

	if _, err := svc.Confirm(ctx, created.Token, 7, nil); !errors.Is(err, ErrQrExpired) {
		t.Fatalf("expected ErrQrExpired, got %v", err)
	}

	view, err := svc.Query(ctx, created.Token)
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if view.State != domain.SessionExpired {
		t.Fatalf("expected expired, got %v", view.State)
	}
	if view.StatusCode() != domain.StatusCodeExpired {
		t.Fatalf("unexpected status code: %d", view.StatusCode())
	}
}

func TestQrLoginConcurrentScanSingleWinner(t *testing.T) {
	store := newMemorySessionStore()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestQrService(t, store, &recordingBinder{}, now)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateQrInput{})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	const scanners = 16
	var wg sync.WaitGroup
	errs := make([]error, scanners)
	for i := 0; i < scanners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = svc.Scan(ctx, created.Token)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrQrAlreadyScanned):
		default:
			t.Fatalf("unexpected scan error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}

func TestQrLoginConfirmRequiresScan(t *testing.T) {
	store := newMemorySessionStore()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestQrService(t, store, &recordingBinder{}, now)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateQrInput{})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if _, err := svc.Confirm(ctx, created.Token, 7, nil); !errors.Is(err, ErrQrNotScanned) {
		t.Fatalf("expected ErrQrNotScanned, got %v", err)
	}
}

func TestQrLoginDoubleScanRejected(t *testing.T) {
	store := newMemorySessionStore()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestQrService(t, store, &recordingBinder{}, now)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateQrInput{})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if err := svc.Scan(ctx, created.Token); err != nil {
		t.Fatalf("first scan failed: %v", err)
	}
	if err := svc.Scan(ctx, created.Token); !errors.Is(err, ErrQrAlreadyScanned) {
		t.Fatalf("expected ErrQrAlreadyScanned, got %v", err)
	}
}

func TestQrLoginConfirmBindsSessionRole(t *testing.T) {
	store := newMemorySessionStore()
	binder := &recordingBinder{}
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestQrService(t, store, binder, now)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateQrInput{Role: "farmer", Province: "Sichuan"})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if !strings.Contains(created.Content, "role=farmer") {
		t.Fatalf("content missing role: %s", created.Content)
	}
	if err := svc.Scan(ctx, created.Token); err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}

	result, err := svc.Confirm(ctx, created.Token, 7, nil)
	if err != nil {
		t.Fatalf("Confirm returned error: %v", err)
	}
	if !result.RoleBound {
		t.Fatal("expected role binding")
	}
	if result.RoleCode == nil || *result.RoleCode != "farmer" {
		t.Fatalf("unexpected role code: %v", result.RoleCode)
	}
	if len(binder.bindings) != 1 || binder.bindings[0] != "farmer" {
		t.Fatalf("unexpected bindings: %v", binder.bindings)
	}
}

func TestQrLoginBindFailureLeavesSessionScanned(t *testing.T) {
	store := newMemorySessionStore()
	binder := &recordingBinder{err: ErrRoleAlreadyBound}
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestQrService(t, store, binder, now)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateQrInput{Role: "farmer"})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if err := svc.Scan(ctx, created.Token); err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}

	if _, err := svc.Confirm(ctx, created.Token, 7, nil); !errors.Is(err, ErrRoleAlreadyBound) {
		t.Fatalf("expected ErrRoleAlreadyBound, got %v", err)
	}

	view, _ := svc.Query(ctx, created.Token)
	if view.State != domain.SessionScanned {
		t.Fatalf("failed bind must leave session scanned, got %v", view.State)
	}

	// Retrying after the binding obstacle clears succeeds.
	binder.err = nil
	result, err := svc.Confirm(ctx, created.Token, 7, nil)
	if err != nil {
		t.Fatalf("retry Confirm returned error: %v", err)
	}
	if !result.RoleBound {
		t.Fatal("expected role binding on retry")
	}
}

func TestQrLoginConfirmUnknownUser(t *testing.T) {
	store := newMemorySessionStore()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestQrService(t, store, &recordingBinder{}, now)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateQrInput{})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if err := svc.Scan(ctx, created.Token); err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}

	if _, err := svc.Confirm(ctx, created.Token, 999, nil); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestQrLoginConfirmRoleBind(t *testing.T) {
	store := newMemorySessionStore()
	binder := &recordingBinder{}
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestQrService(t, store, binder, now)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateQrInput{Role: "expert"})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if err := svc.Scan(ctx, created.Token); err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}

	result, err := svc.ConfirmRoleBind(ctx, created.Token, 7)
	if err != nil {
		t.Fatalf("ConfirmRoleBind returned error: %v", err)
	}
	if !result.RoleBound {
		t.Fatal("expected role binding")
	}

	view, _ := svc.Query(ctx, created.Token)
	if view.State != domain.SessionConfirmed {
		t.Fatalf("expected confirmed, got %v", view.State)
	}
	if view.UserID != nil {
		t.Fatalf("role-bind confirmation must not record a login result, got user %v", view.UserID)
	}
}

func TestQrLoginConfirmRoleBindRequiresRole(t *testing.T) {
	store := newMemorySessionStore()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestQrService(t, store, &recordingBinder{}, now)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateQrInput{})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if err := svc.Scan(ctx, created.Token); err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}

	if _, err := svc.ConfirmRoleBind(ctx, created.Token, 7); !errors.Is(err, ErrQrNoRole) {
		t.Fatalf("expected ErrQrNoRole, got %v", err)
	}
}

func TestQrLoginRenderFailureDoesNotFailCreate(t *testing.T) {
	store := newMemorySessionStore()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	users := &staticUserRepository{users: map[int64]domain.User{}}
	svc := NewQrLoginService(
		store,
		users,
		&recordingBinder{},
		staticRenderer{err: errors.New("render broken")},
		nil,
		passthroughTx{},
		QrLoginConfig{TTL: 5 * time.Minute},
		zaptest.NewLogger(t),
	).WithClock(func() time.Time { return now })

	created, err := svc.Create(context.Background(), CreateQrInput{})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if created.Image != "" {
		t.Fatalf("expected empty image on render failure, got %.40s", created.Image)
	}
	if created.Token == "" || created.Content == "" {
		t.Fatal("token and content must survive render failure")
	}
}

func TestQrLoginReapRemovesOnlyExpired(t *testing.T) {
	store := newMemorySessionStore()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestQrService(t, store, &recordingBinder{}, now)
	ctx := context.Background()

	stale, err := svc.Create(ctx, CreateQrInput{})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	svc.WithClock(func() time.Time { return now.Add(10 * time.Minute) })
	fresh, err := svc.Create(ctx, CreateQrInput{})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	removed, err := svc.Reap(ctx)
	if err != nil {
		t.Fatalf("Reap returned error: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected one reaped session, got %d", removed)
	}

	if view, _ := svc.Query(ctx, stale.Token); view.State != domain.SessionNotFound {
		t.Fatalf("stale session should be gone, got %v", view.State)
	}
	if view, _ := svc.Query(ctx, fresh.Token); view.State != domain.SessionUnscanned {
		t.Fatalf("fresh session should survive, got %v", view.State)
	}
}
